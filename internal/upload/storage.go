package upload

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Storage persists uploaded objects and resolves them back from their public URL.
type Storage interface {
	// Save writes data under name and returns the public URL of the object.
	Save(ctx context.Context, name, contentType string, data []byte) (string, error)

	// Delete removes the object behind a URL previously returned by Save.
	// Deleting an object that no longer exists is not an error.
	Delete(ctx context.Context, publicURL string) error
}

// LocalStorage keeps objects on local disk, served under baseURL.
type LocalStorage struct {
	dir     string
	baseURL string
}

// NewLocalStorage creates the upload directory if needed.
func NewLocalStorage(dir, baseURL string) (*LocalStorage, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create upload directory %s: %w", dir, err)
	}
	return &LocalStorage{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Save writes the object through a temp file and an atomic rename.
func (s *LocalStorage) Save(_ context.Context, name, _ string, data []byte) (string, error) {
	name = filepath.Base(name)
	fullPath := filepath.Join(s.dir, name)
	tmpPath := fullPath + ".tmp"

	if err := os.WriteFile(tmpPath, data, 0o640); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}

	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to rename %s: %w", name, err)
	}

	return s.baseURL + "/" + name, nil
}

// Delete removes the file behind publicURL.
func (s *LocalStorage) Delete(_ context.Context, publicURL string) error {
	name, err := s.nameFromURL(publicURL)
	if err != nil {
		return err
	}

	err = os.Remove(filepath.Join(s.dir, name))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete %s: %w", name, err)
	}
	return nil
}

func (s *LocalStorage) nameFromURL(publicURL string) (string, error) {
	u, err := url.Parse(publicURL)
	if err != nil {
		return "", fmt.Errorf("invalid upload url %q: %w", publicURL, err)
	}

	dir, name := path.Split(u.Path)
	base, err := url.Parse(s.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base url %q: %w", s.baseURL, err)
	}
	if strings.TrimRight(dir, "/") != strings.TrimRight(base.Path, "/") || name == "" || name == "." || name == ".." {
		return "", fmt.Errorf("url %q does not belong to local storage", publicURL)
	}
	return name, nil
}
