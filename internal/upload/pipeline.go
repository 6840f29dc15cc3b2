// Package upload accepts photo uploads from multipart requests, persists them
// to a storage backend and removes them again when the owning write fails.
package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rwcarlsen/goexif/exif"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/poste-inventory/backend/internal/apperr"
	"github.com/poste-inventory/backend/internal/models"
)

const (
	// FieldName is the only multipart field allowed to carry files.
	FieldName = "fotos"

	fieldTipo      = "tipoFoto"
	fieldEspecie   = "especieArvore"
	fieldLatitude  = "fotoLatitude"
	fieldLongitude = "fotoLongitude"

	filesKey = "upload.files"

	// multipartOverhead is allowed on top of the file payload for form fields and part headers.
	multipartOverhead = 1 << 20
)

var allowedTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
}

var (
	uploadedFiles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "postes_upload_files_total",
		Help: "Uploaded photo files by result.",
	}, []string{"result"})

	cleanedFiles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "postes_upload_cleanup_total",
		Help: "Compensating deletes of uploaded photo files by result.",
	}, []string{"result"})
)

// Config holds the upload limits.
type Config struct {
	MaxFileSize int64
	MaxFiles    int
	// ExposeErrors includes storage failure causes in 500 responses.
	ExposeErrors bool
}

// DefaultConfig returns 10 MiB per file and 10 files per request.
func DefaultConfig() Config {
	return Config{MaxFileSize: 10 << 20, MaxFiles: 10}
}

// File is a persisted upload annotated with its photo metadata.
type File struct {
	URL          string
	Tipo         string
	Especie      *string
	Latitude     *float64
	Longitude    *float64
	NomeOriginal string
	Size         int64
	ContentType  string
	UploadedAt   time.Time
	CapturedAt   *time.Time
}

// Foto converts f into a photo record, falling back to the pole
// coordinates when the file carries none.
func (f File) Foto(lat, lon float64) models.Foto {
	foto := models.Foto{
		URL:          f.URL,
		Tipo:         f.Tipo,
		Especie:      f.Especie,
		Latitude:     lat,
		Longitude:    lon,
		NomeOriginal: f.NomeOriginal,
		Tamanho:      f.Size,
		ContentType:  f.ContentType,
		UploadedAt:   f.UploadedAt,
		CapturadaEm:  f.CapturedAt,
	}
	if f.Latitude != nil && f.Longitude != nil {
		foto.Latitude = *f.Latitude
		foto.Longitude = *f.Longitude
	}
	return foto
}

// URLs returns the public URL of every file.
func URLs(files []File) []string {
	urls := make([]string, 0, len(files))
	for _, f := range files {
		urls = append(urls, f.URL)
	}
	return urls
}

// staged is an accepted file held in memory before it is persisted.
type staged struct {
	header      *multipart.FileHeader
	data        []byte
	contentType string
	capturedAt  *time.Time
}

// Pipeline filters, stages and persists photo uploads.
type Pipeline struct {
	cfg     Config
	storage Storage
	logger  *zap.Logger
}

// New creates an upload pipeline writing to storage.
func New(cfg Config, storage Storage, logger *zap.Logger) *Pipeline {
	def := DefaultConfig()
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = def.MaxFileSize
	}
	if cfg.MaxFiles <= 0 {
		cfg.MaxFiles = def.MaxFiles
	}
	return &Pipeline{cfg: cfg, storage: storage, logger: logger}
}

// Process validates every file in the form and persists the batch.
// Nothing is persisted unless every file passes the filter. If persisting
// one file fails, the files already written are cleaned up.
func (p *Pipeline) Process(ctx context.Context, form *multipart.Form) ([]File, error) {
	if form == nil {
		return []File{}, nil
	}

	for field := range form.File {
		if field != FieldName {
			return nil, apperr.Validation(apperr.CodeUnexpectedFileField,
				fmt.Sprintf("unexpected file field %q, files must be sent as %q", field, FieldName)).
				With("field", field)
		}
	}

	headers := form.File[FieldName]
	if len(headers) > p.cfg.MaxFiles {
		return nil, apperr.Validation(apperr.CodeTooManyFiles,
			fmt.Sprintf("at most %d files are allowed", p.cfg.MaxFiles)).With("max", p.cfg.MaxFiles)
	}

	batch := make([]staged, 0, len(headers))
	for _, fh := range headers {
		s, err := p.stage(fh)
		if err != nil {
			return nil, err
		}
		batch = append(batch, s)
	}

	files := p.annotate(batch, form.Value)
	if err := p.persist(ctx, batch, files); err != nil {
		return nil, err
	}
	return files, nil
}

func (p *Pipeline) stage(fh *multipart.FileHeader) (staged, error) {
	if fh.Size > p.cfg.MaxFileSize {
		return staged{}, p.tooLarge(fh.Filename)
	}

	declared, _, _ := mime.ParseMediaType(fh.Header.Get("Content-Type"))
	if _, ok := allowedTypes[declared]; !ok {
		return staged{}, invalidType(fh.Filename, fh.Header.Get("Content-Type"))
	}

	f, err := fh.Open()
	if err != nil {
		return staged{}, uploadError(fmt.Errorf("failed to open %s: %w", fh.Filename, err))
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, p.cfg.MaxFileSize+1))
	if err != nil {
		return staged{}, uploadError(fmt.Errorf("failed to read %s: %w", fh.Filename, err))
	}
	if int64(len(data)) > p.cfg.MaxFileSize {
		return staged{}, p.tooLarge(fh.Filename)
	}

	detected := mimetype.Detect(data).String()
	detected, _, _ = mime.ParseMediaType(detected)
	if _, ok := allowedTypes[detected]; !ok {
		return staged{}, invalidType(fh.Filename, detected)
	}

	return staged{
		header:      fh,
		data:        data,
		contentType: detected,
		capturedAt:  captureTime(data),
	}, nil
}

func (p *Pipeline) annotate(batch []staged, values map[string][]string) []File {
	tipos := ToSequence(values[fieldTipo])
	especies := ToSequence(values[fieldEspecie])
	lats := ToSequence(values[fieldLatitude])
	lons := ToSequence(values[fieldLongitude])

	now := time.Now().UTC()
	files := make([]File, len(batch))
	for i, s := range batch {
		f := File{
			Tipo:         models.NormalizeTipoFoto(at(tipos, i)),
			NomeOriginal: s.header.Filename,
			Size:         int64(len(s.data)),
			ContentType:  s.contentType,
			UploadedAt:   now,
			CapturedAt:   s.capturedAt,
		}
		if f.Tipo == models.FotoArvore {
			if especie := at(especies, i); especie != "" {
				f.Especie = &especie
			}
		}
		if lat, lon, ok := parsePair(at(lats, i), at(lons, i)); ok {
			f.Latitude, f.Longitude = &lat, &lon
		}
		files[i] = f
	}
	return files
}

func (p *Pipeline) persist(ctx context.Context, batch []staged, files []File) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := range batch {
		g.Go(func() error {
			s := batch[i]
			url, err := p.storage.Save(gctx, objectName(s.header.Filename, s.contentType), s.contentType, s.data)
			if err != nil {
				uploadedFiles.WithLabelValues("error").Inc()
				return fmt.Errorf("failed to persist %s: %w", s.header.Filename, err)
			}
			uploadedFiles.WithLabelValues("ok").Inc()
			files[i].URL = url
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		var written []string
		for _, f := range files {
			if f.URL != "" {
				written = append(written, f.URL)
			}
		}
		p.Cleanup(ctx, written)
		return uploadError(err)
	}
	return nil
}

// Cleanup deletes the objects behind urls. Failures are logged and counted,
// never returned.
func (p *Pipeline) Cleanup(ctx context.Context, urls []string) {
	if len(urls) == 0 {
		return
	}

	ctx = context.WithoutCancel(ctx)
	for _, u := range urls {
		if err := p.storage.Delete(ctx, u); err != nil {
			cleanedFiles.WithLabelValues("error").Inc()
			p.logger.Warn("Failed to clean up uploaded file", zap.String("url", u), zap.Error(err))
			continue
		}
		cleanedFiles.WithLabelValues("ok").Inc()
	}
	p.logger.Info("Cleaned up uploaded files", zap.Int("count", len(urls)))
}

// Middleware parses a multipart body, persists its files and stores them
// on the context for FilesFrom. Non-multipart requests pass through untouched.
func (p *Pipeline) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.ContentType() != gin.MIMEMultipartPOSTForm {
			c.Next()
			return
		}

		limit := p.cfg.MaxFileSize*int64(p.cfg.MaxFiles) + multipartOverhead
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)

		// The whole body fits in memory, so nothing spills to temp files.
		if err := c.Request.ParseMultipartForm(limit); err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) || errors.Is(err, multipart.ErrMessageTooLarge) {
				apperr.Respond(c, apperr.Validation(apperr.CodeFileTooLarge, "request body too large"), false)
				return
			}
			apperr.Respond(c, apperr.Validation(apperr.CodeValidation, "malformed multipart body"), false)
			return
		}
		form := c.Request.MultipartForm
		defer form.RemoveAll()

		files, err := p.Process(c.Request.Context(), form)
		if err != nil {
			p.logger.Warn("Rejected upload", zap.String("path", c.FullPath()), zap.Error(err))
			apperr.Respond(c, err, p.cfg.ExposeErrors)
			return
		}

		c.Set(filesKey, files)
		c.Next()
	}
}

// FilesFrom returns the files persisted by Middleware, or nil.
func FilesFrom(c *gin.Context) []File {
	v, ok := c.Get(filesKey)
	if !ok {
		return nil
	}
	files, _ := v.([]File)
	return files
}

func (p *Pipeline) tooLarge(name string) *apperr.Error {
	return apperr.Validation(apperr.CodeFileTooLarge,
		fmt.Sprintf("file %s exceeds the %d byte limit", name, p.cfg.MaxFileSize)).
		With("file", name).
		With("maxBytes", p.cfg.MaxFileSize)
}

func invalidType(name, contentType string) *apperr.Error {
	return apperr.Validation(apperr.CodeInvalidFileType,
		fmt.Sprintf("file %s has unsupported type %q, only JPEG and PNG are accepted", name, contentType)).
		With("file", name)
}

func uploadError(err error) *apperr.Error {
	return &apperr.Error{Status: http.StatusInternalServerError, Code: apperr.CodeUploadError, Message: "failed to upload files", Err: err}
}

// objectName returns a unique name keeping the original extension.
func objectName(original, contentType string) string {
	ext := strings.ToLower(filepath.Ext(original))
	if ext == "" || len(ext) > 5 {
		ext = allowedTypes[contentType]
	}
	return uuid.NewString() + ext
}

func parsePair(rawLat, rawLon string) (float64, float64, bool) {
	if rawLat == "" || rawLon == "" {
		return 0, 0, false
	}
	lat, err := strconv.ParseFloat(rawLat, 64)
	if err != nil {
		return 0, 0, false
	}
	lon, err := strconv.ParseFloat(rawLon, 64)
	if err != nil {
		return 0, 0, false
	}
	if !models.ValidCoordinates(lat, lon) {
		return 0, 0, false
	}
	return lat, lon, true
}

func captureTime(data []byte) *time.Time {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return nil
	}
	t, err := x.DateTime()
	if err != nil || t.IsZero() {
		return nil
	}
	t = t.UTC()
	return &t
}
