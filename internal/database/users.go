package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/poste-inventory/backend/internal/models"
)

// UserRepository defines the interface for user data operations.
type UserRepository interface {
	// Create inserts a user and returns it with ID and timestamps set.
	Create(ctx context.Context, user *models.User) (*models.User, error)

	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id string) (*models.User, error)

	// GetByEmail retrieves a user by email, used by login.
	GetByEmail(ctx context.Context, email string) (*models.User, error)

	// List retrieves all users ordered by name.
	List(ctx context.Context) ([]models.User, error)

	// Count returns the number of users.
	Count(ctx context.Context) (int64, error)

	// Update applies non-nil changes to a user.
	Update(ctx context.Context, id string, changes *models.UserChanges) (*models.User, error)

	// Delete removes a user by ID.
	Delete(ctx context.Context, id string) error
}

// PostgresUserRepository implements UserRepository using PostgreSQL.
type PostgresUserRepository struct {
	db *Postgres
}

// NewUserRepository creates a user repository over the shared pool.
func NewUserRepository(db *Postgres) UserRepository {
	return &PostgresUserRepository{db: db}
}

const userColumns = `id, nome, email, senha_hash, role, created_at, updated_at`

func scanUser(row scanner) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Nome, &u.Email, &u.SenhaHash, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Create creates a new user.
func (r *PostgresUserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	now := time.Now().UTC()
	created := *user
	created.ID = uuid.New().String()
	created.CreatedAt = now
	created.UpdatedAt = now

	query := `
		INSERT INTO usuarios (id, nome, email, senha_hash, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.pool.Exec(ctx, query,
		created.ID,
		created.Nome,
		created.Email,
		created.SenhaHash,
		created.Role,
		created.CreatedAt,
		created.UpdatedAt,
	)
	if err != nil {
		r.db.logger.Error("Failed to create user", zap.String("email", user.Email), zap.Error(err))
		return nil, fmt.Errorf("failed to create user: %w", translate(err))
	}

	r.db.logger.Info("Created user", zap.String("id", created.ID), zap.String("role", created.Role))
	return &created, nil
}

// GetByID retrieves a user by its ID.
func (r *PostgresUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, notFound()
	}

	query := `SELECT ` + userColumns + ` FROM usuarios WHERE id = $1`

	user, err := scanUser(r.db.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", translate(err))
	}
	return user, nil
}

// GetByEmail retrieves a user by email.
func (r *PostgresUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM usuarios WHERE email = $1`

	user, err := scanUser(r.db.pool.QueryRow(ctx, query, email))
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", translate(err))
	}
	return user, nil
}

// List retrieves all users.
func (r *PostgresUserRepository) List(ctx context.Context) ([]models.User, error) {
	query := `SELECT ` + userColumns + ` FROM usuarios ORDER BY nome`

	rows, err := r.db.pool.Query(ctx, query)
	if err != nil {
		r.db.logger.Error("Failed to list users", zap.Error(err))
		return nil, fmt.Errorf("failed to list users: %w", translate(err))
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			r.db.logger.Error("Failed to scan user row", zap.Error(err))
			return nil, fmt.Errorf("failed to scan user: %w", translate(err))
		}
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", translate(err))
	}

	return users, nil
}

// Count returns the number of users.
func (r *PostgresUserRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.pool.QueryRow(ctx, `SELECT COUNT(*) FROM usuarios`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", translate(err))
	}
	return n, nil
}

// Update updates an existing user.
func (r *PostgresUserRepository) Update(ctx context.Context, id string, changes *models.UserChanges) (*models.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, notFound()
	}

	query := `
		UPDATE usuarios
		SET nome = COALESCE($2, nome),
			email = COALESCE($3, email),
			senha_hash = COALESCE($4, senha_hash),
			role = COALESCE($5, role),
			updated_at = $6
		WHERE id = $1
		RETURNING ` + userColumns

	user, err := scanUser(r.db.pool.QueryRow(ctx, query,
		id,
		changes.Nome,
		changes.Email,
		changes.SenhaHash,
		changes.Role,
		time.Now().UTC(),
	))
	if err != nil {
		r.db.logger.Error("Failed to update user", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to update user: %w", translate(err))
	}

	r.db.logger.Info("Updated user", zap.String("id", id))
	return user, nil
}

// Delete removes a user by its ID.
func (r *PostgresUserRepository) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return notFound()
	}

	result, err := r.db.pool.Exec(ctx, `DELETE FROM usuarios WHERE id = $1`, id)
	if err != nil {
		r.db.logger.Error("Failed to delete user", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to delete user: %w", translate(err))
	}

	if result.RowsAffected() == 0 {
		return notFound()
	}

	r.db.logger.Info("Deleted user", zap.String("id", id))
	return nil
}
