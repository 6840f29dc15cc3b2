package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/poste-inventory/backend/internal/models"
)

// PosteRepository defines the interface for pole and photo data operations.
type PosteRepository interface {
	// Create inserts a pole and its photos in a single transaction.
	Create(ctx context.Context, poste *models.Poste) (*models.Poste, error)

	// GetByID retrieves a pole with its photos.
	GetByID(ctx context.Context, id string) (*models.Poste, error)

	// List retrieves a page of poles, newest first, with their photos.
	List(ctx context.Context, limit, offset int) ([]models.Poste, error)

	// Count returns the number of poles.
	Count(ctx context.Context) (int64, error)

	// UpdateLocation changes the coordinates of a pole.
	UpdateLocation(ctx context.Context, id string, lat, lon float64) (*models.Poste, error)
}

// PostgresPosteRepository implements PosteRepository using PostgreSQL.
type PostgresPosteRepository struct {
	db *Postgres
}

// NewPosteRepository creates a pole repository over the shared pool.
func NewPosteRepository(db *Postgres) PosteRepository {
	return &PostgresPosteRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

const posteColumns = `id, numero_identificacao, latitude, longitude, cidade, endereco, numero, cep,
	altura_poste, tipo_poste, estrutura_poste, tipo_braco, tamanho_braco, quantidade_pontos,
	tipo_lampada, potencia_lampada, tipo_reator, tipo_comando, tipo_rede, tipo_cabo,
	numero_fases, transformador, medicao, finalidade_instalacao, observacoes,
	usuario_id, created_at, updated_at`

const fotoColumns = `id, poste_id, url, tipo, especie, latitude, longitude,
	nome_original, tamanho, content_type, uploaded_at, capturada_em`

func scanPoste(row scanner) (*models.Poste, error) {
	var p models.Poste
	a := &p.Atributos
	err := row.Scan(
		&p.ID, &p.NumeroIdentificacao, &p.Latitude, &p.Longitude,
		&p.Cidade, &p.Endereco, &p.Numero, &p.Cep,
		&a.AlturaPoste, &a.TipoPoste, &a.EstruturaPoste, &a.TipoBraco, &a.TamanhoBraco, &a.QuantidadePontos,
		&a.TipoLampada, &a.PotenciaLampada, &a.TipoReator, &a.TipoComando, &a.TipoRede, &a.TipoCabo,
		&a.NumeroFases, &a.Transformador, &a.Medicao, &a.FinalidadeInstalacao, &a.Observacoes,
		&p.UsuarioID, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Fotos = []models.Foto{}
	return &p, nil
}

func scanFoto(row scanner) (*models.Foto, error) {
	var f models.Foto
	err := row.Scan(
		&f.ID, &f.PosteID, &f.URL, &f.Tipo, &f.Especie, &f.Latitude, &f.Longitude,
		&f.NomeOriginal, &f.Tamanho, &f.ContentType, &f.UploadedAt, &f.CapturadaEm,
	)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// Create creates a new pole and its photos.
func (r *PostgresPosteRepository) Create(ctx context.Context, poste *models.Poste) (*models.Poste, error) {
	now := time.Now().UTC()
	created := *poste
	created.ID = uuid.New().String()
	created.CreatedAt = now
	created.UpdatedAt = now
	created.Fotos = make([]models.Foto, len(poste.Fotos))

	tx, err := r.db.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", translate(err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	a := created.Atributos
	query := `
		INSERT INTO postes (` + posteColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28)
	`
	_, err = tx.Exec(ctx, query,
		created.ID, created.NumeroIdentificacao, created.Latitude, created.Longitude,
		created.Cidade, created.Endereco, created.Numero, created.Cep,
		a.AlturaPoste, a.TipoPoste, a.EstruturaPoste, a.TipoBraco, a.TamanhoBraco, a.QuantidadePontos,
		a.TipoLampada, a.PotenciaLampada, a.TipoReator, a.TipoComando, a.TipoRede, a.TipoCabo,
		a.NumeroFases, a.Transformador, a.Medicao, a.FinalidadeInstalacao, a.Observacoes,
		created.UsuarioID, created.CreatedAt, created.UpdatedAt,
	)
	if err != nil {
		r.db.logger.Error("Failed to create poste",
			zap.String("numero_identificacao", created.NumeroIdentificacao),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to create poste: %w", translate(err))
	}

	fotoQuery := `
		INSERT INTO fotos (` + fotoColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	for i, foto := range poste.Fotos {
		foto.ID = uuid.New().String()
		foto.PosteID = created.ID
		_, err := tx.Exec(ctx, fotoQuery,
			foto.ID, foto.PosteID, foto.URL, foto.Tipo, foto.Especie, foto.Latitude, foto.Longitude,
			foto.NomeOriginal, foto.Tamanho, foto.ContentType, foto.UploadedAt, foto.CapturadaEm,
		)
		if err != nil {
			r.db.logger.Error("Failed to create foto", zap.String("poste_id", created.ID), zap.Error(err))
			return nil, fmt.Errorf("failed to create foto: %w", translate(err))
		}
		created.Fotos[i] = foto
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit poste: %w", translate(err))
	}

	r.db.logger.Info("Created poste",
		zap.String("id", created.ID),
		zap.String("numero_identificacao", created.NumeroIdentificacao),
		zap.Int("fotos", len(created.Fotos)),
	)
	return &created, nil
}

// GetByID retrieves a pole by its ID.
func (r *PostgresPosteRepository) GetByID(ctx context.Context, id string) (*models.Poste, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, notFound()
	}

	query := `SELECT ` + posteColumns + ` FROM postes WHERE id = $1`
	poste, err := scanPoste(r.db.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get poste: %w", translate(err))
	}

	if err := r.attachFotos(ctx, []*models.Poste{poste}); err != nil {
		return nil, err
	}
	return poste, nil
}

// List retrieves a page of poles.
func (r *PostgresPosteRepository) List(ctx context.Context, limit, offset int) ([]models.Poste, error) {
	query := `
		SELECT ` + posteColumns + `
		FROM postes
		ORDER BY created_at DESC, id
		LIMIT $1 OFFSET $2
	`

	rows, err := r.db.pool.Query(ctx, query, limit, offset)
	if err != nil {
		r.db.logger.Error("Failed to list postes", zap.Error(err))
		return nil, fmt.Errorf("failed to list postes: %w", translate(err))
	}
	defer rows.Close()

	var page []*models.Poste
	for rows.Next() {
		poste, err := scanPoste(rows)
		if err != nil {
			r.db.logger.Error("Failed to scan poste row", zap.Error(err))
			return nil, fmt.Errorf("failed to scan poste: %w", translate(err))
		}
		page = append(page, poste)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate postes: %w", translate(err))
	}

	if err := r.attachFotos(ctx, page); err != nil {
		return nil, err
	}

	postes := make([]models.Poste, 0, len(page))
	for _, p := range page {
		postes = append(postes, *p)
	}
	return postes, nil
}

// attachFotos loads the photos of the given poles in one query.
func (r *PostgresPosteRepository) attachFotos(ctx context.Context, postes []*models.Poste) error {
	if len(postes) == 0 {
		return nil
	}

	byID := make(map[string]*models.Poste, len(postes))
	ids := make([]string, 0, len(postes))
	for _, p := range postes {
		byID[p.ID] = p
		ids = append(ids, p.ID)
	}

	query := `SELECT ` + fotoColumns + ` FROM fotos WHERE poste_id = ANY($1::uuid[]) ORDER BY uploaded_at, id`
	rows, err := r.db.pool.Query(ctx, query, ids)
	if err != nil {
		return fmt.Errorf("failed to load fotos: %w", translate(err))
	}

	fotos, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.Foto, error) {
		return scanFoto(row)
	})
	if err != nil {
		return fmt.Errorf("failed to scan fotos: %w", translate(err))
	}

	for _, f := range fotos {
		if p, ok := byID[f.PosteID]; ok {
			p.Fotos = append(p.Fotos, *f)
		}
	}
	return nil
}

// Count returns the number of poles.
func (r *PostgresPosteRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.pool.QueryRow(ctx, `SELECT COUNT(*) FROM postes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count postes: %w", translate(err))
	}
	return n, nil
}

// UpdateLocation updates the coordinates of an existing pole.
func (r *PostgresPosteRepository) UpdateLocation(ctx context.Context, id string, lat, lon float64) (*models.Poste, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, notFound()
	}

	query := `
		UPDATE postes
		SET latitude = $2, longitude = $3, updated_at = $4
		WHERE id = $1
		RETURNING ` + posteColumns

	poste, err := scanPoste(r.db.pool.QueryRow(ctx, query, id, lat, lon, time.Now().UTC()))
	if err != nil {
		r.db.logger.Error("Failed to update poste location", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to update poste location: %w", translate(err))
	}

	if err := r.attachFotos(ctx, []*models.Poste{poste}); err != nil {
		return nil, err
	}

	r.db.logger.Info("Updated poste location",
		zap.String("id", id),
		zap.Float64("latitude", lat),
		zap.Float64("longitude", lon),
	)
	return poste, nil
}
