package database

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/poste-inventory/backend/internal/config"
	"github.com/poste-inventory/backend/internal/models"
)

// setupTestDB starts PostgreSQL in a container and returns a migrated pool.
func setupTestDB(t *testing.T) *Postgres {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("skipping integration test: TEST_INTEGRATION not set")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:16-alpine",
		postgres.WithDatabase("postes_test"),
		postgres.WithUsername("postes"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := NewPostgres(&config.Config{DatabaseURL: dsn}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(db.Close)

	return db
}

func newTestUser(t *testing.T, users UserRepository, email, role string) *models.User {
	t.Helper()
	u, err := users.Create(context.Background(), &models.User{
		Nome:      "Teste",
		Email:     email,
		SenhaHash: "$2a$10$hash",
		Role:      role,
	})
	require.NoError(t, err)
	return u
}

func TestUserRepository_Integration(t *testing.T) {
	db := setupTestDB(t)
	users := NewUserRepository(db)
	ctx := context.Background()

	admin := newTestUser(t, users, "admin@postes.dev", models.RoleAdmin)

	_, err := users.Create(ctx, &models.User{Nome: "Outro", Email: "admin@postes.dev", SenhaHash: "x", Role: models.RoleUsuario})
	assert.Equal(t, KindDuplicateKey, KindOf(err))

	got, err := users.GetByEmail(ctx, "admin@postes.dev")
	require.NoError(t, err)
	assert.Equal(t, admin.ID, got.ID)

	_, err = users.GetByID(ctx, "not-a-uuid")
	assert.Equal(t, KindNotFound, KindOf(err))

	nome := "Novo Nome"
	updated, err := users.Update(ctx, admin.ID, &models.UserChanges{Nome: &nome})
	require.NoError(t, err)
	assert.Equal(t, "Novo Nome", updated.Nome)
	assert.Equal(t, admin.Email, updated.Email)

	n, err := users.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, users.Delete(ctx, admin.ID))
	assert.Equal(t, KindNotFound, KindOf(users.Delete(ctx, admin.ID)))
}

func TestPosteRepository_Integration(t *testing.T) {
	db := setupTestDB(t)
	users := NewUserRepository(db)
	postes := NewPosteRepository(db)
	ctx := context.Background()

	owner := newTestUser(t, users, "cadastro@postes.dev", models.RoleCadastrador)
	altura := 9.0
	especie := "Ipê"

	created, err := postes.Create(ctx, &models.Poste{
		NumeroIdentificacao: "12345-6",
		Latitude:            -23.5,
		Longitude:           -46.6,
		Cidade:              "São Paulo",
		Endereco:            "Rua A",
		Numero:              "100",
		Atributos:           models.Atributos{AlturaPoste: &altura},
		UsuarioID:           &owner.ID,
		Fotos: []models.Foto{{
			URL:          "/uploads/a.jpg",
			Tipo:         models.FotoArvore,
			Especie:      &especie,
			Latitude:     -23.5,
			Longitude:    -46.6,
			NomeOriginal: "a.jpg",
			Tamanho:      10,
			ContentType:  "image/jpeg",
			UploadedAt:   time.Now().UTC(),
		}},
	})
	require.NoError(t, err)
	require.Len(t, created.Fotos, 1)

	t.Run("duplicate identification leaves first record unchanged", func(t *testing.T) {
		_, err := postes.Create(ctx, &models.Poste{
			NumeroIdentificacao: "12345-6",
			Latitude:            1,
			Longitude:           1,
			Cidade:              "Outra",
			Endereco:            "Rua B",
			Numero:              "1",
		})
		assert.Equal(t, KindDuplicateKey, KindOf(err))

		n, err := postes.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		got, err := postes.GetByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "São Paulo", got.Cidade)
		assert.Len(t, got.Fotos, 1)
	})

	t.Run("list includes photos", func(t *testing.T) {
		page, err := postes.List(ctx, 10, 0)
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, "Ipê", *page[0].Fotos[0].Especie)
		assert.Equal(t, 9.0, *page[0].AlturaPoste)
	})

	t.Run("update location", func(t *testing.T) {
		moved, err := postes.UpdateLocation(ctx, created.ID, 45.0, -73.0)
		require.NoError(t, err)
		assert.Equal(t, 45.0, moved.Latitude)

		_, err = postes.UpdateLocation(ctx, "00000000-0000-0000-0000-000000000000", 1, 1)
		assert.Equal(t, KindNotFound, KindOf(err))
	})

	t.Run("deleting the owner keeps the pole", func(t *testing.T) {
		require.NoError(t, users.Delete(ctx, owner.ID))

		got, err := postes.GetByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Nil(t, got.UsuarioID)
	})
}
