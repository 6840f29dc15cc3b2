package database

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestTranslate(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		kind       Kind
		constraint string
	}{
		{"no rows", pgx.ErrNoRows, KindNotFound, ""},
		{"unique violation", &pgconn.PgError{Code: "23505", ConstraintName: "postes_numero_identificacao_key"}, KindDuplicateKey, "postes_numero_identificacao_key"},
		{"foreign key violation", &pgconn.PgError{Code: "23503", ConstraintName: "postes_usuario_id_fkey"}, KindForeignKey, "postes_usuario_id_fkey"},
		{"other pg error", &pgconn.PgError{Code: "42P01"}, KindUnknown, ""},
		{"plain error", errors.New("conn closed"), KindUnknown, ""},
		{"wrapped pg error", fmt.Errorf("exec: %w", &pgconn.PgError{Code: "23505"}), KindDuplicateKey, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := translate(tt.err)

			assert.Equal(t, tt.kind, KindOf(err))
			var dbErr *Error
			if assert.ErrorAs(t, err, &dbErr) {
				assert.Equal(t, tt.constraint, dbErr.Constraint)
			}
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestTranslate_Nil(t *testing.T) {
	assert.NoError(t, translate(nil))
}

func TestTranslate_KeepsExistingKind(t *testing.T) {
	err := translate(notFound())

	assert.Equal(t, KindNotFound, KindOf(err))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestKindOf_SurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("failed to create poste: %w", translate(&pgconn.PgError{Code: "23505"}))

	assert.Equal(t, KindDuplicateKey, KindOf(err))
	assert.Equal(t, KindUnknown, KindOf(errors.New("other")))
	assert.Equal(t, KindUnknown, KindOf(nil))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "duplicate_key", KindDuplicateKey.String())
	assert.Equal(t, "not_found", KindNotFound.String())
	assert.Equal(t, "foreign_key", KindForeignKey.String())
	assert.Equal(t, "unknown", KindUnknown.String())
}

func TestMigrateURL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@h:5432/db?sslmode=disable", migrateURL("postgres://u:p@h:5432/db?sslmode=disable"))
	assert.Equal(t, "pgx5://u@h/db", migrateURL("postgresql://u@h/db"))
	assert.Equal(t, "pgx5://already", migrateURL("pgx5://already"))
}
