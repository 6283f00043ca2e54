package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/rshade/ecohabit/internal/habits"
)

func TestMapWriteErr(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantNil bool
		wantIs  error
	}{
		{name: "nil", err: nil, wantNil: true},
		{name: "unique violation", err: &pgconn.PgError{Code: uniqueViolation}, wantIs: habits.ErrAlreadyExists},
		{name: "wrapped unique violation", err: fmt.Errorf("exec: %w", &pgconn.PgError{Code: uniqueViolation}), wantIs: habits.ErrAlreadyExists},
		{name: "other pg error", err: &pgconn.PgError{Code: "23503"}},
		{name: "plain error", err: errors.New("boom")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapWriteErr("insert habit", tt.err)
			if tt.wantNil {
				assert.NoError(t, got)
				return
			}
			if tt.wantIs != nil {
				assert.ErrorIs(t, got, tt.wantIs)
				return
			}
			assert.ErrorIs(t, got, tt.err)
			assert.Contains(t, got.Error(), "insert habit")
		})
	}
}

func TestSchemaEmbedded(t *testing.T) {
	for _, table := range []string{"profiles", "habits", "challenges", "user_challenges"} {
		assert.Contains(t, schemaSQL, "CREATE TABLE IF NOT EXISTS "+table)
	}
}
