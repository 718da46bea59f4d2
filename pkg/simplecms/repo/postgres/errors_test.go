package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/tendant/simple-cms/pkg/simplecms"
)

func TestHandlePostgresError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
		text   string
	}{
		{
			name:   "OrderCollision",
			err:    &pgconn.PgError{Code: "23505", TableName: "page_contents", ConstraintName: "page_contents_order_key"},
			target: simplecms.ErrConcurrencyConflict,
		},
		{
			name: "OtherUniqueViolation",
			err:  &pgconn.PgError{Code: "23505", TableName: "content_options", ConstraintName: "content_options_key_unique"},
			text: "duplicate entry",
		},
		{
			name:   "ForeignKey",
			err:    &pgconn.PgError{Code: "23503", ConstraintName: "page_contents_parent_id_fkey"},
			target: simplecms.ErrNotFound,
		},
		{
			name:   "SerializationFailure",
			err:    fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: "40001"}),
			target: simplecms.ErrConcurrencyConflict,
		},
		{
			name: "UndefinedTable",
			err:  &pgconn.PgError{Code: "42P01"},
			text: "migration required",
		},
		{
			name: "NoRows",
			err:  pgx.ErrNoRows,
			text: "record not found",
		},
		{
			name:   "Other",
			err:    errors.New("connection reset"),
			target: nil,
			text:   "connection reset",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := handlePostgresError("op", tt.err)
			if tt.target != nil {
				assert.ErrorIs(t, got, tt.target)
			} else {
				assert.NotErrorIs(t, got, simplecms.ErrConcurrencyConflict)
			}
			if tt.text != "" {
				assert.Contains(t, got.Error(), tt.text)
			}
		})
	}
}
