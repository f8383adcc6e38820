package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/aurum-labs/aurum/internal/retry"
)

func TestIsRetriable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"serialization failure", &pgconn.PgError{Code: "40001"}, true},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, true},
		{"wrapped deadlock", fmt.Errorf("storage: x: %w", &pgconn.PgError{Code: "40P01"}), true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"plain error", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isRetriable(tt.err))
		})
	}
}

func TestWithRetry_OnlyRetriesTransientConflicts(t *testing.T) {
	db := &DB{
		logger: slog.New(slog.DiscardHandler),
		retry:  retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond},
	}

	calls := 0
	err := db.withRetry(context.Background(), "test", func(context.Context) error {
		calls++
		return &pgconn.PgError{Code: "23505"}
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls, "non-transient errors are not retried")

	calls = 0
	err = db.withRetry(context.Background(), "test", func(context.Context) error {
		calls++
		if calls < 3 {
			return &pgconn.PgError{Code: "40001"}
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}
