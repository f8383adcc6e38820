package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/aurum-labs/aurum/internal/retry"
)

// Conflicts between two messages of the same contact landing at once.
var retriableCodes = map[string]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
}

// isRetriable reports whether err is a transient conflict or a failure that
// happened before the statement reached the server.
func isRetriable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return retriableCodes[pgErr.Code]
	}
	return pgconn.SafeToRetry(err)
}

// withRetry runs fn under the DB's retry policy. Errors isRetriable rejects
// end the loop at once.
func (db *DB) withRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	p := db.retry
	p.OnRetry = func(err error, wait time.Duration) {
		db.logger.Debug("storage: retrying", "op", op, "wait", wait, "error", err)
	}
	return retry.Run(ctx, p, func(ctx context.Context) error {
		err := fn(ctx)
		if err != nil && !isRetriable(err) {
			return retry.Permanent(err)
		}
		return err
	})
}
