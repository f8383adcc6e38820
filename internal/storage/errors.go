package storage

import (
	"errors"

	"github.com/jackc/pgx/v5"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("storage: not found")

// ErrAlreadyRecorded is returned when a write-once field already has a value.
var ErrAlreadyRecorded = errors.New("storage: already recorded")

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
