package store

import (
	"fmt"

	"sprout/internal/services"
)

// ErrNotFound is returned when a lookup or update targets a row that does not
// exist. It matches services.ErrNotFound so callers can classify it.
var ErrNotFound = fmt.Errorf("record not found: %w", services.ErrNotFound)
