// Package store implements the PostgreSQL persistence layer. Each table gets
// a narrow store type constructed from the *sql.DB of database.Client; all
// SQL for the pipeline lives in this package.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound indicates the requested row does not exist.
var ErrNotFound = errors.New("not found")

// maxErrorLen bounds persisted error messages so oversized provider
// responses cannot bloat bookkeeping rows.
const maxErrorLen = 500

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func truncateError(msg string) string {
	if len(msg) <= maxErrorLen {
		return msg
	}
	return msg[:maxErrorLen]
}

// stringsJSON encodes a string slice for a JSONB column, mapping nil to [].
func stringsJSON(v []string) ([]byte, error) {
	if v == nil {
		v = []string{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal string list: %w", err)
	}
	return b, nil
}

// mapJSON encodes a map for a JSONB column, mapping nil to {}.
func mapJSON(v map[string]any) ([]byte, error) {
	if v == nil {
		v = map[string]any{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal map: %w", err)
	}
	return b, nil
}

// jsonValue encodes an arbitrary value for a nullable JSONB column.
func jsonValue(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal json value: %w", err)
	}
	return b, nil
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	return &v.Time
}

func float64Ptr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return &v.Float64
}
