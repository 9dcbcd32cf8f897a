// Package models contains the domain types persisted by the pipeline.
package models

import (
	"time"

	"github.com/google/uuid"
)

// RawStatus is the lifecycle state of a raw upstream payload.
type RawStatus string

// Raw item status constants.
const (
	RawStatusFetched    RawStatus = "fetched"
	RawStatusNormalized RawStatus = "normalized"
	RawStatusFailed     RawStatus = "failed"
)

// MaxRawAttempts bounds how many times a raw item is offered for normalization.
const MaxRawAttempts = 3

// RawItem is an upstream payload captured verbatim, keyed by (source, dedup_key).
type RawItem struct {
	RawID       uuid.UUID      `json:"raw_id"`
	Source      string         `json:"source"`
	TraceID     uuid.UUID      `json:"trace_id"`
	FetchedAt   time.Time      `json:"fetched_at"`
	PublishedAt *time.Time     `json:"published_at,omitempty"`
	URL         *string        `json:"url,omitempty"`
	Title       *string        `json:"title,omitempty"`
	DedupKey    string         `json:"dedup_key"`
	Payload     map[string]any `json:"raw_payload"`
	Status      RawStatus      `json:"status"`
	Attempts    int            `json:"attempts"`
	LastError   *string        `json:"last_error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}
