package models

import "time"

// Ticker is a row of the canonical symbol table that scopes ingestion.
type Ticker struct {
	ID          int64     `json:"id"`
	Symbol      string    `json:"symbol"`
	CompanyName *string   `json:"company_name,omitempty"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}
