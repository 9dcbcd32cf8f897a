package store

import (
	"context"
	"database/sql"
	"fmt"
)

// TickerStore reads and seeds the canonical symbol table that scopes
// ingestion.
type TickerStore struct {
	db *sql.DB
}

// NewTickerStore creates a TickerStore. The db parameter should be the
// *sql.DB from database.Client.DB().
func NewTickerStore(db *sql.DB) *TickerStore {
	return &TickerStore{db: db}
}

// Resolve intersects the requested symbols with the active rows of the
// ticker table, preserving request order, and reports which symbols are
// unknown. With no symbols requested it returns every active symbol.
func (s *TickerStore) Resolve(ctx context.Context, requested []string) (resolved, missing []string, err error) {
	if len(requested) == 0 {
		all, err := s.listActive(ctx)
		return all, nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol FROM tickers WHERE active AND symbol = ANY($1)`, requested)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve tickers: %w", err)
	}
	defer rows.Close()

	known := make(map[string]bool, len(requested))
	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, nil, fmt.Errorf("failed to scan ticker: %w", err)
		}
		known[symbol] = true
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to read tickers: %w", err)
	}

	for _, symbol := range requested {
		if known[symbol] {
			resolved = append(resolved, symbol)
		} else {
			missing = append(missing, symbol)
		}
	}
	return resolved, missing, nil
}

func (s *TickerStore) listActive(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol FROM tickers WHERE active ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active tickers: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, fmt.Errorf("failed to scan ticker: %w", err)
		}
		symbols = append(symbols, symbol)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read tickers: %w", err)
	}
	return symbols, nil
}

// Upsert inserts or reactivates a symbol. Used by seeding and tests.
func (s *TickerStore) Upsert(ctx context.Context, symbol string, companyName *string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tickers (symbol, company_name)
		VALUES ($1, $2)
		ON CONFLICT (symbol) DO UPDATE SET
			company_name = COALESCE(EXCLUDED.company_name, tickers.company_name),
			active = TRUE`,
		symbol, companyName)
	if err != nil {
		return fmt.Errorf("failed to upsert ticker: %w", err)
	}
	return nil
}
