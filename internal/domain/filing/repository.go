package filing

import "context"

// Repository persists the filings index
type Repository interface {
	// Upsert inserts or refreshes a filing keyed by (provider, accession number)
	Upsert(ctx context.Context, f *IndexedFiling) error

	// ListByTicker returns indexed filings for a ticker, newest filing date first.
	// An empty form matches every form type.
	ListByTicker(ctx context.Context, ticker, form string, limit int) ([]*IndexedFiling, error)
}
