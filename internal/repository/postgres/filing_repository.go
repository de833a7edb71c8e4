package postgres

import (
	"context"
	"strings"
	"time"

	"finvisor/internal/domain/filing"
	"finvisor/pkg/errors"
)

var _ filing.Repository = (*FilingRepository)(nil)

// FilingRepository implements filing.Repository over sec_filings_index
type FilingRepository struct {
	db DBTX
}

// NewFilingRepository creates a new filings index repository
func NewFilingRepository(db DBTX) *FilingRepository {
	return &FilingRepository{db: db}
}

// Upsert inserts a filing or refreshes its location
func (r *FilingRepository) Upsert(ctx context.Context, f *filing.IndexedFiling) error {
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	f.Ticker = strings.ToUpper(f.Ticker)

	query := `
		INSERT INTO sec_filings_index (
			provider, accession_number, ticker, form_type, filed_at, url, local_path, created_at
		) VALUES (
			:provider, :accession_number, :ticker, :form_type, :filed_at, :url, :local_path, :created_at
		)
		ON CONFLICT (provider, accession_number) DO UPDATE SET
			url = EXCLUDED.url,
			local_path = EXCLUDED.local_path,
			filed_at = COALESCE(EXCLUDED.filed_at, sec_filings_index.filed_at)
	`

	if _, err := r.db.NamedExecContext(ctx, query, f); err != nil {
		return errors.Wrapf(err, "failed to index filing %s", f.AccessionNumber)
	}
	return nil
}

// ListByTicker returns indexed filings for a ticker
func (r *FilingRepository) ListByTicker(ctx context.Context, ticker, form string, limit int) ([]*filing.IndexedFiling, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT provider, accession_number, ticker, form_type, filed_at, url, local_path, created_at
		FROM sec_filings_index
		WHERE ticker = $1 AND ($2 = '' OR form_type = $2)
		ORDER BY filed_at DESC NULLS LAST, created_at DESC
		LIMIT $3
	`

	var filings []*filing.IndexedFiling
	if err := r.db.SelectContext(ctx, &filings, query, strings.ToUpper(ticker), form, limit); err != nil {
		return nil, errors.Wrap(err, "failed to list filings")
	}
	return filings, nil
}
