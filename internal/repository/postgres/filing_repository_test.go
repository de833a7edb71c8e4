package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finvisor/internal/domain/filing"
	"finvisor/internal/testsupport"
)

func TestFilingRepository_UpsertAndList(t *testing.T) {
	testDB := testsupport.NewTestPostgres(t)
	repo := NewFilingRepository(testDB.Tx())
	ctx := context.Background()

	older := &filing.IndexedFiling{
		Provider:        filing.ProviderEDGAR,
		AccessionNumber: "0000320193-23-000106",
		Ticker:          "aapl",
		FormType:        "10-K",
		FiledAt:         filing.ParseDate("2023-11-03"),
		LocalPath:       "/tmp/old.htm",
	}
	newer := &filing.IndexedFiling{
		Provider:        filing.ProviderEDGAR,
		AccessionNumber: "0000320193-24-000123",
		Ticker:          "AAPL",
		FormType:        "10-K",
		FiledAt:         filing.ParseDate("2024-11-01"),
		LocalPath:       "/tmp/new.htm",
	}
	require.NoError(t, repo.Upsert(ctx, older))
	require.NoError(t, repo.Upsert(ctx, newer))

	newer.LocalPath = "/tmp/moved.htm"
	require.NoError(t, repo.Upsert(ctx, newer))

	got, err := repo.ListByTicker(ctx, "AAPL", "10-K", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "0000320193-24-000123", got[0].AccessionNumber)
	assert.Equal(t, "/tmp/moved.htm", got[0].LocalPath)

	none, err := repo.ListByTicker(ctx, "AAPL", "8-K", 10)
	require.NoError(t, err)
	assert.Empty(t, none)

	all, err := repo.ListByTicker(ctx, "AAPL", "", 1)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
