package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"finvisor/internal/bootstrap"
	"finvisor/internal/services/filings"
)

var ingestFlags struct {
	source     string
	filingType string
	limit      int
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <ticker>",
	Short: "Download filings for a ticker and load them into the knowledge base",
	Long: `Runs one ingestion job in the foreground.

Examples:
  finvisor ingest AAPL
  finvisor ingest MSFT --type 10-Q --limit 4
  finvisor ingest NVDA --source finnhub`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestFlags.source, "source", string(filings.SourceEDGAR), "filings provider: edgar or finnhub")
	ingestCmd.Flags().StringVar(&ingestFlags.filingType, "type", "", "EDGAR form type (default 10-K)")
	ingestCmd.Flags().IntVar(&ingestFlags.limit, "limit", 0, "number of EDGAR filings to fetch (default 3)")
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := bootstrap.NewContainer()
	c.MustInitCore()
	defer c.Shutdown()

	job := filings.IngestJob{
		Source:     filings.Source(ingestFlags.source),
		Ticker:     args[0],
		FilingType: ingestFlags.filingType,
		Limit:      ingestFlags.limit,
	}
	if err := job.Normalize(); err != nil {
		return err
	}

	result, err := c.Services.Ingestor.Ingest(ctx, job)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, result.Message)
	fmt.Fprintf(out, "  documents: %s\n", humanize.Comma(int64(result.Stats.Documents)))
	fmt.Fprintf(out, "  chunks:    %s\n", humanize.Comma(int64(result.Stats.Chunks)))
	fmt.Fprintf(out, "  took:      %s\n", result.FinishedAt.Sub(job.RequestedAt).Round(time.Millisecond))
	return nil
}
