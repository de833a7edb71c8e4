package edgar

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"finvisor/internal/metrics"
	"finvisor/pkg/errors"
	"finvisor/pkg/logger"
)

// FilingsDir is the directory name every download lands under
const FilingsDir = "sec-edgar-filings"

const downloadConcurrency = 4

// Downloaded is a filing saved to disk
type Downloaded struct {
	Filing Filing
	Path   string
	// Cached is true when the file already existed and was not fetched again
	Cached bool
}

// Downloader saves filings under {base}/sec-edgar-filings/{TICKER}/{FORM}/{accession}/
type Downloader struct {
	client  *Client
	baseDir string
	log     *logger.Logger
}

// NewDownloader creates a downloader writing below baseDir
func NewDownloader(client *Client, baseDir string) *Downloader {
	return &Downloader{
		client:  client,
		baseDir: baseDir,
		log:     logger.Get().With("component", "edgar_downloader"),
	}
}

// Dir is where filings of one ticker and form are stored
func (d *Downloader) Dir(ticker, form string) string {
	return filepath.Join(d.baseDir, FilingsDir, strings.ToUpper(ticker), formDir(form))
}

func formDir(form string) string {
	return strings.ReplaceAll(strings.ToUpper(form), "/", "-")
}

// Get downloads up to limit of the newest filings of a form for ticker.
// Files already on disk are reused.
func (d *Downloader) Get(ctx context.Context, form, ticker string, limit int) ([]Downloaded, error) {
	filings, err := d.client.RecentFilings(ctx, ticker, form, limit)
	if err != nil {
		return nil, err
	}
	if len(filings) == 0 {
		return nil, errors.Wrapf(errors.ErrNoFilings, "%s %s", strings.ToUpper(ticker), form)
	}

	out := make([]Downloaded, len(filings))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(downloadConcurrency)

	for i, f := range filings {
		g.Go(func() error {
			path := d.path(f)
			if info, err := os.Stat(path); err == nil && info.Size() > 0 {
				out[i] = Downloaded{Filing: f, Path: path, Cached: true}
				metrics.FilingsDownloaded.WithLabelValues("edgar", "cached").Inc()
				return nil
			}

			body, err := d.client.Download(gctx, f)
			if err != nil {
				metrics.FilingsDownloaded.WithLabelValues("edgar", "error").Inc()
				return errors.Wrapf(err, "download %s", f.AccessionNumber)
			}
			if err := writeFile(path, body); err != nil {
				return err
			}
			metrics.FilingsDownloaded.WithLabelValues("edgar", "success").Inc()
			out[i] = Downloaded{Filing: f, Path: path}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	d.log.Infow("Downloaded filings",
		"ticker", ticker,
		"form", form,
		"count", len(out),
	)
	return out, nil
}

func (d *Downloader) path(f Filing) string {
	ext := strings.ToLower(filepath.Ext(f.PrimaryDocument))
	if ext == "" {
		ext = ".htm"
	}
	return filepath.Join(d.Dir(f.Ticker, f.Form), f.AccessionNumber, "primary-document"+ext)
}

// writeFile writes through a temp file so readers never see partial documents
func writeFile(path string, body []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "failed to create filing directory")
	}
	tmp := path + ".part"
	if err := os.WriteFile(tmp, body, 0o644); err != nil {
		return errors.Wrap(err, "failed to write filing")
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Wrap(err, "failed to move filing into place")
	}
	return nil
}
