// Package assemblyai transcribes recorded audio with the AssemblyAI API.
package assemblyai

import (
	"context"
	"io"
	"time"

	"github.com/go-resty/resty/v2"

	"finvisor/internal/metrics"
	"finvisor/pkg/errors"
	"finvisor/pkg/logger"
)

const DefaultBaseURL = "https://api.assemblyai.com"

// Transcript states reported by the API
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusError      = "error"
)

type Config struct {
	APIKey       string
	BaseURL      string
	PollInterval time.Duration
	// Timeout bounds a whole Transcribe call including polling
	Timeout time.Duration
}

// Transcript is the result of a transcription job
type Transcript struct {
	ID         string  `json:"id"`
	Status     string  `json:"status"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Error      string  `json:"error,omitempty"`
}

type Client struct {
	http *resty.Client
	cfg  Config
	log  *logger.Logger
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.Wrap(errors.ErrUnauthorized, "assemblyai api key is not configured")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}

	return &Client{
		http: resty.New().
			SetBaseURL(cfg.BaseURL).
			SetHeader("Authorization", cfg.APIKey),
		cfg: cfg,
		log: logger.Get().With("component", "assemblyai"),
	}, nil
}

// Transcribe uploads audio, starts a transcript and waits for it to finish
func (c *Client) Transcribe(ctx context.Context, audio io.Reader) (*Transcript, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	uploadURL, err := c.Upload(ctx, audio)
	if err != nil {
		return nil, err
	}

	t, err := c.Submit(ctx, uploadURL)
	if err != nil {
		return nil, err
	}
	c.log.Debugw("Transcript submitted", "id", t.ID)

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		switch t.Status {
		case StatusCompleted:
			return t, nil
		case StatusError:
			return nil, errors.Wrapf(errors.ErrExternal, "transcription failed: %s", t.Error)
		}

		select {
		case <-ctx.Done():
			return nil, errors.Wrapf(errors.ErrTimeout, "transcript %s still %s", t.ID, t.Status)
		case <-ticker.C:
		}

		if t, err = c.Get(ctx, t.ID); err != nil {
			return nil, err
		}
	}
}

// Upload sends raw audio bytes and returns the private upload url
func (c *Client) Upload(ctx context.Context, audio io.Reader) (string, error) {
	var out struct {
		UploadURL string `json:"upload_url"`
	}
	resp, err := c.call(ctx, "upload", c.http.R().
		SetHeader("Content-Type", "application/octet-stream").
		SetBody(audio).
		SetResult(&out), resty.MethodPost, "/v2/upload")
	if err != nil {
		return "", err
	}
	if out.UploadURL == "" {
		return "", errors.Wrapf(errors.ErrExternal, "upload returned no url: %s", resp.String())
	}
	return out.UploadURL, nil
}

// Submit starts a transcript for an uploaded or public audio url
func (c *Client) Submit(ctx context.Context, audioURL string) (*Transcript, error) {
	var t Transcript
	_, err := c.call(ctx, "transcript", c.http.R().
		SetBody(map[string]string{"audio_url": audioURL}).
		SetResult(&t), resty.MethodPost, "/v2/transcript")
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Get returns the current state of a transcript
func (c *Client) Get(ctx context.Context, id string) (*Transcript, error) {
	var t Transcript
	_, err := c.call(ctx, "transcript_status", c.http.R().SetResult(&t), resty.MethodGet, "/v2/transcript/"+id)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) call(ctx context.Context, endpoint string, req *resty.Request, method, path string) (*resty.Response, error) {
	start := time.Now()
	resp, err := req.SetContext(ctx).Execute(method, path)
	if err == nil && resp.IsError() {
		if resp.StatusCode() == 401 {
			err = errors.Wrap(errors.ErrUnauthorized, "assemblyai rejected the api key")
		} else {
			err = errors.Wrapf(errors.ErrExternal, "assemblyai %s returned %d: %s", endpoint, resp.StatusCode(), resp.String())
		}
	}
	metrics.RecordExternalAPICall("assemblyai", endpoint, time.Since(start), err)
	if err != nil {
		return nil, errors.Wrapf(err, "assemblyai %s", endpoint)
	}
	return resp, nil
}
