package assemblyai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finvisor/pkg/errors"
)

func fakeAssembly(t *testing.T, finalStatus string) *httptest.Server {
	var polls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v2/upload", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "RIFF....", string(body))
		_, _ = w.Write([]byte(`{"upload_url":"https://cdn.assemblyai.com/upload/1"}`))
	})
	mux.HandleFunc("POST /v2/transcript", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "https://cdn.assemblyai.com/upload/1", req["audio_url"])
		_, _ = w.Write([]byte(`{"id":"tr_1","status":"queued"}`))
	})
	mux.HandleFunc("GET /v2/transcript/tr_1", func(w http.ResponseWriter, r *http.Request) {
		if polls.Add(1) < 2 {
			_, _ = w.Write([]byte(`{"id":"tr_1","status":"processing"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(Transcript{ID: "tr_1", Status: finalStatus, Text: "What is Apple's revenue?", Error: "bad audio"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestTranscribe(t *testing.T) {
	srv := fakeAssembly(t, StatusCompleted)
	c, err := NewClient(Config{APIKey: "key", BaseURL: srv.URL, PollInterval: 5 * time.Millisecond})
	require.NoError(t, err)

	tr, err := c.Transcribe(context.Background(), strings.NewReader("RIFF...."))
	require.NoError(t, err)
	assert.Equal(t, "What is Apple's revenue?", tr.Text)
}

func TestTranscribeFailure(t *testing.T) {
	srv := fakeAssembly(t, StatusError)
	c, err := NewClient(Config{APIKey: "key", BaseURL: srv.URL, PollInterval: 5 * time.Millisecond})
	require.NoError(t, err)

	_, err = c.Transcribe(context.Background(), strings.NewReader("RIFF...."))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrExternal))
	assert.Contains(t, err.Error(), "bad audio")
}

func TestTranscribeTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/upload":
			_, _ = w.Write([]byte(`{"upload_url":"u"}`))
		default:
			_, _ = w.Write([]byte(`{"id":"tr_2","status":"processing"}`))
		}
	}))
	defer srv.Close()

	c, err := NewClient(Config{APIKey: "key", BaseURL: srv.URL, PollInterval: 5 * time.Millisecond, Timeout: 50 * time.Millisecond})
	require.NoError(t, err)

	_, err = c.Transcribe(context.Background(), strings.NewReader("x"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrTimeout) || errors.Is(err, context.DeadlineExceeded))
}

func TestNewClientRequiresKey(t *testing.T) {
	_, err := NewClient(Config{})
	assert.True(t, errors.Is(err, errors.ErrUnauthorized))
}
