package knowledge

import (
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"finvisor/pkg/logger"
)

const (
	// DefaultEncoding is the tokenizer used for chunk sizing
	DefaultEncoding = "cl100k_base"

	// runesPerToken approximates token counts when no tokenizer is available
	runesPerToken = 4
)

// Chunker splits text into overlapping windows measured in tokens
type Chunker struct {
	size    int
	overlap int
	enc     *tiktoken.Tiktoken
}

// NewChunker builds a token-aware chunker. If the encoding cannot be loaded
// (for example without network access to fetch the BPE ranks) it falls back
// to rune windows of roughly the same size.
func NewChunker(size, overlap int) *Chunker {
	c := NewRuneChunker(size, overlap)

	enc, err := tiktoken.GetEncoding(DefaultEncoding)
	if err != nil {
		logger.Get().Warnw("tiktoken encoding unavailable, chunking by runes",
			"encoding", DefaultEncoding,
			"error", err,
		)
		return c
	}
	c.enc = enc
	return c
}

// NewRuneChunker builds a chunker that never loads a tokenizer
func NewRuneChunker(size, overlap int) *Chunker {
	if size <= 0 {
		size = 500
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	return &Chunker{size: size, overlap: overlap}
}

// Split returns non-empty chunks in document order
func (c *Chunker) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	if c.enc != nil {
		tokens := c.enc.Encode(text, nil, nil)
		return windows(tokens, c.size, c.overlap, validDecode(c.enc.Decode))
	}

	runes := []rune(text)
	return windows(runes, c.size*runesPerToken, c.overlap*runesPerToken, func(r []rune) string {
		return string(r)
	})
}

// validDecode wraps a token decoder. cl100k is byte-level BPE, so a window
// edge can fall inside a multi-byte rune; the partial bytes are dropped.
// With overlap the rune is kept whole by the neighbouring window.
func validDecode(decode func([]int) string) func([]int) string {
	return func(tokens []int) string {
		return strings.ToValidUTF8(decode(tokens), "")
	}
}

func windows[T any](items []T, size, overlap int, join func([]T) string) []string {
	step := size - overlap
	var out []string
	for start := 0; start < len(items); start += step {
		end := min(start+size, len(items))
		if chunk := strings.TrimSpace(join(items[start:end])); chunk != "" {
			out = append(out, chunk)
		}
		if end == len(items) {
			break
		}
	}
	return out
}
