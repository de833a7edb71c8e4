// Package knowledge loads document directories into a vector store and searches them.
package knowledge

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	kdomain "finvisor/internal/domain/knowledge"
	"finvisor/internal/metrics"
	"finvisor/pkg/errors"
	"finvisor/pkg/logger"
)

const (
	DefaultLimit     = 5
	defaultBatchSize = 64
)

// Embedder produces vectors for chunks and queries
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
	GenerateBatchEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// Config describes a text knowledge base over one directory
type Config struct {
	Path         string
	Collection   string
	Store        kdomain.VectorStore
	Embedder     Embedder
	Chunker      *Chunker
	SearchType   kdomain.SearchType
	DefaultLimit int
	BatchSize    int
	// Metadata is attached to every chunk (ticker, form type)
	Metadata map[string]string
}

// TextKnowledgeBase indexes every readable document under Path
type TextKnowledgeBase struct {
	cfg    Config
	log    *logger.Logger
	loaded atomic.Bool
}

// NewTextKnowledgeBase validates the config and fills defaults
func NewTextKnowledgeBase(cfg Config) (*TextKnowledgeBase, error) {
	if cfg.Store == nil {
		return nil, errors.NewValidationError("store", "is required", nil)
	}
	if cfg.Embedder == nil {
		return nil, errors.NewValidationError("embedder", "is required", nil)
	}
	if cfg.Collection == "" {
		return nil, errors.NewValidationError("collection", "is required", nil)
	}
	if cfg.Chunker == nil {
		cfg.Chunker = NewChunker(500, 50)
	}
	if cfg.SearchType == "" {
		cfg.SearchType = kdomain.SearchHybrid
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = DefaultLimit
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}

	return &TextKnowledgeBase{
		cfg: cfg,
		log: logger.Get().With("component", "knowledge_base", "collection", cfg.Collection),
	}, nil
}

// Collection returns the vector store collection name
func (kb *TextKnowledgeBase) Collection() string {
	return kb.cfg.Collection
}

// Load reads, chunks, embeds and stores every supported document under Path.
// With Upsert, chunks already stored are skipped; without it each document's
// previous chunks are replaced.
func (kb *TextKnowledgeBase) Load(ctx context.Context, opts kdomain.LoadOptions) (kdomain.LoadStats, error) {
	var stats kdomain.LoadStats

	files, err := kb.files()
	if err != nil {
		return stats, err
	}

	if opts.Recreate {
		if err := kb.cfg.Store.Drop(ctx, kb.cfg.Collection); err != nil {
			return stats, err
		}
	}

	var pending []kdomain.Chunk
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		n, err := kb.store(ctx, pending)
		stats.Chunks += n
		pending = pending[:0]
		return err
	}

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		doc, err := kb.readDocument(path)
		if err != nil {
			kb.log.Warnw("Skipping unreadable document", "path", path, "error", err)
			continue
		}

		chunks := kb.chunk(doc)
		if len(chunks) == 0 {
			continue
		}
		stats.Documents++

		if opts.Upsert {
			chunks, err = kb.withoutStored(ctx, chunks, &stats)
			if err != nil {
				return stats, err
			}
		} else if err := kb.cfg.Store.DeleteBySource(ctx, kb.cfg.Collection, doc.Source); err != nil {
			return stats, err
		}

		for _, c := range chunks {
			pending = append(pending, c)
			if len(pending) >= kb.cfg.BatchSize {
				if err := flush(); err != nil {
					return stats, err
				}
			}
		}
	}

	if err := flush(); err != nil {
		return stats, err
	}

	kb.loaded.Store(true)
	kb.log.Infow("Knowledge base loaded",
		"path", kb.cfg.Path,
		"documents", stats.Documents,
		"chunks", stats.Chunks,
		"skipped", stats.Skipped,
	)
	return stats, nil
}

// Loaded reports whether Load succeeded in this process or the collection already has chunks
func (kb *TextKnowledgeBase) Loaded(ctx context.Context) (bool, error) {
	if kb.loaded.Load() {
		return true, nil
	}
	return kb.cfg.Store.Exists(ctx, kb.cfg.Collection)
}

// Search finds the chunks most relevant to query
func (kb *TextKnowledgeBase) Search(ctx context.Context, query string, limit int) (results []kdomain.SearchResult, err error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.NewValidationError("query", "must not be empty", query)
	}
	if limit <= 0 {
		limit = kb.cfg.DefaultLimit
	}

	start := time.Now()
	defer func() {
		metrics.RecordKnowledgeSearch(kb.cfg.Collection, string(kb.cfg.SearchType), time.Since(start), err)
	}()

	var embedding []float32
	if kb.cfg.SearchType != kdomain.SearchKeyword {
		embedding, err = kb.cfg.Embedder.GenerateEmbedding(ctx, query)
		if err != nil {
			return nil, errors.Wrap(err, "failed to embed query")
		}
	}

	return kb.cfg.Store.Search(ctx, kb.cfg.Collection, query, embedding, limit, kb.cfg.SearchType)
}

func (kb *TextKnowledgeBase) files() ([]string, error) {
	info, err := os.Stat(kb.cfg.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(errors.ErrNotFound, "knowledge path %s", kb.cfg.Path)
		}
		return nil, errors.Wrapf(err, "failed to stat %s", kb.cfg.Path)
	}
	if !info.IsDir() {
		return []string{kb.cfg.Path}, nil
	}

	var files []string
	err = filepath.WalkDir(kb.cfg.Path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && Supported(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to walk %s", kb.cfg.Path)
	}
	sort.Strings(files)
	return files, nil
}

func (kb *TextKnowledgeBase) readDocument(path string) (kdomain.Document, error) {
	text, err := ReadFile(path)
	if err != nil {
		return kdomain.Document{}, err
	}

	id := path
	if rel, err := filepath.Rel(kb.cfg.Path, path); err == nil && rel != "." {
		id = filepath.ToSlash(rel)
	}

	return kdomain.Document{
		ID:       id,
		Name:     strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Source:   path,
		Content:  text,
		Metadata: kb.cfg.Metadata,
	}, nil
}

func (kb *TextKnowledgeBase) chunk(doc kdomain.Document) []kdomain.Chunk {
	parts := kb.cfg.Chunker.Split(doc.Content)
	chunks := make([]kdomain.Chunk, 0, len(parts))
	for i, part := range parts {
		md := make(map[string]string, len(doc.Metadata))
		for k, v := range doc.Metadata {
			md[k] = v
		}
		chunks = append(chunks, kdomain.Chunk{
			ID:          uuid.New(),
			Collection:  kb.cfg.Collection,
			DocumentID:  doc.ID,
			Name:        doc.Name,
			Source:      doc.Source,
			Content:     part,
			ContentHash: kdomain.ContentHash(doc.Source, part),
			Index:       i,
			Metadata:    md,
		})
	}
	return chunks
}

func (kb *TextKnowledgeBase) withoutStored(ctx context.Context, chunks []kdomain.Chunk, stats *kdomain.LoadStats) ([]kdomain.Chunk, error) {
	hashes := make([]string, len(chunks))
	for i, c := range chunks {
		hashes[i] = c.ContentHash
	}

	stored, err := kb.cfg.Store.HasHashes(ctx, kb.cfg.Collection, hashes)
	if err != nil {
		return nil, err
	}

	fresh := chunks[:0]
	for _, c := range chunks {
		if stored[c.ContentHash] {
			stats.Skipped++
			continue
		}
		fresh = append(fresh, c)
	}
	return fresh, nil
}

func (kb *TextKnowledgeBase) store(ctx context.Context, chunks []kdomain.Chunk) (int, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	vectors, err := kb.cfg.Embedder.GenerateBatchEmbeddings(ctx, texts)
	if err != nil {
		return 0, errors.Wrap(err, "failed to embed chunks")
	}
	if len(vectors) != len(chunks) {
		return 0, errors.Wrapf(errors.ErrExternal, "embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}
	for i := range chunks {
		chunks[i].Embedding = vectors[i]
	}

	n, err := kb.cfg.Store.Upsert(ctx, kb.cfg.Collection, chunks)
	if err != nil {
		return n, err
	}
	metrics.ChunksStored.WithLabelValues(kb.cfg.Collection).Add(float64(n))
	return n, nil
}

// Factory builds knowledge bases that share one store and collection
// but read from different directories
type Factory struct {
	Store        kdomain.VectorStore
	Embedder     Embedder
	Chunker      *Chunker
	Collection   string
	SearchType   kdomain.SearchType
	DefaultLimit int
	BatchSize    int
}

// Scoped returns a factory over the collection of one provider, so a
// provider's search never sees chunks another provider loaded
func (f Factory) Scoped(provider string) Factory {
	if f.Collection == "" {
		f.Collection = provider
	} else {
		f.Collection += "_" + provider
	}
	return f
}

// New returns a knowledge base over path
func (f Factory) New(path string, metadata map[string]string) (*TextKnowledgeBase, error) {
	return NewTextKnowledgeBase(Config{
		Path:         path,
		Collection:   f.Collection,
		Store:        f.Store,
		Embedder:     f.Embedder,
		Chunker:      f.Chunker,
		SearchType:   f.SearchType,
		DefaultLimit: f.DefaultLimit,
		BatchSize:    f.BatchSize,
		Metadata:     metadata,
	})
}
