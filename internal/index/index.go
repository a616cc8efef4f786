// Package index turns one uploaded PDF into a searchable document handle.
package index

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pdfchat/internal/domain"
	"pdfchat/internal/vectorstore"
)

// ErrNoChunks is returned when a document yields no indexable text.
var ErrNoChunks = errors.New("document produced no text chunks")

// Extractor reads an uploaded file into pages of text.
type Extractor interface {
	Extract(name string, data []byte) (domain.Document, error)
}

// EmbedderFactory returns a fresh embedder; local embedders keep a
// vocabulary per document so instances are never shared.
type EmbedderFactory func(ctx context.Context) (domain.Embedder, error)

type Options struct {
	SummaryMaxSentences int
}

// Indexer builds a Handle per upload.
type Indexer struct {
	extractor   Extractor
	chunker     domain.Chunker
	newEmbedder EmbedderFactory
	newStore    vectorstore.Factory
	summarizer  domain.Summarizer
	opts        Options
	log         *zap.Logger
}

func NewIndexer(extractor Extractor, chunker domain.Chunker, newEmbedder EmbedderFactory, newStore vectorstore.Factory, summarizer domain.Summarizer, opts Options, log *zap.Logger) *Indexer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Indexer{
		extractor:   extractor,
		chunker:     chunker,
		newEmbedder: newEmbedder,
		newStore:    newStore,
		summarizer:  summarizer,
		opts:        opts,
		log:         log.Named("index"),
	}
}

// Index extracts, chunks, embeds and stores data. The returned handle owns
// its embedder and store.
func (ix *Indexer) Index(ctx context.Context, name string, data []byte) (*Handle, error) {
	start := time.Now()

	doc, err := ix.extractor.Extract(name, data)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", name, err)
	}
	chunks, err := ix.chunker.Chunk(doc)
	if err != nil {
		return nil, fmt.Errorf("chunk %s: %w", name, err)
	}
	if len(chunks) == 0 {
		return nil, ErrNoChunks
	}

	embedder, err := ix.newEmbedder(ctx)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	texts := make([]string, len(chunks))
	for i := range chunks {
		texts[i] = chunks[i].Text
	}
	if err := embedder.Prepare(ctx, texts); err != nil {
		return nil, fmt.Errorf("prepare embedder: %w", err)
	}
	vectors := make([][]float64, len(chunks))
	for i := range chunks {
		vec, err := embedder.Embed(ctx, chunks[i].Text)
		if err != nil {
			return nil, fmt.Errorf("embed chunk %s: %w", chunks[i].ChunkID, err)
		}
		vectors[i] = vec
	}

	// Identical uploads get separate storage so closing one handle never
	// touches another's vectors.
	key := StoreKey(doc.ID)
	store, err := ix.newStore(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("create vector store: %w", err)
	}
	if err := fill(ctx, store, chunks, vectors); err != nil {
		if rerr := release(context.WithoutCancel(ctx), store); rerr != nil {
			ix.log.Warn("releasing partial vector store", zap.String("store_key", key), zap.Error(rerr))
		}
		return nil, err
	}

	h := &Handle{
		ID:       doc.ID,
		Name:     doc.Name,
		Pages:    len(doc.Pages),
		Chunks:   len(chunks),
		StoreKey: key,
		embedder: embedder,
		store:    store,
		chunks:   chunks,
	}
	if ix.summarizer != nil {
		summary, err := ix.summarizer.Summarize(doc.Text(), ix.opts.SummaryMaxSentences)
		if err != nil {
			ix.log.Warn("summary failed", zap.String("document_id", doc.ID), zap.Error(err))
		}
		h.Summary = summary
	}

	ix.log.Info("document indexed",
		zap.String("document_id", doc.ID),
		zap.String("store_key", key),
		zap.String("name", name),
		zap.Int("pages", h.Pages),
		zap.Int("chunks", h.Chunks),
		zap.String("embedder", embedder.Name()),
		zap.Duration("elapsed", time.Since(start)),
	)
	return h, nil
}

// StoreKey names the storage for one indexing of documentID.
func StoreKey(documentID string) string {
	return documentID + "-" + uuid.NewString()
}

func fill(ctx context.Context, store domain.VectorStore, chunks []domain.Chunk, vectors [][]float64) error {
	if err := store.Init(ctx, len(vectors[0])); err != nil {
		return fmt.Errorf("init vector store: %w", err)
	}
	if err := store.Clear(ctx); err != nil {
		return fmt.Errorf("clear vector store: %w", err)
	}
	if err := store.Upsert(ctx, chunks, vectors); err != nil {
		return fmt.Errorf("store vectors: %w", err)
	}
	return nil
}
