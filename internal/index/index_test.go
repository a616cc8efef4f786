package index

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfchat/internal/chunker"
	"pdfchat/internal/domain"
	"pdfchat/internal/embedding/tfidf"
	"pdfchat/internal/summarizer"
	"pdfchat/internal/vectorstore/memory"
)

type fakeExtractor struct {
	doc domain.Document
	err error
}

func (f fakeExtractor) Extract(name string, _ []byte) (domain.Document, error) {
	if f.err != nil {
		return domain.Document{}, f.err
	}
	d := f.doc
	d.Name = name
	return d, nil
}

var policyDoc = domain.Document{
	ID: "doc1",
	Pages: []domain.Page{
		{Number: 1, Text: "Refunds are issued within thirty days of purchase. Shipping is free for members."},
		{Number: 2, Text: "Support is open on weekdays. What matters most is the receipt."},
	},
}

func newTestIndexer(ex Extractor) *Indexer {
	return NewIndexer(
		ex,
		chunker.NewSentenceChunker(1, 0),
		func(context.Context) (domain.Embedder, error) { return tfidf.NewEmbedder(), nil },
		memory.Factory,
		summarizer.NewFrequencySummarizer(),
		Options{SummaryMaxSentences: 1},
		nil,
	)
}

func TestIndexBuildsHandle(t *testing.T) {
	ctx := context.Background()
	h, err := newTestIndexer(fakeExtractor{doc: policyDoc}).Index(ctx, "policy.pdf", []byte("x"))
	require.NoError(t, err)

	assert.Equal(t, "doc1", h.ID)
	assert.Equal(t, "policy.pdf", h.Name)
	assert.Equal(t, 2, h.Pages)
	assert.Equal(t, 4, h.Chunks)
	assert.NotEmpty(t, h.Summary)

	res, err := h.Retrieve(ctx, "refund purchase", 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Contains(t, res[0].Chunk.Text, "Refunds are issued")
	assert.Equal(t, 1, res[0].Chunk.Page)
}

func TestRetrieveFallsBackToLexicalRanking(t *testing.T) {
	ctx := context.Background()
	h, err := newTestIndexer(fakeExtractor{doc: policyDoc}).Index(ctx, "policy.pdf", []byte("x"))
	require.NoError(t, err)

	// "what" is a stopword for the embedder, so the query embeds to zero.
	res, err := h.Retrieve(ctx, "what", 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Contains(t, res[0].Chunk.Text, "What matters most")
	assert.Greater(t, res[0].Score, 0.0)
}

func TestIndexPropagatesExtractorErrors(t *testing.T) {
	boom := errors.New("not a pdf")
	_, err := newTestIndexer(fakeExtractor{err: boom}).Index(context.Background(), "x.pdf", []byte("x"))
	assert.ErrorIs(t, err, boom)
}

func TestIndexRejectsDocumentsWithoutChunks(t *testing.T) {
	empty := domain.Document{ID: "e", Pages: []domain.Page{{Number: 1, Text: "   "}}}
	_, err := newTestIndexer(fakeExtractor{doc: empty}).Index(context.Background(), "x.pdf", []byte("x"))
	assert.ErrorIs(t, err, ErrNoChunks)
}

func TestHandleCloseClearsStore(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStorage()
	ix := newTestIndexer(fakeExtractor{doc: policyDoc})
	ix.newStore = func(context.Context, string) (domain.VectorStore, error) { return store, nil }

	h, err := ix.Index(ctx, "policy.pdf", []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, 4, store.Len())

	require.NoError(t, h.Close(ctx))
	assert.Equal(t, 0, store.Len())
}

// sharedBackend keeps stores by key the way a vector database keeps
// collections: the same key always reaches the same data.
type sharedBackend struct {
	mu     sync.Mutex
	stores map[string]*memory.Storage
	keys   []string
}

func newSharedBackend() *sharedBackend {
	return &sharedBackend{stores: map[string]*memory.Storage{}}
}

func (b *sharedBackend) factory(_ context.Context, key string) (domain.VectorStore, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.keys = append(b.keys, key)
	if _, ok := b.stores[key]; !ok {
		b.stores[key] = memory.NewStorage()
	}
	return &collection{backend: b, key: key}, nil
}

func (b *sharedBackend) get(key string) (*memory.Storage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.stores[key]
	if !ok {
		return nil, fmt.Errorf("collection %s not found", key)
	}
	return st, nil
}

type collection struct {
	backend   *sharedBackend
	key       string
	upsertErr error
}

func (c *collection) Init(ctx context.Context, dimension int) error {
	st, err := c.backend.get(c.key)
	if err != nil {
		return err
	}
	return st.Init(ctx, dimension)
}

func (c *collection) Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float64) error {
	if c.upsertErr != nil {
		return c.upsertErr
	}
	st, err := c.backend.get(c.key)
	if err != nil {
		return err
	}
	return st.Upsert(ctx, chunks, vectors)
}

func (c *collection) Search(ctx context.Context, vector []float64, topK int) ([]domain.SearchResult, error) {
	st, err := c.backend.get(c.key)
	if err != nil {
		return nil, err
	}
	return st.Search(ctx, vector, topK)
}

func (c *collection) Clear(ctx context.Context) error {
	st, err := c.backend.get(c.key)
	if err != nil {
		return err
	}
	return st.Clear(ctx)
}

func (c *collection) Drop(context.Context) error {
	c.backend.mu.Lock()
	defer c.backend.mu.Unlock()
	delete(c.backend.stores, c.key)
	return nil
}

func TestIdenticalUploadsGetSeparateStorage(t *testing.T) {
	ctx := context.Background()
	backend := newSharedBackend()
	ix := newTestIndexer(fakeExtractor{doc: policyDoc})
	ix.newStore = backend.factory

	first, err := ix.Index(ctx, "policy.pdf", []byte("x"))
	require.NoError(t, err)
	second, err := ix.Index(ctx, "policy.pdf", []byte("x"))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.NotEqual(t, first.StoreKey, second.StoreKey)
	assert.True(t, strings.HasPrefix(first.StoreKey, "doc1-"))

	require.NoError(t, first.Close(ctx))

	res, err := second.Retrieve(ctx, "refund purchase", 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Contains(t, res[0].Chunk.Text, "Refunds are issued")

	_, err = first.Retrieve(ctx, "refund purchase", 1)
	assert.Error(t, err)
}

func TestReindexingThenClosingOldHandleKeepsNewOne(t *testing.T) {
	ctx := context.Background()
	backend := newSharedBackend()
	ix := newTestIndexer(fakeExtractor{doc: policyDoc})
	ix.newStore = backend.factory

	old, err := ix.Index(ctx, "policy.pdf", []byte("x"))
	require.NoError(t, err)
	fresh, err := ix.Index(ctx, "policy.pdf", []byte("x"))
	require.NoError(t, err)
	require.NoError(t, old.Close(ctx))

	res, err := fresh.Retrieve(ctx, "support weekdays", 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Contains(t, res[0].Chunk.Text, "Support is open")
}

func TestIndexReleasesStoreWhenStoringFails(t *testing.T) {
	ctx := context.Background()
	backend := newSharedBackend()
	boom := errors.New("disk full")
	ix := newTestIndexer(fakeExtractor{doc: policyDoc})
	ix.newStore = func(ctx context.Context, key string) (domain.VectorStore, error) {
		vs, err := backend.factory(ctx, key)
		if err != nil {
			return nil, err
		}
		vs.(*collection).upsertErr = boom
		return vs, nil
	}

	_, err := ix.Index(ctx, "policy.pdf", []byte("x"))
	require.ErrorIs(t, err, boom)
	require.Len(t, backend.keys, 1)
	_, err = backend.get(backend.keys[0])
	assert.Error(t, err, "store should be dropped after a failed index")
}

func TestIndexClearsStoreWithoutDropWhenStoringFails(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{Storage: memory.NewStorage(), failAfter: 1}
	ix := newTestIndexer(fakeExtractor{doc: policyDoc})
	ix.newStore = func(context.Context, string) (domain.VectorStore, error) { return store, nil }

	_, err := ix.Index(ctx, "policy.pdf", []byte("x"))
	require.Error(t, err)
	assert.Equal(t, 0, store.Len())
}

// failingStore writes the first failAfter chunks, then fails.
type failingStore struct {
	*memory.Storage
	failAfter int
}

func (f *failingStore) Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float64) error {
	if err := f.Storage.Upsert(ctx, chunks[:f.failAfter], vectors[:f.failAfter]); err != nil {
		return err
	}
	return errors.New("connection reset")
}

func TestOchiai(t *testing.T) {
	a := tokenSet("refund policy")
	assert.InDelta(t, 1.0, ochiai(a, tokenSet("Policy refund")), 1e-9)
	assert.InDelta(t, 0.5, ochiai(a, tokenSet("refund window")), 1e-9)
	assert.Zero(t, ochiai(a, tokenSet("")))
}
