package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfchat/internal/chunker"
	"pdfchat/internal/domain"
	"pdfchat/internal/embedding/tfidf"
	"pdfchat/internal/index"
	"pdfchat/internal/vectorstore/memory"
)

// hashExtractor gives every upload the same document id, as content
// hashing does for identical bytes.
type hashExtractor struct{}

func (hashExtractor) Extract(name string, _ []byte) (domain.Document, error) {
	return domain.Document{
		ID:   "sha1-of-bytes",
		Name: name,
		Pages: []domain.Page{
			{Number: 1, Text: "Refunds are issued within thirty days of purchase."},
			{Number: 2, Text: "Support is open on weekdays."},
		},
	}, nil
}

// remoteStores keeps one collection per key; dropping a key removes it for
// every holder.
type remoteStores struct {
	mu   sync.Mutex
	byID map[string]*memory.Storage
}

func (r *remoteStores) factory(_ context.Context, key string) (domain.VectorStore, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.byID == nil {
		r.byID = map[string]*memory.Storage{}
	}
	if _, ok := r.byID[key]; !ok {
		r.byID[key] = memory.NewStorage()
	}
	return &remoteStore{stores: r, key: key}, nil
}

func (r *remoteStores) lookup(key string) (*memory.Storage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.byID[key]
	if !ok {
		return nil, errors.New("collection not found")
	}
	return st, nil
}

func (r *remoteStores) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

type remoteStore struct {
	stores *remoteStores
	key    string
}

func (s *remoteStore) Init(ctx context.Context, dimension int) error {
	st, err := s.stores.lookup(s.key)
	if err != nil {
		return err
	}
	return st.Init(ctx, dimension)
}

func (s *remoteStore) Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float64) error {
	st, err := s.stores.lookup(s.key)
	if err != nil {
		return err
	}
	return st.Upsert(ctx, chunks, vectors)
}

func (s *remoteStore) Search(ctx context.Context, vector []float64, topK int) ([]domain.SearchResult, error) {
	st, err := s.stores.lookup(s.key)
	if err != nil {
		return nil, err
	}
	return st.Search(ctx, vector, topK)
}

func (s *remoteStore) Clear(ctx context.Context) error {
	st, err := s.stores.lookup(s.key)
	if err != nil {
		return err
	}
	return st.Clear(ctx)
}

func (s *remoteStore) Drop(context.Context) error {
	s.stores.mu.Lock()
	defer s.stores.mu.Unlock()
	delete(s.stores.byID, s.key)
	return nil
}

// retrievingQA answers with the best matching chunk.
type retrievingQA struct{}

func (retrievingQA) Answer(ctx context.Context, question string, _ []domain.Turn, doc domain.Retriever) (string, error) {
	res, err := doc.Retrieve(ctx, question, 1)
	if err != nil {
		return "", err
	}
	if len(res) == 0 {
		return "", errors.New("nothing retrieved")
	}
	return res[0].Chunk.Text, nil
}

func newSharedIndexer(stores *remoteStores) *index.Indexer {
	return index.NewIndexer(
		hashExtractor{},
		chunker.NewSentenceChunker(1, 0),
		func(context.Context) (domain.Embedder, error) { return tfidf.NewEmbedder(), nil },
		stores.factory,
		nil,
		index.Options{},
		nil,
	)
}

func TestSessionsWithIdenticalUploadsAreIndependent(t *testing.T) {
	ctx := context.Background()
	stores := &remoteStores{}
	m := NewManager(newSharedIndexer(stores), retrievingQA{}, ManagerConfig{TTL: time.Hour}, nil)
	defer m.Close()

	a, b := m.Get("a"), m.Get("b")
	require.NoError(t, a.LoadDocument(ctx, "policy.pdf", []byte("%PDF-same")))
	require.NoError(t, b.LoadDocument(ctx, "policy.pdf", []byte("%PDF-same")))
	assert.Equal(t, 2, stores.count())

	m.Reset("a")
	m.closing.Wait()
	assert.Equal(t, 1, stores.count())

	answer, err := b.Ask(ctx, "refund purchase")
	require.NoError(t, err)
	assert.Contains(t, answer, "Refunds are issued")
}

func TestReuploadingSameFileKeepsDocumentUsable(t *testing.T) {
	ctx := context.Background()
	stores := &remoteStores{}
	s := New("s1", newSharedIndexer(stores), retrievingQA{}, systemPrompt, nil)

	require.NoError(t, s.LoadDocument(ctx, "policy.pdf", []byte("%PDF-same")))
	require.NoError(t, s.LoadDocument(ctx, "policy.pdf", []byte("%PDF-same")))
	assert.Equal(t, 1, stores.count())

	answer, err := s.Ask(ctx, "support weekdays")
	require.NoError(t, err)
	assert.Contains(t, answer, "Support is open")
}
