package index

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"

	"pdfchat/internal/domain"
)

// Handle is one indexed document.
type Handle struct {
	ID      string
	Name    string
	Pages   int
	Chunks  int
	Summary string
	// StoreKey names this handle's vector storage; unique per Index call.
	StoreKey string

	embedder domain.Embedder
	store    domain.VectorStore
	chunks   []domain.Chunk
}

// Retrieve returns the topK chunks most relevant to query. When the query
// embeds to a zero vector, or no stored chunk scores above zero, chunks are
// ranked lexically instead.
func (h *Handle) Retrieve(ctx context.Context, query string, topK int) ([]domain.SearchResult, error) {
	if topK <= 0 {
		topK = 4
	}
	vec, err := h.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	if isZero(vec) {
		return lexicalSearch(h.chunks, query, topK), nil
	}
	res, err := h.store.Search(ctx, vec, topK)
	if err != nil {
		return nil, err
	}
	for _, r := range res {
		if r.Score > 1e-9 {
			return res, nil
		}
	}
	return lexicalSearch(h.chunks, query, topK), nil
}

// Close releases the document's vectors. Stores that own a remote
// collection drop it.
func (h *Handle) Close(ctx context.Context) error {
	if h.store == nil {
		return nil
	}
	return release(ctx, h.store)
}

func release(ctx context.Context, store domain.VectorStore) error {
	if d, ok := store.(interface{ Drop(context.Context) error }); ok {
		return d.Drop(ctx)
	}
	return store.Clear(ctx)
}

func isZero(vec []float64) bool {
	for _, v := range vec {
		if v != 0 {
			return false
		}
	}
	return true
}

var wordRe = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`)

func lexicalSearch(chunks []domain.Chunk, query string, topK int) []domain.SearchResult {
	qset := tokenSet(query)
	out := make([]domain.SearchResult, len(chunks))
	for i, ch := range chunks {
		out[i] = domain.SearchResult{Chunk: ch, Score: ochiai(qset, tokenSet(ch.Text))}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if topK < len(out) {
		out = out[:topK]
	}
	return out
}

func tokenSet(s string) map[string]struct{} {
	tokens := wordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

// ochiai is |A∩B| / sqrt(|A||B|).
func ochiai(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if _, ok := b[t]; ok {
			inter++
		}
	}
	return float64(inter) / math.Sqrt(float64(len(a))*float64(len(b)))
}
