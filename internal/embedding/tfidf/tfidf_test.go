package tfidf

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbedBeforePrepare(t *testing.T) {
	_, err := NewEmbedder().Embed(context.Background(), "refund")
	require.ErrorIs(t, err, ErrNotPrepared)
}

func TestPrepareRejectsStopwordsOnly(t *testing.T) {
	err := NewEmbedder().Prepare(context.Background(), []string{"the and of"})
	require.Error(t, err)
}

func TestEmbedRanksRelevantChunkHigher(t *testing.T) {
	ctx := context.Background()
	corpus := []string{
		"Refunds are issued within 14 days of purchase.",
		"Shipping takes three business days.",
	}
	e := NewEmbedder()
	require.NoError(t, e.Prepare(ctx, corpus))
	assert.Positive(t, e.Dimension())

	q, err := e.Embed(ctx, "What is the refund policy? refunds")
	require.NoError(t, err)
	a, err := e.Embed(ctx, corpus[0])
	require.NoError(t, err)
	b, err := e.Embed(ctx, corpus[1])
	require.NoError(t, err)

	assert.Greater(t, dot(q, a), dot(q, b))
}

func TestEmbedUnknownTermsIsZero(t *testing.T) {
	ctx := context.Background()
	e := NewEmbedder()
	require.NoError(t, e.Prepare(ctx, []string{"alpha beta"}))

	v, err := e.Embed(ctx, "gamma")
	require.NoError(t, err)
	for _, x := range v {
		assert.Zero(t, x)
	}
}

func dot(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}
