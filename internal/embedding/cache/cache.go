// Package cache memoizes remote embeddings in Redis so re-uploading the same
// PDF does not pay for the same embedding calls twice.
package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"pdfchat/internal/domain"
)

// Embedder wraps another embedder with a Redis read-through cache. Cache
// failures are logged and never fail an Embed call.
type Embedder struct {
	next domain.Embedder
	rdb  redis.Cmdable
	ttl  time.Duration
	log  *zap.Logger

	mu        sync.Mutex
	dimension int
}

func New(next domain.Embedder, rdb redis.Cmdable, ttl time.Duration, log *zap.Logger) *Embedder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Embedder{next: next, rdb: rdb, ttl: ttl, log: log.Named("embedcache")}
}

func (e *Embedder) Name() string { return e.next.Name() }

func (e *Embedder) Prepare(ctx context.Context, corpus []string) error {
	return e.next.Prepare(ctx, corpus)
}

func (e *Embedder) Dimension() int {
	if d := e.next.Dimension(); d > 0 {
		return d
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dimension
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float64, error) {
	key := Key(e.next.Name(), text)

	raw, err := e.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var v []float64
		if jerr := json.Unmarshal(raw, &v); jerr == nil && len(v) > 0 {
			e.remember(len(v))
			return v, nil
		}
		e.log.Warn("discarding undecodable cache entry", zap.String("key", key))
	case !errors.Is(err, redis.Nil):
		e.log.Warn("embedding cache read failed", zap.Error(err))
	}

	v, err := e.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	e.remember(len(v))
	if data, jerr := json.Marshal(v); jerr == nil {
		if serr := e.rdb.Set(ctx, key, data, e.ttl).Err(); serr != nil {
			e.log.Warn("embedding cache write failed", zap.Error(serr))
		}
	}
	return v, nil
}

func (e *Embedder) remember(dim int) {
	e.mu.Lock()
	if e.dimension == 0 {
		e.dimension = dim
	}
	e.mu.Unlock()
}

// Key is the Redis key for text embedded by the named model.
func Key(model, text string) string {
	sum := sha1.Sum([]byte(text))
	return "pdfchat:emb:" + model + ":" + hex.EncodeToString(sum[:])
}
