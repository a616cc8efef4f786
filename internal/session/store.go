package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// Manager owns every live session. Sessions expire after ttl without use;
// expiry and Reset release the session's document in the background.
type Manager struct {
	sessions *cache.Cache

	indexer      Indexer
	qa           QAService
	systemPrompt string
	log          *zap.Logger

	mu      sync.Mutex
	closing sync.WaitGroup
}

type ManagerConfig struct {
	TTL time.Duration
	// CleanupInterval is how often expired sessions are purged; TTL/6 when
	// zero.
	CleanupInterval time.Duration
	SystemPrompt    string
}

func NewManager(indexer Indexer, qa QAService, cfg ManagerConfig, log *zap.Logger) *Manager {
	if cfg.TTL <= 0 {
		cfg.TTL = 2 * time.Hour
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = cfg.TTL / 6
	}
	if log == nil {
		log = zap.NewNop()
	}
	m := &Manager{
		sessions:     cache.New(cfg.TTL, cfg.CleanupInterval),
		indexer:      indexer,
		qa:           qa,
		systemPrompt: cfg.SystemPrompt,
		log:          log.Named("session"),
	}
	m.sessions.OnEvicted(func(id string, v any) {
		if s, ok := v.(*Session); ok {
			m.release(id, s)
		}
	})
	return m
}

// release closes s off the caller's goroutine; Close waits for an answer
// in progress and must not hold up the manager.
func (m *Manager) release(id string, s *Session) {
	m.closing.Add(1)
	go func() {
		defer m.closing.Done()
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := s.Close(ctx); err != nil {
			m.log.Warn("releasing session", zap.String("session_id", id), zap.Error(err))
		}
	}()
}

// NewID returns a fresh random session id.
func NewID() string { return uuid.NewString() }

// Get returns the initialized session for id, creating it when missing or
// expired. Each call extends the session's lifetime.
func (m *Manager) Get(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if v, ok := m.sessions.Get(id); ok {
		s := v.(*Session)
		m.sessions.SetDefault(id, s)
		return s
	}
	// An expired entry not yet purged by the janitor would be overwritten
	// below without being released.
	m.sessions.DeleteExpired()
	s := New(id, m.indexer, m.qa, m.systemPrompt, m.log)
	s.InitializeSession()
	m.sessions.SetDefault(id, s)
	m.log.Debug("session created", zap.String("session_id", id))
	return s
}

// Reset discards the session; the next Get starts over.
func (m *Manager) Reset(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions.Delete(id)
}

// Len reports the number of live sessions.
func (m *Manager) Len() int { return m.sessions.ItemCount() }

// Close discards every session and waits until their documents are
// released.
func (m *Manager) Close() {
	m.mu.Lock()
	for id := range m.sessions.Items() {
		m.sessions.Delete(id)
	}
	m.sessions.DeleteExpired()
	m.mu.Unlock()
	m.closing.Wait()
}
