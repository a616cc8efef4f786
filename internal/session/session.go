// Package session holds the per-user conversation state: the transcript
// shown to the user, the history passed to the QA backend and the document
// currently being discussed.
package session

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"pdfchat/internal/domain"
	"pdfchat/internal/index"
)

// Indexer builds a document handle from an uploaded file.
type Indexer interface {
	Index(ctx context.Context, name string, data []byte) (*index.Handle, error)
}

// QAService answers a question given the prior turns and a document.
type QAService interface {
	Answer(ctx context.Context, question string, history []domain.Turn, doc domain.Retriever) (string, error)
}

// Session is one conversation. LoadDocument and Ask are serialized; View
// may run concurrently with either and sees the pending user message while
// an answer is being prepared.
type Session struct {
	ID string

	indexer      Indexer
	qa           QAService
	systemPrompt string
	log          *zap.Logger

	op sync.Mutex

	mu          sync.Mutex
	initialized bool
	transcript  []domain.Message
	history     []domain.Turn
	doc         *index.Handle
	pending     bool
	closed      bool
	flash       string
}

func New(id string, indexer Indexer, qa QAService, systemPrompt string, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{
		ID:           id,
		indexer:      indexer,
		qa:           qa,
		systemPrompt: systemPrompt,
		log:          log.With(zap.String("session_id", id)),
	}
}

// InitializeSession seeds the transcript with the system message. Calling
// it again has no effect.
func (s *Session) InitializeSession() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initLocked()
}

func (s *Session) initLocked() {
	if s.initialized {
		return
	}
	s.transcript = []domain.Message{{Role: domain.RoleSystem, Content: s.systemPrompt}}
	s.history = []domain.Turn{}
	s.initialized = true
}

// LoadDocument indexes data and makes it the session's document. The
// transcript and history are kept.
func (s *Session) LoadDocument(ctx context.Context, name string, data []byte) error {
	s.op.Lock()
	defer s.op.Unlock()
	s.InitializeSession()

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if len(data) == 0 {
		return &LoadError{Name: name, Err: ErrEmptyUpload}
	}
	h, err := s.indexer.Index(ctx, name, data)
	if err != nil {
		s.log.Warn("document rejected", zap.String("name", name), zap.Error(err))
		return &LoadError{Name: name, Err: err}
	}

	s.mu.Lock()
	prev := s.doc
	s.doc = h
	s.mu.Unlock()

	if prev != nil && prev != h {
		if err := prev.Close(ctx); err != nil {
			s.log.Warn("closing previous document", zap.String("document_id", prev.ID), zap.Error(err))
		}
	}
	s.log.Info("document loaded", zap.String("document_id", h.ID), zap.String("name", h.Name))
	return nil
}

// Ask records question, asks the QA backend and records the answer. On a
// backend failure the user message stays in the transcript and nothing else
// is recorded.
func (s *Session) Ask(ctx context.Context, question string) (string, error) {
	s.op.Lock()
	defer s.op.Unlock()

	s.mu.Lock()
	s.initLocked()
	doc := s.doc
	if doc == nil {
		s.mu.Unlock()
		return "", ErrNoDocument
	}
	if strings.TrimSpace(question) == "" {
		s.mu.Unlock()
		return "", ErrEmptyQuestion
	}
	s.transcript = append(s.transcript, domain.Message{Role: domain.RoleUser, Content: question})
	history := slices.Clone(s.history)
	s.pending = true
	s.mu.Unlock()

	start := time.Now()
	answer, err := s.qa.Answer(ctx, question, history, doc)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = false
	if err != nil {
		s.log.Warn("answer failed", zap.String("document_id", doc.ID), zap.Error(err))
		return "", &AnswerError{Err: err}
	}
	s.history = append(s.history, domain.Turn{Question: question, Answer: answer})
	s.transcript = append(s.transcript, domain.Message{Role: domain.RoleAssistant, Content: answer})
	s.log.Info("question answered",
		zap.String("document_id", doc.ID),
		zap.Int("turns", len(s.history)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return answer, nil
}

// DocumentInfo describes the loaded document for display.
type DocumentInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Pages   int    `json:"pages"`
	Chunks  int    `json:"chunks"`
	Summary string `json:"summary,omitempty"`
}

// View is a snapshot of the session for rendering.
type View struct {
	Transcript []domain.Message `json:"transcript"`
	History    []domain.Turn    `json:"history"`
	Document   *DocumentInfo    `json:"document,omitempty"`
	// Pending is set while an answer is being prepared.
	Pending bool `json:"pending"`
}

func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initLocked()
	v := View{
		Transcript: slices.Clone(s.transcript),
		History:    slices.Clone(s.history),
		Pending:    s.pending,
	}
	if s.doc != nil {
		v.Document = &DocumentInfo{ID: s.doc.ID, Name: s.doc.Name, Pages: s.doc.Pages, Chunks: s.doc.Chunks, Summary: s.doc.Summary}
	}
	return v
}

// Messages returns the transcript without the system message, in order.
func (v View) Messages() []domain.Message {
	out := make([]domain.Message, 0, len(v.Transcript))
	for _, m := range v.Transcript {
		if m.Role != domain.RoleSystem {
			out = append(out, m)
		}
	}
	return out
}

// SetFlash stores a one-shot message for the next page render.
func (s *Session) SetFlash(msg string) {
	s.mu.Lock()
	s.flash = msg
	s.mu.Unlock()
}

// TakeFlash returns and clears the flash message.
func (s *Session) TakeFlash() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := s.flash
	s.flash = ""
	return msg
}

// Close releases the loaded document. It waits for an in-flight
// LoadDocument or Ask, and later uploads are refused.
func (s *Session) Close(ctx context.Context) error {
	s.op.Lock()
	defer s.op.Unlock()

	s.mu.Lock()
	doc := s.doc
	s.doc = nil
	s.closed = true
	s.mu.Unlock()
	if doc == nil {
		return nil
	}
	return doc.Close(ctx)
}
