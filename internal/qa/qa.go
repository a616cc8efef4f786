// Package qa answers questions about an indexed document with a
// conversational retrieval chain: condense, retrieve, answer.
package qa

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"pdfchat/internal/domain"
)

// ErrEmptyAnswer is returned when the chat model replies with blank text.
var ErrEmptyAnswer = errors.New("model returned an empty answer")

const condensePrompt = `Given the following conversation and a follow up question, rephrase the follow up question to be a standalone question, in its original language.

Chat History:
%s
Follow Up Input: %s
Standalone question:`

const answerPrompt = `Use the following pieces of context to answer the question at the end. If you don't know the answer, just say that you don't know, don't try to make up an answer.

%s

Question: %s
Helpful Answer:`

type Config struct {
	SystemPrompt string
	// AnswerLanguage forces the reply language; empty follows the user.
	AnswerLanguage string
	TopK           int
}

type Service struct {
	model domain.ChatModel
	cfg   Config
	log   *zap.Logger
}

func NewService(model domain.ChatModel, cfg Config, log *zap.Logger) *Service {
	if cfg.TopK <= 0 {
		cfg.TopK = 4
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{model: model, cfg: cfg, log: log.Named("qa")}
}

// Answer runs one chain invocation. history is read, never modified.
func (s *Service) Answer(ctx context.Context, question string, history []domain.Turn, doc domain.Retriever) (string, error) {
	start := time.Now()

	standalone := question
	if len(history) > 0 {
		condensed, err := s.model.Complete(ctx, []domain.Message{
			{Role: domain.RoleUser, Content: fmt.Sprintf(condensePrompt, formatHistory(history), question)},
		})
		if err != nil {
			return "", fmt.Errorf("condense question: %w", err)
		}
		if c := strings.TrimSpace(condensed); c != "" {
			standalone = c
		}
	}

	results, err := doc.Retrieve(ctx, standalone, s.cfg.TopK)
	if err != nil {
		return "", fmt.Errorf("retrieve context: %w", err)
	}

	answer, err := s.model.Complete(ctx, []domain.Message{
		{Role: domain.RoleSystem, Content: s.systemPrompt()},
		{Role: domain.RoleUser, Content: fmt.Sprintf(answerPrompt, formatContext(results), standalone)},
	})
	if err != nil {
		return "", fmt.Errorf("generate answer: %w", err)
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", ErrEmptyAnswer
	}

	s.log.Debug("question answered",
		zap.Int("history", len(history)),
		zap.Bool("condensed", standalone != question),
		zap.Int("chunks", len(results)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return answer, nil
}

func (s *Service) systemPrompt() string {
	if s.cfg.AnswerLanguage == "" {
		return s.cfg.SystemPrompt
	}
	return strings.TrimSpace(s.cfg.SystemPrompt + "\nAlways answer in " + s.cfg.AnswerLanguage + ", whatever language the question is asked in.")
}

func formatHistory(history []domain.Turn) string {
	var b strings.Builder
	for _, t := range history {
		b.WriteString("Human: ")
		b.WriteString(t.Question)
		b.WriteString("\nAssistant: ")
		b.WriteString(t.Answer)
		b.WriteString("\n")
	}
	return b.String()
}

func formatContext(results []domain.SearchResult) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		parts = append(parts, "[page "+strconv.Itoa(r.Chunk.Page)+"] "+r.Chunk.Text)
	}
	return strings.Join(parts, "\n\n")
}
