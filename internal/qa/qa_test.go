package qa

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfchat/internal/domain"
)

type scriptedModel struct {
	replies []string
	err     error
	calls   [][]domain.Message
}

func (m *scriptedModel) Complete(_ context.Context, msgs []domain.Message) (string, error) {
	m.calls = append(m.calls, msgs)
	if m.err != nil {
		return "", m.err
	}
	r := m.replies[0]
	m.replies = m.replies[1:]
	return r, nil
}

type fakeRetriever struct {
	queries []string
	results []domain.SearchResult
}

func (f *fakeRetriever) Retrieve(_ context.Context, query string, topK int) ([]domain.SearchResult, error) {
	f.queries = append(f.queries, query)
	return f.results, nil
}

var refundChunk = domain.SearchResult{Chunk: domain.Chunk{Page: 3, Text: "Refunds are issued within 30 days."}}

func TestAnswerWithoutHistorySkipsCondense(t *testing.T) {
	model := &scriptedModel{replies: []string{"  Within 30 days.  "}}
	doc := &fakeRetriever{results: []domain.SearchResult{refundChunk}}
	svc := NewService(model, Config{SystemPrompt: "Be friendly."}, nil)

	answer, err := svc.Answer(context.Background(), "What is the refund policy?", nil, doc)
	require.NoError(t, err)
	assert.Equal(t, "Within 30 days.", answer)

	require.Len(t, model.calls, 1)
	assert.Equal(t, []string{"What is the refund policy?"}, doc.queries)
	msgs := model.calls[0]
	assert.Equal(t, domain.Message{Role: domain.RoleSystem, Content: "Be friendly."}, msgs[0])
	assert.Contains(t, msgs[1].Content, "[page 3] Refunds are issued within 30 days.")
	assert.Contains(t, msgs[1].Content, "Question: What is the refund policy?")
}

func TestAnswerCondensesFollowUp(t *testing.T) {
	model := &scriptedModel{replies: []string{"How long do refunds take for members?", "Same: 30 days."}}
	doc := &fakeRetriever{results: []domain.SearchResult{refundChunk}}
	svc := NewService(model, Config{}, nil)

	history := []domain.Turn{{Question: "What is the refund policy?", Answer: "30 days."}}
	answer, err := svc.Answer(context.Background(), "And for members?", history, doc)
	require.NoError(t, err)
	assert.Equal(t, "Same: 30 days.", answer)

	require.Len(t, model.calls, 2)
	assert.Contains(t, model.calls[0][0].Content, "Human: What is the refund policy?\nAssistant: 30 days.")
	assert.Contains(t, model.calls[0][0].Content, "Follow Up Input: And for members?")
	assert.Equal(t, []string{"How long do refunds take for members?"}, doc.queries)
	assert.Len(t, history, 1)
}

func TestAnswerLanguageExtendsSystemPrompt(t *testing.T) {
	model := &scriptedModel{replies: []string{"네"}}
	svc := NewService(model, Config{SystemPrompt: "Be friendly.", AnswerLanguage: "Korean"}, nil)

	_, err := svc.Answer(context.Background(), "ok?", nil, &fakeRetriever{})
	require.NoError(t, err)
	assert.Contains(t, model.calls[0][0].Content, "Always answer in Korean")
}

func TestAnswerErrors(t *testing.T) {
	boom := errors.New("upstream timeout")
	_, err := NewService(&scriptedModel{err: boom}, Config{}, nil).
		Answer(context.Background(), "q", nil, &fakeRetriever{})
	assert.ErrorIs(t, err, boom)

	_, err = NewService(&scriptedModel{replies: []string{"   "}}, Config{}, nil).
		Answer(context.Background(), "q", nil, &fakeRetriever{})
	assert.ErrorIs(t, err, ErrEmptyAnswer)
}
