// Package gemini adapts the Gemini chat API to domain.ChatModel.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"pdfchat/internal/domain"
)

type Client struct {
	client      *genai.Client
	model       string
	temperature float32
}

func NewClient(ctx context.Context, apiKey, model string, temperature float64) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("gemini chat: missing API key")
	}
	if model == "" {
		model = "gemini-1.5-flash"
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &Client{client: client, model: model, temperature: float32(temperature)}, nil
}

// Complete replays all but the last message as chat history and sends the
// last user message.
func (c *Client) Complete(ctx context.Context, messages []domain.Message) (string, error) {
	system, history, last, err := toContents(messages)
	if err != nil {
		return "", err
	}

	model := c.client.GenerativeModel(c.model)
	model.SetTemperature(c.temperature)
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}
	cs := model.StartChat()
	cs.History = history

	resp, err := cs.SendMessage(ctx, genai.Text(last))
	if err != nil {
		return "", fmt.Errorf("gemini chat: %w", err)
	}
	text := extractText(resp)
	if text == "" {
		return "", errors.New("gemini chat: empty response")
	}
	return text, nil
}

func (c *Client) Close() error { return c.client.Close() }

func toContents(messages []domain.Message) (system string, history []*genai.Content, last string, err error) {
	var sys []string
	var turns []domain.Message
	for _, m := range messages {
		if m.Role == domain.RoleSystem {
			sys = append(sys, m.Content)
			continue
		}
		turns = append(turns, m)
	}
	if len(turns) == 0 || turns[len(turns)-1].Role != domain.RoleUser {
		return "", nil, "", errors.New("gemini chat: last message must be from the user")
	}
	for _, m := range turns[:len(turns)-1] {
		role := "user"
		if m.Role == domain.RoleAssistant {
			role = "model"
		}
		history = append(history, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(m.Content)}})
	}
	return strings.Join(sys, "\n\n"), history, turns[len(turns)-1].Content, nil
}

func extractText(resp *genai.GenerateContentResponse) string {
	var text strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				if t, ok := part.(genai.Text); ok {
					text.WriteString(string(t))
				}
			}
		}
	}
	return text.String()
}
