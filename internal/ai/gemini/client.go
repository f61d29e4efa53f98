package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/genai"
)

const (
	// Provider is the name used in logs and configuration.
	Provider     = "gemini"
	defaultModel = "gemini-2.5-flash"
)

// contentModel is the subset of genai.Models used by the gateway.
type contentModel interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type modelFactory func(ctx context.Context, apiKey string) (contentModel, error)

func newGenAIModel(ctx context.Context, apiKey string) (contentModel, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return client.Models, nil
}

// clients keeps one genai client per credential so that per-call keys do not
// rebuild the HTTP transport on every request.
type clients struct {
	factory modelFactory

	mu    sync.Mutex
	byKey map[string]contentModel
}

func (c *clients) get(ctx context.Context, apiKey string) (contentModel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if m, ok := c.byKey[apiKey]; ok {
		return m, nil
	}

	m, err := c.factory(ctx, apiKey)
	if err != nil {
		return nil, err
	}

	if c.byKey == nil {
		c.byKey = make(map[string]contentModel)
	}
	c.byKey[apiKey] = m

	return m, nil
}

func generateContent(ctx context.Context, m contentModel, model, prompt string) (string, error) {
	resp, err := m.GenerateContent(ctx, model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	if resp == nil {
		return "", errEmptyResponse
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
	}

	output := strings.TrimSpace(builder.String())
	if output == "" {
		return "", errEmptyResponse
	}

	return output, nil
}

var errEmptyResponse = errors.New("gemini api returned empty response")
