package explain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"logguard/internal/types"
)

// HTTPDoer is the part of *http.Client the LLM explainer needs
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// LLMExplainer asks a local LLM (e.g. Ollama) to describe a classification
type LLMExplainer struct {
	url    string
	model  string
	client HTTPDoer
}

func NewLLMExplainer(url, model string, client HTTPDoer) *LLMExplainer {
	if client == nil {
		client = http.DefaultClient
	}
	return &LLMExplainer{url: url, model: model, client: client}
}

// OllamaRequest represents the payload for Ollama
type OllamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

// OllamaResponse represents the response from Ollama
type OllamaResponse struct {
	Response string `json:"response"`
}

func (e *LLMExplainer) Explain(ctx context.Context, c *types.Classification) (Explanation, error) {
	jsonBody, err := json.Marshal(OllamaRequest{Model: e.model, Prompt: e.buildPrompt(c)})
	if err != nil {
		return Explanation{}, fmt.Errorf("failed to marshal llm request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(jsonBody))
	if err != nil {
		return Explanation{}, fmt.Errorf("failed to build llm request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return Explanation{}, fmt.Errorf("llm connection failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Explanation{}, fmt.Errorf("llm returned status: %s", resp.Status)
	}

	var llmResp OllamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&llmResp); err != nil {
		return Explanation{}, fmt.Errorf("failed to decode llm response: %w", err)
	}
	text := strings.TrimSpace(llmResp.Response)
	if text == "" {
		return Explanation{}, fmt.Errorf("llm returned an empty explanation")
	}

	base, _ := NewTemplateExplainer().Explain(ctx, c)
	return Explanation{Title: base.Title, Description: text}, nil
}

func (e *LLMExplainer) buildPrompt(c *types.Classification) string {
	return fmt.Sprintf(`You are a security analyst. Explain the risk of this activity in 1 sentence.
Attack type: %s (%s impact)
Source IP: %s
Hits: %d within %s (threshold %d)
Severity: %s
Total events from this source: %d
Explanation:`, c.AttackType, c.Category, c.SourceIP, c.Hits, c.Window, c.Threshold, c.StoredSeverity, c.EventCount)
}
