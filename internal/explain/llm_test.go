package explain

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"logguard/internal/types"
)

func sampleClassification() *types.Classification {
	return &types.Classification{
		SourceIP:       "203.0.113.5",
		AttackType:     "DDoS",
		Category:       types.CategoryAvailability,
		Hits:           50,
		Window:         5 * time.Minute,
		Threshold:      10,
		StoredSeverity: types.SeverityCritical,
		EventCount:     50,
		NewPattern:     true,
	}
}

func TestTemplateExplainer(t *testing.T) {
	exp, err := NewTemplateExplainer().Explain(context.Background(), sampleClassification())
	if err != nil {
		t.Fatal(err)
	}
	if exp.Title != "DDoS from 203.0.113.5" {
		t.Errorf("Unexpected title %q", exp.Title)
	}
	if !strings.HasPrefix(exp.Description, "50 DDoS events from 203.0.113.5 in the last 5m0s (threshold 10)") {
		t.Errorf("Unexpected description %q", exp.Description)
	}
}

func TestLLMExplainer_Explain(t *testing.T) {
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req OllamaRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}

		if req.Model != "test-model" {
			t.Errorf("Expected model 'test-model', got '%s'", req.Model)
		}
		if !strings.Contains(req.Prompt, "203.0.113.5") {
			t.Errorf("Expected prompt to mention the source IP, got %q", req.Prompt)
		}

		json.NewEncoder(w).Encode(OllamaResponse{Response: "This IP is flooding the service."})
	}))
	defer mockServer.Close()

	explainer := NewLLMExplainer(mockServer.URL, "test-model", mockServer.Client())

	exp, err := explainer.Explain(context.Background(), sampleClassification())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	expected := "This IP is flooding the service."
	if exp.Description != expected {
		t.Errorf("Expected '%s', got '%s'", expected, exp.Description)
	}
}

func TestFallbackOnLLMFailure(t *testing.T) {
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer mockServer.Close()

	exp, err := New("llm", mockServer.URL, "m", mockServer.Client()).Explain(context.Background(), sampleClassification())
	if err != nil {
		t.Fatalf("Expected fallback to succeed, got %v", err)
	}
	if !strings.Contains(exp.Description, "threshold 10") {
		t.Errorf("Expected template description, got %q", exp.Description)
	}
}
