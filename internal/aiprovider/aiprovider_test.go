package aiprovider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestValidateConfig(t *testing.T) {
	if err := ValidateConfig(nil); err == nil {
		t.Fatalf("nil config should be rejected")
	}
	if err := ValidateConfig(&Config{APIKey: "k"}); err == nil {
		t.Fatalf("missing base_url should be rejected")
	}
	if err := ValidateConfig(&Config{BaseURL: "https://api.example.com"}); err == nil {
		t.Fatalf("missing api_key should be rejected")
	}
	if err := ValidateConfig(&Config{BaseURL: "https://api.example.com", APIKey: "k"}); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestHTTPProviderGenerate(t *testing.T) {
	var gotAuth string
	var gotModel string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request failed: %v", err)
		}
		gotModel, _ = body["model"].(string)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": "hello there"}},
			},
			"usage": map[string]int{
				"prompt_tokens":     12,
				"completion_tokens": 8,
				"total_tokens":      20,
			},
		})
	}))
	defer server.Close()

	provider, err := NewHTTPProvider(&Config{BaseURL: server.URL, APIKey: "sk-test"})
	if err != nil {
		t.Fatalf("new provider failed: %v", err)
	}

	result, err := provider.Generate(context.Background(), &GenerateInput{
		ModelID:  "gpt-4o",
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if gotAuth != "Bearer sk-test" {
		t.Fatalf("expected bearer auth, got %q", gotAuth)
	}
	if gotModel != "gpt-4o" {
		t.Fatalf("expected model gpt-4o, got %q", gotModel)
	}
	if result.Content != "hello there" {
		t.Fatalf("unexpected content %q", result.Content)
	}
	if result.TotalTokens != 20 {
		t.Fatalf("expected total tokens 20, got %d", result.TotalTokens)
	}
}

func TestHTTPProviderGenerateErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	provider, err := NewHTTPProvider(&Config{BaseURL: server.URL, APIKey: "sk-test"})
	if err != nil {
		t.Fatalf("new provider failed: %v", err)
	}

	if _, err := provider.Generate(context.Background(), &GenerateInput{ModelID: "m", Messages: []Message{{Role: "user", Content: "x"}}}); err == nil {
		t.Fatalf("expected error on upstream failure")
	}
	if _, err := provider.Generate(context.Background(), &GenerateInput{}); err == nil {
		t.Fatalf("expected error on empty input")
	}
}
