package provider

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"signallama/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOllama_Chat(t *testing.T) {
	var got ollamaRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(ollamaResponse{
			Model:   got.Model,
			Message: domain.Message{Role: "assistant", Content: "hi there"},
			Done:    true,
		})
	}))
	defer srv.Close()

	o := NewOllama(OllamaConfig{APIBase: srv.URL, DefaultModel: "qwen2.5:7b", Logger: testLogger()})
	resp, err := o.Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{{Role: "user", Content: "hello"}},
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if resp.Content != "hi there" {
		t.Fatalf("unexpected content %q", resp.Content)
	}
	if got.Model != "qwen2.5:7b" {
		t.Fatalf("default model not applied: %q", got.Model)
	}
	if got.Stream {
		t.Fatal("stream must be disabled")
	}
	if len(got.Messages) != 1 || got.Messages[0].Content != "hello" {
		t.Fatalf("history not forwarded: %+v", got.Messages)
	}
}

func TestOllama_Chat_ModelError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "model not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	o := NewOllama(OllamaConfig{APIBase: srv.URL, Logger: testLogger()})
	_, err := o.Chat(context.Background(), domain.ChatRequest{})
	if !domain.IsKind(err, domain.KindModel) {
		t.Fatalf("expected model kind, got %v", err)
	}
}

func TestOllama_Healthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Write([]byte(`{"models": []}`))
	}))
	defer srv.Close()

	o := NewOllama(OllamaConfig{APIBase: srv.URL, Logger: testLogger()})
	if err := o.Healthy(context.Background()); err != nil {
		t.Fatalf("healthy: %v", err)
	}
}
