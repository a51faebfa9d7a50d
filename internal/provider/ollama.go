package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"signallama/internal/domain"
)

const (
	ollamaDefaultBase  = "http://localhost:11434"
	ollamaDefaultModel = "qwen2.5:7b"
)

// Ollama implements domain.Provider for a local or remote Ollama server.
type Ollama struct {
	apiBase      string
	defaultModel string
	client       *http.Client
	logger       *slog.Logger
}

type OllamaConfig struct {
	APIBase      string
	DefaultModel string
	Logger       *slog.Logger
}

func NewOllama(cfg OllamaConfig) *Ollama {
	if cfg.APIBase == "" {
		cfg.APIBase = ollamaDefaultBase
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = ollamaDefaultModel
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Ollama{
		apiBase:      cfg.APIBase,
		defaultModel: cfg.DefaultModel,
		client:       SharedHTTPClient(defaultHTTPTimeout),
		logger:       cfg.Logger,
	}
}

func NewOllamaWithClient(cfg OllamaConfig, client *http.Client) *Ollama {
	o := NewOllama(cfg)
	if client != nil {
		o.client = client
	}
	return o
}

func (o *Ollama) Name() string { return "ollama" }

func (o *Ollama) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.apiBase+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama not reachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama returned status %d", resp.StatusCode)
	}
	return nil
}

// ollamaRequest matches the Ollama /api/chat request body.
type ollamaRequest struct {
	Model    string           `json:"model"`
	Messages []domain.Message `json:"messages"`
	Stream   bool             `json:"stream"`
}

type ollamaResponse struct {
	Model   string         `json:"model"`
	Message domain.Message `json:"message"`
	Done    bool           `json:"done"`
}

func (o *Ollama) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = o.defaultModel
	}

	jsonBody, err := json.Marshal(ollamaRequest{
		Model:    model,
		Messages: req.Messages,
		Stream:   false,
	})
	if err != nil {
		return nil, domain.E(domain.KindModel, "ollama.chat", fmt.Errorf("marshal request: %w", err))
	}

	resp, err := doWithRetry(ctx, o.client, func() (*http.Request, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.apiBase+"/api/chat", bytes.NewReader(jsonBody))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		return httpReq, nil
	}, o.logger)
	if err != nil {
		return nil, classifyErr("ollama.chat", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, domain.Errorf(classifyStatus(resp.StatusCode), "ollama.chat",
			"ollama returned %d: %s", resp.StatusCode, string(respBody))
	}

	var out ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, domain.E(domain.KindModel, "ollama.chat", fmt.Errorf("decode response: %w", err))
	}

	return &domain.ChatResponse{
		Content: out.Message.Content,
		Model:   out.Model,
	}, nil
}
