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

// OpenAI implements domain.Provider for OpenAI and any OpenAI-compatible
// chat-completions endpoint (vLLM, LocalAI, Groq, the PrivateMode proxy).
type OpenAI struct {
	name    string
	apiKey  string
	apiBase string
	model   string
	client  *http.Client
	logger  *slog.Logger
}

type OpenAIConfig struct {
	Name    string // provider name for logs; defaults to "openai"
	APIKey  string
	APIBase string
	Model   string
	Logger  *slog.Logger
}

func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	if cfg.Name == "" {
		cfg.Name = "openai"
	}
	if cfg.APIBase == "" {
		cfg.APIBase = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &OpenAI{
		name:    cfg.Name,
		apiKey:  cfg.APIKey,
		apiBase: cfg.APIBase,
		model:   cfg.Model,
		client:  SharedHTTPClient(defaultHTTPTimeout),
		logger:  cfg.Logger,
	}
}

func NewOpenAIWithClient(cfg OpenAIConfig, client *http.Client) *OpenAI {
	o := NewOpenAI(cfg)
	if client != nil {
		o.client = client
	}
	return o
}

func (o *OpenAI) Name() string { return o.name }

func (o *OpenAI) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.apiBase+"/models", nil)
	if err != nil {
		return err
	}
	if o.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.apiKey)
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s not reachable: %w", o.name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%s: invalid API key", o.name)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned %d", o.name, resp.StatusCode)
	}
	return nil
}

type oaiRequest struct {
	Model    string           `json:"model"`
	Messages []domain.Message `json:"messages"`
	Stream   bool             `json:"stream"`
}

type oaiResponse struct {
	Model   string       `json:"model"`
	Choices []oaiChoice  `json:"choices"`
	Usage   domain.Usage `json:"usage"`
}

type oaiChoice struct {
	Message      domain.Message `json:"message"`
	FinishReason string         `json:"finish_reason"`
}

func (o *OpenAI) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	op := o.name + ".chat"

	model := req.Model
	if model == "" {
		model = o.model
	}

	jsonBody, err := json.Marshal(oaiRequest{
		Model:    model,
		Messages: req.Messages,
		Stream:   false,
	})
	if err != nil {
		return nil, domain.E(domain.KindModel, op, fmt.Errorf("marshal request: %w", err))
	}

	resp, err := doWithRetry(ctx, o.client, func() (*http.Request, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.apiBase+"/chat/completions", bytes.NewReader(jsonBody))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if o.apiKey != "" {
			httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
		}
		return httpReq, nil
	}, o.logger)
	if err != nil {
		return nil, classifyErr(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, domain.Errorf(classifyStatus(resp.StatusCode), op,
			"%s returned %d: %s", o.name, resp.StatusCode, string(respBody))
	}

	var out oaiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, domain.E(domain.KindModel, op, fmt.Errorf("decode response: %w", err))
	}
	if len(out.Choices) == 0 {
		return nil, domain.Errorf(domain.KindModel, op, "%s returned no choices", o.name)
	}

	return &domain.ChatResponse{
		Content: out.Choices[0].Message.Content,
		Model:   out.Model,
		Usage:   out.Usage,
	}, nil
}
