package domain

import "context"

// Provider is the interface all LLM backends must implement. The bridge only
// depends on this capability set, so local (Ollama) and remote (OpenAI,
// PrivateMode) backends are interchangeable.
type Provider interface {
	Name() string
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	Healthy(ctx context.Context) error
}

// AttestedProvider is an optional extension for providers that require a
// successful hardware attestation check before any content may be sent.
type AttestedProvider interface {
	Provider
	VerifyAttestation(ctx context.Context) error
}

// Transcriber converts a voice attachment into text.
type Transcriber interface {
	Transcribe(ctx context.Context, att *Attachment) (string, error)
}

// Messenger is the gateway-facing messaging client.
type Messenger interface {
	Receive(ctx context.Context) ([]InboundMessage, error)
	Send(ctx context.Context, recipient, text string) error
	DownloadAttachment(ctx context.Context, ref AttachmentRef) (*Attachment, error)
}

type ChatRequest struct {
	Messages []Message
	Model    string
}

type ChatResponse struct {
	Content string
	Model   string
	Usage   Usage
}

type Message struct {
	Role    string `json:"role"` // system | user | assistant
	Content string `json:"content"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}
