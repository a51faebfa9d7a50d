package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"signallama/internal/domain"
)

// WhisperConfig configures the Whisper speech-to-text client.
type WhisperConfig struct {
	APIBase  string // e.g. "http://localhost:9000/v1" or "https://api.openai.com/v1"
	APIKey   string
	Model    string // e.g. "whisper-1"
	Language string // optional: ISO-639-1 language code
	Logger   *slog.Logger
}

// Whisper implements domain.Transcriber via the OpenAI-compatible
// /audio/transcriptions endpoint.
type Whisper struct {
	apiBase  string
	apiKey   string
	model    string
	language string
	client   *http.Client
	logger   *slog.Logger
}

func NewWhisper(cfg WhisperConfig) *Whisper {
	if cfg.Model == "" {
		cfg.Model = "whisper-1"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Whisper{
		apiBase:  cfg.APIBase,
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		language: cfg.Language,
		client:   &http.Client{Timeout: 120 * time.Second},
		logger:   cfg.Logger,
	}
}

func NewWhisperWithClient(cfg WhisperConfig, client *http.Client) *Whisper {
	w := NewWhisper(cfg)
	if client != nil {
		w.client = client
	}
	return w
}

type transcriptionResult struct {
	Text     string  `json:"text"`
	Language string  `json:"language,omitempty"`
	Duration float64 `json:"duration,omitempty"`
}

// Transcribe converts a voice attachment to text.
func (w *Whisper) Transcribe(ctx context.Context, att *domain.Attachment) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", att.Filename)
	if err != nil {
		return "", domain.E(domain.KindTranscription, "whisper.transcribe", err)
	}
	if _, err := part.Write(att.Data); err != nil {
		return "", domain.E(domain.KindTranscription, "whisper.transcribe", err)
	}

	writer.WriteField("model", w.model)
	writer.WriteField("response_format", "json")
	if w.language != "" {
		writer.WriteField("language", w.language)
	}
	writer.Close()

	url := w.apiBase + "/audio/transcriptions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return "", domain.E(domain.KindTranscription, "whisper.transcribe", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if w.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+w.apiKey)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return "", domain.E(domain.KindTranscription, "whisper.transcribe",
			fmt.Errorf("whisper request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", domain.Errorf(domain.KindTranscription, "whisper.transcribe",
			"whisper returned %d: %s", resp.StatusCode, string(respBody))
	}

	var result transcriptionResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", domain.E(domain.KindTranscription, "whisper.transcribe",
			fmt.Errorf("decode whisper response: %w", err))
	}

	w.logger.Info("transcription complete",
		"text_len", len(result.Text),
		"language", result.Language,
		"duration", result.Duration,
	)
	return result.Text, nil
}
