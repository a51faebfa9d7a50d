// Package signal wraps the signal-cli-rest-api HTTP gateway. The gateway owns
// the delivery cursor: every receive call returns only messages not yet
// delivered, so polling repeatedly is safe.
package signal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"signallama/internal/domain"
)

const defaultHTTPTimeout = 60 * time.Second

// Client implements domain.Messenger against signal-cli-rest-api.
type Client struct {
	apiBase        string
	number         string
	receiveTimeout int // seconds, passed to the gateway's long poll
	client         *http.Client
	logger         *slog.Logger
}

type ClientConfig struct {
	APIBase        string
	Number         string
	ReceiveTimeout int
	Logger         *slog.Logger
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.APIBase == "" {
		cfg.APIBase = "http://localhost:8080"
	}
	if cfg.ReceiveTimeout <= 0 {
		cfg.ReceiveTimeout = 10
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		apiBase:        cfg.APIBase,
		number:         cfg.Number,
		receiveTimeout: cfg.ReceiveTimeout,
		client:         &http.Client{Timeout: defaultHTTPTimeout},
		logger:         cfg.Logger,
	}
}

// NewClientWithHTTP is NewClient with an injected HTTP client, for tests.
func NewClientWithHTTP(cfg ClientConfig, hc *http.Client) *Client {
	c := NewClient(cfg)
	if hc != nil {
		c.client = hc
	}
	return c
}

// envelope mirrors the gateway's receive response. Typing indicators and
// read receipts arrive as envelopes without a dataMessage and are skipped.
type envelope struct {
	Envelope struct {
		Source       string `json:"source"`
		SourceNumber string `json:"sourceNumber"`
		SourceName   string `json:"sourceName"`
		Timestamp    int64  `json:"timestamp"` // unix millis
		DataMessage  *struct {
			Message     string          `json:"message"`
			Attachments []attachmentRef `json:"attachments"`
		} `json:"dataMessage"`
	} `json:"envelope"`
}

type attachmentRef struct {
	ID          string `json:"id"`
	ContentType string `json:"contentType"`
	Filename    string `json:"filename"`
	Size        int64  `json:"size"`
}

// Receive long-polls the gateway for new messages. Envelopes without message
// content are dropped; the rest are returned in gateway order.
func (c *Client) Receive(ctx context.Context) ([]domain.InboundMessage, error) {
	// The gateway expects the raw number, not URL-encoded.
	u := fmt.Sprintf("%s/v1/receive/%s?timeout=%d&ignore_stories=true",
		c.apiBase, c.number, c.receiveTimeout)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, domain.E(domain.KindTransport, "signal.receive", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, domain.E(domain.KindTransport, "signal.receive", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, domain.Errorf(domain.KindTransport, "signal.receive",
			"gateway returned %d: %s", resp.StatusCode, string(body))
	}

	var envelopes []envelope
	if err := json.NewDecoder(resp.Body).Decode(&envelopes); err != nil {
		return nil, domain.E(domain.KindTransport, "signal.receive",
			fmt.Errorf("decode response: %w", err))
	}

	msgs := make([]domain.InboundMessage, 0, len(envelopes))
	for _, e := range envelopes {
		env := e.Envelope
		dm := env.DataMessage
		if dm == nil {
			continue // typing indicator, receipt, or story
		}
		sender := env.Source
		if sender == "" {
			sender = env.SourceNumber
		}
		if sender == "" {
			sender = env.SourceName
		}
		if sender == "" {
			c.logger.Debug("skipping envelope without sender")
			continue
		}
		msg := domain.InboundMessage{
			Sender:    sender,
			Timestamp: time.UnixMilli(env.Timestamp),
			Text:      dm.Message,
		}
		for _, a := range dm.Attachments {
			msg.Attachments = append(msg.Attachments, domain.AttachmentRef{
				ID:          a.ID,
				ContentType: a.ContentType,
				Filename:    a.Filename,
			})
		}
		if !msg.HasText() && len(msg.Attachments) == 0 {
			continue
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

type sendRequest struct {
	Number     string   `json:"number"`
	Recipients []string `json:"recipients"`
	Message    string   `json:"message"`
	TextMode   string   `json:"text_mode"`
}

type sendResponse struct {
	Timestamp json.Number `json:"timestamp"`
}

// Send posts a text reply to recipient. A rejected or unreachable gateway is
// reported as a transport error; the caller decides whether to drop the turn.
func (c *Client) Send(ctx context.Context, recipient, text string) error {
	body, err := json.Marshal(sendRequest{
		Number:     c.number,
		Recipients: []string{recipient},
		Message:    text,
		TextMode:   "normal",
	})
	if err != nil {
		return domain.E(domain.KindTransport, "signal.send", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+"/v2/send", bytes.NewReader(body))
	if err != nil {
		return domain.E(domain.KindTransport, "signal.send", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return domain.E(domain.KindTransport, "signal.send", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.Errorf(domain.KindTransport, "signal.send",
			"gateway returned %d: %s", resp.StatusCode, string(respBody))
	}

	var sr sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err == nil && sr.Timestamp != "" {
		c.logger.Debug("message accepted by gateway", "recipient", recipient, "timestamp", sr.Timestamp.String())
	}
	return nil
}

// DownloadAttachment resolves an attachment reference to its bytes. The
// gateway purges attachments after a retention window; a purged ref yields an
// attachment error rather than a transport error.
func (c *Client) DownloadAttachment(ctx context.Context, ref domain.AttachmentRef) (*domain.Attachment, error) {
	u := c.apiBase + "/v1/attachments/" + url.PathEscape(ref.ID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, domain.E(domain.KindTransport, "signal.attachment", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, domain.E(domain.KindTransport, "signal.attachment", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return nil, domain.Errorf(domain.KindAttachment, "signal.attachment",
			"attachment %s no longer served by gateway (%d)", ref.ID, resp.StatusCode)
	default:
		return nil, domain.Errorf(domain.KindTransport, "signal.attachment",
			"gateway returned %d for attachment %s", resp.StatusCode, ref.ID)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.E(domain.KindTransport, "signal.attachment", err)
	}
	if len(data) == 0 {
		return nil, domain.Errorf(domain.KindAttachment, "signal.attachment",
			"attachment %s is empty", ref.ID)
	}

	contentType := ref.ContentType
	if ct := resp.Header.Get("Content-Type"); ct != "" && ct != "application/octet-stream" {
		contentType = ct
	}
	filename := ref.Filename
	if filename == "" {
		filename = ref.ID
	}
	return &domain.Attachment{Data: data, ContentType: contentType, Filename: filename}, nil
}
