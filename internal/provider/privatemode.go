package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"signallama/internal/attest"
	"signallama/internal/domain"
)

// PrivateMode implements domain.AttestedProvider. Requests go through the
// locally running PrivateMode proxy, which speaks the OpenAI chat API and
// exposes an /attestation endpoint describing the confidential-computing
// environment the inference runs in.
//
// With verification enabled, Chat fails closed: no message content leaves the
// process until VerifyAttestation has succeeded once.
type PrivateMode struct {
	inner     *OpenAI
	proxyBase string
	verify    bool
	verified  atomic.Bool
	client    *http.Client
	logger    *slog.Logger
}

type PrivateModeConfig struct {
	ProxyBase string // e.g. "http://localhost:8080"
	APIKey    string
	Model     string
	Verify    bool // require attestation before any Chat call
	Logger    *slog.Logger
}

func NewPrivateMode(cfg PrivateModeConfig) *PrivateMode {
	if cfg.ProxyBase == "" {
		cfg.ProxyBase = "http://localhost:8080"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &PrivateMode{
		inner: NewOpenAI(OpenAIConfig{
			Name:    "privatemode",
			APIKey:  cfg.APIKey,
			APIBase: cfg.ProxyBase + "/v1",
			Model:   cfg.Model,
			Logger:  cfg.Logger,
		}),
		proxyBase: cfg.ProxyBase,
		verify:    cfg.Verify,
		client:    &http.Client{Timeout: 15 * time.Second},
		logger:    cfg.Logger,
	}
}

func NewPrivateModeWithClient(cfg PrivateModeConfig, client *http.Client) *PrivateMode {
	p := NewPrivateMode(cfg)
	if client != nil {
		p.client = client
		p.inner = NewOpenAIWithClient(OpenAIConfig{
			Name:    "privatemode",
			APIKey:  cfg.APIKey,
			APIBase: cfg.ProxyBase + "/v1",
			Model:   cfg.Model,
			Logger:  cfg.Logger,
		}, client)
	}
	return p
}

func (p *PrivateMode) Name() string { return "privatemode" }

func (p *PrivateMode) Healthy(ctx context.Context) error {
	return p.inner.Healthy(ctx)
}

// VerifyAttestation fetches the attestation document and requires the
// evidence to be present and well-formed. The proxy performs the
// cryptographic validation against the hardware; deeper offline checks live
// in internal/attest. Verification must succeed once before Chat will send
// anything when it is enabled.
func (p *PrivateMode) VerifyAttestation(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.proxyBase+"/attestation", nil)
	if err != nil {
		return domain.E(domain.KindAttestation, "privatemode.attestation", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return domain.E(domain.KindAttestation, "privatemode.attestation",
			fmt.Errorf("proxy not reachable: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.Errorf(domain.KindAttestation, "privatemode.attestation",
			"proxy returned %d: %s", resp.StatusCode, string(body))
	}

	var doc attest.Document
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return domain.E(domain.KindAttestation, "privatemode.attestation",
			fmt.Errorf("decode attestation: %w", err))
	}

	switch {
	case len(doc.Manifest) == 0:
		return domain.Errorf(domain.KindAttestation, "privatemode.attestation", "attestation missing manifest")
	case doc.Signature == "":
		return domain.Errorf(domain.KindAttestation, "privatemode.attestation", "attestation missing signature")
	case len(doc.Certificates) == 0:
		return domain.Errorf(domain.KindAttestation, "privatemode.attestation", "attestation missing certificate chain")
	}

	hashPreview := doc.ManifestHash
	if len(hashPreview) > 16 {
		hashPreview = hashPreview[:16]
	}
	p.logger.Info("attestation verified",
		"manifest_hash", hashPreview,
		"cert_chain_len", len(doc.Certificates),
	)

	p.verified.Store(true)
	return nil
}

// Verified reports whether attestation has succeeded since startup.
func (p *PrivateMode) Verified() bool { return p.verified.Load() }

func (p *PrivateMode) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	if p.verify && !p.verified.Load() {
		return nil, domain.E(domain.KindAttestation, "privatemode.chat",
			errors.New("attestation not verified, refusing to send message content"))
	}
	return p.inner.Chat(ctx, req)
}
