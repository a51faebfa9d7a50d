// Package bridge contains the dispatcher: a single-threaded poll loop that
// relays Signal messages to an LLM provider and posts the replies back.
package bridge

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"signallama/internal/domain"
	"signallama/internal/metrics"
)

const (
	// apologyReply is the single user-visible reply for any LLM failure.
	apologyReply = "Sorry, I couldn't generate a response. Please try again."
	// voiceFallbackReply is sent when a voice message cannot be transcribed
	// and the notify policy is configured.
	voiceFallbackReply = "Sorry, I couldn't process that voice message."

	defaultPollInterval = time.Second
)

// OnTranscribeError selects what the dispatcher does when a voice message
// cannot be turned into text.
type OnTranscribeError string

const (
	// NotifySender sends voiceFallbackReply to the sender.
	NotifySender OnTranscribeError = "notify"
	// SilentSkip drops the message without a reply.
	SilentSkip OnTranscribeError = "skip"
)

// Config wires the bridge's collaborators. All services are reached through
// interfaces so tests can substitute fakes.
type Config struct {
	Messenger    domain.Messenger
	Provider     domain.Provider
	Transcriber  domain.Transcriber // nil disables voice transcription
	History      *History
	SystemPrompt string
	PollInterval time.Duration
	OnTranscribe OnTranscribeError

	// Preflight runs once before the first poll (companion proxy startup,
	// attestation). A preflight error aborts Run before anything is fetched.
	Preflight func(ctx context.Context) error

	Logger *slog.Logger
}

// Bridge is the poll-dispatch-reply loop.
type Bridge struct {
	messenger    domain.Messenger
	provider     domain.Provider
	transcriber  domain.Transcriber
	history      *History
	systemPrompt string
	pollInterval time.Duration
	onTranscribe OnTranscribeError
	preflight    func(ctx context.Context) error
	logger       *slog.Logger

	received        *metrics.Counter
	repliesSent     *metrics.Counter
	sendFailures    *metrics.Counter
	receiveFailures *metrics.Counter
	transcriptions  *metrics.Counter
	llmFailures     *metrics.Counter
	pollCycles      *metrics.Counter
}

func New(cfg Config) *Bridge {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.OnTranscribe == "" {
		cfg.OnTranscribe = NotifySender
	}
	if cfg.History == nil {
		cfg.History = NewHistory(0)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	c := metrics.Collector
	return &Bridge{
		messenger:    cfg.Messenger,
		provider:     cfg.Provider,
		transcriber:  cfg.Transcriber,
		history:      cfg.History,
		systemPrompt: cfg.SystemPrompt,
		pollInterval: cfg.PollInterval,
		onTranscribe: cfg.OnTranscribe,
		preflight:    cfg.Preflight,
		logger:       cfg.Logger,

		received:        c.Counter("signallama_messages_received_total", "Inbound messages fetched from the gateway"),
		repliesSent:     c.Counter("signallama_replies_sent_total", "Replies delivered to the gateway"),
		sendFailures:    c.Counter("signallama_send_failures_total", "Replies the gateway rejected"),
		receiveFailures: c.Counter("signallama_receive_failures_total", "Poll cycles that failed to fetch"),
		transcriptions:  c.Counter("signallama_transcriptions_total", "Voice messages transcribed"),
		llmFailures:     c.Counter("signallama_llm_failures_total", "LLM calls that failed"),
		pollCycles:      c.Counter("signallama_poll_cycles_total", "Completed poll cycles"),
	}
}

// Run executes the poll loop until ctx is cancelled. A failed preflight is
// the only error Run returns; per-cycle failures are logged and absorbed so
// one bad cycle never takes the loop down.
func (b *Bridge) Run(ctx context.Context) error {
	if b.preflight != nil {
		if err := b.preflight(ctx); err != nil {
			return err
		}
	}

	b.logger.Info("bridge started", "provider", b.provider.Name(),
		"transcription", b.transcriber != nil, "poll_interval", b.pollInterval)

	for {
		msgs, err := b.messenger.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				b.logger.Info("bridge stopping")
				return nil
			}
			b.receiveFailures.Inc()
			b.logger.Error("receive failed, skipping cycle",
				"kind", domain.KindOf(err), "error", err)
		} else {
			// Strict arrival order: replies for a sender must never be
			// reordered relative to that sender's inbound messages.
			for _, msg := range msgs {
				b.handle(ctx, msg)
			}
			b.pollCycles.Inc()
		}

		select {
		case <-ctx.Done():
			b.logger.Info("bridge stopping")
			return nil
		case <-time.After(b.pollInterval):
		}
	}
}

// handle processes one inbound message end to end. At most one reply is sent.
func (b *Bridge) handle(ctx context.Context, msg domain.InboundMessage) {
	b.received.Inc()

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		var ok bool
		text, ok = b.transcribeVoice(ctx, msg)
		if !ok {
			return
		}
	}

	b.logger.Info("message received", "sender", msg.Sender, "len", len(text))

	reply := b.complete(ctx, msg.Sender, text)
	if reply == "" {
		b.logger.Debug("empty reply, nothing to send", "sender", msg.Sender)
		return
	}
	b.send(ctx, msg.Sender, reply)
}

// transcribeVoice turns a voice-only message into text. Returns ok=false when
// there is nothing to forward to the LLM; in that case the fallback policy
// has already been applied.
func (b *Bridge) transcribeVoice(ctx context.Context, msg domain.InboundMessage) (string, bool) {
	ref, ok := msg.VoiceAttachment()
	if !ok {
		b.logger.Debug("message has neither text nor voice attachment, skipping", "sender", msg.Sender)
		return "", false
	}

	if b.transcriber == nil {
		b.logger.Info("voice message received but transcription is disabled", "sender", msg.Sender)
		b.voiceFallback(ctx, msg.Sender)
		return "", false
	}

	att, err := b.messenger.DownloadAttachment(ctx, ref)
	if err != nil {
		b.logger.Error("attachment download failed",
			"sender", msg.Sender, "kind", domain.KindOf(err), "error", err)
		b.voiceFallback(ctx, msg.Sender)
		return "", false
	}

	transcript, err := b.transcriber.Transcribe(ctx, att)
	if err != nil {
		b.logger.Error("transcription failed",
			"sender", msg.Sender, "kind", domain.KindOf(err), "error", err)
		b.voiceFallback(ctx, msg.Sender)
		return "", false
	}

	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		b.logger.Info("empty transcript, skipping", "sender", msg.Sender)
		return "", false
	}

	b.transcriptions.Inc()
	b.logger.Info("voice message transcribed", "sender", msg.Sender, "len", len(transcript))
	return transcript, true
}

// voiceFallback applies the configured could-not-transcribe policy.
func (b *Bridge) voiceFallback(ctx context.Context, sender string) {
	if b.onTranscribe == SilentSkip {
		return
	}
	b.send(ctx, sender, voiceFallbackReply)
}

// complete runs the LLM call for one turn. Any LLM failure maps to the fixed
// apology; the exchange is only recorded in history when the call succeeds.
func (b *Bridge) complete(ctx context.Context, sender, text string) string {
	var turns []domain.Message
	if b.systemPrompt != "" {
		turns = append(turns, domain.Message{Role: "system", Content: b.systemPrompt})
	}
	turns = append(turns, b.history.Turns(sender)...)
	turns = append(turns, domain.Message{Role: "user", Content: text})

	resp, err := b.provider.Chat(ctx, domain.ChatRequest{Messages: turns})
	if err != nil {
		b.llmFailures.Inc()
		b.logger.Error("llm call failed",
			"sender", sender, "provider", b.provider.Name(),
			"kind", domain.KindOf(err), "error", err)
		return apologyReply
	}

	reply := stripThinkTags(resp.Content)
	if reply != "" {
		b.history.Record(sender, text, reply)
	}
	return reply
}

// send delivers one reply. Failure is logged and dropped: no retries, so a
// flapping gateway cannot cause reply storms or block later messages.
func (b *Bridge) send(ctx context.Context, recipient, text string) {
	if err := b.messenger.Send(ctx, recipient, text); err != nil {
		b.sendFailures.Inc()
		b.logger.Error("send failed, dropping reply",
			"recipient", recipient, "kind", domain.KindOf(err), "error", err)
		return
	}
	b.repliesSent.Inc()
	b.logger.Info("reply sent", "recipient", recipient, "len", len(text))
}
