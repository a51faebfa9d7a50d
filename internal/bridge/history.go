package bridge

import (
	"sync"

	"signallama/internal/domain"
)

// History keeps a bounded per-sender conversation buffer in memory. Each
// recorded exchange is one user turn plus one assistant turn; once a sender
// exceeds maxTurns exchanges the oldest exchange is evicted (FIFO), bounding
// memory. Nothing is written to disk.
type History struct {
	mu       sync.Mutex
	maxTurns int
	bySender map[string][]domain.Message
}

// NewHistory creates a history buffer. maxTurns == 0 disables cross-turn
// context entirely: every message is answered statelessly.
func NewHistory(maxTurns int) *History {
	return &History{
		maxTurns: maxTurns,
		bySender: make(map[string][]domain.Message),
	}
}

// Turns returns a copy of the sender's recorded conversation, oldest first.
func (h *History) Turns(sender string) []domain.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	msgs := h.bySender[sender]
	out := make([]domain.Message, len(msgs))
	copy(out, msgs)
	return out
}

// Record appends a completed exchange for the sender and evicts the oldest
// exchange if the buffer is over capacity.
func (h *History) Record(sender, userText, assistantText string) {
	if h.maxTurns == 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	msgs := append(h.bySender[sender],
		domain.Message{Role: "user", Content: userText},
		domain.Message{Role: "assistant", Content: assistantText},
	)
	if max := h.maxTurns * 2; len(msgs) > max {
		msgs = msgs[len(msgs)-max:]
	}
	h.bySender[sender] = msgs
}

// Len returns the number of messages recorded for the sender.
func (h *History) Len(sender string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.bySender[sender])
}
