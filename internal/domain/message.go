package domain

import (
	"strings"
	"time"
)

// InboundMessage is one data message received from the Signal gateway.
type InboundMessage struct {
	Sender      string
	Timestamp   time.Time
	Text        string
	Attachments []AttachmentRef
}

// HasText reports whether the message carries a non-empty text body.
func (m InboundMessage) HasText() bool { return strings.TrimSpace(m.Text) != "" }

// VoiceAttachment returns the first audio attachment reference, if any.
func (m InboundMessage) VoiceAttachment() (AttachmentRef, bool) {
	for _, a := range m.Attachments {
		if a.IsAudio() {
			return a, true
		}
	}
	return AttachmentRef{}, false
}

// AttachmentRef points at an attachment held by the gateway. The gateway
// serves the bytes separately; the ref alone carries no payload.
type AttachmentRef struct {
	ID          string
	ContentType string
	Filename    string
}

func (a AttachmentRef) IsAudio() bool {
	return strings.HasPrefix(a.ContentType, "audio/")
}

// Attachment is a downloaded attachment payload.
type Attachment struct {
	Data        []byte
	ContentType string
	Filename    string
}
