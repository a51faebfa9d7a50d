package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf_Classified(t *testing.T) {
	err := E(KindTransport, "signal.receive", errors.New("connection refused"))
	if KindOf(err) != KindTransport {
		t.Fatalf("expected transport kind, got %q", KindOf(err))
	}
}

func TestKindOf_Wrapped(t *testing.T) {
	inner := E(KindRateLimit, "openai.chat", errors.New("429"))
	wrapped := fmt.Errorf("cycle failed: %w", inner)
	if KindOf(wrapped) != KindRateLimit {
		t.Fatalf("kind should survive wrapping, got %q", KindOf(wrapped))
	}
}

func TestKindOf_Unclassified(t *testing.T) {
	if KindOf(errors.New("plain")) != "" {
		t.Fatal("plain error should have no kind")
	}
	if KindOf(nil) != "" {
		t.Fatal("nil error should have no kind")
	}
}

func TestIsKind(t *testing.T) {
	err := Errorf(KindAttachment, "signal.attachment", "gone")
	if !IsKind(err, KindAttachment) {
		t.Fatal("expected attachment kind")
	}
	if IsKind(err, KindTransport) {
		t.Fatal("attachment error must not match transport")
	}
}

func TestIsLLM(t *testing.T) {
	for _, kind := range []Kind{KindAuth, KindRateLimit, KindUnreachable, KindModel} {
		if !IsLLM(E(kind, "chat", errors.New("x"))) {
			t.Fatalf("%s should be an LLM kind", kind)
		}
	}
	for _, kind := range []Kind{KindTransport, KindAttachment, KindTranscription, KindAttestation} {
		if IsLLM(E(kind, "op", errors.New("x"))) {
			t.Fatalf("%s should not be an LLM kind", kind)
		}
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	err := E(KindModel, "ollama.chat", cause)
	if !errors.Is(err, cause) {
		t.Fatal("errors.Is should find the cause through Unwrap")
	}
}
