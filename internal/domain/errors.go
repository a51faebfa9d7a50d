package domain

import (
	"errors"
	"fmt"
)

// Kind classifies a bridge error for dispatch decisions and operator logs.
type Kind string

const (
	KindTransport     Kind = "transport"     // gateway unreachable or HTTP error
	KindAttachment    Kind = "attachment"    // attachment missing or unservable
	KindTranscription Kind = "transcription" // STT service down or media unsupported
	KindAuth          Kind = "auth"          // provider rejected credentials
	KindRateLimit     Kind = "rate_limit"    // provider throttled the request
	KindUnreachable   Kind = "unreachable"   // provider not reachable
	KindModel         Kind = "model"         // provider accepted the call but failed it
	KindAttestation   Kind = "attestation"   // attestation verification failed
)

// Error is a classified failure from one of the external services.
type Error struct {
	Kind Kind
	Op   string // operation that failed, e.g. "signal.receive"
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// E wraps err with a kind and operation name.
func E(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf is E with fmt.Errorf-style formatting.
func Errorf(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the classification of err, or "" for unclassified errors.
func KindOf(err error) Kind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool { return KindOf(err) == kind }

// IsLLM reports whether err is one of the LLM failure kinds.
func IsLLM(err error) bool {
	switch KindOf(err) {
	case KindAuth, KindRateLimit, KindUnreachable, KindModel:
		return true
	}
	return false
}
