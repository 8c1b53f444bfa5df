package tuya

import (
	"errors"
	"fmt"
)

// ErrorKind categorizes the errors the engine can surface, per spec.md §7
// and the Design Notes' "tagged error results" guidance.
type ErrorKind int

const (
	// KindDecode covers malformed frames/payloads, bad prefixes, bad length.
	KindDecode ErrorKind = iota
	// KindEncryption covers GCM tag failure on all three decrypt strategies.
	KindEncryption
	// KindSessionKey covers handshake failures (missing/short response,
	// impossible key derivation).
	KindSessionKey
	// KindTimeout covers an exchange deadline expiring with no reply.
	KindTimeout
	// KindTransport covers connection refused/reset/closed-by-peer.
	KindTransport
	// KindEncoding covers caller-side encoding errors (bad key length,
	// non-JSON-encodable DP value) caught before any bytes are sent.
	KindEncoding
)

func (k ErrorKind) String() string {
	switch k {
	case KindDecode:
		return "decode"
	case KindEncryption:
		return "encryption"
	case KindSessionKey:
		return "session-key"
	case KindTimeout:
		return "timeout"
	case KindTransport:
		return "transport"
	case KindEncoding:
		return "encoding"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// Error is the error type returned by every operation in this package.
type Error struct {
	Kind ErrorKind
	Op   string // operation that failed, e.g. "dispatcher.route", "session.exchange"
	Err  error  // underlying error, if any
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("tuya: %s: %s: %v", e.Kind, e.Op, e.Err)
	}
	return fmt.Sprintf("tuya: %s: %s", e.Kind, e.Op)
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func decodeErrorf(op, format string, args ...any) *Error {
	return newErr(KindDecode, op, fmt.Errorf(format, args...))
}

func encryptionErrorf(op, format string, args ...any) *Error {
	return newErr(KindEncryption, op, fmt.Errorf(format, args...))
}

func sessionKeyErrorf(op, format string, args ...any) *Error {
	return newErr(KindSessionKey, op, fmt.Errorf(format, args...))
}

func timeoutErrorf(op, format string, args ...any) *Error {
	return newErr(KindTimeout, op, fmt.Errorf(format, args...))
}

func transportError(op string, err error) *Error {
	return newErr(KindTransport, op, err)
}

func encodingErrorf(op, format string, args ...any) *Error {
	return newErr(KindEncoding, op, fmt.Errorf(format, args...))
}

// IsTimeout reports whether err is a timeout error from this package.
func IsTimeout(err error) bool { return kindIs(err, KindTimeout) }

// IsTransport reports whether err is a transport error from this package.
func IsTransport(err error) bool { return kindIs(err, KindTransport) }

// IsSessionKey reports whether err is a session-key handshake error.
func IsSessionKey(err error) bool { return kindIs(err, KindSessionKey) }

// IsEncryption reports whether err is a GCM/ECB encryption or decryption
// error from this package.
func IsEncryption(err error) bool { return kindIs(err, KindEncryption) }

// IsDecode reports whether err is a frame or payload decode error.
func IsDecode(err error) bool { return kindIs(err, KindDecode) }

func kindIs(err error, kind ErrorKind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
