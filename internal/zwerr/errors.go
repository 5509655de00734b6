// Package zwerr defines the gateway's error kinds (spec §7). Errors are
// never thrown - every submission carries an explicit callback, and this
// package exists so those callbacks can switch on a small typed kind
// instead of string-matching error messages.
package zwerr

import "errors"

// Kind classifies an error into one of the seven families spec §7
// names. It is carried alongside the wrapped sentinel so callers can
// branch without unwrapping.
type Kind int

const (
	KindRadioFail Kind = iota
	KindSecurityFail
	KindTimeout
	KindProtocolViolation
	KindBusy
	KindNotSupported
	KindPoolExhausted
)

func (k Kind) String() string {
	names := [...]string{
		"RadioFail", "SecurityFail", "Timeout", "ProtocolViolation",
		"Busy", "NotSupported", "PoolExhausted",
	}
	if int(k) < len(names) {
		return names[k]
	}
	return "Unknown"
}

// Error wraps a sentinel with its Kind.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string { return e.Kind.String() + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

func newErr(k Kind, msg string) *Error {
	return &Error{Kind: k, Err: errors.New(msg)}
}

// Sentinels for each kind's common cause. Wrap lets callers attach a
// Kind to any other error, keeping the Kind classification.
var (
	ErrNoAck              = newErr(KindRadioFail, "no acknowledgement from radio")
	ErrRoutingFailure     = newErr(KindRadioFail, "routing failure")
	ErrAborted            = newErr(KindRadioFail, "transmission aborted")
	ErrFailedNodeNotFound = newErr(KindRadioFail, "node not present in the controller's failed-node list")
	ErrMACMismatch        = newErr(KindSecurityFail, "security MAC mismatch")
	ErrDecryptStructural  = newErr(KindSecurityFail, "malformed encrypted payload")
	ErrNonceUnknown       = newErr(KindSecurityFail, "no matching nonce registered")
	ErrBootstrapTimeout   = newErr(KindSecurityFail, "security bootstrap timed out")
	ErrStateTimeout       = newErr(KindTimeout, "state timer expired")
	ErrBadTLVLength       = newErr(KindProtocolViolation, "impossible TLV length")
	ErrBusy               = newErr(KindBusy, "component already has an outstanding request")
	ErrUnknownClass       = newErr(KindNotSupported, "unknown command class")
	ErrUnimplementedCmd   = newErr(KindNotSupported, "unimplemented command")
	ErrPoolExhausted      = newErr(KindPoolExhausted, "no free session/slot available")
)

// Is reports whether err (or something it wraps) carries kind k.
func Is(err error, k Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == k
	}
	return false
}

// Wrap attaches kind k to err, preserving err as the unwrap target.
func Wrap(k Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: k, Err: err}
}
