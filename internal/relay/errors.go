package relay

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/emersion/go-smtp"
)

// ErrorKind is the coarse client-facing category of a transport failure.
// The full underlying error is preserved in Err for the audit log.
type ErrorKind string

const (
	AuthenticationFailed ErrorKind = "authentication_failed"
	ConnectTimeout       ErrorKind = "connect_timeout"
	EnvelopeRejected     ErrorKind = "envelope_rejected"
	Unknown              ErrorKind = "unknown"
)

// Error is a classified relay failure.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("relay %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// protocol stages used for classification
type stage int

const (
	stageDial stage = iota
	stageHandshake
	stageAuth
	stageEnvelope
	stageData
)

// classify maps a raw transport error to its client-facing kind based on
// the protocol stage it occurred in and, for SMTP status codes, the code
// class the relay returned.
func classify(st stage, err error) *Error {
	var relayErr *Error
	if errors.As(err, &relayErr) {
		return relayErr
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: ConnectTimeout, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: ConnectTimeout, Err: err}
	}

	var smtpErr *smtp.SMTPError
	if errors.As(err, &smtpErr) {
		switch {
		case st == stageAuth:
			return &Error{Kind: AuthenticationFailed, Err: err}
		case smtpErr.Code == 530 || smtpErr.Code == 534 || smtpErr.Code == 535 || smtpErr.Code == 538:
			return &Error{Kind: AuthenticationFailed, Err: err}
		case st == stageEnvelope:
			return &Error{Kind: EnvelopeRejected, Err: err}
		}
	}

	return &Error{Kind: Unknown, Err: err}
}
