// Package dispatch orchestrates send requests: validate, compose, submit
// through the relay pool, and record an audit attempt for every outcome.
package dispatch

import (
	"context"
	"crypto/subtle"
	"time"

	"github.com/picapica/photobooth-server/internal/audit"
	"github.com/picapica/photobooth-server/internal/config"
	"github.com/picapica/photobooth-server/internal/mailer"
	"github.com/picapica/photobooth-server/internal/relay"
)

// Sender is the transport the service submits composed mail through.
// *relay.Pool satisfies it.
type Sender interface {
	Send(ctx context.Context, msg *mailer.Message) (relay.Receipt, error)
	SendWithTrace(ctx context.Context, msg *mailer.Message) (relay.Receipt, string, error)
}

// Service is the outward contract of the mail subsystem. Every send call
// records exactly one audit attempt, success or failure, before returning.
type Service struct {
	operator   mailer.Identity
	adminKey   []byte
	sender     Sender
	logger     *audit.Logger
	aggregator *audit.Aggregator

	// pacing pause before photo-strip sends; not a retry
	photoStripDelay time.Duration
}

// NewService wires the dispatcher from the immutable startup config.
func NewService(cfg *config.Config, sender Sender, logger *audit.Logger, aggregator *audit.Aggregator) *Service {
	return &Service{
		operator: mailer.Identity{
			Address: cfg.Mail.FromAddress,
			Name:    cfg.Mail.FromName,
		},
		adminKey:        []byte(cfg.Admin.Key),
		sender:          sender,
		logger:          logger,
		aggregator:      aggregator,
		photoStripDelay: 300 * time.Millisecond,
	}
}

// ContactInput is a contact-form submission.
type ContactInput struct {
	Name    string
	Email   string
	Message string
}

// PhotoStripInput carries a photo strip and its destination.
type PhotoStripInput struct {
	RecipientEmail string
	ImageData      string
}

// DiagnosticInput is an admin-triggered delivery check.
type DiagnosticInput struct {
	Email    string
	AdminKey string
}

// SendResult is the successful outcome of a user-facing send.
type SendResult struct {
	MessageID string
}

// DiagnosticResult additionally carries the relay protocol trace.
type DiagnosticResult struct {
	MessageID   string
	RawResponse string
}

// SendContactMessage delivers a contact-form message to the operator's own
// inbox. The audit attempt is recorded against the operator address - that
// is where the mail goes.
func (s *Service) SendContactMessage(ctx context.Context, in ContactInput) error {
	if in.Name == "" || in.Email == "" || in.Message == "" {
		return &ValidationError{Message: "All fields are required"}
	}
	if !mailer.ValidateAddress(in.Email) {
		return &ValidationError{Message: "Invalid email format"}
	}

	msg, err := mailer.Compose(mailer.ContactMessage{
		Name:        in.Name,
		SenderEmail: in.Email,
		Body:        in.Message,
	}, s.operator)
	if err != nil {
		return err
	}

	receipt, err := s.sender.Send(ctx, msg)
	s.record(s.operator.Address, receipt, err)
	return err
}

// SendPhotoStrip delivers a photo strip to the visitor. Payload problems
// are detected before any network call and recorded nowhere; once the
// relay is involved, the outcome is always audited.
func (s *Service) SendPhotoStrip(ctx context.Context, in PhotoStripInput) (*SendResult, error) {
	if in.RecipientEmail == "" || in.ImageData == "" {
		return nil, &ValidationError{Message: "Missing email or image data"}
	}
	if !mailer.ValidateAddress(in.RecipientEmail) {
		return nil, &ValidationError{Message: "Invalid email format"}
	}

	msg, err := mailer.Compose(mailer.PhotoStrip{
		Recipient:    in.RecipientEmail,
		ImageDataURI: in.ImageData,
	}, s.operator)
	if err != nil {
		return nil, err
	}

	// Single pacing pause so back-to-back strips from the booth UI don't
	// trip the relay's rate limiter.
	time.Sleep(s.photoStripDelay)

	receipt, err := s.sender.Send(ctx, msg)
	s.record(in.RecipientEmail, receipt, err)
	if err != nil {
		return nil, err
	}
	return &SendResult{MessageID: receipt.MessageID}, nil
}

// SendDiagnosticTest sends the delivery-check mail on the verbose
// diagnostic transport path. Gated by the admin key.
func (s *Service) SendDiagnosticTest(ctx context.Context, in DiagnosticInput) (*DiagnosticResult, error) {
	if !s.authorized(in.AdminKey) {
		return nil, ErrUnauthorized
	}
	if in.Email == "" {
		return nil, &ValidationError{Message: "Email parameter is required"}
	}
	if !mailer.ValidateAddress(in.Email) {
		return nil, &ValidationError{Message: "Invalid email format"}
	}

	msg, err := mailer.Compose(mailer.DiagnosticTest{Recipient: in.Email}, s.operator)
	if err != nil {
		return nil, err
	}

	receipt, trace, err := s.sender.SendWithTrace(ctx, msg)
	s.record(in.Email, receipt, err)
	if err != nil {
		return nil, err
	}
	return &DiagnosticResult{
		MessageID:   receipt.MessageID,
		RawResponse: trace,
	}, nil
}

// Stats computes delivery statistics over the full audit history. Gated by
// the admin key; idempotent between sends.
func (s *Service) Stats(adminKey string) (*audit.Report, error) {
	if !s.authorized(adminKey) {
		return nil, ErrUnauthorized
	}
	return s.aggregator.Stats(), nil
}

func (s *Service) authorized(key string) bool {
	return subtle.ConstantTimeCompare([]byte(key), s.adminKey) == 1
}

// record persists the attempt unconditionally. The full transport error is
// preserved here even though callers only see the coarse category.
func (s *Service) record(recipient string, receipt relay.Receipt, sendErr error) {
	attempt := audit.Attempt{
		Timestamp: time.Now().UTC(),
		Recipient: recipient,
	}
	if sendErr != nil {
		attempt.ErrorDetails = sendErr.Error()
	} else {
		attempt.Success = true
		attempt.MessageID = receipt.MessageID
	}
	s.logger.Record(attempt)
}
