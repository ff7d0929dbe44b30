package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picapica/photobooth-server/internal/audit"
	"github.com/picapica/photobooth-server/internal/config"
	"github.com/picapica/photobooth-server/internal/mailer"
	"github.com/picapica/photobooth-server/internal/relay"
)

// fakeSender stands in for the relay pool.
type fakeSender struct {
	sends      []*mailer.Message
	traceSends []*mailer.Message
	err        error
}

func (f *fakeSender) Send(ctx context.Context, msg *mailer.Message) (relay.Receipt, error) {
	f.sends = append(f.sends, msg)
	if f.err != nil {
		return relay.Receipt{}, f.err
	}
	return relay.Receipt{MessageID: "<fake@relay>"}, nil
}

func (f *fakeSender) SendWithTrace(ctx context.Context, msg *mailer.Message) (relay.Receipt, string, error) {
	f.traceSends = append(f.traceSends, msg)
	if f.err != nil {
		return relay.Receipt{}, "trace: rejected", f.err
	}
	return relay.Receipt{MessageID: "<fake@relay>"}, "trace: accepted", nil
}

func newTestService(t *testing.T, sender Sender) (*Service, *audit.Logger, string) {
	t.Helper()
	dir := t.TempDir()

	logger, err := audit.NewLogger(dir)
	require.NoError(t, err)
	t.Cleanup(logger.Close)

	cfg := &config.Config{
		Mail:  config.MailConfig{FromAddress: "booth@picapica.app", FromName: "Picapica Photobooth"},
		Admin: config.AdminConfig{Key: "sekrit"},
	}
	svc := NewService(cfg, sender, logger, audit.NewAggregator(dir))
	svc.photoStripDelay = 0 // no pacing in tests
	return svc, logger, dir
}

func recordedAttempts(t *testing.T, logger *audit.Logger) []audit.Attempt {
	t.Helper()
	now := time.Now().UTC()
	attempts, err := logger.ListAttempts(now.Add(-24*time.Hour), now.Add(24*time.Hour))
	require.NoError(t, err)
	return attempts
}

func TestSendContactMessage(t *testing.T) {
	sender := &fakeSender{}
	svc, logger, _ := newTestService(t, sender)

	err := svc.SendContactMessage(context.Background(), ContactInput{
		Name:    "Ada",
		Email:   "ada@example.com",
		Message: "lovely booth",
	})
	require.NoError(t, err)
	require.Len(t, sender.sends, 1)

	attempts := recordedAttempts(t, logger)
	require.Len(t, attempts, 1)
	assert.True(t, attempts[0].Success)
	// Contact mail goes to the operator inbox; that is what gets audited.
	assert.Equal(t, "booth@picapica.app", attempts[0].Recipient)
	assert.Equal(t, "<fake@relay>", attempts[0].MessageID)
}

func TestSendContactMessageValidation(t *testing.T) {
	sender := &fakeSender{}
	svc, logger, _ := newTestService(t, sender)

	cases := []ContactInput{
		{Name: "", Email: "ada@example.com", Message: "hi"},
		{Name: "Ada", Email: "", Message: "hi"},
		{Name: "Ada", Email: "ada@example.com", Message: ""},
		{Name: "Ada", Email: "not-an-address", Message: "hi"},
	}
	for _, in := range cases {
		err := svc.SendContactMessage(context.Background(), in)
		var verr *ValidationError
		assert.ErrorAs(t, err, &verr)
	}

	// Validation failures never reach the relay or the audit log.
	assert.Empty(t, sender.sends)
	assert.Empty(t, recordedAttempts(t, logger))
}

func TestSendPhotoStrip(t *testing.T) {
	sender := &fakeSender{}
	svc, logger, _ := newTestService(t, sender)

	res, err := svc.SendPhotoStrip(context.Background(), PhotoStripInput{
		RecipientEmail: "guest@example.com",
		ImageData:      "data:image/png;base64,QUJD",
	})
	require.NoError(t, err)
	assert.Equal(t, "<fake@relay>", res.MessageID)

	attempts := recordedAttempts(t, logger)
	require.Len(t, attempts, 1)
	assert.Equal(t, "guest@example.com", attempts[0].Recipient)
	assert.True(t, attempts[0].Success)
}

func TestSendPhotoStripBadPayload(t *testing.T) {
	sender := &fakeSender{}
	svc, logger, _ := newTestService(t, sender)

	_, err := svc.SendPhotoStrip(context.Background(), PhotoStripInput{
		RecipientEmail: "guest@example.com",
		ImageData:      "not a data uri",
	})

	var perr *mailer.PayloadFormatError
	require.ErrorAs(t, err, &perr)
	assert.Empty(t, sender.sends)
	assert.Empty(t, recordedAttempts(t, logger))
}

func TestSendPhotoStripRelayRejection(t *testing.T) {
	sender := &fakeSender{err: &relay.Error{Kind: relay.EnvelopeRejected, Err: errors.New("550 no such user")}}
	svc, logger, _ := newTestService(t, sender)

	_, err := svc.SendPhotoStrip(context.Background(), PhotoStripInput{
		RecipientEmail: "valid-but-unknown@example.com",
		ImageData:      "data:image/png;base64,QUJD",
	})

	var relayErr *relay.Error
	require.ErrorAs(t, err, &relayErr)
	assert.Equal(t, relay.EnvelopeRejected, relayErr.Kind)

	// Exactly one failure attempt, with the full error detail preserved.
	attempts := recordedAttempts(t, logger)
	require.Len(t, attempts, 1)
	assert.False(t, attempts[0].Success)
	assert.Empty(t, attempts[0].MessageID)
	assert.Contains(t, attempts[0].ErrorDetails, "envelope_rejected")
	assert.Contains(t, attempts[0].ErrorDetails, "550 no such user")
}

func TestSendDiagnosticTest(t *testing.T) {
	sender := &fakeSender{}
	svc, logger, _ := newTestService(t, sender)

	_, err := svc.SendDiagnosticTest(context.Background(), DiagnosticInput{
		Email:    "admin@example.com",
		AdminKey: "wrong",
	})
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Empty(t, sender.traceSends)

	res, err := svc.SendDiagnosticTest(context.Background(), DiagnosticInput{
		Email:    "admin@example.com",
		AdminKey: "sekrit",
	})
	require.NoError(t, err)
	assert.Equal(t, "<fake@relay>", res.MessageID)
	assert.Equal(t, "trace: accepted", res.RawResponse)

	// Diagnostic sends use the verbose path, never the pooled one.
	assert.Empty(t, sender.sends)
	require.Len(t, sender.traceSends, 1)
	require.Len(t, recordedAttempts(t, logger), 1)
}

func TestStats(t *testing.T) {
	sender := &fakeSender{}
	svc, _, _ := newTestService(t, sender)

	_, err := svc.Stats("wrong")
	assert.ErrorIs(t, err, ErrUnauthorized)

	require.NoError(t, svc.SendContactMessage(context.Background(), ContactInput{
		Name: "Ada", Email: "ada@example.com", Message: "hi",
	}))

	report, err := svc.Stats("sekrit")
	require.NoError(t, err)
	assert.Equal(t, 1, report.TotalAttempts)
	assert.Equal(t, "100.00%", report.SuccessRate)

	// Idempotent between sends.
	again, err := svc.Stats("sekrit")
	require.NoError(t, err)
	assert.Equal(t, report, again)
}
