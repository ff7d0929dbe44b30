// Package relay sends composed mail through a bounded pool of
// authenticated SMTP sessions against a single fixed relay.
package relay

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/picapica/photobooth-server/internal/config"
	"github.com/picapica/photobooth-server/internal/mailer"
)

// Receipt is the relay's acknowledgement of an accepted message.
type Receipt struct {
	MessageID string
}

// session is one authenticated relay connection. Sessions are owned
// exclusively by the pool and retire after maxMessages sends.
type session struct {
	client *smtp.Client
	sent   int
}

func (s *session) shutdown() {
	if err := s.client.Quit(); err != nil {
		_ = s.client.Close()
	}
}

// Pool is a bounded pool of relay sessions. Sends block while all sessions
// are saturated; they never fail fast with a capacity error. The rate limit
// is enforced centrally, so bursts from unrelated requests are serialized
// here rather than per caller.
type Pool struct {
	cfg     config.SMTPConfig
	limiter *rate.Limiter

	sem  chan struct{} // counting semaphore, one token per live session
	idle chan *session

	closeOnce sync.Once
	closed    chan struct{}
}

// NewPool creates a pool for the given relay. No connection is made until
// the first send.
func NewPool(cfg config.SMTPConfig) *Pool {
	maxConns := cfg.MaxConnections
	if maxConns <= 0 {
		maxConns = 5
	}
	perSecond := cfg.RateLimit
	if perSecond <= 0 {
		perSecond = 5
	}

	return &Pool{
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(perSecond), perSecond),
		sem:     make(chan struct{}, maxConns),
		idle:    make(chan *session, maxConns),
		closed:  make(chan struct{}),
	}
}

// Send transmits the message through a pooled session. The session is
// released back to the pool whether or not the send succeeded.
func (p *Pool) Send(ctx context.Context, msg *mailer.Message) (Receipt, error) {
	s, err := p.acquire(ctx)
	if err != nil {
		return Receipt{}, err
	}
	receipt, err := p.transmit(ctx, s, msg, nil)
	p.release(s, err)
	return receipt, err
}

// SendWithTrace transmits the message on a dedicated, non-pooled connection
// and returns the verbose protocol trace alongside the outcome. Used only
// by the diagnostic operation, never for user-facing sends.
func (p *Pool) SendWithTrace(ctx context.Context, msg *mailer.Message) (Receipt, string, error) {
	tr := newTracer()
	s, err := p.dial(tr)
	if err != nil {
		return Receipt{}, tr.String(), err
	}
	defer s.shutdown()

	receipt, err := p.transmit(ctx, s, msg, tr)
	return receipt, tr.String(), err
}

// Close quits all idle sessions. In-flight sessions are closed as they are
// released.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.closed)
		for {
			select {
			case s := <-p.idle:
				s.shutdown()
				<-p.sem
			default:
				return
			}
		}
	})
}

func (p *Pool) isClosed() bool {
	select {
	case <-p.closed:
		return true
	default:
		return false
	}
}

// acquire returns a ready session, preferring a warm one. Reused sessions
// get a NOOP liveness check and are redialed transparently when stale.
// Blocks while the pool is saturated, bounded only by ctx.
func (p *Pool) acquire(ctx context.Context) (*session, error) {
	for {
		select {
		case s := <-p.idle:
			if err := s.client.Noop(); err != nil {
				s.shutdown()
				<-p.sem
				continue
			}
			return s, nil
		default:
		}

		select {
		case s := <-p.idle:
			if err := s.client.Noop(); err != nil {
				s.shutdown()
				<-p.sem
				continue
			}
			return s, nil
		case p.sem <- struct{}{}:
			s, err := p.dial(nil)
			if err != nil {
				<-p.sem
				return nil, err
			}
			return s, nil
		case <-ctx.Done():
			return nil, classify(stageDial, ctx.Err())
		}
	}
}

// release returns a healthy session to the pool. Sessions that errored or
// reached their message cap are retired.
func (p *Pool) release(s *session, sendErr error) {
	maxMessages := p.cfg.MaxMessages
	if maxMessages <= 0 {
		maxMessages = 100
	}

	if sendErr != nil || s.sent >= maxMessages || p.isClosed() {
		s.shutdown()
		<-p.sem
		return
	}

	select {
	case p.idle <- s:
	default:
		s.shutdown()
		<-p.sem
	}
}

// dial opens and authenticates a fresh relay session.
func (p *Pool) dial(tr *tracer) (*session, error) {
	addr := p.cfg.Addr()
	tr.printf("connecting to %s", addr)

	conn, err := net.DialTimeout("tcp", addr, p.cfg.ConnectTimeout())
	if err != nil {
		tr.printf("connect failed: %v", err)
		return nil, classify(stageDial, err)
	}

	c := smtp.NewClient(conn)
	c.CommandTimeout = p.cfg.HandshakeTimeout()
	c.SubmissionTimeout = p.cfg.IOTimeout()

	if err := c.Hello("picapica"); err != nil {
		tr.printf("EHLO rejected: %v", err)
		_ = c.Close()
		return nil, classify(stageHandshake, err)
	}
	tr.printf("EHLO accepted")

	if ok, _ := c.Extension("STARTTLS"); ok {
		// Peer verification is deliberately off: the booth talks to relays
		// with self-signed or mismatched certificates.
		tlsConfig := &tls.Config{
			ServerName:         p.cfg.Host,
			InsecureSkipVerify: true,
		}
		if err := c.StartTLS(tlsConfig); err != nil {
			tr.printf("STARTTLS failed: %v", err)
			_ = c.Close()
			return nil, classify(stageHandshake, err)
		}
		tr.printf("STARTTLS established")
	}

	if p.cfg.Username != "" {
		if ok, _ := c.Extension("AUTH"); ok {
			auth := sasl.NewPlainClient("", p.cfg.Username, p.cfg.Password)
			if err := c.Auth(auth); err != nil {
				tr.printf("AUTH PLAIN rejected: %v", err)
				_ = c.Close()
				return nil, classify(stageAuth, err)
			}
			tr.printf("AUTH PLAIN accepted for %s", p.cfg.Username)
		}
	}

	return &session{client: c}, nil
}

// transmit performs the envelope and data exchange on an established
// session. The central rate limiter gates every message.
func (p *Pool) transmit(ctx context.Context, s *session, msg *mailer.Message, tr *tracer) (Receipt, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return Receipt{}, classify(stageDial, err)
	}

	messageID := fmt.Sprintf("<%s@%s>", uuid.New().String(), p.cfg.Host)
	raw, err := msg.Bytes(messageID)
	if err != nil {
		return Receipt{}, &Error{Kind: Unknown, Err: err}
	}

	c := s.client
	if err := c.Mail(msg.From, nil); err != nil {
		tr.printf("MAIL FROM:<%s> rejected: %v", msg.From, err)
		return Receipt{}, classify(stageEnvelope, err)
	}
	tr.printf("MAIL FROM:<%s> accepted", msg.From)

	if err := c.Rcpt(msg.To, nil); err != nil {
		tr.printf("RCPT TO:<%s> rejected: %v", msg.To, err)
		return Receipt{}, classify(stageEnvelope, err)
	}
	tr.printf("RCPT TO:<%s> accepted", msg.To)

	w, err := c.Data()
	if err != nil {
		tr.printf("DATA rejected: %v", err)
		return Receipt{}, classify(stageData, err)
	}
	if _, err := w.Write(raw); err != nil {
		_ = w.Close()
		tr.printf("message write failed: %v", err)
		return Receipt{}, classify(stageData, err)
	}
	if err := w.Close(); err != nil {
		tr.printf("message rejected after DATA: %v", err)
		return Receipt{}, classify(stageData, err)
	}
	tr.printf("message accepted, %d bytes, id %s", len(raw), messageID)

	s.sent++
	return Receipt{MessageID: messageID}, nil
}
