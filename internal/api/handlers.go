// Package api exposes the mail subsystem over HTTP. Handlers translate
// request bodies into dispatch inputs and dispatch errors into the
// client-facing status codes and messages.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/picapica/photobooth-server/internal/audit"
	"github.com/picapica/photobooth-server/internal/dispatch"
	"github.com/picapica/photobooth-server/internal/mailer"
	"github.com/picapica/photobooth-server/internal/relay"
)

// maxPhotoStripBody bounds the photo-strip request body. Data-URI encoded
// strips from the booth UI run a few MB; 50MB leaves plenty of headroom.
const maxPhotoStripBody = 50 << 20

// Dispatcher is the slice of the dispatch service the handlers need.
type Dispatcher interface {
	SendContactMessage(ctx context.Context, in dispatch.ContactInput) error
	SendPhotoStrip(ctx context.Context, in dispatch.PhotoStripInput) (*dispatch.SendResult, error)
	SendDiagnosticTest(ctx context.Context, in dispatch.DiagnosticInput) (*dispatch.DiagnosticResult, error)
	Stats(adminKey string) (*audit.Report, error)
}

// Handlers holds the HTTP handlers for all endpoints.
type Handlers struct {
	dispatcher Dispatcher
}

// NewHandlers creates the handler set around a dispatcher.
func NewHandlers(d Dispatcher) *Handlers {
	return &Handlers{dispatcher: d}
}

// SendMessage handles POST /send-message, the contact form.
func (h *Handlers) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name    string `json:"name"`
		Email   string `json:"email"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	err := h.dispatcher.SendContactMessage(r.Context(), dispatch.ContactInput{
		Name:    req.Name,
		Email:   req.Email,
		Message: req.Message,
	})
	if err != nil {
		status, msg := categorize(err, "Failed to send email")
		respondError(w, status, sanitized(status, err, msg))
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Email sent successfully",
	})
}

// SendPhotoStrip handles POST /send-photo-strip.
func (h *Handlers) SendPhotoStrip(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxPhotoStripBody)

	var req struct {
		RecipientEmail string `json:"recipientEmail"`
		ImageData      string `json:"imageData"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondFailure(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	res, err := h.dispatcher.SendPhotoStrip(r.Context(), dispatch.PhotoStripInput{
		RecipientEmail: req.RecipientEmail,
		ImageData:      req.ImageData,
	})
	if err != nil {
		status, msg := categorize(err, "Failed to send email")
		respondFailure(w, status, sanitized(status, err, msg))
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"message":   "Photo strip sent successfully!",
		"messageId": res.MessageID,
	})
}

// TestEmail handles GET /test-email?email=...&key=... It runs the verbose
// diagnostic send and returns the relay trace alongside the message id.
func (h *Handlers) TestEmail(w http.ResponseWriter, r *http.Request) {
	res, err := h.dispatcher.SendDiagnosticTest(r.Context(), dispatch.DiagnosticInput{
		Email:    r.URL.Query().Get("email"),
		AdminKey: r.URL.Query().Get("key"),
	})
	if err != nil {
		status, msg := categorize(err, "Failed to send test email")
		if status >= http.StatusInternalServerError {
			respondFailure(w, status, sanitized(status, err, msg))
		} else {
			respondError(w, status, msg)
		}
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Test email sent successfully",
		"details": map[string]interface{}{
			"messageId": res.MessageID,
			"response":  res.RawResponse,
		},
	})
}

// EmailStats handles GET /email-stats?key=...
func (h *Handlers) EmailStats(w http.ResponseWriter, r *http.Request) {
	report, err := h.dispatcher.Stats(r.URL.Query().Get("key"))
	if err != nil {
		status, msg := categorize(err, "Error retrieving stats")
		respondError(w, status, sanitized(status, err, msg))
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// HealthCheck handles GET /health.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Root handles GET /.
func (h *Handlers) Root(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("Picapica Backend is running"))
}

// categorize maps a dispatch error to its client-facing status and message.
// Validation problems echo their own message; transport failures collapse to
// the coarse category, never the raw relay error.
func categorize(err error, generic string) (int, string) {
	var verr *dispatch.ValidationError
	if errors.As(err, &verr) {
		return http.StatusBadRequest, verr.Message
	}
	var perr *mailer.PayloadFormatError
	if errors.As(err, &perr) {
		return http.StatusBadRequest, "Invalid image data format"
	}
	if errors.Is(err, dispatch.ErrUnauthorized) {
		return http.StatusUnauthorized, "Unauthorized access"
	}

	var relayErr *relay.Error
	if errors.As(err, &relayErr) {
		switch relayErr.Kind {
		case relay.EnvelopeRejected:
			return http.StatusBadRequest, "Invalid recipient email address"
		case relay.ConnectTimeout:
			return http.StatusInternalServerError, "Connection to email server timed out"
		case relay.AuthenticationFailed:
			return http.StatusInternalServerError, "Email authentication failed. Check your credentials."
		}
	}
	return http.StatusInternalServerError, generic
}

// sanitized logs the full internal error for 5xx responses and returns the
// public-safe message. Relay details reach the audit log, not the client.
func sanitized(status int, internalErr error, publicMsg string) string {
	if status >= http.StatusInternalServerError && internalErr != nil {
		log.Printf("ERROR [%d]: %s: %v", status, publicMsg, internalErr)
	}
	return publicMsg
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("api: encoding response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]interface{}{"message": message})
}

// respondFailure is the error shape for the endpoints whose success body
// carries a success flag.
func respondFailure(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]interface{}{
		"success": false,
		"message": message,
	})
}
