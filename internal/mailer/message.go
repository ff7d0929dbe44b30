package mailer

import (
	"encoding/base64"
	"fmt"
	"html"
	"strings"
	"time"
)

// Identity is the operator's sending identity, fixed at process start.
// All outgoing mail uses this address as the envelope sender so the relay
// never sees an unverified "from" domain.
type Identity struct {
	Address string
	Name    string
}

// Payload is one of the three mail shapes the booth sends. The variant is
// decided once at the API boundary; nothing downstream re-inspects fields
// to guess the shape.
type Payload interface {
	payloadVariant()
}

// ContactMessage is a message from the contact form, delivered to the
// operator's own inbox. The visitor's address appears only in the body.
type ContactMessage struct {
	Name        string
	SenderEmail string
	Body        string
}

// PhotoStrip carries a finished photo strip to a visitor. ImageDataURI is
// the browser-produced data URI ("<mime-prefix>;base64,<payload>").
type PhotoStrip struct {
	Recipient    string
	ImageDataURI string
}

// DiagnosticTest is the admin-triggered delivery check mail.
type DiagnosticTest struct {
	Recipient string
}

func (ContactMessage) payloadVariant() {}
func (PhotoStrip) payloadVariant()     {}
func (DiagnosticTest) payloadVariant() {}

// PayloadFormatError reports attachment data that is not in the expected
// encoded form. It is always a client bug, detected before any network call.
type PayloadFormatError struct {
	Reason string
}

func (e *PayloadFormatError) Error() string {
	return "invalid image data format: " + e.Reason
}

// Attachment is an inline file carried by a Message. ContentID is
// referenced from the HTML body as cid:<ContentID> so clients render the
// file embedded instead of as an attachment icon.
type Attachment struct {
	Filename  string
	MIMEType  string
	ContentID string
	Content   []byte
}

// Message is a wire-ready mail. Bytes renders it as RFC 5322 MIME.
type Message struct {
	From     string
	FromName string
	To       string
	Subject  string
	Text     string
	HTML     string

	Attachment *Attachment
}

const photoStripCID = "photostrip"

// Compose builds the wire-ready message for a payload. The only fallible
// variant is PhotoStrip, whose image data must decode.
func Compose(p Payload, op Identity) (*Message, error) {
	switch v := p.(type) {
	case ContactMessage:
		return composeContact(v, op), nil
	case PhotoStrip:
		return composePhotoStrip(v, op)
	case DiagnosticTest:
		return composeDiagnostic(v, op), nil
	default:
		return nil, fmt.Errorf("unknown payload variant %T", p)
	}
}

func composeContact(p ContactMessage, op Identity) *Message {
	name := html.EscapeString(p.Name)
	email := html.EscapeString(p.SenderEmail)
	body := strings.ReplaceAll(html.EscapeString(p.Body), "\n", "<br>")

	return &Message{
		From:     op.Address,
		FromName: p.Name,
		To:       op.Address,
		Subject:  fmt.Sprintf("New Message from %s", p.Name),
		Text:     fmt.Sprintf("Email: %s\n\nMessage:\n%s", p.SenderEmail, p.Body),
		HTML: fmt.Sprintf(`<div style="font-family: Arial, sans-serif; padding: 20px;">
  <h2>New Contact Form Message</h2>
  <p><strong>From:</strong> %s</p>
  <p><strong>Email:</strong> %s</p>
  <p><strong>Message:</strong></p>
  <div style="background-color: #f5f5f5; padding: 15px; border-radius: 5px;">%s</div>
</div>`, name, email, body),
	}
}

func composePhotoStrip(p PhotoStrip, op Identity) (*Message, error) {
	content, err := DecodeImageDataURI(p.ImageDataURI)
	if err != nil {
		return nil, err
	}

	return &Message{
		From:     op.Address,
		FromName: op.Name,
		To:       p.Recipient,
		Subject:  "Your Photo Strip from Picapica \U0001F4F8",
		Text:     "Thanks for using Picapica! Here's your photo strip. We hope you had fun!",
		HTML: fmt.Sprintf(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px; color: #333;">
  <h1 style="color: #ff69b4; text-align: center;">Your Picapica Photo Strip!</h1>
  <p style="text-align: center; font-size: 16px;">Thanks for using Picapica! Here's your photo strip.</p>
  <div style="text-align: center; margin: 20px 0;">
    <img src="cid:%s" alt="Photo Strip" style="max-width: 100%%; border-radius: 10px; box-shadow: 0 4px 8px rgba(0,0,0,0.1);" />
  </div>
  <p style="font-size: 14px; text-align: center; color: #777;">&copy; 2025 Agnes Wei. All Rights Reserved.</p>
</div>`, photoStripCID),
		Attachment: &Attachment{
			Filename:  "photo-strip.png",
			MIMEType:  "image/png",
			ContentID: photoStripCID,
			Content:   content,
		},
	}, nil
}

func composeDiagnostic(p DiagnosticTest, op Identity) *Message {
	now := time.Now().Format(time.RFC1123)

	return &Message{
		From:     op.Address,
		FromName: "Picapica Test",
		To:       p.Recipient,
		Subject:  "Email Delivery Test from Picapica",
		Text:     "This is a test email to verify the delivery system is working correctly.",
		HTML: fmt.Sprintf(`<div style="font-family: Arial, sans-serif; padding: 20px; background-color: #f9f9f9; border-radius: 5px;">
  <h2 style="color: #ff69b4;">Picapica Email Test</h2>
  <p>This is a test email to verify that our delivery system is working correctly.</p>
  <p>Current server time: %s</p>
  <p>If you received this email, the system is functioning properly!</p>
</div>`, now),
	}
}

// DecodeImageDataURI extracts the raw image bytes from a browser data URI.
// The string must split into exactly two parts on "base64," and the payload
// must be valid base64.
func DecodeImageDataURI(dataURI string) ([]byte, error) {
	parts := strings.Split(dataURI, "base64,")
	if len(parts) != 2 {
		return nil, &PayloadFormatError{Reason: "expected a single base64 data URI"}
	}

	content, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, &PayloadFormatError{Reason: "payload is not valid base64"}
	}
	return content, nil
}
