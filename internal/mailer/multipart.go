package mailer

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"net/textproto"
	"time"
)

const crlf = "\r\n"

// Bytes renders the message as an RFC 5322 MIME mail. Messages without an
// attachment become multipart/alternative (plain text + HTML); messages
// with an inline attachment wrap that in multipart/related so the HTML can
// reference the file through its Content-ID.
func (m *Message) Bytes(messageID string) ([]byte, error) {
	contentType, body, err := alternativeBody(m.Text, m.HTML)
	if err != nil {
		return nil, err
	}

	if m.Attachment != nil {
		contentType, body, err = relatedBody(contentType, body, m.Attachment)
		if err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	from := mail.Address{Name: m.FromName, Address: m.From}
	writeHeader(&buf, "From", from.String())
	writeHeader(&buf, "To", m.To)
	writeHeader(&buf, "Subject", mime.QEncoding.Encode("utf-8", m.Subject))
	writeHeader(&buf, "Date", time.Now().Format(time.RFC1123Z))
	if messageID != "" {
		writeHeader(&buf, "Message-ID", messageID)
	}
	writeHeader(&buf, "MIME-Version", "1.0")
	writeHeader(&buf, "Content-Type", contentType)
	buf.WriteString(crlf)
	buf.Write(body)

	return buf.Bytes(), nil
}

func writeHeader(buf *bytes.Buffer, key, value string) {
	buf.WriteString(key)
	buf.WriteString(": ")
	buf.WriteString(value)
	buf.WriteString(crlf)
}

// alternativeBody builds the multipart/alternative container holding the
// quoted-printable text and HTML renderings.
func alternativeBody(text, html string) (contentType string, body []byte, err error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	for _, part := range []struct {
		mimeType string
		content  string
	}{
		{"text/plain; charset=utf-8", text},
		{"text/html; charset=utf-8", html},
	} {
		w, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {part.mimeType},
			"Content-Transfer-Encoding": {"quoted-printable"},
		})
		if err != nil {
			return "", nil, err
		}
		qp := quotedprintable.NewWriter(w)
		if _, err := qp.Write([]byte(part.content)); err != nil {
			return "", nil, err
		}
		if err := qp.Close(); err != nil {
			return "", nil, err
		}
	}

	if err := mw.Close(); err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("multipart/alternative;%s boundary=%q", crlf+" ", mw.Boundary()), buf.Bytes(), nil
}

// relatedBody wraps the alternative body and the inline attachment in a
// multipart/related container.
func relatedBody(altType string, altBody []byte, att *Attachment) (contentType string, body []byte, err error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	w, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type": {altType},
	})
	if err != nil {
		return "", nil, err
	}
	if _, err := w.Write(altBody); err != nil {
		return "", nil, err
	}

	aw, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {fmt.Sprintf("%s; name=%q", att.MIMEType, att.Filename)},
		"Content-Transfer-Encoding": {"base64"},
		"Content-ID":                {"<" + att.ContentID + ">"},
		"Content-Disposition":       {fmt.Sprintf("inline; filename=%q", att.Filename)},
	})
	if err != nil {
		return "", nil, err
	}
	if err := writeBase64(aw, att.Content); err != nil {
		return "", nil, err
	}

	if err := mw.Close(); err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("multipart/related;%s boundary=%q", crlf+" ", mw.Boundary()), buf.Bytes(), nil
}

// writeBase64 writes data base64-encoded in 76-column lines per RFC 2045.
func writeBase64(w io.Writer, data []byte) error {
	encoded := base64.StdEncoding.EncodeToString(data)
	for len(encoded) > 0 {
		n := len(encoded)
		if n > 76 {
			n = 76
		}
		if _, err := io.WriteString(w, encoded[:n]+crlf); err != nil {
			return err
		}
		encoded = encoded[n:]
	}
	return nil
}
