// Package parser turns a raw RFC 5322 message into an email.Message so that
// callers which already build MIME can hand it to the dispatcher.
package parser

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"net/textproto"
	"strings"

	"github.com/shineum/artmarket-mailer/internal/email"
)

// ErrEmptyMessage is returned for an empty input.
var ErrEmptyMessage = errors.New("empty message")

// skipHeader reports headers that the parser maps onto Message fields
// instead of copying them into Message.Headers.
func skipHeader(key string) bool {
	return email.ReservedHeader(key) || textproto.CanonicalMIMEHeaderKey(key) == "X-Priority"
}

var wordDecoder = &mime.WordDecoder{}

// Parse parses raw into a Message. Plain, html, multipart/alternative and
// multipart/mixed bodies are understood; parts that are neither a body nor
// an attachment are logged and skipped.
func Parse(raw []byte) (*email.Message, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, ErrEmptyMessage
	}

	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}

	h := msg.Header
	out := &email.Message{
		From:      h.Get("From"),
		Subject:   decodeHeader(h.Get("Subject")),
		MessageID: h.Get("Message-Id"),
		To:        parseRecipients(h.Get("To")),
		Cc:        parseRecipients(h.Get("Cc")),
		Bcc:       parseRecipients(h.Get("Bcc")),
		Priority:  parsePriority(h.Get("X-Priority")),
	}
	if rt := parseRecipients(h.Get("Reply-To")); len(rt) > 0 {
		out.ReplyTo = rt[0].Address
	}
	for key, values := range h {
		if skipHeader(key) || len(values) == 0 {
			continue
		}
		if out.Headers == nil {
			out.Headers = make(map[string]string)
		}
		out.Headers[key] = decodeHeader(values[0])
	}

	contentType := h.Get("Content-Type")
	if contentType == "" {
		contentType = "text/plain"
	}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		slog.Warn("failed to parse content type, treating as plain text",
			"content_type", contentType,
			"error", err,
		)
		body, readErr := io.ReadAll(msg.Body)
		if readErr != nil {
			return nil, fmt.Errorf("failed to read message body: %w", readErr)
		}
		out.TextBody = string(body)
		return out, nil
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		boundary := params["boundary"]
		if boundary == "" {
			return nil, fmt.Errorf("multipart message missing boundary")
		}
		if err := parseMultipart(msg.Body, boundary, out); err != nil {
			return nil, fmt.Errorf("failed to parse multipart message: %w", err)
		}
		return out, nil
	}

	body, err := decodeBody(msg.Body, h.Get("Content-Transfer-Encoding"))
	if err != nil {
		return nil, fmt.Errorf("failed to read message body: %w", err)
	}
	if mediaType == "text/html" {
		out.HTMLBody = string(body)
	} else {
		if mediaType != "text/plain" {
			slog.Warn("unrecognized top-level content type", "content_type", mediaType)
		}
		out.TextBody = string(body)
	}
	return out, nil
}

// parseMultipart walks a multipart body, filling the first text/plain and
// text/html parts and collecting attachments. Nested multiparts recurse.
func parseMultipart(body io.Reader, boundary string, out *email.Message) error {
	reader := multipart.NewReader(body, boundary)

	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read next part: %w", err)
		}

		partType := part.Header.Get("Content-Type")
		if partType == "" {
			partType = "text/plain"
		}
		mediaType, params, err := mime.ParseMediaType(partType)
		if err != nil {
			slog.Warn("failed to parse part content type, skipping",
				"content_type", partType,
				"error", err,
			)
			continue
		}

		if strings.HasPrefix(mediaType, "multipart/") {
			if params["boundary"] == "" {
				slog.Warn("nested multipart missing boundary, skipping")
				continue
			}
			if err := parseMultipart(part, params["boundary"], out); err != nil {
				slog.Warn("failed to parse nested multipart", "error", err)
			}
			continue
		}

		// multipart.Reader already undoes quoted-printable.
		content, err := decodeBody(part, part.Header.Get("Content-Transfer-Encoding"))
		if err != nil {
			slog.Warn("failed to read part content",
				"content_type", mediaType,
				"error", err,
			)
			continue
		}

		disposition := part.Header.Get("Content-Disposition")
		filename := filenameOf(part, params)
		if strings.HasPrefix(strings.ToLower(disposition), "attachment") ||
			(filename != "" && mediaType != "text/plain" && mediaType != "text/html") {
			if filename == "" {
				filename = fallbackFilename(mediaType)
			}
			out.Attachments = append(out.Attachments, email.Attachment{
				Filename:    filename,
				ContentType: mediaType,
				Content:     content,
			})
			continue
		}

		switch mediaType {
		case "text/plain":
			if out.TextBody == "" {
				out.TextBody = string(content)
			}
		case "text/html":
			if out.HTMLBody == "" {
				out.HTMLBody = string(content)
			}
		default:
			slog.Warn("unrecognized MIME part, skipping",
				"content_type", mediaType,
				"disposition", disposition,
			)
		}
	}
}

// decodeBody reads r and reverses its Content-Transfer-Encoding.
func decodeBody(r io.Reader, encoding string) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		raw, err := io.ReadAll(r)
		if err != nil {
			return nil, err
		}
		cleaned := strings.NewReplacer("\r", "", "\n", "", " ", "").Replace(string(raw))
		decoded, err := base64.StdEncoding.DecodeString(cleaned)
		if err != nil {
			decoded, err = base64.RawStdEncoding.DecodeString(cleaned)
			if err != nil {
				return nil, fmt.Errorf("failed to decode base64 content: %w", err)
			}
		}
		return decoded, nil
	case "quoted-printable":
		return io.ReadAll(quotedprintable.NewReader(r))
	default:
		return io.ReadAll(r)
	}
}

// filenameOf returns the part's filename from Content-Disposition or the
// Content-Type name parameter.
func filenameOf(part *multipart.Part, params map[string]string) string {
	if fn := part.FileName(); fn != "" {
		return fn
	}
	return decodeHeader(params["name"])
}

func fallbackFilename(mediaType string) string {
	if _, sub, ok := strings.Cut(mediaType, "/"); ok && sub != "" {
		return "attachment." + sub
	}
	return "attachment"
}

// parseRecipients parses an address list header. Entries that do not parse
// as RFC 5322 are kept verbatim so validation can name them.
func parseRecipients(raw string) []email.Recipient {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	addrs, err := (&mail.AddressParser{WordDecoder: wordDecoder}).ParseList(raw)
	if err != nil {
		var out []email.Recipient
		for _, p := range strings.Split(raw, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, email.Recipient{Address: p})
			}
		}
		return out
	}

	out := make([]email.Recipient, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, email.Recipient{Address: a.Address, Name: a.Name})
	}
	return out
}

// parsePriority maps an X-Priority value ("1 (Highest)", "5", ...) to a
// Priority.
func parsePriority(v string) email.Priority {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	switch v[0] {
	case '1', '2':
		return email.PriorityHigh
	case '4', '5':
		return email.PriorityLow
	default:
		return email.PriorityNormal
	}
}

// decodeHeader decodes RFC 2047 encoded-words, returning v unchanged when
// it cannot be decoded.
func decodeHeader(v string) string {
	if !strings.Contains(v, "=?") {
		return v
	}
	decoded, err := wordDecoder.DecodeHeader(v)
	if err != nil {
		return v
	}
	return decoded
}
