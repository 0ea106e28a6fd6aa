// Package parser turns a submitted RFC 5322 message into the relay's email model.
package parser

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/mail"
	"strings"

	"github.com/shineum/easysmtp/internal/email"
)

var headerDecoder = &mime.WordDecoder{}

// Parse parses a raw message. Text and HTML bodies are taken from the first
// matching part; every other part carrying a filename becomes an attachment.
func Parse(raw []byte) (*email.Email, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}

	out := &email.Email{
		RawHeaders: make(map[string][]string, len(msg.Header)),
		Subject:    decodeHeader(msg.Header.Get("Subject")),
		MessageID:  msg.Header.Get("Message-Id"),
		To:         addressList(msg.Header.Get("To")),
		Cc:         addressList(msg.Header.Get("Cc")),
		Bcc:        addressList(msg.Header.Get("Bcc")),
		ReplyTo:    mailboxList(msg.Header.Get("Reply-To")),
	}
	for key, values := range msg.Header {
		out.RawHeaders[key] = values
	}
	if from := mailboxList(msg.Header.Get("From")); len(from) > 0 {
		out.From = from[0]
	}

	w := &walker{out: out}
	if err := w.body(msg.Body, msg.Header.Get("Content-Type"), msg.Header.Get("Content-Transfer-Encoding")); err != nil {
		return nil, err
	}
	return out, nil
}

// walker collects bodies and attachments while descending the MIME tree.
type walker struct {
	out *email.Email
}

func (w *walker) body(r io.Reader, contentType, transferEncoding string) error {
	if contentType == "" {
		contentType = "text/plain"
	}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		slog.Warn("unparsable content type, reading body as text",
			"content_type", contentType,
			"error", err,
		)
		mediaType = "text/plain"
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		boundary := params["boundary"]
		if boundary == "" {
			return fmt.Errorf("multipart message missing boundary")
		}
		if err := w.multipart(r, boundary); err != nil {
			return fmt.Errorf("failed to parse multipart message: %w", err)
		}
		return nil
	}

	content, err := decodeContent(r, transferEncoding)
	if err != nil {
		return fmt.Errorf("failed to read message body: %w", err)
	}
	w.text(mediaType, content)
	return nil
}

func (w *walker) multipart(r io.Reader, boundary string) error {
	reader := multipart.NewReader(r, boundary)

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
			slog.Warn("skipping part with unparsable content type",
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
			if err := w.multipart(part, params["boundary"]); err != nil {
				slog.Warn("failed to parse nested multipart", "error", err)
			}
			continue
		}

		content, err := decodeContent(part, part.Header.Get("Content-Transfer-Encoding"))
		if err != nil {
			slog.Warn("failed to read part content",
				"content_type", mediaType,
				"error", err,
			)
			continue
		}

		disposition := part.Header.Get("Content-Disposition")
		filename := partFilename(part, params)
		if strings.HasPrefix(strings.ToLower(disposition), "attachment") ||
			(filename != "" && mediaType != "text/plain" && mediaType != "text/html") {
			if filename == "" {
				filename = fallbackFilename(mediaType)
			}
			w.out.Attachments = append(w.out.Attachments, email.Attachment{
				Filename:    filename,
				ContentType: mediaType,
				Content:     content,
			})
			continue
		}

		if mediaType != "text/plain" && mediaType != "text/html" {
			slog.Warn("unrecognized MIME part, skipping",
				"content_type", mediaType,
				"disposition", disposition,
			)
			continue
		}
		w.text(mediaType, content)
	}
}

// text stores content as the HTML or text body if that slot is still empty.
// Anything that is not HTML lands in the text body.
func (w *walker) text(mediaType string, content []byte) {
	if mediaType == "text/html" {
		if w.out.HtmlBody == "" {
			w.out.HtmlBody = string(content)
		}
		return
	}
	if w.out.TextBody == "" {
		w.out.TextBody = string(content)
	}
}

// decodeContent reads r and undoes a base64 transfer encoding. Quoted-printable
// parts are already decoded by multipart.Reader.
func decodeContent(r io.Reader, transferEncoding string) ([]byte, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(strings.TrimSpace(transferEncoding), "base64") {
		return raw, nil
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
}

func partFilename(part *multipart.Part, params map[string]string) string {
	if fn := part.FileName(); fn != "" {
		return fn
	}
	return decodeHeader(params["name"])
}

// fallbackFilename names an attachment after its subtype; the Graph and
// Postmark APIs reject attachments without a name.
func fallbackFilename(mediaType string) string {
	if _, sub, ok := strings.Cut(mediaType, "/"); ok && sub != "" {
		return "attachment." + sub
	}
	return "attachment"
}

func decodeHeader(v string) string {
	decoded, err := headerDecoder.DecodeHeader(v)
	if err != nil {
		return v
	}
	return decoded
}

func mailboxList(raw string) []email.Address {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parsed, err := mail.ParseAddressList(raw)
	if err != nil {
		out := make([]email.Address, 0, 1)
		for _, addr := range splitLoose(raw) {
			out = append(out, email.Address{Email: addr})
		}
		return out
	}
	out := make([]email.Address, 0, len(parsed))
	for _, a := range parsed {
		out = append(out, email.Address{Email: a.Address, Name: a.Name})
	}
	return out
}

func addressList(raw string) []string {
	boxes := mailboxList(raw)
	if len(boxes) == 0 {
		return nil
	}
	out := make([]string, 0, len(boxes))
	for _, b := range boxes {
		out = append(out, b.Email)
	}
	return out
}

// splitLoose is the fallback for headers net/mail rejects.
func splitLoose(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		p = strings.TrimSpace(p)
		if start := strings.LastIndex(p, "<"); start >= 0 {
			if end := strings.LastIndex(p, ">"); end > start {
				p = p[start+1 : end]
			}
		}
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
