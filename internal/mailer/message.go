package mailer

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
)

const defaultAttachmentType = "application/octet-stream"

// ErrNoRecipient is returned when a message has no To address.
var ErrNoRecipient = errors.New("recipient address is required")

// Message is a single outgoing email.
// To, Cc and Bcc are comma separated RFC 5322 address lists.
type Message struct {
	To          string
	Cc          string
	Bcc         string
	Subject     string
	Text        string
	HTML        string
	Attachments []string
}

// Composed is a message rendered to its wire form.
type Composed struct {
	// MessageID is the generated Message-Id header value, with angle brackets.
	MessageID string
	// Recipients is the SMTP envelope: To, Cc and Bcc addresses in that order.
	Recipients []string
	Raw        []byte
}

// Reader returns a fresh reader over the raw message.
func (c *Composed) Reader() io.Reader {
	return bytes.NewReader(c.Raw)
}

// Compose renders msg as a multipart/mixed message from the configured sender.
// Bcc recipients only end up in the envelope.
func (m *Mailer) Compose(msg Message) (*Composed, error) {
	return compose(m.from, msg, time.Now())
}

func compose(from *mail.Address, msg Message, now time.Time) (*Composed, error) {
	if strings.TrimSpace(msg.To) == "" {
		return nil, ErrNoRecipient
	}

	to, err := parseAddressList("to", msg.To)
	if err != nil {
		return nil, err
	}
	cc, err := parseAddressList("cc", msg.Cc)
	if err != nil {
		return nil, err
	}
	bcc, err := parseAddressList("bcc", msg.Bcc)
	if err != nil {
		return nil, err
	}

	var h mail.Header
	h.SetDate(now)
	h.SetAddressList("From", []*mail.Address{from})
	h.SetAddressList("To", to)
	if len(cc) > 0 {
		h.SetAddressList("Cc", cc)
	}
	h.SetSubject(msg.Subject)

	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("GenerateMessageID failed: %w", err)
	}
	id, err := h.MessageID()
	if err != nil {
		return nil, fmt.Errorf("MessageID failed: %w", err)
	}

	var buf bytes.Buffer
	if err := writeBody(&buf, h, msg); err != nil {
		return nil, err
	}

	rcpts := make([]string, 0, len(to)+len(cc)+len(bcc))
	for _, list := range [][]*mail.Address{to, cc, bcc} {
		for _, addr := range list {
			rcpts = append(rcpts, addr.Address)
		}
	}

	return &Composed{
		MessageID:  "<" + id + ">",
		Recipients: rcpts,
		Raw:        buf.Bytes(),
	}, nil
}

func writeBody(w io.Writer, h mail.Header, msg Message) error {
	mw, err := mail.CreateWriter(w, h)
	if err != nil {
		return fmt.Errorf("mail.CreateWriter failed: %w", err)
	}

	tw, err := mw.CreateInline()
	if err != nil {
		return fmt.Errorf("mw.CreateInline failed: %w", err)
	}
	if err := writeInline(tw, "text/plain", msg.Text); err != nil {
		return err
	}
	if msg.HTML != "" {
		if err := writeInline(tw, "text/html", msg.HTML); err != nil {
			return err
		}
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("tw.Close failed: %w", err)
	}

	for _, path := range msg.Attachments {
		if err := writeAttachment(mw, path); err != nil {
			return err
		}
	}

	if err := mw.Close(); err != nil {
		return fmt.Errorf("mw.Close failed: %w", err)
	}

	return nil
}

func writeInline(tw *mail.InlineWriter, contentType, body string) error {
	var ih mail.InlineHeader
	ih.SetContentType(contentType, map[string]string{"charset": "utf-8"})

	pw, err := tw.CreatePart(ih)
	if err != nil {
		return fmt.Errorf("tw.CreatePart(%s) failed: %w", contentType, err)
	}
	if _, err := io.WriteString(pw, body); err != nil {
		return fmt.Errorf("write %s part failed: %w", contentType, err)
	}

	return pw.Close()
}

func writeAttachment(mw *mail.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("attachment %s: %w", path, err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			log.Println(fmt.Errorf("f.Close(%s) failed: %w", path, err))
		}
	}()

	contentType, params := attachmentType(path)

	var ah mail.AttachmentHeader
	ah.SetContentType(contentType, params)
	ah.SetFilename(filepath.Base(path))

	aw, err := mw.CreateAttachment(ah)
	if err != nil {
		return fmt.Errorf("mw.CreateAttachment failed: %w", err)
	}
	if _, err := io.Copy(aw, f); err != nil {
		return fmt.Errorf("copy attachment %s failed: %w", path, err)
	}

	return aw.Close()
}

// attachmentType guesses the media type from the file extension.
func attachmentType(path string) (string, map[string]string) {
	t, params, err := mime.ParseMediaType(mime.TypeByExtension(filepath.Ext(path)))
	if err != nil {
		return defaultAttachmentType, nil
	}

	return t, params
}

func parseAddressList(field, list string) ([]*mail.Address, error) {
	if strings.TrimSpace(list) == "" {
		return nil, nil
	}

	addrs, err := mail.ParseAddressList(list)
	if err != nil {
		return nil, fmt.Errorf("invalid %s address %q: %w", field, list, err)
	}

	return addrs, nil
}
