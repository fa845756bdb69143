package mailer_test

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/emersion/go-message/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hal9000y/email-mcp/internal/mailer"
)

type parsedPart struct {
	contentType string
	filename    string
	body        string
}

type parsedMessage struct {
	header mail.Header
	parts  []parsedPart
}

func parseMessage(t *testing.T, raw []byte) parsedMessage {
	t.Helper()

	mr, err := mail.CreateReader(bytes.NewReader(raw))
	require.NoError(t, err)
	defer mr.Close()

	parsed := parsedMessage{header: mr.Header}

	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)

		body, err := io.ReadAll(p.Body)
		require.NoError(t, err)

		part := parsedPart{body: string(body)}
		switch h := p.Header.(type) {
		case *mail.InlineHeader:
			part.contentType, _, err = h.ContentType()
			require.NoError(t, err)
			// quoted-printable writes hard line breaks as CRLF
			part.body = strings.ReplaceAll(part.body, "\r\n", "\n")
		case *mail.AttachmentHeader:
			part.contentType, _, err = h.ContentType()
			require.NoError(t, err)
			part.filename, err = h.Filename()
			require.NoError(t, err)
		}
		parsed.parts = append(parsed.parts, part)
	}

	return parsed
}

func newTestMailer(t *testing.T, from string) *mailer.Mailer {
	t.Helper()

	m, err := mailer.New(mailer.Config{
		Host:     "127.0.0.1",
		Port:     2525,
		Security: mailer.SecurityNone,
		From:     from,
	})
	require.NoError(t, err)

	return m
}

func TestCompose(t *testing.T) {
	m := newTestMailer(t, "Sender <sender@example.com>")

	composed, err := m.Compose(mailer.Message{
		To:      "user@example.com",
		Cc:      "Copy <copy@example.com>, second@example.com",
		Bcc:     "hidden@example.com",
		Subject: "Hi",
		Text:    "Hello\nWorld",
		HTML:    "<p>Hello<br>World</p>",
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(composed.MessageID, "<"))
	assert.True(t, strings.HasSuffix(composed.MessageID, ">"))
	assert.Equal(t, []string{
		"user@example.com",
		"copy@example.com",
		"second@example.com",
		"hidden@example.com",
	}, composed.Recipients)

	msg := parseMessage(t, composed.Raw)

	subject, err := msg.header.Subject()
	require.NoError(t, err)
	assert.Equal(t, "Hi", subject)

	from, err := msg.header.AddressList("From")
	require.NoError(t, err)
	require.Len(t, from, 1)
	assert.Equal(t, "sender@example.com", from[0].Address)
	assert.Equal(t, "Sender", from[0].Name)

	id, err := msg.header.MessageID()
	require.NoError(t, err)
	assert.Equal(t, "<"+id+">", composed.MessageID)

	assert.Empty(t, msg.header.Get("Bcc"))
	assert.NotContains(t, string(composed.Raw), "hidden@example.com")

	require.Len(t, msg.parts, 2)
	assert.Equal(t, parsedPart{contentType: "text/plain", body: "Hello\nWorld"}, msg.parts[0])
	assert.Equal(t, parsedPart{contentType: "text/html", body: "<p>Hello<br>World</p>"}, msg.parts[1])
}

func TestComposeDefaultSender(t *testing.T) {
	m := newTestMailer(t, "")
	assert.Contains(t, m.From(), "AI Employee")
	assert.Contains(t, m.From(), "<ai.employee@example.com>")

	composed, err := m.Compose(mailer.Message{To: "user@example.com", Subject: "s", Text: "b"})
	require.NoError(t, err)

	msg := parseMessage(t, composed.Raw)
	from, err := msg.header.AddressList("From")
	require.NoError(t, err)
	require.Len(t, from, 1)
	assert.Equal(t, "ai.employee@example.com", from[0].Address)

	require.Len(t, msg.parts, 1, "no html part without html body")
}

func TestComposeAttachments(t *testing.T) {
	dir := t.TempDir()
	notes := filepath.Join(dir, "notes.txt")
	blob := filepath.Join(dir, "data.unknownext")
	require.NoError(t, os.WriteFile(notes, []byte("meeting notes"), 0o600))
	require.NoError(t, os.WriteFile(blob, []byte{0x00, 0x01, 0x02}, 0o600))

	m := newTestMailer(t, "sender@example.com")

	composed, err := m.Compose(mailer.Message{
		To:          "user@example.com",
		Subject:     "files",
		Text:        "see attached",
		Attachments: []string{notes, blob},
	})
	require.NoError(t, err)

	msg := parseMessage(t, composed.Raw)
	require.Len(t, msg.parts, 3)

	assert.Equal(t, parsedPart{contentType: "text/plain", filename: "notes.txt", body: "meeting notes"}, msg.parts[1])
	assert.Equal(t, parsedPart{contentType: "application/octet-stream", filename: "data.unknownext", body: "\x00\x01\x02"}, msg.parts[2])
}

func TestComposeErrors(t *testing.T) {
	m := newTestMailer(t, "sender@example.com")

	cases := []struct {
		name     string
		msg      mailer.Message
		check    func(t *testing.T, err error)
		contains string
	}{
		{
			name: "empty_recipient",
			msg:  mailer.Message{To: "  ", Subject: "s", Text: "b"},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, mailer.ErrNoRecipient)
			},
		},
		{
			name:     "invalid_recipient",
			msg:      mailer.Message{To: "not an address", Subject: "s", Text: "b"},
			contains: "invalid to address",
		},
		{
			name:     "invalid_cc",
			msg:      mailer.Message{To: "user@example.com", Cc: "@@", Subject: "s", Text: "b"},
			contains: "invalid cc address",
		},
		{
			name:     "invalid_bcc",
			msg:      mailer.Message{To: "user@example.com", Bcc: "<broken", Subject: "s", Text: "b"},
			contains: "invalid bcc address",
		},
		{
			name: "missing_attachment",
			msg: mailer.Message{
				To: "user@example.com", Subject: "s", Text: "b",
				Attachments: []string{filepath.Join(t.TempDir(), "missing.pdf")},
			},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, fs.ErrNotExist)
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := m.Compose(tc.msg)
			require.Error(t, err)
			if tc.contains != "" {
				assert.Contains(t, err.Error(), tc.contains)
			}
			if tc.check != nil {
				tc.check(t, err)
			}
		})
	}
}

func TestNewInvalidSender(t *testing.T) {
	_, err := mailer.New(mailer.Config{Host: "localhost", Port: 25, From: "not an address"})
	require.Error(t, err)
}
