package tool

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hal9000y/email-mcp/internal/format"
	"github.com/hal9000y/email-mcp/internal/mailer"
)

// SendEmailRequest describes an outgoing email.
type SendEmailRequest struct {
	To          string   `json:"to" jsonschema:"recipient email address"`
	Subject     string   `json:"subject" jsonschema:"email subject"`
	Body        string   `json:"body" jsonschema:"email body content"`
	CC          string   `json:"cc,omitempty" jsonschema:"CC recipients (optional)"`
	BCC         string   `json:"bcc,omitempty" jsonschema:"BCC recipients (optional)"`
	Attachments []string `json:"attachments,omitempty" jsonschema:"file paths to attach (optional)"`
	TextBody    string   `json:"textBody,omitempty" jsonschema:"plain text body, defaults to body (optional)"`
	HTMLBody    string   `json:"htmlBody,omitempty" jsonschema:"HTML body, defaults to body with line breaks (optional)"`
}

// SendResult reports the outcome of a send. MessageID is set on success,
// Error on failure, never both.
type SendResult struct {
	Success   bool   `json:"success" jsonschema:"whether the email was accepted by the relay"`
	MessageID string `json:"messageId,omitempty" jsonschema:"Message-Id of the sent email"`
	Recipient string `json:"recipient" jsonschema:"the requested recipient"`
	Subject   string `json:"subject" jsonschema:"the requested subject"`
	Error     string `json:"error,omitempty" jsonschema:"failure reason"`
}

type sender interface {
	Send(ctx context.Context, msg mailer.Message) (string, error)
}

// NewSendEmail creates a new SendEmail tool.
func NewSendEmail(svc sender) *SendEmail {
	return &SendEmail{svc: svc}
}

// SendEmail delivers one email per call through the configured relay.
type SendEmail struct {
	svc sender
}

// SendEmail sends the email. Delivery faults are reported in the result,
// never as a tool error.
func (t *SendEmail) SendEmail(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SendEmailRequest,
) (*mcp.CallToolResult, SendResult, error) {
	res := SendResult{
		Recipient: input.To,
		Subject:   input.Subject,
	}

	id, err := t.send(ctx, newMessage(input))
	if err != nil {
		log.Println(fmt.Errorf("send email to %s failed: %w", input.To, err))

		res.Error = err.Error()
		if res.Error == "" {
			res.Error = "send failed"
		}

		return nil, res, nil
	}

	log.Println("Email sent successfully:", id)

	res.Success = true
	res.MessageID = id

	return nil, res, nil
}

// send makes the single delivery attempt, turning a panic into an error.
func (t *SendEmail) send(ctx context.Context, msg mailer.Message) (id string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("mailer panic: %v", r)
		}
	}()

	id, err = t.svc.Send(ctx, msg)
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", errors.New("relay accepted the email without a message id")
	}

	return id, nil
}

func newMessage(input SendEmailRequest) mailer.Message {
	msg := mailer.Message{
		To:          input.To,
		Cc:          input.CC,
		Bcc:         input.BCC,
		Subject:     input.Subject,
		Text:        input.Body,
		HTML:        format.TextToHTML(input.Body),
		Attachments: input.Attachments,
	}

	if input.TextBody != "" {
		msg.Text = input.TextBody
	}
	if input.HTMLBody != "" {
		msg.HTML = input.HTMLBody
	}

	return msg
}
