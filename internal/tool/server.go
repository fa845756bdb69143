package tool

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Tool names.
const (
	NameSendEmail       = "send-email"
	NameListEmails      = "list-emails"
	NameGetUnreadEmails = "get-unread-emails"
)

// NewServer creates an MCP server with the email tools.
func NewServer(svc sender) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "email-mcp", Version: "v1.0.0"}, nil)
	mailbox := NewListEmails()

	mcp.AddTool(server, &mcp.Tool{
		Name:        NameSendEmail,
		Description: "Send an email to a recipient",
	}, NewSendEmail(svc).SendEmail)

	mcp.AddTool(server, &mcp.Tool{
		Name:        NameListEmails,
		Description: "List emails based on query",
		InputSchema: openSchema[ListEmailsRequest](),
	}, mailbox.ListEmails)

	mcp.AddTool(server, &mcp.Tool{
		Name:        NameGetUnreadEmails,
		Description: "Get unread emails",
		InputSchema: openSchema[GetUnreadEmailsRequest](),
	}, mailbox.GetUnreadEmails)

	return server
}
