package tool

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const defaultMaxResults = 10

// ListEmailsRequest filters the mailbox listing.
type ListEmailsRequest struct {
	Query      string  `json:"query,omitempty" jsonschema:"search query"`
	MaxResults float64 `json:"maxResults,omitempty" jsonschema:"maximum number of results (default 10)"`
}

// ListEmailsResponse contains the matching emails and the echoed query.
type ListEmailsResponse struct {
	Success    bool             `json:"success" jsonschema:"whether the listing succeeded"`
	Count      int              `json:"count" jsonschema:"number of emails returned"`
	Emails     []MessageSummary `json:"emails" jsonschema:"matching emails"`
	Query      string           `json:"query" jsonschema:"the query that was run"`
	MaxResults float64          `json:"maxResults" jsonschema:"the applied result limit"`
}

// GetUnreadEmailsRequest has no parameters.
type GetUnreadEmailsRequest struct{}

// GetUnreadEmailsResponse contains the unread emails.
type GetUnreadEmailsResponse struct {
	Success bool             `json:"success" jsonschema:"whether the listing succeeded"`
	Count   int              `json:"count" jsonschema:"number of emails returned"`
	Emails  []MessageSummary `json:"emails" jsonschema:"unread emails"`
}

// openSchema infers the input schema of T but accepts unknown arguments:
// the listing tools answer any input.
func openSchema[T any]() *jsonschema.Schema {
	s, err := jsonschema.For[T](nil)
	if err != nil {
		panic(fmt.Errorf("jsonschema.For failed: %w", err))
	}
	s.AdditionalProperties = nil

	return s
}

// decodeArgs fills input from raw, ignoring arguments it does not know.
func decodeArgs(raw json.RawMessage, input any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, input); err != nil {
		return fmt.Errorf("json.Unmarshal failed: %w", err)
	}

	return nil
}

// NewListEmails creates the mailbox listing tools.
func NewListEmails() *ListEmails {
	return &ListEmails{}
}

// ListEmails serves the mailbox listing tools. No mailbox backend is wired
// in, so every listing is empty and no external call is made.
type ListEmails struct{}

// ListEmails returns the emails matching the query.
func (t *ListEmails) ListEmails(
	_ context.Context,
	_ *mcp.CallToolRequest,
	raw json.RawMessage,
) (*mcp.CallToolResult, ListEmailsResponse, error) {
	var input ListEmailsRequest
	if err := decodeArgs(raw, &input); err != nil {
		return nil, ListEmailsResponse{}, err
	}

	maxResults := input.MaxResults
	if maxResults == 0 {
		maxResults = defaultMaxResults
	}

	return nil, ListEmailsResponse{
		Success:    true,
		Count:      0,
		Emails:     []MessageSummary{},
		Query:      input.Query,
		MaxResults: maxResults,
	}, nil
}

// GetUnreadEmails returns the unread emails.
func (t *ListEmails) GetUnreadEmails(
	_ context.Context,
	_ *mcp.CallToolRequest,
	_ json.RawMessage,
) (*mcp.CallToolResult, GetUnreadEmailsResponse, error) {
	return nil, GetUnreadEmailsResponse{
		Success: true,
		Count:   0,
		Emails:  []MessageSummary{},
	}, nil
}
