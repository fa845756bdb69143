package tool_test

import (
	"context"
	"sync"

	"github.com/hal9000y/email-mcp/internal/mailer"
)

type senderMock struct {
	SendFunc func(ctx context.Context, msg mailer.Message) (string, error)

	mu    sync.Mutex
	calls []mailer.Message
}

func (m *senderMock) Send(ctx context.Context, msg mailer.Message) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, msg)
	m.mu.Unlock()

	if m.SendFunc == nil {
		panic("senderMock.SendFunc: method is nil but Send was just called")
	}

	return m.SendFunc(ctx, msg)
}

func (m *senderMock) SendCalls() []mailer.Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]mailer.Message(nil), m.calls...)
}
