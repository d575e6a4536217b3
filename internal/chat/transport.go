// Package chat defines the inbound/outbound transport boundary for the
// Conversation Router: a Transport interface any real chat-platform SDK
// implements, plus an in-process LoopbackTransport stub for tests and local
// operation (the real SDK integration is out of scope per spec.md §1).
package chat

import (
	"sync"
	"time"
)

// Message is one inbound chat message delivered to a registered handler.
type Message struct {
	UserID    string
	Text      string
	Timestamp time.Time
}

// Transport is the chat-platform boundary: Send pushes an outbound reply,
// OnMessage registers the single handler for inbound messages.
type Transport interface {
	Send(recipient, text string) error
	OnMessage(handler func(Message))
}

// LoopbackTransport is an in-process stub: messages delivered via Inject
// are handed to the registered handler synchronously, and Send appends to
// an in-memory log instead of reaching a real chat platform. Safe for
// concurrent use.
type LoopbackTransport struct {
	mu      sync.Mutex
	handler func(Message)
	sent    []outbound
}

type outbound struct {
	Recipient string
	Text      string
}

// NewLoopbackTransport returns a ready-to-use stub transport.
func NewLoopbackTransport() *LoopbackTransport {
	return &LoopbackTransport{}
}

// OnMessage registers the handler invoked by Inject.
func (t *LoopbackTransport) OnMessage(handler func(Message)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = handler
}

// Send records an outbound message; LoopbackTransport never fails a send.
func (t *LoopbackTransport) Send(recipient, text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, outbound{Recipient: recipient, Text: text})
	return nil
}

// Inject simulates an inbound message from userID, invoking the registered
// handler synchronously. A no-op if no handler has been registered yet.
func (t *LoopbackTransport) Inject(userID, text string, now time.Time) {
	t.mu.Lock()
	handler := t.handler
	t.mu.Unlock()
	if handler == nil {
		return
	}
	handler(Message{UserID: userID, Text: text, Timestamp: now})
}

// Sent returns every message recorded via Send, for test assertions.
func (t *LoopbackTransport) Sent() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.sent))
	for i, o := range t.sent {
		out[i] = o.Text
	}
	return out
}
