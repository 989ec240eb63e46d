// Package events implements the in-process message bus the orchestrator
// publishes task and recovery events on.
package events

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// DefaultHistory is the number of messages retained when no limit is given.
const DefaultHistory = 1000

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("message bus closed")

// Filter narrows message queries. Zero values match everything.
type Filter struct {
	Type    MessageType
	SinceID string // only messages published after this id
}

// Bus stores published messages in order and fans them out to watchers.
// Agents read their messages by polling GetMessagesFor; live consumers such
// as the dashboard use Watch.
type Bus struct {
	mu         sync.RWMutex
	messages   []Message
	seq        int
	maxHistory int
	subs       map[string]map[MessageType]bool // agent -> subscribed types
	watchers   []chan Message
	closed     bool
}

// NewBus creates a bus retaining up to maxHistory messages (DefaultHistory if <= 0).
func NewBus(maxHistory int) *Bus {
	if maxHistory <= 0 {
		maxHistory = DefaultHistory
	}
	return &Bus{
		maxHistory: maxHistory,
		subs:       make(map[string]map[MessageType]bool),
	}
}

// Publish stores the message and returns its id. Missing receiver, priority
// and timestamp default to broadcast, normal and now.
func (b *Bus) Publish(msg Message) (string, error) {
	if msg.Sender == "" {
		return "", fmt.Errorf("publish: sender is required")
	}
	if !msg.Type.Valid() {
		return "", fmt.Errorf("publish: unknown message type %q", msg.Type)
	}
	if msg.Receiver == "" {
		msg.Receiver = Broadcast
	}
	if msg.Priority == "" {
		msg.Priority = PriorityNormal
	}
	if !msg.Priority.Valid() {
		return "", fmt.Errorf("publish: unknown priority %q", msg.Priority)
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return "", ErrClosed
	}

	b.seq++
	if msg.ID == "" {
		msg.ID = fmt.Sprintf("%s_%d", msg.Sender, b.seq)
	}

	b.messages = append(b.messages, msg)
	if over := len(b.messages) - b.maxHistory; over > 0 {
		b.messages = append([]Message(nil), b.messages[over:]...)
	}

	for _, ch := range b.watchers {
		select {
		case ch <- msg:
		default:
			// Watcher is behind, drop
		}
	}

	return msg.ID, nil
}

// Subscribe registers agent's interest in broadcasts of msgType.
// Messages addressed directly to the agent are always delivered.
func (b *Bus) Subscribe(agent string, msgType MessageType) {
	b.mu.Lock()
	defer b.mu.Unlock()

	types, ok := b.subs[agent]
	if !ok {
		types = make(map[MessageType]bool)
		b.subs[agent] = types
	}
	types[msgType] = true
}

// GetMessagesFor returns, in publish order, messages addressed to agent plus
// broadcasts of types the agent subscribed to.
func (b *Bus) GetMessagesFor(agent string, f Filter) []Message {
	b.mu.RLock()
	defer b.mu.RUnlock()

	subscribed := b.subs[agent]
	var out []Message
	for _, msg := range b.since(f.SinceID) {
		if f.Type != "" && msg.Type != f.Type {
			continue
		}
		switch {
		case msg.Receiver == agent:
			out = append(out, msg)
		case msg.Receiver == Broadcast && msg.Sender != agent && subscribed[msg.Type]:
			out = append(out, msg)
		}
	}
	return out
}

// GetAllMessages returns every retained message, optionally filtered by type.
func (b *Bus) GetAllMessages(msgType MessageType) []Message {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []Message
	for _, msg := range b.messages {
		if msgType == "" || msg.Type == msgType {
			out = append(out, msg)
		}
	}
	return out
}

// since returns the retained messages after id. An unknown id, for instance
// one already trimmed from history, yields every retained message.
func (b *Bus) since(id string) []Message {
	if id == "" {
		return b.messages
	}
	for i, msg := range b.messages {
		if msg.ID == id {
			return b.messages[i+1:]
		}
	}
	return b.messages
}

// Watch returns a channel receiving every message published from now on.
// Delivery is non-blocking: when the buffer is full the message is dropped
// for that watcher. bufSize defaults to 256.
func (b *Bus) Watch(bufSize int) <-chan Message {
	if bufSize <= 0 {
		bufSize = 256
	}
	ch := make(chan Message, bufSize)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(ch)
		return ch
	}
	b.watchers = append(b.watchers, ch)
	return ch
}

// Close stops the bus and closes all watcher channels. Safe to call twice.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.watchers {
		close(ch)
	}
}
