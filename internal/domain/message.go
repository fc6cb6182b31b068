package domain

import "time"

// InboundMessage is a single user message delivered by a transport channel.
// ChatID is the reply target, which the channel resolves before publishing;
// it can differ from SenderID (group chats, forwarded messages).
type InboundMessage struct {
	Channel   string
	ChatID    string
	SenderID  string
	MessageID string
	Content   string
	Voice     bool // true when Content came from a voice-note transcription
	Timestamp time.Time
}

// UserKey identifies the per-user state owner for an inbound message.
// All conversation state (pending confirmation, caches, serialization)
// is keyed by this value.
func (m InboundMessage) UserKey() string {
	return m.Channel + ":" + m.SenderID
}

// MessageBus routes inbound messages from channels to the agent loop.
type MessageBus interface {
	Publish(msg InboundMessage)
	Subscribe() <-chan InboundMessage
	Close()
}
