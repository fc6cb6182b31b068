package domain

import "context"

// Transport is the interface for user-facing chat channels (Telegram, Discord, CLI).
type Transport interface {
	Name() string
	Start(ctx context.Context, bus MessageBus) error
	Stop() error

	// Send delivers text to a chat and returns the transport message ID.
	// It may fail transiently right after a new session is established;
	// retrying is the reply dispatcher's job, not the transport's.
	Send(ctx context.Context, chatID string, content string) (string, error)

	// SelfID returns the transport's own identity so the bot's echoed
	// messages are never mistaken for user input.
	SelfID() string
}
