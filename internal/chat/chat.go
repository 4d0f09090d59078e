// Package chat defines the chat delivery contract and the
// markdown-then-plain-text delivery policy.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// FormattingError indicates the chat platform rejected the rich formatting
// of a message. The same text can usually be resent unformatted.
type FormattingError struct {
	ChatID  string
	Message string
}

func (e *FormattingError) Error() string {
	return fmt.Sprintf("chat %s rejected formatting: %s", e.ChatID, e.Message)
}

// IsFormattingError reports whether err (or any error in its chain) is a
// FormattingError.
func IsFormattingError(err error) bool {
	var fe *FormattingError
	return errors.As(err, &fe)
}

// Channel is a destination chat.
type Channel interface {
	// ID returns the chat identifier.
	ID() string

	// SendText posts text. When formatted is true the text is sent as
	// markdown and a *FormattingError is returned if the platform rejects it.
	SendText(ctx context.Context, text string, formatted bool) error
}

// Messenger resolves chat identifiers to channels.
type Messenger interface {
	Channel(chatID string) Channel
}

// Deliver sends text as markdown, falling back to plain text when the
// platform rejects the formatting. It reports whether markdown was accepted.
func Deliver(ctx context.Context, ch Channel, text string, logger *slog.Logger) (bool, error) {
	err := ch.SendText(ctx, text, true)
	if err == nil {
		return true, nil
	}
	if !IsFormattingError(err) {
		return false, err
	}

	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn("cannot send message as markdown, resending as text",
		"chat", ch.ID(),
		"error", err,
	)
	if err := ch.SendText(ctx, text, false); err != nil {
		return false, err
	}
	return false, nil
}
