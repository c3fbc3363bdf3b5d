package interfaces

import (
	"context"
	"time"

	"github.com/elum-utils/warden/models"
)

// Platform is the set of outbound actions the moderator core invokes on the chat platform.
type Platform interface {
	DeleteMessage(ctx context.Context, channelID, messageID string) error
	SendMessage(ctx context.Context, channelID, text string) (messageID string, err error)

	// EnsureRole returns the role with the given name, creating it with the
	// given denials when absent.
	EnsureRole(ctx context.Context, guildID, name string, deny models.Permission) (roleID string, err error)
	// FindRole looks up a role by name without creating it.
	FindRole(ctx context.Context, guildID, name string) (roleID string, found bool, err error)

	AddRole(ctx context.Context, guildID, userID, roleID string) error
	RemoveRole(ctx context.Context, guildID, userID, roleID string) error
	HasRole(ctx context.Context, guildID, userID, roleID string) (bool, error)
}

// Scheduler runs fn once after the given delay.
// The returned stop function cancels a pending run and reports whether it did.
type Scheduler interface {
	Schedule(after time.Duration, fn func()) (stop func() bool)
}

// PatternSource provides the detection pattern list.
type PatternSource interface {
	GetPatterns(ctx context.Context) ([]string, error)
}

// Logger is an optional structured logger.
type Logger interface {
	Debug(msg string, fields map[string]any)
	Info(msg string, fields map[string]any)
	Warn(msg string, fields map[string]any)
	Error(msg string, fields map[string]any)
}
