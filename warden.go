package warden

import "github.com/elum-utils/warden/core"

// Re-export core API at module root for convenient imports.
type (
	Core            = core.Core
	Options         = core.Options
	Stats           = core.Stats
	EventName       = core.EventName
	ModerationEvent = core.ModerationEvent
	EventHandler    = core.EventHandler
)

const (
	EventViolation         = core.EventViolation
	EventMute              = core.EventMute
	EventUnmute            = core.EventUnmute
	EventEnforcementFailed = core.EventEnforcementFailed
)

// New creates a chat moderator.
func New(opt Options) *Core {
	return core.New(opt)
}
