package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/elum-utils/warden/engine"
	"github.com/elum-utils/warden/interfaces"
	"github.com/elum-utils/warden/metrics"
	"github.com/elum-utils/warden/models"
)

const (
	defaultMaxWarnings  = 5
	defaultMuteDuration = 300 * time.Second
	defaultNoticeTTL    = 5 * time.Second
	defaultMuteRoleName = "Muted"

	failureReply = "❌ Command failed. Check the bot's permissions and try again."
)

// ErrNoGuild is returned for commands issued outside of a guild.
var ErrNoGuild = errors.New("core: command requires a guild")

// EventName is a callback bus event.
type EventName string

const (
	EventViolation         EventName = "violation"
	EventMute              EventName = "mute"
	EventUnmute            EventName = "unmute"
	EventEnforcementFailed EventName = "enforcement_failed"
)

// Mute and unmute sources.
const (
	SourceAuto   = "auto"
	SourceManual = "manual"
	SourceTimer  = "timer"
)

// ModerationEvent is callback payload.
type ModerationEvent struct {
	Name      EventName
	GuildID   string
	ChannelID string
	MessageID string
	UserID    string
	Count     int
	Max       int
	Source    string
	Action    string
	Pattern   string
	Err       error
	At        time.Time
}

// EventHandler handles one moderation event.
type EventHandler func(ctx context.Context, event ModerationEvent) error

// Options configure the moderator core.
type Options struct {
	Platform  interfaces.Platform
	Scheduler interfaces.Scheduler
	Patterns  interfaces.PatternSource
	Logger    interfaces.Logger

	MaxWarnings     int
	MuteDuration    time.Duration
	NoticeTTL       time.Duration
	MuteRoleName    string
	ModLogChannelID string
}

// Stats is a snapshot of core counters.
type Stats struct {
	Scanned      int64
	Violations   int64
	Mutes        int64
	Unmutes      int64
	Commands     int64
	TrackedUsers int
	Patterns     int
}

type muteTimer struct {
	epoch uint64
	stop  func() bool
}

// Core detects violations, keeps the warning ledger and enforces mutes.
type Core struct {
	platform  interfaces.Platform
	scheduler interfaces.Scheduler
	patterns  interfaces.PatternSource
	logger    interfaces.Logger
	engine    *engine.Engine
	ledger    *Ledger

	muteDuration time.Duration
	noticeTTL    time.Duration
	muteRole     string
	modLog       string

	eventsMu sync.RWMutex
	events   map[EventName][]EventHandler

	timersMu sync.Mutex
	epochSeq uint64
	epochs   map[models.UserKey]uint64
	timers   map[models.UserKey]*muteTimer

	scanned    atomic.Int64
	violations atomic.Int64
	mutes      atomic.Int64
	unmutes    atomic.Int64
	commands   atomic.Int64
}

// Defaults returns the values New uses for zero option fields.
func Defaults() Options {
	return Options{
		MaxWarnings:  defaultMaxWarnings,
		MuteDuration: defaultMuteDuration,
		NoticeTTL:    defaultNoticeTTL,
		MuteRoleName: defaultMuteRoleName,
	}
}

// New creates a core loaded with the default patterns. Configuration errors
// are returned by Load and the Handle methods.
func New(opt Options) *Core {
	c := &Core{
		scheduler:    TimerScheduler{},
		engine:       engine.NewDefault(),
		muteDuration: defaultMuteDuration,
		noticeTTL:    defaultNoticeTTL,
		muteRole:     defaultMuteRoleName,
		events:       make(map[EventName][]EventHandler, 4),
		epochs:       make(map[models.UserKey]uint64),
		timers:       make(map[models.UserKey]*muteTimer),
	}

	maxWarnings := defaultMaxWarnings
	if opt.MaxWarnings > 0 {
		maxWarnings = opt.MaxWarnings
	}
	if opt.MuteDuration > 0 {
		c.muteDuration = opt.MuteDuration
	}
	if opt.NoticeTTL > 0 {
		c.noticeTTL = opt.NoticeTTL
	}
	if opt.MuteRoleName != "" {
		c.muteRole = opt.MuteRoleName
	}
	if opt.Scheduler != nil {
		c.scheduler = opt.Scheduler
	}
	if opt.Logger != nil {
		c.logger = opt.Logger
	}

	c.platform = opt.Platform
	c.patterns = opt.Patterns
	c.modLog = opt.ModLogChannelID
	c.ledger = NewLedger(maxWarnings)
	return c
}

// On registers event handlers.
func (c *Core) On(event EventName, handler EventHandler) error {
	if handler == nil {
		return errors.New("core: handler is nil")
	}
	c.eventsMu.Lock()
	c.events[event] = append(c.events[event], handler)
	c.eventsMu.Unlock()
	return nil
}

// OnViolation registers a handler for flagged messages.
func (c *Core) OnViolation(handler EventHandler) error {
	return c.On(EventViolation, handler)
}

// OnMute registers a handler for applied mutes.
func (c *Core) OnMute(handler EventHandler) error {
	return c.On(EventMute, handler)
}

// OnUnmute registers a handler for removed mutes.
func (c *Core) OnUnmute(handler EventHandler) error {
	return c.On(EventUnmute, handler)
}

// OnEnforcementFailed registers a handler for mutes that could not be applied.
func (c *Core) OnEnforcementFailed(handler EventHandler) error {
	return c.On(EventEnforcementFailed, handler)
}

// Load reads the pattern list once from the configured source.
// Without a source the default patterns stay in place.
func (c *Core) Load(ctx context.Context) error {
	if c.patterns == nil {
		return nil
	}
	patterns, err := c.patterns.GetPatterns(ctx)
	if err != nil {
		return fmt.Errorf("core: load patterns: %w", err)
	}
	if len(patterns) == 0 {
		return errors.New("core: pattern source is empty")
	}
	if err := c.engine.Load(patterns); err != nil {
		return err
	}
	c.logInfo("patterns loaded", map[string]any{"count": c.engine.Count()})
	return nil
}

// Ledger exposes the warning ledger.
func (c *Core) Ledger() *Ledger {
	return c.ledger
}

// Engine exposes the detector.
func (c *Core) Engine() *engine.Engine {
	return c.engine
}

// HandleMessage runs one inbound message through detection and escalation.
func (c *Core) HandleMessage(ctx context.Context, msg models.Message) (out models.Outcome, err error) {
	defer c.recoverEvent("message", &err)

	out.Verdict.Index = -1
	if err := c.validate(); err != nil {
		return out, err
	}
	if msg.AuthorBot || msg.Content == "" {
		return out, nil
	}

	c.scanned.Add(1)
	metrics.MessagesScanned.Inc()
	out.Verdict = c.engine.Detect(msg.Content)
	if !out.Verdict.Matched {
		return out, nil
	}
	c.violations.Add(1)
	metrics.Violations.WithLabelValues(string(out.Verdict.Form)).Inc()

	fields := map[string]any{
		"guild":   msg.GuildID,
		"channel": msg.ChannelID,
		"message": msg.ID,
		"user":    msg.AuthorID,
		"pattern": out.Verdict.Index,
		"form":    out.Verdict.Form,
	}
	if err := c.platform.DeleteMessage(ctx, msg.ChannelID, msg.ID); err != nil {
		c.platformFailed("delete_message", err, fields)
	} else {
		out.Deleted = true
	}

	user := models.UserKey{GuildID: msg.GuildID, UserID: msg.AuthorID}
	count, shouldMute := c.ledger.RecordViolation(user)
	out.Escalation = models.Escalation{Count: count, Max: c.ledger.Max(), ShouldMute: shouldMute}
	fields["count"] = count
	c.logInfo("violation recorded", fields)

	c.emit(ctx, ModerationEvent{
		Name:      EventViolation,
		GuildID:   msg.GuildID,
		ChannelID: msg.ChannelID,
		MessageID: msg.ID,
		UserID:    msg.AuthorID,
		Count:     count,
		Max:       c.ledger.Max(),
		Pattern:   out.Verdict.Pattern,
	})

	c.sendNotice(ctx, msg.ChannelID, fmt.Sprintf("⚠️ %s Inappropriate language detected.\nWarning %d/%d",
		models.Mention(msg.AuthorID), count, c.ledger.Max()))

	if !shouldMute {
		return out, nil
	}
	if msg.GuildID == "" {
		c.logWarn("mute threshold reached outside a guild", fields)
		return out, nil
	}
	if err := c.applyMute(ctx, user, msg.ChannelID, SourceAuto); err != nil {
		return out, nil
	}
	out.Muted = true
	c.sendNotice(ctx, msg.ChannelID, fmt.Sprintf("🔇 %s has been muted for repeated violations.", models.Mention(msg.AuthorID)))
	return out, nil
}

// HandleCommand runs one moderator command. A failed or panicking command
// still yields a reply carrying a generic failure text, alongside the error.
func (c *Core) HandleCommand(ctx context.Context, cmd models.Command) (reply models.Reply, err error) {
	c.commands.Add(1)
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
			reply = models.Reply{Content: failureReply, Failed: true}
			c.logWarn("command failed", map[string]any{
				"command": cmd.Name,
				"guild":   cmd.GuildID,
				"target":  cmd.TargetID,
				"invoker": cmd.InvokerID,
				"error":   err.Error(),
			})
		}
		metrics.Commands.WithLabelValues(string(cmd.Name), result).Inc()
	}()
	defer c.recoverEvent("command", &err)

	return c.runCommand(ctx, cmd)
}

func (c *Core) runCommand(ctx context.Context, cmd models.Command) (models.Reply, error) {
	if err := c.validate(); err != nil {
		return models.Reply{}, err
	}
	if !cmd.Name.Valid() {
		return models.Reply{}, fmt.Errorf("core: unknown command %q", cmd.Name)
	}
	if cmd.GuildID == "" {
		return models.Reply{}, ErrNoGuild
	}
	if cmd.TargetID == "" {
		return models.Reply{}, errors.New("core: command target is empty")
	}

	user := models.UserKey{GuildID: cmd.GuildID, UserID: cmd.TargetID}
	mention := models.Mention(cmd.TargetID)
	switch cmd.Name {
	case models.CommandWarnings:
		text := fmt.Sprintf("⚠️ %s has %d/%d warnings.", mention, c.ledger.Count(user), c.ledger.Max())
		muted, err := c.IsMuted(ctx, cmd.GuildID, cmd.TargetID)
		if err != nil {
			c.logWarn("mute state lookup failed", map[string]any{"guild": cmd.GuildID, "user": cmd.TargetID, "error": err.Error()})
		} else if muted {
			text += " Currently muted."
		}
		return models.Reply{Content: text}, nil

	case models.CommandClearWarnings:
		c.ledger.Reset(user)
		return models.Reply{Content: fmt.Sprintf("✅ Warnings reset for %s.", mention)}, nil

	case models.CommandMute:
		if err := c.applyMute(ctx, user, cmd.ChannelID, SourceManual); err != nil {
			return models.Reply{}, err
		}
		return models.Reply{Content: fmt.Sprintf("🔇 %s has been muted by moderator.", mention)}, nil

	default:
		c.cancelUnmute(user)
		if err := c.removeMute(ctx, user, SourceManual); err != nil {
			return models.Reply{}, err
		}
		return models.Reply{Content: fmt.Sprintf("🔊 %s has been unmuted.", mention)}, nil
	}
}

// IsMuted asks the platform whether the user currently holds the mute role.
func (c *Core) IsMuted(ctx context.Context, guildID, userID string) (bool, error) {
	if err := c.validate(); err != nil {
		return false, err
	}
	roleID, found, err := c.platform.FindRole(ctx, guildID, c.muteRole)
	if err != nil || !found {
		return false, err
	}
	return c.platform.HasRole(ctx, guildID, userID, roleID)
}

// Stats returns current counters.
func (c *Core) Stats() Stats {
	return Stats{
		Scanned:      c.scanned.Load(),
		Violations:   c.violations.Load(),
		Mutes:        c.mutes.Load(),
		Unmutes:      c.unmutes.Load(),
		Commands:     c.commands.Load(),
		TrackedUsers: c.ledger.Len(),
		Patterns:     c.engine.Count(),
	}
}

// NoticeTTL is how long notices and command replies stay visible.
func (c *Core) NoticeTTL() time.Duration {
	return c.noticeTTL
}

// sendNotice posts a short-lived notice. Failures are logged and swallowed.
func (c *Core) sendNotice(ctx context.Context, channelID, text string) {
	id, err := c.platform.SendMessage(ctx, channelID, text)
	if err != nil {
		c.platformFailed("send_notice", err, map[string]any{"channel": channelID})
		return
	}
	c.after(c.noticeTTL, "notice cleanup", func() {
		if err := c.platform.DeleteMessage(context.Background(), channelID, id); err != nil {
			c.platformFailed("delete_notice", err, map[string]any{"channel": channelID, "message": id})
		}
	})
}

// after schedules fn off the calling goroutine; a panic in fn is logged.
func (c *Core) after(d time.Duration, kind string, fn func()) func() bool {
	return c.scheduler.Schedule(d, func() {
		var err error
		defer c.recoverEvent(kind, &err)
		fn()
	})
}

func (c *Core) platformFailed(action string, err error, fields map[string]any) {
	metrics.PlatformErrors.WithLabelValues(action).Inc()
	f := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		f[k] = v
	}
	f["action"] = action
	f["error"] = err.Error()
	c.logWarn("platform action failed", f)
}

func (c *Core) emit(ctx context.Context, e ModerationEvent) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	c.eventsMu.RLock()
	handlers := append([]EventHandler(nil), c.events[e.Name]...)
	c.eventsMu.RUnlock()
	for _, h := range handlers {
		if err := h(ctx, e); err != nil {
			c.logWarn("event handler failed", map[string]any{"error": err.Error(), "event": e.Name})
		}
	}
}

func (c *Core) recoverEvent(kind string, err *error) {
	if r := recover(); r != nil {
		c.logError("event handler panic", map[string]any{"kind": kind, "panic": fmt.Sprint(r)})
		*err = fmt.Errorf("core: %s handler panic: %v", kind, r)
	}
}

func (c *Core) validate() error {
	if c.platform == nil {
		return errors.New("core: platform is nil")
	}
	return nil
}

func (c *Core) logDebug(msg string, fields map[string]any) {
	if c.logger != nil {
		c.logger.Debug(msg, fields)
	}
}

func (c *Core) logInfo(msg string, fields map[string]any) {
	if c.logger != nil {
		c.logger.Info(msg, fields)
	}
}

func (c *Core) logWarn(msg string, fields map[string]any) {
	if c.logger != nil {
		c.logger.Warn(msg, fields)
	}
}

func (c *Core) logError(msg string, fields map[string]any) {
	if c.logger != nil {
		c.logger.Error(msg, fields)
	}
}
