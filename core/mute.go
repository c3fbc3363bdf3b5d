package core

import (
	"context"
	"fmt"

	"github.com/elum-utils/warden/metrics"
	"github.com/elum-utils/warden/models"
)

// Every mute or unmute starts a new epoch for the user. A pending automatic
// unmute only fires while its epoch is current, so a later manual mute is
// never lifted by an older timer.

func (c *Core) nextEpoch(user models.UserKey) uint64 {
	c.timersMu.Lock()
	defer c.timersMu.Unlock()
	c.epochSeq++
	c.epochs[user] = c.epochSeq
	if t, ok := c.timers[user]; ok {
		t.stop()
		delete(c.timers, user)
	}
	return c.epochSeq
}

// cancelUnmute drops the user's pending automatic unmute, if any.
func (c *Core) cancelUnmute(user models.UserKey) {
	c.timersMu.Lock()
	defer c.timersMu.Unlock()
	if t, ok := c.timers[user]; ok {
		t.stop()
	}
	delete(c.timers, user)
	delete(c.epochs, user)
}

func (c *Core) currentEpoch(user models.UserKey, epoch uint64) bool {
	c.timersMu.Lock()
	defer c.timersMu.Unlock()
	return c.epochs[user] == epoch
}

// applyMute assigns the mute role. Automatic mutes schedule their removal
// even when the assignment failed.
func (c *Core) applyMute(ctx context.Context, user models.UserKey, channelID, source string) error {
	epoch := c.nextEpoch(user)
	if source == SourceAuto {
		defer c.scheduleUnmute(user, epoch)
	}

	roleID, err := c.platform.EnsureRole(ctx, user.GuildID, c.muteRole, models.MuteDenials)
	if err != nil {
		c.enforcementFailed(ctx, user, channelID, "ensure_role", err)
		return fmt.Errorf("core: ensure mute role: %w", err)
	}
	if err := c.platform.AddRole(ctx, user.GuildID, user.UserID, roleID); err != nil {
		c.enforcementFailed(ctx, user, channelID, "assign_role", err)
		return fmt.Errorf("core: assign mute role: %w", err)
	}

	c.mutes.Add(1)
	metrics.Mutes.WithLabelValues(source).Inc()
	c.logInfo("user muted", map[string]any{"guild": user.GuildID, "user": user.UserID, "source": source})
	c.emit(ctx, ModerationEvent{
		Name:      EventMute,
		GuildID:   user.GuildID,
		ChannelID: channelID,
		UserID:    user.UserID,
		Source:    source,
	})
	return nil
}

func (c *Core) scheduleUnmute(user models.UserKey, epoch uint64) {
	if !c.currentEpoch(user, epoch) {
		return
	}
	stop := c.after(c.muteDuration, "unmute timer", func() {
		c.expireMute(user, epoch)
	})

	c.timersMu.Lock()
	defer c.timersMu.Unlock()
	if c.epochs[user] != epoch {
		stop()
		return
	}
	c.timers[user] = &muteTimer{epoch: epoch, stop: stop}
}

func (c *Core) expireMute(user models.UserKey, epoch uint64) {
	c.timersMu.Lock()
	if c.epochs[user] != epoch {
		c.timersMu.Unlock()
		c.logDebug("stale unmute timer skipped", map[string]any{"guild": user.GuildID, "user": user.UserID})
		return
	}
	delete(c.epochs, user)
	delete(c.timers, user)
	c.timersMu.Unlock()

	// The user may have left or already lost the role; removal failures only get logged.
	if err := c.removeMute(context.Background(), user, SourceTimer); err != nil {
		c.platformFailed("remove_role", err, map[string]any{"guild": user.GuildID, "user": user.UserID, "source": SourceTimer})
	}
}

// removeMute removes the mute role when it exists in the guild.
func (c *Core) removeMute(ctx context.Context, user models.UserKey, source string) error {
	roleID, found, err := c.platform.FindRole(ctx, user.GuildID, c.muteRole)
	if err != nil {
		return fmt.Errorf("core: find mute role: %w", err)
	}
	c.unmutes.Add(1)
	metrics.Unmutes.WithLabelValues(source).Inc()
	if !found {
		return nil
	}
	if err := c.platform.RemoveRole(ctx, user.GuildID, user.UserID, roleID); err != nil {
		return fmt.Errorf("core: remove mute role: %w", err)
	}
	c.logInfo("user unmuted", map[string]any{"guild": user.GuildID, "user": user.UserID, "source": source})
	c.emit(ctx, ModerationEvent{
		Name:    EventUnmute,
		GuildID: user.GuildID,
		UserID:  user.UserID,
		Source:  source,
	})
	return nil
}

// enforcementFailed surfaces a mute that did not happen to moderators.
func (c *Core) enforcementFailed(ctx context.Context, user models.UserKey, channelID, action string, err error) {
	metrics.PlatformErrors.WithLabelValues(action).Inc()
	c.logError("mute enforcement failed", map[string]any{
		"guild":  user.GuildID,
		"user":   user.UserID,
		"action": action,
		"error":  err.Error(),
	})
	c.emit(ctx, ModerationEvent{
		Name:      EventEnforcementFailed,
		GuildID:   user.GuildID,
		ChannelID: channelID,
		UserID:    user.UserID,
		Action:    action,
		Err:       err,
	})
	if c.modLog == "" {
		return
	}
	text := fmt.Sprintf("❗ Could not mute %s: %s failed: %v", models.Mention(user.UserID), action, err)
	if _, sendErr := c.platform.SendMessage(ctx, c.modLog, text); sendErr != nil {
		c.platformFailed("send_modlog", sendErr, map[string]any{"channel": c.modLog})
	}
}
