package discord

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/elum-utils/warden/interfaces"
	"github.com/elum-utils/warden/models"
)

// Intents are the gateway intents the bot needs to read messages and manage members.
const Intents = discordgo.IntentGuilds |
	discordgo.IntentGuildMembers |
	discordgo.IntentGuildMessages |
	discordgo.IntentMessageContent

// Moderator is what the bot feeds gateway events into.
type Moderator interface {
	HandleMessage(ctx context.Context, msg models.Message) (models.Outcome, error)
	HandleCommand(ctx context.Context, cmd models.Command) (models.Reply, error)
	NoticeTTL() time.Duration
}

// Responder answers application command interactions.
type Responder interface {
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	InteractionResponseEdit(interaction *discordgo.Interaction, newresp *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	InteractionResponseDelete(interaction *discordgo.Interaction, options ...discordgo.RequestOption) error
}

// CommandRegistrar registers slash commands.
type CommandRegistrar interface {
	ApplicationCommandBulkOverwrite(appID, guildID string, commands []*discordgo.ApplicationCommand, options ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error)
}

// BotOptions configure a Bot.
type BotOptions struct {
	Moderator Moderator
	Scheduler interfaces.Scheduler
	Logger    interfaces.Logger

	// CommandGuildID registers commands in one guild instead of globally.
	CommandGuildID string
}

// Bot connects a gateway session to the moderator.
type Bot struct {
	session   *discordgo.Session
	moderator Moderator
	scheduler interfaces.Scheduler
	logger    interfaces.Logger
	guildID   string

	mu  sync.RWMutex
	ctx context.Context
}

// NewSession opens nothing; it only builds a bot session with the needed intents.
func NewSession(token string) (*discordgo.Session, error) {
	if token == "" {
		return nil, errors.New("discord: token is empty")
	}
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord: new session: %w", err)
	}
	s.Identify.Intents = Intents
	return s, nil
}

// NewBot wires a session to a moderator.
func NewBot(session *discordgo.Session, opt BotOptions) (*Bot, error) {
	if session == nil {
		return nil, errors.New("discord: session is nil")
	}
	if opt.Moderator == nil {
		return nil, errors.New("discord: moderator is nil")
	}
	if opt.Scheduler == nil {
		return nil, errors.New("discord: scheduler is nil")
	}
	return &Bot{
		session:   session,
		moderator: opt.Moderator,
		scheduler: opt.Scheduler,
		logger:    opt.Logger,
		guildID:   opt.CommandGuildID,
		ctx:       context.Background(),
	}, nil
}

// Run opens the gateway and blocks until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	b.mu.Lock()
	b.ctx = ctx
	b.mu.Unlock()

	removers := []func(){
		b.session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
			b.onReady(s, r)
		}),
		b.session.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
			b.handleMessage(b.context(), m.Message)
		}),
		b.session.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
			b.handleInteraction(b.context(), s, i.Interaction)
		}),
	}
	defer func() {
		for _, remove := range removers {
			remove()
		}
	}()

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("discord: open gateway: %w", err)
	}
	b.logInfo("gateway connected", nil)

	<-ctx.Done()
	if err := b.session.Close(); err != nil {
		return fmt.Errorf("discord: close gateway: %w", err)
	}
	b.logInfo("gateway closed", nil)
	return nil
}

func (b *Bot) context() context.Context {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.ctx
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	appID := r.User.ID
	if r.Application != nil && r.Application.ID != "" {
		appID = r.Application.ID
	}
	b.logInfo("bot ready", map[string]any{"user": r.User.Username, "guilds": len(r.Guilds)})
	if err := RegisterCommands(b.context(), s, appID, b.guildID); err != nil {
		b.logError("command registration failed", map[string]any{"error": err.Error()})
	}
}

// RegisterCommands replaces the application's slash commands with Commands().
func RegisterCommands(ctx context.Context, r CommandRegistrar, appID, guildID string) error {
	if _, err := r.ApplicationCommandBulkOverwrite(appID, guildID, Commands(), discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord: register commands: %w", err)
	}
	return nil
}

// Commands are the moderator slash commands, each taking one required user.
func Commands() []*discordgo.ApplicationCommand {
	perm := int64(discordgo.PermissionModerateMembers)
	cmd := func(name models.CommandName, desc, opt string) *discordgo.ApplicationCommand {
		return &discordgo.ApplicationCommand{
			Name:                     string(name),
			Description:              desc,
			DefaultMemberPermissions: &perm,
			Options: []*discordgo.ApplicationCommandOption{{
				Type:        discordgo.ApplicationCommandOptionUser,
				Name:        "user",
				Description: opt,
				Required:    true,
			}},
		}
	}
	return []*discordgo.ApplicationCommand{
		cmd(models.CommandWarnings, "Show how many warnings a user has", "User to check"),
		cmd(models.CommandClearWarnings, "Reset a user's warnings", "User to reset"),
		cmd(models.CommandMute, "Mute a user", "User to mute"),
		cmd(models.CommandUnmute, "Unmute a user", "User to unmute"),
	}
}

func (b *Bot) handleMessage(ctx context.Context, m *discordgo.Message) {
	msg, ok := MessageFromEvent(m)
	if !ok {
		return
	}
	out, err := b.moderator.HandleMessage(ctx, msg)
	if err != nil {
		b.logError("message handling failed", map[string]any{
			"guild":   msg.GuildID,
			"channel": msg.ChannelID,
			"message": msg.ID,
			"error":   err.Error(),
		})
		return
	}
	if out.Verdict.Matched {
		b.logDebug("violation handled", map[string]any{
			"guild":   msg.GuildID,
			"user":    msg.AuthorID,
			"count":   out.Escalation.Count,
			"deleted": out.Deleted,
			"muted":   out.Muted,
		})
	}
}

// handleInteraction acknowledges with a deferred response before running the
// command, then edits the reply in.
func (b *Bot) handleInteraction(ctx context.Context, r Responder, i *discordgo.Interaction) {
	cmd, ok := CommandFromInteraction(i)
	if !ok {
		return
	}
	ack := &discordgo.InteractionResponse{Type: discordgo.InteractionResponseDeferredChannelMessageWithSource}
	if err := r.InteractionRespond(i, ack, discordgo.WithContext(ctx)); err != nil {
		b.logError("interaction ack failed", map[string]any{"command": cmd.Name, "error": err.Error()})
		return
	}

	reply, err := b.moderator.HandleCommand(ctx, cmd)
	if err != nil {
		b.logWarn("command returned error", map[string]any{"command": cmd.Name, "error": err.Error()})
	}

	if reply.Content != "" {
		content := reply.Content
		if _, err := r.InteractionResponseEdit(i, &discordgo.WebhookEdit{Content: &content}, discordgo.WithContext(ctx)); err != nil {
			b.logError("interaction response failed", map[string]any{"command": cmd.Name, "error": err.Error()})
			return
		}
	}
	b.scheduler.Schedule(b.moderator.NoticeTTL(), func() {
		defer func() {
			if p := recover(); p != nil {
				b.logError("interaction cleanup panic", map[string]any{"command": cmd.Name, "panic": fmt.Sprint(p)})
			}
		}()
		if err := r.InteractionResponseDelete(i); err != nil {
			b.logWarn("interaction response delete failed", map[string]any{"command": cmd.Name, "error": err.Error()})
		}
	})
}

// MessageFromEvent converts a gateway message. Messages without an author are skipped.
func MessageFromEvent(m *discordgo.Message) (models.Message, bool) {
	if m == nil || m.Author == nil {
		return models.Message{}, false
	}
	return models.Message{
		ID:        m.ID,
		GuildID:   m.GuildID,
		ChannelID: m.ChannelID,
		AuthorID:  m.Author.ID,
		AuthorBot: m.Author.Bot,
		Content:   m.Content,
	}, true
}

// CommandFromInteraction converts an application command interaction.
// The target is read from the "user" option.
func CommandFromInteraction(i *discordgo.Interaction) (models.Command, bool) {
	if i == nil || i.Type != discordgo.InteractionApplicationCommand {
		return models.Command{}, false
	}
	data := i.ApplicationCommandData()
	cmd := models.Command{
		Name:      models.CommandName(data.Name),
		GuildID:   i.GuildID,
		ChannelID: i.ChannelID,
	}
	switch {
	case i.Member != nil && i.Member.User != nil:
		cmd.InvokerID = i.Member.User.ID
	case i.User != nil:
		cmd.InvokerID = i.User.ID
	}
	for _, opt := range data.Options {
		if opt.Name != "user" || opt.Type != discordgo.ApplicationCommandOptionUser {
			continue
		}
		if id, ok := opt.Value.(string); ok {
			cmd.TargetID = id
		}
	}
	return cmd, true
}

func (b *Bot) logDebug(msg string, fields map[string]any) {
	if b.logger != nil {
		b.logger.Debug(msg, fields)
	}
}

func (b *Bot) logInfo(msg string, fields map[string]any) {
	if b.logger != nil {
		b.logger.Info(msg, fields)
	}
}

func (b *Bot) logWarn(msg string, fields map[string]any) {
	if b.logger != nil {
		b.logger.Warn(msg, fields)
	}
}

func (b *Bot) logError(msg string, fields map[string]any) {
	if b.logger != nil {
		b.logger.Error(msg, fields)
	}
}
