package discord

import (
	"context"
	"errors"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/elum-utils/warden/interfaces"
	"github.com/elum-utils/warden/models"
)

// Session is the subset of *discordgo.Session the platform adapter calls.
type Session interface {
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	GuildRoles(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Role, error)
	GuildRoleCreate(guildID string, data *discordgo.RoleParams, options ...discordgo.RequestOption) (*discordgo.Role, error)
	GuildChannels(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Channel, error)
	ChannelPermissionSet(channelID, targetID string, targetType discordgo.PermissionOverwriteType, allow, deny int64, options ...discordgo.RequestOption) error
	GuildMemberRoleAdd(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	GuildMemberRoleRemove(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	GuildMember(guildID, userID string, options ...discordgo.RequestOption) (*discordgo.Member, error)
}

var _ Session = (*discordgo.Session)(nil)

// Platform implements interfaces.Platform on a Discord session.
type Platform struct {
	session Session
	logger  interfaces.Logger

	// serializes role creation so concurrent mutes do not create duplicates
	ensureMu sync.Mutex
}

var _ interfaces.Platform = (*Platform)(nil)

// NewPlatform creates a platform adapter.
func NewPlatform(session Session, logger interfaces.Logger) (*Platform, error) {
	if session == nil {
		return nil, errors.New("discord: session is nil")
	}
	return &Platform{session: session, logger: logger}, nil
}

func (p *Platform) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	return p.session.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx))
}

func (p *Platform) SendMessage(ctx context.Context, channelID, text string) (string, error) {
	msg, err := p.session.ChannelMessageSend(channelID, text, discordgo.WithContext(ctx))
	if err != nil {
		return "", err
	}
	return msg.ID, nil
}

func (p *Platform) FindRole(ctx context.Context, guildID, name string) (string, bool, error) {
	roles, err := p.session.GuildRoles(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return "", false, err
	}
	for _, r := range roles {
		if r.Name == name {
			return r.ID, true, nil
		}
	}
	return "", false, nil
}

// EnsureRole creates the role without permissions and denies the requested
// permissions on every channel. Overwrite failures are logged and not retried.
func (p *Platform) EnsureRole(ctx context.Context, guildID, name string, deny models.Permission) (string, error) {
	p.ensureMu.Lock()
	defer p.ensureMu.Unlock()

	if id, found, err := p.FindRole(ctx, guildID, name); err != nil || found {
		return id, err
	}

	none := int64(0)
	role, err := p.session.GuildRoleCreate(guildID, &discordgo.RoleParams{Name: name, Permissions: &none}, discordgo.WithContext(ctx))
	if err != nil {
		return "", err
	}
	p.logInfo("role created", map[string]any{"guild": guildID, "role": role.ID, "name": name})

	channels, err := p.session.GuildChannels(guildID, discordgo.WithContext(ctx))
	if err != nil {
		p.logWarn("listing channels for role overwrites failed", map[string]any{"guild": guildID, "error": err.Error()})
		return role.ID, nil
	}
	denyBits := DenyBits(deny)
	for _, ch := range channels {
		if err := p.session.ChannelPermissionSet(ch.ID, role.ID, discordgo.PermissionOverwriteTypeRole, 0, denyBits, discordgo.WithContext(ctx)); err != nil {
			p.logWarn("channel overwrite failed", map[string]any{"guild": guildID, "channel": ch.ID, "error": err.Error()})
		}
	}
	return role.ID, nil
}

func (p *Platform) AddRole(ctx context.Context, guildID, userID, roleID string) error {
	return p.session.GuildMemberRoleAdd(guildID, userID, roleID, discordgo.WithContext(ctx))
}

func (p *Platform) RemoveRole(ctx context.Context, guildID, userID, roleID string) error {
	return p.session.GuildMemberRoleRemove(guildID, userID, roleID, discordgo.WithContext(ctx))
}

func (p *Platform) HasRole(ctx context.Context, guildID, userID, roleID string) (bool, error) {
	m, err := p.session.GuildMember(guildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		var restErr *discordgo.RESTError
		if errors.As(err, &restErr) && restErr.Message != nil && restErr.Message.Code == discordgo.ErrCodeUnknownMember {
			return false, nil
		}
		return false, err
	}
	for _, r := range m.Roles {
		if r == roleID {
			return true, nil
		}
	}
	return false, nil
}

// DenyBits maps permission denials to Discord permission bits.
func DenyBits(deny models.Permission) int64 {
	var bits int64
	if deny.Has(models.DenySendMessages) {
		bits |= discordgo.PermissionSendMessages
	}
	if deny.Has(models.DenySpeak) {
		bits |= discordgo.PermissionVoiceSpeak
	}
	return bits
}

func (p *Platform) logInfo(msg string, fields map[string]any) {
	if p.logger != nil {
		p.logger.Info(msg, fields)
	}
}

func (p *Platform) logWarn(msg string, fields map[string]any) {
	if p.logger != nil {
		p.logger.Warn(msg, fields)
	}
}
