package models

import "fmt"

// Message is an inbound chat message.
type Message struct {
	ID        string `json:"id"`
	GuildID   string `json:"guild_id,omitempty"`
	ChannelID string `json:"channel_id"`
	AuthorID  string `json:"author_id"`
	AuthorBot bool   `json:"author_bot,omitempty"`
	Content   string `json:"content"`
}

// UserKey identifies one member of one guild.
type UserKey struct {
	GuildID string
	UserID  string
}

func (k UserKey) String() string {
	return k.GuildID + "/" + k.UserID
}

// Mention renders a user mention in platform markup.
func Mention(userID string) string {
	return fmt.Sprintf("<@%s>", userID)
}

// CommandName is a moderator command.
type CommandName string

const (
	CommandWarnings      CommandName = "warnings"
	CommandClearWarnings CommandName = "clearwarnings"
	CommandMute          CommandName = "mute"
	CommandUnmute        CommandName = "unmute"
)

// Valid reports whether the command is one of the known moderator commands.
func (c CommandName) Valid() bool {
	switch c {
	case CommandWarnings, CommandClearWarnings, CommandMute, CommandUnmute:
		return true
	}
	return false
}

// Command is a moderator-invoked command with its target.
type Command struct {
	Name      CommandName `json:"name"`
	GuildID   string      `json:"guild_id"`
	ChannelID string      `json:"channel_id"`
	InvokerID string      `json:"invoker_id"`
	TargetID  string      `json:"target_id"`
}

// Reply is the text answered to a command.
type Reply struct {
	Content string
	Failed  bool
}
