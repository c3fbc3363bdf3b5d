package alert

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/elum-utils/warden/core"
	"github.com/elum-utils/warden/models"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

// Webhook posts moderator alerts to an incoming-webhook URL.
// The payload is accepted by Discord and Slack compatible endpoints.
type Webhook struct {
	url      string
	username string
	client   *resty.Client
}

// Options configures the webhook.
type Options struct {
	URL      string
	Username string
	Timeout  time.Duration
}

type payload struct {
	Content  string `json:"content"`
	Text     string `json:"text"`
	Username string `json:"username,omitempty"`
}

// NewWebhook creates a webhook client.
func NewWebhook(opt Options) (*Webhook, error) {
	if strings.TrimSpace(opt.URL) == "" {
		return nil, errors.New("alert: webhook URL is required")
	}
	if opt.Timeout <= 0 {
		opt.Timeout = 10 * time.Second
	}
	if opt.Username == "" {
		opt.Username = "warden"
	}
	return &Webhook{
		url:      opt.URL,
		username: opt.Username,
		client: resty.New().
			SetTimeout(opt.Timeout).
			SetHeader("Content-Type", "application/json"),
	}, nil
}

// Send delivers one alert.
func (w *Webhook) Send(ctx context.Context, a models.Alert) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	resp, err := w.client.R().
		SetContext(ctx).
		SetHeader("X-Alert-ID", a.ID).
		SetBody(payload{Content: a.Text, Text: a.Text, Username: w.username}).
		Post(w.url)
	if err != nil {
		return err
	}
	if resp.StatusCode() >= http.StatusMultipleChoices {
		return fmt.Errorf("alert: status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

// Handle is a core event handler forwarding mutes and enforcement failures.
func (w *Webhook) Handle(ctx context.Context, e core.ModerationEvent) error {
	a, ok := FromEvent(e)
	if !ok {
		return nil
	}
	return w.Send(ctx, a)
}

// FromEvent builds an alert for the events moderators need to see.
func FromEvent(e core.ModerationEvent) (models.Alert, bool) {
	a := models.Alert{
		ID:      uuid.NewString(),
		GuildID: e.GuildID,
		UserID:  e.UserID,
		At:      e.At,
	}
	switch e.Name {
	case core.EventEnforcementFailed:
		a.Kind = models.AlertEnforcementFailure
		reason := "unknown error"
		if e.Err != nil {
			reason = e.Err.Error()
		}
		a.Text = fmt.Sprintf("❗ Mute not enforced for %s in guild %s: %s failed: %s",
			models.Mention(e.UserID), e.GuildID, e.Action, reason)
	case core.EventMute:
		a.Kind = models.AlertMute
		a.Text = fmt.Sprintf("🔇 %s muted in guild %s (%s).", models.Mention(e.UserID), e.GuildID, e.Source)
	default:
		return models.Alert{}, false
	}
	return a, true
}
