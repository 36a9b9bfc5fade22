package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"SwingSentinel/internal/model"
)

// DiscordNotifier posts alerts to a channel through an incoming webhook.
type DiscordNotifier struct {
	WebhookURL string
	Client     *http.Client
}

// NewDiscordNotifier creates a webhook notifier with optional proxy support.
func NewDiscordNotifier(webhookURL, proxyURL string) *DiscordNotifier {
	return &DiscordNotifier{
		WebhookURL: webhookURL,
		Client:     newHTTPClient(proxyURL, 30*time.Second),
	}
}

func (d *DiscordNotifier) Name() string { return "discord" }

// FormatAlert renders evt as Discord markdown.
func (d *DiscordNotifier) FormatAlert(evt *model.AlertEvent) string {
	return FormatAlertMarkdown(evt)
}

type discordPayload struct {
	Content         string `json:"content"`
	AllowedMentions struct {
		Users []string `json:"users"`
	} `json:"allowed_mentions"`
}

// Send posts text and pings each recipient. Only the listed users may be
// mentioned.
func (d *DiscordNotifier) Send(ctx context.Context, text string, recipients []string) error {
	var p discordPayload
	p.Content = text
	p.AllowedMentions.Users = []string{}
	if len(recipients) > 0 {
		mentions := make([]string, 0, len(recipients))
		for _, id := range recipients {
			mentions = append(mentions, "<@"+id+">")
		}
		p.Content += "\n" + strings.Join(mentions, " ")
		p.AllowedMentions.Users = recipients
	}

	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := d.Client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("discord webhook error: status %d, body: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
