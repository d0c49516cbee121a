package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

const telegramAPI = "https://api.telegram.org"

// Alert colors for Discord embeds
const (
	colorGreen  = 0x00FF00
	colorOrange = 0xFFA500
	colorRed    = 0xFF0000
)

func newHTTPClient() *retryablehttp.Client {
	client := retryablehttp.NewClient()
	client.HTTPClient.Timeout = 10 * time.Second
	client.RetryMax = 2
	client.Logger = nil
	return client
}

// postJSON sends payload and accepts only the listed status codes
func postJSON(ctx context.Context, client *retryablehttp.Client, url string, payload interface{}, ok ...int) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if !slices.Contains(ok, resp.StatusCode) {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

// =============================================================================
// TELEGRAM NOTIFIER
// =============================================================================

// TelegramNotifier posts alerts to one chat through the Telegram bot API
type TelegramNotifier struct {
	apiBase  string
	botToken string
	chatID   string
	enabled  bool
	client   *retryablehttp.Client
}

// TelegramConfig holds Telegram configuration
type TelegramConfig struct {
	BotToken string
	ChatID   string
	Enabled  bool
}

// NewTelegramNotifier creates a Telegram notifier. It stays disabled unless
// both the token and the chat are set.
func NewTelegramNotifier(config TelegramConfig) *TelegramNotifier {
	return &TelegramNotifier{
		apiBase:  telegramAPI,
		botToken: config.BotToken,
		chatID:   config.ChatID,
		enabled:  config.Enabled && config.BotToken != "" && config.ChatID != "",
		client:   newHTTPClient(),
	}
}

func (t *TelegramNotifier) Name() string    { return "telegram" }
func (t *TelegramNotifier) IsEnabled() bool { return t.enabled }

func (t *TelegramNotifier) Send(ctx context.Context, n *Notification) error {
	if !t.enabled {
		return nil
	}

	text := fmt.Sprintf("*%s*\n\n%s", n.Title, n.Message)
	if n.AssetID != "" {
		text += "\n\nAsset: `" + n.AssetID + "`"
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.botToken)
	err := postJSON(ctx, t.client, url, map[string]interface{}{
		"chat_id":    t.chatID,
		"text":       text,
		"parse_mode": "Markdown",
	}, http.StatusOK)
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	return nil
}

// =============================================================================
// DISCORD NOTIFIER
// =============================================================================

// DiscordNotifier posts alerts as embeds to a Discord webhook
type DiscordNotifier struct {
	webhookURL string
	enabled    bool
	client     *retryablehttp.Client
}

// DiscordConfig holds Discord configuration
type DiscordConfig struct {
	WebhookURL string
	Enabled    bool
}

// NewDiscordNotifier creates a Discord notifier
func NewDiscordNotifier(config DiscordConfig) *DiscordNotifier {
	return &DiscordNotifier{
		webhookURL: config.WebhookURL,
		enabled:    config.Enabled && config.WebhookURL != "",
		client:     newHTTPClient(),
	}
}

func (d *DiscordNotifier) Name() string    { return "discord" }
func (d *DiscordNotifier) IsEnabled() bool { return d.enabled }

func (d *DiscordNotifier) Send(ctx context.Context, n *Notification) error {
	if !d.enabled {
		return nil
	}

	payload := map[string]interface{}{
		"embeds": []map[string]interface{}{discordEmbed(n)},
	}
	if err := postJSON(ctx, d.client, d.webhookURL, payload, http.StatusOK, http.StatusNoContent); err != nil {
		return fmt.Errorf("discord: %w", err)
	}
	return nil
}

func discordEmbed(n *Notification) map[string]interface{} {
	color := colorOrange
	switch n.Type {
	case NotifyAuditFailed, NotifyError, NotifyWithdrawalFailed:
		color = colorRed
	case NotifyPoolFunded:
		color = colorGreen
	}

	embed := map[string]interface{}{
		"title":       n.Title,
		"description": n.Message,
		"color":       color,
		"timestamp":   n.Timestamp.Format(time.RFC3339),
	}

	var fields []map[string]interface{}
	if n.AssetID != "" {
		fields = append(fields, map[string]interface{}{"name": "Asset", "value": n.AssetID, "inline": true})
	}
	if n.UserID != "" {
		fields = append(fields, map[string]interface{}{"name": "User", "value": n.UserID, "inline": true})
	}
	if len(fields) > 0 {
		embed["fields"] = fields
	}
	return embed
}
