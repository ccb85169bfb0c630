package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/webhook"
	"go.uber.org/zap"
)

const (
	colorUrgent = 0xff0000
	colorInfo   = 0x00ff00
)

// DiscordNotifier posts alerts as embeds to a Discord webhook
type DiscordNotifier struct {
	client webhook.Client
	logger *zap.Logger
}

// NewDiscordNotifier creates a notifier for the webhook at url
func NewDiscordNotifier(url string, logger *zap.Logger) (*DiscordNotifier, error) {
	client, err := webhook.NewWithURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord webhook: %w", err)
	}
	return &DiscordNotifier{
		client: client,
		logger: logger,
	}, nil
}

func (d *DiscordNotifier) Notify(_ context.Context, title, body string, urgent bool) error {
	if _, err := d.client.CreateEmbeds([]discord.Embed{buildEmbed(title, body, urgent, time.Now())}); err != nil {
		return fmt.Errorf("failed to send discord alert: %w", err)
	}
	return nil
}

// Close releases the webhook client
func (d *DiscordNotifier) Close(ctx context.Context) {
	d.client.Close(ctx)
}

func buildEmbed(title, body string, urgent bool, at time.Time) discord.Embed {
	color := colorInfo
	if urgent {
		color = colorUrgent
	}
	return discord.NewEmbedBuilder().
		SetTitle(title).
		SetDescription(body).
		SetColor(color).
		SetTimestamp(at).
		Build()
}
