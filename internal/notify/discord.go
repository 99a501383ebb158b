package notify

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/nidhogg/overseer/internal/task"
)

// Discord posts workflow events to a single Discord channel.
// Messages go out over REST; the gateway websocket is never opened.
type Discord struct {
	session   *discordgo.Session
	channelID string
	logger    *zap.Logger
}

// NewDiscord creates a Discord notifier.
func NewDiscord(botToken, channelID string, logger *zap.Logger) (*Discord, error) {
	session, err := discordgo.New("Bot " + botToken)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	return &Discord{
		session:   session,
		channelID: channelID,
		logger:    logger,
	}, nil
}

func (d *Discord) Platform() string { return "discord" }

// Notify posts the event summary to the configured channel.
func (d *Discord) Notify(_ context.Context, ev *task.Event) error {
	content := fmt.Sprintf("**%s**", headline(ev))
	if ev.Message != "" {
		content += "\n" + ev.Message
	}

	if _, err := d.session.ChannelMessageSend(d.channelID, content); err != nil {
		d.logger.Error("discord send failed",
			zap.String("channel", d.channelID), zap.Error(err))
		return fmt.Errorf("discord send: %w", err)
	}
	return nil
}

// Close shuts down the Discord session.
func (d *Discord) Close() error {
	if d.session != nil {
		return d.session.Close()
	}
	return nil
}
