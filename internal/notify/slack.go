package notify

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"github.com/nidhogg/overseer/internal/task"
)

// Slack posts workflow events to a single Slack channel.
type Slack struct {
	client  *slack.Client
	channel string
	logger  *zap.Logger
}

// NewSlack creates a Slack notifier. botToken is the Bot User OAuth
// Token (xoxb-...); channel is the target channel ID.
func NewSlack(botToken, channel string, logger *zap.Logger) *Slack {
	return &Slack{
		client:  slack.New(botToken),
		channel: channel,
		logger:  logger,
	}
}

func (s *Slack) Platform() string { return "slack" }

// Notify posts the event summary to the configured channel.
func (s *Slack) Notify(_ context.Context, ev *task.Event) error {
	text := fmt.Sprintf("*%s*", headline(ev))
	if ev.Message != "" {
		text += "\n" + ev.Message
	}

	_, _, err := s.client.PostMessage(s.channel,
		slack.MsgOptionText(text, false),
	)
	if err != nil {
		s.logger.Error("slack send failed",
			zap.String("channel", s.channel), zap.Error(err))
		return fmt.Errorf("slack send: %w", err)
	}
	return nil
}

// Close is a no-op; the Slack client holds no connection.
func (s *Slack) Close() error {
	return nil
}
