package notify

import (
	"context"

	"go.uber.org/zap"
)

// EmailChannelName is the preference key of the email channel and the system default.
const EmailChannelName = "email"

// EmailChannel hands messages to the mail relay. Delivery happens outside this
// service, so the channel records the outgoing message in the log stream the relay tails.
type EmailChannel struct {
	logger *zap.Logger
}

// NewEmailChannel returns an email channel logging under logger. A nil logger discards output.
func NewEmailChannel(logger *zap.Logger) *EmailChannel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmailChannel{logger: logger.Named("email")}
}

// Name returns EmailChannelName.
func (c *EmailChannel) Name() string { return EmailChannelName }

// Send writes msg to the log. It never fails.
func (c *EmailChannel) Send(_ context.Context, msg Message) error {
	c.logger.Info("outgoing email",
		zap.String("from", msg.From),
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Body),
	)
	return nil
}
