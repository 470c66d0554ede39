package providers

import (
	"context"
	"fmt"

	"MineSafetyAPI/internal/logger"
	"MineSafetyAPI/internal/models"
)

// ChannelSender delivers on a single channel.
type ChannelSender interface {
	Send(ctx context.Context, r models.Recipient, message string) models.DeliveryResult
}

// Router dispatches each send to the sender registered for its channel.
type Router struct {
	senders map[models.Channel]ChannelSender
}

func NewRouter() *Router {
	return &Router{senders: make(map[models.Channel]ChannelSender)}
}

func (r *Router) Register(ch models.Channel, s ChannelSender) *Router {
	r.senders[ch] = s
	return r
}

// Channels lists the channels that have a sender.
func (r *Router) Channels() []models.Channel {
	out := make([]models.Channel, 0, len(r.senders))
	for _, ch := range []models.Channel{models.ChannelSMS, models.ChannelWhatsApp, models.ChannelEmail, models.ChannelTelegram} {
		if _, ok := r.senders[ch]; ok {
			out = append(out, ch)
		}
	}
	return out
}

func (r *Router) Send(ctx context.Context, ch models.Channel, rcpt models.Recipient, message string) models.DeliveryResult {
	s, ok := r.senders[ch]
	if !ok {
		return models.DeliveryResult{Reason: fmt.Sprintf("no sender configured for channel %s", ch), Permanent: true}
	}
	return s.Send(ctx, rcpt, message)
}

// LogSender only logs messages. It stands in for channels without
// credentials in development.
type LogSender struct {
	Channel models.Channel
	Log     *logger.Logger
}

func (l LogSender) Send(_ context.Context, r models.Recipient, message string) models.DeliveryResult {
	l.Log.Info("[%s dry-run] to %s <%s>: %s", l.Channel, r.Name, r.Address, message)
	return models.DeliveryResult{Delivered: true}
}
