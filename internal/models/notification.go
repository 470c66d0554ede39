package models

import "time"

type Channel string

const (
	ChannelSMS      Channel = "sms"
	ChannelWhatsApp Channel = "whatsapp"
	ChannelEmail    Channel = "email"
	ChannelTelegram Channel = "telegram"
)

type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobSent      JobStatus = "sent"
	JobDelivered JobStatus = "delivered"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

func (s JobStatus) IsTerminal() bool {
	return s == JobSent || s == JobDelivered || s == JobFailed || s == JobCancelled
}

// Recipient is one delivery target on one channel.
type Recipient struct {
	Name    string  `json:"name"`
	Channel Channel `json:"channel"`
	Address string  `json:"address"`
}

// NotificationJob tracks delivery of one alert to one recipient. Retained for audit.
type NotificationJob struct {
	ID            string     `json:"id" db:"id"`
	AlertID       string     `json:"alert_id" db:"alert_id"`
	Channel       Channel    `json:"channel" db:"channel"`
	Recipient     string     `json:"recipient" db:"recipient"`
	RecipientName string     `json:"recipient_name,omitempty" db:"recipient_name"`
	Message       string     `json:"message" db:"message"`
	Attempts      int        `json:"attempts" db:"attempts"`
	Status        JobStatus  `json:"status" db:"status"`
	LastError     string     `json:"last_error,omitempty" db:"last_error"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty" db:"last_attempt_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

// DeliveryResult is what a channel reports for one send.
// A failed result is retried unless Permanent is set.
type DeliveryResult struct {
	Delivered bool   `json:"delivered"`
	Reason    string `json:"reason,omitempty"`
	Permanent bool   `json:"permanent,omitempty"`
}

// Contact is an entry of the contact directory; it expands into Recipients.
type Contact struct {
	Name           string   `json:"name"`
	Group          string   `json:"group"`
	Phone          string   `json:"phone,omitempty"`
	WhatsApp       bool     `json:"whatsapp,omitempty"`
	Email          string   `json:"email,omitempty"`
	TelegramChatID int64    `json:"telegram_chat_id,omitempty"`
	Zones          []string `json:"zones,omitempty"`
}
