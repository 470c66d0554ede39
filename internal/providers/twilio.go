package providers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"MineSafetyAPI/internal/models"
)

const twilioBaseURL = "https://api.twilio.com"

type TwilioConfig struct {
	AccountSID   string
	AuthToken    string
	FromNumber   string
	WhatsAppFrom string
	BaseURL      string
	Timeout      time.Duration
}

type twilioMessage struct {
	SID    string `json:"sid"`
	Status string `json:"status"`
}

type twilioError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// TwilioClient sends SMS and WhatsApp messages through the Twilio REST API.
// Retries are left to the dispatcher.
type TwilioClient struct {
	cfg    TwilioConfig
	client *resty.Client
}

func NewTwilioClient(cfg TwilioConfig) *TwilioClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = twilioBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetBasicAuth(cfg.AccountSID, cfg.AuthToken).
		SetHeader("Accept", "application/json")

	return &TwilioClient{cfg: cfg, client: client}
}

func (c *TwilioClient) Configured() bool {
	return c.cfg.AccountSID != "" && c.cfg.AuthToken != "" && c.cfg.FromNumber != ""
}

// SMS returns the SMS side of the client as a ChannelSender.
func (c *TwilioClient) SMS() ChannelSender {
	return twilioChannel{c: c}
}

// WhatsApp returns the WhatsApp side of the client as a ChannelSender.
func (c *TwilioClient) WhatsApp() ChannelSender {
	return twilioChannel{c: c, whatsapp: true}
}

type twilioChannel struct {
	c        *TwilioClient
	whatsapp bool
}

func (t twilioChannel) Send(ctx context.Context, r models.Recipient, message string) models.DeliveryResult {
	to, from := r.Address, t.c.cfg.FromNumber
	if t.whatsapp {
		to = "whatsapp:" + r.Address
		if t.c.cfg.WhatsAppFrom != "" {
			from = t.c.cfg.WhatsAppFrom
		}
		if !strings.HasPrefix(from, "whatsapp:") {
			from = "whatsapp:" + from
		}
	}
	return t.c.send(ctx, to, from, message)
}

func (c *TwilioClient) send(ctx context.Context, to, from, body string) models.DeliveryResult {
	var (
		result twilioMessage
		apiErr twilioError
	)
	resp, err := c.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"To":   to,
			"From": from,
			"Body": body,
		}).
		SetResult(&result).
		SetError(&apiErr).
		Post(fmt.Sprintf("/2010-04-01/Accounts/%s/Messages.json", c.cfg.AccountSID))
	if err != nil {
		return models.DeliveryResult{Reason: fmt.Sprintf("twilio request failed: %v", err)}
	}

	switch code := resp.StatusCode(); {
	case code == http.StatusCreated || code == http.StatusOK:
		if result.Status == "failed" || result.Status == "undelivered" {
			return models.DeliveryResult{Reason: fmt.Sprintf("twilio message %s %s", result.SID, result.Status)}
		}
		return models.DeliveryResult{Delivered: true}
	case code == http.StatusTooManyRequests || code >= 500:
		return models.DeliveryResult{Reason: fmt.Sprintf("twilio returned %d: %s", code, apiErr.Message)}
	default:
		// 4xx: bad number, unverified sender, auth problems
		return models.DeliveryResult{
			Reason:    fmt.Sprintf("twilio rejected message (%d, code %d): %s", code, apiErr.Code, apiErr.Message),
			Permanent: true,
		}
	}
}
