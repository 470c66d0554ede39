package contacts

import (
	"strconv"

	"MineSafetyAPI/internal/models"
)

const (
	GroupWorkers     = "workers"
	GroupSupervisors = "supervisors"
	GroupEmergency   = "emergency"
	GroupManagement  = "management"
)

// Routing maps an alert severity to the contact groups paged for it.
type Routing map[models.Severity][]string

var DefaultRouting = Routing{
	models.SeverityWarning:  {GroupSupervisors, GroupManagement},
	models.SeverityCritical: {GroupWorkers, GroupSupervisors, GroupEmergency, GroupManagement},
}

type Directory struct {
	contacts []models.Contact
	routing  Routing
	channels map[models.Channel]bool
}

// NewDirectory builds a directory. Only recipients on enabled channels are
// produced; a nil channel list enables every channel.
func NewDirectory(contacts []models.Contact, routing Routing, enabled []models.Channel) *Directory {
	if routing == nil {
		routing = DefaultRouting
	}
	var channels map[models.Channel]bool
	if enabled != nil {
		channels = make(map[models.Channel]bool, len(enabled))
		for _, c := range enabled {
			channels[c] = true
		}
	}
	return &Directory{contacts: contacts, routing: routing, channels: channels}
}

func (d *Directory) Contacts() []models.Contact {
	out := make([]models.Contact, len(d.contacts))
	copy(out, d.contacts)
	return out
}

func (d *Directory) enabled(c models.Channel) bool {
	return d.channels == nil || d.channels[c]
}

// Resolve expands the contacts routed for the alert's severity and zone into
// de-duplicated recipients.
func (d *Directory) Resolve(alert models.Alert) []models.Recipient {
	groups := make(map[string]bool)
	for _, g := range d.routing[alert.Severity] {
		groups[g] = true
	}

	seen := make(map[models.Recipient]bool)
	var out []models.Recipient
	add := func(name string, ch models.Channel, addr string) {
		if addr == "" || !d.enabled(ch) {
			return
		}
		r := models.Recipient{Channel: ch, Address: addr}
		if seen[r] {
			return
		}
		seen[r] = true
		r.Name = name
		out = append(out, r)
	}

	for _, c := range d.contacts {
		if !groups[c.Group] || !coversZone(c, alert.ZoneID) {
			continue
		}
		add(c.Name, models.ChannelSMS, c.Phone)
		if c.WhatsApp {
			add(c.Name, models.ChannelWhatsApp, c.Phone)
		}
		add(c.Name, models.ChannelEmail, c.Email)
		if c.TelegramChatID != 0 {
			add(c.Name, models.ChannelTelegram, strconv.FormatInt(c.TelegramChatID, 10))
		}
	}
	return out
}

func coversZone(c models.Contact, zoneID string) bool {
	if len(c.Zones) == 0 {
		return true
	}
	for _, z := range c.Zones {
		if z == zoneID {
			return true
		}
	}
	return false
}
