package notify

import (
	"fmt"

	"MineSafetyAPI/internal/models"
)

// ComposeMessage renders the text sent to recipients for an alert.
func ComposeMessage(alert models.Alert, zoneName string) string {
	if zoneName == "" {
		zoneName = alert.ZoneID
	}
	switch alert.Severity {
	case models.SeverityCritical:
		return fmt.Sprintf("EMERGENCY! %s: %s. Evacuate mine immediately and follow emergency protocols. Ref %s",
			zoneName, alert.Message, shortID(alert.ID))
	default:
		return fmt.Sprintf("WARNING: %s: %s. Enhanced safety protocols in effect. Ref %s",
			zoneName, alert.Message, shortID(alert.ID))
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
