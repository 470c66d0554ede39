package risk

import "MineSafetyAPI/internal/models"

var protocols = map[models.RiskLevel][]string{
	models.RiskCritical: {
		"Evacuate all workers immediately",
		"Sound emergency siren",
		"Notify Mine Safety Officer",
		"Alert ambulance and rescue team",
		"Shut down all machinery",
	},
	models.RiskHigh: {
		"Remove workers from risk area",
		"Activate continuous monitoring",
		"Inform safety officer",
		"Prepare alternative work areas",
	},
	models.RiskMedium: {
		"Enhanced monitoring protocol",
		"Restrict heavy equipment access",
		"Daily visual inspections",
		"Prepare contingency plans",
	},
	models.RiskLow: {
		"Continue routine monitoring",
	},
}

// Protocol returns the ordered safety actions for a risk level.
func Protocol(level models.RiskLevel) []string {
	actions := protocols[level]
	out := make([]string, len(actions))
	copy(out, actions)
	return out
}
