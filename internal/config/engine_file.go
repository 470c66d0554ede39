package config

import (
	"encoding/json"
	"fmt"
	"os"

	"MineSafetyAPI/internal/contacts"
	"MineSafetyAPI/internal/models"
	"MineSafetyAPI/internal/risk"
	"MineSafetyAPI/internal/zones"
)

// EngineFile is the deployment-specific domain configuration: zones, metric
// rules, thresholds and the contact directory.
type EngineFile struct {
	Zones                 []models.Zone                 `json:"zones"`
	Rules                 []risk.MetricRule             `json:"rules"`
	Thresholds            *risk.Thresholds              `json:"thresholds,omitempty"`
	RedLineForcesCritical *bool                         `json:"red_line_forces_critical,omitempty"`
	Contacts              []models.Contact              `json:"contacts"`
	Routing               map[models.Severity][]string `json:"routing,omitempty"`
}

// LoadEngineFile reads path, or returns the built-in defaults when path is
// empty. Sections missing from the file fall back to defaults.
func LoadEngineFile(path string) (*EngineFile, error) {
	f := &EngineFile{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read engine config %s: %w", path, err)
		}
		if err := json.Unmarshal(data, f); err != nil {
			return nil, fmt.Errorf("failed to parse engine config %s: %w", path, err)
		}
	}

	if len(f.Zones) == 0 {
		f.Zones = zones.DefaultZones()
	}
	if len(f.Contacts) == 0 {
		f.Contacts = contacts.DefaultContacts()
	}
	if err := f.Policy().Validate(); err != nil {
		return nil, fmt.Errorf("invalid risk policy in engine config: %w", err)
	}
	return f, nil
}

// Policy merges file rules over the default catalogue.
func (f *EngineFile) Policy() risk.Policy {
	p := risk.DefaultPolicy()
	for _, r := range f.Rules {
		p.Rules[r.Metric] = r
	}
	if f.Thresholds != nil {
		p.Thresholds = *f.Thresholds
	}
	if f.RedLineForcesCritical != nil {
		p.RedLineForcesCritical = *f.RedLineForcesCritical
	}
	return p
}

func (f *EngineFile) ContactRouting() contacts.Routing {
	if len(f.Routing) == 0 {
		return contacts.DefaultRouting
	}
	return contacts.Routing(f.Routing)
}
