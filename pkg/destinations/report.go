package destinations

import (
	"fmt"
	"strings"
	"time"
)

// Verification statuses.
const (
	StatusSuccess = "success"
	StatusWarning = "warning"
)

// DestinationStatus is one enabled destination as listed in a verification
// report.
type DestinationStatus struct {
	Name        string `json:"name"`
	Kind        Kind   `json:"kind"`
	Address     string `json:"address"`
	Description string `json:"description"`
}

// VerificationReport is the audit view over one configuration generation:
// which destinations are enabled, where the configuration came from, and
// every anomaly found while loading or validating it. Building the report
// performs no network calls.
type VerificationReport struct {
	GeneratedAt      time.Time           `json:"timestamp"`
	Source           string              `json:"config_source"`
	TotalLoaded      int                 `json:"total_destinations_loaded"`
	Enabled          []DestinationStatus `json:"enabled_destinations"`
	KindCounts       map[Kind]int        `json:"destination_types"`
	LoadWarnings     []string            `json:"load_warnings,omitempty"`
	ValidationErrors []string            `json:"validation_errors,omitempty"`
	Status           string              `json:"verification_status"`
}

// BuildVerification assembles the verification report for a configuration
// and its enabled-destination snapshot.
func BuildVerification(cfg *Config, snap Snapshot) VerificationReport {
	report := VerificationReport{
		GeneratedAt: snap.TakenAt,
		TotalLoaded: cfg.Total(),
		Enabled:     make([]DestinationStatus, 0, snap.Total()),
		KindCounts:  snap.KindCounts(),
		Status:      StatusSuccess,
	}
	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = time.Now().UTC()
	}
	if cfg != nil {
		report.Source = cfg.Source
		report.LoadWarnings = cfg.Warnings
	}

	for _, d := range snap.All() {
		report.Enabled = append(report.Enabled, DestinationStatus{
			Name:        d.Name,
			Kind:        d.Kind,
			Address:     d.Address,
			Description: d.Description,
		})
		if d.Address == "" {
			report.ValidationErrors = append(report.ValidationErrors,
				fmt.Sprintf("destination %q (%s) has no address", d.Name, d.Kind))
		}
	}

	if len(report.ValidationErrors) > 0 || len(report.LoadWarnings) > 0 {
		report.Status = StatusWarning
	}
	return report
}

// Summary renders the human-readable destination listing logged on every
// invocation and printed by the verification tool.
func (r VerificationReport) Summary() string {
	var b strings.Builder

	if len(r.Enabled) == 0 {
		b.WriteString("No enabled destinations configured\n")
	} else {
		b.WriteString("Currently Enabled Destinations:\n")
		for i, d := range r.Enabled {
			b.WriteString(fmt.Sprintf("  %d. %s (%s)\n", i+1, d.Name, strings.ToUpper(string(d.Kind))))
			b.WriteString(fmt.Sprintf("     %s: %s\n", addressLabel(d.Kind), orNone(d.Address)))
			b.WriteString(fmt.Sprintf("     Description: %s\n", orNoDescription(d.Description)))
		}
	}

	b.WriteString(fmt.Sprintf("\nTotal Enabled Destinations: %d", len(r.Enabled)))
	return b.String()
}

func addressLabel(kind Kind) string {
	if kind == KindSNS {
		return "ARN"
	}
	return "URL"
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

func orNoDescription(s string) string {
	if s == "" {
		return "No description"
	}
	return s
}

// OutcomeSummary aggregates the outcomes of one dispatch.
type OutcomeSummary struct {
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// SummarizeOutcomes counts successes and failures in a dispatch result.
func SummarizeOutcomes(outcomes []Outcome) OutcomeSummary {
	s := OutcomeSummary{Attempted: len(outcomes)}
	for _, out := range outcomes {
		if out.Succeeded {
			s.Succeeded++
		} else {
			s.Failed++
		}
	}
	return s
}

// Message renders the per-dispatch delivery line.
func (s OutcomeSummary) Message() string {
	return fmt.Sprintf("Forwarded to %d destinations, %d failed", s.Succeeded, s.Failed)
}
