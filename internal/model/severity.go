package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Severity represents the risk level of a vulnerability.
//
// Design decision: We use iota-based constants rather than string constants
// so that severities can be compared and sorted. The String() method
// provides the human-readable form used in reports.
type Severity int

const (
	// SeverityInfo indicates informational findings with no direct impact.
	SeverityInfo Severity = iota

	// SeverityLow indicates minor issues such as missing hardening.
	SeverityLow

	// SeverityMedium indicates issues that help an attacker but are not
	// exploitable on their own, e.g. version disclosure.
	SeverityMedium

	// SeverityHigh indicates directly exploitable weaknesses.
	SeverityHigh

	// SeverityCritical indicates weaknesses that compromise the application.
	SeverityCritical
)

// String returns a human-readable representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "INFO"
	case SeverityLow:
		return "LOW"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityHigh:
		return "HIGH"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// ParseSeverity converts a severity name (case-insensitive) to a Severity.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "INFO":
		return SeverityInfo, nil
	case "LOW":
		return SeverityLow, nil
	case "MEDIUM":
		return SeverityMedium, nil
	case "HIGH":
		return SeverityHigh, nil
	case "CRITICAL":
		return SeverityCritical, nil
	default:
		return SeverityInfo, fmt.Errorf("unknown severity %q", s)
	}
}

// MarshalJSON encodes the severity by name so reports stay readable.
func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a severity written by MarshalJSON.
func (s *Severity) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseSeverity(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
