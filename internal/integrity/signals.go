package integrity

import "fmt"

// Severity bands a signal's strength.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// severityFor maps strength to a band at the 0.4 / 0.6 / 0.8 cut points.
func severityFor(strength float64) Severity {
	switch {
	case strength >= 0.8:
		return SeverityCritical
	case strength >= 0.6:
		return SeverityHigh
	case strength >= 0.4:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// EvidenceItem is one measured value behind an indicator.
type EvidenceItem struct {
	Name      string   `json:"name"`
	Value     float64  `json:"value"`
	Threshold float64  `json:"threshold"`
	Severity  Severity `json:"severity"`
}

// Indicator is one detected pattern with its strength and supporting data.
type Indicator struct {
	Pattern     string         `json:"pattern"`
	Strength    float64        `json:"strength"` // in [0,1]
	Occurrences int            `json:"occurrences"`
	Expected    float64        `json:"expected"`
	ZScore      float64        `json:"zScore"`
	Players     []string       `json:"players"`
	HandIDs     []string       `json:"handIds,omitempty"`
	Evidence    []EvidenceItem `json:"evidence"`
	Description string         `json:"description"`
}

// DetectionSignal is the reportable form of an indicator.
type DetectionSignal struct {
	Type        string         `json:"type"` // collusion, soft_play, authority_abuse
	Pattern     string         `json:"pattern"`
	Severity    Severity       `json:"severity"`
	Strength    float64        `json:"strength"`
	Confidence  float64        `json:"confidence"`
	Players     []string       `json:"players"`
	HandIDs     []string       `json:"handIds,omitempty"`
	Evidence    []EvidenceItem `json:"evidence"`
	Description string         `json:"description"`
}

// ToSignal converts an indicator, deriving severity from strength and
// confidence from the evidence sample.
func (ind Indicator) ToSignal(signalType string, sampleSize int) DetectionSignal {
	confidence := float64(sampleSize) / 50.0
	if confidence > 1 {
		confidence = 1
	}
	return DetectionSignal{
		Type:        signalType,
		Pattern:     ind.Pattern,
		Severity:    severityFor(ind.Strength),
		Strength:    ind.Strength,
		Confidence:  confidence,
		Players:     ind.Players,
		HandIDs:     ind.HandIDs,
		Evidence:    ind.Evidence,
		Description: ind.Description,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func evidence(name string, value, threshold float64) EvidenceItem {
	strength := 0.0
	if threshold > 0 {
		strength = clamp01(value / threshold / 2)
	}
	return EvidenceItem{
		Name:      name,
		Value:     value,
		Threshold: threshold,
		Severity:  severityFor(strength),
	}
}

func describePair(pattern, a, b string) string {
	return fmt.Sprintf("%s between %s and %s", pattern, a, b)
}
