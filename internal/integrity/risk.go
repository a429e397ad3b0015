package integrity

import "sort"

// RiskLevel classifies a table's aggregate risk.
type RiskLevel string

const (
	RiskClean    RiskLevel = "CLEAN"
	RiskLow      RiskLevel = "LOW_RISK"
	RiskModerate RiskLevel = "MODERATE_RISK"
	RiskHigh     RiskLevel = "HIGH_RISK"
	RiskCritical RiskLevel = "CRITICAL"
)

func riskLevelFor(score float64) RiskLevel {
	switch {
	case score >= 80:
		return RiskCritical
	case score >= 60:
		return RiskHigh
	case score >= 40:
		return RiskModerate
	case score >= 15:
		return RiskLow
	default:
		return RiskClean
	}
}

// PlayerRiskReport is one player's slice of the table report.
type PlayerRiskReport struct {
	PlayerID string            `json:"playerId"`
	Score    float64           `json:"score"`
	Level    RiskLevel         `json:"level"`
	Signals  []DetectionSignal `json:"signals"`
	Metrics  *PlayerMetrics    `json:"metrics,omitempty"`
}

// TableRiskReport aggregates every signal for a table.
type TableRiskReport struct {
	TableID    string             `json:"tableId"`
	Score      float64            `json:"score"` // in [0,100]
	Level      RiskLevel          `json:"level"`
	Confidence float64            `json:"confidence"`
	Signals    []DetectionSignal  `json:"signals"`
	Players    []PlayerRiskReport `json:"players"`
}

// Weighting of detector families in the table score. The weights are
// normalized by their sum.
const (
	collusionWeight = 0.30
	softPlayWeight  = 0.20
	abuseWeight     = 0.25
)

// RiskReporter runs every detector and folds the results into a scored
// table report. All inputs and outputs are deterministic.
type RiskReporter struct {
	collusion *CollusionDetector
	softPlay  *SoftPlayDetector
	abuse     *AuthorityAbuseDetector
}

// NewRiskReporter wires the three detectors.
func NewRiskReporter(collusion *CollusionDetector, softPlay *SoftPlayDetector, abuse *AuthorityAbuseDetector) *RiskReporter {
	return &RiskReporter{collusion: collusion, softPlay: softPlay, abuse: abuse}
}

// Report analyzes one table's events.
func (r *RiskReporter) Report(tableID string, events []Event) *TableRiskReport {
	metrics := ComputeMetrics(events, DefaultTimingConfig())

	collusion := r.collusion.Detect(events)
	softPlay := r.softPlay.Detect(events)
	abuse := r.abuse.Detect(events)

	sample := len(events)
	var signals []DetectionSignal
	for _, ind := range collusion {
		signals = append(signals, ind.ToSignal("collusion", sample))
	}
	for _, ind := range softPlay {
		signals = append(signals, ind.ToSignal("soft_play", sample))
	}
	for _, ind := range abuse {
		signals = append(signals, ind.ToSignal("authority_abuse", sample))
	}

	score := aggregateScore(maxStrength(collusion), maxStrength(softPlay), maxStrength(abuse))

	players := playerReports(signals, metrics)
	highRisk := 0
	for _, p := range players {
		if p.Level == RiskHigh || p.Level == RiskCritical {
			highRisk++
		}
	}
	if highRisk >= 2 {
		score *= 1.2
	}
	if score > 100 {
		score = 100
	}

	confidence := float64(sample) / 200.0
	if confidence > 1 {
		confidence = 1
	}

	return &TableRiskReport{
		TableID:    tableID,
		Score:      score,
		Level:      riskLevelFor(score),
		Confidence: confidence,
		Signals:    signals,
		Players:    players,
	}
}

func maxStrength(indicators []Indicator) float64 {
	var max float64
	for _, ind := range indicators {
		if ind.Strength > max {
			max = ind.Strength
		}
	}
	return max
}

func aggregateScore(collusion, softPlay, abuse float64) float64 {
	total := collusionWeight + softPlayWeight + abuseWeight
	weighted := collusion*collusionWeight + softPlay*softPlayWeight + abuse*abuseWeight
	return weighted / total * 100
}

func playerReports(signals []DetectionSignal, metrics map[string]*PlayerMetrics) []PlayerRiskReport {
	byPlayer := make(map[string][]DetectionSignal)
	for _, sig := range signals {
		for _, id := range sig.Players {
			byPlayer[id] = append(byPlayer[id], sig)
		}
	}

	ids := make([]string, 0, len(byPlayer))
	for id := range byPlayer {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]PlayerRiskReport, 0, len(ids))
	for _, id := range ids {
		var max float64
		for _, sig := range byPlayer[id] {
			if sig.Strength > max {
				max = sig.Strength
			}
		}
		score := max * 100
		out = append(out, PlayerRiskReport{
			PlayerID: id,
			Score:    score,
			Level:    riskLevelFor(score),
			Signals:  byPlayer[id],
			Metrics:  metrics[id],
		})
	}
	return out
}
