package integrity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRiskReporter() *RiskReporter {
	return NewRiskReporter(
		NewCollusionDetector(DefaultCollusionConfig()),
		NewSoftPlayDetector(DefaultSoftPlayConfig()),
		NewAuthorityAbuseDetector(DefaultAuthorityAbuseConfig()),
	)
}

func TestRiskReportCleanTable(t *testing.T) {
	report := newRiskReporter().Report("tbl-1", sampleStream())

	assert.Equal(t, "tbl-1", report.TableID)
	assert.Equal(t, RiskClean, report.Level)
	assert.Zero(t, report.Score)
	assert.Empty(t, report.Signals)
	assert.Empty(t, report.Players)
}

func TestRiskReportFlagsDumpingPair(t *testing.T) {
	report := newRiskReporter().Report("tbl-1", dumpingStream(20))

	require.NotEmpty(t, report.Signals)
	assert.Greater(t, report.Score, 40.0)
	assert.Equal(t, RiskModerate, report.Level)

	require.Len(t, report.Players, 2)
	ids := []string{report.Players[0].PlayerID, report.Players[1].PlayerID}
	assert.ElementsMatch(t, []string{"alice", "bob"}, ids)
	for _, p := range report.Players {
		assert.Equal(t, RiskCritical, p.Level)
		require.NotNil(t, p.Metrics)
		assert.Equal(t, 20, p.Metrics.HandsPlayed)
	}
}

func TestRiskReportConfidenceGrowsWithSample(t *testing.T) {
	small := newRiskReporter().Report("tbl-1", dumpingStream(5))
	large := newRiskReporter().Report("tbl-1", dumpingStream(50))
	assert.Less(t, small.Confidence, large.Confidence)
}

func TestRiskLevelBands(t *testing.T) {
	tests := []struct {
		score float64
		level RiskLevel
	}{
		{0, RiskClean},
		{14.9, RiskClean},
		{15, RiskLow},
		{40, RiskModerate},
		{60, RiskHigh},
		{80, RiskCritical},
		{100, RiskCritical},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.level, riskLevelFor(tt.score), "score %.1f", tt.score)
	}
}

func TestRiskReportIsDeterministic(t *testing.T) {
	a := newRiskReporter().Report("tbl-1", dumpingStream(25))
	b := newRiskReporter().Report("tbl-1", dumpingStream(25))
	assert.Equal(t, a, b)
}
