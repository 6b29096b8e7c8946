package threat

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScoreRisk(t *testing.T) {
	tests := []struct {
		name        string
		description string
		want        int
	}{
		{"empty description is neutral", "", 50},
		{"no keywords is neutral", "the service parses uploaded files", 50},
		{"two high keywords", "critical injection flaw in the parser", 60},
		{"one low keyword", "minor formatting issue in logs", 45},
		{"mixed keywords cancel", "remote attack with limited impact", 50},
		{"keyword counted once", "injection, more injection, injection everywhere", 55},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ScoreRisk(tt.description))
		})
	}
}

func TestScoreRiskClamped(t *testing.T) {
	high := strings.Join(highRiskKeywords, " ")
	assert.Equal(t, MaxRiskScore, ScoreRisk(high))

	low := strings.Join(lowRiskKeywords, " ")
	assert.Equal(t, MinRiskScore, ScoreRisk(low))
}
