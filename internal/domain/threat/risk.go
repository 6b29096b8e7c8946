package threat

import "strings"

// Risk score bounds and the neutral starting point.
const (
	MinRiskScore  = 1
	MaxRiskScore  = 100
	BaseRiskScore = 50
)

// highRiskKeywords raise the score of a threat description; lowRiskKeywords
// lower it.  Each keyword found contributes exactly once regardless of how
// often it appears.
var highRiskKeywords = []string{
	"critical", "severe", "high", "dangerous", "significant", "major",
	"sensitive data", "personal data", "financial", "authentication",
	"bypass", "privilege", "escalation", "remote", "execution",
	"injection", "unauthorized", "access", "disclosure", "breach",
	"compromise",
}

var lowRiskKeywords = []string{
	"low", "minor", "minimal", "limited", "small", "unlikely", "rare",
	"informational", "disclosure", "non-sensitive", "public", "temporary",
}

// ScoreRisk assigns a heuristic risk score to a threat description: start
// at BaseRiskScore, add 5 per high-risk keyword present, subtract 5 per
// low-risk keyword present, clamp to [MinRiskScore, MaxRiskScore].  An
// empty description scores BaseRiskScore.
func ScoreRisk(description string) int {
	score := BaseRiskScore
	lower := strings.ToLower(description)
	for _, kw := range highRiskKeywords {
		if strings.Contains(lower, kw) {
			score += 5
		}
	}
	for _, kw := range lowRiskKeywords {
		if strings.Contains(lower, kw) {
			score -= 5
		}
	}
	if score < MinRiskScore {
		return MinRiskScore
	}
	if score > MaxRiskScore {
		return MaxRiskScore
	}
	return score
}
