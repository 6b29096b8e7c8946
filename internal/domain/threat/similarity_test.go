package threat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJaccard(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", "data breach", "data breach", 1.0},
		{"disjoint", "phishing email", "sql injection", 0.0},
		{"partial overlap", "sql injection attack", "xss attack", 0.25},
		{"case and punctuation ignored", "Cross-Site Scripting!", "cross site scripting", 1.0},
		{"both empty", "", "", 0.0},
		{"one empty", "spoofing", "", 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Jaccard(tt.a, tt.b), 1e-9)
		})
	}
}

func TestIsDuplicate(t *testing.T) {
	existing := []Record{
		{Title: "SQL Injection in the Login Form", Description: "Attacker supplies crafted SQL via the username field to read arbitrary rows."},
		{Title: "Weak Password Policy", Description: "Short passwords allow brute forcing of user accounts."},
	}

	t.Run("exact title case-insensitive", func(t *testing.T) {
		c := Record{Title: "sql injection in the login form", Description: "totally different text"}
		assert.True(t, IsDuplicate(c, existing))
	})

	t.Run("near-identical title", func(t *testing.T) {
		c := Record{Title: "SQL Injection in Login Form", Description: "different wording entirely"}
		assert.True(t, IsDuplicate(c, existing))
	})

	t.Run("near-identical description", func(t *testing.T) {
		c := Record{
			Title:       "Credential Stuffing",
			Description: "Attacker supplies crafted SQL via the username field to read arbitrary rows.",
		}
		assert.True(t, IsDuplicate(c, existing))
	})

	t.Run("distinct threat", func(t *testing.T) {
		c := Record{
			Title:       "Server-Side Request Forgery",
			Description: "Internal metadata endpoints reachable through the URL preview feature.",
		}
		assert.False(t, IsDuplicate(c, existing))
	})

	t.Run("empty fields never match", func(t *testing.T) {
		c := Record{}
		assert.False(t, IsDuplicate(c, existing))
		assert.False(t, IsDuplicate(Record{Title: "Anything"}, nil))
	})
}
