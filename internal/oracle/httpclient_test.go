package oracle

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/evidengine/core/internal/domain"
)

func TestClamp(t *testing.T) {
	cases := []struct {
		name string
		v    float64
		lo   float64
		hi   float64
		want float64
	}{
		{"within range", 0.5, 0, 1, 0.5},
		{"below range", -2, 0, 1, 0},
		{"above range", 3.5, 0, 1, 1},
		{"negative range below", -5, -1, 1, -1},
		{"negative range above", 5, -1, 1, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, clamp(tc.v, tc.lo, tc.hi))
		})
	}
}

func TestNormalizeCredibilityLabel(t *testing.T) {
	cases := []struct {
		raw  string
		want domain.CredibilityLabel
	}{
		{"high", domain.CredibilityHigh},
		{"HIGH", domain.CredibilityHigh},
		{"  High  ", domain.CredibilityHigh},
		{"low", domain.CredibilityLow},
		{"medium", domain.CredibilityMedium},
		{"", domain.CredibilityMedium},
		{"unknown", domain.CredibilityMedium},
	}
	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			assert.Equal(t, tc.want, normalizeCredibilityLabel(tc.raw))
		})
	}
}

func TestFromWire_ClampsOutOfRangeScores(t *testing.T) {
	wire := wireResponse{
		Results: []wireResult{
			{
				PostID: "p1",
				PerOutcome: map[string]wireOutcomeScores{
					"yes": {
						Relevance:   1.5,
						Stance:      -4,
						Strength:    -0.2,
						Credibility: 2.0,
						Confidence:  0.9,
					},
				},
				DisplayLabels: wireDisplayLabels{CredibilityLabel: "HIGH"},
			},
		},
	}

	resp := fromWire(wire)
	assert.Len(t, resp.Results, 1)

	scores := resp.Results[0].PerOutcome["yes"]
	assert.Equal(t, 1.0, scores.Relevance)
	assert.Equal(t, -1.0, scores.Stance)
	assert.Equal(t, 0.0, scores.Strength)
	assert.Equal(t, 1.0, scores.Credibility)
	assert.Equal(t, 0.9, scores.Confidence)
	assert.Equal(t, domain.CredibilityHigh, resp.Results[0].DisplayLabels.CredibilityLabel)
}

func TestFromWire_EmptyResultsRoundTrips(t *testing.T) {
	resp := fromWire(wireResponse{})
	assert.Empty(t, resp.Results)
}
