package postsource

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseRetryAfter(t *testing.T) {
	cases := []struct {
		name   string
		header string
		want   time.Duration
	}{
		{"empty header defaults", "", 30 * time.Second},
		{"seconds value", "5", 5 * time.Second},
		{"zero seconds", "0", 0},
		{"non-numeric defaults", "Wed, 21 Oct 2026 07:28:00 GMT", 30 * time.Second},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, parseRetryAfter(tc.header))
		})
	}
}
