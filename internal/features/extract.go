// Package features computes spam-signal features from raw post text. The
// extractor is pure: no state, no I/O, no failure modes.
package features

import (
	"regexp"
	"unicode"

	"github.com/evidengine/core/internal/domain"
)

var (
	cashtagRe = regexp.MustCompile(`\$[A-Z]{1,5}`)
	mentionRe = regexp.MustCompile(`@\w+`)
	urlRe     = regexp.MustCompile(`https?://\S+`)
)

// Extract computes domain.PostFeatures from raw post text.
func Extract(text string) domain.PostFeatures {
	cashtags := cashtagRe.FindAllString(text, -1)
	mentions := mentionRe.FindAllString(text, -1)
	urls := urlRe.FindAllString(text, -1)

	stripped := urlRe.ReplaceAllString(text, "")
	stripped = mentionRe.ReplaceAllString(stripped, "")
	stripped = cashtagRe.ReplaceAllString(stripped, "")

	var letters, upper int
	for _, r := range stripped {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if unicode.IsUpper(r) {
			upper++
		}
	}

	var capsRatio float64
	if letters > 0 {
		capsRatio = float64(upper) / float64(letters)
	}

	return domain.PostFeatures{
		CashtagCount: len(cashtags),
		MentionCount: len(mentions),
		URLCount:     len(urls),
		CapsRatio:    capsRatio,
	}
}
