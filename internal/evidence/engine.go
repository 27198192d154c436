// Package evidence implements the evidence-softmax-v1 algorithm: a pure,
// deterministic function mapping a market's prior probabilities and a
// batch of scored posts to an updated probability vector.
//
// The function never reads the wall clock; "now" is always a caller
// supplied parameter. This keeps it trivially testable and safe to run
// against backfilled data.
package evidence

import (
	"math"

	"github.com/evidengine/core/internal/domain"
)

const (
	Algorithm = "evidence-softmax-v1"

	graceSeconds    = 300
	halfLifeSeconds = 6 * 3600
	maxAgeSeconds   = 72 * 3600
	recentWindowSec = 24 * 3600

	gamma   = 1.15
	stanceK = 1.6
	wMin    = 0.018

	muFollowers     = 8.0
	sigmaFollowers  = 1.5
	muEngagement    = 2.0
	sigmaEngagement = 1.5

	verifiedMult = 1.2

	temperatureBase  = 1.0
	temperatureAlpha = 0.6
	inertiaTau       = 0.65

	eps = 1e-12
)

// OutcomeInput is one outcome definition fed to Compute.
type OutcomeInput struct {
	OutcomeKey       string
	PriorProbability *float64
}

// PostInput is one fully scored post fed to Compute.
type PostInput struct {
	AuthorID        string
	PostCreatedAtMs int64
	AuthorFollowers int64
	AuthorVerified  bool
	Likes           int64
	Reposts         int64
	Replies         int64
	Quotes          int64
	CashtagCount    int
	URLCount        int
	CapsRatio       float64
	// PerOutcome maps outcome_key to that outcome's oracle scores for
	// this post. A missing key is treated as zero relevance / zero
	// stance, never synthesized as negative evidence.
	PerOutcome map[string]domain.OutcomeScores
}

// Diagnostics exposes the intermediate quantities of one Compute call.
type Diagnostics struct {
	AcceptedPosts int
	WBatch        float64
	Beta          float64
	Temperature   float64
	Floor         float64
}

// Result is the output of Compute.
type Result struct {
	Probabilities map[string]float64
	Algorithm     string
	Diagnostics   Diagnostics
}

// Compute implements evidence-softmax-v1 per the fixed constant table.
// now is wall-clock milliseconds; it is never read internally.
func Compute(nowMs int64, outcomes []OutcomeInput, prevProbabilities map[string]float64, posts []PostInput) Result {
	k := len(outcomes)
	if k == 0 {
		return Result{
			Probabilities: map[string]float64{},
			Algorithm:     Algorithm,
			Diagnostics: Diagnostics{
				AcceptedPosts: 0,
				WBatch:        0,
				Beta:          0,
				Temperature:   temperatureBase,
				Floor:         0,
			},
		}
	}

	priors := normalizedPriors(outcomes)
	prev := normalizedPrev(outcomes, prevProbabilities, priors)

	nAuthor := countRecentPostsPerAuthor(nowMs, posts)

	deltaE := make([]float64, k)
	wBatch := 0.0
	accepted := 0

	for _, p := range posts {
		ageS := float64(nowMs-p.PostCreatedAtMs) / 1000.0
		if ageS < 0 {
			ageS = 0
		}
		if ageS > maxAgeSeconds {
			continue
		}

		d := decayFactor(ageS)
		e := engagementLog(p)
		f := sigmoid((math.Log1p(float64(p.AuthorFollowers)) - muFollowers) / sigmaFollowers)
		eSig := sigmoid((e - muEngagement) / sigmaEngagement)
		m := (0.75 + 0.25*f) * (0.85 + 0.15*eSig)
		if p.AuthorVerified {
			m *= verifiedMult
		}
		a := authorDilution(nAuthor[p.AuthorID])
		s := spamSuppression(p)

		maxRelevance := 0.0
		maxCredibility := 0.0
		zP := 0.0

		for _, o := range outcomes {
			sc := p.PerOutcome[o.OutcomeKey]
			relevance := clamp(sc.Relevance, 0, 1)
			stance := clamp(sc.Stance, -1, 1)
			strength := clamp(sc.Strength, 0, 1)
			credibility := clamp(sc.Credibility, 0, 1)

			sem := relevance * strength * credibility
			if relevance > maxRelevance {
				maxRelevance = relevance
			}
			if credibility > maxCredibility {
				maxCredibility = credibility
			}
			zCandidate := sem * math.Abs(stance)
			if zCandidate > zP {
				zP = zCandidate
			}
		}

		wP := math.Pow(zP, gamma) * m * a * d * s

		var acceptedPost bool
		if ageS <= graceSeconds {
			acceptedPost = maxRelevance >= 0.1 && zP >= 0.025
		} else {
			acceptedPost = maxRelevance >= 0.2 && maxCredibility >= 0.15 && wP >= wMin
		}
		if !acceptedPost {
			continue
		}

		sqrtK := math.Sqrt(float64(k))
		for i, o := range outcomes {
			sc := p.PerOutcome[o.OutcomeKey]
			stance := clamp(sc.Stance, -1, 1)
			relevance := clamp(sc.Relevance, 0, 1)
			strength := clamp(sc.Strength, 0, 1)
			credibility := clamp(sc.Credibility, 0, 1)
			confidence := clamp(sc.Confidence, 0, 1)

			base := relevance * strength * (credibility * confidence)
			delta := math.Tanh(stanceK*stance) * math.Pow(base, gamma) * m * a * d * s / sqrtK
			deltaE[i] += delta
		}
		wBatch += wP
		accepted++
	}

	lPrev := make([]float64, k)
	meanLPrev := 0.0
	for i, pv := range prev {
		lPrev[i] = math.Log(pv + eps)
		meanLPrev += lPrev[i]
	}
	meanLPrev /= float64(k)

	lInst := make([]float64, k)
	for i := range lPrev {
		lInst[i] = (lPrev[i] - meanLPrev) + deltaE[i]
	}

	temperature := temperatureBase * (1 + temperatureAlpha/math.Sqrt(1+wBatch))
	pInst := stableSoftmax(lInst, temperature)

	beta := 1 - math.Exp(-wBatch/inertiaTau)

	floor := math.Max(0.001, 0.01/float64(k))

	pNew := make([]float64, k)
	for i := range pNew {
		pNew[i] = (1-beta)*prev[i] + beta*pInst[i]
	}

	pFloored := make([]float64, k)
	sumFloored := 0.0
	for i, v := range pNew {
		pFloored[i] = math.Max(v, floor)
		sumFloored += pFloored[i]
	}

	probabilities := make(map[string]float64, k)
	for i, o := range outcomes {
		probabilities[o.OutcomeKey] = pFloored[i] / sumFloored
	}

	return Result{
		Probabilities: probabilities,
		Algorithm:     Algorithm,
		Diagnostics: Diagnostics{
			AcceptedPosts: accepted,
			WBatch:        wBatch,
			Beta:          beta,
			Temperature:   temperature,
			Floor:         floor,
		},
	}
}

func normalizedPriors(outcomes []OutcomeInput) []float64 {
	k := len(outcomes)
	priors := make([]float64, k)
	for i, o := range outcomes {
		if o.PriorProbability != nil {
			priors[i] = clamp(*o.PriorProbability, 1e-6, 1)
		} else {
			priors[i] = 1.0 / float64(k)
		}
	}
	return renormalize(priors)
}

func normalizedPrev(outcomes []OutcomeInput, prevProbabilities map[string]float64, priors []float64) []float64 {
	k := len(outcomes)
	prev := make([]float64, k)
	for i, o := range outcomes {
		if v, ok := prevProbabilities[o.OutcomeKey]; ok {
			prev[i] = clamp(v, 1e-6, 1)
		} else {
			prev[i] = priors[i]
		}
	}
	return renormalize(prev)
}

func renormalize(v []float64) []float64 {
	sum := 0.0
	for _, x := range v {
		sum += x
	}
	if sum <= 0 {
		uniform := 1.0 / float64(len(v))
		out := make([]float64, len(v))
		for i := range out {
			out[i] = uniform
		}
		return out
	}
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x / sum
	}
	return out
}

func countRecentPostsPerAuthor(nowMs int64, posts []PostInput) map[string]int {
	counts := make(map[string]int)
	for _, p := range posts {
		ageS := float64(nowMs-p.PostCreatedAtMs) / 1000.0
		if ageS < 0 {
			ageS = 0
		}
		if ageS <= recentWindowSec {
			counts[p.AuthorID]++
		}
	}
	return counts
}

func decayFactor(ageS float64) float64 {
	if ageS <= graceSeconds {
		return 1.0
	}
	return math.Exp(-math.Ln2 * (ageS - graceSeconds) / halfLifeSeconds)
}

func engagementLog(p PostInput) float64 {
	return math.Log1p(float64(p.Likes) + 2*float64(p.Reposts) + 1.5*float64(p.Replies) + 2.5*float64(p.Quotes))
}

func authorDilution(nAuthor int) float64 {
	return math.Max(0.35, 1/math.Sqrt(1+0.75*math.Max(0, float64(nAuthor-1))))
}

func spamSuppression(p PostInput) float64 {
	sc := 1.0
	switch {
	case p.CashtagCount >= 6:
		sc = 0.55
	case p.CashtagCount >= 4:
		sc = 0.75
	}
	su := 1.0
	if p.URLCount >= 2 {
		su = 0.85
	}
	scaps := 1.0
	if p.CapsRatio > 0.6 {
		scaps = 0.9
	}
	return sc * su * scaps
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// stableSoftmax computes softmax(logits/temperature) with max-subtraction
// for numerical stability.
func stableSoftmax(logits []float64, temperature float64) []float64 {
	scaled := make([]float64, len(logits))
	maxVal := math.Inf(-1)
	for i, l := range logits {
		scaled[i] = l / temperature
		if scaled[i] > maxVal {
			maxVal = scaled[i]
		}
	}
	sum := 0.0
	out := make([]float64, len(logits))
	for i, v := range scaled {
		out[i] = math.Exp(v - maxVal)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum + eps
	}
	return out
}
