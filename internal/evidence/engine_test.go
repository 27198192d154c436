package evidence

import (
	"math"
	"math/rand"
	"strconv"
	"testing"

	"github.com/evidengine/core/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const nowMs = 1_700_000_000_000

func outcomesAB() []OutcomeInput {
	return []OutcomeInput{{OutcomeKey: "a"}, {OutcomeKey: "b"}}
}

func fullScores(relevance, stance, strength, credibility, confidence float64) domain.OutcomeScores {
	return domain.OutcomeScores{
		Relevance:   relevance,
		Stance:      stance,
		Strength:    strength,
		Credibility: credibility,
		Confidence:  confidence,
	}
}

func TestCompute_UniformEmpty(t *testing.T) {
	res := Compute(nowMs, outcomesAB(), nil, nil)

	assert.InDelta(t, 0.5, res.Probabilities["a"], 1e-9)
	assert.InDelta(t, 0.5, res.Probabilities["b"], 1e-9)
	assert.Equal(t, 0, res.Diagnostics.AcceptedPosts)
	assert.InDelta(t, 0.0, res.Diagnostics.Beta, 1e-9)
	assert.InDelta(t, 1.6, res.Diagnostics.Temperature, 1e-9)
	assert.Equal(t, Algorithm, res.Algorithm)
}

func TestCompute_SingleFreshSupportivePost(t *testing.T) {
	half := 0.5
	outcomes := []OutcomeInput{
		{OutcomeKey: "a", PriorProbability: &half},
		{OutcomeKey: "b", PriorProbability: &half},
	}
	posts := []PostInput{
		{
			AuthorID:        "author1",
			PostCreatedAtMs: nowMs - 60_000,
			AuthorFollowers: 0,
			AuthorVerified:  false,
			PerOutcome: map[string]domain.OutcomeScores{
				"a": fullScores(1, 1, 1, 1, 1),
				"b": fullScores(1, 0, 1, 1, 1),
			},
		},
	}

	res := Compute(nowMs, outcomes, nil, posts)

	assert.Equal(t, 1, res.Diagnostics.AcceptedPosts)
	assert.Greater(t, res.Probabilities["a"], 0.5)
	assert.Less(t, res.Probabilities["b"], 0.5)
	assert.InDelta(t, 1.0, res.Probabilities["a"]+res.Probabilities["b"], 1e-9)
}

func TestCompute_StalePostDropped(t *testing.T) {
	posts := []PostInput{
		{
			AuthorID:        "author1",
			PostCreatedAtMs: nowMs - int64(73*3600*1000),
			PerOutcome: map[string]domain.OutcomeScores{
				"a": fullScores(1, 1, 1, 1, 1),
				"b": fullScores(1, 0, 1, 1, 1),
			},
		},
	}

	res := Compute(nowMs, outcomesAB(), nil, posts)

	assert.Equal(t, 0, res.Diagnostics.AcceptedPosts)
	assert.InDelta(t, 0.5, res.Probabilities["a"], 1e-9)
	assert.InDelta(t, 0.5, res.Probabilities["b"], 1e-9)
}

func TestCompute_SpammyCapsPenalty(t *testing.T) {
	got := spamSuppression(PostInput{CashtagCount: 7, URLCount: 2, CapsRatio: 0.9})
	assert.InDelta(t, 0.55*0.85*0.9, got, 1e-12)
}

func TestCompute_AuthorDilution(t *testing.T) {
	// max(0.35, 1/sqrt(1+0.75*3)) = 1/sqrt(3.25)
	got := authorDilution(4)
	assert.InDelta(t, 1/math.Sqrt(3.25), got, 1e-9)
}

func TestCompute_FloorActivation(t *testing.T) {
	k := 100
	outcomes := make([]OutcomeInput, k)
	for i := 0; i < k; i++ {
		outcomes[i] = OutcomeInput{OutcomeKey: keyFor(i)}
	}

	perOutcome := make(map[string]domain.OutcomeScores, k)
	for i := 0; i < k; i++ {
		if i == 0 {
			perOutcome[keyFor(i)] = fullScores(1, 1, 1, 1, 1)
		} else {
			perOutcome[keyFor(i)] = fullScores(0, 0, 0, 0, 0)
		}
	}

	// 200 fresh posts push every other outcome's softmax share below the
	// floor; 20 would leave them near 0.0098, above it.
	var posts []PostInput
	for i := 0; i < 200; i++ {
		posts = append(posts, PostInput{
			AuthorID:        keyFor(i + 1000),
			PostCreatedAtMs: nowMs - int64(i*1000),
			PerOutcome:      perOutcome,
		})
	}

	res := Compute(nowMs, outcomes, nil, posts)

	floor := math.Max(0.001, 0.01/float64(k))
	sum := 0.0
	for i := 1; i < k; i++ {
		p := res.Probabilities[keyFor(i)]
		assert.InDelta(t, floor, p, 1e-9)
		sum += p
	}
	sum += res.Probabilities[keyFor(0)]
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.Greater(t, res.Probabilities[keyFor(0)], floor)
}

func TestCompute_OrderingStability(t *testing.T) {
	half := 0.5
	outcomes := []OutcomeInput{
		{OutcomeKey: "a", PriorProbability: &half},
		{OutcomeKey: "b", PriorProbability: &half},
	}

	base := make([]PostInput, 0, 10)
	for i := 0; i < 10; i++ {
		base = append(base, PostInput{
			AuthorID:        keyFor(i),
			PostCreatedAtMs: nowMs - int64(i*1000),
			AuthorFollowers: int64(i * 10),
			Likes:           int64(i),
			PerOutcome: map[string]domain.OutcomeScores{
				"a": fullScores(0.8, 0.6, 0.7, 0.6, 0.9),
				"b": fullScores(0.3, -0.2, 0.4, 0.5, 0.8),
			},
		})
	}

	reference := Compute(nowMs, outcomes, nil, base)

	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 200; trial++ {
		shuffled := append([]PostInput(nil), base...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		res := Compute(nowMs, outcomes, nil, shuffled)
		assert.InDelta(t, reference.Probabilities["a"], res.Probabilities["a"], 1e-9)
		assert.InDelta(t, reference.Probabilities["b"], res.Probabilities["b"], 1e-9)
	}
}

func TestCompute_Determinism(t *testing.T) {
	outcomes := outcomesAB()
	posts := []PostInput{{
		AuthorID:        "a1",
		PostCreatedAtMs: nowMs - 1000,
		PerOutcome: map[string]domain.OutcomeScores{
			"a": fullScores(0.9, 0.5, 0.6, 0.7, 0.8),
			"b": fullScores(0.2, -0.3, 0.4, 0.5, 0.6),
		},
	}}

	r1 := Compute(nowMs, outcomes, nil, posts)
	r2 := Compute(nowMs, outcomes, nil, posts)

	assert.Equal(t, r1.Probabilities, r2.Probabilities)
	assert.Equal(t, r1.Diagnostics, r2.Diagnostics)
}

func TestCompute_ZeroOutcomes(t *testing.T) {
	res := Compute(nowMs, nil, nil, nil)
	assert.Empty(t, res.Probabilities)
	assert.Equal(t, 0, res.Diagnostics.AcceptedPosts)
	assert.InDelta(t, temperatureBase, res.Diagnostics.Temperature, 1e-12)
}

func TestCompute_SingleOutcome(t *testing.T) {
	outcomes := []OutcomeInput{{OutcomeKey: "only"}}
	posts := []PostInput{{
		AuthorID:        "a1",
		PostCreatedAtMs: nowMs - 1000,
		PerOutcome: map[string]domain.OutcomeScores{
			"only": fullScores(0.9, 0.9, 0.9, 0.9, 0.9),
		},
	}}
	res := Compute(nowMs, outcomes, nil, posts)
	require.Contains(t, res.Probabilities, "only")
	assert.InDelta(t, 1.0, res.Probabilities["only"], 1e-9)
}

func TestCompute_SumToOneAcrossRandomInputs(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 50; trial++ {
		k := 1 + rng.Intn(12)
		outcomes := make([]OutcomeInput, k)
		for i := 0; i < k; i++ {
			outcomes[i] = OutcomeInput{OutcomeKey: keyFor(i)}
		}
		var posts []PostInput
		n := rng.Intn(15)
		for j := 0; j < n; j++ {
			po := make(map[string]domain.OutcomeScores, k)
			for i := 0; i < k; i++ {
				po[keyFor(i)] = fullScores(rng.Float64(), rng.Float64()*2-1, rng.Float64(), rng.Float64(), rng.Float64())
			}
			posts = append(posts, PostInput{
				AuthorID:        keyFor(j % 3),
				PostCreatedAtMs: nowMs - int64(rng.Intn(80*3600)*1000),
				AuthorFollowers: int64(rng.Intn(100000)),
				Likes:           int64(rng.Intn(1000)),
				PerOutcome:      po,
			})
		}
		res := Compute(nowMs, outcomes, nil, posts)
		sum := 0.0
		floor := math.Max(0.001, 0.01/float64(k))
		for _, p := range res.Probabilities {
			assert.False(t, math.IsNaN(p))
			assert.GreaterOrEqual(t, p, floor-1e-12)
			sum += p
		}
		assert.InDelta(t, 1.0, sum, 1e-9)
	}
}

func keyFor(i int) string {
	return "k" + strconv.Itoa(i)
}
