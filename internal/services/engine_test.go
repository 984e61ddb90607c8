package services

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talentpitch/searchrec/pkg/models"
)

func newTestEngine(snap *Snapshot) *Engine {
	return NewEngine(snap, testBanditConfig(), testLogger())
}

func TestGeneratePools_SizesAndDisjointness(t *testing.T) {
	snap := newTestSnapshot(testCatalog(400), []models.Flow{
		testFlow(9001, 5), testFlow(9002, 50),
	}, nil, nil, nil)
	engine := newTestEngine(snap)
	rng := rand.New(rand.NewSource(42))

	view := BuildPreferenceView(snap, 1)
	pools := engine.GeneratePools(view, map[int64]struct{}{}, true, rng)

	assert.LessOrEqual(t, len(pools.VMP), poolSizeVMP)
	assert.LessOrEqual(t, len(pools.NU), poolSizeNU)
	assert.LessOrEqual(t, len(pools.AU), poolSizeAU)
	assert.LessOrEqual(t, len(pools.Flows), poolSizeFW)
	assert.LessOrEqual(t, len(pools.Explore), poolSizeExplore)
	assert.NotEmpty(t, pools.VMP)
	assert.NotEmpty(t, pools.AU)
	assert.Len(t, pools.Flows, 2)

	// AU excludes items already pooled by VMP and NU; EXPLORE excludes
	// every non-flow pool.
	pooled := make(map[int64]struct{})
	for _, id := range pools.VMP {
		pooled[id] = struct{}{}
	}
	for _, id := range pools.NU {
		pooled[id] = struct{}{}
	}
	for _, id := range pools.AU {
		assert.NotContains(t, pooled, id)
		pooled[id] = struct{}{}
	}
	for _, id := range pools.Explore {
		assert.NotContains(t, pooled, id)
	}
}

func TestGeneratePools_ExclusionHonored(t *testing.T) {
	snap := newTestSnapshot(testCatalog(100), nil, nil, nil, nil)
	engine := newTestEngine(snap)
	rng := rand.New(rand.NewSource(7))

	excluded := map[int64]struct{}{5: {}, 7: {}, 9: {}}
	pools := engine.GeneratePools(BuildPreferenceView(snap, 1), excluded, false, rng)

	for _, pool := range [][]int64{pools.VMP, pools.NU, pools.AU, pools.Explore} {
		for _, id := range pool {
			assert.NotContains(t, excluded, id)
		}
	}
	assert.Empty(t, pools.Flows)
}

func TestSelectNU_RecencyFilter(t *testing.T) {
	items := []models.Item{
		testItem(1, 10),
		testItem(2, 44),
		testItem(3, 46),
		testItem(4, 200),
	}
	snap := newTestSnapshot(items, nil, nil, nil, nil)
	engine := newTestEngine(snap)
	rng := rand.New(rand.NewSource(3))

	ids := engine.selectNU(BuildPreferenceView(snap, 1), map[int64]struct{}{}, map[int64]struct{}{}, 10, rng)
	assert.ElementsMatch(t, []int64{1, 2}, ids)
}

func TestSelectVMP_QualityGateWithAmnesty(t *testing.T) {
	// Both items fail the gate, so the generator retries ungated.
	items := []models.Item{
		{ID: 1, CreatorID: 11, AvgRating: 1, Views: 2, DaysSinceCreation: 100, VideoURL: "u1"},
		{ID: 2, CreatorID: 12, AvgRating: 1, Views: 3, DaysSinceCreation: 90, VideoURL: "u2"},
	}
	snap := newTestSnapshot(items, nil, nil, nil, nil)
	engine := newTestEngine(snap)
	rng := rand.New(rand.NewSource(5))

	ids := engine.selectVMP(BuildPreferenceView(snap, 1), map[int64]struct{}{}, map[int64]struct{}{}, 5, rng)
	assert.Len(t, ids, 2)
}

func TestSelectFlows_ScoresRecencyHigher(t *testing.T) {
	flows := []models.Flow{testFlow(1, 1), testFlow(2, 59)}
	snap := newTestSnapshot(nil, flows, nil, nil, nil)
	engine := newTestEngine(snap)

	counts := map[int64]int{}
	for seed := int64(0); seed < 20; seed++ {
		ids := engine.selectFlows(map[int64]struct{}{}, 1, rand.New(rand.NewSource(seed)))
		require.Len(t, ids, 1)
		counts[ids[0]]++
	}
	// Fresh flow wins most draws despite the random component.
	assert.Greater(t, counts[1], counts[2])
}

func TestFeatureMatrix_Dimensions(t *testing.T) {
	snap := newTestSnapshot(testCatalog(10), nil, nil, nil, nil)
	engine := newTestEngine(snap)
	rng := rand.New(rand.NewSource(1))

	cand := []int{0, 1, 2}
	features := engine.featureMatrix(BuildPreferenceView(snap, 1), cand, rng)

	r, c := features.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, FeatureDim, c)

	for i := 0; i < r; i++ {
		noise := features.At(i, 17)
		assert.GreaterOrEqual(t, noise, 0.0)
		assert.Less(t, noise, 0.3)
		// No profile: similarity defaults to 0.5.
		assert.Equal(t, 0.5, features.At(i, 5))
	}
}

func TestSkillSimilarityDefaults(t *testing.T) {
	items := []models.Item{
		{ID: 1, CreatorID: 11, Skills: []string{"go"}},
		{ID: 2, CreatorID: 12},
	}
	interactions := []models.Interaction{
		{UserID: 4, ItemID: 1, Rating: 4, Kind: models.InteractionRating},
	}
	snap := newTestSnapshot(items, nil, interactions, nil, nil)
	engine := newTestEngine(snap)

	withProfile := BuildPreferenceView(snap, 4)
	require.NotNil(t, withProfile.SkillVector)

	// Item without skills scores the 0.3 default.
	assert.Equal(t, 0.3, engine.skillSimilarity(withProfile, &snap.Items[1]))

	// Full overlap: cosine 1 and weight sum 1, clamped blend is 1.
	assert.InDelta(t, 1.0, engine.skillSimilarity(withProfile, &snap.Items[0]), 1e-9)

	noProfile := BuildPreferenceView(snap, 999)
	assert.Equal(t, 0.5, engine.skillSimilarity(noProfile, &snap.Items[0]))
}

func TestExtendedMatchCap(t *testing.T) {
	items := []models.Item{{
		ID: 1, CreatorID: 11,
		Skills:     []string{"a", "b", "c", "d", "e"},
		Knowledges: []string{"f", "g", "h"},
		Tools:      []string{"i", "j", "k"},
		Languages:  []string{"l", "m", "n"},
	}}
	interactions := []models.Interaction{
		{UserID: 4, ItemID: 1, Rating: 4, Kind: models.InteractionRating},
	}
	snap := newTestSnapshot(items, nil, interactions, nil, nil)

	view := BuildPreferenceView(snap, 4)
	// 15·5 + 12·3 + 10·3 + 8·3 = 165, capped at 100.
	assert.Equal(t, 100.0, extendedMatch(view, snap, 1))
}

func TestTopK(t *testing.T) {
	cand := []int{10, 20, 30, 40, 50}
	scores := []float64{0.2, 0.9, 0.1, 0.7, 0.5}

	top, topScores := topK(cand, scores, 3)
	assert.Equal(t, []int{20, 40, 50}, top)
	assert.Equal(t, []float64{0.9, 0.7, 0.5}, topScores)

	all, _ := topK(cand, scores, 10)
	assert.Len(t, all, 5)
	assert.Equal(t, 20, all[0])

	none, _ := topK(cand, scores, 0)
	assert.Empty(t, none)
}

func TestWeightedSample(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	top := []int{1, 2, 3, 4}
	scores := []float64{10, 5, 1, 0.5}

	picked := weightedSample(top, scores, 2, rng)
	assert.Len(t, picked, 2)
	seen := map[int]bool{}
	for _, pos := range picked {
		assert.False(t, seen[pos], "duplicate draw")
		seen[pos] = true
		assert.GreaterOrEqual(t, pos, 0)
		assert.Less(t, pos, len(top))
	}

	// All-zero weights degrade to uniform sampling.
	uniform := weightedSample(top, []float64{0, 0, 0, 0}, 2, rng)
	assert.Len(t, uniform, 2)
}
