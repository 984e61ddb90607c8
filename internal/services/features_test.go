package services

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"github.com/talentpitch/searchrec/pkg/models"
)

func TestSkillIndex_ItemVectorNorms(t *testing.T) {
	items := []models.Item{
		{ID: 1, Skills: []string{"go", "sql", "docker"}},
		{ID: 2, Skills: []string{"go"}},
		{ID: 3}, // no skills
	}
	snap := newTestSnapshot(items, nil, nil, nil, nil)

	for _, item := range items {
		vec := snap.Skills.ItemVector(item.ID)
		norm := floats.Norm(vec, 2)
		if len(item.Skills) == 0 {
			assert.InDelta(t, 0, norm, 1e-6)
		} else {
			assert.InDelta(t, 1, norm, 1e-6)
		}
	}
}

func TestSkillIndex_CooccurrenceRowsNormalized(t *testing.T) {
	items := []models.Item{
		{ID: 1, Skills: []string{"go", "sql"}},
		{ID: 2, Skills: []string{"go", "docker"}},
	}
	snap := newTestSnapshot(items, nil, nil, nil, nil)

	require.Equal(t, 3, snap.Skills.Len())
	for _, skill := range []string{"go", "sql", "docker"} {
		row := snap.Skills.Related(skill)
		require.NotNil(t, row)
		assert.InDelta(t, 1, floats.Sum(row), 1e-9)
	}

	// go co-occurs with itself in both items (double-weighted diagonal)
	// and once with each of sql and docker: row [4,1,1] normalized.
	goRow := snap.Skills.Related("go")
	assert.InDelta(t, 2.0/3, goRow[snap.Skills.Index("go")], 1e-9)
	assert.InDelta(t, 1.0/6, goRow[snap.Skills.Index("sql")], 1e-9)
	assert.InDelta(t, 1.0/6, goRow[snap.Skills.Index("docker")], 1e-9)

	sqlRow := snap.Skills.Related("sql")
	assert.InDelta(t, 2.0/3, sqlRow[snap.Skills.Index("sql")], 1e-9)
	assert.InDelta(t, 1.0/3, sqlRow[snap.Skills.Index("go")], 1e-9)

	assert.Equal(t, 2, snap.Skills.Frequency("go"))
	assert.Equal(t, 1, snap.Skills.Frequency("sql"))
	assert.Equal(t, 0, snap.Skills.Frequency("rust"))
}

func TestSkillIndex_Cosine(t *testing.T) {
	items := []models.Item{
		{ID: 1, Skills: []string{"go", "sql"}},
		{ID: 2, Skills: []string{"docker"}},
	}
	snap := newTestSnapshot(items, nil, nil, nil, nil)

	// Unit user vector pointing entirely at "go".
	userVec := make([]float64, snap.Skills.Len())
	userVec[snap.Skills.Index("go")] = 1

	cos := snap.Skills.Cosine(userVec, 1)
	assert.InDelta(t, 1/math.Sqrt2, cos, 1e-9)
	assert.InDelta(t, 0, snap.Skills.Cosine(userVec, 2), 1e-9)
}

func TestSocialGraph_NeighborhoodAndInfluence(t *testing.T) {
	conns := []models.Connection{
		{FromUserID: 1, ToUserID: 2},
		{FromUserID: 3, ToUserID: 1},
	}
	graph := BuildSocialGraph(conns)

	n := graph.Neighborhood(1)
	require.Len(t, n, 2)
	assert.Contains(t, n, int64(2))
	assert.Contains(t, n, int64(3))

	assert.InDelta(t, math.Log1p(2)/10, graph.Influence(1), 1e-9)
	assert.InDelta(t, 0, graph.Influence(99), 1e-9)
}

func TestFeatureSet_QualityGate(t *testing.T) {
	tests := []struct {
		name string
		item models.Item
		want float64
	}{
		{"high rating", models.Item{ID: 1, AvgRating: 3.5, DaysSinceCreation: 100}, 1},
		{"enough views", models.Item{ID: 2, Views: 25, DaysSinceCreation: 100}, 1},
		{"enough matches", models.Item{ID: 3, MatchCount: 2, DaysSinceCreation: 100}, 1},
		{"enough ratings", models.Item{ID: 4, RatingCount: 2, DaysSinceCreation: 100}, 1},
		{"new content amnesty", models.Item{ID: 5, DaysSinceCreation: 5}, 1},
		{"fails everything", models.Item{ID: 6, AvgRating: 1, Views: 3, DaysSinceCreation: 90}, 0},
	}

	items := make([]models.Item, 0, len(tests))
	for _, tc := range tests {
		items = append(items, tc.item)
	}
	snap := newTestSnapshot(items, nil, nil, nil, nil)

	for i, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, snap.Features.QualityGate[i])
		})
	}
}

func TestFeatureSet_Scores(t *testing.T) {
	items := []models.Item{
		{ID: 1, Views: 1000, AvgRating: 5, MatchCount: 10, RatingCount: 10, DaysSinceCreation: 10,
			Skills: []string{"a", "b"}, Knowledges: []string{"c"}, Tools: []string{"d"}},
		{ID: 2, Views: 0, AvgRating: 0, DaysSinceCreation: 100},
	}
	snap := newTestSnapshot(items, nil, nil, nil, nil)
	fs := snap.Features

	// Engagement is min-max normalized: the strong item sits near 1,
	// the empty one at 0.
	assert.Greater(t, fs.Engagement[0], 0.9)
	assert.Less(t, fs.Engagement[1], 0.1)

	assert.InDelta(t, math.Exp(-10.0/28), fs.Temporal[0], 1e-9)
	assert.Equal(t, 1.5, fs.BoostNew[0])
	assert.Equal(t, 1.0, fs.BoostNew[1])

	assert.InDelta(t, 4.0/15, fs.DiversitySkills[0], 1e-9)
	assert.Equal(t, 0.0, fs.DiversitySkills[1])

	// Both skills are unique, so rarity is 100·mean(1/2) = 50.
	assert.InDelta(t, 50, fs.RaritySkills[0], 1e-9)
	assert.Equal(t, 0.0, fs.RaritySkills[1])

	assert.Equal(t, 10, fs.MaxRatingCount)
}

func TestFeatureSet_EmptyCatalog(t *testing.T) {
	snap := newTestSnapshot(nil, nil, nil, nil, nil)
	assert.Empty(t, snap.Features.Engagement)
	assert.Equal(t, 0, snap.Skills.Len())
}

func TestRatingClampAtLoadBoundary(t *testing.T) {
	for _, item := range testCatalog(30) {
		assert.GreaterOrEqual(t, item.AvgRating, 0.0)
		assert.LessOrEqual(t, item.AvgRating, 5.0)
	}
}
