package handlers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/talentpitch/searchrec/pkg/models"
)

func TestBuildResumeItem(t *testing.T) {
	item := models.Item{
		ID:          42,
		CreatorID:   7,
		CreatorName: "Ana Maria Gomez",
		VideoURL:    "https://v/42.mp4",
		Description: "intro",
	}

	out := buildResumeItem(&item)

	assert.Equal(t, models.TypeResume, out.Type)
	assert.Equal(t, int64(42), out.ID)
	assert.Equal(t, "ana-maria-gomez", out.UserSlug)
	assert.Equal(t, "ana-maria-gomez-42", out.Slug)
	assert.Equal(t, item.VideoURL, out.Video)
	assert.Equal(t, item.VideoURL, out.Image)
	assert.Equal(t, "https://media.talentpitch.co/users/7/avatar-100.png", out.Avatar)
	assert.Equal(t, "be_discovered", out.MainObjective)
	assert.Equal(t, []string{"innovators"}, out.TypeAudiences)
	assert.NotNil(t, out.InterestAreas)
	assert.Empty(t, out.InterestAreas)
}

func TestBuildChallengeItem(t *testing.T) {
	flow := models.Flow{
		ID:             9,
		CreatorID:      3,
		CreatorName:    "Luis",
		Name:           "Big Flow",
		Description:    "desc",
		VideoURL:       "https://f/9.mp4",
		InterestAreas:  `["tech","design"]`,
		TypeObjectives: "",
		TalentType:     "",
		CreatedAt:      time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
	}

	out := buildChallengeItem(&flow)

	assert.Equal(t, models.TypeChallenge, out.Type)
	assert.Equal(t, "innovators", out.TalentType)
	assert.Equal(t, []string{"tech", "design"}, out.InterestAreas)
	assert.Equal(t, []string{"hire"}, out.TypeObjectives)
	assert.True(t, out.Top)
	assert.Equal(t, "2026-07-01T00:00:00Z", out.CreatedAt)
	assert.NotEmpty(t, out.UpdatedAt)
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "ana-gomez", slugify("Ana Gomez"))
	assert.Equal(t, "", slugify(""))
}

func TestParseJSONList(t *testing.T) {
	def := []string{"hire"}
	assert.Equal(t, def, parseJSONList("", def))
	assert.Equal(t, def, parseJSONList("null", def))
	assert.Equal(t, def, parseJSONList("broken", def))
	assert.Equal(t, []string{"a"}, parseJSONList(`["a", 2]`, def))
	assert.Empty(t, parseJSONList(`[]`, def))
}
