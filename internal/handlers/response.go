package handlers

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/talentpitch/searchrec/pkg/models"
)

const avatarURLFormat = "https://media.talentpitch.co/users/%d/avatar-100.png"

func slugify(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), " ", "-")
}

func buildResumeItem(item *models.Item) models.ResumeItem {
	userSlug := slugify(item.CreatorName)
	return models.ResumeItem{
		Type:           models.TypeResume,
		ID:             item.ID,
		Name:           item.CreatorName,
		Slug:           fmt.Sprintf("%s-%d", userSlug, item.ID),
		Description:    item.Description,
		Video:          item.VideoURL,
		Image:          item.VideoURL,
		UserID:         item.CreatorID,
		UserName:       item.CreatorName,
		UserSlug:       userSlug,
		Avatar:         fmt.Sprintf(avatarURLFormat, item.CreatorID),
		MainObjective:  "be_discovered",
		TypeAudience:   "innovators",
		TypeAudiences:  []string{"innovators"},
		InterestAreas:  []string{},
		RoleObjectives: []string{},
		Connected:      "",
	}
}

func buildChallengeItem(flow *models.Flow) models.ChallengeItem {
	talentType := flow.TalentType
	if talentType == "" {
		talentType = "innovators"
	}
	return models.ChallengeItem{
		Type:           models.TypeChallenge,
		ID:             flow.ID,
		Name:           flow.Name,
		Slug:           "",
		Description:    flow.Description,
		VideoURL:       flow.VideoURL,
		Image:          flow.VideoURL,
		UserID:         flow.CreatorID,
		UserName:       flow.CreatorName,
		UserSlug:       "",
		UserAvatar:     fmt.Sprintf(avatarURLFormat, flow.CreatorID),
		TalentType:     talentType,
		InterestAreas:  parseJSONList(flow.InterestAreas, []string{}),
		TypeObjectives: parseJSONList(flow.TypeObjectives, []string{"hire"}),
		Top:            true,
		CreatedAt:      flow.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      time.Now().Format(time.RFC3339),
		StatusAt:       flow.StatusAt,
	}
}

// parseJSONList decodes a JSON string array stored as text, falling back
// to def on anything unparseable.
func parseJSONList(raw string, def []string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return def
	}
	var values []any
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return def
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
