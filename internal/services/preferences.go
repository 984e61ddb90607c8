package services

import "math"

// preferenceSampleSize bounds how many interacted items feed the
// preference profile.
const preferenceSampleSize = 80

// PreferenceView is the request-scoped profile of a user, derived from
// their interactions and the social graph. It is built per request and
// discarded with the response.
type PreferenceView struct {
	UserID int64

	Skills     map[string]struct{}
	Knowledges map[string]struct{}
	Tools      map[string]struct{}
	Languages  map[string]struct{}
	Cities     map[string]struct{}

	SeenItemIDs map[int64]struct{}

	SkillWeights map[string]float64
	SkillVector  []float64 // unit L2 over the skill universe; nil when empty

	SocialNeighborhood map[int64]struct{}
	SocialInfluence    float64
}

func emptyPreferenceView(userID int64) *PreferenceView {
	return &PreferenceView{
		UserID:       userID,
		Skills:       make(map[string]struct{}),
		Knowledges:   make(map[string]struct{}),
		Tools:        make(map[string]struct{}),
		Languages:    make(map[string]struct{}),
		Cities:       make(map[string]struct{}),
		SeenItemIDs:  make(map[int64]struct{}),
		SkillWeights: make(map[string]float64),
	}
}

// BuildPreferenceView derives the profile of userID from the snapshot.
// A user with no interactions gets an empty view.
func BuildPreferenceView(snap *Snapshot, userID int64) *PreferenceView {
	view := emptyPreferenceView(userID)

	interactions := snap.InteractionsByUser[userID]
	if len(interactions) == 0 {
		return view
	}

	// Seen set covers everything; the profile samples the first items in
	// stored order.
	var sampled []int64
	for _, in := range interactions {
		if _, dup := view.SeenItemIDs[in.ItemID]; !dup && len(sampled) < preferenceSampleSize {
			sampled = append(sampled, in.ItemID)
		}
		view.SeenItemIDs[in.ItemID] = struct{}{}
	}

	skillCounts := make(map[string]int)
	total := 0
	for _, itemID := range sampled {
		for s := range snap.ItemSkills[itemID] {
			view.Skills[s] = struct{}{}
			skillCounts[s]++
			total++
		}
		for k := range snap.ItemKnowledges[itemID] {
			view.Knowledges[k] = struct{}{}
		}
		for t := range snap.ItemTools[itemID] {
			view.Tools[t] = struct{}{}
		}
		for l := range snap.ItemLanguages[itemID] {
			view.Languages[l] = struct{}{}
		}
		if item := snap.Item(itemID); item != nil {
			if item.City != "" && item.City != "Unknown" {
				view.Cities[item.City] = struct{}{}
			}
		}
	}

	if total > 0 {
		for s, c := range skillCounts {
			view.SkillWeights[s] = float64(c) / float64(total)
		}
		view.SkillVector = skillVector(snap.Skills, skillCounts)
	}

	view.SocialNeighborhood = snap.Social.Neighborhood(userID)
	view.SocialInfluence = snap.Social.Influence(userID)
	return view
}

func skillVector(idx *SkillIndex, counts map[string]int) []float64 {
	vec := make([]float64, idx.Len())
	var norm float64
	for s, c := range counts {
		if i := idx.Index(s); i >= 0 {
			v := float64(c)
			vec[i] = v
			norm += v * v
		}
	}
	if norm == 0 {
		return nil
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}
