package services

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/talentpitch/searchrec/pkg/models"
)

// SkillIndex maps the skill universe of a snapshot to vector space: a
// row-normalized co-occurrence matrix, per-item unit skill vectors
// (stored sparse as index lists) and per-skill frequencies.
type SkillIndex struct {
	skillToIdx map[string]int
	idxToSkill []string
	cooc       [][]float64
	freq       []int
	itemIdx    map[int64][]int // item id -> sorted skill indices
}

func BuildSkillIndex(items []models.Item, itemSkills map[int64]map[string]struct{}) *SkillIndex {
	idx := &SkillIndex{
		skillToIdx: make(map[string]int),
		itemIdx:    make(map[int64][]int, len(items)),
	}

	for i := range items {
		for _, s := range items[i].Skills {
			if _, ok := idx.skillToIdx[s]; !ok {
				idx.skillToIdx[s] = len(idx.idxToSkill)
				idx.idxToSkill = append(idx.idxToSkill, s)
			}
		}
	}

	n := len(idx.idxToSkill)
	idx.freq = make([]int, n)
	idx.cooc = make([][]float64, n)
	for i := range idx.cooc {
		idx.cooc[i] = make([]float64, n)
	}

	for i := range items {
		it := &items[i]
		indices := make([]int, 0, len(it.Skills))
		for _, s := range it.Skills {
			si := idx.skillToIdx[s]
			indices = append(indices, si)
			idx.freq[si]++
		}
		for _, a := range indices {
			// Self pairs count once per direction, so the diagonal
			// carries double weight.
			idx.cooc[a][a]++
			for _, b := range indices {
				idx.cooc[a][b]++
			}
		}
		idx.itemIdx[it.ID] = indices
	}

	// Row-normalize; all-zero rows stay zero.
	for i := range idx.cooc {
		if sum := floats.Sum(idx.cooc[i]); sum > 0 {
			floats.Scale(1/sum, idx.cooc[i])
		}
	}

	return idx
}

// Len returns the size of the skill universe.
func (si *SkillIndex) Len() int { return len(si.idxToSkill) }

// Index returns the vector index of a skill, or -1.
func (si *SkillIndex) Index(skill string) int {
	if i, ok := si.skillToIdx[skill]; ok {
		return i
	}
	return -1
}

// Frequency returns how many items carry the skill.
func (si *SkillIndex) Frequency(skill string) int {
	if i, ok := si.skillToIdx[skill]; ok {
		return si.freq[i]
	}
	return 0
}

// Related returns the co-occurrence distribution row for a skill.
func (si *SkillIndex) Related(skill string) []float64 {
	if i, ok := si.skillToIdx[skill]; ok {
		return si.cooc[i]
	}
	return nil
}

// ItemVector materializes the dense unit skill vector of an item.
func (si *SkillIndex) ItemVector(itemID int64) []float64 {
	vec := make([]float64, len(si.idxToSkill))
	indices := si.itemIdx[itemID]
	if len(indices) == 0 {
		return vec
	}
	v := 1 / math.Sqrt(float64(len(indices)))
	for _, i := range indices {
		vec[i] = v
	}
	return vec
}

// Cosine computes cos(userVec, itemVec) given a unit user vector; the
// item vector is binary presence, normalized on the fly.
func (si *SkillIndex) Cosine(userVec []float64, itemID int64) float64 {
	indices := si.itemIdx[itemID]
	if len(indices) == 0 || len(userVec) == 0 {
		return 0
	}
	var dot float64
	for _, i := range indices {
		dot += userVec[i]
	}
	return dot / math.Sqrt(float64(len(indices)))
}

// SocialGraph is the accepted-connection adjacency of a snapshot. An
// accepted edge links both endpoints.
type SocialGraph struct {
	neighbors map[int64]map[int64]struct{}
}

func BuildSocialGraph(conns []models.Connection) *SocialGraph {
	g := &SocialGraph{neighbors: make(map[int64]map[int64]struct{})}
	for _, c := range conns {
		g.add(c.FromUserID, c.ToUserID)
		g.add(c.ToUserID, c.FromUserID)
	}
	return g
}

func (g *SocialGraph) add(from, to int64) {
	set, ok := g.neighbors[from]
	if !ok {
		set = make(map[int64]struct{})
		g.neighbors[from] = set
	}
	set[to] = struct{}{}
}

// Neighborhood returns the users connected to u. May be nil.
func (g *SocialGraph) Neighborhood(u int64) map[int64]struct{} {
	return g.neighbors[u]
}

// Influence scores a user's connectedness as log(1+n)/10.
func (g *SocialGraph) Influence(u int64) float64 {
	return math.Log1p(float64(len(g.neighbors[u]))) / 10
}

// FeatureSet holds the per-item numeric scores, columnar, indexed by the
// item's position in Snapshot.Items.
type FeatureSet struct {
	Engagement      []float64
	Temporal        []float64
	BoostNew        []float64
	Quality         []float64
	Popularity      []float64
	DiversitySkills []float64
	RaritySkills    []float64
	QualityGate     []float64

	MaxRatingCount int
	MaxLikeCount   int
	MaxExhibited   int
}

func BuildFeatureSet(snap *Snapshot) *FeatureSet {
	n := len(snap.Items)
	fs := &FeatureSet{
		Engagement:      make([]float64, n),
		Temporal:        make([]float64, n),
		BoostNew:        make([]float64, n),
		Quality:         make([]float64, n),
		Popularity:      make([]float64, n),
		DiversitySkills: make([]float64, n),
		RaritySkills:    make([]float64, n),
		QualityGate:     make([]float64, n),
	}
	if n == 0 {
		return fs
	}

	logViews := make([]float64, n)
	logMatches := make([]float64, n)
	for i := range snap.Items {
		it := &snap.Items[i]
		logViews[i] = math.Log1p(float64(it.Views))
		logMatches[i] = math.Log1p(float64(it.MatchCount))
		if it.RatingCount > fs.MaxRatingCount {
			fs.MaxRatingCount = it.RatingCount
		}
		if it.LikeCount > fs.MaxLikeCount {
			fs.MaxLikeCount = it.LikeCount
		}
		if it.ExhibitedCount > fs.MaxExhibited {
			fs.MaxExhibited = it.ExhibitedCount
		}
	}

	normViews := normLog(logViews)
	normMatches := normLog(logMatches)

	for i := range snap.Items {
		it := &snap.Items[i]
		rating := it.AvgRating

		fs.Engagement[i] = 0.35*normViews[i] + 0.40*(rating/5) + 0.25*normMatches[i]
		fs.Temporal[i] = math.Exp(-float64(it.DaysSinceCreation) / 28)
		if it.DaysSinceCreation <= 30 {
			fs.BoostNew[i] = 1.5
		} else {
			fs.BoostNew[i] = 1.0
		}
		fs.Quality[i] = 0.7*rating*(float64(it.RatingCount)/float64(it.RatingCount+10)) +
			0.3*logMatches[i]
		fs.Popularity[i] = 0.40*logViews[i] + 0.35*rating + 0.25*logMatches[i]
		fs.DiversitySkills[i] = float64(len(it.Skills)+len(it.Knowledges)+len(it.Tools)) / 15
		fs.RaritySkills[i] = raritySkills(it.Skills, snap.Skills)
		if rating >= 3 || it.Views >= 20 || it.MatchCount >= 2 ||
			it.RatingCount >= 2 || it.DaysSinceCreation < 14 {
			fs.QualityGate[i] = 1
		}
	}

	return fs
}

// normLog min-max normalizes an already log-transformed column.
func normLog(logged []float64) []float64 {
	const eps = 1e-6
	min := floats.Min(logged)
	max := floats.Max(logged)
	out := make([]float64, len(logged))
	for i, v := range logged {
		out[i] = (v - min) / (max - min + eps)
	}
	return out
}

func raritySkills(skills []string, idx *SkillIndex) float64 {
	if len(skills) == 0 {
		return 0
	}
	var sum float64
	for _, s := range skills {
		sum += 1 / float64(idx.Frequency(s)+1)
	}
	return 100 * sum / float64(len(skills))
}
