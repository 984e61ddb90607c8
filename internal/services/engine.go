package services

import (
	"math"
	"math/rand"
	"sort"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"github.com/talentpitch/searchrec/internal/config"
	"github.com/talentpitch/searchrec/pkg/models"
)

// Pool sizes per slot category.
const (
	poolSizeVMP     = 110
	poolSizeNU      = 95
	poolSizeAU      = 170
	poolSizeFW      = 40
	poolSizeExplore = 75
)

const recentDays = 45

// Engine owns the candidate generators and the per-category bandits for
// one snapshot generation. It is rebuilt together with the snapshot on
// reload; the bandits restart cold, matching the lifecycle of the
// derived feature arrays they score against.
type Engine struct {
	snap    *Snapshot
	bandits map[string]*LinUCB
	logger  *logrus.Logger
}

func NewEngine(snap *Snapshot, cfg config.BanditConfig, logger *logrus.Logger) *Engine {
	return &Engine{
		snap: snap,
		bandits: map[string]*LinUCB{
			models.SlotVMP: NewLinUCB(models.SlotVMP, cfg.VMP.Alpha, cfg.VMP.Beta, logger),
			models.SlotAU:  NewLinUCB(models.SlotAU, cfg.AU.Alpha, cfg.AU.Beta, logger),
			models.SlotNU:  NewLinUCB(models.SlotNU, cfg.NU.Alpha, cfg.NU.Beta, logger),
		},
		logger: logger,
	}
}

// Bandit returns the bandit of a slot category, or nil.
func (e *Engine) Bandit(category string) *LinUCB {
	return e.bandits[category]
}

// UpdateBandit feeds an observed reward back into a category's model.
func (e *Engine) UpdateBandit(category string, context []float64, reward float64) {
	if b, ok := e.bandits[category]; ok {
		b.Update(context, reward)
	}
}

// BanditStats snapshots the reward summaries of all three bandits.
func (e *Engine) BanditStats() map[string]models.BanditStats {
	stats := make(map[string]models.BanditStats, len(e.bandits))
	for category, b := range e.bandits {
		stats[category] = b.Stats()
	}
	return stats
}

// Pools holds the candidate ids each generator produced for a request.
type Pools struct {
	VMP     []int64
	NU      []int64
	AU      []int64
	Flows   []int64
	Explore []int64
}

// Sizes reports the pool cardinalities for the metrics block.
func (p *Pools) Sizes() models.PoolSizes {
	return models.PoolSizes{
		VMP:     len(p.VMP),
		NU:      len(p.NU),
		AU:      len(p.AU),
		Flows:   len(p.Flows),
		Explore: len(p.Explore),
	}
}

// GeneratePools runs the generators in their fixed order. AU excludes
// items already pooled by VMP and NU; EXPLORE excludes every pooled item.
func (e *Engine) GeneratePools(view *PreferenceView, excluded map[int64]struct{}, includeFlows bool, rng *rand.Rand) *Pools {
	usedCreators := make(map[int64]struct{})

	pools := &Pools{}
	pools.VMP = e.selectVMP(view, excluded, usedCreators, poolSizeVMP, rng)
	pools.NU = e.selectNU(view, excluded, usedCreators, poolSizeNU, rng)

	auExcluded := unionIDs(excluded, pools.VMP, pools.NU)
	pools.AU = e.selectAU(view, auExcluded, usedCreators, poolSizeAU, rng)

	if includeFlows {
		pools.Flows = e.selectFlows(excluded, poolSizeFW, rng)
	}

	exploreExcluded := unionIDs(auExcluded, pools.AU)
	pools.Explore = e.selectExplore(exploreExcluded, usedCreators, poolSizeExplore, rng)
	return pools
}

// candidates collects item positions passing the shared filters plus an
// optional per-generator predicate.
func (e *Engine) candidates(excluded map[int64]struct{}, usedCreators map[int64]struct{}, keep func(i int) bool) []int {
	var out []int
	for i := range e.snap.Items {
		it := &e.snap.Items[i]
		if _, skip := excluded[it.ID]; skip {
			continue
		}
		if _, skip := usedCreators[it.CreatorID]; skip {
			continue
		}
		if keep != nil && !keep(i) {
			continue
		}
		out = append(out, i)
	}
	return out
}

func (e *Engine) selectVMP(view *PreferenceView, excluded, usedCreators map[int64]struct{}, n int, rng *rand.Rand) []int64 {
	fs := e.snap.Features
	cand := e.candidates(excluded, usedCreators, func(i int) bool {
		return fs.QualityGate[i] == 1
	})
	if len(cand) == 0 {
		// New-catalog amnesty: retry without the quality gate.
		cand = e.candidates(excluded, usedCreators, nil)
	}
	if len(cand) == 0 {
		return nil
	}

	scores := e.bandits[models.SlotVMP].ScoreBatch(e.featureMatrix(view, cand, rng), rng)
	for k, i := range cand {
		recent := 0.0
		if e.snap.Items[i].DaysSinceCreation <= recentDays {
			recent = 1.4
		}
		scores[k] += 2.2*fs.Engagement[i] + 1.6*fs.Popularity[i] + 1.8*fs.Quality[i] + recent
	}

	top, topScores := topK(cand, scores, 2*n)
	picked := weightedSample(top, topScores, n, rng)
	return e.itemIDs(sortByScoreDesc(picked, top, topScores))
}

func (e *Engine) selectAU(view *PreferenceView, excluded, usedCreators map[int64]struct{}, n int, rng *rand.Rand) []int64 {
	fs := e.snap.Features
	cand := e.candidates(excluded, usedCreators, nil)
	if len(cand) == 0 {
		return nil
	}

	features := e.featureMatrix(view, cand, rng)
	scores := e.bandits[models.SlotAU].ScoreBatch(features, rng)
	for k, i := range cand {
		recent := 0.0
		if e.snap.Items[i].DaysSinceCreation <= recentDays {
			recent = 0.9
		}
		scores[k] += 3.5*features.At(k, 5) + 3.0*features.At(k, 6) +
			1.1*fs.Popularity[i] + 1.4*fs.Quality[i] + 0.9*fs.Temporal[i] +
			0.9*fs.RaritySkills[i]/100 + recent
	}

	top, _ := topK(cand, scores, n)
	return e.itemIDs(top)
}

func (e *Engine) selectNU(view *PreferenceView, excluded, usedCreators map[int64]struct{}, n int, rng *rand.Rand) []int64 {
	fs := e.snap.Features
	cand := e.candidates(excluded, usedCreators, func(i int) bool {
		return e.snap.Items[i].DaysSinceCreation <= recentDays
	})
	if len(cand) == 0 {
		return nil
	}

	scores := e.bandits[models.SlotNU].ScoreBatch(e.featureMatrix(view, cand, rng), rng)
	for k, i := range cand {
		scores[k] += 2.5*fs.Temporal[i] + 1.8*fs.DiversitySkills[i] +
			1.4*fs.RaritySkills[i]/100 + 0.8*fs.BoostNew[i] + rng.Float64()*0.6
	}

	top, topScores := topK(cand, scores, 2*n)
	if len(top) <= n {
		return e.itemIDs(top)
	}
	picked := uniformSample(len(top), n, rng)
	return e.itemIDs(sortByScoreDesc(picked, top, topScores))
}

func (e *Engine) selectFlows(excluded map[int64]struct{}, n int, rng *rand.Rand) []int64 {
	var cand []int
	for i := range e.snap.Flows {
		if _, skip := excluded[e.snap.Flows[i].ID]; skip {
			continue
		}
		cand = append(cand, i)
	}
	if len(cand) == 0 {
		return nil
	}

	scores := make([]float64, len(cand))
	for k, i := range cand {
		days := float64(e.snap.Flows[i].DaysSinceCreation)
		scores[k] = rng.Float64()*40 + (60-days)/60*60
	}

	top, _ := topK(cand, scores, n)
	ids := make([]int64, len(top))
	for k, i := range top {
		ids[k] = e.snap.Flows[i].ID
	}
	return ids
}

func (e *Engine) selectExplore(excluded, usedCreators map[int64]struct{}, n int, rng *rand.Rand) []int64 {
	cand := e.candidates(excluded, usedCreators, nil)
	if len(cand) == 0 {
		return nil
	}
	if len(cand) <= n {
		picked := make([]int, len(cand))
		copy(picked, cand)
		rng.Shuffle(len(picked), func(a, b int) { picked[a], picked[b] = picked[b], picked[a] })
		return e.itemIDs(picked)
	}
	sel := uniformSample(len(cand), n, rng)
	picked := make([]int, 0, n)
	for _, k := range sel {
		picked = append(picked, cand[k])
	}
	return e.itemIDs(picked)
}

func (e *Engine) itemIDs(positions []int) []int64 {
	ids := make([]int64, len(positions))
	for k, i := range positions {
		ids[k] = e.snap.Items[i].ID
	}
	return ids
}

// featureMatrix extracts the 18 context features for each candidate.
func (e *Engine) featureMatrix(view *PreferenceView, cand []int, rng *rand.Rand) *mat.Dense {
	fs := e.snap.Features
	data := make([]float64, len(cand)*FeatureDim)
	for k, i := range cand {
		it := &e.snap.Items[i]
		row := data[k*FeatureDim : (k+1)*FeatureDim]

		row[0] = fs.Engagement[i]
		row[1] = fs.Temporal[i] * fs.BoostNew[i]
		row[2] = fs.Quality[i]
		row[3] = fs.Popularity[i]
		row[4] = fs.DiversitySkills[i]
		row[5] = e.skillSimilarity(view, it)
		row[6] = extendedMatch(view, e.snap, it.ID) / 100
		if _, ok := view.Cities[it.City]; ok {
			row[7] = 1
		}
		if _, ok := view.SocialNeighborhood[it.CreatorID]; ok {
			row[8] = 1
		}
		row[9] = math.Log1p(float64(it.Views)) / 10
		row[10] = it.AvgRating / 5
		row[11] = fs.RaritySkills[i] / 100
		row[12] = fs.QualityGate[i]
		row[13] = view.SocialInfluence
		row[14] = float64(it.RatingCount) / float64(fs.MaxRatingCount+1)
		row[15] = float64(it.LikeCount) / float64(fs.MaxLikeCount+1)
		row[16] = float64(it.ExhibitedCount) / float64(fs.MaxExhibited+1)
		row[17] = rng.Float64() * 0.3
	}
	return mat.NewDense(len(cand), FeatureDim, data)
}

// skillSimilarity blends vector cosine with weighted skill overlap.
// Defaults: 0.5 without a user profile, 0.3 for skill-less items.
func (e *Engine) skillSimilarity(view *PreferenceView, it *models.Item) float64 {
	if view.SkillVector == nil {
		return 0.5
	}
	if len(it.Skills) == 0 {
		return 0.3
	}
	cos := e.snap.Skills.Cosine(view.SkillVector, it.ID)
	var overlap float64
	for _, s := range it.Skills {
		overlap += view.SkillWeights[s]
	}
	sim := 0.6*cos + 0.4*overlap
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}

func extendedMatch(view *PreferenceView, snap *Snapshot, itemID int64) float64 {
	score := 15*intersectCount(view.Skills, snap.ItemSkills[itemID]) +
		12*intersectCount(view.Knowledges, snap.ItemKnowledges[itemID]) +
		10*intersectCount(view.Tools, snap.ItemTools[itemID]) +
		8*intersectCount(view.Languages, snap.ItemLanguages[itemID])
	if score > 100 {
		score = 100
	}
	return float64(score)
}

func intersectCount(a map[string]struct{}, b map[string]struct{}) int {
	if len(b) < len(a) {
		a, b = b, a
	}
	n := 0
	for k := range a {
		if _, ok := b[k]; ok {
			n++
		}
	}
	return n
}

func unionIDs(base map[int64]struct{}, idLists ...[]int64) map[int64]struct{} {
	out := make(map[int64]struct{}, len(base))
	for id := range base {
		out[id] = struct{}{}
	}
	for _, ids := range idLists {
		for _, id := range ids {
			out[id] = struct{}{}
		}
	}
	return out
}

// topK selects the k highest-scoring candidates with a bounded min-heap
// and returns them in descending score order.
func topK(cand []int, scores []float64, k int) ([]int, []float64) {
	if k > len(cand) {
		k = len(cand)
	}
	if k == 0 {
		return nil, nil
	}

	// heap[0..size) is a min-heap over scores.
	heapIdx := make([]int, 0, k)
	siftUp := func(i int) {
		for i > 0 {
			parent := (i - 1) / 2
			if scores[heapIdx[parent]] <= scores[heapIdx[i]] {
				break
			}
			heapIdx[parent], heapIdx[i] = heapIdx[i], heapIdx[parent]
			i = parent
		}
	}
	siftDown := func() {
		i := 0
		for {
			left, right := 2*i+1, 2*i+2
			smallest := i
			if left < len(heapIdx) && scores[heapIdx[left]] < scores[heapIdx[smallest]] {
				smallest = left
			}
			if right < len(heapIdx) && scores[heapIdx[right]] < scores[heapIdx[smallest]] {
				smallest = right
			}
			if smallest == i {
				return
			}
			heapIdx[i], heapIdx[smallest] = heapIdx[smallest], heapIdx[i]
			i = smallest
		}
	}

	for pos := range cand {
		if len(heapIdx) < k {
			heapIdx = append(heapIdx, pos)
			siftUp(len(heapIdx) - 1)
		} else if scores[pos] > scores[heapIdx[0]] {
			heapIdx[0] = pos
			siftDown()
		}
	}

	sort.Slice(heapIdx, func(a, b int) bool {
		return scores[heapIdx[a]] > scores[heapIdx[b]]
	})

	top := make([]int, len(heapIdx))
	topScores := make([]float64, len(heapIdx))
	for i, pos := range heapIdx {
		top[i] = cand[pos]
		topScores[i] = scores[pos]
	}
	return top, topScores
}

// weightedSample draws k positions without replacement with probability
// proportional to the clamped non-negative scores; uniform when all
// weights are zero. Returns positions into top.
func weightedSample(top []int, topScores []float64, k int, rng *rand.Rand) []int {
	if k >= len(top) {
		all := make([]int, len(top))
		for i := range all {
			all[i] = i
		}
		return all
	}

	weights := make([]float64, len(topScores))
	var total float64
	for i, s := range topScores {
		if s > 0 {
			weights[i] = s
			total += s
		}
	}
	if total == 0 {
		return uniformSample(len(top), k, rng)
	}

	remaining := make([]int, len(top))
	for i := range remaining {
		remaining[i] = i
	}
	picked := make([]int, 0, k)
	for len(picked) < k {
		r := rng.Float64() * total
		chosen := len(remaining) - 1
		var cum float64
		for j, pos := range remaining {
			cum += weights[pos]
			if r < cum {
				chosen = j
				break
			}
		}
		pos := remaining[chosen]
		picked = append(picked, pos)
		total -= weights[pos]
		remaining = append(remaining[:chosen], remaining[chosen+1:]...)
	}
	return picked
}

// uniformSample draws k distinct positions from [0, n).
func uniformSample(n, k int, rng *rand.Rand) []int {
	if k > n {
		k = n
	}
	perm := rng.Perm(n)
	return perm[:k]
}

// sortByScoreDesc maps sampled positions back to candidate positions,
// ordered by descending score.
func sortByScoreDesc(picked []int, top []int, topScores []float64) []int {
	sort.Slice(picked, func(a, b int) bool {
		return topScores[picked[a]] > topScores[picked[b]]
	})
	out := make([]int, len(picked))
	for i, pos := range picked {
		out[i] = top[pos]
	}
	return out
}
