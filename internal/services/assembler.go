package services

import (
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/talentpitch/searchrec/pkg/models"
)

// FeedSize is the fixed length of an assembled feed.
const FeedSize = 24

const (
	creatorWindowSize = 12
	maxSlotAttempts   = 150
	minUsedSkills     = 3
)

// feedPattern is the slot template repeated across the feed.
var feedPattern = [...]string{
	models.SlotVMP, models.SlotAU, models.SlotAU,
	models.SlotVMP, models.SlotNU, models.SlotFW,
}

// FeedResult carries the assembled entries with their quality metrics.
type FeedResult struct {
	Entries []models.FeedEntry
	Metrics models.FeedMetrics
}

// AssembleFeed builds the interleaved feed for a user: generate the five
// candidate pools, then fill the slot pattern under the creator-window
// and skill-novelty rules.
func (e *Engine) AssembleFeed(userID int64, excludedInput []int64, includeFlows bool, rng *rand.Rand) *FeedResult {
	start := time.Now()

	view := BuildPreferenceView(e.snap, userID)

	excluded := make(map[int64]struct{}, len(view.SeenItemIDs)+len(excludedInput))
	for id := range view.SeenItemIDs {
		excluded[id] = struct{}{}
	}
	extraExcluded := 0
	for _, id := range excludedInput {
		if _, seen := view.SeenItemIDs[id]; !seen {
			extraExcluded++
		}
		excluded[id] = struct{}{}
	}

	pools := e.GeneratePools(view, excluded, includeFlows, rng)
	e.logger.WithFields(logrus.Fields{
		"user_id": userID,
		"vmp":     len(pools.VMP),
		"nu":      len(pools.NU),
		"au":      len(pools.AU),
		"flows":   len(pools.Flows),
		"explore": len(pools.Explore),
	}).Debug("Candidate pools generated")

	asm := &feedAssembly{
		engine:       e,
		pools:        pools,
		usedItems:    make(map[int64]struct{}),
		usedSkills:   make(map[string]struct{}),
		usedCreators: make(map[int64]struct{}),
	}

	cycles := FeedSize/len(feedPattern) + 1
	for cycle := 0; cycle < cycles; cycle++ {
		for _, slot := range feedPattern {
			if len(asm.feed) >= FeedSize {
				break
			}
			asm.slideCreatorWindow()
			asm.fillSlot(slot)
		}
	}

	metrics := e.buildMetrics(asm, view, extraExcluded, time.Since(start))
	return &FeedResult{Entries: asm.feed, Metrics: metrics}
}

// feedAssembly is the mutable state of one assembly run.
type feedAssembly struct {
	engine *Engine
	pools  *Pools

	feed         []models.FeedEntry
	usedItems    map[int64]struct{}
	usedSkills   map[string]struct{}
	usedCreators map[int64]struct{}
	creatorQueue []int64

	idxVMP, idxNU, idxAU, idxFlow, idxExplore int
}

// slideCreatorWindow frees the oldest window of creators every 12 items,
// so no creator repeats within any sliding 12-item span.
func (a *feedAssembly) slideCreatorWindow() {
	if len(a.feed) == 0 || len(a.feed)%creatorWindowSize != 0 {
		return
	}
	if len(a.creatorQueue) < creatorWindowSize {
		return
	}
	for _, creator := range a.creatorQueue[:creatorWindowSize] {
		delete(a.usedCreators, creator)
	}
	a.creatorQueue = a.creatorQueue[creatorWindowSize:]
}

func (a *feedAssembly) fillSlot(slot string) {
	switch slot {
	case models.SlotFW:
		a.fillFlowSlot()
	case models.SlotVMP:
		if !a.walkPool(a.pools.VMP, &a.idxVMP, slot, false) {
			a.exploreFallback(slot)
		}
	case models.SlotAU:
		if !a.walkPool(a.pools.AU, &a.idxAU, slot, true) {
			a.exploreFallback(slot)
		}
	case models.SlotNU:
		if !a.walkPool(a.pools.NU, &a.idxNU, slot, true) {
			a.exploreFallback(slot)
		}
	}
}

// fillFlowSlot accepts the first pooled flow whose creator is outside
// the current window. A miss leaves the slot empty.
func (a *feedAssembly) fillFlowSlot() {
	snap := a.engine.snap
	for a.idxFlow < len(a.pools.Flows) {
		id := a.pools.Flows[a.idxFlow]
		a.idxFlow++

		if _, used := a.usedItems[id]; used {
			continue
		}
		flow := snap.Flow(id)
		if flow == nil {
			continue
		}
		if _, used := a.usedCreators[flow.CreatorID]; used {
			continue
		}

		a.acceptFlow(flow)
		return
	}
}

// walkPool advances the pool cursor looking for an acceptable item:
// fresh id, creator outside the window, and either a new skill or a
// still-shallow skill set. AU and NU additionally recheck the blacklist.
func (a *feedAssembly) walkPool(pool []int64, cursor *int, slot string, recheckBlacklist bool) bool {
	snap := a.engine.snap
	attempts := 0
	for *cursor < len(pool) && attempts < maxSlotAttempts {
		id := pool[*cursor]
		*cursor++
		attempts++

		if recheckBlacklist && snap.Blacklisted(id) {
			continue
		}
		if _, used := a.usedItems[id]; used {
			continue
		}
		item := snap.Item(id)
		if item == nil {
			continue
		}
		if _, used := a.usedCreators[item.CreatorID]; used {
			continue
		}
		if !a.skillNovelty(id) {
			continue
		}

		a.acceptItem(item, slot)
		return true
	}
	return false
}

// exploreFallback walks the shared EXPLORE pool under the creator rule
// only; the skill-novelty rule does not apply here.
func (a *feedAssembly) exploreFallback(slot string) {
	snap := a.engine.snap
	for a.idxExplore < len(a.pools.Explore) {
		id := a.pools.Explore[a.idxExplore]
		a.idxExplore++

		if _, used := a.usedItems[id]; used {
			continue
		}
		item := snap.Item(id)
		if item == nil {
			continue
		}
		if _, used := a.usedCreators[item.CreatorID]; used {
			continue
		}

		a.acceptItem(item, slot)
		return
	}
}

func (a *feedAssembly) skillNovelty(itemID int64) bool {
	if len(a.usedSkills) < minUsedSkills {
		return true
	}
	for s := range a.engine.snap.ItemSkills[itemID] {
		if _, used := a.usedSkills[s]; !used {
			return true
		}
	}
	return false
}

func (a *feedAssembly) acceptItem(item *models.Item, slot string) {
	for s := range a.engine.snap.ItemSkills[item.ID] {
		a.usedSkills[s] = struct{}{}
	}
	a.usedItems[item.ID] = struct{}{}
	a.usedCreators[item.CreatorID] = struct{}{}
	a.creatorQueue = append(a.creatorQueue, item.CreatorID)

	a.feed = append(a.feed, models.FeedEntry{
		Position:    len(a.feed) + 1,
		ItemID:      item.ID,
		Type:        models.TypeResume,
		SlotType:    slot,
		VideoURL:    item.VideoURL,
		CreatorName: item.CreatorName,
		City:        item.City,
		Views:       item.Views,
		Rating:      item.AvgRating,
		DaysOld:     item.DaysSinceCreation,
	})
}

func (a *feedAssembly) acceptFlow(flow *models.Flow) {
	a.usedItems[flow.ID] = struct{}{}
	a.usedCreators[flow.CreatorID] = struct{}{}
	a.creatorQueue = append(a.creatorQueue, flow.CreatorID)

	a.feed = append(a.feed, models.FeedEntry{
		Position:    len(a.feed) + 1,
		ItemID:      flow.ID,
		Type:        models.TypeChallenge,
		SlotType:    models.SlotFW,
		VideoURL:    flow.VideoURL,
		CreatorName: flow.CreatorName,
		City:        flow.City,
		Title:       flow.Name,
		Description: truncate(flow.Description, 100),
		Views:       0,
		Rating:      0,
		DaysOld:     flow.DaysSinceCreation,
	})
}

func (e *Engine) buildMetrics(asm *feedAssembly, view *PreferenceView, extraExcluded int, elapsed time.Duration) models.FeedMetrics {
	feed := asm.feed
	pools := asm.pools

	typeDist := make(map[string]int)
	for _, entry := range feed {
		typeDist[entry.Type]++
	}

	totalCatalog := len(e.snap.Items)
	availableCatalog := totalCatalog - len(view.SeenItemIDs) - extraExcluded

	pooled := make(map[int64]struct{})
	for _, pool := range [][]int64{pools.VMP, pools.NU, pools.AU, pools.Flows, pools.Explore} {
		for _, id := range pool {
			pooled[id] = struct{}{}
		}
	}

	newContent := 0
	distinctSkills := make(map[string]struct{})
	var sumViews, sumRating float64
	resumeCount := 0
	for _, entry := range feed {
		if entry.DaysOld <= recentDays {
			newContent++
		}
		for s := range e.snap.ItemSkills[entry.ItemID] {
			distinctSkills[s] = struct{}{}
		}
		if entry.Type != models.TypeChallenge {
			sumViews += float64(entry.Views)
			sumRating += entry.Rating
			resumeCount++
		}
	}

	metrics := models.FeedMetrics{
		TotalItems:       len(feed),
		TypeDistribution: typeDist,
		UniqueCreators:   len(asm.usedCreators),
		ExecutionTime:    round3(elapsed.Seconds()),
		CatalogCoverage:  round2(float64(len(pooled)) / float64(maxInt(availableCatalog, 1)) * 100),
		FeedCoverage:     round2(float64(len(asm.usedItems)) / FeedSize * 100),
		TotalCatalog:     totalCatalog,
		AvailableCatalog: availableCatalog,
		PoolSizes:        pools.Sizes(),
		BanditStats: map[string]models.BanditStats{
			"vmp": e.bandits[models.SlotVMP].Stats(),
			"au":  e.bandits[models.SlotAU].Stats(),
			"nu":  e.bandits[models.SlotNU].Stats(),
		},
	}
	if len(feed) > 0 {
		metrics.NewContentRatio = round2(float64(newContent) / float64(len(feed)) * 100)
		metrics.SkillDiversity = round2(float64(len(distinctSkills)) / float64(len(feed)*2) * 100)
		metrics.CreatorDiversity = round2(float64(len(asm.usedCreators)) / float64(len(feed)) * 100)
	}
	if resumeCount > 0 {
		metrics.AvgViews = sumViews / float64(resumeCount)
		metrics.AvgRating = sumRating / float64(resumeCount)
	}
	return metrics
}

// truncate cuts a string to max characters without splitting runes.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func round2(v float64) float64 { return float64(int(v*100+0.5)) / 100 }

func round3(v float64) float64 { return float64(int(v*1000+0.5)) / 1000 }
