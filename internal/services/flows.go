package services

import (
	"context"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/talentpitch/searchrec/pkg/models"
)

// FlowHistoryStore reads which flows a user has already viewed. The
// flows-only path is the one place the hot path touches the relational
// store; failures degrade to an empty history.
type FlowHistoryStore interface {
	ViewedFlows(ctx context.Context, userID int64) (map[int64]struct{}, error)
}

type flowHistory struct {
	db     DatabaseQuerier
	logger *logrus.Logger
}

func NewFlowHistory(db DatabaseQuerier, logger *logrus.Logger) FlowHistoryStore {
	return &flowHistory{db: db, logger: logger}
}

func (h *flowHistory) ViewedFlows(ctx context.Context, userID int64) (map[int64]struct{}, error) {
	query := `
		SELECT DISTINCT subject_id
		FROM activity_log
		WHERE causer_id = $1
		AND log_name LIKE '%flow%'
		AND subject_id IS NOT NULL`

	rows, err := h.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	viewed := make(map[int64]struct{})
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		viewed[id] = struct{}{}
	}
	return viewed, rows.Err()
}

// SelectFlowsForUser ranks flows by relevance for the flows-only feed:
// recency up to 30 points, plus 30 for a socially connected creator or a
// random 0-20 otherwise. Users who exhausted every flow start over.
func (e *Engine) SelectFlowsForUser(ctx context.Context, userID int64, n int, excludedIDs []int64, history FlowHistoryStore, rng *rand.Rand) []int64 {
	if len(e.snap.Flows) == 0 {
		return nil
	}

	viewed := map[int64]struct{}{}
	if history != nil {
		var err error
		if viewed, err = history.ViewedFlows(ctx, userID); err != nil {
			e.logger.WithField("user_id", userID).WithError(err).
				Warn("Failed to load viewed flows, serving without history")
			viewed = map[int64]struct{}{}
		}
	}

	excluded := make(map[int64]struct{}, len(viewed)+len(excludedIDs))
	for id := range viewed {
		excluded[id] = struct{}{}
	}
	for _, id := range excludedIDs {
		excluded[id] = struct{}{}
	}

	cand := e.flowCandidates(excluded)
	if len(cand) == 0 {
		// Everything seen: restart the rotation.
		e.logger.WithField("user_id", userID).Info("User exhausted all flows, restarting rotation")
		cand = e.flowCandidates(nil)
	}
	if len(cand) == 0 {
		return nil
	}

	neighborhood := e.snap.Social.Neighborhood(userID)

	scores := make([]float64, len(cand))
	for k, i := range cand {
		flow := &e.snap.Flows[i]
		score := (90 - float64(flow.DaysSinceCreation)) / 90 * 30
		if score < 0 {
			score = 0
		}
		if _, connected := neighborhood[flow.CreatorID]; connected {
			score += 30
		} else {
			score += rng.Float64() * 20
		}
		scores[k] = score
	}

	top, _ := topK(cand, scores, n)
	ids := make([]int64, len(top))
	for k, i := range top {
		ids[k] = e.snap.Flows[i].ID
	}
	return ids
}

func (e *Engine) flowCandidates(excluded map[int64]struct{}) []int {
	var cand []int
	for i := range e.snap.Flows {
		flow := &e.snap.Flows[i]
		if _, skip := excluded[flow.ID]; skip {
			continue
		}
		if _, blocked := e.snap.Blacklist[flow.VideoURL]; blocked {
			continue
		}
		cand = append(cand, i)
	}
	return cand
}

// FlowsOnlyFeed builds the challenge-only feed for /search/flow.
func (e *Engine) FlowsOnlyFeed(ctx context.Context, userID int64, n int, excludedIDs []int64, history FlowHistoryStore, rng *rand.Rand) []models.FeedEntry {
	start := time.Now()

	flowIDs := e.SelectFlowsForUser(ctx, userID, n, excludedIDs, history, rng)

	entries := make([]models.FeedEntry, 0, len(flowIDs))
	for _, id := range flowIDs {
		flow := e.snap.Flow(id)
		if flow == nil {
			continue
		}
		entries = append(entries, models.FeedEntry{
			Position:    len(entries) + 1,
			ItemID:      flow.ID,
			Type:        models.TypeChallenge,
			SlotType:    models.SlotFW,
			VideoURL:    flow.VideoURL,
			CreatorName: flow.CreatorName,
			City:        flow.City,
			Title:       flow.Name,
			Description: flow.Description,
			DaysOld:     flow.DaysSinceCreation,
		})
	}

	e.logger.WithFields(logrus.Fields{
		"user_id":     userID,
		"total_flows": len(entries),
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("Flows-only feed generated")
	return entries
}
