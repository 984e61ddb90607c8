package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/talentpitch/searchrec/internal/services"
	"github.com/talentpitch/searchrec/pkg/models"
)

const (
	defaultDiscoverSize = 20
	defaultFlowSize     = 18
	maxRequestSize      = 100
)

// bindSearchRequest decodes the request body leniently: a malformed
// payload degrades to an empty request instead of failing.
func (h *Handlers) bindSearchRequest(c *gin.Context) models.SearchRequest {
	var req models.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WithError(err).Warn("Malformed search request body, using defaults")
		return models.SearchRequest{}
	}
	return req
}

func (h *Handlers) ensureCore(c *gin.Context) *services.Core {
	core, err := h.services.EnsureCore(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("Catalog unavailable")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"statusCode": http.StatusServiceUnavailable,
			"message":    "Catalog unavailable",
		})
		return nil
	}
	return core
}

// Total serves the mixed resume/challenge feed.
func (h *Handlers) Total(c *gin.Context) {
	start := time.Now()
	req := h.bindSearchRequest(c)
	userID := req.ResolveUserID()
	excluded := req.ResolveExcludedIDs()

	core := h.ensureCore(c)
	if core == nil {
		return
	}

	ctx := c.Request.Context()
	sessionKey := h.services.Tracker.SessionKey(userID, req.SessionID)
	if err := h.services.Tracker.TrackFeedRequest(ctx, userID, "total", map[string]any{
		"excluded_count": len(excluded),
	}, sessionKey); err != nil {
		h.logger.WithError(err).Warn("Failed to track feed request")
	}
	excluded = h.withSessionVideos(ctx, sessionKey, excluded)

	result := core.Engine.AssembleFeed(userID, excluded, true, requestRand())

	items := make([]any, 0, len(result.Entries))
	mixIDs := make([]string, 0, len(result.Entries))
	itemIDs := make([]int64, 0, len(result.Entries))
	for _, entry := range result.Entries {
		switch entry.Type {
		case models.TypeChallenge:
			flow := core.Snapshot.Flow(entry.ItemID)
			if flow == nil {
				continue
			}
			items = append(items, buildChallengeItem(flow))
		default:
			item := core.Snapshot.Item(entry.ItemID)
			if item == nil {
				continue
			}
			items = append(items, buildResumeItem(item))
		}
		mixIDs = append(mixIDs, strconv.FormatInt(entry.ItemID, 10))
		itemIDs = append(itemIDs, entry.ItemID)
		h.trackView(ctx, userID, sessionKey, entry)
	}

	h.flushIfThreshold(userID, len(items))
	h.producer.PublishFeedGenerated(userID, sessionKey, "total", itemIDs, result.Metrics)
	services.ObserveFeedRequest("total", time.Since(start).Seconds())

	c.JSON(http.StatusOK, models.SearchResponse{
		StatusCode: http.StatusOK,
		Body:       models.SearchBody{MixIDs: mixIDs, Items: items},
	})
}

// Discover serves the resumes-only feed.
func (h *Handlers) Discover(c *gin.Context) {
	start := time.Now()
	req := h.bindSearchRequest(c)
	userID := req.ResolveUserID()
	size := req.ResolveSize(defaultDiscoverSize, maxRequestSize)
	excluded := req.ResolveExcludedIDs()

	core := h.ensureCore(c)
	if core == nil {
		return
	}

	ctx := c.Request.Context()
	sessionKey := h.services.Tracker.SessionKey(userID, req.SessionID)
	if err := h.services.Tracker.TrackFeedRequest(ctx, userID, "discover", map[string]any{
		"size": size,
	}, sessionKey); err != nil {
		h.logger.WithError(err).Warn("Failed to track feed request")
	}
	excluded = h.withSessionVideos(ctx, sessionKey, excluded)

	result := core.Engine.AssembleFeed(userID, excluded, false, requestRand())

	items := make([]any, 0, len(result.Entries))
	resumeIDs := make([]string, 0, len(result.Entries))
	itemIDs := make([]int64, 0, len(result.Entries))
	for _, entry := range result.Entries {
		if entry.Type == models.TypeChallenge {
			continue
		}
		item := core.Snapshot.Item(entry.ItemID)
		if item == nil {
			continue
		}
		items = append(items, buildResumeItem(item))
		resumeIDs = append(resumeIDs, strconv.FormatInt(entry.ItemID, 10))
		itemIDs = append(itemIDs, entry.ItemID)
		h.trackView(ctx, userID, sessionKey, entry)
	}

	h.flushIfThreshold(userID, len(items))
	h.producer.PublishFeedGenerated(userID, sessionKey, "discover", itemIDs, result.Metrics)
	services.ObserveFeedRequest("discover", time.Since(start).Seconds())

	c.JSON(http.StatusOK, models.SearchResponse{
		StatusCode: http.StatusOK,
		Body:       models.SearchBody{ResumeIDs: resumeIDs, Items: items},
	})
}

// Flow serves the challenges-only feed.
func (h *Handlers) Flow(c *gin.Context) {
	start := time.Now()
	req := h.bindSearchRequest(c)
	userID := req.ResolveUserID()
	size := req.ResolveSize(defaultFlowSize, maxRequestSize)
	excluded := req.ResolveExcludedIDs()

	core := h.ensureCore(c)
	if core == nil {
		return
	}

	ctx := c.Request.Context()
	sessionKey := h.services.Tracker.SessionKey(userID, req.SessionID)
	if err := h.services.Tracker.TrackFeedRequest(ctx, userID, "flow", map[string]any{
		"size": size,
	}, sessionKey); err != nil {
		h.logger.WithError(err).Warn("Failed to track feed request")
	}

	entries := core.Engine.FlowsOnlyFeed(ctx, userID, services.FeedSize, excluded, h.services.FlowHistory, requestRand())

	items := make([]any, 0, len(entries))
	challengeIDs := make([]string, 0, len(entries))
	itemIDs := make([]int64, 0, len(entries))
	for _, entry := range entries {
		flow := core.Snapshot.Flow(entry.ItemID)
		if flow == nil {
			continue
		}
		items = append(items, buildChallengeItem(flow))
		challengeIDs = append(challengeIDs, strconv.FormatInt(entry.ItemID, 10))
		itemIDs = append(itemIDs, entry.ItemID)
		h.trackView(ctx, userID, sessionKey, entry)
	}

	h.flushIfThreshold(userID, len(items))
	h.producer.PublishFeedGenerated(userID, sessionKey, "flow", itemIDs, models.FeedMetrics{TotalItems: len(items)})
	services.ObserveFeedRequest("flow", time.Since(start).Seconds())

	c.JSON(http.StatusOK, models.SearchResponse{
		StatusCode: http.StatusOK,
		Body:       models.SearchBody{ChallengeIDs: challengeIDs, Items: items},
	})
}

// Reload rebuilds the catalog snapshot. The previous snapshot stays
// live if the rebuild fails.
func (h *Handlers) Reload(c *gin.Context) {
	if err := h.services.Reload(c.Request.Context()); err != nil {
		h.logger.WithError(err).Error("Catalog reload failed")
		c.JSON(http.StatusInternalServerError, gin.H{
			"statusCode": http.StatusInternalServerError,
			"message":    "Data reload failed",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"statusCode": http.StatusOK,
		"message":    "Data reloaded successfully",
	})
}

// withSessionVideos merges the videos already served in this session
// into the exclusion list, so they stay out of the feed even when the
// client omits them from the request.
func (h *Handlers) withSessionVideos(ctx context.Context, sessionKey string, excluded []int64) []int64 {
	for id := range h.services.Tracker.SessionVideos(ctx, sessionKey) {
		excluded = append(excluded, id)
	}
	return excluded
}

func (h *Handlers) trackView(ctx context.Context, userID int64, sessionKey string, entry models.FeedEntry) {
	if err := h.services.Tracker.TrackVideoView(ctx, userID, entry.ItemID, entry.VideoURL, entry.Position, entry.SlotType, sessionKey); err != nil {
		h.logger.WithError(err).Debug("Failed to track video view")
	}
}

// flushIfThreshold drains the user's buffered activity in the
// background once a response carries enough items.
func (h *Handlers) flushIfThreshold(userID int64, count int) {
	if count < h.cfg.Tracking.FlushThreshold {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := h.services.Tracker.FlushUser(ctx, userID); err != nil {
			h.logger.WithError(err).Error("Background activity flush failed")
		}
	}()
}
