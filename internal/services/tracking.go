package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/talentpitch/searchrec/internal/config"
)

// DatabaseExecer is the write side of the relational store, used by the
// activity drain.
type DatabaseExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const (
	eventVideoView   = "video_view"
	eventFeedRequest = "feed_request"
)

// ActivityEvent is one buffered tracking event, serialized into the
// per-user Redis list and later drained into activity_log.
type ActivityEvent struct {
	EventType string         `json:"event_type"`
	UserID    int64          `json:"user_id"`
	VideoID   int64          `json:"video_id,omitempty"`
	VideoURL  string         `json:"video_url,omitempty"`
	Position  int            `json:"position,omitempty"`
	FeedType  string         `json:"feed_type,omitempty"`
	Endpoint  string         `json:"endpoint,omitempty"`
	Params    map[string]any `json:"params,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	SessionID string         `json:"session_id"`
}

// ActivityTracker buffers user activity in Redis and drains it to the
// append-only activity_log table. Every write is fire-and-forget from
// the caller's point of view; a broken cache never fails a feed.
type ActivityTracker struct {
	redis  *redis.Client
	db     DatabaseExecer
	cfg    config.TrackingConfig
	logger *logrus.Logger
}

func NewActivityTracker(redisClient *redis.Client, db DatabaseExecer, cfg config.TrackingConfig, logger *logrus.Logger) *ActivityTracker {
	return &ActivityTracker{
		redis:  redisClient,
		db:     db,
		cfg:    cfg,
		logger: logger,
	}
}

// SessionKey returns the provided session id, or synthesizes one from
// the user id and current time.
func (t *ActivityTracker) SessionKey(userID int64, sessionID string) string {
	if sessionID != "" {
		return sessionID
	}
	return fmt.Sprintf("session:%d:%d", userID, time.Now().Unix())
}

func userActivityKey(userID int64) string {
	return fmt.Sprintf("user_activity:%d", userID)
}

// TrackVideoView buffers one emitted feed item and marks it seen in the
// session set.
func (t *ActivityTracker) TrackVideoView(ctx context.Context, userID, videoID int64, videoURL string, position int, feedType, sessionID string) error {
	sessionKey := t.SessionKey(userID, sessionID)
	event := ActivityEvent{
		EventType: eventVideoView,
		UserID:    userID,
		VideoID:   videoID,
		VideoURL:  videoURL,
		Position:  position,
		FeedType:  feedType,
		Timestamp: time.Now(),
		SessionID: sessionKey,
	}

	if err := t.pushEvent(ctx, userID, event); err != nil {
		return err
	}

	sessionVideosKey := sessionKey + ":videos"
	pipe := t.redis.Pipeline()
	pipe.SAdd(ctx, sessionVideosKey, videoID)
	pipe.Expire(ctx, sessionVideosKey, t.cfg.SessionTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		trackingFailures.Inc()
		return fmt.Errorf("failed to track session video: %w", err)
	}
	return nil
}

// TrackFeedRequest buffers one feed request event.
func (t *ActivityTracker) TrackFeedRequest(ctx context.Context, userID int64, endpoint string, params map[string]any, sessionID string) error {
	event := ActivityEvent{
		EventType: eventFeedRequest,
		UserID:    userID,
		Endpoint:  endpoint,
		Params:    params,
		Timestamp: time.Now(),
		SessionID: t.SessionKey(userID, sessionID),
	}
	return t.pushEvent(ctx, userID, event)
}

func (t *ActivityTracker) pushEvent(ctx context.Context, userID int64, event ActivityEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal activity event: %w", err)
	}

	key := userActivityKey(userID)
	pipe := t.redis.Pipeline()
	pipe.LPush(ctx, key, payload)
	pipe.Expire(ctx, key, t.cfg.ActivityTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		trackingFailures.Inc()
		return fmt.Errorf("failed to buffer activity: %w", err)
	}
	return nil
}

// SessionVideos returns the ids already served within a session.
func (t *ActivityTracker) SessionVideos(ctx context.Context, sessionID string) map[int64]struct{} {
	videos := make(map[int64]struct{})
	if sessionID == "" {
		return videos
	}
	members, err := t.redis.SMembers(ctx, sessionID+":videos").Result()
	if err != nil {
		t.logger.WithError(err).Debug("Failed to read session videos")
		return videos
	}
	for _, m := range members {
		if id, err := strconv.ParseInt(m, 10, 64); err == nil {
			videos[id] = struct{}{}
		}
	}
	return videos
}

// FlushUser drains one user's buffered events into activity_log and
// deletes the buffer on success.
func (t *ActivityTracker) FlushUser(ctx context.Context, userID int64) (int, error) {
	key := userActivityKey(userID)
	entries, err := t.redis.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read activity buffer: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	inserted := 0
	for _, raw := range entries {
		var event ActivityEvent
		if err := json.Unmarshal([]byte(raw), &event); err != nil {
			t.logger.WithError(err).Error("Skipping malformed activity event")
			continue
		}
		if err := t.insertActivity(ctx, raw, &event); err != nil {
			t.logger.WithError(err).Error("Failed to insert activity row")
			continue
		}
		inserted++
	}

	if err := t.redis.Del(ctx, key).Err(); err != nil {
		return inserted, fmt.Errorf("failed to clear activity buffer: %w", err)
	}

	activitiesFlushed.Add(float64(inserted))
	t.logger.WithFields(logrus.Fields{
		"user_id":    userID,
		"activities": inserted,
	}).Info("Flushed user activity")
	return inserted, nil
}

func (t *ActivityTracker) insertActivity(ctx context.Context, raw string, event *ActivityEvent) error {
	query := `
		INSERT INTO activity_log
		(log_name, description, subject_id, subject_type,
		 causer_id, causer_type, properties, url,
		 created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	var subjectID any
	var subjectType any
	if event.EventType == eventVideoView {
		subjectID = event.VideoID
		subjectType = `App\Interacpedia\Resumes\Resume`
	}

	_, err := t.db.Exec(ctx, query,
		"app",
		eventDescription(event),
		subjectID,
		subjectType,
		event.UserID,
		`App\User`,
		raw,
		eventURL(event),
		event.Timestamp,
		event.Timestamp,
	)
	return err
}

func eventDescription(event *ActivityEvent) string {
	switch event.EventType {
	case eventVideoView:
		feedType := event.FeedType
		if feedType == "" {
			feedType = "feed"
		}
		return fmt.Sprintf("#video #view #%s", feedType)
	case eventFeedRequest:
		endpoint := event.Endpoint
		if endpoint == "" {
			endpoint = "feed"
		}
		return fmt.Sprintf("#feed #request #%s", endpoint)
	}
	return "#activity"
}

func eventURL(event *ActivityEvent) string {
	switch event.EventType {
	case eventVideoView:
		return fmt.Sprintf("/api/search/feed/video/%d", event.VideoID)
	case eventFeedRequest:
		return fmt.Sprintf("/api/search/%s", event.Endpoint)
	}
	return "/api/search"
}

// FlushAll drains every buffered user list.
func (t *ActivityTracker) FlushAll(ctx context.Context) (int, error) {
	total := 0
	iter := t.redis.Scan(ctx, 0, "user_activity:*", 100).Iterator()
	for iter.Next(ctx) {
		parts := strings.Split(iter.Val(), ":")
		if len(parts) != 2 {
			continue
		}
		userID, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			continue
		}
		count, err := t.FlushUser(ctx, userID)
		if err != nil {
			t.logger.WithField("user_id", userID).WithError(err).Error("Flush failed")
			continue
		}
		total += count
	}
	if err := iter.Err(); err != nil {
		return total, fmt.Errorf("failed to scan activity buffers: %w", err)
	}
	return total, nil
}

// Run drains all pending activity on a fixed interval until the context
// is cancelled.
func (t *ActivityTracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.cfg.FlushInterval)
	defer ticker.Stop()

	t.logger.WithField("interval", t.cfg.FlushInterval).Info("Activity drain started")
	for {
		select {
		case <-ctx.Done():
			t.logger.Info("Activity drain stopped")
			return
		case <-ticker.C:
			if total, err := t.FlushAll(ctx); err != nil {
				t.logger.WithError(err).Error("Periodic activity flush failed")
			} else if total > 0 {
				t.logger.WithField("activities", total).Info("Periodic activity flush completed")
			}
		}
	}
}
