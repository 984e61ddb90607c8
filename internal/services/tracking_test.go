package services

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talentpitch/searchrec/internal/config"
)

func testTracker(db DatabaseExecer) *ActivityTracker {
	return NewActivityTracker(nil, db, config.TrackingConfig{
		ActivityTTL:    time.Hour,
		SessionTTL:     30 * time.Minute,
		FlushThreshold: 10,
		FlushInterval:  time.Minute,
	}, testLogger())
}

func TestSessionKey(t *testing.T) {
	tracker := testTracker(nil)

	assert.Equal(t, "abc-123", tracker.SessionKey(7, "abc-123"))

	synthesized := tracker.SessionKey(7, "")
	assert.True(t, strings.HasPrefix(synthesized, "session:7:"), synthesized)
}

func TestUserActivityKey(t *testing.T) {
	assert.Equal(t, "user_activity:42", userActivityKey(42))
}

func TestEventDescription(t *testing.T) {
	tests := []struct {
		name  string
		event ActivityEvent
		want  string
	}{
		{"video view with feed type", ActivityEvent{EventType: eventVideoView, FeedType: "total"}, "#video #view #total"},
		{"video view default", ActivityEvent{EventType: eventVideoView}, "#video #view #feed"},
		{"feed request", ActivityEvent{EventType: eventFeedRequest, Endpoint: "discover"}, "#feed #request #discover"},
		{"feed request default", ActivityEvent{EventType: eventFeedRequest}, "#feed #request #feed"},
		{"unknown", ActivityEvent{EventType: "something"}, "#activity"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, eventDescription(&tc.event))
		})
	}
}

func TestEventURL(t *testing.T) {
	view := ActivityEvent{EventType: eventVideoView, VideoID: 99}
	assert.Equal(t, "/api/search/feed/video/99", eventURL(&view))

	request := ActivityEvent{EventType: eventFeedRequest, Endpoint: "flow"}
	assert.Equal(t, "/api/search/flow", eventURL(&request))

	other := ActivityEvent{EventType: "other"}
	assert.Equal(t, "/api/search", eventURL(&other))
}

func TestActivityEvent_JSONShape(t *testing.T) {
	event := ActivityEvent{
		EventType: eventVideoView,
		UserID:    7,
		VideoID:   99,
		VideoURL:  "https://v/99.mp4",
		Position:  3,
		FeedType:  "total",
		Timestamp: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		SessionID: "session:7:1",
	}
	payload, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, "video_view", decoded["event_type"])
	assert.Equal(t, float64(7), decoded["user_id"])
	assert.Equal(t, float64(99), decoded["video_id"])
	assert.Equal(t, "session:7:1", decoded["session_id"])
	// Empty optional fields stay off the wire.
	assert.NotContains(t, decoded, "endpoint")
	assert.NotContains(t, decoded, "params")
}

func TestInsertActivity_VideoView(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	tracker := testTracker(mock)
	now := time.Now()
	event := ActivityEvent{
		EventType: eventVideoView,
		UserID:    7,
		VideoID:   99,
		FeedType:  "total",
		Timestamp: now,
		SessionID: "s",
	}
	raw, err := json.Marshal(event)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO activity_log").
		WithArgs("app", "#video #view #total", int64(99), `App\Interacpedia\Resumes\Resume`,
			int64(7), `App\User`, string(raw), "/api/search/feed/video/99", now, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, tracker.insertActivity(context.Background(), string(raw), &event))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertActivity_FeedRequestHasNoSubject(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	tracker := testTracker(mock)
	now := time.Now()
	event := ActivityEvent{
		EventType: eventFeedRequest,
		UserID:    7,
		Endpoint:  "discover",
		Timestamp: now,
		SessionID: "s",
	}
	raw, err := json.Marshal(event)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO activity_log").
		WithArgs("app", "#feed #request #discover", nil, nil,
			int64(7), `App\User`, string(raw), "/api/search/discover", now, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, tracker.insertActivity(context.Background(), string(raw), &event))
	require.NoError(t, mock.ExpectationsWereMet())
}
