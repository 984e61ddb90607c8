package models

import (
	"encoding/json"
	"strconv"
	"strings"
)

// SearchRequest tolerates the historical field aliases used by the feed
// clients. Every field is optional; malformed values degrade to their
// zero value rather than failing the request.
type SearchRequest struct {
	SelfID          *int64          `json:"SELF_ID"`
	UserID          *int64          `json:"user_id"`
	SessionID       string          `json:"session_id"`
	MaxSize         *int            `json:"MAX_SIZE"`
	Size            *int            `json:"size"`
	ExcludedIDs     json.RawMessage `json:"excluded_ids"`
	LastIDs         json.RawMessage `json:"LAST_IDS"`
	VideosExcluidos json.RawMessage `json:"videos_excluidos"`
}

// ResolveUserID prefers SELF_ID over user_id, defaulting to 0.
func (r *SearchRequest) ResolveUserID() int64 {
	if r.SelfID != nil {
		return *r.SelfID
	}
	if r.UserID != nil {
		return *r.UserID
	}
	return 0
}

// ResolveSize prefers MAX_SIZE over size, clamped to maxAllowed.
func (r *SearchRequest) ResolveSize(def, maxAllowed int) int {
	size := def
	if r.MaxSize != nil {
		size = *r.MaxSize
	} else if r.Size != nil {
		size = *r.Size
	}
	if size > maxAllowed {
		size = maxAllowed
	}
	return size
}

// ResolveExcludedIDs merges the three aliases in priority order. The
// value may be a comma-separated string, an array of ints, or an array
// of numeric strings; anything unparseable contributes nothing.
func (r *SearchRequest) ResolveExcludedIDs() []int64 {
	for _, raw := range []json.RawMessage{r.ExcludedIDs, r.LastIDs, r.VideosExcluidos} {
		if len(raw) == 0 || string(raw) == "null" {
			continue
		}
		if ids := parseExcludedIDs(raw); ids != nil {
			return ids
		}
	}
	return nil
}

func parseExcludedIDs(raw json.RawMessage) []int64 {
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		var ids []int64
		for _, part := range strings.Split(asString, ",") {
			part = strings.TrimSpace(part)
			if id, err := strconv.ParseInt(part, 10, 64); err == nil && id >= 0 {
				ids = append(ids, id)
			}
		}
		return ids
	}

	var asAny []any
	if err := json.Unmarshal(raw, &asAny); err != nil {
		return nil
	}
	ids := make([]int64, 0, len(asAny))
	for _, v := range asAny {
		switch t := v.(type) {
		case float64:
			if t >= 0 {
				ids = append(ids, int64(t))
			}
		case string:
			if id, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64); err == nil && id >= 0 {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// SearchBody is the payload of every /search response envelope.
type SearchBody struct {
	MixIDs       []string `json:"mix_ids,omitempty"`
	ResumeIDs    []string `json:"resume_ids,omitempty"`
	ChallengeIDs []string `json:"challenge_ids,omitempty"`
	Items        []any    `json:"items"`
}

// SearchResponse mirrors the lambda-style envelope the feed clients expect.
type SearchResponse struct {
	StatusCode int        `json:"statusCode"`
	Body       SearchBody `json:"body"`
}
