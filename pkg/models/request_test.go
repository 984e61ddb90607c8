package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchRequest_ResolveUserID(t *testing.T) {
	selfID := int64(7)
	userID := int64(8)

	r := SearchRequest{SelfID: &selfID, UserID: &userID}
	assert.Equal(t, int64(7), r.ResolveUserID())

	r = SearchRequest{UserID: &userID}
	assert.Equal(t, int64(8), r.ResolveUserID())

	r = SearchRequest{}
	assert.Equal(t, int64(0), r.ResolveUserID())
}

func TestSearchRequest_ResolveSize(t *testing.T) {
	maxSize := 50
	size := 30

	r := SearchRequest{MaxSize: &maxSize, Size: &size}
	assert.Equal(t, 50, r.ResolveSize(20, 100))

	r = SearchRequest{Size: &size}
	assert.Equal(t, 30, r.ResolveSize(20, 100))

	r = SearchRequest{}
	assert.Equal(t, 20, r.ResolveSize(20, 100))

	huge := 500
	r = SearchRequest{MaxSize: &huge}
	assert.Equal(t, 100, r.ResolveSize(20, 100))
}

func TestSearchRequest_ResolveExcludedIDs(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []int64
	}{
		{"int array", `{"excluded_ids": [1, 2, 3]}`, []int64{1, 2, 3}},
		{"string array", `{"excluded_ids": ["4", "5"]}`, []int64{4, 5}},
		{"csv string", `{"excluded_ids": "6, 7,8"}`, []int64{6, 7, 8}},
		{"mixed array", `{"excluded_ids": [9, "10", null, "junk"]}`, []int64{9, 10}},
		{"negative ids dropped", `{"excluded_ids": [-1, 11]}`, []int64{11}},
		{"alias LAST_IDS", `{"LAST_IDS": [12]}`, []int64{12}},
		{"alias videos_excluidos", `{"videos_excluidos": "13"}`, []int64{13}},
		{"priority order", `{"excluded_ids": [1], "LAST_IDS": [2]}`, []int64{1}},
		{"absent", `{}`, nil},
		{"null", `{"excluded_ids": null}`, nil},
		{"garbage", `{"excluded_ids": "not numbers"}`, nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var r SearchRequest
			require.NoError(t, json.Unmarshal([]byte(tc.body), &r))
			assert.Equal(t, tc.want, r.ResolveExcludedIDs())
		})
	}
}
