package models

import "time"

// Item is a creator-posted resume video with the engagement aggregates
// joined in at catalog load.
type Item struct {
	ID                int64
	CreatorID         int64
	VideoURL          string
	Description       string
	CreatorName       string
	City              string
	CreatedAt         time.Time
	DaysSinceCreation int
	Views             int
	AvgRating         float64
	RatingCount       int
	HasRating         bool
	MatchCount        int
	LikeCount         int
	ExhibitedCount    int
	ActualViews       int
	Skills            []string
	Knowledges        []string
	Tools             []string
	Languages         []string
}

// Flow is a creator-posted campaign (challenge).
type Flow struct {
	ID                int64
	CreatorID         int64
	VideoURL          string
	Name              string
	Description       string
	CreatedAt         time.Time
	DaysSinceCreation int
	City              string
	CreatorName       string
	InterestAreas     string // raw JSON, parsed at response time
	TypeObjectives    string // raw JSON, parsed at response time
	TalentType        string
	StatusAt          string
}

// Creator is a user that owns items and/or flows.
type Creator struct {
	ID        int64
	Name      string
	City      string
	Country   string
	CreatedAt time.Time
}

// Interaction kinds as loaded from the relational store.
const (
	InteractionRating       = "rating"
	InteractionSave         = "save"
	InteractionMatch        = "match"
	InteractionView         = "view"
	InteractionViewImplicit = "view_implicit"
)

// Interaction is a single user event against an item. UserID is 0 for
// the synthesized implicit-view matrix.
type Interaction struct {
	UserID    int64
	ItemID    int64
	Rating    float64
	Kind      string
	CreatedAt time.Time
}

// Connection is a directed accepted edge in the social graph.
type Connection struct {
	FromUserID int64
	ToUserID   int64
	CreatedAt  time.Time
}
