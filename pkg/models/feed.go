package models

// Slot types of the feed pattern.
const (
	SlotVMP     = "VMP"
	SlotAU      = "AU"
	SlotNU      = "NU"
	SlotFW      = "FW"
	SlotExplore = "EXPLORE"
)

// Entry types.
const (
	TypeResume    = "resume"
	TypeChallenge = "challenge"
)

// FeedEntry is one assembled feed position before response shaping.
type FeedEntry struct {
	Position    int     `json:"position"`
	ItemID      int64   `json:"video_id"`
	Type        string  `json:"type"`
	SlotType    string  `json:"patron_type"`
	VideoURL    string  `json:"video_url"`
	CreatorName string  `json:"creator_name"`
	City        string  `json:"city"`
	Title       string  `json:"title,omitempty"`
	Description string  `json:"description,omitempty"`
	Views       int     `json:"views"`
	Rating      float64 `json:"rating"`
	DaysOld     int     `json:"days_old"`
}

// BanditStats summarizes one bandit's observed rewards.
type BanditStats struct {
	AvgReward       float64 `json:"recompensa_promedio"`
	TotalSelections int     `json:"total_selecciones"`
	RecentAvg       float64 `json:"promedio_reciente"`
}

// PoolSizes reports how many candidates each generator produced.
type PoolSizes struct {
	VMP     int `json:"vmp"`
	NU      int `json:"nu"`
	AU      int `json:"au"`
	Flows   int `json:"flows"`
	Explore int `json:"explore"`
}

// FeedMetrics is the quality-monitoring block emitted with every feed.
type FeedMetrics struct {
	TotalItems       int                    `json:"total_videos"`
	TypeDistribution map[string]int         `json:"type_distribution"`
	UniqueCreators   int                    `json:"unique_creators"`
	AvgViews         float64                `json:"avg_views"`
	AvgRating        float64                `json:"avg_rating"`
	ExecutionTime    float64                `json:"execution_time"`
	CatalogCoverage  float64                `json:"catalog_coverage"`
	FeedCoverage     float64                `json:"feed_coverage"`
	NewContentRatio  float64                `json:"new_content_ratio"`
	SkillDiversity   float64                `json:"skill_diversity"`
	CreatorDiversity float64                `json:"creator_diversity"`
	TotalCatalog     int                    `json:"total_catalog"`
	AvailableCatalog int                    `json:"available_catalog"`
	PoolSizes        PoolSizes              `json:"pool_sizes"`
	BanditStats      map[string]BanditStats `json:"bandit_stats"`
}

// ResumeItem is the response shape for resume feed entries.
type ResumeItem struct {
	Type           string   `json:"type"`
	ID             int64    `json:"id"`
	Name           string   `json:"name"`
	Slug           string   `json:"slug"`
	Description    string   `json:"description"`
	Video          string   `json:"video"`
	Image          string   `json:"image"`
	UserID         int64    `json:"user_id"`
	UserName       string   `json:"user_name"`
	UserSlug       string   `json:"user_slug"`
	Avatar         string   `json:"avatar"`
	MainObjective  string   `json:"main_objective"`
	TypeAudience   string   `json:"type_audience"`
	TypeAudiences  []string `json:"type_audiences"`
	InterestAreas  []string `json:"interest_areas"`
	RoleObjectives []string `json:"role_objectives"`
	Connected      string   `json:"connected"`
}

// ChallengeItem is the response shape for flow (challenge) feed entries.
type ChallengeItem struct {
	Type           string   `json:"type"`
	ID             int64    `json:"id"`
	Name           string   `json:"name"`
	Slug           string   `json:"slug"`
	Description    string   `json:"description"`
	VideoURL       string   `json:"video_url"`
	Image          string   `json:"image"`
	UserID         int64    `json:"user_id"`
	UserName       string   `json:"user_name"`
	UserSlug       string   `json:"user_slug"`
	UserAvatar     string   `json:"user_avatar"`
	TalentType     string   `json:"talent_type"`
	InterestAreas  []string `json:"interest_areas"`
	TypeObjectives []string `json:"type_objectives"`
	Top            bool     `json:"top"`
	CreatedAt      string   `json:"created_at"`
	UpdatedAt      string   `json:"updated_at"`
	StatusAt       string   `json:"status_at,omitempty"`
}
