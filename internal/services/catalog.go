package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/talentpitch/searchrec/internal/config"
	"github.com/talentpitch/searchrec/pkg/models"
)

// DatabaseQuerier abstracts the read side of the catalog store so the
// loader can be tested with pgxmock.
type DatabaseQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Per-item caps for the JSON profile fields, applied once at load.
const (
	maxSkillsPerItem     = 5
	maxKnowledgesPerItem = 3
	maxToolsPerItem      = 3
	maxLanguagesPerItem  = 3
)

// Snapshot is the immutable in-memory catalog every request reads from.
// It is replaced wholesale on reload; nothing inside it mutates.
type Snapshot struct {
	LoadedAt time.Time

	Users        []models.Creator
	Items        []models.Item
	Interactions []models.Interaction
	Connections  []models.Connection
	Flows        []models.Flow

	ItemIndex map[int64]int // item id -> position in Items
	FlowIndex map[int64]int
	UserNames map[int64]string

	// Per-item attribute sets, keyed by item id.
	ItemSkills     map[int64]map[string]struct{}
	ItemKnowledges map[int64]map[string]struct{}
	ItemTools      map[int64]map[string]struct{}
	ItemLanguages  map[int64]map[string]struct{}

	// Interactions grouped by user, in load order.
	InteractionsByUser map[int64][]models.Interaction

	Blacklist map[string]struct{}

	Skills   *SkillIndex
	Social   *SocialGraph
	Features *FeatureSet
}

// Item returns the item with the given id, or nil.
func (s *Snapshot) Item(id int64) *models.Item {
	if i, ok := s.ItemIndex[id]; ok {
		return &s.Items[i]
	}
	return nil
}

// Flow returns the flow with the given id, or nil.
func (s *Snapshot) Flow(id int64) *models.Flow {
	if i, ok := s.FlowIndex[id]; ok {
		return &s.Flows[i]
	}
	return nil
}

// Blacklisted reports whether the item's video URL is on the blacklist.
func (s *Snapshot) Blacklisted(itemID int64) bool {
	item := s.Item(itemID)
	if item == nil {
		return false
	}
	_, blocked := s.Blacklist[item.VideoURL]
	return blocked
}

// NewSnapshot assembles a snapshot from already-loaded rows, deriving
// the lookup indices, the skill embedding, the social graph and the
// precomputed feature columns.
func NewSnapshot(users []models.Creator, items []models.Item, interactions []models.Interaction, connections []models.Connection, flows []models.Flow, blacklist map[string]struct{}) *Snapshot {
	if blacklist == nil {
		blacklist = make(map[string]struct{})
	}
	snap := &Snapshot{
		LoadedAt:     time.Now(),
		Users:        users,
		Items:        items,
		Interactions: interactions,
		Connections:  connections,
		Flows:        flows,
		Blacklist:    blacklist,
	}
	buildIndices(snap)
	snap.Skills = BuildSkillIndex(snap.Items, snap.ItemSkills)
	snap.Social = BuildSocialGraph(snap.Connections)
	snap.Features = BuildFeatureSet(snap)
	return snap
}

// CatalogService loads snapshots from the relational store. It holds no
// snapshot itself; ownership of the current snapshot lives in Services.
type CatalogService struct {
	db        DatabaseQuerier
	cfg       *config.Config
	logger    *logrus.Logger
	blacklist map[string]struct{}
}

func NewCatalogService(db DatabaseQuerier, cfg *config.Config, logger *logrus.Logger) *CatalogService {
	return &CatalogService{
		db:        db,
		cfg:       cfg,
		logger:    logger,
		blacklist: loadBlacklist(cfg.Catalog.BlacklistFile, logger),
	}
}

// Load builds a complete snapshot. Any step failing fails the whole
// load; a partial snapshot is never returned.
func (c *CatalogService) Load(ctx context.Context) (*Snapshot, error) {
	start := time.Now()

	users, err := c.loadUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load users: %w", err)
	}
	items, err := c.loadItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load items: %w", err)
	}
	interactions, err := c.loadInteractions(ctx, items)
	if err != nil {
		return nil, fmt.Errorf("failed to load interactions: %w", err)
	}
	connections, err := c.loadConnections(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load connections: %w", err)
	}
	flows, err := c.loadFlows(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load flows: %w", err)
	}

	snap := NewSnapshot(users, items, interactions, connections, flows, c.blacklist)

	c.logger.WithFields(logrus.Fields{
		"users":        len(snap.Users),
		"items":        len(snap.Items),
		"interactions": len(snap.Interactions),
		"connections":  len(snap.Connections),
		"flows":        len(snap.Flows),
		"skills":       snap.Skills.Len(),
		"duration_ms":  time.Since(start).Milliseconds(),
	}).Info("Catalog snapshot loaded")

	return snap, nil
}

func (c *CatalogService) loadUsers(ctx context.Context) ([]models.Creator, error) {
	query := `
		SELECT
			u.id,
			COALESCE(u.name, '') AS name,
			COALESCE(NULLIF(TRIM(u.city), ''), 'Unknown') AS city,
			COALESCE(NULLIF(TRIM(u.country), ''), 'Unknown') AS country,
			u.created_at
		FROM users u
		WHERE u.deleted_at IS NULL
		AND (u.created_at >= now() - make_interval(days => $1)
			OR u.updated_at >= now() - make_interval(days => $1))`

	rows, err := c.db.Query(ctx, query, c.cfg.Catalog.UserWindowDays)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.Creator
	for rows.Next() {
		var u models.Creator
		if err := rows.Scan(&u.ID, &u.Name, &u.City, &u.Country, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (c *CatalogService) loadItems(ctx context.Context) ([]models.Item, error) {
	query := `
		SELECT
			r.id,
			r.user_id,
			r.video,
			COALESCE(r.skills, '') AS skills,
			COALESCE(r.knowledges, '') AS knowledges,
			COALESCE(r.tools, '') AS tools,
			COALESCE(r.languages, '') AS languages,
			r.created_at,
			COALESCE(r.description, '') AS description,
			COALESCE(NULLIF(TRIM(u.city), ''), '') AS creator_city,
			COALESCE(NULLIF(TRIM(u.country), ''), '') AS creator_country,
			COALESCE(u.name, '') AS creator_name,
			LEAST(COALESCE(tf.avg_rating, 0), 5.0) AS avg_rating,
			COALESCE(tf.rating_count, 0) AS rating_count,
			COALESCE(m.match_count, 0) AS match_count,
			COALESCE(l.like_count, 0) AS like_count,
			COALESCE(e.exhibited_count, 0) AS exhibited_count,
			COALESCE(v.view_count, 0) AS actual_views
		FROM resumes r
		JOIN users u ON r.user_id = u.id
		LEFT JOIN (
			SELECT model_id,
				AVG(LEAST(value, 5)) AS avg_rating,
				COUNT(*) AS rating_count
			FROM team_feedbacks
			WHERE type = 'ranking_resume' AND value > 0
			GROUP BY model_id
		) tf ON tf.model_id = r.id
		LEFT JOIN (
			SELECT model_id, COUNT(*) AS match_count
			FROM matches
			WHERE status = 'accepted'
			GROUP BY model_id
		) m ON m.model_id = r.id
		LEFT JOIN (
			SELECT model_id, COUNT(*) AS like_count
			FROM likes
			WHERE type = 'save'
			GROUP BY model_id
		) l ON l.model_id = r.id
		LEFT JOIN (
			SELECT resume_id, COUNT(*) AS exhibited_count
			FROM resumes_exhibited
			GROUP BY resume_id
		) e ON e.resume_id = r.id
		LEFT JOIN (
			SELECT model_id, COUNT(*) AS view_count
			FROM views
			WHERE model_type = 'App\Interacpedia\Resumes\Resume'
			GROUP BY model_id
		) v ON v.model_id = r.id
		WHERE r.deleted_at IS NULL
		AND r.status = 'send'
		AND r.video IS NOT NULL
		AND NOT (r.video = ANY($1))
		AND u.deleted_at IS NULL
		AND r.created_at >= now() - make_interval(days => $2)
		AND LOWER(r.video) NOT LIKE '%prueba%'
		AND LOWER(r.video) NOT LIKE '%test%'
		AND LOWER(COALESCE(r.description, '')) NOT LIKE '%prueba%'
		AND LOWER(COALESCE(r.description, '')) NOT LIKE '%test%'`

	rows, err := c.db.Query(ctx, query, blacklistSlice(c.blacklist), c.cfg.Catalog.ItemWindowDays)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	now := time.Now()
	var items []models.Item
	for rows.Next() {
		var it models.Item
		var skills, knowledges, tools, languages string
		var creatorCity, creatorCountry string
		if err := rows.Scan(
			&it.ID, &it.CreatorID, &it.VideoURL,
			&skills, &knowledges, &tools, &languages,
			&it.CreatedAt, &it.Description,
			&creatorCity, &creatorCountry, &it.CreatorName,
			&it.AvgRating, &it.RatingCount,
			&it.MatchCount, &it.LikeCount, &it.ExhibitedCount,
			&it.ActualViews,
		); err != nil {
			return nil, err
		}

		if it.AvgRating > 5 {
			it.AvgRating = 5
		}
		it.HasRating = it.RatingCount > 0
		it.Views = it.ActualViews
		it.City = normalizeCity(creatorCity, creatorCountry)
		it.DaysSinceCreation = int(now.Sub(it.CreatedAt).Hours() / 24)
		it.Skills = parseJSONSet(skills, maxSkillsPerItem)
		it.Knowledges = parseJSONSet(knowledges, maxKnowledgesPerItem)
		it.Tools = parseJSONSet(tools, maxToolsPerItem)
		it.Languages = parseJSONSet(languages, maxLanguagesPerItem)

		items = append(items, it)
	}
	return items, rows.Err()
}

func (c *CatalogService) loadInteractions(ctx context.Context, items []models.Item) ([]models.Interaction, error) {
	query := `
		SELECT user_id, model_id AS video_id,
			LEAST(value, 5)::float8 AS rating, created_at,
			'rating' AS interaction_type
		FROM team_feedbacks
		WHERE type = 'ranking_resume' AND value > 0
		AND user_id IS NOT NULL
		AND created_at >= now() - interval '90 days'
		UNION ALL
		SELECT user_id, model_id, 3.0, created_at, 'save'
		FROM likes
		WHERE type = 'save' AND user_id IS NOT NULL
		AND created_at >= now() - interval '90 days'
		UNION ALL
		SELECT user_id, model_id, 4.0, created_at, 'match'
		FROM matches
		WHERE status = 'accepted' AND user_id IS NOT NULL
		AND created_at >= now() - interval '90 days'
		UNION ALL
		SELECT causer_id, subject_id, 2.0, created_at, 'view'
		FROM activity_log
		WHERE description LIKE '%video%view%'
		AND causer_id IS NOT NULL AND subject_id IS NOT NULL
		AND created_at >= now() - interval '30 days'`

	rows, err := c.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var interactions []models.Interaction
	for rows.Next() {
		var in models.Interaction
		if err := rows.Scan(&in.UserID, &in.ItemID, &in.Rating, &in.CreatedAt, &in.Kind); err != nil {
			return nil, err
		}
		if in.Rating > 5 {
			in.Rating = 5
		}
		interactions = append(interactions, in)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(interactions) == 0 {
		interactions = implicitInteractions(items)
		c.logger.WithField("synthesized", len(interactions)).
			Warn("No direct interactions, using implicit view matrix")
	}
	return interactions, nil
}

// implicitInteractions bootstraps the interaction matrix from view counts
// so downstream code paths stay well-defined on a cold store.
func implicitInteractions(items []models.Item) []models.Interaction {
	var out []models.Interaction
	for _, it := range items {
		n := it.Views
		if n > 50 {
			n = 50
		}
		for i := 0; i < n; i++ {
			out = append(out, models.Interaction{
				UserID:    0,
				ItemID:    it.ID,
				Rating:    3.0,
				Kind:      models.InteractionViewImplicit,
				CreatedAt: it.CreatedAt,
			})
		}
	}
	return out
}

func (c *CatalogService) loadConnections(ctx context.Context) ([]models.Connection, error) {
	query := `
		SELECT from_id, to_id, created_at
		FROM connections
		WHERE status = 'accepted'
		AND created_at >= now() - interval '90 days'`

	rows, err := c.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conns []models.Connection
	for rows.Next() {
		var cn models.Connection
		if err := rows.Scan(&cn.FromUserID, &cn.ToUserID, &cn.CreatedAt); err != nil {
			return nil, err
		}
		conns = append(conns, cn)
	}
	return conns, rows.Err()
}

func (c *CatalogService) loadFlows(ctx context.Context) ([]models.Flow, error) {
	query := `
		SELECT
			c.id,
			c.user_id,
			c.video,
			COALESCE(c.name, '') AS name,
			COALESCE(c.description, '') AS description,
			c.created_at,
			COALESCE(c.interest_areas, '') AS interest_areas,
			COALESCE(c.type_objectives, '') AS type_objectives,
			COALESCE(c.talent_type, '') AS talent_type,
			COALESCE(c.status_at::text, '') AS status_at,
			COALESCE(u.name, '') AS creator_name,
			COALESCE(NULLIF(TRIM(u.city), ''), '') AS creator_city,
			COALESCE(NULLIF(TRIM(u.country), ''), '') AS creator_country
		FROM (
			SELECT c2.*,
				ROW_NUMBER() OVER (
					PARTITION BY c2.video ORDER BY c2.created_at DESC
				) AS rn
			FROM challenges c2
			WHERE c2.deleted_at IS NULL
			AND c2.status = 'published'
			AND c2.video IS NOT NULL
			AND NOT (c2.video = ANY($1))
			AND (c2.created_at >= now() - make_interval(days => $2)
				OR c2.updated_at >= now() - make_interval(days => $2))
			AND c2.name <> 'prueba'
			AND c2.description <> 'prueba'
			AND c2.name <> 'test'
		) c
		JOIN users u ON c.user_id = u.id
		WHERE c.rn = 1
		ORDER BY c.created_at DESC`

	rows, err := c.db.Query(ctx, query, blacklistSlice(c.blacklist), c.cfg.Catalog.FlowWindowDays)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	now := time.Now()
	seen := make(map[string]struct{})
	var flows []models.Flow
	for rows.Next() {
		var f models.Flow
		var creatorCity, creatorCountry string
		if err := rows.Scan(
			&f.ID, &f.CreatorID, &f.VideoURL, &f.Name, &f.Description,
			&f.CreatedAt, &f.InterestAreas, &f.TypeObjectives,
			&f.TalentType, &f.StatusAt,
			&f.CreatorName, &creatorCity, &creatorCountry,
		); err != nil {
			return nil, err
		}
		if _, dup := seen[f.VideoURL]; dup {
			continue
		}
		seen[f.VideoURL] = struct{}{}

		f.City = normalizeCity(creatorCity, creatorCountry)
		f.DaysSinceCreation = int(now.Sub(f.CreatedAt).Hours() / 24)
		flows = append(flows, f)
	}
	return flows, rows.Err()
}

func buildIndices(snap *Snapshot) {
	snap.ItemIndex = make(map[int64]int, len(snap.Items))
	snap.ItemSkills = make(map[int64]map[string]struct{}, len(snap.Items))
	snap.ItemKnowledges = make(map[int64]map[string]struct{}, len(snap.Items))
	snap.ItemTools = make(map[int64]map[string]struct{}, len(snap.Items))
	snap.ItemLanguages = make(map[int64]map[string]struct{}, len(snap.Items))
	for i := range snap.Items {
		it := &snap.Items[i]
		snap.ItemIndex[it.ID] = i
		snap.ItemSkills[it.ID] = toSet(it.Skills)
		snap.ItemKnowledges[it.ID] = toSet(it.Knowledges)
		snap.ItemTools[it.ID] = toSet(it.Tools)
		snap.ItemLanguages[it.ID] = toSet(it.Languages)
	}

	snap.FlowIndex = make(map[int64]int, len(snap.Flows))
	for i := range snap.Flows {
		snap.FlowIndex[snap.Flows[i].ID] = i
	}

	snap.UserNames = make(map[int64]string, len(snap.Users))
	for _, u := range snap.Users {
		snap.UserNames[u.ID] = u.Name
	}

	snap.InteractionsByUser = make(map[int64][]models.Interaction)
	for _, in := range snap.Interactions {
		if in.UserID == 0 {
			continue
		}
		snap.InteractionsByUser[in.UserID] = append(snap.InteractionsByUser[in.UserID], in)
	}
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

func blacklistSlice(blocked map[string]struct{}) []string {
	out := make([]string, 0, len(blocked))
	for url := range blocked {
		out = append(out, url)
	}
	return out
}

// parseJSONSet decodes a JSON array of strings stored as text, keeping
// at most max distinct non-empty entries. Anything unparseable yields nil.
func parseJSONSet(raw string, max int) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return nil
	}
	var values []any
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil
	}
	seen := make(map[string]struct{}, max)
	var out []string
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
		if len(out) == max {
			break
		}
	}
	return out
}

// canonicalCities maps accent-folded lowercase city names to their
// canonical display form.
var canonicalCities = map[string]string{
	"bogota":           "Bogotá",
	"bogota d.c.":      "Bogotá",
	"medellin":         "Medellín",
	"cali":             "Cali",
	"barranquilla":     "Barranquilla",
	"bucaramanga":      "Bucaramanga",
	"distrito federal": "CDMX",
	"ciudad de mexico": "CDMX",
	"nuevo leon":       "Monterrey",
}

var cityFolder = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// normalizeCity canonicalizes a raw city name. Empty cities fall back to
// Other-<country>, or Unknown when the country is empty too.
func normalizeCity(city, country string) string {
	city = strings.TrimSpace(city)
	if city == "" {
		if country != "" {
			return "Other-" + country
		}
		return "Unknown"
	}

	folded, _, err := transform.String(cityFolder, city)
	if err != nil {
		folded = city
	}
	if canonical, ok := canonicalCities[strings.ToLower(folded)]; ok {
		return canonical
	}
	return city
}
