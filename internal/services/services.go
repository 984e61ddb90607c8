package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/talentpitch/searchrec/internal/config"
	"github.com/talentpitch/searchrec/internal/database"
)

// Core pairs a snapshot with the engine built over it. The pair is
// replaced atomically on reload so a request never sees a mixture of
// two catalog generations.
type Core struct {
	Snapshot *Snapshot
	Engine   *Engine
}

// Services aggregates all business services and owns the current core.
type Services struct {
	Catalog     *CatalogService
	Tracker     *ActivityTracker
	Health      *HealthService
	FlowHistory FlowHistoryStore

	cfg    *config.Config
	logger *logrus.Logger

	reloadMu sync.Mutex
	core     atomic.Pointer[Core]
}

func New(cfg *config.Config, logger *logrus.Logger, db *database.Database) *Services {
	registerMetrics(logger)
	return &Services{
		Catalog:     NewCatalogService(db.PG, cfg, logger),
		Tracker:     NewActivityTracker(db.Redis, db.PG, cfg.Tracking, logger),
		Health:      NewHealthService(db, logger),
		FlowHistory: NewFlowHistory(db.PG, logger),
		cfg:         cfg,
		logger:      logger,
	}
}

// Core returns the current snapshot+engine pair, or nil before the
// first successful load.
func (s *Services) Core() *Core {
	return s.core.Load()
}

// UseCore installs a prebuilt snapshot+engine pair without touching the
// relational store.
func (s *Services) UseCore(core *Core) {
	s.core.Store(core)
}

// EnsureCore returns the current core, loading the catalog inline if no
// snapshot exists yet.
func (s *Services) EnsureCore(ctx context.Context) (*Core, error) {
	if core := s.core.Load(); core != nil {
		return core, nil
	}
	if err := s.Reload(ctx); err != nil {
		return nil, err
	}
	return s.core.Load(), nil
}

// Reload rebuilds the snapshot and swaps in a fresh engine. On failure
// the previous core stays in place.
func (s *Services) Reload(ctx context.Context) error {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	snap, err := s.Catalog.Load(ctx)
	if err != nil {
		catalogReloads.WithLabelValues("failure").Inc()
		return fmt.Errorf("catalog reload failed: %w", err)
	}

	engine := NewEngine(snap, s.cfg.Recommendation.Bandit, s.logger)
	s.core.Store(&Core{Snapshot: snap, Engine: engine})

	catalogReloads.WithLabelValues("success").Inc()
	catalogSize.WithLabelValues("items").Set(float64(len(snap.Items)))
	catalogSize.WithLabelValues("flows").Set(float64(len(snap.Flows)))
	catalogSize.WithLabelValues("users").Set(float64(len(snap.Users)))
	catalogSize.WithLabelValues("interactions").Set(float64(len(snap.Interactions)))
	catalogSize.WithLabelValues("connections").Set(float64(len(snap.Connections)))
	return nil
}
