package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/talentpitch/searchrec/internal/database"
)

// Version is reported by the liveness endpoints.
const Version = "2.0"

type HealthService struct {
	db     *database.Database
	logger *logrus.Logger
}

type HealthStatus struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]string `json:"services,omitempty"`
}

func NewHealthService(db *database.Database, logger *logrus.Logger) *HealthService {
	return &HealthService{db: db, logger: logger}
}

// Check pings the backing stores. The service reports healthy as long as
// it can serve from the in-memory snapshot; degraded stores only affect
// tracking and reloads.
func (h *HealthService) Check(ctx context.Context) HealthStatus {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	status := HealthStatus{
		Status:    "healthy",
		Version:   Version,
		Timestamp: time.Now(),
		Services:  make(map[string]string),
	}

	if err := h.db.PG.Ping(ctx); err != nil {
		status.Services["postgresql"] = "unhealthy"
		status.Status = "degraded"
		h.logger.WithError(err).Warn("PostgreSQL health check failed")
	} else {
		status.Services["postgresql"] = "healthy"
	}

	if err := h.db.Redis.Ping(ctx).Err(); err != nil {
		status.Services["redis"] = "unhealthy"
		status.Status = "degraded"
		h.logger.WithError(err).Warn("Redis health check failed")
	} else {
		status.Services["redis"] = "healthy"
	}

	return status
}
