package handlers

import (
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/talentpitch/searchrec/internal/config"
	"github.com/talentpitch/searchrec/internal/messaging"
	"github.com/talentpitch/searchrec/internal/services"
)

// Handlers carries the service aggregate into the HTTP layer.
type Handlers struct {
	services *services.Services
	producer *messaging.FeedEventProducer
	cfg      *config.Config
	logger   *logrus.Logger
}

func New(svc *services.Services, producer *messaging.FeedEventProducer, cfg *config.Config, logger *logrus.Logger) *Handlers {
	return &Handlers{
		services: svc,
		producer: producer,
		cfg:      cfg,
		logger:   logger,
	}
}

// requestRand seeds a request-scoped generator; every stochastic step of
// one request draws from it.
func requestRand() *rand.Rand {
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}
