package services

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/talentpitch/searchrec/internal/config"
	"github.com/talentpitch/searchrec/pkg/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func testBanditConfig() config.BanditConfig {
	return config.BanditConfig{
		Preset: "conservative",
		VMP:    config.BanditParams{Alpha: 1.5, Beta: 0.8},
		AU:     config.BanditParams{Alpha: 1.3, Beta: 0.7},
		NU:     config.BanditParams{Alpha: 1.8, Beta: 0.9},
	}
}

// newTestSnapshot derives all snapshot indices the way the loader does,
// starting from in-memory fixture rows.
func newTestSnapshot(items []models.Item, flows []models.Flow, interactions []models.Interaction, connections []models.Connection, blacklist map[string]struct{}) *Snapshot {
	return NewSnapshot(nil, items, interactions, connections, flows, blacklist)
}

// testItem builds a mid-quality item owned by its own creator, with a
// unique skill so the assembler's novelty rule never starves.
func testItem(id int64, days int) models.Item {
	return models.Item{
		ID:                id,
		CreatorID:         1000 + id,
		VideoURL:          fmt.Sprintf("https://videos.example.com/%d.mp4", id),
		Description:       fmt.Sprintf("Video %d", id),
		CreatorName:       fmt.Sprintf("Creator %d", id),
		City:              "Bogotá",
		CreatedAt:         time.Now().AddDate(0, 0, -days),
		DaysSinceCreation: days,
		Views:             100,
		AvgRating:         4.0,
		RatingCount:       5,
		HasRating:         true,
		MatchCount:        3,
		LikeCount:         2,
		ExhibitedCount:    1,
		ActualViews:       100,
		Skills:            []string{fmt.Sprintf("skill-%d", id)},
	}
}

func testFlow(id int64, days int) models.Flow {
	return models.Flow{
		ID:                id,
		CreatorID:         5000 + id,
		VideoURL:          fmt.Sprintf("https://flows.example.com/%d.mp4", id),
		Name:              fmt.Sprintf("Flow %d", id),
		Description:       fmt.Sprintf("Campaign %d", id),
		CreatedAt:         time.Now().AddDate(0, 0, -days),
		DaysSinceCreation: days,
		City:              "Medellín",
		CreatorName:       fmt.Sprintf("Flow Creator %d", id),
	}
}

// testCatalog builds n items with distinct creators and skills.
func testCatalog(n int) []models.Item {
	items := make([]models.Item, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, testItem(int64(i+1), (i%60)+1))
	}
	return items
}
