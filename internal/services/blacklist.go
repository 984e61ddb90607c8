package services

import (
	"bufio"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// loadBlacklist reads the blocked-URL file: one URL per line, lines
// starting with # ignored. A missing file is not an error; the feed just
// runs without a blacklist.
func loadBlacklist(path string, logger *logrus.Logger) map[string]struct{} {
	blocked := make(map[string]struct{})

	f, err := os.Open(path)
	if err != nil {
		logger.WithField("path", path).Warn("Blacklist file not found")
		return blocked
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		url := strings.TrimSpace(scanner.Text())
		if url == "" || strings.HasPrefix(url, "#") {
			continue
		}
		blocked[url] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		logger.WithError(err).Error("Error reading blacklist file")
	}

	logger.WithField("blocked_urls", len(blocked)).Info("Blacklist loaded")
	return blocked
}
