package main

import (
	"os"
	"strings"

	"go.uber.org/zap"
)

// GetKeyDBURL returns KeyDB URL with the following priority:
// 1. KEYDB_URL environment variable
// 2. GRANTIFY_KEYDB_URL_FILE file content
// 3. Default value
func GetKeyDBURL(logger *zap.Logger) string {
	if keydbURL := os.Getenv("KEYDB_URL"); keydbURL != "" {
		logger.Debug("Using KeyDB URL from environment variable")
		return keydbURL
	}

	connectionFile := os.Getenv("GRANTIFY_KEYDB_URL_FILE")
	if connectionFile == "" {
		connectionFile = "/app/.keydb-url"
	}

	if content, err := os.ReadFile(connectionFile); err == nil {
		if keydbURL := strings.TrimSpace(string(content)); keydbURL != "" {
			logger.Debug("Using KeyDB URL from connection file", zap.String("file", connectionFile))
			return keydbURL
		}
	} else {
		logger.Debug("KeyDB connection file not found", zap.String("file", connectionFile))
	}

	logger.Debug("Using default KeyDB URL")
	return "redis://localhost:6379"
}
