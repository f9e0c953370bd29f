// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds the application configuration.
type Config struct {
	DatabasePath string
	LogLevel     string

	DeepLKey      string
	OpenRouterKey string

	// BackupChannel receives an unmodified forward of every processed
	// message; ReviewChannel receives quarantined messages and warnings.
	BackupChannel int64
	ReviewChannel int64

	// Public usernames of the backup and source-detail channels, used to
	// build footer links.
	BackupChannelName  string
	SourcesChannelName string

	TargetLang   string
	AllowedUsers []int64
}

// Load reads configuration from the environment, honoring a .env file
// in the working directory when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dbPath := os.Getenv("DATABASE_PATH")
	if dbPath == "" {
		dbPath = "./data/bot.db"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	backup, err := envChannel("CHANNEL_BACKUP")
	if err != nil {
		return nil, err
	}
	review, err := envChannel("CHANNEL_REVIEW")
	if err != nil {
		return nil, err
	}

	backupName := os.Getenv("BACKUP_CHANNEL_NAME")
	if backupName == "" {
		backupName = "nn_backup"
	}
	sourcesName := os.Getenv("SOURCES_CHANNEL_NAME")
	if sourcesName == "" {
		sourcesName = "nn_sources"
	}

	targetLang := os.Getenv("TARGET_LANG")
	if targetLang == "" {
		targetLang = "de"
	}

	var allowedUsers []int64
	if raw := os.Getenv("ALLOWED_USERS"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			uid, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid user ID %q in ALLOWED_USERS: %w", s, err)
			}
			allowedUsers = append(allowedUsers, uid)
		}
	}

	return &Config{
		DatabasePath:       dbPath,
		LogLevel:           logLevel,
		DeepLKey:           os.Getenv("DEEPL"),
		OpenRouterKey:      os.Getenv("OPENROUTER_API_KEY"),
		BackupChannel:      backup,
		ReviewChannel:      review,
		BackupChannelName:  backupName,
		SourcesChannelName: sourcesName,
		TargetLang:         targetLang,
		AllowedUsers:       allowedUsers,
	}, nil
}

func envChannel(key string) (int64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid channel ID %q in %s: %w", raw, key, err)
	}
	return id, nil
}

// IsUserAllowed checks whether a user ID is in the allow list.
// Returns true if the allow list is empty (all users permitted).
func (c *Config) IsUserAllowed(userID int64) bool {
	if len(c.AllowedUsers) == 0 {
		return true
	}
	for _, id := range c.AllowedUsers {
		if id == userID {
			return true
		}
	}
	return false
}
