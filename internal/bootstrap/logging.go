package bootstrap

import (
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"

	"personnage-gallery/internal/config"
)

// ConfigureLogging applies the level and format ("text" or "json") to the
// standard logrus logger.
func ConfigureLogging(cfg config.LogConfig) error {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("parse log level failed: %w", err)
	}
	log.SetLevel(level)
	log.SetOutput(os.Stdout)

	switch strings.ToLower(cfg.Format) {
	case "", "text":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	default:
		return fmt.Errorf("unknown log format %q", cfg.Format)
	}
	return nil
}
