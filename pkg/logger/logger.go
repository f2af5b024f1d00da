package logger

import (
	"github.com/cesilk/comfy-nodes/internal/config"

	"go.uber.org/zap"
)

// NewLogger picks the zap preset for the configured environment.
func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	switch cfg.Environment {
	case "prod":
		return zap.NewProduction()
	case "test":
		return zap.NewExample(), nil
	default:
		return zap.NewDevelopment()
	}
}
