package app

import (
	"github.com/ibeckermayer/engage4me/internal/config"
	"github.com/ibeckermayer/engage4me/internal/logging"
)

// Setup loads the configuration from its default location and builds an App
// logging at the configured level.
func Setup() (*App, error) {
	path, err := config.ConfigPath()
	if err != nil {
		return nil, err
	}
	cacheDir, err := config.CacheDir()
	if err != nil {
		return nil, err
	}

	cfg, err := LoadConfig(path, logging.New("info"))
	if err != nil {
		return nil, err
	}
	return New(cfg, path, cacheDir, logging.New(cfg.Log.Level)), nil
}
