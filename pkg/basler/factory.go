package basler

import (
	"errors"
	"fmt"
	"log/slog"
)

// BackendKind names an acquisition backend.
type BackendKind string

const (
	// BackendAuto uses pylon when compiled in, else fails.
	BackendAuto BackendKind = "auto"
	// BackendPylon uses the Basler pylon SDK.
	BackendPylon BackendKind = "pylon"
	// BackendReplay plays back video or image files.
	BackendReplay BackendKind = "replay"
	// BackendMock synthesizes frames for testing.
	BackendMock BackendKind = "mock"
)

// BackendConfig selects and configures a backend.
type BackendConfig struct {
	// Kind selects the backend.
	// Default: "auto"
	Kind BackendKind `yaml:"kind" toml:"kind" json:"kind"`

	// ReplayFiles are the files played by the replay backend, one device each.
	ReplayFiles []string `yaml:"replay_files" toml:"replay_files" json:"replay_files"`

	// ReplayLoop restarts replay files at end of file.
	ReplayLoop bool `yaml:"replay_loop" toml:"replay_loop" json:"replay_loop"`
}

// Validate checks that the configuration is valid.
func (c *BackendConfig) Validate() error {
	switch c.Kind {
	case BackendAuto, BackendPylon, BackendMock:
	case BackendReplay:
		if len(c.ReplayFiles) == 0 {
			return errors.New("replay backend needs at least one file")
		}
	default:
		return fmt.Errorf("unsupported backend: %s", c.Kind)
	}
	return nil
}

// NewBackend creates the backend described by cfg.
func NewBackend(cfg BackendConfig, logger *slog.Logger) (Backend, error) {
	if cfg.Kind == "" {
		cfg.Kind = BackendAuto
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid backend config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("creating acquisition backend", "backend", cfg.Kind)

	switch cfg.Kind {
	case BackendMock:
		return NewMockBackend(), nil
	case BackendReplay:
		return NewReplayBackend(cfg.ReplayFiles, cfg.ReplayLoop, logger), nil
	default:
		return newPylonBackend(logger)
	}
}
