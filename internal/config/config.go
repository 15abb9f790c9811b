// Package config loads go-basler configuration files.
//
// Precedence is CLI flags > BASLER_* environment > file > defaults. Flags
// are applied by the caller after Load.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-basler/internal/log"
	"github.com/teslashibe/go-basler/pkg/basler"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "BASLER_"

// Default server values.
const (
	DefaultAddr        = ":8080"
	DefaultJPEGQuality = 80
	DefaultStreamFPS   = 15
)

// Server configures the HTTP live view.
type Server struct {
	Addr        string `yaml:"addr" toml:"addr" json:"addr"`
	JPEGQuality int    `yaml:"jpeg_quality" toml:"jpeg_quality" json:"jpeg_quality"`
	// StreamFPS caps how often frames are pushed to viewers.
	StreamFPS int `yaml:"stream_fps" toml:"stream_fps" json:"stream_fps"`
}

// File is the on-disk configuration.
type File struct {
	Backend basler.BackendConfig `yaml:"backend" toml:"backend" json:"backend"`
	Camera  basler.Options       `yaml:"camera" toml:"camera" json:"camera"`
	Server  Server               `yaml:"server" toml:"server" json:"server"`
	Log     log.Config           `yaml:"log" toml:"log" json:"log"`
}

// Default returns the configuration used when no file is given.
func Default() File {
	return File{
		Backend: basler.BackendConfig{Kind: basler.BackendAuto},
		Camera:  basler.DefaultOptions(),
		Server: Server{
			Addr:        DefaultAddr,
			JPEGQuality: DefaultJPEGQuality,
			StreamFPS:   DefaultStreamFPS,
		},
		Log: log.Config{Level: "info"},
	}
}

// Validate checks every section.
func (f *File) Validate() error {
	if err := f.Backend.Validate(); err != nil {
		return fmt.Errorf("backend: %w", err)
	}
	if err := f.Camera.Validate(); err != nil {
		return fmt.Errorf("camera: %w", err)
	}
	if f.Server.JPEGQuality < 1 || f.Server.JPEGQuality > 100 {
		return fmt.Errorf("server: jpeg_quality must be between 1 and 100, got %d", f.Server.JPEGQuality)
	}
	if f.Server.StreamFPS < 1 {
		return fmt.Errorf("server: stream_fps must be positive, got %d", f.Server.StreamFPS)
	}
	return nil
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (File, error) {
	cfg := Default()
	if path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return File{}, err
		}
	}
	if err := ApplyEnv(&cfg); err != nil {
		return File{}, err
	}
	if err := cfg.Validate(); err != nil {
		return File{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func decodeFile(path string, cfg *File) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		return fmt.Errorf("config %s: unsupported extension (want .toml, .yaml or .yml)", path)
	}
	if err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides cfg with any BASLER_* variables that are set.
func ApplyEnv(cfg *File) error {
	var errs []error

	if v := env("BACKEND"); v != "" {
		cfg.Backend.Kind = basler.BackendKind(v)
	}
	if v := env("REPLAY_FILES"); v != "" {
		cfg.Backend.ReplayFiles = splitList(v)
	}
	if v := env("REPLAY_LOOP"); v != "" {
		b, err := strconv.ParseBool(v)
		errs = append(errs, envErr("REPLAY_LOOP", err))
		cfg.Backend.ReplayLoop = b
	}

	if v := env("DEVICE_INDEX"); v != "" {
		i, err := strconv.Atoi(v)
		errs = append(errs, envErr("DEVICE_INDEX", err))
		cfg.Camera.DeviceIndex = i
	}
	if v, ok := os.LookupEnv(EnvPrefix + "PIXEL_FORMAT"); ok {
		cfg.Camera.PixelFormat = v
	}
	if v := env("EXPOSURE_TIME"); v != "" {
		i, err := strconv.Atoi(v)
		errs = append(errs, envErr("EXPOSURE_TIME", err))
		if err == nil {
			cfg.Camera.ExposureTime = &i
		}
	}
	if v := env("FRAME_RATE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		errs = append(errs, envErr("FRAME_RATE", err))
		if err == nil {
			cfg.Camera.FrameRate = &f
		}
	}
	if v := env("RESIZE"); v != "" {
		s, err := basler.ParseSize(v)
		errs = append(errs, envErr("RESIZE", err))
		if err == nil {
			cfg.Camera.Resize = &s
		}
	}
	if v := env("TIMEOUT_MS"); v != "" {
		i, err := strconv.Atoi(v)
		errs = append(errs, envErr("TIMEOUT_MS", err))
		cfg.Camera.TimeoutMS = i
	}

	if v := env("ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := env("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := env("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}

	return errors.Join(errs...)
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(EnvPrefix + key))
}

func envErr(key string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
