package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/teslashibe/go-basler/internal/config"
	"github.com/teslashibe/go-basler/internal/log"
	"github.com/teslashibe/go-basler/pkg/basler"
)

// flags holds the persistent command line flags. Only flags the user set
// override the configuration file.
type flags struct {
	configPath string

	backend    string
	replay     []string
	replayLoop bool

	device      int
	pixelFormat string
	exposure    int
	frameRate   float64
	resize      string
	timeoutMS   int

	logLevel  string
	logFormat string
}

func newRootCmd() *cobra.Command {
	return buildRootCmd(&flags{})
}

func buildRootCmd(f *flags) *cobra.Command {
	root := &cobra.Command{
		Use:           "basler",
		Short:         "Basler camera capture with a video-capture style API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&f.configPath, "config", "c", "", "configuration file (.toml, .yaml)")
	pf.StringVar(&f.backend, "backend", "", "acquisition backend: auto, pylon, replay, mock")
	pf.StringSliceVar(&f.replay, "replay", nil, "files for the replay backend (implies --backend replay)")
	pf.BoolVar(&f.replayLoop, "loop", false, "restart replay files at end of file")
	pf.IntVarP(&f.device, "device", "d", 0, "device index in enumeration order")
	pf.StringVar(&f.pixelFormat, "pixel-format", basler.DefaultPixelFormat, "pixel format, e.g. Mono8, BayerRG8")
	pf.IntVar(&f.exposure, "exposure", 0, "exposure time in microseconds")
	pf.Float64Var(&f.frameRate, "fps", 0, "acquisition frame rate")
	pf.StringVar(&f.resize, "resize", "", "output size WxH")
	pf.IntVar(&f.timeoutMS, "timeout-ms", basler.DefaultTimeoutMS, "frame retrieve timeout in milliseconds")
	pf.StringVar(&f.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&f.logFormat, "log-format", "", "log format: text, json")

	root.AddCommand(
		newLiveCmd(f),
		newGrabCmd(f),
		newDevicesCmd(f),
		newServeCmd(f),
	)
	return root
}

// load reads the configuration file, then applies the flags set on cmd.
func (f *flags) load(cmd *cobra.Command) (config.File, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return config.File{}, err
	}
	if err := f.apply(cmd.Flags(), &cfg); err != nil {
		return config.File{}, err
	}
	if err := cfg.Validate(); err != nil {
		return config.File{}, err
	}
	log.Init(cfg.Log)
	return cfg, nil
}

func (f *flags) apply(fs *pflag.FlagSet, cfg *config.File) error {
	changed := func(name string) bool {
		fl := fs.Lookup(name)
		return fl != nil && fl.Changed
	}

	if changed("backend") {
		cfg.Backend.Kind = basler.BackendKind(f.backend)
	}
	if changed("replay") {
		cfg.Backend.ReplayFiles = f.replay
		if !changed("backend") {
			cfg.Backend.Kind = basler.BackendReplay
		}
	}
	if changed("loop") {
		cfg.Backend.ReplayLoop = f.replayLoop
	}
	if changed("device") {
		cfg.Camera.DeviceIndex = f.device
	}
	if changed("pixel-format") {
		cfg.Camera.PixelFormat = f.pixelFormat
	}
	if changed("exposure") {
		cfg.Camera = cfg.Camera.WithExposure(f.exposure)
	}
	if changed("fps") {
		cfg.Camera = cfg.Camera.WithFrameRate(f.frameRate)
	}
	if changed("resize") {
		size, err := basler.ParseSize(f.resize)
		if err != nil {
			return fmt.Errorf("--resize: %w", err)
		}
		cfg.Camera.Resize = &size
	}
	if changed("timeout-ms") {
		cfg.Camera.TimeoutMS = f.timeoutMS
	}
	if changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if changed("log-format") {
		cfg.Log.Format = f.logFormat
	}
	return nil
}

// openCamera builds the backend and an unopened camera from cfg.
func openCamera(cfg config.File, logger *slog.Logger) (*basler.Camera, basler.Backend, error) {
	backend, err := basler.NewBackend(cfg.Backend, logger)
	if err != nil {
		return nil, nil, err
	}
	return basler.New(backend, cfg.Camera, basler.WithLogger(logger)), backend, nil
}
