// Package server is the HTTP live view for one Basler camera.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/teslashibe/go-basler/internal/camera"
	"github.com/teslashibe/go-basler/internal/hub"
	"github.com/teslashibe/go-basler/internal/metrics"
	"github.com/teslashibe/go-basler/pkg/basler"
)

// Config configures the server.
type Config struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string

	// JPEGQuality for snapshots and streams (1-100).
	JPEGQuality int

	// StreamFPS caps how many frames per second are encoded.
	StreamFPS int
}

// frame is one encoded snapshot.
type frame struct {
	jpeg []byte
	seq  uint64
	at   time.Time
}

// Server captures from one camera and serves it over HTTP.
type Server struct {
	cfg     Config
	app     *fiber.App
	logger  *slog.Logger
	backend basler.Backend
	manager *camera.Manager

	// mu serializes Read against camera swaps. cam is also readable
	// without mu for Stats.
	mu  sync.Mutex
	cam atomic.Pointer[basler.Camera]

	latest atomic.Pointer[frame]
	seq    atomic.Uint64

	frames *hub.Hub
	status *hub.Hub

	registry *prometheus.Registry
}

// New builds the server and its routes. Nothing is opened until Run.
func New(cfg Config, backend basler.Backend, manager *camera.Manager, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "server")

	s := &Server{
		cfg:     cfg,
		logger:  logger,
		backend: backend,
		manager: manager,
		frames:  hub.New("frames", logger),
		status:  hub.New("status", logger),
	}
	s.cam.Store(s.newCamera(manager.Options()))
	s.registry = metrics.NewRegistry(s.Stats)
	manager.OnConfigChange = s.applyOptions

	app := fiber.New(fiber.Config{
		AppName:               "go-basler",
		DisableStartupMessage: true,
	})
	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/devices", s.handleDevices)
	api.Get("/config", s.handleGetConfig)
	api.Patch("/config", s.handlePatchConfig)
	api.Get("/presets", s.handlePresets)
	api.Get("/frame.jpg", s.handleSnapshot)

	app.Get("/stream.mjpeg", s.handleMJPEG)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler(s.registry)))

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/camera", websocket.New(s.handleCameraWS))
	app.Get("/ws/status", websocket.New(s.handleStatusWS))

	s.app = app
	return s
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Stats returns the statistics of the current camera.
func (s *Server) Stats() basler.Stats {
	return s.cam.Load().Stats()
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		s.mu.Lock()
		s.cam.Load().Release()
		s.mu.Unlock()
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve starts the hubs and capture loop, then serves ln until ctx is done.
// The camera is released before Serve returns.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go s.frames.Run(ctx)
	go s.status.Run(ctx)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.capture(ctx)
	}()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("live view listening", "addr", ln.Addr().String())
		errCh <- s.app.Listener(ln)
	}()

	var err error
	select {
	case <-ctx.Done():
	case err = <-errCh:
	}

	cancel()
	if shutdownErr := s.app.ShutdownWithTimeout(5 * time.Second); shutdownErr != nil && err == nil {
		err = shutdownErr
	}
	wg.Wait()

	s.mu.Lock()
	s.cam.Load().Release()
	s.mu.Unlock()

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *Server) newCamera(opts basler.Options) *basler.Camera {
	return basler.New(s.backend, opts, basler.WithLogger(s.logger))
}

// applyOptions swaps in a camera with new options. It opens lazily on the
// next capture iteration.
func (s *Server) applyOptions(opts basler.Options) error {
	s.mu.Lock()
	old := s.cam.Load()
	old.Release()
	s.cam.Store(s.newCamera(opts))
	s.mu.Unlock()

	s.logger.Info("camera options applied", "pixel_format", opts.PixelFormat, "device_index", opts.DeviceIndex)
	return s.status.BroadcastJSON(s.statusSnapshot())
}

// Latest returns the last encoded frame and its sequence number.
func (s *Server) Latest() ([]byte, uint64, bool) {
	f := s.latest.Load()
	if f == nil {
		return nil, 0, false
	}
	return f.jpeg, f.seq, true
}
