package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-basler/internal/camera"
	"github.com/teslashibe/go-basler/internal/config"
	"github.com/teslashibe/go-basler/internal/log"
	"github.com/teslashibe/go-basler/internal/server"
	"github.com/teslashibe/go-basler/pkg/basler"
)

func newServeCmd(f *flags) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a live view, snapshots and metrics over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.load(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}
			logger := log.With("cmd", "serve")

			backend, err := basler.NewBackend(cfg.Backend, logger)
			if err != nil {
				return err
			}
			manager := camera.NewManager(cfg.Camera)
			srv := server.New(server.Config{
				Addr:        cfg.Server.Addr,
				JPEGQuality: cfg.Server.JPEGQuality,
				StreamFPS:   cfg.Server.StreamFPS,
			}, backend, manager, logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if f.configPath != "" {
				// Reloaded files go through the same flag overrides as startup.
				w := config.NewWatcher(f.configPath, func(path string) (config.File, error) {
					next, err := config.Load(path)
					if err != nil {
						return next, err
					}
					return next, f.apply(cmd.Flags(), &next)
				}, logger)
				w.OnReload(func(next config.File) {
					if err := manager.SetOptions(next.Camera); err != nil {
						logger.Warn("reloaded camera options rejected", "error", err)
					}
				})
				if err := w.Start(ctx); err != nil {
					logger.Warn("config watch disabled", "error", err)
				} else {
					defer w.Stop()
				}
			}

			return srv.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", config.DefaultAddr, "listen address")
	return cmd
}
