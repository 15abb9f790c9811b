package main

import (
	"github.com/spf13/cobra"
	"gocv.io/x/gocv"

	"github.com/teslashibe/go-basler/internal/log"
	"github.com/teslashibe/go-basler/pkg/basler"
)

const keyEsc = 27

func newLiveCmd(f *flags) *cobra.Command {
	var title string

	cmd := &cobra.Command{
		Use:   "live",
		Short: "Show frames in a window until ESC or the stream ends",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.load(cmd)
			if err != nil {
				return err
			}
			cam, _, err := openCamera(cfg, log.L())
			if err != nil {
				return err
			}

			window := gocv.NewWindow(title)
			defer window.Close()

			rgb := cfg.Camera.OutputIsRGB()
			return cam.Use(func(c *basler.Camera) error {
				frame := gocv.NewMat()
				defer frame.Close()
				shown := gocv.NewMat()
				defer shown.Close()

				for {
					ok, err := c.Read(&frame)
					if err != nil {
						return err
					}
					if !ok {
						log.Info("no frame, stopping")
						return nil
					}
					if err := basler.ToBGR(frame, &shown, rgb); err != nil {
						return err
					}
					window.IMShow(shown)
					if window.WaitKey(1) == keyEsc {
						return nil
					}
				}
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "Live", "window title")
	return cmd
}
