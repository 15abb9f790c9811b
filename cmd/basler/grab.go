package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gocv.io/x/gocv"

	"github.com/teslashibe/go-basler/internal/log"
	"github.com/teslashibe/go-basler/pkg/basler"
)

func newGrabCmd(f *flags) *cobra.Command {
	var (
		count int
		dir   string
		ext   string
	)

	cmd := &cobra.Command{
		Use:   "grab",
		Short: "Save frames to image files",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.load(cmd)
			if err != nil {
				return err
			}
			cam, _, err := openCamera(cfg, log.L())
			if err != nil {
				return err
			}
			paths, err := grab(cam, count, dir, ext, cfg.Camera.OutputIsRGB())
			for _, p := range paths {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return err
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 1, "number of frames")
	cmd.Flags().StringVarP(&dir, "output", "o", ".", "output directory")
	cmd.Flags().StringVar(&ext, "ext", ".png", "image file extension")
	return cmd
}

// grab writes up to count frames into dir and returns the written paths.
// A soft no-frame read ends the grab early without an error.
func grab(cam *basler.Camera, count int, dir, ext string, rgb bool) ([]string, error) {
	if count < 1 {
		return nil, fmt.Errorf("count must be positive, got %d", count)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	var paths []string
	err := cam.Use(func(c *basler.Camera) error {
		frame := gocv.NewMat()
		defer frame.Close()
		out := gocv.NewMat()
		defer out.Close()

		for i := 0; i < count; i++ {
			ok, err := c.Read(&frame)
			if err != nil {
				return err
			}
			if !ok {
				log.Warn("stream ended early", "written", len(paths), "requested", count)
				return nil
			}
			if err := basler.ToBGR(frame, &out, rgb); err != nil {
				return err
			}

			path := filepath.Join(dir, fmt.Sprintf("frame_%04d%s", i, ext))
			if !gocv.IMWrite(path, out) {
				return fmt.Errorf("write %s failed", path)
			}
			paths = append(paths, path)
		}
		return nil
	})
	return paths, err
}
