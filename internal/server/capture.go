package server

import (
	"context"
	"errors"
	"time"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-basler/pkg/basler"
)

const (
	// idleWait is the pause after a soft no-frame read.
	idleWait = 50 * time.Millisecond

	// retryWait is the pause after a failed open or read.
	retryWait = time.Second
)

// capture reads frames until ctx is done, encoding at most StreamFPS per
// second. Errors never stop the loop; the camera is released and reopened.
func (s *Server) capture(ctx context.Context) {
	img := gocv.NewMat()
	defer img.Close()

	interval := time.Second / time.Duration(max(s.cfg.StreamFPS, 1))
	var lastEncode time.Time

	for ctx.Err() == nil {
		ok, rgb, err := s.readOnce(&img)
		switch {
		case err != nil:
			if !errors.Is(err, basler.ErrTimeout) {
				s.logger.Warn("camera read failed, reopening", "error", err)
				s.mu.Lock()
				s.cam.Load().Release()
				s.mu.Unlock()
			}
			sleep(ctx, retryWait)
			continue
		case !ok:
			sleep(ctx, idleWait)
			continue
		}

		if time.Since(lastEncode) < interval {
			continue
		}
		lastEncode = time.Now()

		jpeg, err := basler.EncodeJPEG(img, s.cfg.JPEGQuality, rgb)
		if err != nil {
			s.logger.Warn("frame encode failed", "error", err)
			continue
		}
		s.publish(jpeg)
	}
}

func (s *Server) readOnce(img *gocv.Mat) (bool, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cam := s.cam.Load()
	opts := cam.Options()
	ok, err := cam.Read(img)
	return ok, opts.OutputIsRGB(), err
}

func (s *Server) publish(jpeg []byte) {
	s.latest.Store(&frame{jpeg: jpeg, seq: s.seq.Add(1), at: time.Now()})
	if s.frames.ClientCount() > 0 {
		s.frames.BroadcastFrame(jpeg)
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
