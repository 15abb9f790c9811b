package basler

import (
	"errors"
	"fmt"

	"gocv.io/x/gocv"
)

// VideoCapture is the open/read/release contract shared by every frame
// source, so callers can swap a Basler camera for a webcam, a file or a fake.
type VideoCapture interface {
	// Open acquires the source. Opening an open source is a no-op.
	Open() error

	// IsOpened reports whether the source is held.
	IsOpened() bool

	// Read fills dst with the next frame. (false, nil) means no frame is
	// ready right now; an error means the source is broken.
	Read(dst *gocv.Mat) (bool, error)

	// Release frees the source. It is safe to call Release multiple times.
	Release()
}

// Use opens vc, runs fn and releases vc on every exit path, including a
// panic in fn. fn's error is returned unchanged.
func Use(vc VideoCapture, fn func(VideoCapture) error) error {
	if err := vc.Open(); err != nil {
		return err
	}
	defer vc.Release()
	return fn(vc)
}

// GocvCapture wraps gocv.VideoCapture (UVC webcams, video files, streams)
// in the VideoCapture contract.
type GocvCapture struct {
	source any
	resize *Size
	vc     *gocv.VideoCapture
}

// NewGocvCapture records a gocv capture source (a device id or a file/URL)
// without opening it. A non-nil resize scales every frame.
func NewGocvCapture(source any, resize *Size) *GocvCapture {
	return &GocvCapture{source: source, resize: resize}
}

// Open implements VideoCapture.
func (g *GocvCapture) Open() error {
	if g.vc != nil {
		return nil
	}
	vc, err := gocv.OpenVideoCapture(g.source)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceNotFound, err)
	}
	g.vc = vc
	return nil
}

// IsOpened implements VideoCapture.
func (g *GocvCapture) IsOpened() bool {
	return g.vc != nil
}

// Read implements VideoCapture.
func (g *GocvCapture) Read(dst *gocv.Mat) (bool, error) {
	if dst == nil {
		return false, errors.New("basler: nil destination mat")
	}
	if g.vc == nil {
		if err := g.Open(); err != nil {
			return false, err
		}
	}
	if !g.vc.Read(dst) || dst.Empty() {
		return false, nil
	}
	if g.resize != nil {
		resized := gocv.NewMat()
		defer resized.Close()
		if err := (GocvTransformer{}).Resize(*dst, &resized, *g.resize); err != nil {
			return false, err
		}
		resized.CopyTo(dst)
	}
	return true, nil
}

// Release implements VideoCapture.
func (g *GocvCapture) Release() {
	if g.vc == nil {
		return
	}
	g.vc.Close()
	g.vc = nil
}

var _ VideoCapture = (*GocvCapture)(nil)
