package basler

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"
	"gocv.io/x/gocv"
)

// Camera adapts an acquisition Backend to the VideoCapture calling
// convention. A Camera is not safe for concurrent use; callers sharing one
// must serialize Open, Read and Release themselves.
type Camera struct {
	backend     Backend
	opts        Options
	conversion  Conversion
	transformer Transformer
	logger      *slog.Logger

	// device is non-nil iff the camera is open.
	device Device
	state  atomic.Pointer[sessionState]

	// Stats
	opens        atomic.Int64
	framesRead   atomic.Int64
	notGrabbing  atomic.Int64
	grabFailures atomic.Int64
	timeouts     atomic.Int64
	lastBlockID  atomic.Uint64
}

type sessionState struct {
	id     string
	device DeviceInfo
}

// Option configures a Camera.
type Option func(*Camera)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Camera) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTransformer replaces the image library used for conversion and resize.
func WithTransformer(t Transformer) Option {
	return func(c *Camera) {
		if t != nil {
			c.transformer = t
		}
	}
}

// New records the options and returns a closed Camera. No device I/O happens
// until Open or the first Read.
func New(backend Backend, opts Options, options ...Option) *Camera {
	c := &Camera{
		backend:     backend,
		opts:        opts,
		conversion:  ConversionFor(opts.PixelFormat),
		transformer: GocvTransformer{},
		logger:      slog.Default(),
	}
	for _, o := range options {
		o(c)
	}
	c.logger = c.logger.With("component", "basler", "backend", backend.Name())
	return c
}

// Options returns the construction options.
func (c *Camera) Options() Options {
	return c.opts
}

// Open binds the configured device, pushes pixel format, exposure and frame
// rate, and starts latest-image-only grabbing. Open on an open camera is a
// no-op. Backend errors are returned wrapped and stay matchable with errors.Is.
func (c *Camera) Open() error {
	if c.device != nil {
		return nil
	}

	devices, err := c.backend.Devices()
	if err != nil {
		return fmt.Errorf("enumerate devices: %w", err)
	}
	if c.opts.DeviceIndex < 0 || c.opts.DeviceIndex >= len(devices) {
		return fmt.Errorf("%w: index %d, %d attached", ErrDeviceNotFound, c.opts.DeviceIndex, len(devices))
	}
	info := devices[c.opts.DeviceIndex]

	dev, err := c.backend.Open(info)
	if err != nil {
		return fmt.Errorf("open device %d (%s): %w", info.Index, info.ModelName, err)
	}

	if err := c.configure(dev); err != nil {
		c.closeQuietly(dev)
		return err
	}

	if err := dev.StartGrabbing(GrabStrategyLatestImageOnly); err != nil {
		c.closeQuietly(dev)
		return fmt.Errorf("start grabbing: %w", err)
	}

	c.device = dev
	st := &sessionState{id: uuid.NewString(), device: info}
	c.state.Store(st)
	c.opens.Add(1)

	c.logger.Info("camera opened",
		"session", st.id,
		"device", info.ModelName,
		"serial", info.SerialNumber,
		"pixel_format", c.opts.PixelFormat,
		"conversion", c.conversion.String(),
	)
	return nil
}

// configure applies the options in order: pixel format, exposure, frame rate.
func (c *Camera) configure(dev Device) error {
	if c.opts.PixelFormat != "" {
		if err := dev.SetParameter(ParamPixelFormat, c.opts.PixelFormat); err != nil {
			return err
		}
	}
	if c.opts.ExposureTime != nil {
		if err := dev.SetParameter(ParamExposureTime, *c.opts.ExposureTime); err != nil {
			return err
		}
	}
	if c.opts.FrameRate != nil {
		if err := dev.SetParameter(ParamFrameRateEnable, true); err != nil {
			return err
		}
		if err := dev.SetParameter(ParamFrameRate, *c.opts.FrameRate); err != nil {
			return err
		}
	}
	return nil
}

// IsOpened reports whether the camera holds a device.
func (c *Camera) IsOpened() bool {
	return c.device != nil
}

// Read grabs the newest frame into dst. A closed camera is opened first.
//
// It returns (false, nil) when the device is not grabbing or the grab
// failed; the caller may simply read again. A retrieve timeout or a
// conversion failure is returned as an error.
func (c *Camera) Read(dst *gocv.Mat) (bool, error) {
	if dst == nil {
		return false, errors.New("basler: nil destination mat")
	}
	if !c.IsOpened() {
		if err := c.Open(); err != nil {
			return false, err
		}
	}

	if !c.device.IsGrabbing() {
		c.notGrabbing.Add(1)
		return false, nil
	}

	res, err := c.device.RetrieveResult(c.opts.Timeout())
	if err != nil {
		if errors.Is(err, ErrTimeout) {
			c.timeouts.Add(1)
		}
		return false, fmt.Errorf("retrieve frame: %w", err)
	}
	defer res.Release()

	if !res.GrabSucceeded() {
		c.grabFailures.Add(1)
		c.logger.Debug("grab failed", "block_id", res.BlockID(), "reason", res.ErrorDescription())
		return false, nil
	}

	if err := c.deliver(res, dst); err != nil {
		return false, err
	}

	c.framesRead.Add(1)
	c.lastBlockID.Store(res.BlockID())
	return true, nil
}

// deliver copies the leased buffer out, converts and resizes it, and leaves
// the result in dst. Nothing in dst references the lease afterwards.
func (c *Camera) deliver(res GrabResult, dst *gocv.Mat) error {
	buf := res.Buffer()
	w, h := res.Width(), res.Height()
	if w <= 0 || h <= 0 || len(buf) == 0 {
		return fmt.Errorf("basler: empty frame buffer (%dx%d, %d bytes)", w, h, len(buf))
	}

	mt := matTypeFor(res.PixelFormat(), w, h, len(buf))
	if need := w * h * matChannels(mt); len(buf) < need {
		return fmt.Errorf("%w: %s %dx%d needs %d bytes, got %d", ErrShortFrame, res.PixelFormat(), w, h, need, len(buf))
	}

	raw, err := gocv.NewMatFromBytes(h, w, mt, buf)
	if err != nil {
		return fmt.Errorf("wrap frame buffer: %w", err)
	}
	defer raw.Close()

	cur := raw

	converted := gocv.NewMat()
	defer converted.Close()
	if c.conversion.IsBayer() {
		if err := c.transformer.ConvertBayer(cur, &converted, c.conversion); err != nil {
			return err
		}
		cur = converted
	}

	resized := gocv.NewMat()
	defer resized.Close()
	if c.opts.Resize != nil {
		if err := c.transformer.Resize(cur, &resized, *c.opts.Resize); err != nil {
			return err
		}
		cur = resized
	}

	cur.CopyTo(dst)
	return nil
}

// Release stops grabbing and closes the device. Releasing a closed camera
// is a no-op. Teardown failures are logged, never returned.
func (c *Camera) Release() {
	if c.device == nil {
		return
	}
	dev := c.device
	c.device = nil
	st := c.state.Swap(nil)

	if err := dev.StopGrabbing(); err != nil {
		c.logger.Warn("stop grabbing failed", "error", err)
	}
	c.closeQuietly(dev)

	attrs := []any{"frames", c.framesRead.Load()}
	if st != nil {
		attrs = append(attrs, "session", st.id)
	}
	c.logger.Info("camera released", attrs...)
}

// Close calls Release. It always returns nil.
func (c *Camera) Close() error {
	c.Release()
	return nil
}

// Use opens the camera, runs fn and releases the camera on every exit path.
// fn's error is returned unchanged.
func (c *Camera) Use(fn func(*Camera) error) error {
	if err := c.Open(); err != nil {
		return err
	}
	defer c.Release()
	return fn(c)
}

func (c *Camera) closeQuietly(dev Device) {
	if err := dev.Close(); err != nil {
		c.logger.Warn("device close failed", "error", err)
	}
}

// Stats contains counters about the camera session.
type Stats struct {
	// Open indicates if the camera currently holds a device.
	Open bool `json:"open"`

	// Session is the id of the current open session, empty when closed.
	Session string `json:"session,omitempty"`

	// Device is the bound device, zero when closed.
	Device DeviceInfo `json:"device"`

	// Backend is the name of the acquisition backend.
	Backend string `json:"backend"`

	// Opens is how many times the device was opened.
	Opens int64 `json:"opens"`

	// FramesRead is the number of frames delivered.
	FramesRead int64 `json:"frames_read"`

	// NotGrabbing counts reads that found acquisition stopped.
	NotGrabbing int64 `json:"not_grabbing"`

	// GrabFailures counts frames the sensor reported as failed.
	GrabFailures int64 `json:"grab_failures"`

	// Timeouts counts retrieves that hit the timeout.
	Timeouts int64 `json:"timeouts"`

	// LastBlockID is the sequence number of the last delivered frame.
	LastBlockID uint64 `json:"last_block_id"`
}

// Stats returns camera statistics. It is safe to call from any goroutine.
func (c *Camera) Stats() Stats {
	s := Stats{
		Backend:      c.backend.Name(),
		Opens:        c.opens.Load(),
		FramesRead:   c.framesRead.Load(),
		NotGrabbing:  c.notGrabbing.Load(),
		GrabFailures: c.grabFailures.Load(),
		Timeouts:     c.timeouts.Load(),
		LastBlockID:  c.lastBlockID.Load(),
	}
	if st := c.state.Load(); st != nil {
		s.Open = true
		s.Session = st.id
		s.Device = st.device
	}
	return s
}

// Ensure Camera implements VideoCapture.
var _ VideoCapture = (*Camera)(nil)
