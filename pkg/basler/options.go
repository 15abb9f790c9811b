package basler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Default option values.
const (
	DefaultPixelFormat = PixelFormatMono8
	DefaultTimeoutMS   = 5000
)

// Size is a frame size in pixels.
type Size struct {
	Width  int `yaml:"width" toml:"width" json:"width"`
	Height int `yaml:"height" toml:"height" json:"height"`
}

// String returns "WxH".
func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// ParseSize parses "WxH", e.g. "640x480".
func ParseSize(s string) (Size, error) {
	w, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return Size{}, fmt.Errorf("size %q: want WxH", s)
	}
	width, err := strconv.Atoi(w)
	if err != nil {
		return Size{}, fmt.Errorf("size %q: width: %w", s, err)
	}
	height, err := strconv.Atoi(h)
	if err != nil {
		return Size{}, fmt.Errorf("size %q: height: %w", s, err)
	}
	if width <= 0 || height <= 0 {
		return Size{}, fmt.Errorf("size %q: must be positive", s)
	}
	return Size{Width: width, Height: height}, nil
}

// Options holds the construction parameters of a Camera.
// They are stored by New and pushed to the device on Open.
type Options struct {
	// DeviceIndex selects the device in backend enumeration order.
	// Default: 0 (first device)
	DeviceIndex int `yaml:"device_index" toml:"device_index" json:"device_index"`

	// PixelFormat is the pylon pixel format tag, e.g. "Mono8" or "BayerRG8".
	// Empty leaves the device's current format untouched.
	PixelFormat string `yaml:"pixel_format" toml:"pixel_format" json:"pixel_format"`

	// ExposureTime in microseconds. Nil keeps the device value.
	ExposureTime *int `yaml:"exposure_time,omitempty" toml:"exposure_time,omitempty" json:"exposure_time,omitempty"`

	// FrameRate in frames per second. Nil leaves acquisition free running.
	FrameRate *float64 `yaml:"frame_rate,omitempty" toml:"frame_rate,omitempty" json:"frame_rate,omitempty"`

	// Resize scales every frame to this size. Nil keeps the sensor size.
	Resize *Size `yaml:"resize,omitempty" toml:"resize,omitempty" json:"resize,omitempty"`

	// TimeoutMS bounds a single frame retrieve.
	// Default: 5000
	TimeoutMS int `yaml:"timeout_ms" toml:"timeout_ms" json:"timeout_ms"`
}

// DefaultOptions returns Options with the documented defaults.
func DefaultOptions() Options {
	return Options{
		DeviceIndex: 0,
		PixelFormat: DefaultPixelFormat,
		TimeoutMS:   DefaultTimeoutMS,
	}
}

// Validate checks the values that can be checked without a device.
func (o *Options) Validate() error {
	if o.DeviceIndex < 0 {
		return fmt.Errorf("device_index must be non-negative, got %d", o.DeviceIndex)
	}
	if o.ExposureTime != nil && *o.ExposureTime <= 0 {
		return fmt.Errorf("exposure_time must be positive, got %d", *o.ExposureTime)
	}
	if o.FrameRate != nil && *o.FrameRate <= 0 {
		return fmt.Errorf("frame_rate must be positive, got %g", *o.FrameRate)
	}
	if o.Resize != nil && (o.Resize.Width <= 0 || o.Resize.Height <= 0) {
		return fmt.Errorf("resize must have positive width and height, got %s", o.Resize)
	}
	if o.TimeoutMS <= 0 {
		return fmt.Errorf("timeout_ms must be positive, got %d", o.TimeoutMS)
	}
	return nil
}

// Timeout returns TimeoutMS as a duration.
func (o *Options) Timeout() time.Duration {
	return time.Duration(o.TimeoutMS) * time.Millisecond
}

// Conversion returns the color conversion implied by PixelFormat.
func (o *Options) Conversion() Conversion {
	return ConversionFor(o.PixelFormat)
}

// WithExposure returns a copy with ExposureTime set.
func (o Options) WithExposure(us int) Options {
	o.ExposureTime = &us
	return o
}

// WithFrameRate returns a copy with FrameRate set.
func (o Options) WithFrameRate(fps float64) Options {
	o.FrameRate = &fps
	return o
}

// WithResize returns a copy with Resize set.
func (o Options) WithResize(width, height int) Options {
	o.Resize = &Size{Width: width, Height: height}
	return o
}
