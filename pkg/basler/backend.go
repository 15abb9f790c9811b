package basler

import (
	"io"
	"time"
)

// Parameter names a device feature written during Open.
// Values follow the GenICam standard feature naming used by pylon.
type Parameter string

const (
	// ParamPixelFormat selects the sensor output encoding (string).
	ParamPixelFormat Parameter = "PixelFormat"
	// ParamExposureTime sets the exposure in microseconds (int).
	ParamExposureTime Parameter = "ExposureTime"
	// ParamFrameRateEnable turns acquisition frame rate control on or off (bool).
	ParamFrameRateEnable Parameter = "AcquisitionFrameRateEnable"
	// ParamFrameRate sets the target acquisition frame rate in Hz (float64).
	ParamFrameRate Parameter = "AcquisitionFrameRate"
)

// GrabStrategy selects how a device hands queued frames to RetrieveResult.
type GrabStrategy int

const (
	// GrabStrategyLatestImageOnly keeps only the newest frame and drops
	// anything the caller has not retrieved yet.
	GrabStrategyLatestImageOnly GrabStrategy = iota
	// GrabStrategyOneByOne delivers frames in acquisition order.
	GrabStrategyOneByOne
)

// String returns the pylon name of the strategy.
func (s GrabStrategy) String() string {
	switch s {
	case GrabStrategyLatestImageOnly:
		return "LatestImageOnly"
	case GrabStrategyOneByOne:
		return "OneByOne"
	default:
		return "Unknown"
	}
}

// DeviceInfo describes an enumerated device.
type DeviceInfo struct {
	Index        int    `json:"index"`
	ModelName    string `json:"model_name"`
	SerialNumber string `json:"serial_number"`
	FullName     string `json:"full_name"`
}

// Backend enumerates and opens acquisition devices.
type Backend interface {
	// Devices lists the devices currently attached, in enumeration order.
	Devices() ([]DeviceInfo, error)

	// Open binds and opens the given device for control and streaming.
	Open(info DeviceInfo) (Device, error)

	// Name returns the backend name (e.g., "pylon", "replay", "mock").
	Name() string
}

// Device is an opened acquisition device.
// A Device is owned by one Camera and is not safe for concurrent use.
type Device interface {
	// SetParameter writes a feature value. A rejected value returns a
	// *ParameterError wrapping ErrInvalidParameter.
	SetParameter(p Parameter, value any) error

	// StartGrabbing begins continuous acquisition.
	StartGrabbing(strategy GrabStrategy) error

	// StopGrabbing halts acquisition.
	// It is safe to call StopGrabbing multiple times.
	StopGrabbing() error

	// IsGrabbing reports whether acquisition is running.
	IsGrabbing() bool

	// RetrieveResult blocks until a frame is ready or the timeout elapses.
	// A timeout returns ErrTimeout.
	RetrieveResult(timeout time.Duration) (GrabResult, error)

	// Close releases the device.
	io.Closer
}

// GrabResult is a lease on one grabbed frame. The buffer stays valid only
// until Release is called.
type GrabResult interface {
	// GrabSucceeded reports whether the sensor delivered the frame intact.
	GrabSucceeded() bool

	// ErrorDescription explains a failed grab.
	ErrorDescription() string

	// Width and Height are the frame dimensions in pixels.
	Width() int
	Height() int

	// PixelFormat is the encoding of Buffer.
	PixelFormat() string

	// Buffer is the packed pixel data, owned by the backend.
	Buffer() []byte

	// BlockID is the backend-assigned frame sequence number.
	BlockID() uint64

	// Release returns the buffer to the backend.
	Release()
}
