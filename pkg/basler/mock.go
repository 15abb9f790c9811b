package basler

import (
	"fmt"
	"sync"
	"time"
)

// MockBackend is an in-memory Backend for tests and demos.
// It synthesizes gradient frames and records every device call.
type MockBackend struct {
	// DeviceList is returned by Devices. Defaults to one camera.
	DeviceList []DeviceInfo

	// Width and Height of generated frames.
	Width  int
	Height int

	// SetParameterFunc overrides parameter validation when set.
	SetParameterFunc func(p Parameter, value any) error

	// GrabFailFunc marks a frame as failed when it returns true.
	GrabFailFunc func(blockID uint64) bool

	// BufferFunc rewrites the pixel buffer of each successful frame.
	BufferFunc func(blockID uint64, buf []byte) []byte

	// Stall makes RetrieveResult wait out its timeout without a frame.
	Stall bool

	mu      sync.Mutex
	calls   []MockCall
	devices []*MockDevice
	leases  int
}

// MockCall records a method invocation for verification.
type MockCall struct {
	Method    string
	Parameter Parameter
	Value     any
	Time      time.Time
}

// NewMockBackend creates a mock with one 64x48 device.
func NewMockBackend() *MockBackend {
	return &MockBackend{
		DeviceList: []DeviceInfo{{
			Index:        0,
			ModelName:    "acA1920-40uc (mock)",
			SerialNumber: "00000000",
			FullName:     "mock://0",
		}},
		Width:  64,
		Height: 48,
	}
}

// Name returns "mock".
func (m *MockBackend) Name() string {
	return "mock"
}

// Devices returns DeviceList.
func (m *MockBackend) Devices() ([]DeviceInfo, error) {
	m.record("Devices", "", nil)
	out := make([]DeviceInfo, len(m.DeviceList))
	copy(out, m.DeviceList)
	return out, nil
}

// Open returns a new MockDevice.
func (m *MockBackend) Open(info DeviceInfo) (Device, error) {
	m.record("Open", "", info.Index)
	d := &MockDevice{
		backend:     m,
		info:        info,
		pixelFormat: PixelFormatMono8,
	}
	m.mu.Lock()
	m.devices = append(m.devices, d)
	m.mu.Unlock()
	return d, nil
}

// Calls returns the recorded calls.
func (m *MockBackend) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many times a method was invoked.
func (m *MockBackend) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// LastDevice returns the most recently opened device, or nil.
func (m *MockBackend) LastDevice() *MockDevice {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.devices) == 0 {
		return nil
	}
	return m.devices[len(m.devices)-1]
}

// OutstandingLeases returns the number of grab results not yet released.
func (m *MockBackend) OutstandingLeases() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.leases
}

func (m *MockBackend) record(method string, p Parameter, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{Method: method, Parameter: p, Value: value, Time: time.Now()})
}

func (m *MockBackend) lease(delta int) {
	m.mu.Lock()
	m.leases += delta
	m.mu.Unlock()
}

// MockDevice is a Device returned by MockBackend.
type MockDevice struct {
	backend *MockBackend
	info    DeviceInfo

	mu          sync.Mutex
	closed      bool
	grabbing    bool
	strategy    GrabStrategy
	pixelFormat string
	exposure    int
	rateEnabled bool
	frameRate   float64
	nextBlock   uint64
	lastFrame   time.Time
}

// SetParameter validates and stores a feature value.
func (d *MockDevice) SetParameter(p Parameter, value any) error {
	d.backend.record("SetParameter", p, value)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	if f := d.backend.SetParameterFunc; f != nil {
		if err := f(p, value); err != nil {
			return err
		}
	}

	switch p {
	case ParamPixelFormat:
		v, ok := value.(string)
		if !ok {
			return invalidParameter(p, value, "want string")
		}
		switch v {
		case PixelFormatMono8, PixelFormatBayerRG8, PixelFormatBayerBG8,
			PixelFormatBayerGR8, PixelFormatBayerGB8, PixelFormatRGB8, PixelFormatBGR8:
			d.pixelFormat = v
		default:
			return invalidParameter(p, value, "unsupported pixel format")
		}
	case ParamExposureTime:
		v, ok := value.(int)
		if !ok || v <= 0 {
			return invalidParameter(p, value, "want positive int microseconds")
		}
		d.exposure = v
	case ParamFrameRateEnable:
		v, ok := value.(bool)
		if !ok {
			return invalidParameter(p, value, "want bool")
		}
		d.rateEnabled = v
	case ParamFrameRate:
		v, ok := value.(float64)
		if !ok || v <= 0 {
			return invalidParameter(p, value, "want positive float64")
		}
		if !d.rateEnabled {
			return invalidParameter(p, value, "frame rate control disabled")
		}
		d.frameRate = v
	default:
		return invalidParameter(p, value, "unknown parameter")
	}
	return nil
}

// StartGrabbing implements Device.
func (d *MockDevice) StartGrabbing(strategy GrabStrategy) error {
	d.backend.record("StartGrabbing", "", strategy)
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	d.grabbing = true
	d.strategy = strategy
	return nil
}

// StopGrabbing implements Device.
func (d *MockDevice) StopGrabbing() error {
	d.backend.record("StopGrabbing", "", nil)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.grabbing = false
	return nil
}

// IsGrabbing implements Device.
func (d *MockDevice) IsGrabbing() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.grabbing
}

// Strategy returns the strategy passed to StartGrabbing.
func (d *MockDevice) Strategy() GrabStrategy {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.strategy
}

// PixelFormat returns the configured pixel format.
func (d *MockDevice) PixelFormat() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pixelFormat
}

// RetrieveResult synthesizes the next frame. With a frame rate set it paces
// frames at that rate, waiting at most timeout.
func (d *MockDevice) RetrieveResult(timeout time.Duration) (GrabResult, error) {
	d.backend.record("RetrieveResult", "", timeout)

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, ErrClosed
	}
	if d.backend.Stall {
		d.mu.Unlock()
		time.Sleep(timeout)
		return nil, fmt.Errorf("%w after %v", ErrTimeout, timeout)
	}

	var wait time.Duration
	if d.rateEnabled && d.frameRate > 0 && !d.lastFrame.IsZero() {
		period := time.Duration(float64(time.Second) / d.frameRate)
		wait = time.Until(d.lastFrame.Add(period))
	}
	d.mu.Unlock()

	if wait > timeout {
		time.Sleep(timeout)
		return nil, fmt.Errorf("%w after %v", ErrTimeout, timeout)
	}
	if wait > 0 {
		time.Sleep(wait)
	}

	d.mu.Lock()
	d.nextBlock++
	block := d.nextBlock
	d.lastFrame = time.Now()
	format := d.pixelFormat
	d.mu.Unlock()

	res := &mockResult{
		backend:     d.backend,
		width:       d.backend.Width,
		height:      d.backend.Height,
		pixelFormat: format,
		blockID:     block,
		succeeded:   true,
	}
	if f := d.backend.GrabFailFunc; f != nil && f(block) {
		res.succeeded = false
		res.errDesc = "mock: frame dropped by sensor"
	} else {
		res.buffer = gradient(res.width, res.height, bytesPerPixel(format), block)
		if f := d.backend.BufferFunc; f != nil {
			res.buffer = f(block, res.buffer)
		}
	}
	d.backend.lease(1)
	return res, nil
}

// Close implements Device.
func (d *MockDevice) Close() error {
	d.backend.record("Close", "", nil)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.grabbing = false
	return nil
}

// Closed reports whether Close was called.
func (d *MockDevice) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

type mockResult struct {
	backend     *MockBackend
	width       int
	height      int
	pixelFormat string
	blockID     uint64
	buffer      []byte
	succeeded   bool
	errDesc     string
	released    bool
}

func (r *mockResult) GrabSucceeded() bool      { return r.succeeded }
func (r *mockResult) ErrorDescription() string { return r.errDesc }
func (r *mockResult) Width() int               { return r.width }
func (r *mockResult) Height() int              { return r.height }
func (r *mockResult) PixelFormat() string      { return r.pixelFormat }
func (r *mockResult) Buffer() []byte           { return r.buffer }
func (r *mockResult) BlockID() uint64          { return r.blockID }

func (r *mockResult) Release() {
	if r.released {
		return
	}
	r.released = true
	r.buffer = nil
	r.backend.lease(-1)
}

// gradient fills a packed buffer with a diagonal ramp shifted per frame.
func gradient(width, height, bpp int, shift uint64) []byte {
	buf := make([]byte, width*height*bpp)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := byte(uint64(x+y) + shift)
			i := (y*width + x) * bpp
			for c := 0; c < bpp; c++ {
				buf[i+c] = v + byte(c*85)
			}
		}
	}
	return buf
}

// Ensure MockBackend implements Backend.
var _ Backend = (*MockBackend)(nil)
