//go:build pylon && cgo

package basler

/*
#cgo CFLAGS: -I/opt/pylon/include
#cgo LDFLAGS: -L/opt/pylon/lib -Wl,-rpath,/opt/pylon/lib -lpylonc
#include <stdlib.h>
#include <pylonc/PylonC.h>

static void pylonLastError(char* buf, size_t len) {
	size_t n = len;
	buf[0] = 0;
	GenApiGetLastErrorMessage(buf, &n);
}
*/
import "C"

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unsafe"
)

const pylonNumBuffers = 5

var (
	pylonInitOnce sync.Once
	pylonInitErr  error
)

// PylonBackend drives Basler cameras through the pylon C SDK.
type PylonBackend struct {
	logger *slog.Logger
}

// NewPylonBackend initializes the pylon runtime once per process.
func NewPylonBackend(logger *slog.Logger) (*PylonBackend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pylonInitOnce.Do(func() {
		pylonInitErr = pylonCheck(C.PylonInitialize(), "PylonInitialize")
	})
	if pylonInitErr != nil {
		return nil, pylonInitErr
	}
	return &PylonBackend{logger: logger}, nil
}

// Name returns "pylon".
func (b *PylonBackend) Name() string {
	return "pylon"
}

// Devices enumerates attached cameras.
func (b *PylonBackend) Devices() ([]DeviceInfo, error) {
	var n C.size_t
	if err := pylonCheck(C.PylonEnumerateDevices(&n), "PylonEnumerateDevices"); err != nil {
		return nil, err
	}
	out := make([]DeviceInfo, 0, int(n))
	for i := 0; i < int(n); i++ {
		var di C.PylonDeviceInfo_t
		if err := pylonCheck(C.PylonGetDeviceInfo(C.size_t(i), &di), "PylonGetDeviceInfo"); err != nil {
			return nil, err
		}
		out = append(out, DeviceInfo{
			Index:        i,
			ModelName:    C.GoString(&di.ModelName[0]),
			SerialNumber: C.GoString(&di.SerialNumber[0]),
			FullName:     C.GoString(&di.FullName[0]),
		})
	}
	return out, nil
}

// Open creates and opens the device at info.Index.
func (b *PylonBackend) Open(info DeviceInfo) (Device, error) {
	var h C.PYLON_DEVICE_HANDLE
	if err := pylonCheck(C.PylonCreateDeviceByIndex(C.size_t(info.Index), &h), "PylonCreateDeviceByIndex"); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceNotFound, err)
	}
	if err := pylonCheck(C.PylonDeviceOpen(h, C.PYLONC_ACCESS_MODE_CONTROL|C.PYLONC_ACCESS_MODE_STREAM), "PylonDeviceOpen"); err != nil {
		C.PylonDestroyDevice(h)
		return nil, err
	}
	return &pylonDevice{
		dev:    h,
		logger: b.logger.With("serial", info.SerialNumber),
	}, nil
}

type pylonBuffer struct {
	mem    unsafe.Pointer
	handle C.PYLON_STREAMBUFFER_HANDLE
}

type pylonDevice struct {
	dev    C.PYLON_DEVICE_HANDLE
	logger *slog.Logger

	mu          sync.Mutex
	grabber     C.PYLON_STREAMGRABBER_HANDLE
	wait        C.PYLON_WAITOBJECT_HANDLE
	buffers     []pylonBuffer
	grabbing    bool
	strategy    GrabStrategy
	pixelFormat string
	closed      bool
}

// featureName picks the first writable name; GigE models use the *Abs variants.
func (d *pylonDevice) featureName(names ...string) (*C.char, bool) {
	for _, n := range names {
		cn := C.CString(n)
		if bool(C.PylonDeviceFeatureIsWritable(d.dev, cn)) {
			return cn, true
		}
		C.free(unsafe.Pointer(cn))
	}
	return nil, false
}

func (d *pylonDevice) SetParameter(p Parameter, value any) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}

	switch p {
	case ParamPixelFormat:
		v, ok := value.(string)
		if !ok {
			return invalidParameter(p, value, "want string")
		}
		name := C.CString(string(p))
		defer C.free(unsafe.Pointer(name))
		cv := C.CString(v)
		defer C.free(unsafe.Pointer(cv))
		if err := pylonCheck(C.PylonDeviceFeatureFromString(d.dev, name, cv), "set PixelFormat"); err != nil {
			return &ParameterError{Parameter: p, Value: value, Err: fmt.Errorf("%w: %v", ErrInvalidParameter, err)}
		}
		d.pixelFormat = v
	case ParamExposureTime:
		v, ok := value.(int)
		if !ok || v <= 0 {
			return invalidParameter(p, value, "want positive int microseconds")
		}
		name, ok := d.featureName("ExposureTime", "ExposureTimeAbs")
		if !ok {
			return invalidParameter(p, value, "exposure not writable")
		}
		defer C.free(unsafe.Pointer(name))
		if err := pylonCheck(C.PylonDeviceSetFloatFeature(d.dev, name, C.double(v)), "set ExposureTime"); err != nil {
			return &ParameterError{Parameter: p, Value: value, Err: fmt.Errorf("%w: %v", ErrInvalidParameter, err)}
		}
	case ParamFrameRateEnable:
		v, ok := value.(bool)
		if !ok {
			return invalidParameter(p, value, "want bool")
		}
		name := C.CString(string(p))
		defer C.free(unsafe.Pointer(name))
		if err := pylonCheck(C.PylonDeviceSetBooleanFeature(d.dev, name, C._Bool(v)), "set AcquisitionFrameRateEnable"); err != nil {
			return &ParameterError{Parameter: p, Value: value, Err: fmt.Errorf("%w: %v", ErrInvalidParameter, err)}
		}
	case ParamFrameRate:
		v, ok := value.(float64)
		if !ok || v <= 0 {
			return invalidParameter(p, value, "want positive float64")
		}
		name, ok := d.featureName("AcquisitionFrameRate", "AcquisitionFrameRateAbs")
		if !ok {
			return invalidParameter(p, value, "frame rate not writable")
		}
		defer C.free(unsafe.Pointer(name))
		if err := pylonCheck(C.PylonDeviceSetFloatFeature(d.dev, name, C.double(v)), "set AcquisitionFrameRate"); err != nil {
			return &ParameterError{Parameter: p, Value: value, Err: fmt.Errorf("%w: %v", ErrInvalidParameter, err)}
		}
	default:
		return invalidParameter(p, value, "unknown parameter")
	}
	return nil
}

func (d *pylonDevice) StartGrabbing(strategy GrabStrategy) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	if d.grabbing {
		return nil
	}

	var payload C.int64_t
	payloadName := C.CString("PayloadSize")
	defer C.free(unsafe.Pointer(payloadName))
	if err := pylonCheck(C.PylonDeviceGetIntegerFeature(d.dev, payloadName, &payload), "get PayloadSize"); err != nil {
		return err
	}

	if err := pylonCheck(C.PylonDeviceGetStreamGrabber(d.dev, 0, &d.grabber), "PylonDeviceGetStreamGrabber"); err != nil {
		return err
	}
	if err := pylonCheck(C.PylonStreamGrabberOpen(d.grabber), "PylonStreamGrabberOpen"); err != nil {
		return err
	}
	if err := pylonCheck(C.PylonStreamGrabberGetWaitObject(d.grabber, &d.wait), "PylonStreamGrabberGetWaitObject"); err != nil {
		C.PylonStreamGrabberClose(d.grabber)
		return err
	}
	C.PylonStreamGrabberSetMaxNumBuffer(d.grabber, pylonNumBuffers)
	C.PylonStreamGrabberSetMaxBufferSize(d.grabber, C.size_t(payload))
	if err := pylonCheck(C.PylonStreamGrabberPrepareGrab(d.grabber), "PylonStreamGrabberPrepareGrab"); err != nil {
		C.PylonStreamGrabberClose(d.grabber)
		return err
	}

	d.buffers = make([]pylonBuffer, 0, pylonNumBuffers)
	for i := 0; i < pylonNumBuffers; i++ {
		mem := C.malloc(C.size_t(payload))
		var h C.PYLON_STREAMBUFFER_HANDLE
		if err := pylonCheck(C.PylonStreamGrabberRegisterBuffer(d.grabber, mem, C.size_t(payload), &h), "PylonStreamGrabberRegisterBuffer"); err != nil {
			C.free(mem)
			d.teardownLocked()
			return err
		}
		d.buffers = append(d.buffers, pylonBuffer{mem: mem, handle: h})
		C.PylonStreamGrabberQueueBuffer(d.grabber, h, nil)
	}

	start := C.CString("AcquisitionStart")
	defer C.free(unsafe.Pointer(start))
	if err := pylonCheck(C.PylonDeviceExecuteCommandFeature(d.dev, start), "AcquisitionStart"); err != nil {
		d.teardownLocked()
		return err
	}

	d.grabbing = true
	d.strategy = strategy
	d.logger.Debug("pylon grabbing", "strategy", strategy.String(), "payload", int64(payload))
	return nil
}

func (d *pylonDevice) StopGrabbing() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.grabbing {
		return nil
	}
	stop := C.CString("AcquisitionStop")
	defer C.free(unsafe.Pointer(stop))
	err := pylonCheck(C.PylonDeviceExecuteCommandFeature(d.dev, stop), "AcquisitionStop")
	d.teardownLocked()
	return err
}

// teardownLocked cancels pending grabs and frees every registered buffer.
func (d *pylonDevice) teardownLocked() {
	d.grabbing = false
	C.PylonStreamGrabberCancelGrab(d.grabber)
	for {
		var res C.PylonGrabResult_t
		var ready C._Bool
		C.PylonStreamGrabberRetrieveResult(d.grabber, &res, &ready)
		if !bool(ready) {
			break
		}
	}
	for _, b := range d.buffers {
		C.PylonStreamGrabberDeregisterBuffer(d.grabber, b.handle)
		C.free(b.mem)
	}
	d.buffers = nil
	C.PylonStreamGrabberFinishGrab(d.grabber)
	C.PylonStreamGrabberClose(d.grabber)
}

func (d *pylonDevice) IsGrabbing() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.grabbing
}

// RetrieveResult waits for a frame. With LatestImageOnly every ready result
// but the newest is requeued unseen.
func (d *pylonDevice) RetrieveResult(timeout time.Duration) (GrabResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.grabbing {
		return nil, ErrClosed
	}

	var ready C._Bool
	if err := pylonCheck(C.PylonWaitObjectWait(d.wait, C.uint32_t(timeout.Milliseconds()), &ready), "PylonWaitObjectWait"); err != nil {
		return nil, err
	}
	if !bool(ready) {
		return nil, fmt.Errorf("%w after %v", ErrTimeout, timeout)
	}

	var latest C.PylonGrabResult_t
	have := false
	for {
		var res C.PylonGrabResult_t
		var ok C._Bool
		if err := pylonCheck(C.PylonStreamGrabberRetrieveResult(d.grabber, &res, &ok), "PylonStreamGrabberRetrieveResult"); err != nil {
			return nil, err
		}
		if !bool(ok) {
			break
		}
		if have {
			C.PylonStreamGrabberQueueBuffer(d.grabber, latest.hBuffer, nil)
		}
		latest = res
		have = true
		if d.strategy != GrabStrategyLatestImageOnly {
			break
		}
	}
	if !have {
		return nil, fmt.Errorf("%w after %v", ErrTimeout, timeout)
	}

	r := &pylonResult{
		device:      d,
		handle:      latest.hBuffer,
		width:       int(latest.SizeX),
		height:      int(latest.SizeY),
		pixelFormat: d.pixelFormat,
		blockID:     uint64(latest.BlockID),
		succeeded:   latest.Status == C.Grabbed,
	}
	if r.succeeded {
		r.buffer = unsafe.Slice((*byte)(latest.pBuffer), int(latest.PayloadSize))
	} else {
		r.errDesc = fmt.Sprintf("grab status %d, error code 0x%x", int(latest.Status), uint32(latest.ErrorCode))
	}
	return r, nil
}

func (d *pylonDevice) requeue(h C.PYLON_STREAMBUFFER_HANDLE) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.grabbing {
		C.PylonStreamGrabberQueueBuffer(d.grabber, h, nil)
	}
}

func (d *pylonDevice) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	if d.grabbing {
		d.teardownLocked()
	}
	d.closed = true
	d.mu.Unlock()

	err := pylonCheck(C.PylonDeviceClose(d.dev), "PylonDeviceClose")
	C.PylonDestroyDevice(d.dev)
	return err
}

type pylonResult struct {
	device      *pylonDevice
	handle      C.PYLON_STREAMBUFFER_HANDLE
	width       int
	height      int
	pixelFormat string
	buffer      []byte
	blockID     uint64
	succeeded   bool
	errDesc     string
	released    bool
}

func (r *pylonResult) GrabSucceeded() bool      { return r.succeeded }
func (r *pylonResult) ErrorDescription() string { return r.errDesc }
func (r *pylonResult) Width() int               { return r.width }
func (r *pylonResult) Height() int              { return r.height }
func (r *pylonResult) PixelFormat() string      { return r.pixelFormat }
func (r *pylonResult) Buffer() []byte           { return r.buffer }
func (r *pylonResult) BlockID() uint64          { return r.blockID }

// Release hands the buffer back to the stream grabber.
func (r *pylonResult) Release() {
	if r.released {
		return
	}
	r.released = true
	r.buffer = nil
	r.device.requeue(r.handle)
}

func pylonCheck(res C.GENAPIC_RESULT, op string) error {
	if res == C.GENAPI_E_OK {
		return nil
	}
	buf := (*C.char)(C.malloc(256))
	defer C.free(unsafe.Pointer(buf))
	C.pylonLastError(buf, 256)
	return fmt.Errorf("pylon %s: 0x%08x %s", op, uint32(res), C.GoString(buf))
}

// newPylonBackend is used by NewBackend.
func newPylonBackend(logger *slog.Logger) (Backend, error) {
	return NewPylonBackend(logger)
}
