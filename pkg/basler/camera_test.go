package basler

import (
	"errors"
	"testing"
	"time"

	"gocv.io/x/gocv"
)

// recordingTransformer records which conversions and resizes were requested
// and delegates the pixel work to OpenCV.
type recordingTransformer struct {
	conversions []Conversion
	resizes     []Size
	convertErr  error
}

func (r *recordingTransformer) ConvertBayer(src gocv.Mat, dst *gocv.Mat, c Conversion) error {
	r.conversions = append(r.conversions, c)
	if r.convertErr != nil {
		return r.convertErr
	}
	return GocvTransformer{}.ConvertBayer(src, dst, c)
}

func (r *recordingTransformer) Resize(src gocv.Mat, dst *gocv.Mat, size Size) error {
	r.resizes = append(r.resizes, size)
	return GocvTransformer{}.Resize(src, dst, size)
}

func newTestCamera(opts Options) (*Camera, *MockBackend, *recordingTransformer) {
	backend := NewMockBackend()
	rec := &recordingTransformer{}
	return New(backend, opts, WithTransformer(rec)), backend, rec
}

func setParameterCalls(backend *MockBackend) []MockCall {
	var out []MockCall
	for _, c := range backend.Calls() {
		if c.Method == "SetParameter" {
			out = append(out, c)
		}
	}
	return out
}

func TestCamera_NewDoesNoIO(t *testing.T) {
	cam, backend, _ := newTestCamera(DefaultOptions())

	if cam.IsOpened() {
		t.Error("new camera should be closed")
	}
	if n := len(backend.Calls()); n != 0 {
		t.Errorf("New should not touch the backend, got %d calls", n)
	}
}

func TestCamera_OpenAppliesConfigInOrder(t *testing.T) {
	opts := DefaultOptions().WithExposure(16700).WithFrameRate(21.0)
	opts.PixelFormat = PixelFormatBayerRG8
	cam, backend, _ := newTestCamera(opts)
	defer cam.Release()

	if err := cam.Open(); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if !cam.IsOpened() {
		t.Fatal("camera should be open")
	}

	expected := []MockCall{
		{Parameter: ParamPixelFormat, Value: PixelFormatBayerRG8},
		{Parameter: ParamExposureTime, Value: 16700},
		{Parameter: ParamFrameRateEnable, Value: true},
		{Parameter: ParamFrameRate, Value: 21.0},
	}
	calls := setParameterCalls(backend)
	if len(calls) != len(expected) {
		t.Fatalf("expected %d SetParameter calls, got %d: %+v", len(expected), len(calls), calls)
	}
	for i, want := range expected {
		if calls[i].Parameter != want.Parameter || calls[i].Value != want.Value {
			t.Errorf("call %d: got %s=%v, want %s=%v", i, calls[i].Parameter, calls[i].Value, want.Parameter, want.Value)
		}
	}

	dev := backend.LastDevice()
	if dev.Strategy() != GrabStrategyLatestImageOnly {
		t.Errorf("strategy: got %s, want LatestImageOnly", dev.Strategy())
	}
	if !dev.IsGrabbing() {
		t.Error("device should be grabbing after Open")
	}
}

func TestCamera_OpenSkipsUnsetParameters(t *testing.T) {
	cam, backend, _ := newTestCamera(DefaultOptions())
	defer cam.Release()

	if err := cam.Open(); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	calls := setParameterCalls(backend)
	if len(calls) != 1 || calls[0].Parameter != ParamPixelFormat {
		t.Errorf("expected only PixelFormat to be set, got %+v", calls)
	}
}

func TestCamera_OpenEmptyPixelFormat(t *testing.T) {
	opts := DefaultOptions()
	opts.PixelFormat = ""
	cam, backend, _ := newTestCamera(opts)
	defer cam.Release()

	if err := cam.Open(); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if calls := setParameterCalls(backend); len(calls) != 0 {
		t.Errorf("expected no SetParameter calls, got %+v", calls)
	}
}

func TestCamera_OpenIsIdempotent(t *testing.T) {
	cam, backend, _ := newTestCamera(DefaultOptions().WithExposure(1000))
	defer cam.Release()

	for i := 0; i < 2; i++ {
		if err := cam.Open(); err != nil {
			t.Fatalf("Open %d failed: %v", i, err)
		}
	}

	if n := backend.CallCount("Open"); n != 1 {
		t.Errorf("device opened %d times, want 1", n)
	}
	if n := backend.CallCount("SetParameter"); n != 2 {
		t.Errorf("SetParameter called %d times, want 2", n)
	}
	if n := backend.CallCount("StartGrabbing"); n != 1 {
		t.Errorf("StartGrabbing called %d times, want 1", n)
	}
}

func TestCamera_OpenErrors(t *testing.T) {
	t.Run("no devices", func(t *testing.T) {
		backend := NewMockBackend()
		backend.DeviceList = nil
		cam := New(backend, DefaultOptions())

		err := cam.Open()
		if !errors.Is(err, ErrDeviceNotFound) {
			t.Errorf("expected ErrDeviceNotFound, got %v", err)
		}
		if cam.IsOpened() {
			t.Error("camera should stay closed")
		}
	})

	t.Run("index out of range", func(t *testing.T) {
		opts := DefaultOptions()
		opts.DeviceIndex = 1
		cam, _, _ := newTestCamera(opts)

		if err := cam.Open(); !errors.Is(err, ErrDeviceNotFound) {
			t.Errorf("expected ErrDeviceNotFound, got %v", err)
		}
	})

	t.Run("rejected pixel format", func(t *testing.T) {
		opts := DefaultOptions()
		opts.PixelFormat = "Mono12p"
		cam, backend, _ := newTestCamera(opts)

		err := cam.Open()
		if !errors.Is(err, ErrInvalidParameter) {
			t.Fatalf("expected ErrInvalidParameter, got %v", err)
		}
		var perr *ParameterError
		if !errors.As(err, &perr) {
			t.Fatalf("expected *ParameterError, got %T", err)
		}
		if perr.Parameter != ParamPixelFormat {
			t.Errorf("Parameter: got %s, want PixelFormat", perr.Parameter)
		}
		if cam.IsOpened() {
			t.Error("camera should stay closed")
		}
		if !backend.LastDevice().Closed() {
			t.Error("device should be closed after a failed configure")
		}
	})

	t.Run("rejected exposure", func(t *testing.T) {
		cam, backend, _ := newTestCamera(DefaultOptions().WithExposure(50))
		backend.SetParameterFunc = func(p Parameter, value any) error {
			if p == ParamExposureTime {
				return invalidParameter(p, value, "below minimum 100")
			}
			return nil
		}

		if err := cam.Open(); !errors.Is(err, ErrInvalidParameter) {
			t.Errorf("expected ErrInvalidParameter, got %v", err)
		}
		if n := backend.CallCount("StartGrabbing"); n != 0 {
			t.Errorf("StartGrabbing should not run, called %d times", n)
		}
	})
}

func TestCamera_ReadBayerConversion(t *testing.T) {
	tests := []struct {
		format string
		expect Conversion
	}{
		{PixelFormatBayerRG8, ConversionBayerRG},
		{PixelFormatBayerBG8, ConversionBayerBG},
		{PixelFormatBayerGR8, ConversionBayerGR},
		{PixelFormatBayerGB8, ConversionBayerGB},
	}

	for _, tc := range tests {
		t.Run(tc.format, func(t *testing.T) {
			opts := DefaultOptions()
			opts.PixelFormat = tc.format
			cam, _, rec := newTestCamera(opts)
			defer cam.Release()

			frame := gocv.NewMat()
			defer frame.Close()

			ok, err := cam.Read(&frame)
			if err != nil {
				t.Fatalf("Read failed: %v", err)
			}
			if !ok {
				t.Fatal("Read: expected a frame")
			}

			if len(rec.conversions) != 1 || rec.conversions[0] != tc.expect {
				t.Errorf("conversions: got %v, want [%s]", rec.conversions, tc.expect)
			}
			if frame.Channels() != 3 {
				t.Errorf("channels: got %d, want 3", frame.Channels())
			}
		})
	}
}

func TestCamera_ReadWithoutConversion(t *testing.T) {
	tests := []struct {
		format   string
		channels int
	}{
		{PixelFormatMono8, 1},
		{PixelFormatRGB8, 3},
		{PixelFormatBGR8, 3},
	}

	for _, tc := range tests {
		t.Run(tc.format, func(t *testing.T) {
			opts := DefaultOptions()
			opts.PixelFormat = tc.format
			cam, _, rec := newTestCamera(opts)
			defer cam.Release()

			frame := gocv.NewMat()
			defer frame.Close()

			ok, err := cam.Read(&frame)
			if err != nil || !ok {
				t.Fatalf("Read: ok=%v err=%v", ok, err)
			}
			if len(rec.conversions) != 0 {
				t.Errorf("expected no conversion, got %v", rec.conversions)
			}
			if frame.Channels() != tc.channels {
				t.Errorf("channels: got %d, want %d", frame.Channels(), tc.channels)
			}
		})
	}
}

func TestCamera_ReadResize(t *testing.T) {
	tests := []struct {
		name   string
		format string
		resize *Size
		expect Size
	}{
		{"native mono", PixelFormatMono8, nil, Size{64, 48}},
		{"native bayer", PixelFormatBayerGR8, nil, Size{64, 48}},
		{"downscale mono", PixelFormatMono8, &Size{32, 24}, Size{32, 24}},
		{"upscale bayer", PixelFormatBayerBG8, &Size{100, 90}, Size{100, 90}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			opts := DefaultOptions()
			opts.PixelFormat = tc.format
			opts.Resize = tc.resize
			cam, _, rec := newTestCamera(opts)
			defer cam.Release()

			frame := gocv.NewMat()
			defer frame.Close()

			ok, err := cam.Read(&frame)
			if err != nil || !ok {
				t.Fatalf("Read: ok=%v err=%v", ok, err)
			}
			if frame.Cols() != tc.expect.Width || frame.Rows() != tc.expect.Height {
				t.Errorf("size: got %dx%d, want %s", frame.Cols(), frame.Rows(), tc.expect)
			}
			if tc.resize == nil && len(rec.resizes) != 0 {
				t.Errorf("expected no resize, got %v", rec.resizes)
			}
			if tc.resize != nil && (len(rec.resizes) != 1 || rec.resizes[0] != *tc.resize) {
				t.Errorf("resizes: got %v, want [%s]", rec.resizes, tc.resize)
			}
		})
	}
}

func TestCamera_ReadLazyOpen(t *testing.T) {
	cam, backend, _ := newTestCamera(DefaultOptions())
	defer cam.Release()

	frame := gocv.NewMat()
	defer frame.Close()

	ok, err := cam.Read(&frame)
	if err != nil || !ok {
		t.Fatalf("Read: ok=%v err=%v", ok, err)
	}
	if !cam.IsOpened() {
		t.Error("Read should open the camera")
	}
	if n := backend.CallCount("Open"); n != 1 {
		t.Errorf("device opened %d times, want 1", n)
	}
}

func TestCamera_ReleaseThenReadReopens(t *testing.T) {
	cam, backend, _ := newTestCamera(DefaultOptions())
	defer cam.Release()

	frame := gocv.NewMat()
	defer frame.Close()

	if ok, err := cam.Read(&frame); err != nil || !ok {
		t.Fatalf("first Read: ok=%v err=%v", ok, err)
	}
	cam.Release()
	if cam.IsOpened() {
		t.Fatal("camera should be closed after Release")
	}

	if ok, err := cam.Read(&frame); err != nil || !ok {
		t.Fatalf("Read after Release: ok=%v err=%v", ok, err)
	}
	if !cam.IsOpened() {
		t.Error("Read should reopen the camera")
	}
	if n := backend.CallCount("Open"); n != 2 {
		t.Errorf("device opened %d times, want 2", n)
	}
}

func TestCamera_ReleaseTwice(t *testing.T) {
	cam, backend, _ := newTestCamera(DefaultOptions())

	if err := cam.Open(); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	dev := backend.LastDevice()

	cam.Release()
	cam.Release()
	if err := cam.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}

	if !dev.Closed() {
		t.Error("device should be closed")
	}
	if n := backend.CallCount("StopGrabbing"); n != 1 {
		t.Errorf("StopGrabbing called %d times, want 1", n)
	}
	if n := backend.CallCount("Close"); n != 1 {
		t.Errorf("Close called %d times, want 1", n)
	}
}

func TestCamera_ReleaseNeverOpened(t *testing.T) {
	cam, backend, _ := newTestCamera(DefaultOptions())
	cam.Release()
	if n := len(backend.Calls()); n != 0 {
		t.Errorf("Release on a closed camera should be a no-op, got %d calls", n)
	}
}

func TestCamera_ReadNotGrabbing(t *testing.T) {
	cam, backend, _ := newTestCamera(DefaultOptions())
	defer cam.Release()

	if err := cam.Open(); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	backend.LastDevice().StopGrabbing()

	frame := gocv.NewMat()
	defer frame.Close()

	ok, err := cam.Read(&frame)
	if err != nil {
		t.Fatalf("Read should not fail when not grabbing: %v", err)
	}
	if ok {
		t.Error("Read: expected no frame")
	}
	if !frame.Empty() {
		t.Error("frame should be untouched")
	}
	if n := backend.CallCount("RetrieveResult"); n != 0 {
		t.Errorf("RetrieveResult should not be called, got %d", n)
	}
}

func TestCamera_ReadGrabFailure(t *testing.T) {
	cam, backend, _ := newTestCamera(DefaultOptions())
	defer cam.Release()
	backend.GrabFailFunc = func(blockID uint64) bool { return blockID == 1 }

	frame := gocv.NewMat()
	defer frame.Close()

	ok, err := cam.Read(&frame)
	if err != nil {
		t.Fatalf("failed grab should be soft: %v", err)
	}
	if ok {
		t.Error("Read: expected no frame for a failed grab")
	}

	ok, err = cam.Read(&frame)
	if err != nil || !ok {
		t.Fatalf("retry: ok=%v err=%v", ok, err)
	}

	if n := backend.OutstandingLeases(); n != 0 {
		t.Errorf("outstanding leases: got %d, want 0", n)
	}
	stats := cam.Stats()
	if stats.GrabFailures != 1 || stats.FramesRead != 1 {
		t.Errorf("stats: got %+v", stats)
	}
}

func TestCamera_ReadTimeout(t *testing.T) {
	opts := DefaultOptions()
	opts.TimeoutMS = 1
	cam, backend, _ := newTestCamera(opts)
	defer cam.Release()
	backend.Stall = true

	frame := gocv.NewMat()
	defer frame.Close()

	done := make(chan struct{})
	var ok bool
	var err error
	go func() {
		ok, err = cam.Read(&frame)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Read did not return within the timeout")
	}

	if !errors.Is(err, ErrTimeout) {
		t.Errorf("expected ErrTimeout, got %v", err)
	}
	if ok {
		t.Error("Read: expected no frame on timeout")
	}
	if cam.Stats().Timeouts != 1 {
		t.Errorf("timeouts: got %d, want 1", cam.Stats().Timeouts)
	}
}

func TestCamera_LeaseReleasedOnError(t *testing.T) {
	opts := DefaultOptions()
	opts.PixelFormat = PixelFormatBayerRG8
	backend := NewMockBackend()
	sentinel := errors.New("convert exploded")
	cam := New(backend, opts, WithTransformer(&recordingTransformer{convertErr: sentinel}))
	defer cam.Release()

	frame := gocv.NewMat()
	defer frame.Close()

	ok, err := cam.Read(&frame)
	if !errors.Is(err, sentinel) {
		t.Errorf("expected conversion error, got %v", err)
	}
	if ok {
		t.Error("Read: expected no frame")
	}
	if n := backend.OutstandingLeases(); n != 0 {
		t.Errorf("outstanding leases: got %d, want 0", n)
	}
}

func TestCamera_ReadShortBuffer(t *testing.T) {
	tests := []struct {
		name   string
		format string
	}{
		{"rgb", PixelFormatRGB8},
		{"bayer", PixelFormatBayerRG8},
		{"mono", PixelFormatMono8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			opts.PixelFormat = tt.format
			cam, backend, tr := newTestCamera(opts)
			defer cam.Release()
			backend.BufferFunc = func(_ uint64, buf []byte) []byte {
				return buf[:len(buf)/2]
			}

			frame := gocv.NewMat()
			defer frame.Close()

			ok, err := cam.Read(&frame)
			if !errors.Is(err, ErrShortFrame) {
				t.Errorf("expected ErrShortFrame, got %v", err)
			}
			if ok {
				t.Error("Read: expected no frame")
			}
			if len(tr.conversions) != 0 {
				t.Errorf("short buffer reached the transformer: %v", tr.conversions)
			}
			if n := backend.OutstandingLeases(); n != 0 {
				t.Errorf("outstanding leases: got %d, want 0", n)
			}
		})
	}
}

func TestCamera_ReadNilDestination(t *testing.T) {
	cam, backend, _ := newTestCamera(DefaultOptions())
	if _, err := cam.Read(nil); err == nil {
		t.Error("expected error for nil destination")
	}
	if n := len(backend.Calls()); n != 0 {
		t.Errorf("nil destination should fail before I/O, got %d calls", n)
	}
}

func TestCamera_FrameOutlivesLease(t *testing.T) {
	cam, _, _ := newTestCamera(DefaultOptions())
	defer cam.Release()

	frame := gocv.NewMat()
	defer frame.Close()

	if ok, err := cam.Read(&frame); err != nil || !ok {
		t.Fatalf("Read: ok=%v err=%v", ok, err)
	}

	// Block 1 of the mock gradient puts x+y+1 at (x, y).
	if got := frame.GetUCharAt(2, 3); got != 6 {
		t.Errorf("pixel (3,2): got %d, want 6", got)
	}
}

func TestCamera_BayerRGExample(t *testing.T) {
	opts := DefaultOptions().WithExposure(16700).WithFrameRate(21.0)
	opts.PixelFormat = PixelFormatBayerRG8
	cam, backend, rec := newTestCamera(opts)
	defer cam.Release()
	backend.GrabFailFunc = func(blockID uint64) bool { return blockID%2 == 0 }

	frame := gocv.NewMat()
	defer frame.Close()

	for i := 0; i < 4; i++ {
		ok, err := cam.Read(&frame)
		if err != nil {
			t.Fatalf("read %d: soft faults must not raise: %v", i, err)
		}
		if ok != (i%2 == 0) {
			t.Errorf("read %d: got ok=%v", i, ok)
		}
	}
	for _, c := range rec.conversions {
		if c != ConversionBayerRG {
			t.Errorf("unexpected conversion %s", c)
		}
	}
	if len(rec.conversions) != 2 {
		t.Errorf("conversions: got %d, want 2", len(rec.conversions))
	}
}

func TestCamera_UseReleasesOnError(t *testing.T) {
	cam, backend, _ := newTestCamera(DefaultOptions())
	sentinel := errors.New("inside scope")

	var openInside bool
	err := cam.Use(func(c *Camera) error {
		openInside = c.IsOpened()
		return sentinel
	})

	if !errors.Is(err, sentinel) {
		t.Errorf("expected scope error, got %v", err)
	}
	if !openInside {
		t.Error("camera should be open inside the scope")
	}
	if cam.IsOpened() {
		t.Error("camera should be released after the scope")
	}
	if !backend.LastDevice().Closed() {
		t.Error("device should be closed before Use returns")
	}
}

func TestCamera_UseReleasesOnPanic(t *testing.T) {
	cam, backend, _ := newTestCamera(DefaultOptions())

	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Error("panic should propagate out of Use")
			}
		}()
		_ = cam.Use(func(c *Camera) error {
			panic("boom")
		})
	}()

	if cam.IsOpened() {
		t.Error("camera should be released after a panic")
	}
	if n := backend.CallCount("StopGrabbing"); n != 1 {
		t.Errorf("StopGrabbing called %d times, want 1", n)
	}
}

func TestUse_VideoCapture(t *testing.T) {
	cam, _, _ := newTestCamera(DefaultOptions())

	var frames int
	err := Use(cam, func(vc VideoCapture) error {
		frame := gocv.NewMat()
		defer frame.Close()
		for i := 0; i < 3; i++ {
			ok, err := vc.Read(&frame)
			if err != nil {
				return err
			}
			if ok {
				frames++
			}
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Use failed: %v", err)
	}
	if frames != 3 {
		t.Errorf("frames: got %d, want 3", frames)
	}
	if cam.IsOpened() {
		t.Error("camera should be released")
	}
}

func TestCamera_Stats(t *testing.T) {
	cam, _, _ := newTestCamera(DefaultOptions())

	if s := cam.Stats(); s.Open || s.Session != "" || s.Backend != "mock" {
		t.Errorf("closed stats: got %+v", s)
	}

	frame := gocv.NewMat()
	defer frame.Close()
	for i := 0; i < 3; i++ {
		if ok, err := cam.Read(&frame); err != nil || !ok {
			t.Fatalf("Read: ok=%v err=%v", ok, err)
		}
	}

	s := cam.Stats()
	if !s.Open || s.Session == "" {
		t.Errorf("open stats: got %+v", s)
	}
	if s.FramesRead != 3 || s.LastBlockID != 3 || s.Opens != 1 {
		t.Errorf("counters: got %+v", s)
	}

	first := s.Session
	cam.Release()
	cam.Open()
	defer cam.Release()
	if cam.Stats().Session == first {
		t.Error("each open should get a new session id")
	}
}
