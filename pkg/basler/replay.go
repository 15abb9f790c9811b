package basler

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// bayerLayouts gives the BGR channel index sampled at each position of the
// 2x2 filter tile, indexed [row%2][col%2].
var bayerLayouts = map[string][2][2]int{
	PixelFormatBayerRG8: {{2, 1}, {1, 0}},
	PixelFormatBayerBG8: {{0, 1}, {1, 2}},
	PixelFormatBayerGR8: {{1, 2}, {0, 1}},
	PixelFormatBayerGB8: {{1, 0}, {2, 1}},
}

var stillImageExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".bmp": true, ".tif": true, ".tiff": true,
}

// ReplayBackend plays video or image files as if they came from a sensor.
// Each path is one device. Frames are re-encoded to the configured pixel
// format, so a Bayer format yields a real mosaic.
type ReplayBackend struct {
	paths  []string
	loop   bool
	logger *slog.Logger
}

// NewReplayBackend creates a replay backend over the given files.
// With loop set, playback restarts at end of file instead of stopping.
func NewReplayBackend(paths []string, loop bool, logger *slog.Logger) *ReplayBackend {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReplayBackend{paths: paths, loop: loop, logger: logger}
}

// Name returns "replay".
func (r *ReplayBackend) Name() string {
	return "replay"
}

// Devices returns one device per path.
func (r *ReplayBackend) Devices() ([]DeviceInfo, error) {
	out := make([]DeviceInfo, 0, len(r.paths))
	for i, p := range r.paths {
		out = append(out, DeviceInfo{
			Index:        i,
			ModelName:    "replay",
			SerialNumber: filepath.Base(p),
			FullName:     p,
		})
	}
	return out, nil
}

// Open opens the file behind info.
func (r *ReplayBackend) Open(info DeviceInfo) (Device, error) {
	d := &replayDevice{
		path:        info.FullName,
		loop:        r.loop,
		logger:      r.logger.With("path", info.FullName),
		pixelFormat: PixelFormatBGR8,
	}

	if stillImageExts[strings.ToLower(filepath.Ext(info.FullName))] {
		img := gocv.IMRead(info.FullName, gocv.IMReadColor)
		if img.Empty() {
			img.Close()
			return nil, fmt.Errorf("%w: cannot read image %s", ErrDeviceNotFound, info.FullName)
		}
		d.still = &img
		return d, nil
	}

	vc, err := gocv.VideoCaptureFile(info.FullName)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceNotFound, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("%w: cannot open video %s", ErrDeviceNotFound, info.FullName)
	}
	d.vc = vc
	d.sourceFPS = vc.Get(gocv.VideoCaptureFPS)
	return d, nil
}

type replayDevice struct {
	path   string
	loop   bool
	logger *slog.Logger

	vc        *gocv.VideoCapture
	still     *gocv.Mat
	sourceFPS float64

	mu          sync.Mutex
	grabbing    bool
	pixelFormat string
	frameRate   float64
	rateEnabled bool
	blockID     uint64
	lastFrame   time.Time
}

func (d *replayDevice) SetParameter(p Parameter, value any) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch p {
	case ParamPixelFormat:
		v, _ := value.(string)
		if _, bayer := bayerLayouts[v]; !bayer && v != PixelFormatMono8 && v != PixelFormatRGB8 && v != PixelFormatBGR8 {
			return invalidParameter(p, value, "replay supports Mono8, RGB8, BGR8 and 8-bit Bayer")
		}
		d.pixelFormat = v
	case ParamExposureTime:
		if v, ok := value.(int); !ok || v <= 0 {
			return invalidParameter(p, value, "want positive int microseconds")
		}
		d.logger.Debug("exposure ignored by replay", "exposure_us", value)
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
		d.frameRate = v
	default:
		return invalidParameter(p, value, "unknown parameter")
	}
	return nil
}

func (d *replayDevice) StartGrabbing(strategy GrabStrategy) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.vc == nil && d.still == nil {
		return ErrClosed
	}
	d.grabbing = true
	d.logger.Debug("replay started", "strategy", strategy.String(), "pixel_format", d.pixelFormat)
	return nil
}

func (d *replayDevice) StopGrabbing() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.grabbing = false
	return nil
}

func (d *replayDevice) IsGrabbing() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.grabbing
}

// period is the pacing interval: the configured rate, else the file's own.
func (d *replayDevice) period() time.Duration {
	fps := d.sourceFPS
	if d.rateEnabled && d.frameRate > 0 {
		fps = d.frameRate
	}
	if fps <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / fps)
}

func (d *replayDevice) RetrieveResult(timeout time.Duration) (GrabResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.vc == nil && d.still == nil {
		return nil, ErrClosed
	}

	if p := d.period(); p > 0 && !d.lastFrame.IsZero() {
		wait := time.Until(d.lastFrame.Add(p))
		if wait > timeout {
			time.Sleep(timeout)
			return nil, fmt.Errorf("%w after %v", ErrTimeout, timeout)
		}
		if wait > 0 {
			time.Sleep(wait)
		}
	}

	bgr := gocv.NewMat()
	defer bgr.Close()

	if d.still != nil {
		d.still.CopyTo(&bgr)
	} else if !d.vc.Read(&bgr) || bgr.Empty() {
		if !d.loop {
			d.grabbing = false
			return &replayResult{blockID: d.blockID + 1, errDesc: "end of file"}, nil
		}
		d.vc.Set(gocv.VideoCapturePosFrames, 0)
		if !d.vc.Read(&bgr) || bgr.Empty() {
			d.grabbing = false
			return &replayResult{blockID: d.blockID + 1, errDesc: "cannot rewind"}, nil
		}
	}

	d.blockID++
	d.lastFrame = time.Now()

	buf, err := encodePixels(bgr, d.pixelFormat)
	if err != nil {
		return &replayResult{blockID: d.blockID, errDesc: err.Error()}, nil
	}
	return &replayResult{
		width:       bgr.Cols(),
		height:      bgr.Rows(),
		pixelFormat: d.pixelFormat,
		buffer:      buf,
		blockID:     d.blockID,
		succeeded:   true,
	}, nil
}

func (d *replayDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.grabbing = false
	var err error
	if d.vc != nil {
		err = d.vc.Close()
		d.vc = nil
	}
	if d.still != nil {
		d.still.Close()
		d.still = nil
	}
	return err
}

// encodePixels turns a BGR frame into a packed buffer of the given format.
func encodePixels(bgr gocv.Mat, pixelFormat string) ([]byte, error) {
	if layout, ok := bayerLayouts[pixelFormat]; ok {
		return mosaic(bgr.ToBytes(), bgr.Cols(), bgr.Rows(), layout), nil
	}

	switch pixelFormat {
	case PixelFormatBGR8:
		return bgr.ToBytes(), nil
	case PixelFormatRGB8, PixelFormatMono8:
		code := gocv.ColorBGRToRGB
		if pixelFormat == PixelFormatMono8 {
			code = gocv.ColorBGRToGray
		}
		out := gocv.NewMat()
		defer out.Close()
		if err := gocv.CvtColor(bgr, &out, code); err != nil {
			return nil, fmt.Errorf("encode %s: %w", pixelFormat, err)
		}
		return out.ToBytes(), nil
	default:
		return nil, fmt.Errorf("encode %s: unsupported pixel format", pixelFormat)
	}
}

// mosaic samples one channel per pixel from a packed BGR buffer.
func mosaic(bgr []byte, width, height int, layout [2][2]int) []byte {
	out := make([]byte, width*height)
	for y := 0; y < height; y++ {
		row := layout[y%2]
		for x := 0; x < width; x++ {
			out[y*width+x] = bgr[(y*width+x)*3+row[x%2]]
		}
	}
	return out
}

type replayResult struct {
	width       int
	height      int
	pixelFormat string
	buffer      []byte
	blockID     uint64
	succeeded   bool
	errDesc     string
}

func (r *replayResult) GrabSucceeded() bool      { return r.succeeded }
func (r *replayResult) ErrorDescription() string { return r.errDesc }
func (r *replayResult) Width() int               { return r.width }
func (r *replayResult) Height() int              { return r.height }
func (r *replayResult) PixelFormat() string      { return r.pixelFormat }
func (r *replayResult) Buffer() []byte           { return r.buffer }
func (r *replayResult) BlockID() uint64          { return r.blockID }
func (r *replayResult) Release()                 { r.buffer = nil }

var _ Backend = (*ReplayBackend)(nil)
