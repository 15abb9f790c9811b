package basler

import (
	"fmt"

	"gocv.io/x/gocv"
)

// OutputIsRGB reports whether frames read with these options are in RGB
// channel order. OpenCV display and encoding expect BGR.
//
// Bayer frames are not RGB here: OpenCV names Bayer patterns from the
// second row and column, so the XX->RGB code applied to a GenICam BayerXX8
// mosaic already yields BGR order.
func (o *Options) OutputIsRGB() bool {
	return o.PixelFormat == PixelFormatRGB8
}

// ToBGR copies frame into dst in BGR order for display or encoding.
func ToBGR(frame gocv.Mat, dst *gocv.Mat, rgb bool) error {
	if rgb && frame.Channels() == 3 {
		if err := gocv.CvtColor(frame, dst, gocv.ColorRGBToBGR); err != nil {
			return fmt.Errorf("rgb to bgr: %w", err)
		}
		return nil
	}
	frame.CopyTo(dst)
	return nil
}

// EncodeJPEG encodes a frame as JPEG at the given quality (1-100).
func EncodeJPEG(frame gocv.Mat, quality int, rgb bool) ([]byte, error) {
	bgr := gocv.NewMat()
	defer bgr.Close()
	if err := ToBGR(frame, &bgr, rgb); err != nil {
		return nil, err
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, bgr, []int{int(gocv.IMWriteJpegQuality), quality})
	if err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	defer buf.Close()

	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}
