package basler

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// Transformer is the image library the adapter delegates pixel work to.
type Transformer interface {
	// ConvertBayer demosaics src into an RGB dst using the given layout.
	ConvertBayer(src gocv.Mat, dst *gocv.Mat, c Conversion) error

	// Resize scales src into dst with linear interpolation.
	Resize(src gocv.Mat, dst *gocv.Mat, size Size) error
}

// GocvTransformer implements Transformer with OpenCV.
type GocvTransformer struct{}

// ConvertBayer implements Transformer.
func (GocvTransformer) ConvertBayer(src gocv.Mat, dst *gocv.Mat, c Conversion) error {
	code, ok := c.ColorCode()
	if !ok {
		return fmt.Errorf("no color code for conversion %s", c)
	}
	if err := gocv.CvtColor(src, dst, code); err != nil {
		return fmt.Errorf("cvtcolor %s: %w", c, err)
	}
	return nil
}

// Resize implements Transformer.
func (GocvTransformer) Resize(src gocv.Mat, dst *gocv.Mat, size Size) error {
	if err := gocv.Resize(src, dst, image.Pt(size.Width, size.Height), 0, 0, gocv.InterpolationLinear); err != nil {
		return fmt.Errorf("resize to %s: %w", size, err)
	}
	return nil
}

var _ Transformer = GocvTransformer{}
