package basler

import "gocv.io/x/gocv"

// Pixel format tags understood by the adapter.
const (
	PixelFormatMono8    = "Mono8"
	PixelFormatBayerRG8 = "BayerRG8"
	PixelFormatBayerBG8 = "BayerBG8"
	PixelFormatBayerGR8 = "BayerGR8"
	PixelFormatBayerGB8 = "BayerGB8"
	PixelFormatRGB8     = "RGB8"
	PixelFormatBGR8     = "BGR8"
)

// Conversion is the color conversion applied to every frame of a pixel format.
type Conversion int

const (
	// ConversionNone leaves the frame as delivered.
	ConversionNone Conversion = iota
	ConversionBayerRG
	ConversionBayerBG
	ConversionBayerGR
	ConversionBayerGB
)

// bayerConversions maps each Bayer tag to its demosaic layout.
// The layouts are not interchangeable.
var bayerConversions = map[string]Conversion{
	PixelFormatBayerRG8: ConversionBayerRG,
	PixelFormatBayerBG8: ConversionBayerBG,
	PixelFormatBayerGR8: ConversionBayerGR,
	PixelFormatBayerGB8: ConversionBayerGB,
}

// ConversionFor returns the conversion for a pixel format tag.
// Mono8 and unrecognized tags map to ConversionNone.
func ConversionFor(pixelFormat string) Conversion {
	if c, ok := bayerConversions[pixelFormat]; ok {
		return c
	}
	return ConversionNone
}

// IsBayer reports whether the conversion demosaics a Bayer mosaic.
func (c Conversion) IsBayer() bool {
	return c != ConversionNone
}

// ColorCode returns the gocv XX->RGB demosaic code for the layout of the
// same name. The second result is false for ConversionNone.
func (c Conversion) ColorCode() (gocv.ColorConversionCode, bool) {
	switch c {
	case ConversionBayerRG:
		return gocv.ColorBayerRGToRGB, true
	case ConversionBayerBG:
		return gocv.ColorBayerBGToRGB, true
	case ConversionBayerGR:
		return gocv.ColorBayerGRToRGB, true
	case ConversionBayerGB:
		return gocv.ColorBayerGBToRGB, true
	default:
		return 0, false
	}
}

// String returns a short name for logging.
func (c Conversion) String() string {
	switch c {
	case ConversionNone:
		return "none"
	case ConversionBayerRG:
		return "BayerRG->RGB"
	case ConversionBayerBG:
		return "BayerBG->RGB"
	case ConversionBayerGR:
		return "BayerGR->RGB"
	case ConversionBayerGB:
		return "BayerGB->RGB"
	default:
		return "unknown"
	}
}

// matTypeFor picks the Mat type for a packed 8-bit buffer. Formats we do not
// know are sized from the buffer length.
func matTypeFor(pixelFormat string, width, height, size int) gocv.MatType {
	switch pixelFormat {
	case PixelFormatRGB8, PixelFormatBGR8:
		return gocv.MatTypeCV8UC3
	case PixelFormatMono8, PixelFormatBayerRG8, PixelFormatBayerBG8, PixelFormatBayerGR8, PixelFormatBayerGB8:
		return gocv.MatTypeCV8UC1
	}
	if width > 0 && height > 0 {
		switch size / (width * height) {
		case 3:
			return gocv.MatTypeCV8UC3
		case 4:
			return gocv.MatTypeCV8UC4
		}
	}
	return gocv.MatTypeCV8UC1
}

// matChannels returns the channel count of the 8-bit Mat types matTypeFor
// produces.
func matChannels(mt gocv.MatType) int {
	switch mt {
	case gocv.MatTypeCV8UC3:
		return 3
	case gocv.MatTypeCV8UC4:
		return 4
	default:
		return 1
	}
}

// bytesPerPixel returns the packed size of one pixel for formats the
// synthetic backends generate.
func bytesPerPixel(pixelFormat string) int {
	switch pixelFormat {
	case PixelFormatRGB8, PixelFormatBGR8:
		return 3
	default:
		return 1
	}
}
