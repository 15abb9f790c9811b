package basler

import (
	"testing"

	"gocv.io/x/gocv"
)

func TestConversionFor(t *testing.T) {
	tests := []struct {
		format string
		expect Conversion
	}{
		{PixelFormatBayerRG8, ConversionBayerRG},
		{PixelFormatBayerBG8, ConversionBayerBG},
		{PixelFormatBayerGR8, ConversionBayerGR},
		{PixelFormatBayerGB8, ConversionBayerGB},
		{PixelFormatMono8, ConversionNone},
		{PixelFormatRGB8, ConversionNone},
		{PixelFormatBGR8, ConversionNone},
		{"", ConversionNone},
		{"bayerrg8", ConversionNone},
		{"BayerRG12", ConversionNone},
		{"Mono12p", ConversionNone},
	}

	for _, tc := range tests {
		t.Run(tc.format, func(t *testing.T) {
			got := ConversionFor(tc.format)
			if got != tc.expect {
				t.Errorf("ConversionFor(%q): got %s, want %s", tc.format, got, tc.expect)
			}
			if got.IsBayer() != (tc.expect != ConversionNone) {
				t.Errorf("IsBayer(%q): got %v", tc.format, got.IsBayer())
			}
		})
	}
}

func TestConversion_ColorCode(t *testing.T) {
	tests := []struct {
		conv   Conversion
		expect gocv.ColorConversionCode
	}{
		{ConversionBayerRG, gocv.ColorBayerRGToRGB},
		{ConversionBayerBG, gocv.ColorBayerBGToRGB},
		{ConversionBayerGR, gocv.ColorBayerGRToRGB},
		{ConversionBayerGB, gocv.ColorBayerGBToRGB},
	}

	seen := make(map[gocv.ColorConversionCode]Conversion)
	for _, tc := range tests {
		t.Run(tc.conv.String(), func(t *testing.T) {
			code, ok := tc.conv.ColorCode()
			if !ok {
				t.Fatalf("ColorCode: expected a code for %s", tc.conv)
			}
			if code != tc.expect {
				t.Errorf("ColorCode: got %d, want %d", code, tc.expect)
			}
		})
		code, _ := tc.conv.ColorCode()
		if other, dup := seen[code]; dup {
			t.Errorf("ColorCode: %s and %s share code %d", tc.conv, other, code)
		}
		seen[code] = tc.conv
	}

	if _, ok := ConversionNone.ColorCode(); ok {
		t.Error("ColorCode: ConversionNone should have no code")
	}
}

func TestBayerTableIsExhaustive(t *testing.T) {
	if len(bayerConversions) != 4 {
		t.Fatalf("expected 4 Bayer tags, got %d", len(bayerConversions))
	}
	for tag := range bayerConversions {
		if _, ok := bayerLayouts[tag]; !ok {
			t.Errorf("replay has no mosaic layout for %s", tag)
		}
	}
}

func TestMatTypeFor(t *testing.T) {
	tests := []struct {
		name   string
		format string
		w, h   int
		size   int
		expect gocv.MatType
	}{
		{"mono", PixelFormatMono8, 4, 4, 16, gocv.MatTypeCV8UC1},
		{"bayer", PixelFormatBayerGB8, 4, 4, 16, gocv.MatTypeCV8UC1},
		{"rgb", PixelFormatRGB8, 4, 4, 48, gocv.MatTypeCV8UC3},
		{"bgr", PixelFormatBGR8, 4, 4, 48, gocv.MatTypeCV8UC3},
		{"unknown 3 bytes", "YCbCr422_8", 4, 4, 48, gocv.MatTypeCV8UC3},
		{"unknown 4 bytes", "BGRa8", 4, 4, 64, gocv.MatTypeCV8UC4},
		{"unknown 1 byte", "Whatever", 4, 4, 16, gocv.MatTypeCV8UC1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := matTypeFor(tc.format, tc.w, tc.h, tc.size)
			if got != tc.expect {
				t.Errorf("matTypeFor: got %v, want %v", got, tc.expect)
			}
		})
	}
}
