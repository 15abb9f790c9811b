package camera

import (
	"sort"

	"github.com/teslashibe/go-basler/pkg/basler"
)

// Preset names.
const (
	PresetDefault  = "default"
	PresetColor    = "color"
	PresetPreview  = "preview"
	PresetFast     = "fast"
	PresetLowLight = "lowlight"
)

// presets derive from the current options so the device index and
// timeout survive a preset switch.
var presets = map[string]func(basler.Options) basler.Options{
	PresetDefault: func(cur basler.Options) basler.Options {
		o := basler.DefaultOptions()
		o.DeviceIndex = cur.DeviceIndex
		o.TimeoutMS = cur.TimeoutMS
		return o
	},
	// Color acquisition at the rate and exposure of an acA1920-40uc under
	// indoor lighting.
	PresetColor: func(cur basler.Options) basler.Options {
		o := cur
		o.PixelFormat = basler.PixelFormatBayerRG8
		return o.WithExposure(16700).WithFrameRate(21)
	},
	PresetPreview: func(cur basler.Options) basler.Options {
		return cur.WithResize(640, 480)
	},
	PresetFast: func(cur basler.Options) basler.Options {
		return cur.WithExposure(2000).WithFrameRate(40)
	},
	PresetLowLight: func(cur basler.Options) basler.Options {
		o := cur.WithExposure(60000).WithFrameRate(10)
		if o.TimeoutMS < 1000 {
			o.TimeoutMS = 1000
		}
		return o
	},
}

// Preset returns the named preset applied to cur.
func Preset(name string, cur basler.Options) (basler.Options, bool) {
	fn, ok := presets[name]
	if !ok {
		return basler.Options{}, false
	}
	return fn(cur), true
}

// PresetNames returns the preset names in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
