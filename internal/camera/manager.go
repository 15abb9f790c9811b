// Package camera holds the runtime-adjustable Basler camera options used by
// the live view server.
package camera

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/teslashibe/go-basler/pkg/basler"
)

// Manager holds the current camera options and applies updates.
type Manager struct {
	opts basler.Options
	mu   sync.RWMutex

	// update serializes writers so a partial update never builds on stale
	// options.
	update sync.Mutex

	// OnConfigChange is called after every accepted update. An error is
	// returned to the caller of SetOptions but the new options stay current.
	OnConfigChange func(opts basler.Options) error
}

// NewManager creates a manager starting from opts.
func NewManager(opts basler.Options) *Manager {
	return &Manager{opts: opts}
}

// Options returns the current options.
func (m *Manager) Options() basler.Options {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.opts
}

// SetOptions validates and installs opts.
func (m *Manager) SetOptions(opts basler.Options) error {
	m.update.Lock()
	defer m.update.Unlock()
	return m.setOptions(opts)
}

func (m *Manager) setOptions(opts basler.Options) error {
	if err := opts.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	m.mu.Lock()
	m.opts = opts
	callback := m.OnConfigChange
	m.mu.Unlock()

	if callback != nil {
		if err := callback(opts); err != nil {
			return fmt.Errorf("failed to apply options: %w", err)
		}
	}
	return nil
}

// UpdateOptions applies a partial update, as decoded from a JSON body.
// A "preset" key is applied first, then the remaining keys on top of it.
// A null exposure_time, frame_rate or resize clears that setting.
func (m *Manager) UpdateOptions(params map[string]any) error {
	m.update.Lock()
	defer m.update.Unlock()

	opts := m.Options()

	if name, ok := params["preset"]; ok {
		s, _ := name.(string)
		preset, found := Preset(s, opts)
		if !found {
			return fmt.Errorf("unknown preset: %v", name)
		}
		opts = preset
	}

	for key, value := range params {
		switch key {
		case "preset":
		case "device_index":
			v, ok := toInt(value)
			if !ok {
				return fieldErr(key, value)
			}
			opts.DeviceIndex = v
		case "pixel_format":
			v, ok := value.(string)
			if !ok {
				return fieldErr(key, value)
			}
			opts.PixelFormat = v
		case "exposure_time":
			if value == nil {
				opts.ExposureTime = nil
				continue
			}
			v, ok := toInt(value)
			if !ok {
				return fieldErr(key, value)
			}
			opts.ExposureTime = &v
		case "frame_rate":
			if value == nil {
				opts.FrameRate = nil
				continue
			}
			v, ok := toFloat(value)
			if !ok {
				return fieldErr(key, value)
			}
			opts.FrameRate = &v
		case "resize":
			if value == nil {
				opts.Resize = nil
				continue
			}
			s, err := toSize(value)
			if err != nil {
				return fmt.Errorf("resize: %w", err)
			}
			opts.Resize = &s
		case "timeout_ms":
			v, ok := toInt(value)
			if !ok {
				return fieldErr(key, value)
			}
			opts.TimeoutMS = v
		default:
			return fmt.Errorf("unknown option: %s", key)
		}
	}

	return m.setOptions(opts)
}

// OptionsJSON returns the current options as a generic map.
func (m *Manager) OptionsJSON() map[string]any {
	opts := m.Options()
	data, _ := json.Marshal(opts)
	var result map[string]any
	json.Unmarshal(data, &result)
	return result
}

func fieldErr(key string, value any) error {
	return fmt.Errorf("%s: unsupported value %v (%T)", key, value, value)
}

func toInt(v any) (int, bool) {
	switch val := v.(type) {
	case int:
		return val, true
	case int64:
		return int(val), true
	case float64:
		if val != float64(int(val)) {
			return 0, false
		}
		return int(val), true
	case json.Number:
		i, err := val.Int64()
		if err == nil {
			return int(i), true
		}
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		if err == nil {
			return f, true
		}
	}
	return 0, false
}

// toSize accepts "WxH" or {"width": W, "height": H}.
func toSize(v any) (basler.Size, error) {
	switch val := v.(type) {
	case string:
		return basler.ParseSize(val)
	case map[string]any:
		w, okW := toInt(val["width"])
		h, okH := toInt(val["height"])
		if !okW || !okH {
			return basler.Size{}, fmt.Errorf("want width and height, got %v", val)
		}
		return basler.Size{Width: w, Height: h}, nil
	}
	return basler.Size{}, fmt.Errorf("unsupported value %v (%T)", v, v)
}
