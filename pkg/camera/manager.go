package camera

import (
	"encoding/json"
	"fmt"
	"slices"
	"sync"
)

// Manager holds the current capture options and handles updates.
type Manager struct {
	options Options
	mu      sync.RWMutex
}

// NewManager creates a new manager with default options.
func NewManager() *Manager {
	return &Manager{
		options: DefaultOptions(),
	}
}

// Options returns a copy of the current options.
func (m *Manager) Options() Options {
	m.mu.RLock()
	defer m.mu.RUnlock()
	opts := m.options
	opts.BarcodeFormats = slices.Clone(m.options.BarcodeFormats)
	return opts
}

// SetOptions replaces the current options.
func (m *Manager) SetOptions(opts Options) error {
	if errors := opts.Validate(); len(errors) > 0 {
		return fmt.Errorf("validation failed: %v", errors)
	}

	m.mu.Lock()
	m.options = opts
	m.mu.Unlock()
	return nil
}

// Update updates specific fields of the options.
// Accepts a map of field names to values; "preset" is applied first.
func (m *Manager) Update(params map[string]any) error {
	opts := m.Options()

	if presetName, ok := params["preset"].(string); ok {
		preset := GetPreset(presetName)
		if preset == nil {
			return fmt.Errorf("unknown preset: %s", presetName)
		}
		// Storage is a host setting, not part of a preset.
		preset.Persist, preset.PersistDir = opts.Persist, opts.PersistDir
		opts = *preset
	}

	for key, value := range params {
		switch key {
		case "width":
			if v, ok := toInt(value); ok {
				opts.Width = v
			}
		case "quality":
			if v, ok := toInt(value); ok {
				opts.Quality = v
			}
		case "exif":
			if v, ok := value.(bool); ok {
				opts.Exif = v
			}
		case "persist":
			if v, ok := value.(bool); ok {
				opts.Persist = v
			}
		case "persist_dir":
			if v, ok := value.(string); ok {
				opts.PersistDir = v
			}
		case "barcode_formats":
			if v, ok := toStrings(value); ok {
				opts.BarcodeFormats = v
			}
		}
	}

	return m.SetOptions(opts)
}

// OptionsJSON returns the current options as a map for JSON serialization.
func (m *Manager) OptionsJSON() map[string]any {
	data, _ := json.Marshal(m.Options())
	var result map[string]any
	json.Unmarshal(data, &result)
	return result
}

func toInt(v any) (int, bool) {
	switch val := v.(type) {
	case int:
		return val, true
	case int64:
		return int(val), true
	case float64:
		return int(val), true
	case json.Number:
		i, err := val.Int64()
		if err == nil {
			return int(i), true
		}
	}
	return 0, false
}

func toStrings(v any) ([]string, bool) {
	switch val := v.(type) {
	case []string:
		return val, true
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}
