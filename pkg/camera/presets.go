package camera

// Preset names for common capture configurations
const (
	PresetPhoto   = "photo"
	PresetBarcode = "barcode"
	PresetLowRes  = "lowres"
)

// Presets returns all available preset options.
func Presets() map[string]Options {
	return map[string]Options{
		PresetPhoto:   DefaultOptions(),
		PresetBarcode: BarcodeOptions(),
		PresetLowRes:  LowResOptions(),
	}
}

// PresetNames returns the list of available preset names.
func PresetNames() []string {
	return []string{PresetPhoto, PresetBarcode, PresetLowRes}
}

// GetPreset returns preset options by name, or nil if not found.
func GetPreset(name string) *Options {
	if cfg, ok := Presets()[name]; ok {
		return &cfg
	}
	return nil
}

// LowResOptions trades detail for upload size on slow connections.
func LowResOptions() Options {
	cfg := DefaultOptions()
	cfg.Width = 1024
	cfg.Quality = 70
	return cfg
}
