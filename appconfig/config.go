package appconfig

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/stevecastle/yoro/platform"
)

// Config holds application configuration including conversion parameters,
// depth model paths, and encoder settings.
type Config struct {
	// Conversion mode: "quality" or "performance"
	Mode string `json:"mode"`

	// Downsample factor for performance mode (2, 4, 8, or 16)
	ReprojectionScale int `json:"reprojectionScale"`

	// Informational per-eye render resolution multiplier. Carried in the
	// config and reported to the user; it does not alter the pipeline.
	EyeTextureResolutionScale float64 `json:"eyeTextureResolutionScale"`

	// Virtual camera parameters
	IPD        float64 `json:"ipd"`
	FOVDegrees float64 `json:"fovDegrees"`
	NearClip   float64 `json:"nearClip"`
	FarClip    float64 `json:"farClip"`

	// Video chunking
	ChunkSize int `json:"chunkSize"`
	Workers   int `json:"workers"`

	// Depth model settings
	DepthModel struct {
		ModelPath            string `json:"modelPath"`
		ORTSharedLibraryPath string `json:"ortSharedLibraryPath"`
		InputName            string `json:"inputName"`
		OutputName           string `json:"outputName"`
		InputSize            int    `json:"inputSize"`
		HardwareAcceleration bool   `json:"hardwareAcceleration"`
	} `json:"depthModel"`

	// Output encoder settings
	Encoder struct {
		Codec  string `json:"codec"`
		CRF    int    `json:"crf"`
		Preset string `json:"preset"`
	} `json:"encoder"`

	// Path to the checkpoint database for resumable video jobs
	StatePath string `json:"statePath"`
}

var (
	cfgMu sync.RWMutex
	cfg   Config
)

// DefaultStatePath returns the default checkpoint database path.
// Uses the platform-specific data directory.
func DefaultStatePath() string {
	return filepath.Join(platform.GetDataDir(), "jobs.db")
}

// DefaultConfigDir returns the default config directory path.
// Uses the platform-specific data directory.
func DefaultConfigDir() string {
	return platform.GetDataDir()
}

// defaultConfig returns a Config populated with sensible defaults.
func defaultConfig() Config {
	c := Config{
		Mode:                      "quality",
		ReprojectionScale:         4,
		EyeTextureResolutionScale: 1,
		IPD:                       0.064,
		FOVDegrees:                90,
		NearClip:                  0.1,
		FarClip:                   1000,
		ChunkSize:                 100,
		Workers:                   0, // 0 means runtime.NumCPU at conversion time
		StatePath:                 DefaultStatePath(),
	}
	c.DepthModel.InputName = "image"
	c.DepthModel.OutputName = "depth"
	c.DepthModel.InputSize = 518
	c.DepthModel.HardwareAcceleration = true
	c.Encoder.Codec = "libx265"
	c.Encoder.CRF = 23
	c.Encoder.Preset = "medium"
	return c
}

// Get returns a copy of the current in-memory config.
func Get() Config {
	cfgMu.RLock()
	defer cfgMu.RUnlock()
	return cfg
}

// Set replaces the in-memory config.
func Set(c Config) {
	cfgMu.Lock()
	cfg = c
	cfgMu.Unlock()
}

// Validate checks the parameter ranges a conversion run depends on.
func Validate(c Config) error {
	switch c.Mode {
	case "quality", "performance":
	default:
		return fmt.Errorf("invalid mode %q (want quality or performance)", c.Mode)
	}
	switch c.ReprojectionScale {
	case 2, 4, 8, 16:
	default:
		return fmt.Errorf("invalid reprojection scale %d (want 2, 4, 8, or 16)", c.ReprojectionScale)
	}
	if c.IPD <= 0 {
		return fmt.Errorf("ipd must be positive, got %v", c.IPD)
	}
	if c.FOVDegrees <= 0 || c.FOVDegrees >= 180 {
		return fmt.Errorf("fov must be in (0, 180), got %v", c.FOVDegrees)
	}
	if c.NearClip <= 0 || c.FarClip <= c.NearClip {
		return fmt.Errorf("invalid clip planes near=%v far=%v", c.NearClip, c.FarClip)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", c.ChunkSize)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be >= 0, got %d", c.Workers)
	}
	return nil
}

func isJSONObject(raw []byte) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}

func deepMergeJSON(dst, src map[string]json.RawMessage) {
	for k, v := range src {
		if existing, ok := dst[k]; ok && isJSONObject(existing) && isJSONObject(v) {
			var dstObj map[string]json.RawMessage
			var srcObj map[string]json.RawMessage
			if err := json.Unmarshal(existing, &dstObj); err != nil {
				dst[k] = v
				continue
			}
			if err := json.Unmarshal(v, &srcObj); err != nil {
				dst[k] = v
				continue
			}
			deepMergeJSON(dstObj, srcObj)
			merged, err := json.Marshal(dstObj)
			if err != nil {
				dst[k] = v
				continue
			}
			dst[k] = merged
			continue
		}
		dst[k] = v
	}
}

// getConfigPath returns the full path to the config.json file.
func getConfigPath() (string, error) {
	configDir := DefaultConfigDir()
	return filepath.Join(configDir, "config.json"), nil
}

// Load reads the config from disk and updates the in-memory config. It returns the config and path.
// If the config file doesn't exist, it creates one with default values.
func Load() (Config, string, error) {
	path, err := getConfigPath()
	if err != nil {
		return Config{}, "", err
	}

	configDir := filepath.Dir(path)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return Config{}, "", fmt.Errorf("failed to create config directory %s: %v", configDir, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Config file doesn't exist - create it with defaults
			def := defaultConfig()
			savedPath, saveErr := Save(def)
			if saveErr != nil {
				return Config{}, path, fmt.Errorf("failed to create default config file: %v", saveErr)
			}
			Set(def)
			return def, savedPath, nil
		}
		return Config{}, path, fmt.Errorf("failed to read config file at %s: %v", path, err)
	}

	var c Config
	if err := json.Unmarshal(data, &c); err != nil {
		return Config{}, path, fmt.Errorf("failed to parse config JSON: %v", err)
	}

	// Merge defaults for any missing fields
	def := defaultConfig()
	needsSave := false

	if c.Mode == "" {
		c.Mode = def.Mode
		needsSave = true
	}
	if c.ReprojectionScale == 0 {
		c.ReprojectionScale = def.ReprojectionScale
	}
	if c.EyeTextureResolutionScale == 0 {
		c.EyeTextureResolutionScale = def.EyeTextureResolutionScale
	}
	if c.IPD == 0 {
		c.IPD = def.IPD
	}
	if c.FOVDegrees == 0 {
		c.FOVDegrees = def.FOVDegrees
	}
	if c.NearClip == 0 {
		c.NearClip = def.NearClip
	}
	if c.FarClip == 0 {
		c.FarClip = def.FarClip
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = def.ChunkSize
	}
	if c.DepthModel.InputName == "" {
		c.DepthModel.InputName = def.DepthModel.InputName
	}
	if c.DepthModel.OutputName == "" {
		c.DepthModel.OutputName = def.DepthModel.OutputName
	}
	if c.DepthModel.InputSize == 0 {
		c.DepthModel.InputSize = def.DepthModel.InputSize
	}
	if c.Encoder.Codec == "" {
		c.Encoder.Codec = def.Encoder.Codec
	}
	if c.Encoder.CRF == 0 {
		c.Encoder.CRF = def.Encoder.CRF
	}
	if c.Encoder.Preset == "" {
		c.Encoder.Preset = def.Encoder.Preset
	}
	if c.StatePath == "" {
		c.StatePath = def.StatePath
		needsSave = true
	}

	if err := Validate(c); err != nil {
		return Config{}, path, fmt.Errorf("invalid config at %s: %w", path, err)
	}

	// Ensure the checkpoint directory exists
	stateDir := filepath.Dir(c.StatePath)
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return Config{}, path, fmt.Errorf("failed to create state directory %s: %v", stateDir, err)
	}

	// Save config if we had to fill in critical missing fields
	if needsSave {
		if _, saveErr := Save(c); saveErr != nil {
			// Continue with the in-memory config
			fmt.Printf("Warning: failed to save updated config: %v\n", saveErr)
		}
	}

	Set(c)
	return c, path, nil
}

// Save writes the config to disk, creating the directory as needed. Returns the path.
func Save(c Config) (string, error) {
	path, err := getConfigPath()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return path, fmt.Errorf("failed to create config directory: %v", err)
	}
	base := map[string]json.RawMessage{}
	if existing, readErr := os.ReadFile(path); readErr == nil {
		var tmp map[string]json.RawMessage
		if err := json.Unmarshal(existing, &tmp); err == nil {
			base = tmp
		}
	}

	marshaled, err := json.Marshal(c)
	if err != nil {
		return path, fmt.Errorf("failed to marshal config: %v", err)
	}
	incoming := map[string]json.RawMessage{}
	if err := json.Unmarshal(marshaled, &incoming); err != nil {
		return path, fmt.Errorf("failed to map config JSON: %v", err)
	}

	deepMergeJSON(base, incoming)

	mergedData, err := json.MarshalIndent(base, "", "  ")
	if err != nil {
		return path, fmt.Errorf("failed to marshal merged config: %v", err)
	}
	if err := os.WriteFile(path, mergedData, 0644); err != nil {
		return path, fmt.Errorf("failed to write config file: %v", err)
	}
	Set(c)
	return path, nil
}
