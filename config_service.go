package main

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
)

// Config holds persistent user preferences.
// Stored as JSON at ~/.loopy-looper/config.json.
type Config struct {
	RecordKey     string `json:"record_key"`      // toggle record hotkey, e.g. "f9"
	ResetKey      string `json:"reset_key"`       // reset loop hotkey
	PauseKey      string `json:"pause_key"`       // pause/resume playback hotkey
	TimedKey      string `json:"timed_key"`       // timed record hotkey
	InputDevice   string `json:"input_name"`      // mic device name; "" = default
	LoopDevice    string `json:"loop_name"`       // loop output device name
	MonitorDevice string `json:"monitor_name"`    // monitor output device name
	TimedRecordMs int    `json:"timed_record_ms"` // duration for timed record
}

// defaultConfig returns factory defaults.
func defaultConfig() Config {
	return Config{
		RecordKey:     "f9",
		ResetKey:      "f10",
		PauseKey:      "f11",
		TimedKey:      "f12",
		TimedRecordMs: 130,
	}
}

// ConfigService loads and saves user configuration.
type ConfigService struct {
	path string
}

// NewConfigService creates a ConfigService pointing to the standard config path.
func NewConfigService() *ConfigService {
	home, _ := os.UserHomeDir()
	return &ConfigService{
		path: filepath.Join(home, ".loopy-looper", "config.json"),
	}
}

// newConfigServiceAt creates a ConfigService with a custom path (tests only).
func newConfigServiceAt(path string) *ConfigService {
	return &ConfigService{path: path}
}

// Load reads config from disk. Returns defaults if the file doesn't exist.
// If the file is corrupt it logs the error and writes fresh defaults.
func (c *ConfigService) Load() Config {
	data, err := os.ReadFile(c.path)
	if os.IsNotExist(err) {
		return defaultConfig()
	}
	if err != nil {
		log.Printf("config: read error: %v — using defaults", err)
		return defaultConfig()
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		log.Printf("config: parse error: %v — resetting to defaults", err)
		defaults := defaultConfig()
		_ = c.Save(defaults) // overwrite corrupt file
		return defaults
	}
	// Fill any zero-value fields with defaults. Device names stay empty —
	// empty means "use system default".
	d := defaultConfig()
	if cfg.RecordKey == "" {
		cfg.RecordKey = d.RecordKey
	}
	if cfg.ResetKey == "" {
		cfg.ResetKey = d.ResetKey
	}
	if cfg.PauseKey == "" {
		cfg.PauseKey = d.PauseKey
	}
	if cfg.TimedKey == "" {
		cfg.TimedKey = d.TimedKey
	}
	if cfg.TimedRecordMs <= 0 {
		cfg.TimedRecordMs = d.TimedRecordMs
	}
	return cfg
}

// Save writes the config to disk atomically (write to temp, then rename).
func (c *ConfigService) Save(cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, c.path)
}
