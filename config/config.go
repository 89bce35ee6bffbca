package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds the terminal configuration
type Config struct {
	Shell     string `yaml:"shell"`
	Term      string `yaml:"term"`
	Charset   string `yaml:"charset"` // "utf-8" or "euc-jp"
	DRIDevice string `yaml:"dri_device"`

	DefaultFg          uint8 `yaml:"default_fg"`
	DefaultBg          uint8 `yaml:"default_bg"`
	ActiveCursorColor  uint8 `yaml:"active_cursor_color"`
	PassiveCursorColor uint8 `yaml:"passive_cursor_color"`

	// BackgroundDraw keeps rasterising while the console is switched
	// away instead of suspending until reacquired.
	BackgroundDraw bool `yaml:"background_draw"`
}

// Default returns the built-in configuration.
func Default() *Config {
	shell := os.Getenv("SHELL")
	if shell == "" {
		shell = "/bin/bash"
	}
	return &Config{
		Shell:              shell,
		Term:               "xterm-256color",
		Charset:            "utf-8",
		DRIDevice:          "/dev/dri/card0",
		DefaultFg:          7,
		DefaultBg:          0,
		ActiveCursorColor:  2,
		PassiveCursorColor: 1,
	}
}

// Path returns the default config file location.
func Path() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".kmsterm.yaml"
	}
	return filepath.Join(home, ".config", "kmsterm", "config.yaml")
}

// Load reads the config at path on top of the defaults. A missing file is
// not an error; a malformed one is.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = Path()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}
