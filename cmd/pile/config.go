package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tailscale/hujson"
)

// Config holds operator-configurable defaults for the pile CLI. Flags passed
// on the command line always win over these.
type Config struct {
	Path           string `json:"path,omitempty"`            //nolint:tagliatelle
	DisableLocking bool   `json:"disable_locking,omitempty"` //nolint:tagliatelle
	LogLevel       string `json:"log_level,omitempty"`        //nolint:tagliatelle
}

// ConfigFileName is the default config file name, searched for in the
// working directory.
const ConfigFileName = ".pile.json"

// DefaultConfig returns the zero-value config augmented with the one default
// that must always hold: a usable log level.
func DefaultConfig() Config {
	return Config{LogLevel: "info"}
}

// getGlobalConfigPath follows the usual XDG-then-home lookup.
func getGlobalConfigPath(env []string) string {
	for _, e := range env {
		if after, ok := strings.CutPrefix(e, "XDG_CONFIG_HOME="); ok {
			return filepath.Join(after, "pile", "config.json")
		}
	}

	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "pile", "config.json")
	}

	home, err := os.UserHomeDir()
	if err == nil {
		return filepath.Join(home, ".config", "pile", "config.json")
	}

	return ""
}

// LoadConfig loads configuration with the following precedence (highest
// wins): 1. defaults, 2. global user config, 3. project config: the file
// named by configPath if given (then it must exist), else .pile.json in
// workDir, 4. CLI overrides applied by the caller afterward.
func LoadConfig(workDir, configPath string, env []string) (Config, error) {
	cfg := DefaultConfig()

	globalCfg, err := loadConfigFile(getGlobalConfigPath(env), false)
	if err != nil {
		return Config{}, err
	}
	cfg = mergeConfig(cfg, globalCfg)

	projectPath := filepath.Join(workDir, ConfigFileName)
	mustExist := false
	if configPath != "" {
		projectPath = configPath
		if !filepath.IsAbs(projectPath) {
			projectPath = filepath.Join(workDir, projectPath)
		}
		mustExist = true
	}

	projectCfg, err := loadConfigFile(projectPath, mustExist)
	if err != nil {
		return Config{}, err
	}
	cfg = mergeConfig(cfg, projectCfg)

	return cfg, nil
}

func loadConfigFile(path string, mustExist bool) (Config, error) {
	if path == "" {
		return Config{}, nil
	}

	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		if os.IsNotExist(err) && !mustExist {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("pile: reading config %q: %w", path, err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("pile: invalid JSONC in %q: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, fmt.Errorf("pile: invalid config %q: %w", path, err)
	}

	return cfg, nil
}

func mergeConfig(base, overlay Config) Config {
	if overlay.Path != "" {
		base.Path = overlay.Path
	}
	if overlay.LogLevel != "" {
		base.LogLevel = overlay.LogLevel
	}
	if overlay.DisableLocking {
		base.DisableLocking = true
	}
	return base
}
