package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	appName    = "espcore"
	configFile = "config.yaml"
)

// Settings holds tool-wide defaults loaded from the config file.
// Command-line flags override these values, which in turn override
// the built-in defaults.
type Settings struct {
	// Port is the default serial port used for flash reading and
	// live chip detection.
	Port string `yaml:"port"`

	// Baud is the default serial baud rate.
	Baud int `yaml:"baud"`

	// Esptool is the esptool binary invoked for flash reads and
	// chip detection. Default: "esptool" (searches PATH).
	Esptool string `yaml:"esptool"`

	// GDB maps a target name (esp32, esp32s3, ...) to an explicit
	// GDB binary path, overriding the toolchain default.
	GDB map[string]string `yaml:"gdb"`

	// RomELFDir is the directory searched for <target>_rom.elf files.
	// Empty means the current working directory.
	RomELFDir string `yaml:"rom_elf_dir"`

	// GDBTimeout bounds each GDB batch invocation.
	GDBTimeout time.Duration `yaml:"gdb_timeout"`
}

// Default returns the built-in settings used when no config file exists.
func Default() Settings {
	return Settings{
		Port:       "/dev/ttyUSB0",
		Baud:       115200,
		Esptool:    "esptool",
		GDB:        map[string]string{},
		GDBTimeout: 10 * time.Second,
	}
}

// GetConfigDir returns the OS-appropriate configuration directory.
// This follows platform conventions:
//   - Linux: $XDG_CONFIG_HOME/espcore or $HOME/.config/espcore
//   - macOS: $HOME/.config/espcore (following XDG convention on macOS)
//   - Windows: %LOCALAPPDATA%\espcore
func GetConfigDir() (string, error) {
	var baseDir string

	switch runtime.GOOS {
	case "windows":
		localAppData := os.Getenv("LOCALAPPDATA")
		if localAppData == "" {
			userProfile := os.Getenv("USERPROFILE")
			if userProfile == "" {
				return "", fmt.Errorf("cannot determine user profile directory (LOCALAPPDATA and USERPROFILE not set)")
			}
			baseDir = filepath.Join(userProfile, "AppData", "Local", appName)
		} else {
			baseDir = filepath.Join(localAppData, appName)
		}

	case "darwin":
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		baseDir = filepath.Join(homeDir, ".config", appName)

	default:
		xdgConfigHome := os.Getenv("XDG_CONFIG_HOME")
		if xdgConfigHome != "" {
			baseDir = filepath.Join(xdgConfigHome, appName)
		} else {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("cannot determine home directory: %w", err)
			}
			baseDir = filepath.Join(homeDir, ".config", appName)
		}
	}

	return baseDir, nil
}

// GetConfigPath returns the full path to the configuration file.
func GetConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, configFile), nil
}

// Load reads settings from the config file, falling back to Default()
// when the file does not exist. A malformed file is an error rather
// than a silent fallback.
func Load() (Settings, error) {
	path, err := GetConfigPath()
	if err != nil {
		return Default(), err
	}
	return LoadFrom(path)
}

// LoadFrom reads settings from an explicit path. Missing file returns
// defaults.
func LoadFrom(path string) (Settings, error) {
	settings := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return settings, nil
		}
		return settings, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &settings); err != nil {
		return Default(), fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if settings.Baud <= 0 {
		settings.Baud = Default().Baud
	}
	if settings.GDBTimeout <= 0 {
		settings.GDBTimeout = Default().GDBTimeout
	}
	if settings.Esptool == "" {
		settings.Esptool = Default().Esptool
	}
	if settings.GDB == nil {
		settings.GDB = map[string]string{}
	}

	return settings, nil
}

// Save writes settings to the config file, creating the directory if
// needed.
func Save(settings Settings) error {
	configDir, err := GetConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	path := filepath.Join(configDir, configFile)
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}
	return nil
}
