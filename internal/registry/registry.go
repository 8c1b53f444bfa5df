package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"gopkg.in/yaml.v3"
)

const (
	appName    = "tuyalan"
	configFile = "config.yaml"
)

var (
	globalRegistry     *Registry
	globalRegistryOnce sync.Once
	globalRegistryErr  error

	fileMutex sync.Mutex
)

// ConfigDir returns the OS-appropriate configuration directory:
//   - Linux: $XDG_CONFIG_HOME/tuyalan or $HOME/.config/tuyalan
//   - macOS: $HOME/.config/tuyalan
//   - Windows: %LOCALAPPDATA%\tuyalan
func ConfigDir() (string, error) {
	switch runtime.GOOS {
	case "windows":
		if localAppData := os.Getenv("LOCALAPPDATA"); localAppData != "" {
			return filepath.Join(localAppData, appName), nil
		}
		userProfile := os.Getenv("USERPROFILE")
		if userProfile == "" {
			return "", fmt.Errorf("cannot determine user profile directory (LOCALAPPDATA and USERPROFILE not set)")
		}
		return filepath.Join(userProfile, "AppData", "Local", appName), nil

	case "darwin":
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		return filepath.Join(homeDir, ".config", appName), nil

	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, appName), nil
		}
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		return filepath.Join(homeDir, ".config", appName), nil
	}
}

// ConfigPath returns the full path to the registry file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFile), nil
}

func ensureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return fmt.Errorf("failed to get config directory: %w", err)
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return nil
}

// Load loads the registry from disk, returning a new default registry if
// the file doesn't yet exist. Thread-safe; repeated calls within a process
// return the same cached instance. Use Reload to pick up external changes.
func Load() (*Registry, error) {
	globalRegistryOnce.Do(func() {
		globalRegistry, globalRegistryErr = loadFromDisk()
	})
	return globalRegistry, globalRegistryErr
}

func loadFromDisk() (*Registry, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, fmt.Errorf("failed to get config path: %w", err)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return NewRegistry(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var reg Registry
	if err := yaml.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if reg.Version != schemaVersion {
		return nil, fmt.Errorf("unsupported config version: %d (expected %d)", reg.Version, schemaVersion)
	}
	if reg.Devices == nil {
		reg.Devices = make(map[string]*Device)
	}
	if reg.Preferences == nil {
		reg.Preferences = &Preferences{AutoDiscover: true, DiscoverTimeout: 10}
	}
	return &reg, nil
}

// Save writes the registry to disk atomically (write to a temp file, then
// rename over the real path) so a crash mid-write can't corrupt it.
func (r *Registry) Save() error {
	fileMutex.Lock()
	defer fileMutex.Unlock()

	if err := ensureConfigDir(); err != nil {
		return fmt.Errorf("failed to ensure config directory exists: %w", err)
	}

	path, err := ConfigPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}

	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# tuyalan configuration file
# This file stores user-defined metadata for Tuya LAN devices.
#
# Security note: local keys are only written here if save_local_keys is
# enabled in preferences, or when entered with 'tuyalan pair'. Otherwise,
# keys are re-fetched or re-entered each run.
#
# Location: ` + path + `

`)
	data = append(header, data...)

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary config file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save config file: %w", err)
	}
	return nil
}

// Reload discards the cached registry and reloads it from disk, picking up
// changes made by another process.
func Reload() (*Registry, error) {
	fileMutex.Lock()
	defer fileMutex.Unlock()
	globalRegistryOnce = sync.Once{}
	return Load()
}

// SaveGlobal loads (or reuses) the cached registry and saves it to disk.
func SaveGlobal() error {
	reg, err := Load()
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}
	return reg.Save()
}
