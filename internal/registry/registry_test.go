package registry

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestConfigDir(t *testing.T) {
	dir, err := ConfigDir()
	if err != nil {
		t.Fatalf("ConfigDir() error = %v", err)
	}
	if dir == "" {
		t.Fatal("ConfigDir() returned empty string")
	}
	if !strings.Contains(dir, "tuyalan") {
		t.Errorf("ConfigDir() = %v, should contain 'tuyalan'", dir)
	}
	switch runtime.GOOS {
	case "windows":
		if !strings.Contains(dir, "AppData") && !strings.Contains(dir, "Local") {
			t.Errorf("Windows config dir should contain 'AppData' or 'Local', got: %v", dir)
		}
	case "darwin", "linux":
		if !strings.Contains(dir, ".config") {
			t.Errorf("Unix config dir should contain '.config', got: %v", dir)
		}
	}
}

func TestConfigPath(t *testing.T) {
	path, err := ConfigPath()
	if err != nil {
		t.Fatalf("ConfigPath() error = %v", err)
	}
	if filepath.Base(path) != "config.yaml" {
		t.Errorf("ConfigPath() should end with 'config.yaml', got: %v", path)
	}
}

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry()
	if reg.Version != schemaVersion {
		t.Errorf("Version = %v, want %v", reg.Version, schemaVersion)
	}
	if reg.Devices == nil {
		t.Error("Devices should not be nil")
	}
	if reg.Preferences == nil || !reg.Preferences.AutoDiscover {
		t.Error("AutoDiscover should default to true")
	}
	if reg.Preferences.DiscoverTimeout != 10 {
		t.Errorf("DiscoverTimeout = %v, want 10", reg.Preferences.DiscoverTimeout)
	}
}

func TestRegistryEnsureDevice(t *testing.T) {
	reg := NewRegistry()

	d1 := reg.EnsureDevice("dev1")
	if d1 == nil {
		t.Fatal("EnsureDevice returned nil")
	}
	d2 := reg.EnsureDevice("dev1")
	if d1 != d2 {
		t.Error("EnsureDevice should return the same instance for the same ID")
	}
	d3 := reg.EnsureDevice("dev2")
	if d1 == d3 {
		t.Error("EnsureDevice should create a new instance for a different ID")
	}
}

func TestRegistryUpdateDeviceLastSeen(t *testing.T) {
	reg := NewRegistry()
	now := time.Date(2026, 7, 29, 12, 0, 0, 0, time.UTC)

	reg.UpdateDeviceLastSeen("dev1", "192.168.1.50", "3.3", now)

	d := reg.GetDevice("dev1")
	if d == nil {
		t.Fatal("device should exist after UpdateDeviceLastSeen")
	}
	if d.LastIP != "192.168.1.50" {
		t.Errorf("LastIP = %v, want 192.168.1.50", d.LastIP)
	}
	if d.LastVersion != "3.3" {
		t.Errorf("LastVersion = %v, want 3.3", d.LastVersion)
	}
	if !d.LastSeen.Equal(now) {
		t.Errorf("LastSeen = %v, want %v", d.LastSeen, now)
	}
}

func TestRegistrySetDeviceNickname(t *testing.T) {
	reg := NewRegistry()
	reg.SetDeviceNickname("dev1", "Bedroom Plug")

	d := reg.GetDevice("dev1")
	if d == nil || d.Nickname != "Bedroom Plug" {
		t.Fatalf("Nickname = %+v, want 'Bedroom Plug'", d)
	}
}

func TestRegistrySetLocalKeyRespectsPreference(t *testing.T) {
	reg := NewRegistry()
	reg.Preferences.SaveLocalKeys = false
	reg.SetLocalKey("dev1", "abcdef0123456789")

	if d := reg.GetDevice("dev1"); d != nil && d.LocalKey != "" {
		t.Errorf("local key should not be persisted when SaveLocalKeys is false, got %q", d.LocalKey)
	}

	reg.Preferences.SaveLocalKeys = true
	reg.SetLocalKey("dev1", "abcdef0123456789")
	d := reg.GetDevice("dev1")
	if d == nil || d.LocalKey != "abcdef0123456789" {
		t.Errorf("local key should be persisted when SaveLocalKeys is true, got %+v", d)
	}
}

func TestRegistryRemoveDevice(t *testing.T) {
	reg := NewRegistry()
	reg.EnsureDevice("dev1")
	reg.RemoveDevice("dev1")

	if reg.GetDevice("dev1") != nil {
		t.Error("device should be gone after RemoveDevice")
	}
}

func TestRegistryYAMLRoundTrip(t *testing.T) {
	reg := NewRegistry()
	reg.Preferences.SaveLocalKeys = true
	reg.SetDeviceNickname("dev1", "Kitchen Switch")
	reg.SetLocalKey("dev1", "0123456789abcdef")
	reg.UpdateDeviceLastSeen("dev1", "10.0.0.5", "3.4", time.Now().UTC().Truncate(time.Second))

	data, err := yaml.Marshal(reg)
	if err != nil {
		t.Fatalf("yaml.Marshal: %v", err)
	}

	var loaded Registry
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		t.Fatalf("yaml.Unmarshal: %v", err)
	}

	d := loaded.GetDevice("dev1")
	if d == nil {
		t.Fatal("device missing after round trip")
	}
	if d.Nickname != "Kitchen Switch" {
		t.Errorf("Nickname = %v, want Kitchen Switch", d.Nickname)
	}
	if d.LocalKey != "0123456789abcdef" {
		t.Errorf("LocalKey = %v, want 0123456789abcdef", d.LocalKey)
	}
	if d.LastVersion != "3.4" {
		t.Errorf("LastVersion = %v, want 3.4", d.LastVersion)
	}
	if strings.Contains(string(data), "0123456789abcdef") {
		t.Error("local key should be obfuscated on disk, found it in the clear")
	}
}

func TestRegistrySaveAndLoad(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "tuyalan-registry-test-*")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	t.Setenv("XDG_CONFIG_HOME", tmpDir)
	if runtime.GOOS == "windows" {
		t.Setenv("LOCALAPPDATA", tmpDir)
	}

	reg := NewRegistry()
	reg.SetDeviceNickname("dev1", "Test Device")
	if err := reg.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	path, err := ConfigPath()
	if err != nil {
		t.Fatalf("ConfigPath: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	var loaded Registry
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		t.Fatalf("yaml.Unmarshal: %v", err)
	}
	d := loaded.GetDevice("dev1")
	if d == nil || d.Nickname != "Test Device" {
		t.Errorf("loaded device = %+v, want nickname 'Test Device'", d)
	}
}
