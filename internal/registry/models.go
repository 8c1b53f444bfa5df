package registry

import "time"

// schemaVersion is the current on-disk registry format. Bump and add a
// migration in loadFromDisk if the shape ever changes.
const schemaVersion = 1

// Registry is the root of the persisted configuration file: every device
// the user has paired with or discovered, keyed by its Tuya device ID.
type Registry struct {
	Version     int                `yaml:"version"`
	Devices     map[string]*Device `yaml:"devices,omitempty"`
	Preferences *Preferences       `yaml:"preferences,omitempty"`
}

// Device holds everything needed to reconnect to a device without
// rediscovering or re-querying the cloud API, plus cosmetic metadata.
//
// LocalKey is held in plain text in memory; MarshalYAML/UnmarshalYAML
// obfuscate it on the way to and from disk (see obfuscate.go) so callers
// never have to think about the on-disk encoding.
type Device struct {
	Nickname string

	// LocalKey is stored only when the user opts in (SaveLocalKeys) or
	// enters it with `tuyalan pair`; otherwise it is re-fetched from the
	// cloud API or re-entered each run.
	LocalKey string

	LastIP      string
	LastVersion string // e.g. "3.3", "3.4"
	LastSeen    time.Time

	ProductKey string
}

// deviceYAML is the on-disk shape of a Device, with the local key
// obfuscated rather than stored in the clear.
type deviceYAML struct {
	Nickname       string    `yaml:"nickname,omitempty"`
	LocalKeyObfusc string    `yaml:"local_key,omitempty"`
	LastIP         string    `yaml:"last_ip,omitempty"`
	LastVersion    string    `yaml:"last_version,omitempty"`
	LastSeen       time.Time `yaml:"last_seen,omitempty"`
	ProductKey     string    `yaml:"product_key,omitempty"`
}

// MarshalYAML implements yaml.Marshaler.
func (d Device) MarshalYAML() (any, error) {
	return deviceYAML{
		Nickname:       d.Nickname,
		LocalKeyObfusc: obfuscateLocalKey(d.LocalKey),
		LastIP:         d.LastIP,
		LastVersion:    d.LastVersion,
		LastSeen:       d.LastSeen,
		ProductKey:     d.ProductKey,
	}, nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Device) UnmarshalYAML(unmarshal func(any) error) error {
	var raw deviceYAML
	if err := unmarshal(&raw); err != nil {
		return err
	}
	d.Nickname = raw.Nickname
	d.LocalKey = deobfuscateLocalKey(raw.LocalKeyObfusc)
	d.LastIP = raw.LastIP
	d.LastVersion = raw.LastVersion
	d.LastSeen = raw.LastSeen
	d.ProductKey = raw.ProductKey
	return nil
}

// Preferences holds registry-wide defaults that apply when a per-device
// value isn't set.
type Preferences struct {
	AutoDiscover    bool `yaml:"auto_discover"`
	DiscoverTimeout int  `yaml:"discover_timeout_seconds"`
	SaveLocalKeys   bool `yaml:"save_local_keys"`
}

// NewRegistry returns an empty registry with sane defaults, suitable both
// as the in-memory starting point and as what gets written the first time
// the config file doesn't yet exist.
func NewRegistry() *Registry {
	return &Registry{
		Version: schemaVersion,
		Devices: make(map[string]*Device),
		Preferences: &Preferences{
			AutoDiscover:    true,
			DiscoverTimeout: 10,
		},
	}
}

// GetDevice returns the device with the given ID, or nil if unknown.
func (r *Registry) GetDevice(deviceID string) *Device {
	return r.Devices[deviceID]
}

// EnsureDevice returns the existing device for deviceID, creating and
// inserting an empty one if it isn't already tracked.
func (r *Registry) EnsureDevice(deviceID string) *Device {
	if r.Devices == nil {
		r.Devices = make(map[string]*Device)
	}
	d, ok := r.Devices[deviceID]
	if !ok {
		d = &Device{}
		r.Devices[deviceID] = d
	}
	return d
}

// UpdateDeviceLastSeen records the IP and protocol version a device was
// last reached at, creating the device entry if needed.
func (r *Registry) UpdateDeviceLastSeen(deviceID, ip, version string, seenAt time.Time) {
	d := r.EnsureDevice(deviceID)
	d.LastIP = ip
	d.LastVersion = version
	d.LastSeen = seenAt
}

// SetDeviceNickname sets a user-facing label for a device.
func (r *Registry) SetDeviceNickname(deviceID, nickname string) {
	r.EnsureDevice(deviceID).Nickname = nickname
}

// SetLocalKey records a device's local key, but only if the registry's
// preferences opt in to persisting keys at rest.
func (r *Registry) SetLocalKey(deviceID, localKey string) {
	if r.Preferences != nil && !r.Preferences.SaveLocalKeys {
		return
	}
	r.EnsureDevice(deviceID).LocalKey = localKey
}

// RemoveDevice forgets a device entirely.
func (r *Registry) RemoveDevice(deviceID string) {
	delete(r.Devices, deviceID)
}
