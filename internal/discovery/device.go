package discovery

import (
	"fmt"
	"time"
)

// Device represents a Tuya device discovered via mDNS, supplemental to
// the in-band UDP broadcast discovery in internal/tuya/udpbroadcast.
type Device struct {
	// DeviceID is the Tuya device ID, taken from the service's "id" TXT
	// record.
	DeviceID string

	// Hostname is the mDNS hostname the service advertised under.
	Hostname string

	// IP is the device's LAN address (IPv4 preferred, IPv6 as fallback).
	IP string

	// Port is the TCP port the LAN protocol listens on (default 6668).
	Port int

	// Version is the advertised protocol dialect (e.g. "3.3", "3.4"),
	// taken from the "version" TXT record if present.
	Version string

	// ProductKey identifies the device's product template, taken from
	// the "productKey" TXT record if present.
	ProductKey string

	// Metadata holds every TXT record key/value pair verbatim, including
	// the ones copied into the fields above.
	Metadata map[string]string

	DiscoveredAt time.Time
}

// String returns a human-readable summary of the device.
func (d *Device) String() string {
	return fmt.Sprintf("Tuya device %s (%s) at %s:%d", d.DeviceID, d.Hostname, d.IP, d.Port)
}

// Addr returns the "ip:port" address to dial for this device.
func (d *Device) Addr() string {
	return fmt.Sprintf("%s:%d", d.IP, d.Port)
}

// GetMetadata retrieves a raw TXT record value by key, or "" if absent.
func (d *Device) GetMetadata(key string) string {
	if d.Metadata == nil {
		return ""
	}
	return d.Metadata[key]
}
