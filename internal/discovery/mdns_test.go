package discovery

import (
	"net"
	"testing"
	"time"

	"github.com/grandcat/zeroconf"
)

func TestParseServiceEntry(t *testing.T) {
	tests := []struct {
		name         string
		entry        *zeroconf.ServiceEntry
		wantNil      bool
		wantDeviceID string
		wantIP       string
		wantPort     int
	}{
		{
			name: "valid Tuya device with IPv4",
			entry: &zeroconf.ServiceEntry{
				HostName: "tuya-bf123.local.",
				Port:     6668,
				AddrIPv4: []net.IP{net.ParseIP("192.168.4.16")},
				Text:     []string{"id=bf1234567890abcdef", "version=3.3"},
			},
			wantNil:      false,
			wantDeviceID: "bf1234567890abcdef",
			wantIP:       "192.168.4.16",
			wantPort:     6668,
		},
		{
			name: "device with no port specified defaults to 6668",
			entry: &zeroconf.ServiceEntry{
				HostName: "tuya-xyz.local",
				Port:     0,
				AddrIPv4: []net.IP{net.ParseIP("172.16.0.1")},
				Text:     []string{"id=xyz999"},
			},
			wantNil:      false,
			wantDeviceID: "xyz999",
			wantIP:       "172.16.0.1",
			wantPort:     DefaultPort,
		},
		{
			name: "entry with no id TXT record is discarded",
			entry: &zeroconf.ServiceEntry{
				HostName: "someotherdevice.local",
				Port:     80,
				AddrIPv4: []net.IP{net.ParseIP("192.168.1.1")},
				Text:     []string{"path=/"},
			},
			wantNil: true,
		},
		{
			name: "no IP address",
			entry: &zeroconf.ServiceEntry{
				HostName: "tuya-noip.local",
				Port:     6668,
				Text:     []string{"id=noip"},
			},
			wantNil: true,
		},
		{
			name: "IPv6 only device",
			entry: &zeroconf.ServiceEntry{
				HostName: "tuya-v6.local",
				Port:     6668,
				AddrIPv6: []net.IP{net.ParseIP("fe80::1")},
				Text:     []string{"id=v6dev"},
			},
			wantNil:      false,
			wantDeviceID: "v6dev",
			wantIP:       "fe80::1",
			wantPort:     6668,
		},
		{
			name: "both IPv4 and IPv6 prefers IPv4",
			entry: &zeroconf.ServiceEntry{
				HostName: "tuya-both.local",
				Port:     6668,
				AddrIPv4: []net.IP{net.ParseIP("192.168.1.50")},
				AddrIPv6: []net.IP{net.ParseIP("fe80::2")},
				Text:     []string{"id=bothdev"},
			},
			wantNil:      false,
			wantDeviceID: "bothdev",
			wantIP:       "192.168.1.50",
			wantPort:     6668,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			device := parseServiceEntry(tt.entry)

			if tt.wantNil {
				if device != nil {
					t.Errorf("parseServiceEntry() = %v, want nil", device)
				}
				return
			}

			if device == nil {
				t.Fatal("parseServiceEntry() = nil, want non-nil device")
			}
			if device.DeviceID != tt.wantDeviceID {
				t.Errorf("device.DeviceID = %v, want %v", device.DeviceID, tt.wantDeviceID)
			}
			if device.IP != tt.wantIP {
				t.Errorf("device.IP = %v, want %v", device.IP, tt.wantIP)
			}
			if device.Port != tt.wantPort {
				t.Errorf("device.Port = %v, want %v", device.Port, tt.wantPort)
			}
			if device.Hostname != tt.entry.HostName {
				t.Errorf("device.Hostname = %v, want %v", device.Hostname, tt.entry.HostName)
			}
			if time.Since(device.DiscoveredAt) > time.Second {
				t.Errorf("device.DiscoveredAt is not recent: %v", device.DiscoveredAt)
			}
		})
	}
}

func TestParseServiceEntry_Metadata(t *testing.T) {
	entry := &zeroconf.ServiceEntry{
		HostName: "tuya-bf123.local",
		Port:     6668,
		AddrIPv4: []net.IP{net.ParseIP("192.168.4.16")},
		Text:     []string{"id=bf123", "version=3.4", "productKey=pk1", "flag"},
	}

	device := parseServiceEntry(entry)
	if device == nil {
		t.Fatal("parseServiceEntry() = nil, want device")
	}

	if device.Version != "3.4" {
		t.Errorf("device.Version = %q, want 3.4", device.Version)
	}
	if device.ProductKey != "pk1" {
		t.Errorf("device.ProductKey = %q, want pk1", device.ProductKey)
	}

	expectedMetadata := map[string]string{
		"id":         "bf123",
		"version":    "3.4",
		"productKey": "pk1",
		"flag":       "",
	}
	if len(device.Metadata) != len(expectedMetadata) {
		t.Errorf("device.Metadata has %d entries, want %d", len(device.Metadata), len(expectedMetadata))
	}
	for key, want := range expectedMetadata {
		if got, ok := device.Metadata[key]; !ok || got != want {
			t.Errorf("device.Metadata[%q] = %q, ok=%v, want %q", key, got, ok, want)
		}
	}
}

func TestNewScanner(t *testing.T) {
	scanner := NewScanner()
	if scanner == nil {
		t.Fatal("NewScanner() = nil, want scanner")
	}
	if scanner.Timeout != DefaultScanTimeout {
		t.Errorf("scanner.Timeout = %v, want %v", scanner.Timeout, DefaultScanTimeout)
	}
}

// Note: live mDNS discovery needs network access and is not covered by
// these tests.
