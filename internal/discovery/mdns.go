package discovery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
)

const (
	// ServiceType is the mDNS service type some Tuya gateway products
	// advertise under, alongside the UDP broadcast discovery every
	// device sends regardless of mDNS support.
	ServiceType = "_tuya._tcp"

	// ServiceDomain is the mDNS domain.
	ServiceDomain = "local."

	// DefaultScanTimeout is the default timeout for a discovery pass.
	DefaultScanTimeout = 10 * time.Second

	// DefaultPort is the LAN protocol's default TCP port.
	DefaultPort = 6668
)

// Scanner performs mDNS-based discovery of Tuya devices.
type Scanner struct {
	Timeout time.Duration
}

// NewScanner creates a Scanner with the default timeout.
func NewScanner() *Scanner {
	return &Scanner{Timeout: DefaultScanTimeout}
}

// ScanForDevices discovers every Tuya device currently advertising over
// mDNS, waiting the scanner's full timeout to collect all responses.
func (s *Scanner) ScanForDevices() ([]*Device, error) {
	return s.ScanForDevicesWithContext(context.Background())
}

// ScanForDevicesWithContext is ScanForDevices with a caller-supplied context.
func (s *Scanner) ScanForDevicesWithContext(ctx context.Context) ([]*Device, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	devices := make([]*Device, 0)

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	go func() {
		for entry := range entries {
			if d := parseServiceEntry(entry); d != nil {
				devices = append(devices, d)
			}
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	<-ctx.Done()
	return devices, nil
}

// WaitForDevice blocks until a device with the given device ID is seen,
// or the scanner's timeout elapses.
func (s *Scanner) WaitForDevice(deviceID string) (*Device, error) {
	return s.WaitForDeviceWithContext(context.Background(), deviceID)
}

// WaitForDeviceWithContext is WaitForDevice with a caller-supplied context.
func (s *Scanner) WaitForDeviceWithContext(ctx context.Context, deviceID string) (*Device, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	found := make(chan *Device, 1)

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	go func() {
		for entry := range entries {
			d := parseServiceEntry(entry)
			if d != nil && d.DeviceID == deviceID {
				found <- d
				cancel()
				return
			}
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	select {
	case d := <-found:
		return d, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("device %s not found within timeout", deviceID)
	}
}

// parseServiceEntry converts a zeroconf service entry into a Device.
// Returns nil if the entry carries no "id" TXT record, since that's the
// only thing that reliably identifies a Tuya device on this channel.
func parseServiceEntry(entry *zeroconf.ServiceEntry) *Device {
	metadata := make(map[string]string, len(entry.Text))
	for _, txt := range entry.Text {
		parts := strings.SplitN(txt, "=", 2)
		if len(parts) == 2 {
			metadata[parts[0]] = parts[1]
		} else {
			metadata[parts[0]] = ""
		}
	}

	deviceID := metadata["id"]
	if deviceID == "" {
		return nil
	}

	var ip string
	if len(entry.AddrIPv4) > 0 {
		ip = entry.AddrIPv4[0].String()
	} else if len(entry.AddrIPv6) > 0 {
		ip = entry.AddrIPv6[0].String()
	}
	if ip == "" {
		return nil
	}

	port := entry.Port
	if port == 0 {
		port = DefaultPort
	}

	return &Device{
		DeviceID:     deviceID,
		Hostname:     entry.HostName,
		IP:           ip,
		Port:         port,
		Version:      metadata["version"],
		ProductKey:   metadata["productKey"],
		Metadata:     metadata,
		DiscoveredAt: time.Now(),
	}
}

// ScanForDevices is a convenience wrapper for a one-off scan with a
// custom timeout.
func ScanForDevices(timeout time.Duration) ([]*Device, error) {
	s := NewScanner()
	s.Timeout = timeout
	return s.ScanForDevices()
}

// QuickScan performs a fast 3-second scan.
func QuickScan() ([]*Device, error) {
	s := NewScanner()
	s.Timeout = 3 * time.Second
	return s.ScanForDevices()
}

// FindDevice searches for a specific device ID with the default timeout.
func FindDevice(deviceID string) (*Device, error) {
	return NewScanner().WaitForDevice(deviceID)
}
