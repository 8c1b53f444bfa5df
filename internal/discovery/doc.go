// Package discovery provides mDNS-based discovery for Tuya LAN devices,
// supplemental to the UDP broadcast discovery in internal/tuya/udpbroadcast
// for devices or gateways that also advertise over mDNS.
//
// # Discovery process
//
//  1. Browse for the "_tuya._tcp" service type on the local network.
//  2. For each response, parse its TXT records for "id" (device ID),
//     "version" (protocol dialect), and "productKey".
//  3. Entries with no "id" TXT record are discarded — mDNS advertises
//     many unrelated services, and device ID is the only reliable filter.
//  4. Return the collected devices once the scan timeout elapses, or as
//     soon as a specific device ID is found (WaitForDevice).
//
// # Usage
//
//	devices, err := discovery.ScanForDevices(10 * time.Second)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, d := range devices {
//	    fmt.Println(d.String())
//	}
//
// # Network requirements
//
// Requires multicast support on the network interface and that the
// device and host share a local network segment; firewalls must allow
// mDNS (UDP port 5353).
//
// This package is safe for concurrent use: multiple scans may run
// simultaneously without interference.
package discovery
