package cloudapi

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

const arpTablePath = "/proc/net/arp"

// ResolveIPByMAC scans the kernel's ARP table for an entry matching mac
// (case-insensitive, any of the common colon/dash/bare formats) and
// returns its current IP address. Linux-only; returns an error on other
// platforms or if the address isn't present in the table.
func ResolveIPByMAC(mac string) (string, error) {
	f, err := os.Open(arpTablePath)
	if err != nil {
		return "", newNetworkError("failed to open ARP table", err)
	}
	defer f.Close()
	return resolveIPByMAC(f, mac)
}

func resolveIPByMAC(r io.Reader, mac string) (string, error) {
	want := normalizeMAC(mac)
	scanner := bufio.NewScanner(r)

	// Header line: "IP address       HW type     Flags       HW address            Mask     Device"
	if !scanner.Scan() {
		return "", newParseError("empty ARP table", nil)
	}

	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 {
			continue
		}
		ip, hwAddr := fields[0], fields[3]
		if normalizeMAC(hwAddr) == want {
			return ip, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", newParseError("failed to read ARP table", err)
	}
	return "", newNotFoundError(fmt.Sprintf("no ARP entry for MAC %s", mac))
}

func normalizeMAC(mac string) string {
	mac = strings.ToLower(mac)
	mac = strings.ReplaceAll(mac, "-", "")
	mac = strings.ReplaceAll(mac, ":", "")
	return mac
}
