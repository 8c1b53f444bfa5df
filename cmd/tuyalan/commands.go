package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/muurk/tuyalan/internal/discovery"
	"github.com/muurk/tuyalan/internal/monitor"
	"github.com/muurk/tuyalan/internal/registry"
	"github.com/muurk/tuyalan/internal/tuya"
	"github.com/muurk/tuyalan/internal/tuya/udpbroadcast"
)

// Device command flags, persistent across connect/status/set/monitor.
var (
	deviceIP     string
	devicePort   int
	deviceID     string
	localKeyFlag string
	protoVersion string
	scanTimeout  int
	outputFormat string
	monitorAddr  string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&deviceIP, "ip", "", "Device IP address (skips discovery)")
	rootCmd.PersistentFlags().IntVar(&devicePort, "port", tuya.DefaultPort, "Device TCP port")
	rootCmd.PersistentFlags().StringVar(&deviceID, "id", "", "Device ID (gwId)")
	rootCmd.PersistentFlags().StringVar(&localKeyFlag, "local-key", "", "Device local key (overrides the registry)")
	rootCmd.PersistentFlags().StringVar(&protoVersion, "proto", "3.3", "Protocol version (3.1, 3.2, 3.3, 3.4, 3.5)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "detailed", "Output format (detailed, compact, json)")

	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(pairCmd)
	rootCmd.AddCommand(monitorCmd)
}

// stdoutListener implements tuya.Listener by printing every event to
// stdout, for 'tuyalan connect' running without --quiet.
type stdoutListener struct{ quiet bool }

func (l stdoutListener) StatusUpdated(dps map[string]any) {
	if l.quiet {
		return
	}
	fmt.Println("update:")
	printDPS(dps)
}

func (l stdoutListener) Disconnected(err error) {
	if err != nil {
		fmt.Printf("disconnected: %v\n", err)
	} else {
		fmt.Println("disconnected")
	}
}

var connectQuiet bool

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Open a persistent connection to a device and print live updates",
	Long: `Connect to a device and hold the connection open, printing every
unsolicited data-point update the device pushes until interrupted.`,
	Example: `  tuyalan connect --id bf1234567890abcdef1234 --ip 192.168.1.42 --local-key abcdef0123456789`,
	RunE:    runConnect,
}

func init() {
	connectCmd.Flags().BoolVar(&connectQuiet, "quiet", false, "Don't print push updates, just hold the connection open")
}

func runConnect(cmd *cobra.Command, args []string) error {
	cfg, err := resolveDevice()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sess := tuya.NewSession(cfg)
	if err := sess.Connect(ctx, stdoutListener{quiet: connectQuiet}); err != nil {
		return fmt.Errorf("connect failed: %w", err)
	}
	defer sess.Close()

	rememberDevice(cfg)
	fmt.Printf("Connected to %s at %s. Press Ctrl+C to disconnect.\n", cfg.DeviceID, cfg.IP)

	dps, err := sess.Status(ctx)
	if err != nil {
		fmt.Printf("warning: initial status query failed: %v\n", err)
	} else if !connectQuiet {
		printDPS(dps)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	return nil
}

// resolveDevice fills in IP/local key/version from --ip/--local-key/--proto
// if given, otherwise from the registry entry for --id, otherwise by
// discovering the device on the network.
func resolveDevice() (tuya.Config, error) {
	if deviceID == "" {
		return tuya.Config{}, fmt.Errorf("--id is required")
	}

	cfg := tuya.Config{
		DeviceID: deviceID,
		Version:  tuya.Version(protoVersion),
		Port:     devicePort,
	}

	reg, err := registry.Load()
	if err != nil {
		return tuya.Config{}, fmt.Errorf("loading device registry: %w", err)
	}
	if entry := reg.GetDevice(deviceID); entry != nil {
		if deviceIP == "" {
			deviceIP = entry.LastIP
		}
		if localKeyFlag == "" {
			localKeyFlag = entry.LocalKey
		}
	}

	if deviceIP == "" {
		fmt.Println("No --ip given, attempting auto-discovery...")
		dev, err := discovery.FindDevice(deviceID)
		if err != nil {
			return tuya.Config{}, fmt.Errorf("discovery failed: %w", err)
		}
		deviceIP = dev.IP
		if dev.Port != 0 {
			cfg.Port = dev.Port
		}
	}
	cfg.IP = deviceIP

	if localKeyFlag == "" {
		return tuya.Config{}, fmt.Errorf("no local key known for device %s; pass --local-key or run 'tuyalan pair'", deviceID)
	}
	cfg.LocalKey = []byte(localKeyFlag)

	return cfg, nil
}

func rememberDevice(cfg tuya.Config) {
	reg, err := registry.Load()
	if err != nil {
		return
	}
	reg.UpdateDeviceLastSeen(cfg.DeviceID, cfg.IP, string(cfg.Version), time.Now())
	_ = reg.Save()
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Fetch a device's current data-point values",
	Long: `Connect to a device, request its current status, and print its
data-point map.`,
	Example: `  # Status with discovery
  tuyalan status --id bf1234567890abcdef1234

  # Status for a known IP
  tuyalan status --id bf1234567890abcdef1234 --ip 192.168.1.42 --local-key abcdef0123456789`,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := resolveDevice()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), tuya.DefaultTimeout)
	defer cancel()

	sess := tuya.NewSession(cfg)
	if err := sess.Connect(ctx, nil); err != nil {
		return fmt.Errorf("connect failed: %w", err)
	}
	defer sess.Close()

	dps, err := sess.Status(ctx)
	if err != nil {
		return fmt.Errorf("status query failed: %w", err)
	}

	rememberDevice(cfg)
	printDPS(dps)
	return nil
}

var setCmd = &cobra.Command{
	Use:   "set <index>=<value> [<index>=<value> ...]",
	Short: "Set one or more data points on a device",
	Long: `Connect to a device and set one or more data-point values in a
single request. Values are parsed as JSON when possible (true/false,
numbers, quoted strings), otherwise treated as a literal string.`,
	Example: `  # Turn DP 1 on
  tuyalan set --id bf1234567890abcdef1234 --ip 192.168.1.42 --local-key abcdef0123456789 1=true

  # Set two DPs in one request
  tuyalan set --id bf1234567890abcdef1234 1=true 2=50`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSet,
}

func runSet(cmd *cobra.Command, args []string) error {
	cfg, err := resolveDevice()
	if err != nil {
		return err
	}

	dps := make(map[string]any, len(args))
	for _, kv := range args {
		idx, valStr, ok := strings.Cut(kv, "=")
		if !ok {
			return fmt.Errorf("invalid assignment %q (want index=value)", kv)
		}
		dps[idx] = parseDPValue(valStr)
	}

	ctx, cancel := context.WithTimeout(context.Background(), tuya.DefaultTimeout)
	defer cancel()

	sess := tuya.NewSession(cfg)
	if err := sess.Connect(ctx, nil); err != nil {
		return fmt.Errorf("connect failed: %w", err)
	}
	defer sess.Close()

	if err := sess.SetDPs(ctx, dps); err != nil {
		return fmt.Errorf("set failed: %w", err)
	}

	rememberDevice(cfg)
	fmt.Println("✓ data points updated")
	return nil
}

func parseDPValue(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		return v
	}
	return s
}

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Discover Tuya devices on the local network",
	Long: `Discover devices by listening for their UDP broadcast
advertisements (ports 6666/6667) and, in parallel, browsing for mDNS
"_tuya._tcp" services.`,
	Example: `  # Discover for 10 seconds (default)
  tuyalan discover

  # Quick 3-second scan
  tuyalan discover --timeout 3`,
	RunE: runDiscover,
}

func init() {
	discoverCmd.Flags().IntVar(&scanTimeout, "timeout", 10, "Discovery timeout in seconds")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	fmt.Printf("Discovering Tuya devices (timeout: %ds)...\n\n", scanTimeout)
	timeout := time.Duration(scanTimeout) * time.Second

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	seen := make(map[string]bool)

	udpRecords := make(chan udpbroadcast.Record)
	for _, port := range []int{udpbroadcast.PortLegacy, udpbroadcast.PortV35} {
		records, err := udpbroadcast.Listen(ctx, port)
		if err != nil {
			fmt.Printf("warning: UDP broadcast listener on port %d failed: %v\n", port, err)
			continue
		}
		go func() {
			for rec := range records {
				udpRecords <- rec
			}
		}()
	}
	go func() {
		for rec := range udpRecords {
			if seen[rec.GwID] {
				continue
			}
			seen[rec.GwID] = true
			fmt.Printf("[udp] %s at %s (version %s)\n", rec.GwID, rec.IP, rec.Version)
		}
	}()

	mdnsDevices, err := discovery.ScanForDevices(timeout)
	if err != nil {
		fmt.Printf("warning: mDNS scan failed: %v\n", err)
	}
	for _, dev := range mdnsDevices {
		if seen[dev.DeviceID] {
			continue
		}
		seen[dev.DeviceID] = true
		fmt.Printf("[mdns] %s\n", dev.String())
	}

	<-ctx.Done()

	if len(seen) == 0 {
		fmt.Println("No devices found.")
		fmt.Println("\nTroubleshooting:")
		fmt.Println("  - Ensure the device is powered on and connected to Wi-Fi")
		fmt.Println("  - Verify your computer is on the same subnet as the device")
		fmt.Println("  - Try increasing --timeout on congested networks")
		fmt.Println("  - Use --ip to specify an address manually if discovery fails")
		return nil
	}
	fmt.Printf("\nFound %d device(s). Use 'tuyalan pair --id <device id>' to save credentials.\n", len(seen))
	return nil
}

var pairCmd = &cobra.Command{
	Use:   "pair",
	Short: "Interactively save a device's local key to the registry",
	Long: `Prompt for a device's local key (obtained from a Tuya cloud
developer account or a prior pairing flow) and save it to the local
device registry so subsequent commands don't need --local-key.`,
	Example: `  tuyalan pair --id bf1234567890abcdef1234 --ip 192.168.1.42`,
	RunE:    runPair,
}

func runPair(cmd *cobra.Command, args []string) error {
	if deviceID == "" {
		return fmt.Errorf("--id is required")
	}

	fmt.Print("Local key: ")
	keyBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("reading local key: %w", err)
	}
	localKey := strings.TrimSpace(string(keyBytes))
	if localKey == "" {
		return fmt.Errorf("local key must not be empty")
	}

	reg, err := registry.Load()
	if err != nil {
		return fmt.Errorf("loading device registry: %w", err)
	}

	// pair exists to persist the key the user just typed, so it bypasses
	// SetLocalKey's SaveLocalKeys gate.
	reg.EnsureDevice(deviceID).LocalKey = localKey
	if deviceIP != "" {
		reg.UpdateDeviceLastSeen(deviceID, deviceIP, protoVersion, time.Now())
	}
	if err := reg.Save(); err != nil {
		return fmt.Errorf("saving device registry: %w", err)
	}

	fmt.Printf("✓ saved credentials for device %s\n", deviceID)

	if err := clipboard.WriteAll(deviceID); err == nil {
		fmt.Println("  (device ID copied to clipboard)")
	}
	return nil
}

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Connect to a device and serve its live data-point map over WebSocket",
	Long: `Connect to a device, start a WebSocket fan-out server, and
forward every unsolicited data-point update to connected clients
(e.g. the tuyalan-monitor dashboard).`,
	Example: `  tuyalan monitor --id bf1234567890abcdef1234 --ip 192.168.1.42 --local-key abcdef0123456789`,
	RunE:    runMonitor,
}

func init() {
	monitorCmd.Flags().StringVar(&monitorAddr, "addr", "localhost:8090", "Address to serve the WebSocket fan-out on")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, err := resolveDevice()
	if err != nil {
		return err
	}

	host, portStr, err := net.SplitHostPort(monitorAddr)
	if err != nil {
		return fmt.Errorf("invalid --addr: %w", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("invalid --addr port: %w", err)
	}

	srv := monitor.New(monitor.Config{Host: host, Port: port})
	if err := srv.Start(); err != nil {
		return fmt.Errorf("starting monitor server: %w", err)
	}
	fmt.Printf("Monitor server listening on ws://%s/ws\n", monitorAddr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sess := tuya.NewSession(cfg)
	if err := sess.Connect(ctx, srv); err != nil {
		return fmt.Errorf("connect failed: %w", err)
	}
	defer sess.Close()

	rememberDevice(cfg)
	fmt.Println("Connected. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}

func printDPS(dps map[string]any) {
	switch outputFormat {
	case "json":
		data, err := json.MarshalIndent(dps, "", "  ")
		if err != nil {
			fmt.Printf("failed to marshal JSON: %v\n", err)
			return
		}
		fmt.Println(string(data))
	case "compact":
		parts := make([]string, 0, len(dps))
		for k, v := range dps {
			parts = append(parts, fmt.Sprintf("%s=%v", k, v))
		}
		fmt.Println(strings.Join(parts, " "))
	default:
		fmt.Println("Data points:")
		for k, v := range dps {
			fmt.Printf("  %-6s %v\n", k, v)
		}
	}
}
