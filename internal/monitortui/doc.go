// Package monitortui is a bubbletea dashboard that renders the live
// data-point map of one or more tuya.Session connections, fed by
// internal/monitor's WebSocket fan-out rather than by talking to a
// device directly.
package monitortui
