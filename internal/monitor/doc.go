// Package monitor fans a device's live data-point updates out to any number
// of WebSocket-connected dashboard clients. It implements tuya.Listener, so
// a Server can be handed directly to Session.Connect: every push the device
// sends is broadcast, JSON-encoded, to every client currently attached.
package monitor
