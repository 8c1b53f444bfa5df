// Package tuya implements the LAN protocol engine for controlling
// Tuya-compatible Wi-Fi smart devices directly on the local network, without
// cloud mediation.
//
// # Protocol overview
//
// A Session opens a persistent TCP connection to a device identified by IP,
// device ID, and a 16-byte local key, performs the session-key handshake
// required by protocol versions 3.4 and 3.5, and exchanges framed binary
// messages to read and write data points (DPs). Five protocol dialects
// coexist behind one dispatcher:
//
//	3.1, 3.2, 3.3  - "55AA" frames, AES-128-ECB payloads, CRC32 checksum
//	3.4            - "55AA" frames, AES-128-ECB payloads, HMAC-SHA256 tag,
//	                 per-connection session key
//	3.5            - "6699" frames, AES-128-GCM payloads and framing,
//	                 per-connection session key
//
// # Usage
//
//	sess := tuya.NewSession(tuya.Config{
//	    IP:        "192.168.1.50",
//	    DeviceID:  "aaaaaaaaaaaaaaaaaaaa",
//	    LocalKey:  key,
//	    Version:   tuya.Version33,
//	})
//	if err := sess.Connect(ctx, listener); err != nil {
//	    log.Fatal(err)
//	}
//	defer sess.Close()
//
//	dps, err := sess.Status(ctx)
//
// # Concurrency
//
// Each Session owns exactly one TCP connection and runs a single receive
// loop goroutine. The dispatcher's buffer and waiter table are guarded by
// the dispatcher's own mutex, the DP cache, pending-DPS set and session key
// by their own mutexes, and the sequence counter, state and device type are
// atomics; request/reply exchanges are serialized by the exchange mutex.
// Multiple Sessions may run concurrently, each isolated.
//
// # Errors
//
// All errors returned by this package can be inspected with errors.As into
// *tuya.Error, which carries one of six Kind values: Decode, Encryption,
// SessionKey, Timeout, Transport, Encoding. The engine does not retry on its
// own except for DetectAvailableDPS and the three GCM decryption strategies;
// all other retries are the caller's responsibility.
package tuya
