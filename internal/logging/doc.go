// Package logging provides structured logging for the tuyalan LAN
// client and its CLI.
//
// It wraps zap with convenience functions for common logging patterns:
// general level-gated logging (Info/Debug/Warn/Error) plus specialized
// helpers for session lifecycle events.
//
// # Log Levels
//
// The package supports standard log levels:
//   - Debug: frame hex dumps, handshake detail
//   - Info: connections, handshakes, exchanges
//   - Warn: failed integrity checks, dropped monitor clients
//   - Error: startup/transport failures
//
// # Structured Logging
//
//	logging.Info("device connection event",
//	    zap.String("device_id", "bf1234567890abcdef1234"),
//	    zap.String("remote_addr", "192.168.1.100:6668"),
//	)
//
// # Specialized Logging
//
//	logging.LogConnection(deviceID, remoteAddr, "connected")
//	logging.LogHandshake(deviceID, "negotiate-session-key", true)
//	logging.LogExchange(deviceID, cmd, seqno, retcode, integrityOK)
//	logging.LogRawFrame("outbound frame", frame)
//	logging.LogMonitorClient(remoteAddr, "connected")
//
// # Configuration
//
// Initialize logging once at process startup:
//
//	if err := logging.Initialize("debug"); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync()
//
// Logging is silent by default unless a level is passed explicitly or
// the TUYALAN_LOG_LEVEL environment variable is set.
//
// # Thread Safety
//
// All logging functions are safe for concurrent use; the underlying
// zap logger handles synchronization.
package logging
