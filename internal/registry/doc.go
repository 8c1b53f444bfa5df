// Package registry persists user-facing metadata about Tuya devices between
// runs: nicknames, the last IP and protocol version a device was reached at,
// and (optionally, at the user's discretion) its local key, so repeated
// commands against the same device don't require re-discovery or a fresh
// cloud-API lookup every time.
package registry
