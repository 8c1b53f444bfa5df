// Package cloudapi is the opaque "Cloud API collaborator" the LAN engine
// assumes but never calls into at runtime: it resolves a device's local
// key and metadata from Tuya's cloud, and a MAC address to a LAN IP via
// /proc/net/arp, for host tooling that needs to bootstrap a tuya.Config
// before connecting. None of the tuyalan CLI commands use it.
package cloudapi
