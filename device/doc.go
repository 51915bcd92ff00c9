// Package device derives a stable fingerprint identifying a client device
// from request headers, and parses a human-readable device descriptor from
// the user-agent string.
package device
