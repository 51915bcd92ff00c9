// Package authgate provides a policy-based authentication and authorization
// layer for HTTP APIs: pluggable credential extractors, named authentication
// schemes that verify signed tokens with per-scheme issuer/audience rules,
// and declarative per-route authorization policies combining acceptable
// schemes with role requirements.
//
// The package is designed for concurrent server workloads: scheme and policy
// registries are immutable after construction and safe to share between
// request goroutines without locking.
//
// # Architecture boundaries
//
// authgate is the composition engine. Token signing and verification live in
// [github.com/authgate/authgate/jwt], device fingerprinting in
// [github.com/authgate/authgate/device], and the Redis-backed session
// lifecycle in [github.com/authgate/authgate/session]. The HTTP surface that
// wires them together is [github.com/authgate/authgate/httpapi].
//
// # Error posture
//
// An unregistered scheme or policy name is a configuration fault and is
// surfaced as a 500 response, never silently skipped. Missing or invalid
// credentials are expected traffic and map to 401/403 without error-level
// logging.
package authgate
