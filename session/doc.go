// Package session tracks active logins in Redis, deduplicated by device.
//
// Each record binds a user to a device fingerprint; repeat logins from
// the same device update the existing record in place instead of
// appending rows, so one user on one browser always occupies exactly one
// session. Uniqueness is enforced inside Redis by a Lua script, not by
// application locks.
package session
