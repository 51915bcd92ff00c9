// Package jwt implements the token codec: signing and verification of
// compact signed-claims tokens with issuer, audience and expiry checks.
package jwt
