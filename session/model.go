package session

import (
	"time"

	"github.com/authgate/authgate/device"
)

// Session is one active login for one user on one device. At most one
// session exists per (UserID, Fingerprint) pair; repeat logins from the
// same device replace the tokens in place instead of appending rows. The
// record is owned exclusively by [Manager]; no other component mutates
// it.
//
// The JSON field names are part of the storage format: the upsert script
// rewrites records inside Redis by these names.
type Session struct {
	ID           string            `json:"id"`
	UserID       string            `json:"userId"`
	Fingerprint  string            `json:"deviceId"`
	AccessToken  string            `json:"accessToken"`
	RefreshToken string            `json:"refreshToken"`
	Device       device.Descriptor `json:"deviceInfo"`
	Active       bool              `json:"isActive"`
	ExpiresAt    int64             `json:"expiresAt"`
	CreatedAt    int64             `json:"createdAt"`
	UpdatedAt    int64             `json:"updatedAt"`
}

// Expired reports whether the record is past its expiry at the given
// instant. Storage TTL reaping is eventually-consistent with wall-clock
// time, so readers must not trust a record's presence alone.
func (s *Session) Expired(now time.Time) bool {
	return now.Unix() > s.ExpiresAt
}
