package model

import (
	"math"
	"time"
)

// Kind identifies one of the three token types in the derivation chain.
type Kind string

const (
	// KindSession is the long-lived account session token obtained through
	// the interactive login ceremony. Root of the derivation chain.
	KindSession Kind = "session_token"
	// KindGToken is the web service token minted from the session token via
	// a coral login plus device attestation.
	KindGToken Kind = "gtoken"
	// KindBullet is the short-lived SplatNet API token minted from the
	// gtoken and used on actual data requests.
	KindBullet Kind = "bullet_token"
)

// Kinds lists every token kind in derivation order.
var Kinds = []Kind{KindSession, KindGToken, KindBullet}

// tokenTTL holds the observed lifetime of each derived token kind. The
// session token has no entry: the account service keeps it valid until the
// user revokes it, so a session credential carries a zero ExpiresAt.
var tokenTTL = map[Kind]time.Duration{
	KindGToken: 6*time.Hour + 30*time.Minute,
	KindBullet: 2 * time.Hour,
}

// TTL returns the fixed lifetime of the given kind. The second return is
// false for kinds that never expire.
func TTL(kind Kind) (time.Duration, bool) {
	ttl, ok := tokenTTL[kind]
	return ttl, ok
}

// Credential is a single token value with its issue and expiry times. It is
// an immutable value type: refreshing a token means storing a replacement
// Credential in the Keychain, never mutating one in place.
type Credential struct {
	Kind      Kind
	Value     string
	IssuedAt  time.Time
	ExpiresAt time.Time // zero means the credential never expires
}

// NewCredential constructs a credential issued at the given time, computing
// ExpiresAt from the kind's fixed TTL.
func NewCredential(kind Kind, value string, issuedAt time.Time) Credential {
	cred := Credential{Kind: kind, Value: value, IssuedAt: issuedAt}
	if ttl, ok := tokenTTL[kind]; ok {
		cred.ExpiresAt = issuedAt.Add(ttl)
	}
	return cred
}

// IsValid reports whether the credential holds a non-empty value. It is a
// structural check only and says nothing about expiry.
func (c Credential) IsValid() bool {
	return c.Value != ""
}

// ExpiredAt reports whether the credential is expired at the given instant.
func (c Credential) ExpiredAt(now time.Time) bool {
	if c.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(c.ExpiresAt)
}

// IsExpired reports whether the credential is expired right now.
func (c Credential) IsExpired() bool {
	return c.ExpiredAt(time.Now())
}

// TimeRemaining returns the duration until expiry at the given instant.
// The result is negative once the credential has expired. Credentials
// without an expiry report the maximum representable duration.
func (c Credential) TimeRemaining(now time.Time) time.Duration {
	if c.ExpiresAt.IsZero() {
		return time.Duration(math.MaxInt64)
	}
	return c.ExpiresAt.Sub(now)
}

// TimeRemainingString renders the remaining lifetime for display.
func (c Credential) TimeRemainingString(now time.Time) string {
	if c.ExpiresAt.IsZero() {
		return "basically forever"
	}
	left := c.TimeRemaining(now)
	if left <= 0 {
		return "expired"
	}
	return left.Truncate(time.Second).String()
}
