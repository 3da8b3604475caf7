package model

import (
	"fmt"
	"time"
)

// Keychain maps token kinds to credentials, holding at most one credential
// per kind. It has no network or disk knowledge.
//
// A Keychain is owned exclusively by one Manager and expects a single
// writer; it is not safe for concurrent mutation without external
// synchronization.
type Keychain struct {
	creds map[Kind]Credential
}

// NewKeychain returns an empty keychain.
func NewKeychain() *Keychain {
	return &Keychain{creds: make(map[Kind]Credential)}
}

// Add constructs a credential of the given kind issued at the given time
// and stores it, silently replacing any prior entry of the same kind. No
// history is retained. The stored credential is returned.
func (k *Keychain) Add(kind Kind, value string, issuedAt time.Time) Credential {
	cred := NewCredential(kind, value, issuedAt)
	k.creds[kind] = cred
	return cred
}

// AddCredential stores an already-constructed credential keyed by its kind,
// replacing any prior entry.
func (k *Keychain) AddCredential(cred Credential) {
	k.creds[cred.Kind] = cred
}

// Get returns the credential of the given kind.
// Returns ErrCredentialNotFound if no entry exists.
func (k *Keychain) Get(kind Kind) (Credential, error) {
	cred, ok := k.creds[kind]
	if !ok {
		return Credential{}, fmt.Errorf("%w: %s", ErrCredentialNotFound, kind)
	}
	return cred, nil
}

// Value returns just the token string of the given kind.
// Returns ErrCredentialNotFound if no entry exists.
func (k *Keychain) Value(kind Kind) (string, error) {
	cred, err := k.Get(kind)
	if err != nil {
		return "", err
	}
	return cred.Value, nil
}

// IsValid reports whether a credential of the given kind is present with a
// non-empty value. Absence is not an error.
func (k *Keychain) IsValid(kind Kind) bool {
	cred, ok := k.creds[kind]
	return ok && cred.IsValid()
}

// Values returns the stored token strings by kind, for persistence.
func (k *Keychain) Values() map[Kind]string {
	out := make(map[Kind]string, len(k.creds))
	for kind, cred := range k.creds {
		out[kind] = cred.Value
	}
	return out
}
