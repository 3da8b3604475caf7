package model

// Attestation hash methods, one per attested minting step.
const (
	HashMethodCoral      = "1"
	HashMethodWebService = "2"
)

// Identity holds the intermediate values exchanged for a session token: the
// short-lived account tokens plus the profile fields needed by later steps.
type Identity struct {
	AccessToken string
	IDToken     string
	UserID      string // "sub" claim of the id_token
	Language    string
	Country     string
	Birthday    string
}

// CoralSession is the result of an attested coral login.
type CoralSession struct {
	Token  string
	UserID string
}

// AttestationRequest carries the parameters an attestation provider needs
// to compute a response for one minting step.
type AttestationRequest struct {
	Token       string
	HashMethod  string
	UserID      string
	CoralUserID string // set for HashMethodWebService only
}

// Attestation is a provider's response blob, passed through to the minting
// endpoint it was computed for.
type Attestation struct {
	F         string
	Timestamp int64
	RequestID string
}
