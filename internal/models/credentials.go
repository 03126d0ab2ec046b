package models

import "time"

// expirySkew treats tokens about to expire as already expired.
const expirySkew = 30 * time.Second

// CredentialToken is an opaque per-service secret handed out by a credential gateway.
type CredentialToken struct {
	Service     string     `json:"service"`
	Secret      string     `json:"secret"`
	Expiry      *time.Time `json:"expiry,omitempty"`
	Refreshable bool       `json:"refreshable"`
}

// Valid reports whether the token has a secret and has not expired at now.
func (t *CredentialToken) Valid(now time.Time) bool {
	if t == nil || t.Secret == "" {
		return false
	}
	if t.Expiry == nil {
		return true
	}
	return now.Add(expirySkew).Before(*t.Expiry)
}
