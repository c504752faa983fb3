package domain

import "time"

// CredentialStatus tracks whether a stored credential is usable.
type CredentialStatus string

const (
	// CredentialValid means the refresh cycle is healthy.
	CredentialValid CredentialStatus = "valid"
	// CredentialReauthRequired means the last refresh was rejected and
	// the user must run the authorization flow again.
	CredentialReauthRequired CredentialStatus = "reauth_required"
)

// Credential holds the OAuth tokens for one (user, provider) pair.
// Tokens are mutated in place on refresh and only removed by an
// explicit disconnect. A present access token always carries an
// expiry.
type Credential struct {
	UserID       string
	Provider     Provider
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
	Status       CredentialStatus
	UpdatedAt    time.Time
}

// Expired reports whether the access token must be refreshed before use.
func (c Credential) Expired(now time.Time) bool {
	return !now.Before(c.Expiry)
}

// Connection identifies one connected (user, provider) pair.
type Connection struct {
	UserID   string
	Provider Provider
}
