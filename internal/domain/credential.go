package domain

import (
	"strings"
	"time"
)

// Credential est l'unique jeton OAuth2 de l'installation.
type Credential struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken,omitempty"`
	TokenType    string    `json:"tokenType,omitempty"`
	ExpiresAt    time.Time `json:"expiresAt,omitempty"`
	Scope        string    `json:"scope,omitempty"`
}

func (c Credential) HasRefreshToken() bool {
	return strings.TrimSpace(c.RefreshToken) != ""
}

// ExpiresWithin est vrai si le jeton expire dans moins de margin.
// Une expiration inconnue est traitée comme "n'expire pas".
func (c Credential) ExpiresWithin(now time.Time, margin time.Duration) bool {
	if c.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(margin).Before(c.ExpiresAt)
}

func (c Credential) Valid() bool {
	return strings.TrimSpace(c.AccessToken) != ""
}
