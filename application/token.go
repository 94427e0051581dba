package application

import (
	"errors"
	"time"
)

var ErrTokenNotFound = errors.New("auth token not found")

// AuthToken is the long-lived vendor cloud credential. Expiry is not
// enforced locally; the cloud rejecting it sends the display back to
// onboarding.
type AuthToken struct {
	Token        string    `json:"token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	IssuedAt     time.Time `json:"issued_at"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
}

func (t AuthToken) IsZero() bool {
	return t.Token == ""
}

type TokenStore interface {
	Load() (AuthToken, error)
	Save(token AuthToken) error
}
