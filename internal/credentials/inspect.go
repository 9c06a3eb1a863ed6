package credentials

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrOpaqueToken is returned by Inspect for tokens that are not JWTs.
var ErrOpaqueToken = errors.New("credentials: access token is not a JWT")

// TokenInfo holds claims read from an access token for display. The signature
// is NOT verified; nothing here may drive an authorization decision.
type TokenInfo struct {
	Subject   string
	Issuer    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Expired reports whether the token carries an expiry that is not after now.
func (t *TokenInfo) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && !now.Before(t.ExpiresAt)
}

// Inspect reads the registered claims of a JWT access token.
func Inspect(accessToken string) (*TokenInfo, error) {
	if strings.Count(accessToken, ".") != 2 {
		return nil, ErrOpaqueToken
	}

	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpaqueToken, err)
	}

	info := &TokenInfo{
		Subject: claims.Subject,
		Issuer:  claims.Issuer,
	}
	if claims.IssuedAt != nil {
		info.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
	}
	return info, nil
}
