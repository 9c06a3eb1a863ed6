package credentials

import (
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// DefaultTokenType is used when neither the login nor the refresh response names one.
const DefaultTokenType = "Bearer"

// Credential is the access credential attached to outgoing requests. It is a
// value type: holders replace it wholesale and never edit it in place.
type Credential struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitzero"`
}

// IsZero reports whether c carries neither an access nor a refresh token.
func (c Credential) IsZero() bool {
	return c.AccessToken == "" && c.RefreshToken == ""
}

// Equal reports whether c and other carry the same tokens and expiry. Expiry
// is compared with time.Time.Equal, so a credential read back from JSON
// equals the one that was saved.
func (c Credential) Equal(other Credential) bool {
	return c.AccessToken == other.AccessToken &&
		c.RefreshToken == other.RefreshToken &&
		c.TokenType == other.TokenType &&
		c.ExpiresAt.Equal(other.ExpiresAt)
}

// AuthorizationHeader renders the Authorization header value, or "" when there
// is no access token to send.
func (c Credential) AuthorizationHeader() string {
	if c.AccessToken == "" {
		return ""
	}
	tokenType := c.TokenType
	if tokenType == "" || strings.EqualFold(tokenType, "bearer") {
		tokenType = DefaultTokenType
	}
	return tokenType + " " + c.AccessToken
}

// OAuth2Token converts c for use with golang.org/x/oauth2.
func (c Credential) OAuth2Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		TokenType:    c.TokenType,
		Expiry:       c.ExpiresAt,
	}
}

// FromOAuth2Token converts an oauth2 token into a Credential.
func FromOAuth2Token(tok *oauth2.Token) Credential {
	if tok == nil {
		return Credential{}
	}
	return Credential{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		ExpiresAt:    tok.Expiry,
	}
}

// TokenResponse is the body returned by the backend login and refresh
// endpoints. Both camelCase and snake_case spellings are accepted.
type TokenResponse struct {
	AccessToken       string `json:"accessToken"`
	AccessTokenSnake  string `json:"access_token"`
	Token             string `json:"token"`
	RefreshToken      string `json:"refreshToken"`
	RefreshTokenSnake string `json:"refresh_token"`
	TokenType         string `json:"tokenType"`
	TokenTypeSnake    string `json:"token_type"`
	ExpiresIn         int64  `json:"expiresIn"`
	ExpiresInSnake    int64  `json:"expires_in"`
}

// Credential builds the new credential. Fields the response leaves out are
// carried over from prev, so a refresh that does not rotate the refresh token
// keeps the old one.
func (r TokenResponse) Credential(prev Credential, now time.Time) Credential {
	next := Credential{
		AccessToken:  firstNonEmpty(r.AccessToken, r.AccessTokenSnake, r.Token),
		RefreshToken: firstNonEmpty(r.RefreshToken, r.RefreshTokenSnake, prev.RefreshToken),
		TokenType:    firstNonEmpty(r.TokenType, r.TokenTypeSnake, prev.TokenType, DefaultTokenType),
	}
	expiresIn := r.ExpiresIn
	if expiresIn == 0 {
		expiresIn = r.ExpiresInSnake
	}
	if expiresIn > 0 {
		next.ExpiresAt = now.Add(time.Duration(expiresIn) * time.Second)
	}
	return next
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
