package credentials

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
)

// OAuth2Refresher performs a standard OAuth2 refresh_token grant.
type OAuth2Refresher struct {
	config     *oauth2.Config
	httpClient *http.Client
}

// NewOAuth2Refresher creates a refresher for the given token URL. httpClient
// may be nil to use http.DefaultClient.
func NewOAuth2Refresher(tokenURL, clientID, clientSecret string, httpClient *http.Client) *OAuth2Refresher {
	return &OAuth2Refresher{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient: httpClient,
	}
}

func (o *OAuth2Refresher) Refresh(ctx context.Context, current Credential) (Credential, error) {
	if current.RefreshToken == "" {
		return Credential{}, fmt.Errorf("no refresh token available")
	}
	if o.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, o.httpClient)
	}

	// Only the refresh token is passed so the source always hits the endpoint.
	tokenSource := o.config.TokenSource(ctx, &oauth2.Token{RefreshToken: current.RefreshToken})
	tok, err := tokenSource.Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			return Credential{}, &RefreshError{StatusCode: retrieveErr.Response.StatusCode, Body: retrieveErr.Body}
		}
		return Credential{}, fmt.Errorf("oauth2 refresh failed: %w", err)
	}

	next := FromOAuth2Token(tok)
	if next.RefreshToken == "" {
		next.RefreshToken = current.RefreshToken
	}
	if next.TokenType == "" {
		next.TokenType = DefaultTokenType
	}
	return next, nil
}
