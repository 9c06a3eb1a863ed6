package credentials

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	apihttp "github.com/dvcrn/storefront-api-proxy/internal/http"
)

// maxErrorBody caps how much of a failed refresh response is kept for diagnostics.
const maxErrorBody = 4 << 10

// ErrNoAccessToken is returned when a token endpoint answers 2xx without a token.
var ErrNoAccessToken = errors.New("credentials: token response carried no access token")

// Refresher obtains a new credential from the authentication server.
type Refresher interface {
	Refresh(ctx context.Context, current Credential) (Credential, error)
}

// RefresherFunc adapts a function to Refresher.
type RefresherFunc func(ctx context.Context, current Credential) (Credential, error)

// Refresh calls f(ctx, current).
func (f RefresherFunc) Refresh(ctx context.Context, current Credential) (Credential, error) {
	return f(ctx, current)
}

// RefreshError reports a token endpoint that answered with a non-2xx status.
type RefreshError struct {
	StatusCode int
	Body       []byte
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("token refresh failed with status %d: %s", e.StatusCode, string(e.Body))
}

// EndpointRefresher calls the backend's JSON refresh endpoint.
type EndpointRefresher struct {
	httpClient apihttp.HTTPClient
	url        string
	now        func() time.Time
}

// NewEndpointRefresher creates a refresher that POSTs to url. When the current
// credential carries a refresh token it is sent as {"refreshToken": ...};
// otherwise the body is empty and the transport's cookie jar carries the session.
func NewEndpointRefresher(httpClient apihttp.HTTPClient, url string) *EndpointRefresher {
	return &EndpointRefresher{
		httpClient: httpClient,
		url:        url,
		now:        time.Now,
	}
}

func (r *EndpointRefresher) Refresh(ctx context.Context, current Credential) (Credential, error) {
	var body io.Reader = http.NoBody
	if current.RefreshToken != "" {
		payload, err := json.Marshal(map[string]string{"refreshToken": current.RefreshToken})
		if err != nil {
			return Credential{}, fmt.Errorf("could not marshal refresh body: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, body)
	if err != nil {
		return Credential{}, fmt.Errorf("could not create refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return Credential{}, fmt.Errorf("refresh request execution error: %w", err)
	}
	return decodeTokenResponse(resp, current, r.now())
}

// decodeTokenResponse consumes and closes resp.
func decodeTokenResponse(resp *http.Response, prev Credential, now time.Time) (Credential, error) {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return Credential{}, &RefreshError{StatusCode: resp.StatusCode, Body: respBody}
	}

	var tokenResp TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return Credential{}, fmt.Errorf("could not decode token response: %w", err)
	}

	next := tokenResp.Credential(prev, now)
	if next.AccessToken == "" {
		return Credential{}, ErrNoAccessToken
	}
	return next, nil
}

// Login exchanges a login payload for a credential at the backend login
// endpoint. The payload is forwarded as-is.
func Login(ctx context.Context, httpClient apihttp.HTTPClient, url string, payload []byte) (Credential, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return Credential{}, fmt.Errorf("could not create login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return Credential{}, fmt.Errorf("login request execution error: %w", err)
	}
	return decodeTokenResponse(resp, Credential{}, time.Now())
}
