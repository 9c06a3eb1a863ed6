package credentials

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndpointRefresherSendsRefreshToken(t *testing.T) {
	var gotBody map[string]string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/auth/refresh", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"accessToken":"T2","refreshToken":"R2","expiresIn":900}`)
	}))
	defer ts.Close()

	r := NewEndpointRefresher(ts.Client(), ts.URL+"/auth/refresh")
	cred, err := r.Refresh(context.Background(), Credential{AccessToken: "T1", RefreshToken: "R1"})
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"refreshToken": "R1"}, gotBody)
	assert.Equal(t, "T2", cred.AccessToken)
	assert.Equal(t, "R2", cred.RefreshToken)
	assert.Equal(t, DefaultTokenType, cred.TokenType)
	assert.False(t, cred.ExpiresAt.IsZero())
}

func TestEndpointRefresherCookieMode(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Empty(t, body, "no refresh token held, so nothing is sent")
		io.WriteString(w, `{"access_token":"T2","token_type":"Bearer"}`)
	}))
	defer ts.Close()

	cred, err := NewEndpointRefresher(ts.Client(), ts.URL).Refresh(context.Background(), Credential{AccessToken: "T1"})
	require.NoError(t, err)
	assert.Equal(t, "T2", cred.AccessToken)
	assert.Empty(t, cred.RefreshToken)
}

func TestEndpointRefresherFailures(t *testing.T) {
	testCases := []struct {
		name    string
		status  int
		body    string
		wantErr func(t *testing.T, err error)
	}{
		{
			name:   "unauthorized",
			status: http.StatusUnauthorized,
			body:   `{"message":"refresh token expired"}`,
			wantErr: func(t *testing.T, err error) {
				var refreshErr *RefreshError
				require.ErrorAs(t, err, &refreshErr)
				assert.Equal(t, http.StatusUnauthorized, refreshErr.StatusCode)
				assert.Contains(t, string(refreshErr.Body), "refresh token expired")
			},
		},
		{
			name:   "missing token",
			status: http.StatusOK,
			body:   `{"ok":true}`,
			wantErr: func(t *testing.T, err error) {
				require.ErrorIs(t, err, ErrNoAccessToken)
			},
		},
		{
			name:   "garbage",
			status: http.StatusOK,
			body:   `<html>`,
			wantErr: func(t *testing.T, err error) {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "decode")
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				io.WriteString(w, tc.body)
			}))
			defer ts.Close()

			_, err := NewEndpointRefresher(ts.Client(), ts.URL).Refresh(context.Background(), Credential{RefreshToken: "R1"})
			tc.wantErr(t, err)
		})
	}
}

func TestEndpointRefresherTransportError(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	_, err := NewEndpointRefresher(http.DefaultClient, url).Refresh(context.Background(), Credential{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refresh request execution error")
}

func TestLogin(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["password"] != "hunter2" {
			w.WriteHeader(http.StatusUnauthorized)
			io.WriteString(w, `{"message":"bad credentials"}`)
			return
		}
		io.WriteString(w, `{"token":"T1","refreshToken":"R1"}`)
	}))
	defer ts.Close()

	cred, err := Login(context.Background(), ts.Client(), ts.URL, []byte(`{"email":"a@b.c","password":"hunter2"}`))
	require.NoError(t, err)
	assert.Equal(t, Credential{AccessToken: "T1", RefreshToken: "R1", TokenType: DefaultTokenType}, cred)

	_, err = Login(context.Background(), ts.Client(), ts.URL, []byte(`{"password":"nope"}`))
	var refreshErr *RefreshError
	require.ErrorAs(t, err, &refreshErr)
	assert.Equal(t, http.StatusUnauthorized, refreshErr.StatusCode)
}

func TestOAuth2Refresher(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "storefront", r.PostForm.Get("client_id"))
		if r.PostForm.Get("refresh_token") != "R1" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, `{"error":"invalid_grant"}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"access_token":"T2","token_type":"bearer","expires_in":3600}`)
	}))
	defer ts.Close()

	r := NewOAuth2Refresher(ts.URL, "storefront", "secret", ts.Client())

	cred, err := r.Refresh(context.Background(), Credential{AccessToken: "T1", RefreshToken: "R1"})
	require.NoError(t, err)
	assert.Equal(t, "T2", cred.AccessToken)
	assert.Equal(t, "R1", cred.RefreshToken, "refresh token kept when the server does not rotate it")
	assert.Equal(t, "Bearer T2", cred.AuthorizationHeader())

	_, err = r.Refresh(context.Background(), Credential{RefreshToken: "stale"})
	var refreshErr *RefreshError
	require.ErrorAs(t, err, &refreshErr)
	assert.Equal(t, http.StatusBadRequest, refreshErr.StatusCode)

	_, err = r.Refresh(context.Background(), Credential{AccessToken: "T1"})
	require.Error(t, err)
}
