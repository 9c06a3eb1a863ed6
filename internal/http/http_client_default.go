//go:build !js || !wasm

package http

import (
	"net"
	"net/http"
	"net/http/cookiejar"
	"time"
)

// NewHTTPClient creates the native transport. The cookie jar keeps httponly
// session cookies set by the login endpoint so cookie based refresh works.
func NewHTTPClient(timeout time.Duration) HTTPClient {
	jar, _ := cookiejar.New(nil)
	return &http.Client{
		Jar:     jar,
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			ForceAttemptHTTP2:   true,
		},
	}
}
