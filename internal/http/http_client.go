package http

import "net/http"

// HTTPClient is the transport primitive the authenticated client dispatches through.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPClientFunc adapts a function to HTTPClient.
type HTTPClientFunc func(req *http.Request) (*http.Response, error)

// Do calls f(req).
func (f HTTPClientFunc) Do(req *http.Request) (*http.Response, error) {
	return f(req)
}
