//go:build js && wasm

package http

import (
	"net/http"
	"time"

	"github.com/syumai/workers/cloudflare/fetch"
)

// WorkersHTTPClient implements HTTPClient on top of the Workers fetch API.
type WorkersHTTPClient struct {
	client *fetch.Client
}

// NewHTTPClient creates the Workers transport. Timeouts are enforced by the
// request context because fetch has no client level deadline.
func NewHTTPClient(_ time.Duration) HTTPClient {
	return &WorkersHTTPClient{
		client: fetch.NewClient(),
	}
}

// Do performs an HTTP request using Cloudflare Workers fetch
func (c *WorkersHTTPClient) Do(req *http.Request) (*http.Response, error) {
	fetchReq, err := fetch.NewRequest(req.Context(), req.Method, req.URL.String(), req.Body)
	if err != nil {
		return nil, err
	}

	for key, values := range req.Header {
		for _, value := range values {
			fetchReq.Header.Add(key, value)
		}
	}

	return c.client.Do(fetchReq, nil)
}
