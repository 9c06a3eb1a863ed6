package authclient

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strconv"
)

type roundTripper struct {
	client *Client
}

// Transport adapts the client to http.RoundTripper so an *http.Client can use
// it. Request bodies are buffered so they can be replayed. A 403 that is not
// about the credential, and a replay that is still rejected, come back as the
// backend's response rather than an error. Refresh failures and transport
// errors are returned as errors.
func (c *Client) Transport() http.RoundTripper {
	return &roundTripper{client: c}
}

func (rt *roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	desc, err := RequestFromHTTP(req)
	if err != nil {
		return nil, err
	}

	resp, err := rt.client.Send(req.Context(), desc)
	if err == nil {
		return resp, nil
	}

	var (
		permErr   *AuthPermissionError
		replayErr *ReplayFailedError
	)
	switch {
	case errors.As(err, &permErr):
		return rebuildResponse(req, permErr.StatusCode, permErr.Header, permErr.Body), nil
	case errors.As(err, &replayErr):
		return rebuildResponse(req, replayErr.Err.StatusCode, replayErr.Err.Header, replayErr.Err.Body), nil
	}
	return nil, err
}

// rebuildResponse restores a response whose body was consumed during
// classification.
func rebuildResponse(req *http.Request, status int, header http.Header, body []byte) *http.Response {
	header = header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	header.Set("Content-Length", strconv.Itoa(len(body)))
	return &http.Response{
		Status:        strconv.Itoa(status) + " " + http.StatusText(status),
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}
