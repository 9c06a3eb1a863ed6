package authclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// RequestIDHeader correlates a request with its replay in backend logs.
const RequestIDHeader = "X-Request-ID"

// Request is an immutable snapshot of everything needed to send, and later
// replay, one call. Header holds the caller's headers before the credential
// is attached. Callers must not modify Header or Body after passing a Request
// to Send.
type Request struct {
	Method string
	// URL is absolute, or a path resolved against the client's base URL.
	URL    string
	Header http.Header
	Body   []byte
	// Retried marks a replay. A replay that fails authentication again is
	// returned to the caller and never starts another refresh.
	Retried bool
}

// NewRequest builds a first-attempt Request.
func NewRequest(method, url string, body []byte) Request {
	return Request{
		Method: method,
		URL:    url,
		Header: make(http.Header),
		Body:   body,
	}
}

// WithHeader returns a copy of r with key set to value.
func (r Request) WithHeader(key, value string) Request {
	next := r.clone()
	next.Header.Set(key, value)
	return next
}

// WithRetried returns a copy of r marked as a replay.
func (r Request) WithRetried() Request {
	next := r.clone()
	next.Retried = true
	return next
}

// ID returns the request's correlation id, if any.
func (r Request) ID() string {
	return r.Header.Get(RequestIDHeader)
}

func (r Request) clone() Request {
	next := r
	next.Header = r.Header.Clone()
	if next.Header == nil {
		next.Header = make(http.Header)
	}
	return next
}

// withRequestID stamps a fresh correlation id unless the caller supplied one.
func (r Request) withRequestID() Request {
	if r.ID() != "" {
		return r
	}
	return r.WithHeader(RequestIDHeader, uuid.NewString())
}

// resolve turns r.URL into an absolute URL. Relative URLs are joined onto
// base's path, keeping their escaping and query; "." and ".." segments are
// rejected so a relative URL cannot leave base's path.
func (r Request) resolve(base *url.URL) (*url.URL, error) {
	u, err := url.Parse(r.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid request url %q: %w", r.URL, err)
	}
	if u.IsAbs() {
		return u, nil
	}
	if base == nil {
		return nil, fmt.Errorf("relative request url %q with no base url configured", r.URL)
	}
	if hasDotSegment(u.Path) {
		return nil, fmt.Errorf("%w: %q", ErrDotSegment, r.URL)
	}

	resolved := *base
	resolved.Path = strings.TrimRight(base.Path, "/") + "/" + strings.TrimLeft(u.Path, "/")
	resolved.RawPath = strings.TrimRight(base.EscapedPath(), "/") + "/" + strings.TrimLeft(u.EscapedPath(), "/")
	resolved.RawQuery = u.RawQuery
	resolved.Fragment = ""
	return &resolved, nil
}

// hasDotSegment reports whether the decoded path has a "." or ".." segment.
func hasDotSegment(path string) bool {
	for _, segment := range strings.Split(path, "/") {
		if segment == "." || segment == ".." {
			return true
		}
	}
	return false
}

// build creates the outgoing *http.Request with authorization attached.
func (r Request) build(ctx context.Context, base *url.URL, authorization string) (*http.Request, error) {
	target, err := r.resolve(base)
	if err != nil {
		return nil, err
	}

	var body io.Reader = http.NoBody
	if len(r.Body) > 0 {
		body = bytes.NewReader(r.Body)
	}

	method := r.Method
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}
	httpReq.Header = r.Header.Clone()
	if httpReq.Header == nil {
		httpReq.Header = make(http.Header)
	}
	if authorization != "" {
		httpReq.Header.Set("Authorization", authorization)
	}
	return httpReq, nil
}

// RequestFromHTTP snapshots an *http.Request into a Request, consuming its
// body. Any Authorization header is dropped; the client attaches its own.
func RequestFromHTTP(req *http.Request) (Request, error) {
	var body []byte
	if req.Body != nil && req.Body != http.NoBody {
		defer req.Body.Close()
		b, err := io.ReadAll(req.Body)
		if err != nil {
			return Request{}, fmt.Errorf("could not read request body: %w", err)
		}
		body = b
	}

	header := req.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	header.Del("Authorization")

	return Request{
		Method: req.Method,
		URL:    req.URL.String(),
		Header: header,
		Body:   body,
	}, nil
}
