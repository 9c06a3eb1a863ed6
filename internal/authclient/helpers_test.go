package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/dvcrn/storefront-api-proxy/internal/credentials"
)

const testBaseURL = "http://shop.test/api"

type backendCall struct {
	Method string
	Path   string
	Auth   string
	Name   string
	Body   string
}

// fakeBackend accepts exactly one bearer token and answers 401 to anything else.
type fakeBackend struct {
	mu     sync.Mutex
	accept string
	calls  []backendCall
	// before runs at the start of every call, outside the lock.
	before func(req *http.Request)
}

func newFakeBackend(accept string) *fakeBackend {
	return &fakeBackend{accept: accept}
}

func (b *fakeBackend) setAccept(token string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.accept = token
}

func (b *fakeBackend) Calls() []backendCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]backendCall(nil), b.calls...)
}

func (b *fakeBackend) Do(req *http.Request) (*http.Response, error) {
	if b.before != nil {
		b.before(req)
	}
	body, _ := io.ReadAll(req.Body)

	b.mu.Lock()
	b.calls = append(b.calls, backendCall{
		Method: req.Method,
		Path:   req.URL.Path,
		Auth:   req.Header.Get("Authorization"),
		Name:   req.Header.Get("X-Test-Name"),
		Body:   string(body),
	})
	accept := b.accept
	b.mu.Unlock()

	if req.Header.Get("Authorization") != "Bearer "+accept {
		return textResponse(req, http.StatusUnauthorized, `{"message":"jwt expired"}`), nil
	}
	return textResponse(req, http.StatusOK, req.URL.Path+"|"+string(body)), nil
}

func textResponse(req *http.Request, status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Header:     make(http.Header),
		Body:       io.NopCloser(strings.NewReader(body)),
		Request:    req,
	}
}

// fakeRefresher counts calls, can block until released, and rotates the
// backend's accepted token on success.
type fakeRefresher struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
	token   string
	err     error
	backend *fakeBackend
}

func (r *fakeRefresher) Refresh(_ context.Context, _ credentials.Credential) (credentials.Credential, error) {
	r.calls.Add(1)
	if r.started != nil {
		select {
		case r.started <- struct{}{}:
		default:
		}
	}
	if r.release != nil {
		<-r.release
	}
	if r.err != nil {
		return credentials.Credential{}, r.err
	}
	if r.backend != nil {
		r.backend.setAccept(r.token)
	}
	return credentials.Credential{AccessToken: r.token, TokenType: "Bearer"}, nil
}

func newTestClient(t *testing.T, transport *fakeBackend, refresher credentials.Refresher, opts ...Option) *Client {
	t.Helper()
	nop := zerolog.Nop()
	base := []Option{
		WithBaseURL(testBaseURL),
		WithLogger(&nop),
		WithCredential(credentials.Credential{AccessToken: "T1", TokenType: "Bearer"}),
	}
	c, err := New(transport, refresher, append(base, opts...)...)
	require.NoError(t, err)
	return c
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

type result struct {
	resp *http.Response
	err  error
}

// sendAsync runs Send in a goroutine.
func sendAsync(ctx context.Context, c *Client, req Request) <-chan result {
	out := make(chan result, 1)
	go func() {
		resp, err := c.Send(ctx, req)
		out <- result{resp: resp, err: err}
	}()
	return out
}

// logBuffer collects log lines written from several goroutines.
type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (l *logBuffer) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.Write(p)
}

// requestIDs returns the request_id of every line logged with message, in order.
func (l *logBuffer) requestIDs(message string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	var ids []string
	for _, line := range bytes.Split(l.buf.Bytes(), []byte("\n")) {
		var entry struct {
			Message   string `json:"message"`
			RequestID string `json:"request_id"`
		}
		if json.Unmarshal(line, &entry) == nil && entry.Message == message {
			ids = append(ids, entry.RequestID)
		}
	}
	return ids
}

// gatedStore wraps a MemoryStore so tests can hold a Save or a Load midway.
// Load reads before blocking, so a held Load returns what was stored when it
// started.
type gatedStore struct {
	*credentials.MemoryStore
	saveStarted chan credentials.Credential
	saveRelease chan struct{}
	loadStarted chan struct{}
	loadRelease chan struct{}
}

func (s *gatedStore) Save(ctx context.Context, cred credentials.Credential) error {
	if s.saveStarted != nil {
		s.saveStarted <- cred
		<-s.saveRelease
	}
	return s.MemoryStore.Save(ctx, cred)
}

func (s *gatedStore) Load(ctx context.Context) (credentials.Credential, error) {
	cred, err := s.MemoryStore.Load(ctx)
	if s.loadStarted != nil {
		s.loadStarted <- struct{}{}
		<-s.loadRelease
	}
	return cred, err
}
