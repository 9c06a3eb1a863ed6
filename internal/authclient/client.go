package authclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvcrn/storefront-api-proxy/internal/credentials"
	apihttp "github.com/dvcrn/storefront-api-proxy/internal/http"
	"github.com/dvcrn/storefront-api-proxy/internal/logger"
	"github.com/dvcrn/storefront-api-proxy/internal/metrics"
)

// Client attaches the current credential to every request and recovers from
// credential expiry. However many requests fail at once, at most one refresh
// call is in flight; the others wait for it and are replayed once, in arrival
// order, with the new credential. It is safe for concurrent use.
type Client struct {
	transport apihttp.HTTPClient
	refresher credentials.Refresher
	store     credentials.Store
	log       *zerolog.Logger
	metrics   *metrics.Collector

	rawBaseURL       string
	baseURL          *url.URL
	exemptPaths      []string
	expiryPhrases    []string
	publicLocations  []string
	refreshTimeout   time.Duration
	onSessionInvalid SessionInvalidHandler

	mu sync.Mutex
	// Fields below are guarded by mu. generation grows on every credential
	// replacement so a failure can be matched to the credential it was sent
	// with. epoch grows on every login, logout or restore; a refresh that
	// settles under another epoch has been overtaken. storeSeq grows when a
	// store write starts and storeBusy counts writes still running.
	state      State
	cred       credentials.Credential
	generation uint64
	epoch      uint64
	queue      []*pending
	storeSeq   uint64
	storeBusy  int

	// storeMu serializes store writes.
	storeMu sync.Mutex
}

// pending is a request waiting for the in-flight refresh.
type pending struct {
	ctx  context.Context
	req  Request
	done chan outcome
}

type outcome struct {
	resp *http.Response
	err  error
}

// New creates a Client dispatching through transport and refreshing through refresher.
func New(transport apihttp.HTTPClient, refresher credentials.Refresher, opts ...Option) (*Client, error) {
	if transport == nil {
		return nil, errors.New("authclient: transport is required")
	}
	if refresher == nil {
		return nil, errors.New("authclient: refresher is required")
	}

	c := &Client{
		transport:       transport,
		refresher:       refresher,
		log:             logger.Component("authclient"),
		expiryPhrases:   DefaultExpiryPhrases,
		publicLocations: DefaultPublicLocations,
		refreshTimeout:  DefaultRefreshTimeout,
		state:           StateValid,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.rawBaseURL != "" {
		base, err := url.Parse(c.rawBaseURL)
		if err != nil {
			return nil, fmt.Errorf("authclient: invalid base url: %w", err)
		}
		if !base.IsAbs() {
			return nil, fmt.Errorf("authclient: base url %q is not absolute", c.rawBaseURL)
		}
		c.baseURL = base
	}
	return c, nil
}

// Send issues req with the current credential attached. Statuses other than
// an auth failure are returned unchanged with a nil error. On an auth failure
// the credential is refreshed (or the in-flight refresh is joined) and req is
// replayed once; the caller sees only the replay's outcome.
func (c *Client) Send(ctx context.Context, req Request) (*http.Response, error) {
	req = req.withRequestID()

	resp, gen, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	return c.handle(ctx, req, resp, gen)
}

// do performs one attempt and returns the credential generation it carried.
func (c *Client) do(ctx context.Context, req Request) (*http.Response, uint64, error) {
	c.mu.Lock()
	authorization := c.cred.AuthorizationHeader()
	gen := c.generation
	c.mu.Unlock()

	httpReq, err := req.build(ctx, c.baseURL, authorization)
	if err != nil {
		return nil, gen, err
	}

	resp, err := c.transport.Do(httpReq)
	if err != nil {
		c.metrics.RecordTransportError()
		return nil, gen, &TransportError{Method: httpReq.Method, URL: httpReq.URL.String(), Err: err}
	}

	c.metrics.RecordResponse(resp.StatusCode, req.Retried)
	c.log.Debug().
		Str("request_id", req.ID()).
		Str("method", httpReq.Method).
		Str("url", httpReq.URL.Path).
		Int("status", resp.StatusCode).
		Bool("replay", req.Retried).
		Msg("Backend response")
	return resp, gen, nil
}

// handle applies the refresh protocol to a received response.
func (c *Client) handle(ctx context.Context, req Request, resp *http.Response, gen uint64) (*http.Response, error) {
	if !isAuthStatus(resp.StatusCode) || c.isExempt(req) {
		return resp, nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	resp.Body.Close()

	kind, message := classify(resp.StatusCode, body, c.expiryPhrases)
	c.metrics.RecordAuthFailure(kind.String())

	if kind == failurePermission {
		return nil, &AuthPermissionError{StatusCode: resp.StatusCode, Message: message, Header: resp.Header, Body: body}
	}

	expired := &AuthExpiredError{StatusCode: resp.StatusCode, Message: message, Header: resp.Header, Body: body}
	if req.Retried {
		c.log.Warn().
			Str("request_id", req.ID()).
			Int("status", resp.StatusCode).
			Msg("Replay rejected with refreshed credential")
		return nil, &ReplayFailedError{Method: req.Method, URL: req.URL, Err: expired}
	}
	return c.recover(ctx, req, gen, expired)
}

// recover decides, in one critical section, whether this failure starts a
// refresh, joins the in-flight one, or can be replayed straight away.
func (c *Client) recover(ctx context.Context, req Request, gen uint64, cause *AuthExpiredError) (*http.Response, error) {
	c.mu.Lock()
	switch {
	case c.state == StateInvalid:
		c.mu.Unlock()
		return nil, &RefreshFailedError{Err: fmt.Errorf("%w (%v)", ErrSessionInvalid, cause)}

	case c.state == StateRefreshPending:
		p := &pending{ctx: ctx, req: req.WithRetried(), done: make(chan outcome, 1)}
		c.queue = append(c.queue, p)
		depth := len(c.queue)
		c.mu.Unlock()

		c.metrics.SetPending(depth)
		c.log.Debug().Str("request_id", req.ID()).Int("queue", depth).Msg("Queued behind in-flight refresh")
		return c.await(ctx, p)

	case gen != c.generation:
		// Sent with a credential that has since been replaced.
		c.mu.Unlock()
		return c.replay(ctx, req.WithRetried())
	}

	c.state = StateRefreshPending
	current := c.cred
	epoch := c.epoch
	c.mu.Unlock()

	c.log.Info().
		Str("request_id", req.ID()).
		Int("status", cause.StatusCode).
		Msg("Credential rejected, starting refresh")
	return c.refreshAndReplay(ctx, req, current, epoch)
}

// refreshAndReplay runs the refresh started by req and settles the queue.
func (c *Client) refreshAndReplay(ctx context.Context, req Request, current credentials.Credential, epoch uint64) (*http.Response, error) {
	start := time.Now()

	// Detached from the caller: every queued request depends on this outcome.
	refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.refreshTimeout)
	next, err := c.refresher.Refresh(refreshCtx, current)
	cancel()
	if err == nil && next.AccessToken == "" {
		err = credentials.ErrNoAccessToken
	}

	elapsed := time.Since(start)
	if err != nil {
		c.metrics.RecordRefresh(metrics.OutcomeFailure, elapsed.Seconds())
	} else {
		c.metrics.RecordRefresh(metrics.OutcomeSuccess, elapsed.Seconds())
	}

	if err := c.settle(ctx, next, err, epoch, elapsed); err != nil {
		return nil, err
	}
	return c.replay(ctx, req.WithRetried())
}

// settle applies the refresh outcome and drains the queue in one critical
// section. A login or logout that happened while the refresh ran wins over
// its outcome. Queued requests are either all rejected with the returned
// error or all replayed, one goroutine each, started in arrival order.
func (c *Client) settle(ctx context.Context, next credentials.Credential, cause error, epoch uint64, elapsed time.Duration) error {
	var (
		result      error
		invalidated bool
		writeStore  bool
		seq         uint64
	)

	c.mu.Lock()
	queue := c.queue
	c.queue = nil
	switch {
	case c.epoch != epoch && c.cred.IsZero():
		// Logged out while the refresh ran.
		c.state = StateInvalid
		result = &RefreshFailedError{Err: ErrSessionInvalid}
	case c.epoch != epoch:
		// Logged in while the refresh ran.
		c.state = StateValid
	case cause != nil:
		c.state = StateInvalid
		c.cred = credentials.Credential{}
		c.generation++
		result = &RefreshFailedError{Err: cause}
		invalidated = true
		writeStore, seq = true, c.beginStoreWriteLocked()
	default:
		c.cred = next
		c.generation++
		c.state = StateValid
		writeStore, seq = true, c.beginStoreWriteLocked()
	}
	overtaken := c.epoch != epoch
	c.mu.Unlock()

	c.metrics.SetPending(0)

	for i, p := range queue {
		if result != nil {
			p.done <- outcome{err: result}
			continue
		}
		c.log.Debug().
			Str("request_id", p.req.ID()).
			Int("position", i).
			Msg("Replaying queued request")
		go func(p *pending) {
			resp, err := c.replay(p.ctx, p.req)
			p.done <- outcome{resp: resp, err: err}
		}(p)
	}

	switch {
	case overtaken:
		c.log.Info().
			Bool("session_valid", result == nil).
			Int("settled", len(queue)).
			Msg("Refresh outcome discarded, credential changed while it ran")
	case invalidated:
		c.metrics.RecordSessionInvalid()
		c.log.Warn().
			Err(cause).
			Int("rejected", len(queue)).
			Msg("Credential refresh failed, session invalidated")
	default:
		c.log.Info().
			Dur("duration", elapsed).
			Int("replayed", len(queue)).
			Msg("Credential refreshed")
	}

	if writeStore {
		if invalidated {
			c.writeStore(ctx, seq, credentials.Credential{})
		} else {
			c.writeStore(ctx, seq, next)
		}
	}

	if invalidated && c.onSessionInvalid != nil && !c.IsPublicLocation(LocationFrom(ctx)) {
		c.onSessionInvalid(ctx, result)
	}
	return result
}

// replay sends a request marked Retried. Auth failures come back as
// ReplayFailedError rather than starting another refresh.
func (c *Client) replay(ctx context.Context, req Request) (*http.Response, error) {
	resp, gen, err := c.do(ctx, req)
	if err == nil {
		resp, err = c.handle(ctx, req, resp, gen)
	}
	if err != nil {
		c.metrics.RecordReplay(metrics.OutcomeFailure)
		return nil, err
	}
	c.metrics.RecordReplay(metrics.OutcomeSuccess)
	return resp, nil
}

// await blocks until the queued request settles. A caller whose context ends
// stops waiting, but its entry is still drained; the late response is closed.
func (c *Client) await(ctx context.Context, p *pending) (*http.Response, error) {
	select {
	case out := <-p.done:
		return out.resp, out.err
	case <-ctx.Done():
		go func() {
			if out := <-p.done; out.resp != nil {
				out.resp.Body.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

// beginStoreWriteLocked registers a store write and returns its sequence
// number. c.mu must be held; the write must be finished with writeStore.
func (c *Client) beginStoreWriteLocked() uint64 {
	c.storeSeq++
	c.storeBusy++
	return c.storeSeq
}

// writeStore saves cred, or clears the store when cred is zero. A write
// superseded by a later one is skipped so the store ends up with the last
// credential installed. Failures are logged; the in-memory credential stays
// authoritative.
func (c *Client) writeStore(ctx context.Context, seq uint64, cred credentials.Credential) {
	defer func() {
		c.mu.Lock()
		c.storeBusy--
		c.mu.Unlock()
	}()
	if c.store == nil {
		return
	}

	c.storeMu.Lock()
	defer c.storeMu.Unlock()

	c.mu.Lock()
	superseded := seq != c.storeSeq
	c.mu.Unlock()
	if superseded {
		return
	}

	ctx = context.WithoutCancel(ctx)
	if cred.IsZero() {
		if err := c.store.Clear(ctx); err != nil {
			c.log.Warn().Err(err).Str("store", c.store.Name()).Msg("Failed to clear stored credential")
		}
		return
	}
	if err := c.store.Save(ctx, cred); err != nil {
		c.log.Warn().Err(err).Str("store", c.store.Name()).Msg("Failed to persist credential")
	}
}

func (c *Client) isExempt(req Request) bool {
	if len(c.exemptPaths) == 0 {
		return false
	}
	target, err := req.resolve(c.baseURL)
	if err != nil {
		return false
	}
	path := strings.TrimRight(target.Path, "/")
	for _, exempt := range c.exemptPaths {
		exempt = strings.Trim(exempt, "/")
		if exempt == "" {
			continue
		}
		// Whole segments only: "login" matches /auth/login, not /bloglogin.
		if path == exempt || strings.HasSuffix(path, "/"+exempt) {
			return true
		}
	}
	return false
}

// IsPublicLocation reports whether location is under a public prefix.
func (c *Client) IsPublicLocation(location string) bool {
	if location == "" {
		return false
	}
	if i := strings.IndexAny(location, "?#"); i >= 0 {
		location = location[:i]
	}
	for _, prefix := range c.publicLocations {
		prefix = strings.TrimRight(prefix, "/")
		if prefix == "" {
			continue
		}
		if location == prefix || strings.HasPrefix(location, prefix+"/") {
			return true
		}
	}
	return false
}

// SetCredential installs a credential from an external login and makes the
// session valid again. A refresh in flight is overtaken: its outcome is
// discarded and its queue is replayed with cred.
func (c *Client) SetCredential(ctx context.Context, cred credentials.Credential) {
	c.mu.Lock()
	c.cred = cred
	c.generation++
	c.epoch++
	if c.state == StateInvalid {
		c.state = StateValid
	}
	seq := c.beginStoreWriteLocked()
	c.mu.Unlock()

	c.log.Info().Msg("Credential set")
	c.writeStore(ctx, seq, cred)
}

// ClearCredential logs out: the credential is dropped and the session is
// invalid until the next SetCredential. A refresh in flight is overtaken and
// its queue rejected.
func (c *Client) ClearCredential(ctx context.Context) {
	c.mu.Lock()
	c.cred = credentials.Credential{}
	c.generation++
	c.epoch++
	if c.state != StateRefreshPending {
		c.state = StateInvalid
	}
	seq := c.beginStoreWriteLocked()
	c.mu.Unlock()

	c.log.Info().Msg("Credential cleared")
	c.writeStore(ctx, seq, credentials.Credential{})
}

// Restore installs the credential persisted in the store when it differs from
// the one held, making the session valid. It does nothing while a refresh or
// a store write is in flight, or when the store was written after it was
// read. It reports whether a credential was installed.
func (c *Client) Restore(ctx context.Context) (bool, error) {
	if c.store == nil {
		return false, nil
	}

	c.mu.Lock()
	seq := c.storeSeq
	busy := c.storeBusy > 0 || c.state == StateRefreshPending
	c.mu.Unlock()
	if busy {
		return false, nil
	}

	cred, err := c.store.Load(ctx)
	if errors.Is(err, credentials.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to restore credential from %s: %w", c.store.Name(), err)
	}
	if cred.IsZero() {
		return false, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if seq != c.storeSeq || c.storeBusy > 0 || c.state == StateRefreshPending {
		return false, nil
	}
	if c.state == StateValid && c.cred.Equal(cred) {
		return false, nil
	}
	c.cred = cred
	c.generation++
	c.epoch++
	c.state = StateValid
	return true, nil
}

// Credential returns the current credential and whether one is held.
func (c *Client) Credential() (credentials.Credential, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cred, !c.cred.IsZero()
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Pending returns the number of requests queued behind the in-flight refresh.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// StoreName names the persistence store, or "" when none is configured.
func (c *Client) StoreName() string {
	if c.store == nil {
		return ""
	}
	return c.store.Name()
}
