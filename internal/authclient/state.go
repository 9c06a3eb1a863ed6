package authclient

import "context"

// State is the lifecycle state of the client's credential.
type State int

const (
	// StateValid: requests are sent with the current credential.
	StateValid State = iota
	// StateRefreshPending: one refresh is in flight; auth failures queue behind it.
	StateRefreshPending
	// StateInvalid: the last refresh failed. Only a login leaves this state.
	StateInvalid
)

func (s State) String() string {
	switch s {
	case StateValid:
		return "valid"
	case StateRefreshPending:
		return "refresh_pending"
	case StateInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

type locationKey struct{}

// WithLocation records the caller's current location (for a browser host, the
// page path) so a failed refresh can skip the session-invalid signal when the
// user is already on a public page.
func WithLocation(ctx context.Context, location string) context.Context {
	return context.WithValue(ctx, locationKey{}, location)
}

// LocationFrom returns the location stored by WithLocation, or "".
func LocationFrom(ctx context.Context) string {
	loc, _ := ctx.Value(locationKey{}).(string)
	return loc
}
