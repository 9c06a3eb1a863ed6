package credentials

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Store.Load when nothing has been saved.
var ErrNotFound = errors.New("credentials: no stored credential")

// Store persists the credential outside the process. The authenticated client
// keeps the authoritative copy in memory and mirrors changes here.
type Store interface {
	// Load returns the stored credential or ErrNotFound.
	Load(ctx context.Context) (Credential, error)

	// Save replaces the stored credential.
	Save(ctx context.Context, cred Credential) error

	// Clear removes the stored credential. Clearing an empty store is not an error.
	Clear(ctx context.Context) error

	// Name returns the name of the store for logging
	Name() string
}
