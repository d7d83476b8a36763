// Package creds persists session credentials for the kitetrader client.
// The govern package deletes them when the API reports an expired session;
// the session bootstrap path loads and saves them.
package creds

import (
	"context"
	"time"
)

// Credentials is one persisted session: an opaque bearer token (an enctoken
// from web login, or an access token paired with an API key from
// programmatic login) and its expiry.
type Credentials struct {
	Token  string
	APIKey string // empty for enctoken sessions
	Expiry time.Time
}

// IsExpired reports whether the session has passed its expiry. A zero
// Expiry means the upstream did not communicate one and the session is
// treated as live until the server rejects it.
func (c *Credentials) IsExpired() bool {
	return !c.Expiry.IsZero() && time.Now().After(c.Expiry)
}

// Store is the credential persistence collaborator. Load returns nil when
// no credentials are stored. Delete on an empty store is a no-op.
type Store interface {
	Load(ctx context.Context) (*Credentials, error)
	Save(ctx context.Context, c Credentials) error
	Delete(ctx context.Context) error
}
