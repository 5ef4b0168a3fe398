// Package auth implements the bridge's optional bearer-token allow-list:
// when enabled, requests must carry a token this Store recognizes.
package auth

import (
	"context"
	"errors"
)

// ErrNotFound reports an absent token. The Store implementations in this
// package do not return it: Allowed reports an absent token as (false, nil).
var ErrNotFound = errors.New("auth: token not found")

// Store checks whether a bearer token is allow-listed. Unlike the teacher's
// BFF grant store, tokens here carry no rotation/family/TTL state — they
// are a flat allow-list maintained out of band (config or an operator
// tool), so the interface is reduced to membership checks and mutation.
type Store interface {
	// Allowed reports whether token is present in the allow-list.
	Allowed(ctx context.Context, token string) (bool, error)
	// Put adds token to the allow-list.
	Put(ctx context.Context, token string) error
	// Revoke removes token from the allow-list. Revoking an absent token
	// is not an error.
	Revoke(ctx context.Context, token string) error
}
