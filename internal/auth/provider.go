// Package auth resolves the caller of a request. Sessions are owned by the
// upstream proxy, which forwards the authenticated user id in a header.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"storefront/internal/models"
	"storefront/internal/store"
)

// UserHeader carries the authenticated user id
const UserHeader = "X-User-ID"

// ErrInvalidIdentity is returned for a malformed or unknown user id
var ErrInvalidIdentity = errors.New("invalid identity")

// UserLookup loads a user by id
type UserLookup interface {
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
}

// Provider resolves the user behind a request. A nil user with a nil error means
// the request is anonymous.
type Provider interface {
	CurrentUser(ctx context.Context, r *http.Request) (*models.User, error)
}

// HeaderProvider trusts the user id set by the auth proxy
type HeaderProvider struct {
	users UserLookup
}

// NewHeaderProvider creates a provider backed by users
func NewHeaderProvider(users UserLookup) *HeaderProvider {
	return &HeaderProvider{users: users}
}

// CurrentUser implements Provider
func (p *HeaderProvider) CurrentUser(ctx context.Context, r *http.Request) (*models.User, error) {
	raw := strings.TrimSpace(r.Header.Get(UserHeader))
	if raw == "" {
		return nil, nil
	}

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidIdentity, raw)
	}

	user, err := p.users.GetUserByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: user %d", ErrInvalidIdentity, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user %d: %w", id, err)
	}
	return user, nil
}
