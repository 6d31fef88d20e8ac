package node

import (
	"context"
	"errors"
	"fmt"
	"time"

	"evalgo.org/nodelink/internal/token"
	"evalgo.org/nodelink/models"
)

// ErrNoAccess is returned when a user holds no capability on a server.
var ErrNoAccess = errors.New("user has no access to server")

// Authority mints capability tokens for the node hosting a server. Each
// node signs with its own secret, so issuers are built per target.
type Authority struct {
	resolver Resolver
	lister   PermissionLister
	panelURL string
	lifetime time.Duration
	observe  func(token.Operation)
	now      func() time.Time
}

// AuthorityOption configures an Authority.
type AuthorityOption func(*Authority)

// WithPanelURL sets the iss claim of minted tokens.
func WithPanelURL(u string) AuthorityOption {
	return func(a *Authority) { a.panelURL = u }
}

// WithTokenLifetime sets the lifetime of minted tokens.
func WithTokenLifetime(d time.Duration) AuthorityOption {
	return func(a *Authority) { a.lifetime = d }
}

// WithIssueObserver is called after each minted token.
func WithIssueObserver(fn func(token.Operation)) AuthorityOption {
	return func(a *Authority) { a.observe = fn }
}

// WithAuthorityClock replaces time.Now.
func WithAuthorityClock(now func() time.Time) AuthorityOption {
	return func(a *Authority) { a.now = now }
}

// NewAuthority creates an authority over resolver and lister.
func NewAuthority(resolver Resolver, lister PermissionLister, opts ...AuthorityOption) *Authority {
	a := &Authority{
		resolver: resolver,
		lister:   lister,
		lifetime: token.DefaultLifetime,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Resolver returns the resolver the authority looks nodes up with.
func (a *Authority) Resolver() Resolver {
	return a.resolver
}

// Issuer returns an issuer signing with the secret of t.
func (a *Authority) Issuer(t Target) (*token.Issuer, error) {
	opts := []token.Option{
		token.WithIssuer(a.panelURL),
		token.WithAudience(t.BaseURL()),
		token.WithLifetime(a.lifetime),
		token.WithClock(a.now),
	}
	if a.observe != nil {
		opts = append(opts, token.WithObserver(a.observe))
	}
	iss, err := token.NewIssuer(t.Secret, opts...)
	if err != nil {
		return nil, fmt.Errorf("node %s: %w", t.ID, err)
	}
	return iss, nil
}

// IssuerForServer resolves the node hosting server and returns its issuer.
func (a *Authority) IssuerForServer(ctx context.Context, server string) (*token.Issuer, Target, error) {
	t, err := a.resolver.TargetForServer(ctx, server)
	if err != nil {
		return nil, Target{}, err
	}
	iss, err := a.Issuer(t)
	if err != nil {
		return nil, Target{}, err
	}
	return iss, t, nil
}

// Permissions returns the capabilities of user on server, failing with
// ErrNoAccess when there are none.
func (a *Authority) Permissions(ctx context.Context, user, server string) ([]string, error) {
	perms, err := a.lister.Permissions(ctx, user, server)
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	if len(perms) == 0 {
		return nil, fmt.Errorf("%w: %s on %s", ErrNoAccess, user, server)
	}
	return perms, nil
}

// WebsocketToken mints the session token of user on server together with
// the WebSocket URL to present it to.
func (a *Authority) WebsocketToken(ctx context.Context, user, server string) (*models.TokenData, error) {
	perms, err := a.Permissions(ctx, user, server)
	if err != nil {
		return nil, err
	}
	iss, target, err := a.IssuerForServer(ctx, server)
	if err != nil {
		return nil, err
	}

	tok, err := iss.ForWebsocket(server, user, perms)
	if err != nil {
		return nil, err
	}
	claims, err := iss.Decode(tok)
	if err != nil {
		return nil, fmt.Errorf("failed to read back token: %w", err)
	}

	return &models.TokenData{
		Token:            tok,
		ExpiresAt:        claims.ExpiresAtTime().Unix(),
		ServerUUID:       server,
		UserUUID:         user,
		Permissions:      claims.Permissions,
		ConnectionString: token.WebsocketURL(target.BaseURL(), server),
	}, nil
}
