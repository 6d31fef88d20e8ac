package session

import (
	"context"
	"errors"

	"evalgo.org/nodelink/internal/node"
	"evalgo.org/nodelink/models"
)

// AuthoritySource mints session tokens locally, for processes that hold the
// node secrets.
type AuthoritySource struct {
	Authority *node.Authority
	User      string
	Server    string
}

// Token implements TokenSource.
func (s AuthoritySource) Token(ctx context.Context) (*models.TokenData, error) {
	if s.Authority == nil {
		return nil, errors.New("authority source has no authority")
	}
	return s.Authority.WebsocketToken(ctx, s.User, s.Server)
}
