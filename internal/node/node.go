// Package node describes the node agents the panel talks to and resolves
// which node hosts a given server.
package node

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"
)

var (
	// ErrUnknownServer is returned when no node hosts the server
	ErrUnknownServer = errors.New("unknown server")
	// ErrUnknownNode is returned when a node id is not registered
	ErrUnknownNode = errors.New("unknown node")
)

// DefaultTimeout is the request timeout used when a target does not set one.
const DefaultTimeout = 30 * time.Second

// Target holds the connection parameters of one node agent. Targets are
// read-only and looked up per call.
type Target struct {
	ID      string
	Name    string
	Scheme  string
	Host    string
	Port    int
	Secret  string
	Timeout time.Duration
}

// BaseURL returns scheme://host:port without a trailing slash.
func (t Target) BaseURL() string {
	scheme := t.Scheme
	if scheme == "" {
		scheme = "http"
	}
	return scheme + "://" + net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

// RequestTimeout returns the configured timeout or DefaultTimeout.
func (t Target) RequestTimeout() time.Duration {
	if t.Timeout <= 0 {
		return DefaultTimeout
	}
	return t.Timeout
}

// String implements fmt.Stringer without exposing the secret.
func (t Target) String() string {
	return fmt.Sprintf("%s (%s)", t.ID, t.BaseURL())
}

// Resolver maps servers to the node agent hosting them.
type Resolver interface {
	// TargetForServer returns the node hosting server
	TargetForServer(ctx context.Context, server string) (Target, error)

	// Target returns a node by id
	Target(ctx context.Context, id string) (Target, error)

	// Targets lists every registered node
	Targets(ctx context.Context) ([]Target, error)
}

// PermissionLister returns the capability strings a user holds on a server.
type PermissionLister interface {
	Permissions(ctx context.Context, user, server string) ([]string, error)
}
