package node

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"evalgo.org/nodelink/internal/config"
	"evalgo.org/nodelink/models"
)

// Registry is a config-backed Resolver and PermissionLister.
type Registry struct {
	mu      sync.RWMutex
	nodes   map[string]Target
	servers map[string]string
	grants  map[grantKey][]string
}

type grantKey struct {
	user   string
	server string
}

// NewRegistry builds a registry from the loaded configuration.
func NewRegistry(cfg *config.Config) *Registry {
	r := &Registry{
		nodes:   make(map[string]Target, len(cfg.Nodes)),
		servers: make(map[string]string, len(cfg.Servers)),
		grants:  make(map[grantKey][]string, len(cfg.Grants)),
	}
	for _, n := range cfg.Nodes {
		r.nodes[n.ID] = Target{
			ID:      n.ID,
			Name:    n.Name,
			Scheme:  n.Scheme,
			Host:    n.Host,
			Port:    n.Port,
			Secret:  n.Secret,
			Timeout: n.Timeout,
		}
	}
	for _, s := range cfg.Servers {
		r.servers[s.UUID] = s.Node
	}
	for _, g := range cfg.Grants {
		k := grantKey{user: g.User, server: g.Server}
		r.grants[k] = models.Dedupe(append(r.grants[k], g.Permissions...))
	}
	return r
}

// Register adds or replaces a node.
func (r *Registry) Register(t Target) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nodes[t.ID] = t
}

// Assign places server on node.
func (r *Registry) Assign(server, nodeID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.nodes[nodeID]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, nodeID)
	}
	r.servers[server] = nodeID
	return nil
}

// Grant sets the capabilities of user on server.
func (r *Registry) Grant(user, server string, permissions []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.grants[grantKey{user: user, server: server}] = models.Dedupe(permissions)
}

// TargetForServer implements Resolver.
func (r *Registry) TargetForServer(_ context.Context, server string) (Target, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.servers[server]
	if !ok {
		return Target{}, fmt.Errorf("%w: %s", ErrUnknownServer, server)
	}
	t, ok := r.nodes[id]
	if !ok {
		return Target{}, fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}
	return t, nil
}

// Target implements Resolver.
func (r *Registry) Target(_ context.Context, id string) (Target, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.nodes[id]
	if !ok {
		return Target{}, fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}
	return t, nil
}

// Targets implements Resolver. Nodes are sorted by id.
func (r *Registry) Targets(_ context.Context) ([]Target, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Target, 0, len(r.nodes))
	for _, t := range r.nodes {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Permissions implements PermissionLister. Unknown pairs yield an empty set.
func (r *Registry) Permissions(_ context.Context, user, server string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	perms := r.grants[grantKey{user: user, server: server}]
	out := make([]string, len(perms))
	copy(out, perms)
	return out, nil
}
