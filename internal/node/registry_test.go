package node

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evalgo.org/nodelink/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Nodes: []config.NodeConfig{
			{ID: "node2", Host: "10.0.0.2", Scheme: "http", Port: 8080, Secret: "b", Timeout: 30 * time.Second},
			{ID: "node1", Host: "node1.example.com", Scheme: "https", Port: 8443, Secret: "a", Timeout: 5 * time.Second},
		},
		Servers: []config.ServerConfig{
			{UUID: "srv-1", Node: "node1"},
		},
		Grants: []config.GrantConfig{
			{User: "alice", Server: "srv-1", Permissions: []string{"control.console", "file.read"}},
			{User: "alice", Server: "srv-1", Permissions: []string{"file.read", "backup.read"}},
		},
	}
}

func TestTargetBaseURL(t *testing.T) {
	tests := []struct {
		target Target
		want   string
	}{
		{Target{Scheme: "https", Host: "node1.example.com", Port: 8443}, "https://node1.example.com:8443"},
		{Target{Host: "10.0.0.2", Port: 8080}, "http://10.0.0.2:8080"},
		{Target{Scheme: "http", Host: "::1", Port: 8080}, "http://[::1]:8080"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.target.BaseURL())
	}
}

func TestTargetRequestTimeout(t *testing.T) {
	assert.Equal(t, DefaultTimeout, Target{}.RequestTimeout())
	assert.Equal(t, 5*time.Second, Target{Timeout: 5 * time.Second}.RequestTimeout())
}

func TestTargetStringHidesSecret(t *testing.T) {
	s := Target{ID: "node1", Host: "h", Port: 1, Secret: "topsecret"}.String()
	assert.NotContains(t, s, "topsecret")
	assert.Contains(t, s, "node1")
}

func TestRegistryResolve(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(testConfig())

	target, err := r.TargetForServer(ctx, "srv-1")
	require.NoError(t, err)
	assert.Equal(t, "node1", target.ID)
	assert.Equal(t, "https://node1.example.com:8443", target.BaseURL())

	_, err = r.TargetForServer(ctx, "srv-404")
	assert.ErrorIs(t, err, ErrUnknownServer)

	_, err = r.Target(ctx, "ghost")
	assert.ErrorIs(t, err, ErrUnknownNode)

	all, err := r.Targets(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "node1", all[0].ID)
	assert.Equal(t, "node2", all[1].ID)
}

func TestRegistryAssign(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(testConfig())

	require.NoError(t, r.Assign("srv-2", "node2"))
	target, err := r.TargetForServer(ctx, "srv-2")
	require.NoError(t, err)
	assert.Equal(t, "node2", target.ID)

	assert.ErrorIs(t, r.Assign("srv-3", "ghost"), ErrUnknownNode)

	r.Register(Target{ID: "node3", Host: "node3", Port: 8080, Secret: "c"})
	require.NoError(t, r.Assign("srv-3", "node3"))
}

func TestRegistryPermissions(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(testConfig())

	perms, err := r.Permissions(ctx, "alice", "srv-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"control.console", "file.read", "backup.read"}, perms)

	perms, err = r.Permissions(ctx, "bob", "srv-1")
	require.NoError(t, err)
	assert.Empty(t, perms)

	r.Grant("bob", "srv-1", []string{"control.start", "control.start"})
	perms, err = r.Permissions(ctx, "bob", "srv-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"control.start"}, perms)
}
