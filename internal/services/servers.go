package services

import (
	"context"
	"net/url"
	"strconv"

	"evalgo.org/nodelink/internal/daemon"
	"evalgo.org/nodelink/models"
)

// Servers calls server lifecycle endpoints.
type Servers struct {
	c *daemon.Client
}

// PowerRequest is the body of a power call.
type PowerRequest struct {
	Signal      models.PowerSignal `json:"signal" validate:"required,oneof=start stop restart kill"`
	WaitSeconds int                `json:"wait_seconds" validate:"gte=0"`
}

// List returns every server on the node.
func (s *Servers) List(ctx context.Context) models.CallResult {
	return s.c.Get(ctx, "/api/servers", nil).Result()
}

// Get returns one server.
func (s *Servers) Get(ctx context.Context, server string) models.CallResult {
	return s.c.Get(ctx, serverPath(server), nil).Result()
}

// Create registers a server definition on the node.
func (s *Servers) Create(ctx context.Context, definition map[string]any) models.CallResult {
	if len(definition) == 0 {
		return invalid("server definition is empty")
	}
	return s.c.Post(ctx, "/api/servers", definition).Result()
}

// Delete removes a server from the node.
func (s *Servers) Delete(ctx context.Context, server string) models.CallResult {
	return s.c.Delete(ctx, serverPath(server), nil).Result()
}

// Power sends a power signal. The node waits 30 seconds for a graceful
// transition, 60 for kill.
func (s *Servers) Power(ctx context.Context, server string, signal models.PowerSignal) models.CallResult {
	req := PowerRequest{Signal: signal, WaitSeconds: 30}
	if signal == models.PowerKill {
		req.WaitSeconds = 60
	}
	if res, ok := check(req); !ok {
		return res
	}
	return s.c.Post(ctx, serverPath(server, "power"), req).Result()
}

// Logs returns the last lines of console output.
func (s *Servers) Logs(ctx context.Context, server string, lines int) models.CallResult {
	if lines <= 0 {
		lines = 100
	}
	q := url.Values{"lines": []string{strconv.Itoa(lines)}}
	return s.c.Get(ctx, serverPath(server, "logs"), q).Result()
}

// SendCommands writes commands to the server console.
func (s *Servers) SendCommands(ctx context.Context, server string, commands ...string) models.CallResult {
	if len(commands) == 0 {
		return invalid("no commands provided")
	}
	return s.c.Post(ctx, serverPath(server, "commands"), map[string]any{"commands": commands}).Result()
}

// Install runs the install script.
func (s *Servers) Install(ctx context.Context, server string) models.CallResult {
	return s.c.Post(ctx, serverPath(server, "install"), nil).Result()
}

// Reinstall wipes and reinstalls the server.
func (s *Servers) Reinstall(ctx context.Context, server string) models.CallResult {
	return s.c.Post(ctx, serverPath(server, "reinstall"), nil).Result()
}

// Sync asks the node to refresh the server configuration from the panel.
func (s *Servers) Sync(ctx context.Context, server string) models.CallResult {
	return s.c.Post(ctx, serverPath(server, "sync"), nil).Result()
}

// InstallLogs returns the output of the last install.
func (s *Servers) InstallLogs(ctx context.Context, server string) models.CallResult {
	return s.c.Get(ctx, serverPath(server, "install-logs"), nil).Result()
}

// DenyTokens revokes WebSocket tokens by jti.
func (s *Servers) DenyTokens(ctx context.Context, server string, jtis ...string) models.CallResult {
	if len(jtis) == 0 {
		return invalid("no token ids provided")
	}
	return s.c.Post(ctx, serverPath(server, "ws", "deny"), map[string]any{"jtis": jtis}).Result()
}

// DeauthorizeUser disconnects user from the given servers.
func (s *Servers) DeauthorizeUser(ctx context.Context, user string, servers ...string) models.CallResult {
	if user == "" {
		return invalid("user is required")
	}
	if servers == nil {
		servers = []string{}
	}
	return s.c.Post(ctx, "/api/deauthorize-user", map[string]any{"user": user, "servers": servers}).Result()
}

// ImportRequest pulls server files from a remote SFTP or FTP host. The
// daemon spells the host field "hote".
type ImportRequest struct {
	User        string `json:"user" validate:"required"`
	Password    string `json:"password" validate:"required"`
	Host        string `json:"hote" validate:"required"`
	Port        int    `json:"port" validate:"min=1,max=65535"`
	Source      string `json:"srclocation" validate:"required"`
	Destination string `json:"dstlocation" validate:"required"`
	Wipe        bool   `json:"wipe"`
	Type        string `json:"type" validate:"oneof=sftp ftp"`
}

// Import copies files from a remote host into the server directory.
func (s *Servers) Import(ctx context.Context, server string, req ImportRequest) models.CallResult {
	if res, ok := check(req); !ok {
		return res
	}
	return s.c.Post(ctx, serverPath(server, "import"), req).Result()
}
