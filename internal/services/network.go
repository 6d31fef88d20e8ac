package services

import (
	"context"
	"strconv"

	"evalgo.org/nodelink/internal/daemon"
	"evalgo.org/nodelink/models"
)

// Firewall manages per-server firewall rules.
type Firewall struct {
	c *daemon.Client
}

// FirewallRule is one allow or block rule on a server port.
type FirewallRule struct {
	RemoteIP   string `json:"remote_ip" validate:"required,ip|cidr"`
	ServerPort int    `json:"server_port" validate:"min=1,max=65535"`
	Priority   int    `json:"priority" validate:"gte=0"`
	Type       string `json:"type" validate:"oneof=allow block"`
	Protocol   string `json:"protocol" validate:"oneof=tcp udp"`
}

func (r *FirewallRule) normalize() {
	if r.Priority == 0 {
		r.Priority = 1
	}
	if r.Protocol == "" {
		r.Protocol = "tcp"
	}
}

// List returns every rule of server.
func (f *Firewall) List(ctx context.Context, server string) models.CallResult {
	return f.c.Get(ctx, serverPath(server, "firewall"), nil).Result()
}

// Get returns one rule.
func (f *Firewall) Get(ctx context.Context, server string, rule int) models.CallResult {
	return f.c.Get(ctx, serverPath(server, "firewall", strconv.Itoa(rule)), nil).Result()
}

// Create adds a rule. Priority defaults to 1 and protocol to tcp.
func (f *Firewall) Create(ctx context.Context, server string, rule FirewallRule) models.CallResult {
	rule.normalize()
	if res, ok := check(rule); !ok {
		return res
	}
	return f.c.Post(ctx, serverPath(server, "firewall"), rule).Result()
}

// Update replaces a rule.
func (f *Firewall) Update(ctx context.Context, server string, id int, rule FirewallRule) models.CallResult {
	rule.normalize()
	if res, ok := check(rule); !ok {
		return res
	}
	return f.c.Put(ctx, serverPath(server, "firewall", strconv.Itoa(id)), rule).Result()
}

// Delete removes a rule.
func (f *Firewall) Delete(ctx context.Context, server string, rule int) models.CallResult {
	return f.c.Delete(ctx, serverPath(server, "firewall", strconv.Itoa(rule)), nil).Result()
}

// ByPort returns the rules on one server port.
func (f *Firewall) ByPort(ctx context.Context, server string, port int) models.CallResult {
	if port < 1 || port > 65535 {
		return invalid("port out of range")
	}
	return f.c.Get(ctx, serverPath(server, "firewall", "port", strconv.Itoa(port)), nil).Result()
}

// Sync reapplies the stored rules to the host firewall.
func (f *Firewall) Sync(ctx context.Context, server string) models.CallResult {
	return f.c.Post(ctx, serverPath(server, "firewall", "sync"), nil).Result()
}

// Proxy manages reverse proxy entries in front of a server.
type Proxy struct {
	c *daemon.Client
}

// ProxyRequest creates a reverse proxy for domain.
type ProxyRequest struct {
	Domain         string `json:"domain" validate:"required,fqdn"`
	IP             string `json:"ip" validate:"required,ip"`
	Port           string `json:"port" validate:"required,numeric"`
	SSL            bool   `json:"ssl"`
	UseLetsEncrypt bool   `json:"use_lets_encrypt"`
	ClientEmail    string `json:"client_email" validate:"omitempty,email"`
	SSLCert        string `json:"ssl_cert"`
	SSLKey         string `json:"ssl_key"`
}

// Create sets up a proxy. Let's Encrypt certificates need ClientEmail.
func (p *Proxy) Create(ctx context.Context, server string, req ProxyRequest) models.CallResult {
	if res, ok := check(req); !ok {
		return res
	}
	if req.UseLetsEncrypt && req.ClientEmail == "" {
		return invalid("client_email is required for Let's Encrypt")
	}
	return p.c.Post(ctx, serverPath(server, "proxy", "create"), req).Result()
}

// Delete removes the proxy for domain and port.
func (p *Proxy) Delete(ctx context.Context, server, domain, port string) models.CallResult {
	if domain == "" || port == "" {
		return invalid("domain and port are required")
	}
	return p.c.Post(ctx, serverPath(server, "proxy", "delete"), map[string]any{"domain": domain, "port": port}).Result()
}

// FastDL manages the HTTP fast download mirror of a server.
type FastDL struct {
	c *daemon.Client
}

// FastDLConfig updates the mirror. Nil fields are left unchanged.
type FastDLConfig struct {
	Enabled   *bool   `json:"enabled,omitempty"`
	Directory *string `json:"directory,omitempty"`
}

// Get returns the mirror configuration.
func (f *FastDL) Get(ctx context.Context, server string) models.CallResult {
	return f.c.Get(ctx, serverPath(server, "fastdl"), nil).Result()
}

// Enable turns the mirror on, optionally rooted at directory.
func (f *FastDL) Enable(ctx context.Context, server, directory string) models.CallResult {
	body := map[string]any{}
	if directory != "" {
		body["directory"] = directory
	}
	return f.c.Post(ctx, serverPath(server, "fastdl", "enable"), body).Result()
}

// Disable turns the mirror off.
func (f *FastDL) Disable(ctx context.Context, server string) models.CallResult {
	return f.c.Post(ctx, serverPath(server, "fastdl", "disable"), nil).Result()
}

// Update changes the mirror configuration.
func (f *FastDL) Update(ctx context.Context, server string, cfg FastDLConfig) models.CallResult {
	if cfg.Enabled == nil && cfg.Directory == nil {
		return invalid("nothing to update")
	}
	return f.c.Put(ctx, serverPath(server, "fastdl"), cfg).Result()
}
