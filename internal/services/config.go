package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"gopkg.in/yaml.v3"

	"evalgo.org/nodelink/internal/daemon"
	"evalgo.org/nodelink/models"
)

// Config reads and changes the node agent configuration file.
type Config struct {
	c *daemon.Client
}

// Get returns the configuration as raw YAML in Data.
func (c *Config) Get(ctx context.Context) models.CallResult {
	return c.c.Raw(ctx, http.MethodGet, "/api/config", nil,
		daemon.WithHeader("Accept", "application/yaml, text/plain")).Result()
}

// Parsed returns the configuration decoded from YAML. Values are reachable
// with Lookup.
func (c *Config) Parsed(ctx context.Context) (map[string]any, models.CallResult) {
	res := c.Get(ctx)
	if !res.Success {
		return nil, res
	}
	text, _ := res.Data.(string)
	doc := map[string]any{}
	if err := yaml.Unmarshal([]byte(text), &doc); err != nil {
		res.Success = false
		res.Error = fmt.Sprintf("malformed configuration: %v", err)
		res.Kind = string(daemon.KindDaemon)
		res.Data = nil
		return nil, res
	}
	res.Data = doc
	return doc, res
}

// Put replaces the whole configuration file.
func (c *Config) Put(ctx context.Context, content string, restart bool) models.CallResult {
	var doc any
	if err := yaml.Unmarshal([]byte(content), &doc); err != nil {
		return invalid(fmt.Sprintf("content is not valid YAML: %v", err))
	}
	return c.c.Put(ctx, "/api/config", map[string]any{"content": content, "restart": restart}).Result()
}

// Patch sets individual values addressed by dotted paths, for example
// "api.port".
func (c *Config) Patch(ctx context.Context, updates map[string]any, restart bool) models.CallResult {
	if len(updates) == 0 {
		return invalid("no updates provided")
	}
	for k := range updates {
		if k == "" || strings.HasPrefix(k, ".") || strings.HasSuffix(k, ".") || strings.Contains(k, "..") {
			return invalid(fmt.Sprintf("malformed key %q", k))
		}
	}
	return c.c.Patch(ctx, "/api/config/patch", map[string]any{"updates": updates, "restart": restart}).Result()
}

// Lookup walks doc along a dotted path.
func Lookup(doc map[string]any, path string) (any, bool) {
	var cur any = doc
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Modules manages optional node agent modules.
type Modules struct {
	c *daemon.Client
}

func modulePath(module string, segments ...string) string {
	p := "/api/modules/" + url.PathEscape(module)
	for _, s := range segments {
		p += "/" + s
	}
	return p
}

// List returns every module and its state.
func (m *Modules) List(ctx context.Context) models.CallResult {
	return m.c.Get(ctx, "/api/modules", nil).Result()
}

// Config returns the configuration of module.
func (m *Modules) Config(ctx context.Context, module string) models.CallResult {
	return m.c.Get(ctx, modulePath(module, "config"), nil).Result()
}

// UpdateConfig replaces the configuration of module.
func (m *Modules) UpdateConfig(ctx context.Context, module string, config map[string]any) models.CallResult {
	if config == nil {
		return invalid("config is required")
	}
	return m.c.Put(ctx, modulePath(module, "config"), map[string]any{"config": config}).Result()
}

// Enable turns module on.
func (m *Modules) Enable(ctx context.Context, module string) models.CallResult {
	return m.c.Post(ctx, modulePath(module, "enable"), nil).Result()
}

// Disable turns module off.
func (m *Modules) Disable(ctx context.Context, module string) models.CallResult {
	return m.c.Post(ctx, modulePath(module, "disable"), nil).Result()
}
