package services

import (
	"context"
	"net/http"
	"net/url"

	"evalgo.org/nodelink/internal/daemon"
	"evalgo.org/nodelink/models"
)

// System calls node-wide information endpoints.
type System struct {
	c *daemon.Client
}

// SelfUpdateRequest asks the node agent to update itself.
type SelfUpdateRequest struct {
	Source  string `json:"source" validate:"required,oneof=github url"`
	Version string `json:"version,omitempty"`
	URL     string `json:"url,omitempty" validate:"omitempty,url"`
}

// Info returns node information. Detailed requests the v2 payload.
func (s *System) Info(ctx context.Context, detailed bool) models.CallResult {
	var q url.Values
	if detailed {
		q = url.Values{"v": []string{"2"}}
	}
	return s.c.Get(ctx, "/api/system", q).Result()
}

// IPs returns the addresses the node can bind allocations to.
func (s *System) IPs(ctx context.Context) models.CallResult {
	return s.c.Get(ctx, "/api/system/ips", nil).Result()
}

// Utilization returns current CPU, memory and disk usage.
func (s *System) Utilization(ctx context.Context) models.CallResult {
	return s.c.Get(ctx, "/api/system/utilization", nil).Result()
}

// Diagnostics returns the plain text diagnostics report.
func (s *System) Diagnostics(ctx context.Context) models.CallResult {
	return s.c.Raw(ctx, http.MethodGet, "/api/system/diagnostics", nil).Result()
}

// SelfUpdate triggers an update of the node agent.
func (s *System) SelfUpdate(ctx context.Context, req SelfUpdateRequest) models.CallResult {
	if res, ok := check(req); !ok {
		return res
	}
	if req.Source == "url" && req.URL == "" {
		return invalid("url is required when source is url")
	}
	return s.c.Post(ctx, "/api/system/self-update", req).Result()
}

// Docker calls docker maintenance endpoints.
type Docker struct {
	c *daemon.Client
}

// DiskUsage returns docker disk usage.
func (d *Docker) DiskUsage(ctx context.Context) models.CallResult {
	return d.c.Get(ctx, "/api/system/docker/disk", nil).Result()
}

// PruneImages removes dangling images.
func (d *Docker) PruneImages(ctx context.Context) models.CallResult {
	return d.c.Delete(ctx, "/api/system/docker/image/prune", nil).Result()
}
