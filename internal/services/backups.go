package services

import (
	"context"
	"net/url"

	"evalgo.org/nodelink/internal/daemon"
	"evalgo.org/nodelink/models"
)

// Backups calls the backup endpoints.
type Backups struct {
	c *daemon.Client
}

// CreateBackupRequest starts a backup.
type CreateBackupRequest struct {
	Adapter string `json:"adapter" validate:"required,oneof=wings s3"`
	UUID    string `json:"uuid" validate:"required,uuid"`
	Ignore  string `json:"ignore,omitempty"`
}

// RestoreBackupRequest restores a backup over the server files.
type RestoreBackupRequest struct {
	Adapter           string `json:"adapter" validate:"required,oneof=wings s3"`
	TruncateDirectory bool   `json:"truncate_directory"`
	DownloadURL       string `json:"download_url,omitempty" validate:"omitempty,url"`
}

// List returns the backups of a server.
func (b *Backups) List(ctx context.Context, server string) models.CallResult {
	return b.c.Get(ctx, serverPath(server, "backups"), nil).Result()
}

// Create starts a backup.
func (b *Backups) Create(ctx context.Context, server string, req CreateBackupRequest) models.CallResult {
	if res, ok := check(req); !ok {
		return res
	}
	return b.c.Post(ctx, serverPath(server, "backups"), req).Result()
}

// Restore restores backup. S3 restores need a DownloadURL. Single-backup
// routes use the singular /backup prefix.
func (b *Backups) Restore(ctx context.Context, server, backup string, req RestoreBackupRequest) models.CallResult {
	if res, ok := check(req); !ok {
		return res
	}
	if req.Adapter == "s3" && req.DownloadURL == "" {
		return invalid("download_url is required for s3 backups")
	}
	return b.c.Post(ctx, serverPath(server, "backup", url.PathEscape(backup), "restore"), req).Result()
}

// Delete removes a backup.
func (b *Backups) Delete(ctx context.Context, server, backup string) models.CallResult {
	return b.c.Delete(ctx, serverPath(server, "backup", url.PathEscape(backup)), nil).Result()
}
