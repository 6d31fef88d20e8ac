package services

import (
	"context"
	"net/url"

	"evalgo.org/nodelink/internal/daemon"
	"evalgo.org/nodelink/models"
)

// Transfers moves servers between nodes.
type Transfers struct {
	c *daemon.Client
}

// TransferServer describes the server being moved.
type TransferServer struct {
	UUID              string `json:"uuid" validate:"required"`
	StartOnCompletion bool   `json:"start_on_completion"`
}

// TransferRequest is sent to the source node. URL is the archive endpoint on
// the destination and Token the transfer token it accepts.
type TransferRequest struct {
	URL    string         `json:"url" validate:"required,url"`
	Token  string         `json:"token" validate:"required"`
	Server TransferServer `json:"server"`
}

// Start begins pushing server to the destination node.
func (t *Transfers) Start(ctx context.Context, server string, req TransferRequest) models.CallResult {
	if req.Server.UUID == "" {
		req.Server.UUID = server
	}
	if res, ok := check(req); !ok {
		return res
	}
	return t.c.Post(ctx, serverPath(server, "transfer"), req).Result()
}

// Cancel aborts an outgoing transfer on the source node.
func (t *Transfers) Cancel(ctx context.Context, server string) models.CallResult {
	return t.c.Delete(ctx, serverPath(server, "transfer"), nil).Result()
}

// CancelIncoming aborts an incoming transfer on the destination node.
func (t *Transfers) CancelIncoming(ctx context.Context, server string) models.CallResult {
	return t.c.Delete(ctx, "/api/transfers/"+url.PathEscape(server), nil).Result()
}
