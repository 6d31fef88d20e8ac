// Package services holds the stateless callers for node agent operations.
//
// Each method issues exactly one daemon call and returns the
// success/data/error triple. Request payloads are validated locally first;
// a payload that fails validation never reaches the daemon and is reported
// as invalid data with status 422.
//
// The bearer credential is whatever the daemon.Client carries: the node
// secret for administrative calls, or a scoped capability token obtained via
// Client.WithToken.
package services

import (
	"net/http"
	"net/url"

	"evalgo.org/nodelink/internal/daemon"
	"evalgo.org/nodelink/internal/validation"
	"evalgo.org/nodelink/models"
)

var validate = validation.New()

// Set groups every caller for one node.
type Set struct {
	Servers   *Servers
	Files     *Files
	Backups   *Backups
	Transfers *Transfers
	System    *System
	Docker    *Docker
	Config    *Config
	Modules   *Modules
	Firewall  *Firewall
	Proxy     *Proxy
	FastDL    *FastDL
}

// New creates all callers on top of c.
func New(c *daemon.Client) *Set {
	return &Set{
		Servers:   &Servers{c: c},
		Files:     &Files{c: c},
		Backups:   &Backups{c: c},
		Transfers: &Transfers{c: c},
		System:    &System{c: c},
		Docker:    &Docker{c: c},
		Config:    &Config{c: c},
		Modules:   &Modules{c: c},
		Firewall:  &Firewall{c: c},
		Proxy:     &Proxy{c: c},
		FastDL:    &FastDL{c: c},
	}
}

// serverPath returns /api/servers/{uuid} followed by the escaped segments.
func serverPath(server string, segments ...string) string {
	p := "/api/servers/" + url.PathEscape(server)
	for _, s := range segments {
		p += "/" + s
	}
	return p
}

// invalid reports a request rejected before it was sent.
func invalid(msg string) models.CallResult {
	return models.CallResult{
		Success: false,
		Status:  http.StatusUnprocessableEntity,
		Error:   "invalid data: " + msg,
		Kind:    string(daemon.KindInvalidData),
	}
}

// check validates a request DTO and returns a ready result on failure.
func check(req any) (models.CallResult, bool) {
	if err := validate.Struct(req); err != nil {
		return invalid(err.Error()), false
	}
	return models.CallResult{}, true
}
