package models

import "strings"

// Capability strings understood by the node agent. The list is not closed:
// the token issuer signs whatever the permission resolver hands it.
const (
	PermissionWebsocketConnect = "websocket.connect"

	PermissionControlConsole = "control.console"
	PermissionControlStart   = "control.start"
	PermissionControlStop    = "control.stop"
	PermissionControlRestart = "control.restart"

	PermissionFileRead        = "file.read"
	PermissionFileReadContent = "file.read-content"
	PermissionFileCreate      = "file.create"
	PermissionFileUpdate      = "file.update"
	PermissionFileDelete      = "file.delete"
	PermissionFileArchive     = "file.archive"

	PermissionBackupCreate   = "backup.create"
	PermissionBackupRead     = "backup.read"
	PermissionBackupDelete   = "backup.delete"
	PermissionBackupRestore  = "backup.restore"
	PermissionBackupDownload = "backup.download"

	PermissionAdminWebsocketErrors   = "admin.websocket.errors"
	PermissionAdminWebsocketInstall  = "admin.websocket.install"
	PermissionAdminWebsocketTransfer = "admin.websocket.transfer"

	PermissionAdminDocker   = "admin.docker"
	PermissionAdminSystem   = "admin.system"
	PermissionAdminTransfer = "admin.transfer"
)

// PowerSignal is a power action understood by the node agent.
type PowerSignal string

const (
	PowerStart   PowerSignal = "start"
	PowerStop    PowerSignal = "stop"
	PowerRestart PowerSignal = "restart"
	PowerKill    PowerSignal = "kill"
)

// Valid reports whether s is one of the four known signals.
func (s PowerSignal) Valid() bool {
	switch s {
	case PowerStart, PowerStop, PowerRestart, PowerKill:
		return true
	}
	return false
}

// Permission returns the capability needed to send s.
func (s PowerSignal) Permission() string {
	switch s {
	case PowerStart:
		return PermissionControlStart
	case PowerRestart:
		return PermissionControlRestart
	default:
		return PermissionControlStop
	}
}

// Dedupe returns perms without duplicates, keeping first-seen order.
func Dedupe(perms []string) []string {
	seen := make(map[string]struct{}, len(perms))
	out := make([]string, 0, len(perms))
	for _, p := range perms {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// Allows reports whether granted covers perm. "*" covers everything and
// "control.*" covers every control capability.
func Allows(granted []string, perm string) bool {
	for _, g := range granted {
		if g == "*" || g == perm {
			return true
		}
		if prefix, ok := strings.CutSuffix(g, "*"); ok && strings.HasPrefix(perm, prefix) {
			return true
		}
	}
	return false
}
