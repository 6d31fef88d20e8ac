package token

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"evalgo.org/nodelink/models"
)

// ForServer issues a generic token carrying the given permissions.
func (i *Issuer) ForServer(server, user string, permissions []string) (string, error) {
	return i.Issue(Request{Subject: server, Actor: user, Permissions: permissions})
}

// ForPower issues a server control token for one power signal.
func (i *Issuer) ForPower(server, user string, signal models.PowerSignal) (string, error) {
	if !signal.Valid() {
		return "", fmt.Errorf("unknown power signal %q", signal)
	}
	return i.Issue(Request{
		Subject:     server,
		Actor:       user,
		Permissions: []string{signal.Permission()},
		Operation:   OperationServerControl,
		Action:      string(signal),
	})
}

// ForWebsocket issues the token used for the session handshake and its
// in-band refreshes. websocket.connect is always included.
func (i *Issuer) ForWebsocket(server, user string, permissions []string) (string, error) {
	perms := append([]string{models.PermissionWebsocketConnect}, permissions...)
	return i.Issue(Request{
		Subject:     server,
		Actor:       user,
		Permissions: perms,
		Operation:   OperationWebsocket,
	})
}

// backupPermissions maps backup actions to the capability they need.
var backupPermissions = map[string]string{
	"create":   models.PermissionBackupCreate,
	"restore":  models.PermissionBackupRestore,
	"delete":   models.PermissionBackupDelete,
	"download": models.PermissionBackupDownload,
	"read":     models.PermissionBackupRead,
}

// ForBackup issues a token scoped to one backup action.
func (i *Issuer) ForBackup(server, user, backup, action string) (string, error) {
	perm, ok := backupPermissions[action]
	if !ok {
		return "", fmt.Errorf("unknown backup action %q", action)
	}
	return i.Issue(Request{
		Subject:     server,
		Actor:       user,
		Permissions: []string{perm},
		Operation:   OperationBackup,
		Action:      action,
		BackupUUID:  backup,
	})
}

// filePermissions maps file actions to the capability they need.
var filePermissions = map[string]string{
	"list":     models.PermissionFileRead,
	"read":     models.PermissionFileReadContent,
	"download": models.PermissionFileReadContent,
	"write":    models.PermissionFileUpdate,
	"upload":   models.PermissionFileCreate,
	"create":   models.PermissionFileCreate,
	"rename":   models.PermissionFileUpdate,
	"copy":     models.PermissionFileCreate,
	"chmod":    models.PermissionFileUpdate,
	"delete":   models.PermissionFileDelete,
	"compress": models.PermissionFileArchive,
	"extract":  models.PermissionFileArchive,
	"pull":     models.PermissionFileCreate,
}

// ForFile issues a token scoped to one file action on path.
func (i *Issuer) ForFile(server, user, path, action string) (string, error) {
	perm, ok := filePermissions[action]
	if !ok {
		return "", fmt.Errorf("unknown file action %q", action)
	}
	return i.Issue(Request{
		Subject:     server,
		Actor:       user,
		Permissions: []string{perm},
		Operation:   OperationFile,
		Action:      action,
		FilePath:    path,
	})
}

// ForDocker issues a node-wide docker maintenance token.
func (i *Issuer) ForDocker(user, action string) (string, error) {
	return i.Issue(Request{
		Actor:       user,
		Permissions: []string{models.PermissionAdminDocker},
		Operation:   OperationDocker,
		Action:      action,
	})
}

// ForSystem issues a node-wide system token.
func (i *Issuer) ForSystem(user, action string) (string, error) {
	return i.Issue(Request{
		Actor:       user,
		Permissions: []string{models.PermissionAdminSystem},
		Operation:   OperationSystem,
		Action:      action,
	})
}

// ForTransfer issues the token a destination node presents to the source
// node while pulling a server archive.
func (i *Issuer) ForTransfer(server, user string) (string, error) {
	return i.Issue(Request{
		Subject:     server,
		Actor:       user,
		Permissions: []string{models.PermissionAdminTransfer},
		Operation:   OperationTransfer,
	})
}

// BackupDownloadURL returns a signed download link for a backup.
func (i *Issuer) BackupDownloadURL(baseURL, server, user, backup string) (string, error) {
	tok, err := i.ForBackup(server, user, backup, "download")
	if err != nil {
		return "", err
	}
	q := url.Values{}
	q.Set("token", tok)
	q.Set("server", server)
	q.Set("backup", backup)
	return strings.TrimRight(baseURL, "/") + "/download/backup?" + q.Encode(), nil
}

// FileDownloadURL returns a signed download link for a single file.
func (i *Issuer) FileDownloadURL(baseURL, server, user, path string) (string, error) {
	tok, err := i.Issue(Request{
		Subject:     server,
		Actor:       user,
		Permissions: []string{models.PermissionFileReadContent},
		Operation:   OperationFile,
		Action:      "download",
		FilePath:    path,
		Extra:       map[string]any{"unique_id": uuid.NewString()},
	})
	if err != nil {
		return "", err
	}
	q := url.Values{}
	q.Set("token", tok)
	q.Set("server", server)
	return strings.TrimRight(baseURL, "/") + "/download/file?" + q.Encode(), nil
}

// FileUploadURL returns a signed upload endpoint for a directory.
func (i *Issuer) FileUploadURL(baseURL, server, user, directory string) (string, error) {
	tok, err := i.ForFile(server, user, directory, "upload")
	if err != nil {
		return "", err
	}
	q := url.Values{}
	q.Set("token", tok)
	q.Set("server", server)
	q.Set("directory", directory)
	return strings.TrimRight(baseURL, "/") + "/upload/file?" + q.Encode(), nil
}

// WebsocketURL converts an http(s) base URL into the session endpoint of a
// server.
func WebsocketURL(baseURL, server string) string {
	base := strings.TrimRight(baseURL, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/api/servers/" + url.PathEscape(server) + "/ws"
}
