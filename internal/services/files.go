package services

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"evalgo.org/nodelink/internal/daemon"
	"evalgo.org/nodelink/models"
)

// Files calls the server file manager endpoints.
type Files struct {
	c *daemon.Client
}

// RenamePair moves one entry relative to the request root.
type RenamePair struct {
	From string `json:"from" validate:"required"`
	To   string `json:"to" validate:"required"`
}

// ChmodEntry sets the mode of one file.
type ChmodEntry struct {
	File string `json:"file" validate:"required"`
	Mode string `json:"mode" validate:"required,numeric,len=3"`
}

// CompressRequest archives files under Root.
type CompressRequest struct {
	Root      string   `json:"root"`
	Files     []string `json:"files" validate:"min=1,dive,required"`
	Name      string   `json:"name,omitempty"`
	Extension string   `json:"extension" validate:"oneof=zip tar tar.gz tgz tar.bz2 tar.xz"`
}

// PullRequest downloads a remote file into the server directory.
type PullRequest struct {
	URL        string `json:"url" validate:"required,url"`
	Root       string `json:"root"`
	FileName   string `json:"file_name,omitempty"`
	Foreground bool   `json:"foreground"`
	UseHeader  bool   `json:"use_header"`
}

func dirQuery(directory string) url.Values {
	if directory == "" {
		directory = "/"
	}
	return url.Values{"directory": []string{directory}}
}

// List returns the entries of directory.
func (f *Files) List(ctx context.Context, server, directory string) models.CallResult {
	return f.c.Get(ctx, serverPath(server, "files", "list"), dirQuery(directory)).Result()
}

// ListDirectory returns the entries of directory using the legacy endpoint.
func (f *Files) ListDirectory(ctx context.Context, server, directory string) models.CallResult {
	return f.c.Get(ctx, serverPath(server, "files", "list-directory"), dirQuery(directory)).Result()
}

// Contents returns the raw bytes of file. Data holds the content as a string.
func (f *Files) Contents(ctx context.Context, server, file string, download bool) models.CallResult {
	q := url.Values{
		"file":     []string{file},
		"download": []string{strconv.FormatBool(download)},
	}
	return f.c.Raw(ctx, http.MethodGet, serverPath(server, "files", "contents"), nil, daemon.WithQuery(q)).Result()
}

// Write replaces the content of file.
func (f *Files) Write(ctx context.Context, server, file string, content []byte) models.CallResult {
	if file == "" {
		return invalid("file is required")
	}
	if content == nil {
		content = []byte{}
	}
	q := url.Values{"file": []string{file}}
	return f.c.Raw(ctx, http.MethodPost, serverPath(server, "files", "write"), content, daemon.WithQuery(q)).Result()
}

// Rename moves files relative to root.
func (f *Files) Rename(ctx context.Context, server, root string, pairs ...RenamePair) models.CallResult {
	if len(pairs) == 0 {
		return invalid("no files provided")
	}
	for _, p := range pairs {
		if res, ok := check(p); !ok {
			return res
		}
	}
	return f.c.Put(ctx, serverPath(server, "files", "rename"), map[string]any{"root": root, "files": pairs}).Result()
}

// Copy duplicates the file at location.
func (f *Files) Copy(ctx context.Context, server, location string) models.CallResult {
	if location == "" {
		return invalid("location is required")
	}
	return f.c.Post(ctx, serverPath(server, "files", "copy"), map[string]any{"location": location}).Result()
}

// Delete removes files relative to root.
func (f *Files) Delete(ctx context.Context, server, root string, files ...string) models.CallResult {
	files = cleanNames(files)
	if len(files) == 0 {
		return invalid("no valid file names provided")
	}
	return f.c.Post(ctx, serverPath(server, "files", "delete"), map[string]any{"root": root, "files": files}).Result()
}

// CreateDirectory creates name under path.
func (f *Files) CreateDirectory(ctx context.Context, server, name, path string) models.CallResult {
	if name == "" {
		return invalid("name is required")
	}
	return f.c.Post(ctx, serverPath(server, "files", "create-directory"), map[string]any{"name": name, "path": path}).Result()
}

// Compress archives files. Extension defaults to tar.gz.
func (f *Files) Compress(ctx context.Context, server string, req CompressRequest) models.CallResult {
	req.Files = cleanNames(req.Files)
	if req.Extension == "" {
		req.Extension = "tar.gz"
	}
	if res, ok := check(req); !ok {
		return res
	}
	return f.c.Post(ctx, serverPath(server, "files", "compress"), req).Result()
}

// Decompress extracts file in root.
func (f *Files) Decompress(ctx context.Context, server, root, file string) models.CallResult {
	if file == "" {
		return invalid("file is required")
	}
	return f.c.Post(ctx, serverPath(server, "files", "decompress"), map[string]any{"root": root, "file": file}).Result()
}

// Chmod changes file modes relative to root.
func (f *Files) Chmod(ctx context.Context, server, root string, entries ...ChmodEntry) models.CallResult {
	if len(entries) == 0 {
		return invalid("no files provided")
	}
	for _, e := range entries {
		if res, ok := check(e); !ok {
			return res
		}
	}
	return f.c.Post(ctx, serverPath(server, "files", "chmod"), map[string]any{"root": root, "files": entries}).Result()
}

// Pulls lists in-progress remote downloads.
func (f *Files) Pulls(ctx context.Context, server string) models.CallResult {
	return f.c.Get(ctx, serverPath(server, "files", "pull"), nil).Result()
}

// Pull starts a remote download.
func (f *Files) Pull(ctx context.Context, server string, req PullRequest) models.CallResult {
	if res, ok := check(req); !ok {
		return res
	}
	return f.c.Post(ctx, serverPath(server, "files", "pull"), req).Result()
}

// CancelPull stops a remote download.
func (f *Files) CancelPull(ctx context.Context, server, id string) models.CallResult {
	return f.c.Delete(ctx, serverPath(server, "files", "pull", url.PathEscape(id)), nil).Result()
}

// Search finds files matching query below directory.
func (f *Files) Search(ctx context.Context, server, query, directory string) models.CallResult {
	if strings.TrimSpace(query) == "" {
		return invalid("query is required")
	}
	q := dirQuery(directory)
	q.Set("query", query)
	return f.c.Get(ctx, serverPath(server, "files", "search"), q).Result()
}

// Info returns the metadata of file.
func (f *Files) Info(ctx context.Context, server, file string) models.CallResult {
	return f.fileGet(ctx, server, "info", file)
}

// Size returns the size of a file or directory.
func (f *Files) Size(ctx context.Context, server, file string) models.CallResult {
	return f.fileGet(ctx, server, "size", file)
}

// Permissions returns the mode of file.
func (f *Files) Permissions(ctx context.Context, server, file string) models.CallResult {
	return f.fileGet(ctx, server, "permissions", file)
}

func (f *Files) fileGet(ctx context.Context, server, endpoint, file string) models.CallResult {
	if file == "" {
		return invalid("file is required")
	}
	return f.c.Get(ctx, serverPath(server, "files", endpoint), url.Values{"file": []string{file}}).Result()
}

// cleanNames drops blank names and trims whitespace.
func cleanNames(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, n)
		}
	}
	return out
}
