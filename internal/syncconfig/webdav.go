package syncconfig

import (
	"fmt"
	"net/url"
	"os"
	"strings"
)

// DefaultFolder is used when no remote folder is configured.
const DefaultFolder = "/TaskFuchs"

// DefaultIntervalMinutes is the auto-sync interval when none is set.
const DefaultIntervalMinutes = 15

// WebDAVConfig describes a remote file store account.
type WebDAVConfig struct {
	ServerURL       string `json:"serverUrl"`
	Username        string `json:"username"`
	Secret          string `json:"password"`
	Folder          string `json:"folder"`
	RootPath        string `json:"rootPath,omitempty"` // overrides the Nextcloud files path
	AutoSync        bool   `json:"autoSync"`
	IntervalMinutes int    `json:"syncInterval"`
	DisableProxy    bool   `json:"disableProxy,omitempty"`
}

// ConfigError reports missing or invalid configuration. It is raised before
// any network access.
type ConfigError struct {
	Fields []string
	Reason string
}

func (e *ConfigError) Error() string {
	if len(e.Fields) > 0 {
		return fmt.Sprintf("invalid configuration: %s (%s)", e.Reason, strings.Join(e.Fields, ", "))
	}
	return "invalid configuration: " + e.Reason
}

// Validate checks required fields. It does not normalize.
func (c *WebDAVConfig) Validate() error {
	var missing []string
	if strings.TrimSpace(c.ServerURL) == "" {
		missing = append(missing, "server url")
	}
	if strings.TrimSpace(c.Username) == "" {
		missing = append(missing, "username")
	}
	if c.Secret == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return &ConfigError{Fields: missing, Reason: "missing required fields"}
	}

	u, err := url.Parse(CleanServerURL(c.ServerURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &ConfigError{Fields: []string{"server url"}, Reason: "server url must be an http(s) URL"}
	}
	if c.AutoSync && c.IntervalMinutes <= 0 {
		return &ConfigError{Fields: []string{"interval"}, Reason: "interval must be positive"}
	}
	return nil
}

// Normalize rewrites ServerURL and Folder into canonical form in place.
func (c *WebDAVConfig) Normalize() {
	c.ServerURL = CleanServerURL(c.ServerURL)
	c.Folder = NormalizeFolder(c.Folder)
	if c.RootPath != "" {
		c.RootPath = collapseSlashes("/" + strings.TrimSpace(c.RootPath))
		c.RootPath = strings.TrimRight(c.RootPath, "/")
	}
	if c.IntervalMinutes <= 0 {
		c.IntervalMinutes = DefaultIntervalMinutes
	}
}

// DAVRoot returns the WebDAV root URL for the account.
func (c *WebDAVConfig) DAVRoot() string {
	base := CleanServerURL(c.ServerURL)
	if c.RootPath != "" {
		return base + c.RootPath
	}
	return base + "/remote.php/dav/files/" + url.PathEscape(c.Username)
}

// FolderURL returns the URL of the sync folder.
func (c *WebDAVConfig) FolderURL() string {
	folder := NormalizeFolder(c.Folder)
	if folder == "/" {
		return c.DAVRoot()
	}
	return c.DAVRoot() + escapePath(folder)
}

// FileURL returns the URL of a file inside the sync folder.
func (c *WebDAVConfig) FileURL(name string) string {
	return c.FolderURL() + "/" + url.PathEscape(name)
}

// CleanServerURL trims whitespace and trailing slashes and collapses
// duplicate slashes in the path, keeping the scheme separator intact.
func CleanServerURL(raw string) string {
	s := strings.TrimSpace(raw)
	scheme := ""
	if i := strings.Index(s, "://"); i >= 0 {
		scheme, s = s[:i+3], s[i+3:]
		s = strings.TrimLeft(s, "/")
	}
	s = collapseSlashes(s)
	s = strings.TrimRight(s, "/")
	return scheme + s
}

// NormalizeFolder returns folder with a single leading slash and no
// duplicate or trailing slashes. An empty folder maps to DefaultFolder.
func NormalizeFolder(folder string) string {
	f := strings.TrimSpace(folder)
	if f == "" {
		return DefaultFolder
	}
	f = collapseSlashes("/" + f)
	if f != "/" {
		f = strings.TrimRight(f, "/")
	}
	return f
}

func collapseSlashes(s string) string {
	for strings.Contains(s, "//") {
		s = strings.ReplaceAll(s, "//", "/")
	}
	return s
}

func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}

// SecretFromEnv returns TF_WEBDAV_SECRET when set.
func SecretFromEnv() string {
	return os.Getenv("TF_WEBDAV_SECRET")
}
