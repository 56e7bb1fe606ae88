package syncconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// TaskServiceConfig holds settings for the external task service bridge.
type TaskServiceConfig struct {
	URL       string   `json:"url,omitempty"`
	Token     string   `json:"token,omitempty"`
	ProjectID string   `json:"project_id,omitempty"`
	SyncTags  []string `json:"sync_tags,omitempty"`
	TagPrefix string   `json:"tag_prefix,omitempty"`
}

// Config is the global config stored at ~/.config/taskfuchs/config.json.
type Config struct {
	TaskService TaskServiceConfig `json:"task_service"`
}

const (
	defaultTaskServiceURL = "https://api.todoist.com/rest/v2"
	configFileName        = "config.json"
)

// DefaultSyncTags is used when no sync tags are configured.
var DefaultSyncTags = []string{"todoist"}

// ConfigDir returns ~/.config/taskfuchs, creating it if necessary.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	dir := filepath.Join(home, ".config", "taskfuchs")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}
	return dir, nil
}

// LoadConfig reads the global config. A missing file yields an empty config.
func LoadConfig() (*Config, error) {
	dir, err := ConfigDir()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, configFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", configFileName, err)
	}
	return &cfg, nil
}

// SaveConfig writes the global config (0600, it holds the API token).
func SaveConfig(cfg *Config) error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, configFileName), data, 0600)
}

// GetTaskServiceURL returns the task service API base URL.
// Priority: TF_TASKSERVICE_URL env > config.json > default.
func GetTaskServiceURL() string {
	if v := os.Getenv("TF_TASKSERVICE_URL"); v != "" {
		return strings.TrimRight(v, "/")
	}
	cfg, err := LoadConfig()
	if err == nil && cfg.TaskService.URL != "" {
		return strings.TrimRight(cfg.TaskService.URL, "/")
	}
	return defaultTaskServiceURL
}

// GetTaskServiceToken returns the Bearer token for the task service.
// Priority: TF_TASKSERVICE_TOKEN env > config.json.
func GetTaskServiceToken() string {
	if v := os.Getenv("TF_TASKSERVICE_TOKEN"); v != "" {
		return v
	}
	cfg, err := LoadConfig()
	if err == nil {
		return cfg.TaskService.Token
	}
	return ""
}

// GetSyncTags returns the tags that put a task in scope for task service sync.
// Priority: TF_SYNC_TAGS env (comma separated) > config.json > DefaultSyncTags.
func GetSyncTags() []string {
	if v := os.Getenv("TF_SYNC_TAGS"); v != "" {
		if tags := splitList(v); len(tags) > 0 {
			return tags
		}
	}
	cfg, err := LoadConfig()
	if err == nil && len(cfg.TaskService.SyncTags) > 0 {
		return cfg.TaskService.SyncTags
	}
	return append([]string(nil), DefaultSyncTags...)
}

// GetProjectID returns the task service project new remote tasks are created in.
func GetProjectID() string {
	if v := os.Getenv("TF_TASKSERVICE_PROJECT"); v != "" {
		return v
	}
	cfg, err := LoadConfig()
	if err == nil {
		return cfg.TaskService.ProjectID
	}
	return ""
}

// GetTagPrefix returns the prefix re-added to tags imported from remote labels.
func GetTagPrefix() string {
	cfg, err := LoadConfig()
	if err == nil {
		return cfg.TaskService.TagPrefix
	}
	return ""
}

// parseBoolEnv returns nil if env not set, pointer to bool if set.
func parseBoolEnv(envKey string) *bool {
	v := os.Getenv(envKey)
	if v == "" {
		return nil
	}
	v = strings.ToLower(v)
	if v == "1" || v == "true" {
		b := true
		return &b
	}
	if v == "0" || v == "false" {
		b := false
		return &b
	}
	return nil
}

// ProxyFallbackEnabled reports whether WebDAV requests may fall back to
// public passthrough proxies.
// Priority: TF_WEBDAV_PROXY env > config (DisableProxy) > enabled.
func ProxyFallbackEnabled(cfg *WebDAVConfig) bool {
	if v := parseBoolEnv("TF_WEBDAV_PROXY"); v != nil {
		return *v
	}
	if cfg != nil {
		return !cfg.DisableProxy
	}
	return true
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
