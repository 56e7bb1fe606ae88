// Package davsync keeps a full-state backup of the app in a WebDAV folder.
// A Manager owns the connection settings, runs upload and verification
// cycles, records an operation log, and notifies observers of state changes.
package davsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Edelbertschen/taskfuchs-sub003/internal/syncconfig"
	"github.com/Edelbertschen/taskfuchs-sub003/internal/transport"
	"github.com/Edelbertschen/taskfuchs-sub003/internal/webdav"
)

// Persistence keys.
const (
	ConfigKey   = "webdav-config"
	LogKey      = "sync-log"
	LastSyncKey = "lastSyncTime"
)

// Remote file names.
const (
	DataFile     = "taskfuchs-data.json"
	backupPrefix = "taskfuchs-backup-"
)

// MaxLogEntries bounds the persisted operation log.
const MaxLogEntries = 100

// Store is the key/value persistence the manager writes to.
type Store interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(key string) error
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Option configures a Manager.
type Option func(*Manager)

// WithTransport sets the transport used for all requests.
func WithTransport(t *transport.Transport) Option {
	return func(m *Manager) { m.transport = t }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithSleep overrides the retry backoff wait.
func WithSleep(fn SleepFunc) Option {
	return func(m *Manager) { m.sleep = fn }
}

// WithLogger sets the structured logger the operation log is mirrored to.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// Manager coordinates WebDAV sync. Safe for concurrent use.
type Manager struct {
	store     Store
	transport *transport.Transport
	now       func() time.Time
	sleep     SleepFunc
	logger    *slog.Logger

	mu  sync.Mutex
	cfg *syncconfig.WebDAVConfig

	logMu   sync.Mutex
	entries []LogEntry

	syncing atomic.Bool

	obsMu     sync.Mutex
	observers []observer
	nextObsID SubscriptionID

	autoMu     sync.Mutex
	autoCancel context.CancelFunc
	autoDone   chan struct{}
}

// New creates a Manager and restores any persisted configuration and log.
func New(store Store, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		now:    time.Now,
		sleep:  sleepCtx,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.transport == nil {
		m.transport = transport.New()
	}

	m.entries = m.loadLog()

	cfg, err := m.loadConfig()
	if err != nil {
		m.logger.Warn("load webdav config", "err", err)
	}
	m.cfg = cfg
	m.transport.SetUseProxies(syncconfig.ProxyFallbackEnabled(cfg))
	return m
}

func (m *Manager) loadConfig() (*syncconfig.WebDAVConfig, error) {
	raw, ok, err := m.store.Get(ConfigKey)
	if err != nil || !ok {
		return nil, err
	}
	var cfg syncconfig.WebDAVConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", ConfigKey, err)
	}
	if cfg.Validate() != nil {
		return nil, nil
	}
	cfg.Normalize()
	return &cfg, nil
}

// Config returns a copy of the active configuration, or nil.
func (m *Manager) Config() *syncconfig.WebDAVConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cfg == nil {
		return nil
	}
	c := *m.cfg
	return &c
}

// IsConfigured reports whether a configuration is active.
func (m *Manager) IsConfigured() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg != nil
}

// IsSyncingNow reports whether a cycle is in flight.
func (m *Manager) IsSyncingNow() bool {
	return m.syncing.Load()
}

// LastSyncTime returns the time of the last fully successful cycle.
func (m *Manager) LastSyncTime() (time.Time, bool) {
	raw, ok, err := m.store.Get(LastSyncKey)
	if err != nil || !ok {
		return time.Time{}, false
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

// Transport returns the transport shared by all requests.
func (m *Manager) Transport() *transport.Transport {
	return m.transport
}

func (m *Manager) current() (*syncconfig.WebDAVConfig, *webdav.Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cfg == nil {
		return nil, nil
	}
	c := *m.cfg
	return &c, webdav.New(m.transport, c.Username, c.Secret)
}

// Configure validates cfg, tests the connection, makes sure the remote folder
// exists, and only then persists it. On any failure nothing is stored and the
// previous configuration stays active.
func (m *Manager) Configure(ctx context.Context, cfg syncconfig.WebDAVConfig) error {
	if err := cfg.Validate(); err != nil {
		m.addLog(SeverityError, "Configuration invalid", map[string]any{"error": err.Error()})
		return err
	}
	cfg.Normalize()
	m.transport.SetUseProxies(syncconfig.ProxyFallbackEnabled(&cfg))

	res := m.TestConnection(ctx, cfg)
	if !res.Success {
		m.restoreProxySetting()
		return res.Err()
	}

	client := webdav.New(m.transport, cfg.Username, cfg.Secret)
	created, err := client.EnsureFolder(ctx, cfg.FolderURL())
	if err != nil {
		m.addLog(SeverityError, "Could not prepare remote folder", map[string]any{"folder": cfg.Folder, "error": err.Error()})
		m.restoreProxySetting()
		return fmt.Errorf("ensure folder %s: %w", cfg.Folder, err)
	}
	if created {
		m.addLog(SeveritySuccess, "Folder created: "+cfg.Folder, nil)
	}

	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := m.store.Set(ConfigKey, string(data)); err != nil {
		m.restoreProxySetting()
		return fmt.Errorf("save config: %w", err)
	}

	m.mu.Lock()
	m.cfg = &cfg
	m.mu.Unlock()

	m.addLog(SeveritySuccess, "WebDAV configured", map[string]any{"server": cfg.ServerURL, "folder": cfg.Folder})
	m.notify(m.status(StateIdle, ""))
	return nil
}

func (m *Manager) restoreProxySetting() {
	m.transport.SetUseProxies(syncconfig.ProxyFallbackEnabled(m.Config()))
}

// Disconnect stops auto-sync and forgets the configuration.
func (m *Manager) Disconnect() error {
	m.StopAutoSync()

	m.mu.Lock()
	m.cfg = nil
	m.mu.Unlock()

	if err := m.store.Delete(ConfigKey); err != nil {
		return fmt.Errorf("delete config: %w", err)
	}
	m.addLog(SeverityInfo, "WebDAV disconnected", nil)
	m.notify(m.status(StateIdle, ""))
	return nil
}

// ListRemoteFiles returns the JSON files in the remote folder.
func (m *Manager) ListRemoteFiles(ctx context.Context) ([]string, error) {
	cfg, client := m.current()
	if cfg == nil {
		return nil, errNotConfigured
	}
	names, err := client.List(ctx, cfg.FolderURL())
	if err != nil {
		m.addLog(SeverityError, "Listing remote files failed", map[string]any{"error": err.Error()})
		return nil, err
	}
	return names, nil
}

var errNotConfigured = &syncconfig.ConfigError{Reason: "webdav sync is not configured"}

func (m *Manager) status(state State, errMsg string) Status {
	st := Status{
		Connected: m.IsConfigured(),
		IsActive:  state == StateSyncing,
		State:     state,
		Error:     errMsg,
	}
	if ts, ok := m.LastSyncTime(); ok {
		st.LastSync = ts
	}
	return st
}

// Status reports the current state. Outside a cycle the state is derived from
// the newest log entry, so a failed last cycle reads as StateError.
func (m *Manager) Status() Status {
	if m.IsSyncingNow() {
		return m.status(StateSyncing, "")
	}
	log := m.SyncLog()
	if n := len(log); n > 0 && log[n-1].Severity == SeverityError {
		return m.status(StateError, log[n-1].Message)
	}
	return m.status(StateIdle, "")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// isNotFound reports whether err is a 404 from the remote.
func isNotFound(err error) bool {
	return errors.Is(err, transport.ErrNotFound)
}
