package davsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Edelbertschen/taskfuchs-sub003/internal/db"
	"github.com/Edelbertschen/taskfuchs-sub003/internal/models"
	"github.com/Edelbertschen/taskfuchs-sub003/internal/syncconfig"
	"github.com/Edelbertschen/taskfuchs-sub003/internal/transport"
	"github.com/Edelbertschen/taskfuchs-sub003/internal/webdav/webdavtest"
)

var _ Store = (*db.DB)(nil)

type memStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string]string)}
}

func (s *memStore) Get(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *memStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func (s *memStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

var fixedNow = time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)

const davRoot = "/remote.php/dav/files/alice"

type harness struct {
	m      *Manager
	srv    *webdavtest.Server
	store  *memStore
	sleeps []time.Duration
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	t.Setenv("TF_WEBDAV_PROXY", "")

	h := &harness{srv: webdavtest.New("alice", "s3cret"), store: newMemStore()}
	t.Cleanup(h.srv.Close)
	h.srv.MakeFolder(davRoot)

	h.m = New(h.store,
		WithTransport(transport.New(transport.WithoutProxies())),
		WithClock(func() time.Time { return fixedNow }),
		WithSleep(func(ctx context.Context, d time.Duration) error {
			h.sleeps = append(h.sleeps, d)
			return nil
		}),
	)
	return h
}

func (h *harness) config() syncconfig.WebDAVConfig {
	return syncconfig.WebDAVConfig{
		ServerURL:    h.srv.URL,
		Username:     "alice",
		Secret:       "s3cret",
		Folder:       "TaskFuchs",
		DisableProxy: true,
	}
}

func (h *harness) configure(t *testing.T) {
	t.Helper()
	if err := h.m.Configure(context.Background(), h.config()); err != nil {
		t.Fatalf("Configure: %v", err)
	}
}

func sampleState() *models.AppState {
	return &models.AppState{
		Tasks: []models.Task{
			{ID: "t1", Title: "Buy milk", ColumnID: "date-2025-03-10"},
			{ID: "t2", Title: "Write report", ColumnID: models.DefaultColumnID},
		},
		Notes: []models.Note{{ID: "n1", Title: "Ideas"}},
	}
}

func TestTestConnectionBadCredentials(t *testing.T) {
	h := newHarness(t)
	cfg := h.config()
	cfg.Secret = "wrong"

	res := h.m.TestConnection(context.Background(), cfg)
	if res.Success {
		t.Fatal("expected failure")
	}
	if res.Outcome != OutcomeAuthFailed || res.StatusCode != http.StatusUnauthorized {
		t.Errorf("outcome: got %s/%d", res.Outcome, res.StatusCode)
	}
	if !strings.Contains(res.Message, "verify your credentials") {
		t.Errorf("message should ask to verify credentials: %q", res.Message)
	}
	if res.Hint == "" {
		t.Error("expected a hint")
	}
	if h.srv.Calls(http.MethodPut) != 0 || h.srv.Calls("MKCOL") != 0 {
		t.Error("no writes expected during a connection test")
	}
}

func TestTestConnectionClassifiesStatuses(t *testing.T) {
	cases := []struct {
		status int
		want   Outcome
	}{
		{http.StatusNotFound, OutcomeNotFound},
		{http.StatusForbidden, OutcomeForbidden},
		{http.StatusMethodNotAllowed, OutcomeMethodNotAllowed},
		{http.StatusBadGateway, OutcomeHTTPError},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprint(tc.status), func(t *testing.T) {
			h := newHarness(t)
			h.srv.AddHook(func(r *http.Request) int { return tc.status })

			res := h.m.TestConnection(context.Background(), h.config())
			if res.Outcome != tc.want {
				t.Errorf("outcome: got %s, want %s", res.Outcome, tc.want)
			}
			if res.Endpoint != h.srv.URL+davRoot {
				t.Errorf("endpoint: got %q", res.Endpoint)
			}
		})
	}
}

func TestTestConnectionInvalidConfigMakesNoRequests(t *testing.T) {
	h := newHarness(t)
	res := h.m.TestConnection(context.Background(), syncconfig.WebDAVConfig{ServerURL: h.srv.URL})
	if res.Outcome != OutcomeInvalidConfig {
		t.Errorf("outcome: got %s", res.Outcome)
	}
	if h.srv.Calls("PROPFIND") != 0 {
		t.Error("invalid config should not reach the server")
	}
}

func TestConfigurePersistsOnlyOnSuccess(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	bad := h.config()
	bad.Secret = "wrong"
	err := h.m.Configure(ctx, bad)
	var connErr *ConnectionError
	if !errors.As(err, &connErr) || connErr.Outcome != OutcomeAuthFailed {
		t.Fatalf("expected auth ConnectionError, got %v", err)
	}
	if _, ok, _ := h.store.Get(ConfigKey); ok {
		t.Error("failed configure must not persist")
	}
	if h.m.IsConfigured() {
		t.Error("failed configure must not activate")
	}

	h.configure(t)
	if !h.m.IsConfigured() {
		t.Fatal("expected configured")
	}
	if h.srv.Calls("MKCOL") != 1 {
		t.Errorf("MKCOL calls: got %d, want 1", h.srv.Calls("MKCOL"))
	}

	raw, ok, _ := h.store.Get(ConfigKey)
	if !ok {
		t.Fatal("config not persisted")
	}
	var saved syncconfig.WebDAVConfig
	if err := json.Unmarshal([]byte(raw), &saved); err != nil {
		t.Fatalf("decode saved config: %v", err)
	}
	if saved.Folder != "/TaskFuchs" {
		t.Errorf("folder should be normalized: got %q", saved.Folder)
	}

	// A fresh manager restores the persisted configuration.
	m2 := New(h.store, WithTransport(transport.New(transport.WithoutProxies())))
	if cfg := m2.Config(); cfg == nil || cfg.Username != "alice" {
		t.Errorf("restored config: %+v", cfg)
	}
}

func TestConfigureFolderFailureDoesNotPersist(t *testing.T) {
	h := newHarness(t)
	h.srv.AddHook(func(r *http.Request) int {
		if r.Method == "MKCOL" {
			return http.StatusInsufficientStorage
		}
		return 0
	})

	if err := h.m.Configure(context.Background(), h.config()); err == nil {
		t.Fatal("expected folder error")
	}
	if _, ok, _ := h.store.Get(ConfigKey); ok {
		t.Error("config persisted despite folder failure")
	}
}

func TestSyncDataUploadsAndVerifies(t *testing.T) {
	h := newHarness(t)
	h.configure(t)

	res := h.m.SyncData(context.Background(), sampleState())
	if !res.Success {
		t.Fatalf("sync failed: %v", res.Err)
	}
	want := Stats{TasksUploaded: 2, NotesUploaded: 1, TasksDownloaded: 2, NotesDownloaded: 1}
	if res.Stats != want {
		t.Errorf("stats: got %+v, want %+v", res.Stats, want)
	}

	data, ok := h.srv.File(davRoot + "/TaskFuchs/" + DataFile)
	if !ok {
		t.Fatal("canonical document missing")
	}
	if _, ok := h.srv.File(davRoot + "/TaskFuchs/taskfuchs-backup-2025-03-10.json"); !ok {
		t.Error("dated backup missing")
	}

	var doc models.SyncDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("decode document: %v", err)
	}
	if doc.Version != models.DocumentVersion || doc.Metadata.TotalTasks != 2 {
		t.Errorf("document: version=%q metadata=%+v", doc.Version, doc.Metadata)
	}

	last, ok := h.m.LastSyncTime()
	if !ok || !last.Equal(fixedNow) {
		t.Errorf("last sync: got %v ok=%v", last, ok)
	}
}

func TestSyncDataIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.configure(t)

	first := h.m.SyncData(context.Background(), sampleState())
	files := h.srv.Files()
	second := h.m.SyncData(context.Background(), sampleState())

	if !first.Success || !second.Success {
		t.Fatalf("syncs: %v / %v", first.Err, second.Err)
	}
	if first.Stats != second.Stats {
		t.Errorf("stats differ: %+v vs %+v", first.Stats, second.Stats)
	}
	if got := h.srv.Files(); len(got) != len(files) {
		t.Errorf("files after second sync: got %v, want %v", got, files)
	}
}

func TestSyncDataSingleFlight(t *testing.T) {
	h := newHarness(t)
	h.configure(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	h.srv.AddHook(func(r *http.Request) int {
		if r.Method == http.MethodPut {
			once.Do(func() { close(entered) })
			<-release
		}
		return 0
	})

	done := make(chan Result)
	go func() { done <- h.m.SyncData(context.Background(), sampleState()) }()

	<-entered
	if !h.m.IsSyncingNow() {
		t.Error("expected sync in flight")
	}
	skipped := h.m.SyncData(context.Background(), sampleState())
	if !skipped.Skipped || skipped.Success {
		t.Errorf("concurrent call: got %+v", skipped)
	}
	close(release)

	if res := <-done; !res.Success {
		t.Errorf("first sync: %v", res.Err)
	}
	if h.m.IsSyncingNow() {
		t.Error("flag should be cleared")
	}
}

func TestUploadRetriesWithBackoff(t *testing.T) {
	h := newHarness(t)
	h.configure(t)

	var puts atomic.Int32
	h.srv.AddHook(func(r *http.Request) int {
		if r.Method == http.MethodPut && puts.Add(1) <= 2 {
			return http.StatusServiceUnavailable
		}
		return 0
	})

	res := h.m.SyncData(context.Background(), sampleState())
	if !res.Success {
		t.Fatalf("sync should succeed on third attempt: %v", res.Err)
	}
	if len(h.sleeps) != 2 || h.sleeps[0] != time.Second || h.sleeps[1] != 2*time.Second {
		t.Errorf("backoff: got %v, want [1s 2s]", h.sleeps)
	}
}

func TestUploadGivesUpAfterThreeAttempts(t *testing.T) {
	h := newHarness(t)
	h.configure(t)
	h.srv.AddHook(func(r *http.Request) int {
		if r.Method == http.MethodPut {
			return http.StatusInternalServerError
		}
		return 0
	})

	res := h.m.SyncData(context.Background(), sampleState())
	if res.Success {
		t.Fatal("expected failure")
	}
	var syncErr *SyncError
	if !errors.As(res.Err, &syncErr) || syncErr.Phase != "upload" {
		t.Errorf("error: got %v", res.Err)
	}
	if h.srv.Calls(http.MethodPut) != 3 {
		t.Errorf("PUT attempts: got %d, want 3", h.srv.Calls(http.MethodPut))
	}
	if res.Stats.Errors != 1 {
		t.Errorf("errors: got %d", res.Stats.Errors)
	}
	if _, ok := h.m.LastSyncTime(); ok {
		t.Error("failed sync must not set last sync time")
	}
}

func TestDownloadMissingFailsCycle(t *testing.T) {
	h := newHarness(t)
	h.configure(t)
	h.srv.AddHook(func(r *http.Request) int {
		if r.Method == http.MethodGet {
			return http.StatusNotFound
		}
		return 0
	})

	var states []State
	h.m.OnStatusChange(func(s Status) { states = append(states, s.State) })

	res := h.m.SyncData(context.Background(), sampleState())
	if res.Success {
		t.Fatal("expected failure")
	}
	var syncErr *SyncError
	if !errors.As(res.Err, &syncErr) || syncErr.Phase != "download" {
		t.Errorf("error: got %v", res.Err)
	}
	if h.srv.Calls(http.MethodGet) != 1 {
		t.Errorf("404 should not be retried: got %d GETs", h.srv.Calls(http.MethodGet))
	}
	if len(states) != 2 || states[0] != StateSyncing || states[1] != StateError {
		t.Errorf("states: got %v", states)
	}
	if st := h.m.Status(); st.State != StateError || st.Error == "" {
		t.Errorf("Status after failure: got %+v", st)
	}
}

func TestSyncDataNotConfigured(t *testing.T) {
	h := newHarness(t)
	res := h.m.SyncData(context.Background(), sampleState())

	var cfgErr *syncconfig.ConfigError
	if res.Success || !errors.As(res.Err, &cfgErr) {
		t.Errorf("expected ConfigError, got %+v", res)
	}
	if h.srv.Calls(http.MethodPut) != 0 {
		t.Error("unconfigured sync must not touch the server")
	}
}

func TestSyncLogIsBounded(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 150; i++ {
		h.m.addLog(SeverityInfo, fmt.Sprintf("entry %d", i), nil)
	}

	entries := h.m.SyncLog()
	if len(entries) != MaxLogEntries {
		t.Fatalf("entries: got %d, want %d", len(entries), MaxLogEntries)
	}
	if entries[len(entries)-1].Message != "entry 149" || entries[0].Message != "entry 50" {
		t.Errorf("window: first=%q last=%q", entries[0].Message, entries[len(entries)-1].Message)
	}

	raw, _, _ := h.store.Get(LogKey)
	var persisted []LogEntry
	if err := json.Unmarshal([]byte(raw), &persisted); err != nil || len(persisted) != MaxLogEntries {
		t.Errorf("persisted log: %d entries, err=%v", len(persisted), err)
	}

	if err := h.m.ClearSyncLog(); err != nil {
		t.Fatalf("ClearSyncLog: %v", err)
	}
	if len(h.m.SyncLog()) != 0 {
		t.Error("log not cleared")
	}
}

func TestObserversOrderAndRemoval(t *testing.T) {
	h := newHarness(t)

	var calls []string
	a := h.m.OnStatusChange(func(Status) { calls = append(calls, "a") })
	h.m.OnStatusChange(func(Status) { panic("boom") })
	h.m.OnStatusChange(func(Status) { calls = append(calls, "c") })

	h.configure(t)
	if strings.Join(calls, ",") != "a,c" {
		t.Errorf("calls: got %v", calls)
	}

	calls = nil
	h.m.RemoveStatusCallback(a)
	if err := h.m.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if strings.Join(calls, ",") != "c" {
		t.Errorf("calls after removal: got %v", calls)
	}
	if h.m.IsConfigured() {
		t.Error("still configured after disconnect")
	}
}

func TestTestSyncAndListRemoteFiles(t *testing.T) {
	h := newHarness(t)
	h.configure(t)

	res := h.m.TestSync(context.Background())
	if !res.Success {
		t.Fatalf("TestSync: %s", res.Message)
	}
	if _, ok := h.srv.File(davRoot + "/TaskFuchs/" + res.File); ok {
		t.Error("probe file should be removed")
	}

	h.m.SyncData(context.Background(), sampleState())
	names, err := h.m.ListRemoteFiles(context.Background())
	if err != nil {
		t.Fatalf("ListRemoteFiles: %v", err)
	}
	if len(names) != 2 {
		t.Errorf("names: got %v", names)
	}
}

func TestAutoSyncRunsAndStops(t *testing.T) {
	h := newHarness(t)
	h.configure(t)

	synced := make(chan struct{}, 1)
	h.m.OnStatusChange(func(s Status) {
		if s.State == StateIdle && !s.LastSync.IsZero() {
			select {
			case synced <- struct{}{}:
			default:
			}
		}
	})

	h.m.StartAutoSync(10*time.Millisecond, func() (*models.AppState, error) { return sampleState(), nil })
	select {
	case <-synced:
	case <-time.After(5 * time.Second):
		t.Fatal("auto-sync did not run")
	}
	h.m.StopAutoSync()
	h.m.StopAutoSync()
}
