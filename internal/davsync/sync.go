package davsync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/matryer/try"

	"github.com/Edelbertschen/taskfuchs-sub003/internal/models"
	"github.com/Edelbertschen/taskfuchs-sub003/internal/syncconfig"
	"github.com/Edelbertschen/taskfuchs-sub003/internal/webdav"
)

// Retry policy for uploads and downloads.
const (
	maxAttempts = 3
	backoffUnit = time.Second
)

// BackupName returns the dated backup file name for t.
func BackupName(t time.Time) string {
	return backupPrefix + t.Format("2006-01-02") + ".json"
}

// SyncData uploads state as the canonical document plus a dated backup, then
// downloads the canonical document again to verify it. Only one cycle runs
// at a time; a concurrent call returns immediately with Skipped set.
func (m *Manager) SyncData(ctx context.Context, state *models.AppState) (res Result) {
	if !m.syncing.CompareAndSwap(false, true) {
		m.logger.Debug("sync already running, skipping")
		return Result{Skipped: true}
	}
	defer m.syncing.Store(false)

	m.addLog(SeverityInfo, "Starting synchronization", nil)
	m.notify(m.status(StateSyncing, ""))

	defer func() {
		if r := recover(); r != nil {
			res.Success = false
			res.Stats.Errors++
			res.Err = fmt.Errorf("sync panicked: %v", r)
			m.finish(res)
		}
	}()

	cfg, client := m.current()
	if cfg == nil {
		res = Result{Err: errNotConfigured, Stats: Stats{Errors: 1}}
		m.finish(res)
		return res
	}

	res.Err = m.runCycle(ctx, cfg, client, state, &res.Stats)
	res.Success = res.Err == nil
	m.finish(res)
	return res
}

func (m *Manager) runCycle(ctx context.Context, cfg *syncconfig.WebDAVConfig, client *webdav.Client, state *models.AppState, stats *Stats) error {
	if state == nil {
		state = &models.AppState{}
	}
	now := m.now()
	doc := models.NewSyncDocument(state, now)
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		stats.Errors++
		return &SyncError{Phase: "upload", File: DataFile, Err: err}
	}

	m.addLog(SeverityInfo, "Uploading data", map[string]any{"tasks": len(doc.Tasks), "notes": len(doc.Notes), "bytes": len(data)})
	if err := m.uploadData(ctx, client, cfg, DataFile, data); err != nil {
		stats.Errors++
		return &SyncError{Phase: "upload", File: DataFile, Err: err}
	}
	stats.TasksUploaded = len(doc.Tasks)
	stats.NotesUploaded = len(doc.Notes)

	backup := BackupName(now)
	if err := m.uploadData(ctx, client, cfg, backup, data); err != nil {
		m.addLog(SeverityError, "Backup upload failed: "+backup, map[string]any{"error": err.Error()})
	}

	m.addLog(SeverityInfo, "Verifying uploaded data", nil)
	remote, err := m.downloadData(ctx, client, cfg, DataFile)
	if err != nil {
		stats.Errors++
		return &SyncError{Phase: "download", File: DataFile, Err: err}
	}
	if remote == nil {
		stats.Errors++
		return &SyncError{Phase: "download", File: DataFile, Err: errors.New("document missing after upload")}
	}

	tasks, notes, err := countDocument(remote)
	if err != nil {
		stats.Errors++
		return &SyncError{Phase: "download", File: DataFile, Err: err}
	}
	stats.TasksDownloaded = tasks
	stats.NotesDownloaded = notes
	return nil
}

func (m *Manager) finish(res Result) {
	if res.Success {
		ts := m.now().UTC()
		if err := m.store.Set(LastSyncKey, ts.Format(time.RFC3339Nano)); err != nil {
			m.logger.Warn("persist last sync time", "err", err)
		}
		m.addLog(SeveritySuccess, "Synchronization completed", res.Stats)
		m.notify(m.status(StateIdle, ""))
		return
	}

	msg := "unknown error"
	if res.Err != nil {
		msg = res.Err.Error()
	}
	m.addLog(SeverityError, "Synchronization failed", map[string]any{"error": msg, "stats": res.Stats})
	m.notify(m.status(StateError, msg))
}

// uploadData PUTs data to the named file, retrying with linear backoff.
func (m *Manager) uploadData(ctx context.Context, client *webdav.Client, cfg *syncconfig.WebDAVConfig, name string, data []byte) error {
	url := cfg.FileURL(name)
	return try.Do(func(attempt int) (bool, error) {
		resp, err := client.Put(ctx, url, data)
		if err == nil {
			err = resp.Err()
		}
		if err == nil {
			m.addLog(SeveritySuccess, "Uploaded: "+name, map[string]any{"bytes": len(data), "attempt": attempt})
			return false, nil
		}

		m.addLog(SeverityError, fmt.Sprintf("Upload failed: %s (attempt %d/%d)", name, attempt, maxAttempts), map[string]any{"error": err.Error()})
		return m.backoff(ctx, attempt, err)
	})
}

// downloadData GETs the named file. A missing file yields (nil, nil) without
// retrying.
func (m *Manager) downloadData(ctx context.Context, client *webdav.Client, cfg *syncconfig.WebDAVConfig, name string) ([]byte, error) {
	url := cfg.FileURL(name)
	var body []byte
	err := try.Do(func(attempt int) (bool, error) {
		resp, err := client.Get(ctx, url)
		if err == nil {
			err = resp.Err()
		}
		if err == nil {
			body = resp.Body
			m.addLog(SeveritySuccess, "Downloaded: "+name, map[string]any{"bytes": len(body)})
			return false, nil
		}
		if isNotFound(err) {
			m.addLog(SeverityInfo, "Remote file not found: "+name, nil)
			return false, nil
		}

		m.addLog(SeverityError, fmt.Sprintf("Download failed: %s (attempt %d/%d)", name, attempt, maxAttempts), map[string]any{"error": err.Error()})
		return m.backoff(ctx, attempt, err)
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

// backoff decides whether another attempt follows and waits attempt seconds
// before it.
func (m *Manager) backoff(ctx context.Context, attempt int, err error) (bool, error) {
	if attempt >= maxAttempts || ctx.Err() != nil {
		return false, err
	}
	if serr := m.sleep(ctx, time.Duration(attempt)*backoffUnit); serr != nil {
		return false, err
	}
	return true, err
}

// countDocument validates a downloaded document and counts its tasks and notes.
func countDocument(data []byte) (tasks, notes int, err error) {
	if err := validateDocument(data); err != nil {
		return 0, 0, err
	}
	var doc struct {
		Tasks []json.RawMessage `json:"tasks"`
		Notes []json.RawMessage `json:"notes"`
	}
	if err := json.NewDecoder(bytes.NewReader(data)).Decode(&doc); err != nil {
		return 0, 0, fmt.Errorf("decode document: %w", err)
	}
	return len(doc.Tasks), len(doc.Notes), nil
}

// TestSync round-trips a small probe file through the remote folder.
func (m *Manager) TestSync(ctx context.Context) TestSyncResult {
	cfg, client := m.current()
	if cfg == nil {
		return TestSyncResult{Message: errNotConfigured.Error()}
	}

	if res := m.TestConnection(ctx, *cfg); !res.Success {
		return TestSyncResult{Message: res.Message}
	}

	now := m.now()
	name := fmt.Sprintf("test-%d.json", now.UnixMilli())
	probe, _ := json.Marshal(map[string]any{
		"test":      true,
		"timestamp": now.UTC(),
		"message":   "TaskFuchs sync test",
	})

	if err := m.uploadData(ctx, client, cfg, name, probe); err != nil {
		return TestSyncResult{File: name, Message: "Upload failed: " + err.Error()}
	}
	got, err := m.downloadData(ctx, client, cfg, name)
	if err != nil {
		return TestSyncResult{File: name, Message: "Download failed: " + err.Error()}
	}
	if !bytes.Equal(got, probe) {
		return TestSyncResult{File: name, Message: "Downloaded content does not match upload"}
	}

	if resp, err := client.Delete(ctx, cfg.FileURL(name)); err != nil || !resp.OK() {
		m.logger.Debug("remove sync probe", "file", name, "err", err)
	}
	m.addLog(SeveritySuccess, "Sync test passed", map[string]any{"file": name})
	return TestSyncResult{Success: true, File: name, Size: len(probe), Message: "Upload and download verified"}
}
