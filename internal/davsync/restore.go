package davsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Edelbertschen/taskfuchs-sub003/internal/models"
)

// ErrRemoteFileMissing is returned by Restore when the requested document
// does not exist in the remote folder.
var ErrRemoteFileMissing = errors.New("remote file not found")

// Backup is a dated backup document in the remote folder.
type Backup struct {
	Name string    `json:"name"`
	Date time.Time `json:"date"`
}

// parseBackupName returns the date encoded in a backup file name.
func parseBackupName(name string) (time.Time, bool) {
	day, ok := strings.CutPrefix(name, backupPrefix)
	if !ok {
		return time.Time{}, false
	}
	day, ok = strings.CutSuffix(day, ".json")
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.DateOnly, day)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Backups lists the dated backups in the remote folder, newest first.
func (m *Manager) Backups(ctx context.Context) ([]Backup, error) {
	names, err := m.ListRemoteFiles(ctx)
	if err != nil {
		return nil, err
	}
	var out []Backup
	for _, name := range names {
		if d, ok := parseBackupName(name); ok {
			out = append(out, Backup{Name: name, Date: d})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, nil
}

// Restore downloads a sync document and returns the state it holds. An empty
// name selects the canonical document; otherwise name must be a dated backup.
// The document is validated before it is decoded, and members of the state
// this package does not model are kept.
func (m *Manager) Restore(ctx context.Context, name string) (*models.AppState, error) {
	cfg, client := m.current()
	if cfg == nil {
		return nil, errNotConfigured
	}
	if name == "" {
		name = DataFile
	}
	if _, ok := parseBackupName(name); !ok && name != DataFile {
		return nil, fmt.Errorf("%q is not a sync document", name)
	}

	m.addLog(SeverityInfo, "Restoring from "+name, nil)
	data, err := m.downloadData(ctx, client, cfg, name)
	if err != nil {
		return nil, &SyncError{Phase: "download", File: name, Err: err}
	}
	if data == nil {
		return nil, &SyncError{Phase: "download", File: name, Err: ErrRemoteFileMissing}
	}
	if err := validateDocument(data); err != nil {
		m.addLog(SeverityError, "Restore rejected: "+name, map[string]any{"error": err.Error()})
		return nil, err
	}

	var doc models.SyncDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		m.addLog(SeverityError, "Restore rejected: "+name, map[string]any{"error": err.Error()})
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	m.addLog(SeveritySuccess, "Restored from "+name, map[string]any{
		"tasks":     len(doc.Tasks),
		"notes":     len(doc.Notes),
		"timestamp": doc.Timestamp,
	})
	state := doc.AppState
	return &state, nil
}

// PruneBackups deletes all but the keep newest dated backups and returns the
// names it removed. A failed delete is logged and does not stop the rest.
func (m *Manager) PruneBackups(ctx context.Context, keep int) ([]string, error) {
	if keep < 1 {
		return nil, fmt.Errorf("keep must be at least 1, got %d", keep)
	}
	backups, err := m.Backups(ctx)
	if err != nil {
		return nil, err
	}
	if len(backups) <= keep {
		return nil, nil
	}

	cfg, client := m.current()
	if cfg == nil {
		return nil, errNotConfigured
	}
	var removed []string
	for _, b := range backups[keep:] {
		resp, err := client.Delete(ctx, cfg.FileURL(b.Name))
		if err == nil {
			err = resp.Err()
		}
		if err != nil && !isNotFound(err) {
			m.addLog(SeverityError, "Could not delete old backup: "+b.Name, map[string]any{"error": err.Error()})
			continue
		}
		removed = append(removed, b.Name)
	}
	if len(removed) > 0 {
		m.addLog(SeverityInfo, fmt.Sprintf("Removed %d old backup(s)", len(removed)), map[string]any{"files": removed})
	}
	return removed, nil
}
