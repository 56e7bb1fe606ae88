package davsync

import (
	"context"
	"encoding/json"
	"log/slog"
)

// addLog appends an entry, trims to MaxLogEntries, persists the log, and
// mirrors the entry to the structured logger.
func (m *Manager) addLog(sev Severity, msg string, details any) {
	entry := LogEntry{Timestamp: m.now().UTC(), Severity: sev, Message: msg}
	if details != nil {
		if raw, err := json.Marshal(details); err == nil {
			entry.Details = raw
		}
	}

	level := slog.LevelInfo
	if sev == SeverityError {
		level = slog.LevelWarn
	}
	m.logger.Log(context.Background(), level, msg, "component", "webdav", "details", string(entry.Details))

	m.logMu.Lock()
	m.entries = append(m.entries, entry)
	if len(m.entries) > MaxLogEntries {
		m.entries = append([]LogEntry(nil), m.entries[len(m.entries)-MaxLogEntries:]...)
	}
	data, err := json.Marshal(m.entries)
	m.logMu.Unlock()

	if err != nil {
		return
	}
	if err := m.store.Set(LogKey, string(data)); err != nil {
		m.logger.Warn("persist sync log", "err", err)
	}
}

// SyncLog returns the log entries, oldest first.
func (m *Manager) SyncLog() []LogEntry {
	m.logMu.Lock()
	defer m.logMu.Unlock()
	return append([]LogEntry(nil), m.entries...)
}

// ClearSyncLog removes all log entries.
func (m *Manager) ClearSyncLog() error {
	m.logMu.Lock()
	m.entries = nil
	m.logMu.Unlock()
	return m.store.Delete(LogKey)
}

func (m *Manager) loadLog() []LogEntry {
	raw, ok, err := m.store.Get(LogKey)
	if err != nil || !ok {
		return nil
	}
	var entries []LogEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		m.logger.Warn("decode sync log", "err", err)
		return nil
	}
	if len(entries) > MaxLogEntries {
		entries = entries[len(entries)-MaxLogEntries:]
	}
	return entries
}
