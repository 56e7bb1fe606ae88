package davsync

import (
	"encoding/json"
	"fmt"
	"time"
)

// Severity of a log entry.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
)

// LogEntry is one record in the operation log.
type LogEntry struct {
	Timestamp time.Time       `json:"timestamp"`
	Severity  Severity        `json:"type"`
	Message   string          `json:"message"`
	Details   json.RawMessage `json:"details,omitempty"`
}

// Stats accumulates the outcome of a single sync cycle.
type Stats struct {
	TasksUploaded     int `json:"tasksUploaded"`
	TasksDownloaded   int `json:"tasksDownloaded"`
	NotesUploaded     int `json:"notesUploaded"`
	NotesDownloaded   int `json:"notesDownloaded"`
	ConflictsResolved int `json:"conflictsResolved"`
	Errors            int `json:"errors"`
}

// State is the observer-facing sync state.
type State string

const (
	StateIdle    State = "idle"
	StateSyncing State = "syncing"
	StateError   State = "error"
)

// Status is broadcast to observers on every transition.
type Status struct {
	Connected bool
	IsActive  bool
	LastSync  time.Time
	State     State
	Error     string
}

// Result is returned by SyncData.
type Result struct {
	Success bool
	Stats   Stats
	// Skipped is set when another cycle was already running.
	Skipped bool
	Err     error
}

// SyncError reports a failed upload or download phase.
type SyncError struct {
	Phase string // "upload" or "download"
	File  string
	Err   error
}

func (e *SyncError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("%s %s: %v", e.Phase, e.File, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Phase, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

// Outcome classifies a connection test.
type Outcome string

const (
	OutcomeSuccess          Outcome = "success"
	OutcomeInvalidConfig    Outcome = "invalid_config"
	OutcomeAuthFailed       Outcome = "auth_failed"
	OutcomeNotFound         Outcome = "not_found"
	OutcomeForbidden        Outcome = "forbidden"
	OutcomeMethodNotAllowed Outcome = "method_not_allowed"
	OutcomeHTTPError        Outcome = "http_error"
	OutcomeNetworkError     Outcome = "network_error"
	OutcomeTimeout          Outcome = "timeout"
)

// ConnectionResult is the structured outcome of TestConnection.
type ConnectionResult struct {
	Success    bool    `json:"success"`
	Outcome    Outcome `json:"outcome"`
	Message    string  `json:"message"`
	Hint       string  `json:"hint,omitempty"`
	Endpoint   string  `json:"endpoint,omitempty"`
	StatusCode int     `json:"statusCode,omitempty"`
}

// Err converts a failed result into a *ConnectionError.
func (r ConnectionResult) Err() error {
	if r.Success {
		return nil
	}
	return &ConnectionError{Outcome: r.Outcome, StatusCode: r.StatusCode, Message: r.Message, Hint: r.Hint}
}

// ConnectionError reports a failed connection test.
type ConnectionError struct {
	Outcome    Outcome
	StatusCode int
	Message    string
	Hint       string
}

func (e *ConnectionError) Error() string {
	return e.Message
}

// TestSyncResult is the outcome of TestSync.
type TestSyncResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Size    int    `json:"size,omitempty"`
}
