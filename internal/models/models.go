package models

import (
	"encoding/json"
	"strings"
	"time"
)

// Priority represents task priority
type Priority string

const (
	PriorityNone   Priority = "none"
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// RemoteSyncStatus tracks a task's state relative to the external task service
type RemoteSyncStatus string

const (
	RemoteSynced   RemoteSyncStatus = "synced"
	RemotePending  RemoteSyncStatus = "pending"
	RemoteConflict RemoteSyncStatus = "conflict"
	RemoteError    RemoteSyncStatus = "error"
)

// ColumnType distinguishes dated planner columns from project columns
type ColumnType string

const (
	ColumnTypeDate    ColumnType = "date"
	ColumnTypeProject ColumnType = "project"
)

// DefaultColumnID is where tasks without a date land.
const DefaultColumnID = "inbox"

const dateColumnPrefix = "date-"

// Subtask is a checklist item inside a task
type Subtask struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
}

// Task represents a task in the local store
type Task struct {
	ID               string           `json:"id"`
	Title            string           `json:"title"`
	Description      string           `json:"description,omitempty"`
	Completed        bool             `json:"completed"`
	Priority         Priority         `json:"priority,omitempty"`
	EstimatedTime    int              `json:"estimatedTime,omitempty"`
	TrackedTime      int              `json:"trackedTime,omitempty"`
	Tags             []string         `json:"tags"`
	Subtasks         []Subtask        `json:"subtasks"`
	ColumnID         string           `json:"columnId"`
	ProjectID        string           `json:"projectId,omitempty"`
	Deadline         string           `json:"deadline,omitempty"`
	DueDate          string           `json:"dueDate,omitempty"`
	CompletedAt      string           `json:"completedAt,omitempty"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
	Position         int              `json:"position"`
	Archived         bool             `json:"archived,omitempty"`
	RecurrenceRuleID string           `json:"recurrenceRuleId,omitempty"`
	ParentSeriesID   string           `json:"parentSeriesId,omitempty"`
	IsSeriesTemplate bool             `json:"isSeriesTemplate,omitempty"`
	RemoteID         string           `json:"remoteId,omitempty"`
	RemoteLastSync   *time.Time       `json:"remoteLastSync,omitempty"`
	RemoteSyncStatus RemoteSyncStatus `json:"remoteSyncStatus,omitempty"`

	// Extra holds members written by the app that the sync code does not
	// model (reminders, attachments, timer state). They are written back
	// unchanged.
	Extra map[string]json.RawMessage `json:"-"`
}

// Note represents a markdown note
type Note struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Content       string    `json:"content"`
	Tags          []string  `json:"tags"`
	LinkedTasks   []string  `json:"linkedTasks"`
	LinkedNotes   []string  `json:"linkedNotes"`
	Pinned        bool      `json:"pinned"`
	Archived      bool      `json:"archived"`
	DailyNote     bool      `json:"dailyNote,omitempty"`
	DailyNoteDate string    `json:"dailyNoteDate,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Column is a planner column, either a calendar day or a project
type Column struct {
	ID    string     `json:"id"`
	Title string     `json:"title"`
	Type  ColumnType `json:"type"`
	Date  string     `json:"date,omitempty"`
	Order int        `json:"order"`
}

// Tag is a named label with a usage counter
type Tag struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
	Count int    `json:"count"`
}

// KanbanBoard is a saved board layout
type KanbanBoard struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Columns     json.RawMessage `json:"columns,omitempty"`
	IsDefault   bool            `json:"isDefault"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// AppState is the full local state handed to the sync subsystem. Sections the
// sync code never interprets are carried as raw JSON, and top-level members it
// does not declare at all are kept in Extra.
type AppState struct {
	Tasks         []Task          `json:"tasks"`
	ArchivedTasks []Task          `json:"archivedTasks"`
	Columns       []Column        `json:"columns"`
	Tags          []Tag           `json:"tags"`
	KanbanBoards  []KanbanBoard   `json:"kanbanBoards"`
	Notes         []Note          `json:"notes"`
	NoteLinks     json.RawMessage `json:"noteLinks,omitempty"`
	PinColumns    json.RawMessage `json:"pinColumns,omitempty"`
	Preferences   json.RawMessage `json:"preferences,omitempty"`
	ViewState     json.RawMessage `json:"viewState,omitempty"`
	Events        json.RawMessage `json:"events,omitempty"`
	Recurrence    json.RawMessage `json:"recurrence,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// DocumentVersion is written into every uploaded sync document.
const DocumentVersion = "2.1"

// SyncMetadata summarises a SyncDocument
type SyncMetadata struct {
	TotalTasks         int   `json:"totalTasks"`
	TotalArchivedTasks int   `json:"totalArchivedTasks"`
	TotalNotes         int   `json:"totalNotes"`
	TotalDailyNotes    int   `json:"totalDailyNotes"`
	TotalTags          int   `json:"totalTags"`
	TotalBoards        int   `json:"totalBoards"`
	TotalColumns       int   `json:"totalColumns"`
	SyncTime           int64 `json:"syncTime"`
}

// SyncDocument is the full-state backup uploaded to the remote file store
type SyncDocument struct {
	AppState
	Timestamp time.Time    `json:"timestamp"`
	Version   string       `json:"version"`
	Metadata  SyncMetadata `json:"metadata"`
}

// NewSyncDocument wraps state for upload, filling in counts.
func NewSyncDocument(state *AppState, now time.Time) *SyncDocument {
	doc := &SyncDocument{
		AppState:  *state,
		Timestamp: now.UTC(),
		Version:   DocumentVersion,
	}
	if doc.Tasks == nil {
		doc.Tasks = []Task{}
	}
	if doc.ArchivedTasks == nil {
		doc.ArchivedTasks = []Task{}
	}
	if doc.Notes == nil {
		doc.Notes = []Note{}
	}
	if doc.Columns == nil {
		doc.Columns = []Column{}
	}
	if doc.Tags == nil {
		doc.Tags = []Tag{}
	}
	if doc.KanbanBoards == nil {
		doc.KanbanBoards = []KanbanBoard{}
	}

	daily := 0
	for _, n := range doc.Notes {
		if n.DailyNote {
			daily++
		}
	}
	doc.Metadata = SyncMetadata{
		TotalTasks:         len(doc.Tasks),
		TotalArchivedTasks: len(doc.ArchivedTasks),
		TotalNotes:         len(doc.Notes),
		TotalDailyNotes:    daily,
		TotalTags:          len(doc.Tags),
		TotalBoards:        len(doc.KanbanBoards),
		TotalColumns:       len(doc.Columns),
		SyncTime:           now.UnixMilli(),
	}
	return doc
}

// DateColumnID returns the planner column ID for a YYYY-MM-DD date.
func DateColumnID(date string) string {
	return dateColumnPrefix + date
}

// ColumnDate extracts the date from a dated column ID.
// Returns "" when the column is not a dated column.
func ColumnDate(columnID string) string {
	if !strings.HasPrefix(columnID, dateColumnPrefix) {
		return ""
	}
	d := strings.TrimPrefix(columnID, dateColumnPrefix)
	if _, err := time.Parse(time.DateOnly, d); err != nil {
		return ""
	}
	return d
}

// CalendarDate reduces an ISO date or timestamp to its YYYY-MM-DD part.
func CalendarDate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if len(s) >= 10 {
		if _, err := time.Parse(time.DateOnly, s[:10]); err == nil {
			return s[:10]
		}
	}
	return ""
}

// EffectiveDueDate resolves a task's due date: the literal due date first,
// then the date encoded in a dated column, otherwise "".
func (t *Task) EffectiveDueDate() string {
	if d := CalendarDate(t.DueDate); d != "" {
		return d
	}
	return ColumnDate(t.ColumnID)
}
