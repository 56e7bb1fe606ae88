package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestColumnDate(t *testing.T) {
	cases := []struct {
		column string
		want   string
	}{
		{"date-2025-03-10", "2025-03-10"},
		{"date-not-a-date", ""},
		{"inbox", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := ColumnDate(tc.column); got != tc.want {
			t.Errorf("ColumnDate(%q): got %q, want %q", tc.column, got, tc.want)
		}
	}
}

func TestEffectiveDueDate(t *testing.T) {
	literal := Task{DueDate: "2025-03-10T09:00:00.000Z", ColumnID: "date-2025-04-01"}
	if got := literal.EffectiveDueDate(); got != "2025-03-10" {
		t.Errorf("literal due date: got %q", got)
	}

	column := Task{ColumnID: "date-2025-04-01"}
	if got := column.EffectiveDueDate(); got != "2025-04-01" {
		t.Errorf("column due date: got %q", got)
	}

	none := Task{ColumnID: "inbox"}
	if got := none.EffectiveDueDate(); got != "" {
		t.Errorf("no due date: got %q", got)
	}
}

func TestNewSyncDocumentCounts(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	state := &AppState{
		Tasks: []Task{{ID: "a"}, {ID: "b"}},
		Notes: []Note{{ID: "n1", DailyNote: true}, {ID: "n2"}},
	}

	doc := NewSyncDocument(state, now)
	if doc.Metadata.TotalTasks != 2 {
		t.Errorf("TotalTasks: got %d, want 2", doc.Metadata.TotalTasks)
	}
	if doc.Metadata.TotalDailyNotes != 1 {
		t.Errorf("TotalDailyNotes: got %d, want 1", doc.Metadata.TotalDailyNotes)
	}
	if doc.ArchivedTasks == nil || doc.Tags == nil {
		t.Error("nil sections should be serialized as empty arrays")
	}
	if doc.Version != DocumentVersion {
		t.Errorf("Version: got %q", doc.Version)
	}
	if doc.Metadata.SyncTime != now.UnixMilli() {
		t.Errorf("SyncTime: got %d", doc.Metadata.SyncTime)
	}
}

func TestTaskKeepsUndeclaredMembers(t *testing.T) {
	in := `{"id":"t1","title":"Call mom","tags":[],"color":"#f00","reminders":[{"id":"r1"}]}`
	var task Task
	if err := json.Unmarshal([]byte(in), &task); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(task.Extra) != 2 {
		t.Fatalf("Extra: got %v", task.Extra)
	}
	if _, ok := task.Extra["title"]; ok {
		t.Error("declared members must not land in Extra")
	}

	task.Title = "Call mum"
	out, err := json.Marshal(task)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(out, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["title"] != "Call mum" || got["color"] != "#f00" {
		t.Errorf("members: %v", got)
	}
	if _, ok := got["reminders"]; !ok {
		t.Error("reminders dropped")
	}
	if strings.Count(string(out), `"title"`) != 1 {
		t.Errorf("title written twice: %s", out)
	}
}

func TestSyncDocumentCarriesStateExtras(t *testing.T) {
	state := &AppState{
		Tasks: []Task{{ID: "a", Extra: map[string]json.RawMessage{"pinColumnId": json.RawMessage(`"p1"`)}}},
		Extra: map[string]json.RawMessage{
			"imageStorage": json.RawMessage(`{"images":[]}`),
			"version":      json.RawMessage(`"stale"`),
		},
	}
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	data, err := json.Marshal(NewSyncDocument(state, now))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if strings.Count(string(data), `"version"`) != 1 {
		t.Errorf("version written twice: %s", data)
	}

	var doc SyncDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if doc.Version != DocumentVersion || !doc.Timestamp.Equal(now) || doc.Metadata.TotalTasks != 1 {
		t.Errorf("envelope: version=%q timestamp=%v metadata=%+v", doc.Version, doc.Timestamp, doc.Metadata)
	}
	if _, ok := doc.Extra["imageStorage"]; !ok || len(doc.Extra) != 1 {
		t.Errorf("state extras: %v", doc.Extra)
	}
	if string(doc.Tasks[0].Extra["pinColumnId"]) != `"p1"` {
		t.Errorf("task extras: %v", doc.Tasks[0].Extra)
	}
}
