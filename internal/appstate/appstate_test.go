package appstate

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Edelbertschen/taskfuchs-sub003/internal/models"
)

func TestLoadMissingFile(t *testing.T) {
	state, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(state.Tasks) != 0 {
		t.Errorf("expected empty state, got %+v", state)
	}
}

func TestSaveLoadKeepsUnknownSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", DefaultFile)
	state := &models.AppState{
		Tasks:       []models.Task{{ID: "t1", Title: "Buy milk", Tags: []string{"sync"}}},
		Preferences: json.RawMessage(`{"theme":"dark"}`),
	}
	if err := Save(path, state); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded.Tasks) != 1 || loaded.Tasks[0].Title != "Buy milk" {
		t.Errorf("tasks: %+v", loaded.Tasks)
	}
	var prefs bytes.Buffer
	if err := json.Compact(&prefs, loaded.Preferences); err != nil {
		t.Fatalf("compact preferences: %v", err)
	}
	if prefs.String() != `{"theme":"dark"}` {
		t.Errorf("preferences: got %s", prefs.String())
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestUpdate(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFile)

	err := Update(path, func(s *models.AppState) error {
		s.Tasks = append(s.Tasks, models.Task{ID: "t1"})
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	boom := errors.New("boom")
	err = Update(path, func(s *models.AppState) error {
		s.Tasks = nil
		return boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("expected fn error, got %v", err)
	}

	state, _ := Load(path)
	if len(state.Tasks) != 1 {
		t.Errorf("failed update must not write: %+v", state.Tasks)
	}
}

func TestUpdateKeepsFieldsItDoesNotModel(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFile)
	raw := `{
  "tasks": [{
    "id": "t1",
    "title": "Call mom",
    "tags": ["sync"],
    "reminders": [{"id": "r1", "date": "2025-03-10T09:00:00Z"}],
    "linkedNotes": ["n1"],
    "pinColumnId": "pin-1",
    "timerState": {"isActive": false, "elapsedTime": 120}
  }],
  "archivedTasks": [],
  "notes": [],
  "imageStorage": {"images": [], "totalSize": 0},
  "activeTimer": null,
  "personalCapacity": {"weekly": 40}
}`
	if err := os.WriteFile(path, []byte(raw), 0644); err != nil {
		t.Fatal(err)
	}

	err := Update(path, func(s *models.AppState) error {
		s.Tasks[0].Title = "Call mum"
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		t.Fatalf("decode: %v", err)
	}
	var tasks []map[string]json.RawMessage
	if err := json.Unmarshal(top["tasks"], &tasks); err != nil || len(tasks) != 1 {
		t.Fatalf("decode tasks: %v (%d)", err, len(tasks))
	}

	for _, key := range []string{"imageStorage", "activeTimer", "personalCapacity"} {
		if _, ok := top[key]; !ok {
			t.Errorf("top-level %q dropped", key)
		}
	}
	if got := compact(t, top["personalCapacity"]); got != `{"weekly":40}` {
		t.Errorf("personalCapacity: got %s", got)
	}

	task := tasks[0]
	for _, key := range []string{"reminders", "linkedNotes", "pinColumnId", "timerState"} {
		if _, ok := task[key]; !ok {
			t.Errorf("task %q dropped", key)
		}
	}
	if got := compact(t, task["pinColumnId"]); got != `"pin-1"` {
		t.Errorf("pinColumnId: got %s", got)
	}
	if got := compact(t, task["title"]); got != `"Call mum"` {
		t.Errorf("title: got %s", got)
	}
}

func compact(t *testing.T, raw json.RawMessage) string {
	t.Helper()
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		t.Fatalf("compact %s: %v", raw, err)
	}
	return buf.String()
}
