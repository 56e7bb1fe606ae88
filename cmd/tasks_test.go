package cmd

import (
	"errors"
	"testing"

	"github.com/Edelbertschen/taskfuchs-sub003/internal/bridge"
	"github.com/Edelbertschen/taskfuchs-sub003/internal/models"
	"github.com/Edelbertschen/taskfuchs-sub003/internal/taskservice"
)

var testProjects = []taskservice.Project{
	{ID: "100", Name: "Inbox"},
	{ID: "200", Name: "Household"},
	{ID: "300", Name: "Home Office"},
}

func TestMatchProjectsExact(t *testing.T) {
	for _, q := range []string{"200", "household", " Household "} {
		got := matchProjects(q, testProjects)
		if len(got) != 1 || got[0].ID != "200" {
			t.Errorf("matchProjects(%q) = %v", q, got)
		}
	}
}

func TestMatchProjectsFuzzy(t *testing.T) {
	got := matchProjects("hoff", testProjects)
	if len(got) == 0 || got[0].ID != "300" {
		t.Errorf("matchProjects(hoff) = %v", got)
	}

	got = matchProjects("ho", testProjects)
	if len(got) < 2 {
		t.Errorf("expected several candidates, got %v", got)
	}

	if got := matchProjects("zzz", testProjects); len(got) != 0 {
		t.Errorf("expected no match, got %v", got)
	}
	if got := matchProjects("", testProjects); got != nil {
		t.Errorf("empty query = %v", got)
	}
}

func TestNewBridgeReport(t *testing.T) {
	res := &bridge.Result{
		Created:  1,
		Updated:  2,
		ToAdd:    []models.Task{{ID: "a"}},
		ToUpdate: []models.Task{{ID: "b"}, {ID: "c"}},
		ToLink:   []bridge.Link{{TaskID: "d", RemoteID: "9"}},
		Errors:   []*bridge.ItemError{{Title: "Buy milk", Op: "create", Err: errors.New("HTTP 500")}},
	}
	r := newBridgeReport(res)
	if r.Created != 1 || r.Updated != 2 || r.Imported != 1 || r.Merged != 2 || r.Linked != 1 {
		t.Errorf("report counts: %+v", r)
	}
	if len(r.Errors) != 1 || r.Errors[0] != `create "Buy milk": HTTP 500` {
		t.Errorf("report errors: %v", r.Errors)
	}
}
