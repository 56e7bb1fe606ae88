package recurrence

import (
	"testing"
	"time"

	"github.com/Edelbertschen/taskfuchs-sub003/internal/models"
)

func TestConcrete(t *testing.T) {
	now := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	tasks := []models.Task{
		{ID: "t1", Title: "one-off"},
		{ID: "tpl", Title: "Water plants", IsSeriesTemplate: true, RecurrenceRuleID: "weekly"},
		{ID: "tpl-2025-03-10", Title: "Water plants", ParentSeriesID: "tpl"},
	}

	gen := GeneratorFunc(func(templates []models.Task, at time.Time) []models.Task {
		var out []models.Task
		for _, tpl := range templates {
			for _, d := range []string{"2025-03-10", "2025-03-17"} {
				out = append(out, models.Task{
					ID:             tpl.ID + "-" + d,
					Title:          tpl.Title,
					ParentSeriesID: tpl.ID,
					ColumnID:       models.DateColumnID(d),
				})
			}
		}
		return out
	})

	got := Concrete(tasks, gen, now)
	if len(got) != 3 {
		t.Fatalf("got %d tasks, want 3: %+v", len(got), got)
	}
	ids := []string{got[0].ID, got[1].ID, got[2].ID}
	want := []string{"t1", "tpl-2025-03-10", "tpl-2025-03-17"}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids: got %v, want %v", ids, want)
			break
		}
	}
	for _, task := range got {
		if task.IsSeriesTemplate {
			t.Error("templates must not be returned")
		}
	}
}

func TestConcreteNilGenerator(t *testing.T) {
	tasks := []models.Task{{ID: "a"}, {ID: "tpl", IsSeriesTemplate: true}}
	if got := Concrete(tasks, nil, time.Now()); len(got) != 1 || got[0].ID != "a" {
		t.Errorf("got %+v", got)
	}
}
