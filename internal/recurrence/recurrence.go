// Package recurrence merges generated recurring-task instances into the task
// list handed to the sync code. Generation itself is supplied by the caller.
package recurrence

import (
	"time"

	"github.com/Edelbertschen/taskfuchs-sub003/internal/models"
)

// Generator produces concrete instances for series templates.
type Generator interface {
	Instances(templates []models.Task, now time.Time) []models.Task
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(templates []models.Task, now time.Time) []models.Task

func (f GeneratorFunc) Instances(templates []models.Task, now time.Time) []models.Task {
	return f(templates, now)
}

// Concrete returns the non-template tasks followed by generated instances
// whose IDs are not already present. Templates themselves are dropped.
func Concrete(tasks []models.Task, gen Generator, now time.Time) []models.Task {
	out := make([]models.Task, 0, len(tasks))
	var templates []models.Task
	seen := make(map[string]bool, len(tasks))

	for _, t := range tasks {
		if t.IsSeriesTemplate {
			templates = append(templates, t)
			continue
		}
		seen[t.ID] = true
		out = append(out, t)
	}
	if gen == nil || len(templates) == 0 {
		return out
	}

	for _, inst := range gen.Instances(templates, now) {
		if inst.IsSeriesTemplate || seen[inst.ID] {
			continue
		}
		seen[inst.ID] = true
		out = append(out, inst)
	}
	return out
}
