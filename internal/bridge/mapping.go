package bridge

import (
	"strings"
	"time"

	"github.com/Edelbertschen/taskfuchs-sub003/internal/models"
	"github.com/Edelbertschen/taskfuchs-sub003/internal/taskservice"
)

// NormalizeTag lower-cases a tag and strips surrounding space and any leading
// '#' or '@'.
func NormalizeTag(tag string) string {
	return strings.ToLower(strings.TrimLeft(strings.TrimSpace(tag), "#@"))
}

func normalizeTitle(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}

// tagSet builds a lookup set of normalized tags.
func tagSet(tags []string) map[string]bool {
	set := make(map[string]bool, len(tags))
	for _, t := range tags {
		if n := NormalizeTag(t); n != "" {
			set[n] = true
		}
	}
	return set
}

func hasAny(tags []string, set map[string]bool) bool {
	for _, t := range tags {
		if set[NormalizeTag(t)] {
			return true
		}
	}
	return false
}

// Eligible reports whether task is in sync scope for the given sync tags.
// Series templates never are.
func Eligible(task models.Task, syncTags []string) bool {
	return !task.IsSeriesTemplate && hasAny(task.Tags, tagSet(syncTags))
}

// ToRemotePriority maps a local priority onto the remote 1..4 scale.
func ToRemotePriority(p models.Priority) int {
	switch p {
	case models.PriorityLow:
		return 2
	case models.PriorityMedium:
		return 3
	case models.PriorityHigh:
		return 4
	default:
		return 1
	}
}

// FromRemotePriority is the inverse of ToRemotePriority.
func FromRemotePriority(p int) models.Priority {
	switch p {
	case 2:
		return models.PriorityLow
	case 3:
		return models.PriorityMedium
	case 4:
		return models.PriorityHigh
	default:
		return models.PriorityNone
	}
}

// Mapper converts between local tasks and remote items.
type Mapper struct {
	// TagPrefix is stripped from local tags to form labels and re-added on import.
	TagPrefix string
	SyncTags  []string
	ProjectID string
}

// Label converts a local tag to a remote label.
func (m Mapper) Label(tag string) string {
	return strings.TrimLeft(strings.TrimPrefix(strings.TrimSpace(tag), m.TagPrefix), "#@")
}

// Tag converts a remote label to a local tag.
func (m Mapper) Tag(label string) string {
	return m.TagPrefix + label
}

// Labels maps local tags to remote labels, dropping empties and duplicates.
func (m Mapper) Labels(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	labels := make([]string, 0, len(tags))
	for _, t := range tags {
		l := m.Label(t)
		if l == "" || seen[strings.ToLower(l)] {
			continue
		}
		seen[strings.ToLower(l)] = true
		labels = append(labels, l)
	}
	return labels
}

// ToRemote builds the create payload for a local task.
func (m Mapper) ToRemote(t models.Task) taskservice.TaskInput {
	content := t.Title
	desc := t.Description
	prio := ToRemotePriority(t.Priority)
	labels := m.Labels(t.Tags)
	in := taskservice.TaskInput{
		Content:     &content,
		Description: &desc,
		Priority:    &prio,
		Labels:      &labels,
		ProjectID:   m.ProjectID,
	}
	if due := t.EffectiveDueDate(); due != "" {
		in.DueDate = &due
	}
	return in
}

// FromRemote builds a new local task from a remote item. The due date places
// the task in the matching dated column; no separate deadline is set.
func (m Mapper) FromRemote(r taskservice.Task, id string, now time.Time) models.Task {
	synced := now.UTC()
	t := models.Task{
		ID:               id,
		Title:            r.Content,
		Description:      r.Description,
		Completed:        r.IsCompleted,
		Priority:         FromRemotePriority(r.Priority),
		Tags:             m.importTags(nil, r.Labels),
		Subtasks:         []models.Subtask{},
		ColumnID:         models.DefaultColumnID,
		CreatedAt:        synced,
		UpdatedAt:        synced,
		RemoteID:         r.ID,
		RemoteLastSync:   &synced,
		RemoteSyncStatus: models.RemoteSynced,
	}
	if date := remoteDate(r); date != "" {
		t.ColumnID = models.DateColumnID(date)
	}
	if t.Completed {
		t.CompletedAt = synced.Format(time.RFC3339)
	}
	return t
}

// importTags merges remote labels into local tags and makes sure at least
// one sync tag survives the round trip.
func (m Mapper) importTags(local, labels []string) []string {
	tags := append([]string{}, local...)
	have := make(map[string]bool, len(tags))
	for _, t := range tags {
		have[NormalizeTag(t)] = true
	}
	for _, l := range labels {
		tag := m.Tag(l)
		if n := NormalizeTag(tag); n != "" && !have[n] {
			have[n] = true
			tags = append(tags, tag)
		}
	}
	if len(m.SyncTags) > 0 && !hasAny(tags, tagSet(m.SyncTags)) {
		tags = append(tags, m.SyncTags[0])
	}
	return tags
}

func remoteDate(r taskservice.Task) string {
	if r.Due == nil {
		return ""
	}
	return models.CalendarDate(r.Due.Date)
}

// diff returns the update payload needed to bring r in line with t, or nil
// when nothing differs. The title is only compared when matched by ID.
func (m Mapper) diff(t models.Task, r taskservice.Task, byID bool) *taskservice.TaskInput {
	var in taskservice.TaskInput
	changed := false

	if byID && t.Title != r.Content {
		title := t.Title
		in.Content = &title
		changed = true
	}
	if t.Description != r.Description {
		desc := t.Description
		in.Description = &desc
		changed = true
	}
	if p := ToRemotePriority(t.Priority); p != r.Priority {
		in.Priority = &p
		changed = true
	}
	local, remote := t.EffectiveDueDate(), remoteDate(r)
	if local != remote {
		if local == "" {
			noDate := "no date"
			in.DueString = &noDate
		} else {
			in.DueDate = &local
		}
		changed = true
	}

	if !changed {
		return nil
	}
	return &in
}
