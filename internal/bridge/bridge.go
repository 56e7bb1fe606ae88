// Package bridge reconciles tag-scoped local tasks with an external task
// service. It never mutates caller state: every local change is returned as
// an advisory list in Result for the caller to apply.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Edelbertschen/taskfuchs-sub003/internal/models"
	"github.com/Edelbertschen/taskfuchs-sub003/internal/taskservice"
)

// Service is the part of the task service API the bridge needs.
type Service interface {
	ListTasks(ctx context.Context, projectID string) ([]taskservice.Task, error)
	GetTask(ctx context.Context, id string) (*taskservice.Task, error)
	CreateTask(ctx context.Context, in taskservice.TaskInput) (*taskservice.Task, error)
	UpdateTask(ctx context.Context, id string, in taskservice.TaskInput) (*taskservice.Task, error)
	CloseTask(ctx context.Context, id string) error
	ReopenTask(ctx context.Context, id string) error
}

// ItemError is a failure confined to one task.
type ItemError struct {
	TaskID string
	Title  string
	Op     string
	Err    error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Op, e.Title, e.Err)
}

func (e *ItemError) Unwrap() error { return e.Err }

// Link attaches a remote ID to a local task without changing its content.
type Link struct {
	TaskID   string
	RemoteID string
	SyncedAt time.Time
}

// Result describes one bridge cycle.
type Result struct {
	Created  int
	Updated  int
	Errors   []*ItemError
	ToAdd    []models.Task
	ToUpdate []models.Task
	ToLink   []Link
	// Skipped is set when another cycle was already running.
	Skipped bool
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Syncer) { s.now = now }
}

// WithIDFunc overrides the generator for new local task IDs.
func WithIDFunc(fn func() string) Option {
	return func(s *Syncer) { s.newID = fn }
}

// Syncer runs bridge cycles against one service.
type Syncer struct {
	svc    Service
	mapper Mapper
	now    func() time.Time
	newID  func() string

	running atomic.Bool
}

// New creates a Syncer. syncTags select which tasks are in scope.
func New(svc Service, syncTags []string, tagPrefix, projectID string, opts ...Option) *Syncer {
	s := &Syncer{
		svc:    svc,
		mapper: Mapper{TagPrefix: tagPrefix, SyncTags: syncTags, ProjectID: projectID},
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Mapper returns the field mapper in use.
func (s *Syncer) Mapper() Mapper {
	return s.mapper
}

// cycle holds the indices and bookkeeping of a single SyncTasks call.
type cycle struct {
	res    *Result
	now    time.Time
	remote *remoteIndex

	// linked maps remote IDs to the local task IDs they were paired with.
	linked map[string]string
	failed map[string]bool

	// touched holds remote IDs whose completion state this cycle changed.
	touched map[string]bool
}

// SyncTasks pushes eligible local and archived tasks to the service, then
// imports tagged remote items. Per-task failures are collected in
// Result.Errors; the error return is only set when the remote listing fails.
func (s *Syncer) SyncTasks(ctx context.Context, local, archived []models.Task) (*Result, error) {
	if !s.running.CompareAndSwap(false, true) {
		slog.Debug("bridge sync already running, skipping")
		return &Result{Skipped: true}, nil
	}
	defer s.running.Store(false)

	remote, err := s.svc.ListTasks(ctx, s.mapper.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("list remote tasks: %w", err)
	}

	c := &cycle{
		res:     &Result{},
		now:     s.now().UTC(),
		remote:  newRemoteIndex(remote),
		linked:  make(map[string]string),
		failed:  make(map[string]bool),
		touched: make(map[string]bool),
	}

	for _, t := range local {
		if Eligible(t, s.mapper.SyncTags) {
			s.push(ctx, c, t, false)
		}
	}
	for _, t := range archived {
		if Eligible(t, s.mapper.SyncTags) {
			s.push(ctx, c, t, true)
		}
	}

	s.importRemote(c, local, archived)

	slog.Info("bridge sync finished",
		"created", c.res.Created, "updated", c.res.Updated, "errors", len(c.res.Errors),
		"add", len(c.res.ToAdd), "update", len(c.res.ToUpdate), "link", len(c.res.ToLink))
	return c.res, nil
}

func (c *cycle) fail(t models.Task, op string, err error) {
	c.failed[t.ID] = true
	c.res.Errors = append(c.res.Errors, &ItemError{TaskID: t.ID, Title: t.Title, Op: op, Err: err})
	slog.Warn("bridge item failed", "task", t.ID, "title", t.Title, "op", op, "err", err)
}

// push reconciles one local task with its remote counterpart.
func (s *Syncer) push(ctx context.Context, c *cycle, t models.Task, archived bool) {
	r, byID := c.remote.match(t)
	if r != nil && !byID {
		// A title match another local task already claimed stays with it.
		if _, taken := c.linked[r.ID]; taken {
			r = nil
		}
	}

	if r == nil && t.RemoteID != "" {
		if archived {
			// Completed remotely already, or gone; nothing left to propagate.
			c.linked[t.RemoteID] = t.ID
			return
		}
		fetched, err := s.svc.GetTask(ctx, t.RemoteID)
		switch {
		case errors.Is(err, taskservice.ErrNotFound):
			// Deleted remotely: recreate below and relink.
		case err != nil:
			c.fail(t, "fetch", err)
			return
		default:
			c.linked[t.RemoteID] = t.ID
			if fetched.IsCompleted && !t.Completed {
				c.res.ToUpdate = append(c.res.ToUpdate, s.completed(t, c.now))
			}
			return
		}
	}

	if r == nil {
		s.create(ctx, c, t, archived)
		return
	}

	c.linked[r.ID] = t.ID
	updated := false

	if in := s.mapper.diff(t, *r, byID); in != nil {
		if _, err := s.svc.UpdateTask(ctx, r.ID, *in); err != nil {
			c.fail(t, "update", err)
			return
		}
		updated = true
	}

	wantDone := t.Completed || archived
	switch {
	case wantDone && !r.IsCompleted:
		if err := s.svc.CloseTask(ctx, r.ID); err != nil {
			c.fail(t, "close", err)
			return
		}
		r.IsCompleted = true
		c.touched[r.ID] = true
		updated = true
	case !wantDone && r.IsCompleted:
		if err := s.svc.ReopenTask(ctx, r.ID); err != nil {
			c.fail(t, "reopen", err)
			return
		}
		r.IsCompleted = false
		c.touched[r.ID] = true
		updated = true
	}

	if updated {
		c.res.Updated++
	}
	if t.RemoteID != r.ID {
		c.res.ToLink = append(c.res.ToLink, Link{TaskID: t.ID, RemoteID: r.ID, SyncedAt: c.now})
	}
}

func (s *Syncer) create(ctx context.Context, c *cycle, t models.Task, archived bool) {
	created, err := s.svc.CreateTask(ctx, s.mapper.ToRemote(t))
	if err != nil {
		c.fail(t, "create", err)
		return
	}
	c.res.Created++
	c.res.ToLink = append(c.res.ToLink, Link{TaskID: t.ID, RemoteID: created.ID, SyncedAt: c.now})
	c.linked[created.ID] = t.ID

	if t.Completed || archived {
		if err := s.svc.CloseTask(ctx, created.ID); err != nil {
			c.fail(t, "close", err)
		} else {
			created.IsCompleted = true
			c.touched[created.ID] = true
		}
	}
	c.remote.add(*created)
}

func (s *Syncer) completed(t models.Task, now time.Time) models.Task {
	t.Completed = true
	if t.CompletedAt == "" {
		t.CompletedAt = now.Format(time.RFC3339)
	}
	t.UpdatedAt = now
	t.RemoteLastSync = &now
	t.RemoteSyncStatus = models.RemoteSynced
	return t
}

// importRemote turns tagged remote items into local additions or updates.
func (s *Syncer) importRemote(c *cycle, local, archived []models.Task) {
	syncSet := tagSet(s.mapper.SyncTags)
	idx := newLocalIndex(local, archived, s.mapper.SyncTags)
	paired := make(map[string]bool, len(c.linked))
	for _, id := range c.linked {
		paired[id] = true
	}

	for _, r := range c.remote.items {
		labelTags := make([]string, len(r.Labels))
		for i, l := range r.Labels {
			labelTags[i] = s.mapper.Tag(l)
		}
		if !hasAny(labelTags, syncSet) {
			continue
		}

		var match *models.Task
		if id, ok := c.linked[r.ID]; ok {
			if match = idx.byID[id]; match == nil {
				continue
			}
		} else if m := idx.match(r); m != nil {
			if c.failed[m.ID] {
				continue
			}
			// A title match already paired with another remote item is a
			// different task.
			if !paired[m.ID] {
				match = m
			}
		}

		if match == nil {
			c.res.ToAdd = append(c.res.ToAdd, s.mapper.FromRemote(*r, s.newID(), c.now))
			continue
		}
		if c.failed[match.ID] {
			continue
		}

		if upd, ok := s.mergeRemote(*match, *r, !c.touched[r.ID], c.now); ok {
			c.res.ToUpdate = append(c.res.ToUpdate, upd)
		}
	}
}

// mergeRemote applies the fields the bridge owns from r onto t. Local-only
// bookkeeping (ID, creation time, position, tracked time, subtasks) is kept.
// Local edits already pushed this cycle win, so only label additions and
// remote completion flow back.
func (s *Syncer) mergeRemote(t models.Task, r taskservice.Task, takeCompletion bool, now time.Time) (models.Task, bool) {
	changed := false

	tags := s.mapper.importTags(t.Tags, r.Labels)
	if len(tags) != len(t.Tags) {
		t.Tags = tags
		changed = true
	}
	if takeCompletion && r.IsCompleted && !t.Completed {
		t = s.completed(t, now)
		changed = true
	}

	if !changed {
		return t, false
	}
	t.UpdatedAt = now
	t.RemoteID = r.ID
	t.RemoteLastSync = &now
	t.RemoteSyncStatus = models.RemoteSynced
	return t, true
}

// remoteIndex is the two-tier lookup over remote items: ID first, then
// normalized title. Title matches can pair two unrelated tasks that share a
// title; that is accepted until a link exists.
type remoteIndex struct {
	items   []*taskservice.Task
	byID    map[string]*taskservice.Task
	byTitle map[string]*taskservice.Task
}

func newRemoteIndex(tasks []taskservice.Task) *remoteIndex {
	idx := &remoteIndex{
		byID:    make(map[string]*taskservice.Task, len(tasks)),
		byTitle: make(map[string]*taskservice.Task, len(tasks)),
	}
	for _, t := range tasks {
		idx.add(t)
	}
	return idx
}

func (idx *remoteIndex) add(t taskservice.Task) {
	r := &t
	idx.items = append(idx.items, r)
	idx.byID[r.ID] = r
	if key := normalizeTitle(r.Content); key != "" {
		if _, ok := idx.byTitle[key]; !ok {
			idx.byTitle[key] = r
		}
	}
}

// match resolves t's counterpart. A task that already carries a remote ID is
// only ever matched by that ID.
func (idx *remoteIndex) match(t models.Task) (*taskservice.Task, bool) {
	if t.RemoteID != "" {
		return idx.byID[t.RemoteID], true
	}
	return idx.byTitle[normalizeTitle(t.Title)], false
}

// localIndex mirrors remoteIndex over eligible local and archived tasks.
// A linked task whose sync tag was removed locally is not indexed, so its
// still-labelled remote item is imported again as a new local task carrying
// the same remote ID.
type localIndex struct {
	byID       map[string]*models.Task
	byRemoteID map[string]*models.Task
	byTitle    map[string]*models.Task
}

func newLocalIndex(local, archived []models.Task, syncTags []string) *localIndex {
	idx := &localIndex{
		byID:       make(map[string]*models.Task),
		byRemoteID: make(map[string]*models.Task),
		byTitle:    make(map[string]*models.Task),
	}
	for _, list := range [][]models.Task{local, archived} {
		for i := range list {
			t := &list[i]
			if !Eligible(*t, syncTags) {
				continue
			}
			idx.byID[t.ID] = t
			if t.RemoteID != "" {
				idx.byRemoteID[t.RemoteID] = t
			}
			if key := normalizeTitle(t.Title); key != "" {
				if _, ok := idx.byTitle[key]; !ok {
					idx.byTitle[key] = t
				}
			}
		}
	}
	return idx
}

func (idx *localIndex) match(r *taskservice.Task) *models.Task {
	if t, ok := idx.byRemoteID[r.ID]; ok {
		return t
	}
	return idx.byTitle[normalizeTitle(r.Content)]
}
