package bridge

import "github.com/Edelbertschen/taskfuchs-sub003/internal/models"

// Apply returns copies of tasks and archived with res applied: links set the
// remote ID and sync bookkeeping, updates replace tasks by ID, additions are
// appended to the active list. The inputs are not modified.
func Apply(tasks, archived []models.Task, res *Result) ([]models.Task, []models.Task) {
	outTasks := append([]models.Task(nil), tasks...)
	outArchived := append([]models.Task(nil), archived...)
	if res == nil {
		return outTasks, outArchived
	}

	type pos struct {
		list *[]models.Task
		i    int
	}
	index := make(map[string]pos, len(outTasks)+len(outArchived))
	for i := range outTasks {
		index[outTasks[i].ID] = pos{&outTasks, i}
	}
	for i := range outArchived {
		index[outArchived[i].ID] = pos{&outArchived, i}
	}

	for _, upd := range res.ToUpdate {
		if p, ok := index[upd.ID]; ok {
			(*p.list)[p.i] = upd
		}
	}
	for _, l := range res.ToLink {
		p, ok := index[l.TaskID]
		if !ok {
			continue
		}
		t := &(*p.list)[p.i]
		synced := l.SyncedAt
		t.RemoteID = l.RemoteID
		t.RemoteLastSync = &synced
		t.RemoteSyncStatus = models.RemoteSynced
	}

	outTasks = append(outTasks, res.ToAdd...)
	return outTasks, outArchived
}
