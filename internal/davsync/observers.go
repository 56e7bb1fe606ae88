package davsync

import (
	"context"
	"fmt"
	"time"

	"github.com/Edelbertschen/taskfuchs-sub003/internal/models"
	"github.com/Edelbertschen/taskfuchs-sub003/internal/syncconfig"
)

// SubscriptionID identifies a registered status observer.
type SubscriptionID int

// StatusFunc receives status transitions.
type StatusFunc func(Status)

type observer struct {
	id SubscriptionID
	fn StatusFunc
}

// OnStatusChange registers fn. Observers are called synchronously, in
// registration order, on every transition.
func (m *Manager) OnStatusChange(fn StatusFunc) SubscriptionID {
	m.obsMu.Lock()
	defer m.obsMu.Unlock()
	m.nextObsID++
	m.observers = append(m.observers, observer{id: m.nextObsID, fn: fn})
	return m.nextObsID
}

// RemoveStatusCallback unregisters an observer. Unknown IDs are ignored.
func (m *Manager) RemoveStatusCallback(id SubscriptionID) {
	m.obsMu.Lock()
	defer m.obsMu.Unlock()
	for i, o := range m.observers {
		if o.id == id {
			m.observers = append(m.observers[:i:i], m.observers[i+1:]...)
			return
		}
	}
}

func (m *Manager) notify(st Status) {
	m.obsMu.Lock()
	obs := append([]observer(nil), m.observers...)
	m.obsMu.Unlock()

	for _, o := range obs {
		m.callObserver(o, st)
	}
}

func (m *Manager) callObserver(o observer, st Status) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("status observer panicked", "id", o.id, "panic", fmt.Sprint(r))
		}
	}()
	o.fn(st)
}

// StateProvider returns the current app state for an auto-sync cycle.
type StateProvider func() (*models.AppState, error)

// StartAutoSync runs SyncData every interval until StopAutoSync is called.
// A running loop is replaced.
func (m *Manager) StartAutoSync(interval time.Duration, provider StateProvider) {
	m.StopAutoSync()
	if interval <= 0 {
		interval = autoSyncInterval(m.Config())
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	m.autoMu.Lock()
	m.autoCancel = cancel
	m.autoDone = done
	m.autoMu.Unlock()

	m.addLog(SeverityInfo, fmt.Sprintf("Auto-sync started with %s interval", interval), nil)

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				state, err := provider()
				if err != nil {
					m.addLog(SeverityError, "Auto-sync could not load state", map[string]any{"error": err.Error()})
					continue
				}
				m.SyncData(ctx, state)
			}
		}
	}()
}

// StopAutoSync stops the auto-sync loop, waiting for an in-flight cycle to
// observe cancellation. It is a no-op when no loop runs.
func (m *Manager) StopAutoSync() {
	m.autoMu.Lock()
	cancel, done := m.autoCancel, m.autoDone
	m.autoCancel, m.autoDone = nil, nil
	m.autoMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	m.addLog(SeverityInfo, "Auto-sync stopped", nil)
}

func autoSyncInterval(cfg *syncconfig.WebDAVConfig) time.Duration {
	if cfg == nil || cfg.IntervalMinutes <= 0 {
		return syncconfig.DefaultIntervalMinutes * time.Minute
	}
	return time.Duration(cfg.IntervalMinutes) * time.Minute
}
