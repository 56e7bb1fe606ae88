package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/Edelbertschen/taskfuchs-sub003/internal/appstate"
	"github.com/Edelbertschen/taskfuchs-sub003/internal/davsync"
	"github.com/Edelbertschen/taskfuchs-sub003/internal/models"
	"github.com/Edelbertschen/taskfuchs-sub003/internal/output"
)

const defaultDebounce = 2 * time.Second

// newLogFile returns a size-rotated log writer.
func newLogFile(path string) io.WriteCloser {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    5, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}
}

// stateWatcher fires after the state file settles following a change.
type stateWatcher struct {
	w        *fsnotify.Watcher
	path     string
	debounce time.Duration
}

// newStateWatcher watches the directory holding path, since editors and
// atomic writers replace the file instead of modifying it.
func newStateWatcher(path string, debounce time.Duration) (*stateWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}
	return &stateWatcher{w: w, path: filepath.Clean(path), debounce: debounce}, nil
}

func (sw *stateWatcher) relevant(ev fsnotify.Event) bool {
	if filepath.Clean(ev.Name) != sw.path {
		return false
	}
	return ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename)
}

// Run calls fn once per burst of changes until ctx is done.
func (sw *stateWatcher) Run(ctx context.Context, fn func()) error {
	defer sw.w.Close()

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case ev, ok := <-sw.w.Events:
			if !ok {
				return nil
			}
			if !sw.relevant(ev) {
				continue
			}
			slog.Debug("state file changed", "op", ev.Op.String())
			if timer == nil {
				timer = time.NewTimer(sw.debounce)
			} else {
				timer.Reset(sw.debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			fn()
		case err, ok := <-sw.w.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watch state file", "err", err)
		}
	}
}

var webdavWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Sync on every state change and on the auto-sync interval",
	Long: `Runs until interrupted. The state file is synced shortly after it changes.
When auto-sync is on, a cycle also runs every configured interval.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logPath, _ := cmd.Flags().GetString("log-file")
		if logPath == "" {
			logPath = filepath.Join(getBaseDir(), ".taskfuchs", "watch.log")
		}
		logFile := newLogFile(logPath)
		defer logFile.Close()

		level := "info"
		if cmd.Flags().Changed("log-level") {
			level, _ = cmd.Flags().GetString("log-level")
		}
		handler, err := newLogHandler(logFile, level, "json")
		if err != nil {
			return err
		}
		logger := slog.New(handler)
		slog.SetDefault(logger)

		m, database, err := openManager(davsync.WithLogger(logger))
		if err != nil {
			return err
		}
		defer database.Close()

		cfg := m.Config()
		if cfg == nil {
			return errors.New("webdav sync is not configured; run `taskfuchs webdav configure`")
		}

		path := statePath(cmd)
		provider := func() (*models.AppState, error) { return appstate.Load(path) }

		ctx, cancel := commandContext(cmd)
		defer cancel()

		sub := m.OnStatusChange(func(st davsync.Status) {
			logger.Info("sync status", "state", st.State, "error", st.Error)
			if st.State == davsync.StateError {
				output.Warning("sync failed: %s", st.Error)
			}
		})
		defer m.RemoveStatusCallback(sub)

		if cfg.AutoSync {
			interval, _ := cmd.Flags().GetDuration("interval")
			m.StartAutoSync(interval, provider)
			defer m.StopAutoSync()
		}

		debounce, _ := cmd.Flags().GetDuration("debounce")
		sw, err := newStateWatcher(path, debounce)
		if err != nil {
			return err
		}

		output.Info("Watching %s (log: %s). Press Ctrl+C to stop.", path, logPath)
		return sw.Run(ctx, func() {
			state, err := provider()
			if err != nil {
				logger.Warn("load state", "path", path, "err", err)
				return
			}
			res := m.SyncData(ctx, state)
			if res.Success {
				output.Success("%s synced %s", time.Now().Format("15:04:05"), output.FormatStats(res.Stats))
			}
		})
	},
}

func init() {
	webdavCmd.AddCommand(webdavWatchCmd)
	webdavWatchCmd.Flags().String("log-file", "", "rotated log file (default: .taskfuchs/watch.log)")
	webdavWatchCmd.Flags().Duration("interval", 0, "override the configured auto-sync interval")
	webdavWatchCmd.Flags().Duration("debounce", defaultDebounce, "quiet period after a state change before syncing")
}
