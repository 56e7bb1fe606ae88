package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/Edelbertschen/taskfuchs-sub003/internal/appstate"
	"github.com/Edelbertschen/taskfuchs-sub003/internal/davsync"
	"github.com/Edelbertschen/taskfuchs-sub003/internal/db"
	"github.com/Edelbertschen/taskfuchs-sub003/internal/models"
	"github.com/Edelbertschen/taskfuchs-sub003/internal/output"
	"github.com/Edelbertschen/taskfuchs-sub003/internal/syncconfig"
)

var webdavCmd = &cobra.Command{
	Use:     "webdav",
	Aliases: []string{"dav"},
	Short:   "Back up the app state to a WebDAV folder",
	GroupID: "sync",
}

// openManager opens the sync database and builds a Manager on top of it.
// The caller closes the returned database.
func openManager(opts ...davsync.Option) (*davsync.Manager, *db.DB, error) {
	database, err := db.Open(getBaseDir())
	if err != nil {
		return nil, nil, err
	}
	return davsync.New(database, opts...), database, nil
}

// commandContext cancels on SIGINT/SIGTERM.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

// webdavConfigFromFlags overlays changed flags on the stored configuration.
func webdavConfigFromFlags(cmd *cobra.Command, prev *syncconfig.WebDAVConfig) syncconfig.WebDAVConfig {
	var cfg syncconfig.WebDAVConfig
	if prev != nil {
		cfg = *prev
	}
	flags := cmd.Flags()
	if flags.Changed("url") {
		cfg.ServerURL, _ = flags.GetString("url")
	}
	if flags.Changed("user") {
		cfg.Username, _ = flags.GetString("user")
	}
	if flags.Changed("folder") {
		cfg.Folder, _ = flags.GetString("folder")
	}
	if flags.Changed("root-path") {
		cfg.RootPath, _ = flags.GetString("root-path")
	}
	if flags.Changed("auto-sync") {
		cfg.AutoSync, _ = flags.GetBool("auto-sync")
	}
	if flags.Changed("interval") {
		cfg.IntervalMinutes, _ = flags.GetInt("interval")
	}
	if flags.Changed("no-proxy") {
		cfg.DisableProxy, _ = flags.GetBool("no-proxy")
	}
	if cfg.IntervalMinutes == 0 {
		cfg.IntervalMinutes = syncconfig.DefaultIntervalMinutes
	}
	if s := syncconfig.SecretFromEnv(); s != "" {
		cfg.Secret = s
	}
	return cfg
}

func addWebDAVConfigFlags(c *cobra.Command) {
	f := c.Flags()
	f.String("url", "", "server URL, e.g. https://cloud.example.com")
	f.String("user", "", "account name")
	f.String("folder", syncconfig.DefaultFolder, "remote folder")
	f.String("root-path", "", "WebDAV files path (default: /remote.php/dav/files/<user>)")
	f.Bool("auto-sync", false, "sync periodically while `webdav watch` runs")
	f.Int("interval", syncconfig.DefaultIntervalMinutes, "auto-sync interval in minutes")
	f.Bool("no-proxy", false, "never fall back to passthrough proxies")
}

// promptSecret asks for the app password without echoing it.
func promptSecret(user string) (string, error) {
	var secret string
	form := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Password for " + user).
			Description("Use an app password if two-factor authentication is on").
			EchoMode(huh.EchoModePassword).
			Value(&secret).
			Validate(func(s string) error {
				if strings.TrimSpace(s) == "" {
					return errors.New("password is required")
				}
				return nil
			}),
	))
	if err := form.Run(); err != nil {
		return "", err
	}
	return secret, nil
}

var webdavConfigureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Set the server, account and folder",
	Long: `Tests the connection, creates the folder when missing and only then saves
the settings. Nothing is saved when any step fails.

The password is read from TF_WEBDAV_SECRET or prompted for.`,
	Example: "  taskfuchs webdav configure --url https://cloud.example.com --user alice --folder /TaskFuchs",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, database, err := openManager()
		if err != nil {
			return err
		}
		defer database.Close()

		prev := m.Config()
		cfg := webdavConfigFromFlags(cmd, prev)
		reprompt := prev == nil || cmd.Flags().Changed("user") || cmd.Flags().Changed("url")
		if syncconfig.SecretFromEnv() == "" && reprompt && output.IsTerminal() {
			if cfg.Secret, err = promptSecret(cfg.Username); err != nil {
				return err
			}
		}

		ctx, cancel := commandContext(cmd)
		defer cancel()

		if err := m.Configure(ctx, cfg); err != nil {
			var connErr *davsync.ConnectionError
			if errors.As(err, &connErr) && connErr.Hint != "" {
				output.Warning("%s", connErr.Hint)
			}
			return err
		}

		saved := m.Config()
		output.Success("WebDAV configured: %s (folder %s)", saved.ServerURL, saved.Folder)
		if saved.AutoSync {
			output.Info("Auto-sync every %d minutes while `taskfuchs webdav watch` runs", saved.IntervalMinutes)
		}
		return nil
	},
}

var webdavTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Check that the stored account can reach the server",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, database, err := openManager()
		if err != nil {
			return err
		}
		defer database.Close()

		jsonOut, _ := cmd.Flags().GetBool("json")
		cfg := m.Config()
		if cfg == nil {
			if jsonOut {
				output.JSONError(output.ErrCodeNotConfigured, "webdav sync is not configured")
			}
			return errors.New("webdav sync is not configured; run `taskfuchs webdav configure`")
		}

		ctx, cancel := commandContext(cmd)
		defer cancel()

		res := m.TestConnection(ctx, *cfg)
		if jsonOut {
			if err := output.JSON(res); err != nil {
				return err
			}
			return res.Err()
		}
		if !res.Success {
			output.Error("%s", res.Message)
			if res.Hint != "" {
				output.Info("  %s", res.Hint)
			}
			return res.Err()
		}
		output.Success("%s", res.Message)
		return nil
	},
}

var webdavSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Upload the app state and verify the remote copy",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, database, err := openManager()
		if err != nil {
			return err
		}
		defer database.Close()

		jsonOut, _ := cmd.Flags().GetBool("json")
		state, err := appstate.Load(statePath(cmd))
		if err != nil {
			if jsonOut {
				output.JSONError(output.ErrCodeStateError, err.Error())
			}
			return err
		}

		ctx, cancel := commandContext(cmd)
		defer cancel()

		res := m.SyncData(ctx, state)
		if jsonOut {
			errMsg := ""
			if res.Err != nil {
				errMsg = res.Err.Error()
			}
			if err := output.JSON(map[string]any{
				"success": res.Success,
				"skipped": res.Skipped,
				"stats":   res.Stats,
				"error":   errMsg,
			}); err != nil {
				return err
			}
			return res.Err
		}
		if res.Skipped {
			output.Warning("a sync is already running")
			return nil
		}
		if !res.Success {
			return fmt.Errorf("sync failed: %w", res.Err)
		}
		output.Success("Synced %s", output.FormatStats(res.Stats))
		return nil
	},
}

// statusView is the JSON shape of `webdav status`.
type statusView struct {
	Configured   bool          `json:"configured"`
	Server       string        `json:"server,omitempty"`
	User         string        `json:"user,omitempty"`
	Folder       string        `json:"folder,omitempty"`
	AutoSync     bool          `json:"autoSync"`
	IntervalMins int           `json:"intervalMinutes,omitempty"`
	State        davsync.State `json:"state"`
	LastSync     *time.Time    `json:"lastSync,omitempty"`
	Error        string        `json:"error,omitempty"`
}

func newStatusView(cfg *syncconfig.WebDAVConfig, st davsync.Status) statusView {
	v := statusView{Configured: cfg != nil, State: st.State, Error: st.Error}
	if cfg != nil {
		v.Server, v.User, v.Folder = cfg.ServerURL, cfg.Username, cfg.Folder
		v.AutoSync, v.IntervalMins = cfg.AutoSync, cfg.IntervalMinutes
	}
	if !st.LastSync.IsZero() {
		ts := st.LastSync
		v.LastSync = &ts
	}
	return v
}

// lastEntries returns the newest n entries, oldest first.
func lastEntries(entries []davsync.LogEntry, n int) []davsync.LogEntry {
	if n <= 0 || len(entries) <= n {
		return entries
	}
	return entries[len(entries)-n:]
}

var webdavStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show connection settings and the last sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, database, err := openManager()
		if err != nil {
			return err
		}
		defer database.Close()

		cfg := m.Config()
		st := m.Status()

		if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
			return output.JSON(newStatusView(cfg, st))
		}

		report := output.StatusReport(cfg, st, lastEntries(m.SyncLog(), 5))
		if !output.IsTerminal() {
			fmt.Print(report)
			return nil
		}
		rendered, err := output.RenderMarkdown(report)
		if err != nil {
			fmt.Print(report)
			return nil
		}
		fmt.Println(rendered)
		return nil
	},
}

var webdavLogCmd = &cobra.Command{
	Use:   "log",
	Short: "Show the sync operation log",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, database, err := openManager()
		if err != nil {
			return err
		}
		defer database.Close()

		if clearFlag, _ := cmd.Flags().GetBool("clear"); clearFlag {
			if err := m.ClearSyncLog(); err != nil {
				return err
			}
			fmt.Println("Cleared sync log")
			return nil
		}

		limit, _ := cmd.Flags().GetInt("limit")
		entries := lastEntries(m.SyncLog(), limit)

		if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
			return output.JSON(entries)
		}
		if len(entries) == 0 {
			fmt.Println("No sync activity recorded")
			return nil
		}
		for _, e := range entries {
			fmt.Println(output.FormatLogEntry(e))
		}
		return nil
	},
}

var webdavFilesCmd = &cobra.Command{
	Use:     "files",
	Aliases: []string{"ls"},
	Short:   "List JSON files in the remote folder",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, database, err := openManager()
		if err != nil {
			return err
		}
		defer database.Close()

		ctx, cancel := commandContext(cmd)
		defer cancel()

		names, err := m.ListRemoteFiles(ctx)
		if err != nil {
			return err
		}
		if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
			return output.JSON(names)
		}
		fmt.Print(output.SectionHeader("remote files"))
		if len(names) == 0 {
			fmt.Println("  (none)")
			return nil
		}
		for _, line := range output.BulletList(names, 2) {
			fmt.Println(line)
		}
		return nil
	},
}

// confirmRestore asks before the local state file is replaced.
func confirmRestore(name, path string) (bool, error) {
	ok := false
	err := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(fmt.Sprintf("Replace %s with %s?", path, name)).
			Description("The current local state is overwritten.").
			Value(&ok),
	)).Run()
	return ok, err
}

var webdavRestoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Replace the local state with a remote sync document",
	Long: `Downloads the canonical document, or the dated backup given by --file,
validates it and writes its state to the local state file.`,
	Example: `  taskfuchs webdav restore
  taskfuchs webdav restore --file taskfuchs-backup-2025-03-09.json --yes`,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, database, err := openManager()
		if err != nil {
			return err
		}
		defer database.Close()

		name, _ := cmd.Flags().GetString("file")
		if name == "" {
			name = davsync.DataFile
		}
		path := statePath(cmd)

		if yes, _ := cmd.Flags().GetBool("yes"); !yes {
			if !output.IsTerminal() {
				return errors.New("refusing to overwrite the state file without --yes")
			}
			ok, err := confirmRestore(name, path)
			if err != nil {
				return err
			}
			if !ok {
				output.Info("Restore cancelled")
				return nil
			}
		}

		ctx, cancel := commandContext(cmd)
		defer cancel()

		restored, err := m.Restore(ctx, name)
		if err != nil {
			return err
		}
		err = appstate.Update(path, func(state *models.AppState) error {
			*state = *restored
			return nil
		})
		if err != nil {
			return err
		}
		output.Success("Restored %d task(s) and %d note(s) from %s", len(restored.Tasks), len(restored.Notes), name)
		return nil
	},
}

var webdavBackupsCmd = &cobra.Command{
	Use:   "backups",
	Short: "List dated backups, optionally pruning old ones",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, database, err := openManager()
		if err != nil {
			return err
		}
		defer database.Close()

		ctx, cancel := commandContext(cmd)
		defer cancel()

		if cmd.Flags().Changed("keep") {
			keep, _ := cmd.Flags().GetInt("keep")
			removed, err := m.PruneBackups(ctx, keep)
			if err != nil {
				return err
			}
			for _, name := range removed {
				output.Info("removed %s", name)
			}
		}

		backups, err := m.Backups(ctx)
		if err != nil {
			return err
		}
		if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
			return output.JSON(backups)
		}
		fmt.Print(output.SectionHeader("backups"))
		if len(backups) == 0 {
			fmt.Println("  (none)")
			return nil
		}
		for _, b := range backups {
			fmt.Printf("  %s  %s\n", b.Date.Format(time.DateOnly), b.Name)
		}
		return nil
	},
}

var webdavSelftestCmd = &cobra.Command{
	Use:   "selftest",
	Short: "Round-trip a probe file through the remote folder",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, database, err := openManager()
		if err != nil {
			return err
		}
		defer database.Close()

		ctx, cancel := commandContext(cmd)
		defer cancel()

		res := m.TestSync(ctx)
		if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
			if err := output.JSON(res); err != nil {
				return err
			}
		} else if res.Success {
			output.Success("%s (%s, %d bytes)", res.Message, res.File, res.Size)
		}
		if !res.Success {
			return errors.New(res.Message)
		}
		return nil
	},
}

var webdavDisconnectCmd = &cobra.Command{
	Use:   "disconnect",
	Short: "Forget the stored WebDAV account",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, database, err := openManager()
		if err != nil {
			return err
		}
		defer database.Close()

		if !m.IsConfigured() {
			fmt.Println("WebDAV sync is not configured")
			return nil
		}
		if err := m.Disconnect(); err != nil {
			return err
		}
		output.Success("WebDAV disconnected")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(webdavCmd)
	webdavCmd.AddCommand(
		webdavConfigureCmd,
		webdavTestCmd,
		webdavSyncCmd,
		webdavStatusCmd,
		webdavLogCmd,
		webdavFilesCmd,
		webdavRestoreCmd,
		webdavBackupsCmd,
		webdavSelftestCmd,
		webdavDisconnectCmd,
	)

	addWebDAVConfigFlags(webdavConfigureCmd)

	for _, c := range []*cobra.Command{webdavTestCmd, webdavSyncCmd, webdavStatusCmd, webdavLogCmd, webdavFilesCmd, webdavBackupsCmd, webdavSelftestCmd} {
		c.Flags().Bool("json", false, "JSON output")
	}

	webdavLogCmd.Flags().Bool("clear", false, "clear the log")
	webdavLogCmd.Flags().IntP("limit", "n", 20, "number of entries to show (0 for all)")

	webdavRestoreCmd.Flags().String("file", "", "backup file to restore (default: "+davsync.DataFile+")")
	webdavRestoreCmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation")
	webdavBackupsCmd.Flags().Int("keep", 30, "delete all but this many newest backups")
}
