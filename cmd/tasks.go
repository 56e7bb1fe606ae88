package cmd

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/sahilm/fuzzy"
	"github.com/spf13/cobra"

	"github.com/Edelbertschen/taskfuchs-sub003/internal/appstate"
	"github.com/Edelbertschen/taskfuchs-sub003/internal/bridge"
	"github.com/Edelbertschen/taskfuchs-sub003/internal/models"
	"github.com/Edelbertschen/taskfuchs-sub003/internal/output"
	"github.com/Edelbertschen/taskfuchs-sub003/internal/recurrence"
	"github.com/Edelbertschen/taskfuchs-sub003/internal/syncconfig"
	"github.com/Edelbertschen/taskfuchs-sub003/internal/taskservice"
)

var errNoToken = errors.New("no task service token; set TF_TASKSERVICE_TOKEN or run `taskfuchs tasks config --token ...`")

var tasksCmd = &cobra.Command{
	Use:     "tasks",
	Short:   "Two-way sync of tagged tasks with the task service",
	GroupID: "tasks",
}

func newTaskServiceClient() (*taskservice.Client, error) {
	token := syncconfig.GetTaskServiceToken()
	if token == "" {
		return nil, errNoToken
	}
	return taskservice.New(syncconfig.GetTaskServiceURL(), token, nil), nil
}

var tasksSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push tagged tasks and import remote changes into the state file",
	Long: `Tasks carrying one of the sync tags are created or updated remotely.
Remote tasks in the configured project are imported or merged back.
Failures of single tasks are reported and do not stop the run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newTaskServiceClient()
		if err != nil {
			return err
		}
		syncer := bridge.New(client, syncconfig.GetSyncTags(), syncconfig.GetTagPrefix(), syncconfig.GetProjectID())

		ctx, cancel := commandContext(cmd)
		defer cancel()

		var res *bridge.Result
		err = appstate.Update(statePath(cmd), func(state *models.AppState) error {
			local := recurrence.Concrete(state.Tasks, nil, time.Now())
			r, err := syncer.SyncTasks(ctx, local, state.ArchivedTasks)
			if err != nil {
				return err
			}
			res = r
			state.Tasks, state.ArchivedTasks = bridge.Apply(state.Tasks, state.ArchivedTasks, r)
			return nil
		})
		if err != nil {
			return err
		}

		if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
			return output.JSON(newBridgeReport(res))
		}
		printBridgeResult(res)
		if len(res.Errors) > 0 {
			return fmt.Errorf("%d task(s) failed to sync", len(res.Errors))
		}
		return nil
	},
}

// bridgeReport is the JSON shape of `tasks sync`.
type bridgeReport struct {
	Created  int      `json:"created"`
	Updated  int      `json:"updated"`
	Imported int      `json:"imported"`
	Merged   int      `json:"merged"`
	Linked   int      `json:"linked"`
	Skipped  bool     `json:"skipped"`
	Errors   []string `json:"errors,omitempty"`
}

func newBridgeReport(res *bridge.Result) bridgeReport {
	r := bridgeReport{
		Created:  res.Created,
		Updated:  res.Updated,
		Imported: len(res.ToAdd),
		Merged:   len(res.ToUpdate),
		Linked:   len(res.ToLink),
		Skipped:  res.Skipped,
	}
	for _, e := range res.Errors {
		r.Errors = append(r.Errors, e.Error())
	}
	return r
}

func printBridgeResult(res *bridge.Result) {
	if res.Skipped {
		output.Warning("a task sync is already running")
		return
	}
	output.Success("Pushed: %d created, %d updated", res.Created, res.Updated)
	output.Info("Pulled: %d new, %d merged, %d linked", len(res.ToAdd), len(res.ToUpdate), len(res.ToLink))
	for _, t := range res.ToAdd {
		output.Info("  + %s", output.FormatTaskShort(t))
	}
	for _, e := range res.Errors {
		output.Error("%v", e)
	}
}

// projectSource adapts projects for fuzzy matching on their names.
type projectSource []taskservice.Project

func (s projectSource) String(i int) string { return s[i].Name }
func (s projectSource) Len() int { return len(s) }

// matchProjects resolves query against project IDs and names. An exact ID or
// case-insensitive name match wins outright; otherwise fuzzy matches are
// returned best first.
func matchProjects(query string, projects []taskservice.Project) []taskservice.Project {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}
	for _, p := range projects {
		if p.ID == query || strings.EqualFold(p.Name, query) {
			return []taskservice.Project{p}
		}
	}

	matches := fuzzy.FindFrom(query, projectSource(projects))
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	out := make([]taskservice.Project, len(matches))
	for i, m := range matches {
		out[i] = projects[m.Index]
	}
	return out
}

// pickProject asks the user to choose among candidates.
func pickProject(candidates []taskservice.Project) (taskservice.Project, error) {
	opts := make([]huh.Option[string], len(candidates))
	for i, p := range candidates {
		opts[i] = huh.NewOption(p.Name, p.ID)
	}
	var id string
	form := huh.NewForm(huh.NewGroup(
		huh.NewSelect[string]().
			Title("Project").
			Options(opts...).
			Value(&id),
	))
	if err := form.Run(); err != nil {
		return taskservice.Project{}, err
	}
	for _, p := range candidates {
		if p.ID == id {
			return p, nil
		}
	}
	return taskservice.Project{}, fmt.Errorf("unknown project %q", id)
}

var tasksConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Set the task service token, project and sync tags",
	Example: `  taskfuchs tasks config --token $TOKEN --project Inbox --tags todoist,errands
  taskfuchs tasks config --show`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := syncconfig.LoadConfig()
		if err != nil {
			return err
		}
		flags := cmd.Flags()

		if show, _ := flags.GetBool("show"); show {
			return showTasksConfig()
		}

		if flags.Changed("token") {
			cfg.TaskService.Token, _ = flags.GetString("token")
		}
		if flags.Changed("url") {
			cfg.TaskService.URL, _ = flags.GetString("url")
		}
		if flags.Changed("tags") {
			tags, _ := flags.GetStringSlice("tags")
			cfg.TaskService.SyncTags = nil
			for _, t := range tags {
				if t = bridge.NormalizeTag(t); t != "" {
					cfg.TaskService.SyncTags = append(cfg.TaskService.SyncTags, t)
				}
			}
		}
		if flags.Changed("prefix") {
			cfg.TaskService.TagPrefix, _ = flags.GetString("prefix")
		}

		if flags.Changed("project") {
			query, _ := flags.GetString("project")
			project, err := resolveProject(cmd, cfg, query)
			if err != nil {
				return err
			}
			cfg.TaskService.ProjectID = project.ID
			output.Info("Project: %s (%s)", project.Name, project.ID)
		}

		if err := syncconfig.SaveConfig(cfg); err != nil {
			return err
		}
		output.Success("Task service settings saved")
		return nil
	},
}

func resolveProject(cmd *cobra.Command, cfg *syncconfig.Config, query string) (taskservice.Project, error) {
	token := cfg.TaskService.Token
	if token == "" {
		token = syncconfig.GetTaskServiceToken()
	}
	if token == "" {
		return taskservice.Project{}, errNoToken
	}
	baseURL := cfg.TaskService.URL
	if baseURL == "" {
		baseURL = syncconfig.GetTaskServiceURL()
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	projects, err := taskservice.New(baseURL, token, nil).ListProjects(ctx)
	if err != nil {
		return taskservice.Project{}, fmt.Errorf("list projects: %w", err)
	}

	candidates := matchProjects(query, projects)
	switch {
	case len(candidates) == 0:
		return taskservice.Project{}, fmt.Errorf("no project matches %q", query)
	case len(candidates) == 1:
		return candidates[0], nil
	case output.IsTerminal():
		return pickProject(candidates)
	}
	names := make([]string, len(candidates))
	for i, p := range candidates {
		names[i] = p.Name
	}
	return taskservice.Project{}, fmt.Errorf("%q is ambiguous: %s", query, strings.Join(names, ", "))
}

func showTasksConfig() error {
	token := "(not set)"
	if t := syncconfig.GetTaskServiceToken(); t != "" {
		token = "(set)"
	}
	project := syncconfig.GetProjectID()
	if project == "" {
		project = "(all)"
	}
	prefix := syncconfig.GetTagPrefix()
	if prefix == "" {
		prefix = "(none)"
	}
	fmt.Printf("url:     %s\n", syncconfig.GetTaskServiceURL())
	fmt.Printf("token:   %s\n", token)
	fmt.Printf("project: %s\n", project)
	fmt.Printf("tags:    %s\n", strings.Join(syncconfig.GetSyncTags(), ", "))
	fmt.Printf("prefix:  %s\n", prefix)
	return nil
}

var tasksStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Compare local tagged tasks with the remote project",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newTaskServiceClient()
		if err != nil {
			return err
		}
		state, err := appstate.Load(statePath(cmd))
		if err != nil {
			return err
		}

		ctx, cancel := commandContext(cmd)
		defer cancel()

		snap, err := client.Snapshot(ctx, syncconfig.GetProjectID())
		if err != nil {
			return err
		}

		tags := syncconfig.GetSyncTags()
		var eligible, linked int
		for _, t := range recurrence.Concrete(state.Tasks, nil, time.Now()) {
			if bridge.Eligible(t, tags) {
				eligible++
				if t.RemoteID != "" {
					linked++
				}
			}
		}

		if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
			return output.JSON(map[string]any{
				"syncTags":       tags,
				"localEligible":  eligible,
				"localLinked":    linked,
				"remoteProjects": len(snap.Projects),
				"remoteLabels":   len(snap.Labels),
				"remoteTasks":    len(snap.Tasks),
			})
		}

		fmt.Print(output.SectionHeader("local"))
		fmt.Printf("  %d tagged task(s), %d linked (tags: %s)\n", eligible, linked, strings.Join(tags, ", "))
		fmt.Print(output.SectionHeader("remote"))
		fmt.Printf("  %d project(s), %d label(s), %d open task(s)\n", len(snap.Projects), len(snap.Labels), len(snap.Tasks))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tasksCmd)
	tasksCmd.AddCommand(tasksSyncCmd, tasksConfigCmd, tasksStatusCmd)

	tasksSyncCmd.Flags().Bool("json", false, "JSON output")
	tasksStatusCmd.Flags().Bool("json", false, "JSON output")

	f := tasksConfigCmd.Flags()
	f.String("token", "", "API token")
	f.String("url", "", "API base URL")
	f.String("project", "", "project name or ID new tasks go to (fuzzy matched)")
	f.StringSlice("tags", nil, "tags that put a task in scope")
	f.String("prefix", "", "prefix added to tags imported from labels")
	f.Bool("show", false, "print the effective settings")
}
