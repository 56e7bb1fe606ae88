package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Edelbertschen/taskfuchs-sub003/internal/davsync"
	"github.com/Edelbertschen/taskfuchs-sub003/internal/db"
	"github.com/Edelbertschen/taskfuchs-sub003/internal/output"
)

// infoView is the JSON shape of `info`.
type infoView struct {
	Version       string        `json:"version"`
	BaseDir       string        `json:"baseDir"`
	SchemaVersion int           `json:"schemaVersion"`
	StoredKeys    []string      `json:"storedKeys"`
	StateFile     string        `json:"stateFile"`
	StateExists   bool          `json:"stateExists"`
	WebDAV        davsync.State `json:"webdav"`
	Configured    bool          `json:"configured"`
}

func collectInfo(database *db.DB, m *davsync.Manager, statePath string) (infoView, error) {
	v := infoView{
		Version:    version,
		BaseDir:    database.BaseDir(),
		StateFile:  statePath,
		WebDAV:     m.Status().State,
		Configured: m.IsConfigured(),
	}
	var err error
	if v.SchemaVersion, err = database.GetSchemaVersion(); err != nil {
		return v, fmt.Errorf("read schema version: %w", err)
	}
	if v.StoredKeys, err = database.Keys(); err != nil {
		return v, fmt.Errorf("list stored keys: %w", err)
	}
	if _, err := os.Stat(statePath); err == nil {
		v.StateExists = true
	}
	return v, nil
}

var infoCmd = &cobra.Command{
	Use:     "info",
	Short:   "Show where sync data lives and what is stored",
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, database, err := openManager()
		if err != nil {
			return err
		}
		defer database.Close()

		jsonOut, _ := cmd.Flags().GetBool("json")
		v, err := collectInfo(database, m, statePath(cmd))
		if err != nil {
			if jsonOut {
				output.JSONError(output.ErrCodeDatabaseError, err.Error())
			}
			return err
		}
		if jsonOut {
			return output.JSON(v)
		}

		state := v.StateFile
		if !v.StateExists {
			state += " (missing)"
		}
		fmt.Printf("version:   %s\n", v.Version)
		fmt.Printf("base dir:  %s\n", v.BaseDir)
		fmt.Printf("schema:    v%d\n", v.SchemaVersion)
		fmt.Printf("state:     %s\n", state)
		fmt.Printf("webdav:    %s", output.FormatState(v.WebDAV))
		if !v.Configured {
			fmt.Print(" (not configured)")
		}
		fmt.Println()
		fmt.Print(output.SectionHeader("stored keys"))
		if len(v.StoredKeys) == 0 {
			fmt.Println("  (none)")
			return nil
		}
		for _, line := range output.BulletList(v.StoredKeys, 2) {
			fmt.Println(line)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
	infoCmd.Flags().Bool("json", false, "JSON output")
}
