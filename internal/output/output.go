// Package output provides styled terminal output helpers (success, error,
// warning, sync state and log formatting) using lipgloss.
package output

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/Edelbertschen/taskfuchs-sub003/internal/davsync"
	"github.com/Edelbertschen/taskfuchs-sub003/internal/models"
)

var (
	// Styles
	titleStyle    = lipgloss.NewStyle().Bold(true)
	subtleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	successStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warningStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	priorityStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	stateStyles   = map[davsync.State]lipgloss.Style{
		davsync.StateIdle:    lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		davsync.StateSyncing: lipgloss.NewStyle().Foreground(lipgloss.Color("45")),
		davsync.StateError:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
	severityStyles = map[davsync.Severity]lipgloss.Style{
		davsync.SeverityInfo:    subtleStyle,
		davsync.SeveritySuccess: successStyle,
		davsync.SeverityError:   errorStyle,
	}
)

// Success prints a success message
func Success(format string, args ...interface{}) {
	fmt.Println(successStyle.Render(fmt.Sprintf(format, args...)))
}

// Error prints an error message
func Error(format string, args ...interface{}) {
	fmt.Println(errorStyle.Render("ERROR: " + fmt.Sprintf(format, args...)))
}

// Warning prints a warning message
func Warning(format string, args ...interface{}) {
	fmt.Println(warningStyle.Render("Warning: " + fmt.Sprintf(format, args...)))
}

// Info prints an info message
func Info(format string, args ...interface{}) {
	fmt.Println(fmt.Sprintf(format, args...))
}

// JSON outputs data as JSON
func JSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// Error codes for structured JSON output
const (
	ErrCodeNotConfigured    = "not_configured"
	ErrCodeInvalidConfig    = "invalid_config"
	ErrCodeConnectionFailed = "connection_failed"
	ErrCodeSyncFailed       = "sync_failed"
	ErrCodeStateError       = "state_error"
	ErrCodeDatabaseError    = "database_error"
)

// JSONError outputs an error as JSON
func JSONError(code, message string) {
	JSONErrorWithDetails(code, message, nil)
}

// JSONErrorWithDetails outputs an error as JSON with additional context
func JSONErrorWithDetails(code, message string, details map[string]interface{}) {
	errObj := map[string]interface{}{
		"code":    code,
		"message": message,
	}
	if len(details) > 0 {
		errObj["details"] = details
	}
	data, _ := json.MarshalIndent(map[string]interface{}{"error": errObj}, "", "  ")
	fmt.Println(string(data))
}

// FormatState formats a sync state with color
func FormatState(s davsync.State) string {
	style, ok := stateStyles[s]
	if !ok {
		return string(s)
	}
	return style.Render(fmt.Sprintf("[%s]", s))
}

// FormatPriority formats a task priority
func FormatPriority(p models.Priority) string {
	if p == "" {
		p = models.PriorityNone
	}
	return priorityStyle.Render(fmt.Sprintf("[%s]", p))
}

// FormatLogEntry formats one operation log line
// e.g., "09:30:00 ✓ Uploaded: taskfuchs-data.json"
func FormatLogEntry(e davsync.LogEntry) string {
	symbols := map[davsync.Severity]string{
		davsync.SeverityInfo:    "·",
		davsync.SeveritySuccess: "✓",
		davsync.SeverityError:   "✗",
	}
	symbol, ok := symbols[e.Severity]
	if !ok {
		symbol = "?"
	}
	line := fmt.Sprintf("%s %s %s", e.Timestamp.Local().Format("15:04:05"), symbol, e.Message)
	if style, ok := severityStyles[e.Severity]; ok {
		line = style.Render(line)
	}
	if len(e.Details) > 0 && string(e.Details) != "null" {
		line += "  " + subtleStyle.Render(string(e.Details))
	}
	return line
}

// FormatStats formats sync counters on one line
func FormatStats(s davsync.Stats) string {
	parts := []string{
		fmt.Sprintf("tasks %d↑ %d↓", s.TasksUploaded, s.TasksDownloaded),
		fmt.Sprintf("notes %d↑ %d↓", s.NotesUploaded, s.NotesDownloaded),
	}
	if s.Errors > 0 {
		parts = append(parts, errorStyle.Render(fmt.Sprintf("%d errors", s.Errors)))
	}
	return strings.Join(parts, "  ")
}

// FormatTaskShort formats a task in short format
func FormatTaskShort(t models.Task) string {
	var parts []string
	parts = append(parts, titleStyle.Render(t.ID))
	parts = append(parts, FormatPriority(t.Priority))
	parts = append(parts, t.Title)
	if due := t.EffectiveDueDate(); due != "" {
		parts = append(parts, subtleStyle.Render("due "+due))
	}
	if len(t.Tags) > 0 {
		parts = append(parts, subtleStyle.Render("#"+strings.Join(t.Tags, " #")))
	}
	if t.Completed {
		parts = append(parts, successStyle.Render("✓"))
	}
	return strings.Join(parts, "  ")
}

// FormatTimeAgo formats a time as a human-readable "ago" string
func FormatTimeAgo(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1m ago"
		}
		return fmt.Sprintf("%dm ago", mins)
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "1h ago"
		}
		return fmt.Sprintf("%dh ago", hours)
	case diff < 7*24*time.Hour:
		days := int(diff.Hours() / 24)
		if days == 1 {
			return "1d ago"
		}
		return fmt.Sprintf("%dd ago", days)
	default:
		return t.Format("2006-01-02")
	}
}

// SectionHeader returns a formatted section header for CLI output
// e.g., "\nREMOTE FILES:\n"
func SectionHeader(title string) string {
	return fmt.Sprintf("\n%s:\n", strings.ToUpper(title))
}

// BulletList formats items as a bulleted list with optional indentation
func BulletList(items []string, indent int) []string {
	prefix := strings.Repeat(" ", indent)
	result := make([]string, len(items))
	for i, item := range items {
		result[i] = prefix + "- " + item
	}
	return result
}
