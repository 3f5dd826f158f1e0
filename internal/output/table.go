// Package output provides terminal output utilities for winemgr.
//
// This package includes:
//   - Table rendering for releases, installed runtimes, prefixes, apps and history
//   - A byte progress bar for downloads and a spinner for unknown sizes
//   - JSON and YAML encoders for machine-readable listings
//
// Tables use plain ASCII columns; color is only emitted on a terminal and
// never when NO_COLOR is set.
package output

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"github.com/zelotez/winemgr/internal/catalog"
	"github.com/zelotez/winemgr/internal/discovery"
	"github.com/zelotez/winemgr/internal/installs"
	"github.com/zelotez/winemgr/internal/scanner"
	"github.com/zelotez/winemgr/internal/store"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
	colorGray   = "\033[90m"
)

// IsColorEnabled returns true if ANSI color codes should be emitted.
// It checks that os.Stdout is a TTY and that the NO_COLOR env var is not set.
func IsColorEnabled() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(os.Stdout.Fd())
}

// colorize wraps text in the given ANSI color code if color is enabled,
// otherwise returns the plain text.
func colorize(color, text string) string {
	if IsColorEnabled() {
		return color + text + colorReset
	}
	return text
}

func rule(sb *strings.Builder, width int) {
	sb.WriteString(strings.Repeat("─", width))
	sb.WriteString("\n")
}

// RenderReleaseTable renders remote releases, marking installed tags.
// Releases keep the catalog's order (newest first).
func RenderReleaseTable(releases []catalog.Release, installed map[string]bool) string {
	if len(releases) == 0 {
		return "No releases found.\n"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%-24s %-14s %-10s %s\n", "Tag", "Published", "Size", "Status"))
	rule(&sb, 62)

	for _, r := range releases {
		status := "available"
		if installed[r.Tag] {
			status = colorize(colorGreen, "installed")
		}
		sb.WriteString(fmt.Sprintf("%-24s %-14s %-10s %s\n",
			truncate(r.Tag, 24),
			formatDate(r.PublishedAt),
			formatSize(r.Size),
			status))
	}
	return sb.String()
}

// RenderInstalledTable renders installed runtimes; defaultTag is starred.
func RenderInstalledTable(versions []installs.Version, defaultTag string) string {
	if len(versions) == 0 {
		return "No Proton versions installed.\n"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("  %-24s %-10s %s\n", "Tag", "Size", "Installed"))
	rule(&sb, 52)

	for _, v := range versions {
		mark := " "
		if v.Tag == defaultTag {
			mark = "*"
		}
		sb.WriteString(fmt.Sprintf("%s %-24s %-10s %s\n",
			mark,
			truncate(v.Tag, 24),
			formatSize(v.SizeBytes),
			formatRelativeTime(v.ModTime)))
	}
	return sb.String()
}

// RenderPrefixTable renders discovered prefixes.
func RenderPrefixTable(prefixes []discovery.Prefix) string {
	if len(prefixes) == 0 {
		return "No Wine prefixes found.\n"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%-20s %-18s %-9s %s\n", "Name", "Runtime", "Favorites", "Path"))
	rule(&sb, 80)

	for _, p := range prefixes {
		runtime := p.Runtime
		if runtime == "" {
			runtime = colorize(colorGray, "wine")
		}
		sb.WriteString(fmt.Sprintf("%-20s %-18s %-9d %s\n",
			truncate(p.Name(), 20),
			truncate(runtime, 18),
			len(p.Favorites),
			p.Path))
	}
	return sb.String()
}

// RenderWarnings lists roots that could not be scanned.
func RenderWarnings(warnings []discovery.Warning) string {
	if len(warnings) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, w := range warnings {
		sb.WriteString(colorize(colorYellow, "warning: "))
		sb.WriteString("could not scan ")
		sb.WriteString(w.String())
		sb.WriteString("\n")
	}
	return sb.String()
}

// RenderAppTable renders executables of a prefix; favorites are starred.
func RenderAppTable(apps []scanner.App, favorites map[string]bool) string {
	if len(apps) == 0 {
		return "No executables found.\n"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("  %-28s %s\n", "Name", "Location"))
	rule(&sb, 80)

	for _, a := range apps {
		mark := " "
		if favorites[a.Path] {
			mark = colorize(colorYellow, "★")
		}
		sb.WriteString(fmt.Sprintf("%s %-28s %s\n", mark, truncate(a.Name(), 28), a.Rel))
	}
	return sb.String()
}

// FavoriteRow is a favorite executable with its launch statistics.
type FavoriteRow struct {
	Exe          string    `json:"exe" yaml:"exe"`
	Launches     int       `json:"launches" yaml:"launches"`
	LastLaunched time.Time `json:"last_launched,omitempty" yaml:"last_launched,omitempty"`
}

// RenderFavoritesTable renders the favorites of one prefix.
func RenderFavoritesTable(rows []FavoriteRow) string {
	if len(rows) == 0 {
		return "No favorites.\n"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%-4s %-28s %-9s %s\n", "#", "Name", "Launches", "Last Launched"))
	rule(&sb, 62)

	for i, r := range rows {
		name := r.Exe
		if idx := strings.LastIndexAny(name, `/\`); idx >= 0 {
			name = name[idx+1:]
		}
		sb.WriteString(fmt.Sprintf("%-4d %-28s %-9d %s\n",
			i+1,
			truncate(name, 28),
			r.Launches,
			formatRelativeTime(r.LastLaunched)))
	}
	return sb.String()
}

// RenderHistoryTable renders install and uninstall outcomes, newest first.
func RenderHistoryTable(ops []*store.Operation) string {
	if len(ops) == 0 {
		return "No operations recorded.\n"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%-15s %-10s %-22s %-7s %-8s %s\n",
		"When", "Operation", "Tag", "Result", "Took", "Message"))
	rule(&sb, 90)

	for _, op := range ops {
		result := colorize(colorGreen, "ok    ")
		if !op.Success {
			result = colorize(colorRed, "failed")
		}
		sb.WriteString(fmt.Sprintf("%-15s %-10s %-22s %s  %-8s %s\n",
			formatRelativeTime(op.FinishedAt),
			op.Kind,
			truncate(op.Tag, 22),
			result,
			formatDuration(op.Duration()),
			truncate(op.Message, 40)))
	}
	return sb.String()
}

// formatSize converts bytes to a human-readable size; unknown sizes are "-".
func formatSize(bytes int64) string {
	if bytes <= 0 {
		return "-"
	}
	return humanize.IBytes(uint64(bytes))
}

// formatRelativeTime converts a timestamp to relative time (e.g., "2 days ago").
func formatRelativeTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return humanize.Time(t)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02")
}

func formatDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "-"
	case d < time.Second:
		return "<1s"
	default:
		return d.Round(time.Second).String()
	}
}

// truncate truncates a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
