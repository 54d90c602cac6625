// Package report renders run summaries and keeps the list of fetched files.
package report

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/open-edge-platform/tpfetch/internal/pipeline"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	nameStyle = lipgloss.NewStyle().
			Bold(true).
			Width(24)

	detailStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))
)

func stateStyle(s pipeline.State) lipgloss.Style {
	style := lipgloss.NewStyle().Width(14)
	switch s {
	case pipeline.Done:
		return style.Foreground(lipgloss.Color("42"))
	case pipeline.Filtered:
		return style.Foreground(lipgloss.Color("245"))
	case pipeline.Abandoned:
		return style.Foreground(lipgloss.Color("214"))
	case pipeline.Aborted:
		return style.Foreground(lipgloss.Color("196")).Bold(true)
	default:
		return style
	}
}

// Summary renders one line per processed package followed by totals.
// Packages never reached because the run aborted are counted as skipped.
func Summary(results []pipeline.Result, total int, workDir string) string {
	var sb strings.Builder

	sb.WriteString(headerStyle.Render("Third-party packages"))
	sb.WriteString("\n")

	counts := map[pipeline.State]int{}
	for _, res := range results {
		counts[res.State]++

		sb.WriteString(stateStyle(res.State).Render(res.State.String()))
		sb.WriteString(nameStyle.Render(res.Package.Name))

		switch {
		case res.State == pipeline.Filtered && res.Exclusion != nil:
			sb.WriteString(detailStyle.Render(fmt.Sprintf("excluded on %s %s", res.Exclusion.Name, res.Exclusion.Version)))
		case res.Err != nil:
			sb.WriteString(errorStyle.Render(fmt.Sprintf("%s: %v", res.FailedIn, res.Err)))
		case res.Destination != "":
			sb.WriteString(detailStyle.Render(relative(workDir, res.Destination)))
		}
		sb.WriteString("\n")
	}

	sb.WriteString(detailStyle.Render(fmt.Sprintf("%d done, %d filtered, %d abandoned, %d aborted, %d not processed",
		counts[pipeline.Done], counts[pipeline.Filtered], counts[pipeline.Abandoned], counts[pipeline.Aborted], total-len(results))))
	sb.WriteString("\n")
	return sb.String()
}

func relative(base, path string) string {
	if base == "" {
		return path
	}
	if rel, err := filepath.Rel(base, path); err == nil && !strings.HasPrefix(rel, "..") {
		return rel
	}
	return path
}
