package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"landreg/internal/registry/models"
)

var (
	highColor   = color.New(color.FgRed, color.Bold)
	mediumColor = color.New(color.FgYellow)
	lowColor    = color.New(color.FgCyan)
	dimColor    = color.New(color.FgHiBlack)
	okColor     = color.New(color.FgGreen)
)

func severityColor(s models.Severity) *color.Color {
	switch s {
	case models.SeverityHigh:
		return highColor
	case models.SeverityMedium:
		return mediumColor
	default:
		return lowColor
	}
}

// printConflicts writes one block per conflict, colored by severity.
func printConflicts(w io.Writer, appID string, cs []*models.Conflict) {
	if len(cs) == 0 {
		okColor.Fprintf(w, "✓ %s: no new conflicts\n", appID)
		return
	}
	fmt.Fprintf(w, "%s: %d new conflict(s)\n", appID, len(cs))
	for _, c := range cs {
		sev := severityColor(c.Severity)
		sev.Fprintf(w, "  [%s] ", c.Severity)
		fmt.Fprintf(w, "%s (%.2f)\n", c.Title, c.Confidence)
		dimColor.Fprintf(w, "    %s  %s\n", c.ID, c.Type)
		if c.Description != "" {
			fmt.Fprintf(w, "    %s\n", c.Description)
		}
	}
}
