// Package mcp exposes the benchmark run history as MCP tools, backed
// by the local SQLite store.
package mcp

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gateway-fm/ledgerbench/pkg/types"
)

// kv formats a key-value pair with aligned values (20 char key width).
func kv(key string, value any) string {
	return fmt.Sprintf("%-20s %v", key+":", value)
}

// section returns a markdown section header.
func section(title string) string {
	return "## " + title
}

// joinLines joins non-empty lines with newlines.
func joinLines(lines ...string) string {
	var result []string
	for _, l := range lines {
		if l != "" {
			result = append(result, l)
		}
	}
	return strings.Join(result, "\n")
}

func verifiedMark(verified bool) string {
	if verified {
		return "verified"
	}
	return "MISMATCH"
}

// formatReport renders one run report as readable markdown.
func formatReport(r *types.RunReport) string {
	title := r.ID
	if r.Name != "" {
		title = fmt.Sprintf("%s (%s)", r.Name, r.ID)
	}

	lines := []string{
		section("Run " + title),
		kv("Started", r.StartedAt.Format("2006-01-02 15:04:05 MST")),
		kv("Strategy", r.Strategy),
		kv("Tasks", r.TotalTasks),
		kv("Concurrency limit", r.ConcurrencyLimit),
		kv("Peak concurrency", r.PeakConcurrency),
		kv("Duration", fmt.Sprintf("%dms", r.DurationMs)),
		"",
		section("Outcomes"),
		kv("Succeeded", r.SuccessCount),
		kv("Failed", r.FailureCount),
		kv("Attempts", r.AttemptsTotal),
	}

	if len(r.ErrorKinds) > 0 {
		kinds := make([]string, 0, len(r.ErrorKinds))
		for kind := range r.ErrorKinds {
			kinds = append(kinds, kind)
		}
		sort.Strings(kinds)
		for _, kind := range kinds {
			lines = append(lines, kv("  "+kind, r.ErrorKinds[kind]))
		}
	}

	lines = append(lines,
		"",
		section("Verification"),
		kv("Initial state", r.InitialState),
		kv("Aggregate effect", r.AggregateEffect),
		kv("Expected state", r.ExpectedState),
		kv("Final state", r.FinalObservedState),
		kv("Result", verifiedMark(r.Verified)),
	)

	return joinLines(lines...)
}

// formatReportList renders a compact one-line-per-run history.
func formatReportList(reports []*types.RunReport) string {
	if len(reports) == 0 {
		return "No runs recorded yet."
	}

	lines := []string{section("Run History"), ""}
	for _, r := range reports {
		name := r.Name
		if name == "" {
			name = "-"
		}
		lines = append(lines, fmt.Sprintf(
			"%s  %s  %-8s limit=%-4d %d/%d ok  %s  %s",
			r.ID,
			r.StartedAt.Format("2006-01-02 15:04"),
			r.Strategy,
			r.ConcurrencyLimit,
			r.SuccessCount,
			r.TotalTasks,
			verifiedMark(r.Verified),
			name,
		))
	}
	return joinLines(lines...)
}
