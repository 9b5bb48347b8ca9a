// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// BuildSummary aggregates the result of a catalog build for display.
//
// # Fields
//
//   - ManifestPath: Where the manifest was written
//   - StorePath: Where the results store was written
//   - Experiments: Number of distinct experiment configurations
//   - Scenarios: Number of scenario entries across experiments
//   - Records: Number of decision records stored
//   - SkippedRuns: Run directories that failed to parse, each with its reason
//   - Elapsed: Wall time of the build
type BuildSummary struct {
	ManifestPath string
	StorePath    string
	Experiments  int
	Scenarios    int
	Records      int
	SkippedRuns  []string
	Elapsed      time.Duration
}

// RenderBuildSummary prints the end-of-build report in the current
// personality. Machine mode emits one parseable line; full mode renders
// a boxed summary followed by any skipped runs.
func RenderBuildSummary(s *BuildSummary) {
	if s == nil {
		return
	}
	switch GetPersonality().Level {
	case PersonalityMachine:
		renderBuildSummaryMachine(s)
	case PersonalityMinimal:
		renderBuildSummaryMinimal(s)
	default:
		renderBuildSummaryFull(s)
	}
}

// renderBuildSummaryMachine emits:
// BUILD_DONE: experiments=<n> records=<n> skipped=<n> elapsed=<d> manifest=<path>
func renderBuildSummaryMachine(s *BuildSummary) {
	fmt.Printf("BUILD_DONE: experiments=%d records=%d skipped=%d elapsed=%s manifest=%s\n",
		s.Experiments, s.Records, len(s.SkippedRuns), s.Elapsed.Round(time.Millisecond), s.ManifestPath)
	for _, run := range s.SkippedRuns {
		fmt.Printf("SKIPPED: %s\n", run)
	}
}

func renderBuildSummaryMinimal(s *BuildSummary) {
	fmt.Printf("Experiments: %d | Scenarios: %d | Records: %d | Elapsed: %s\n",
		s.Experiments, s.Scenarios, s.Records, formatDuration(s.Elapsed))
	fmt.Printf("Manifest: %s\n", s.ManifestPath)
	for _, run := range s.SkippedRuns {
		FileStatus(run, IconWarning, "")
	}
}

func renderBuildSummaryFull(s *BuildSummary) {
	fmt.Println()

	var content strings.Builder

	content.WriteString(Styles.Subtitle.Render("Catalog Build"))
	content.WriteString("\n\n")
	content.WriteString(fmt.Sprintf("  %s  %s\n",
		Styles.Muted.Render("Manifest:"), s.ManifestPath))
	content.WriteString(fmt.Sprintf("  %s  %s\n",
		Styles.Muted.Render("Store:"), s.StorePath))

	content.WriteString("\n")
	content.WriteString(Styles.Subtitle.Render("Contents"))
	content.WriteString("\n\n")
	content.WriteString(fmt.Sprintf("  %s  %d experiments\n",
		IconSuccess.Render(), s.Experiments))
	content.WriteString(fmt.Sprintf("  %s  %d scenarios\n",
		IconBullet.Render(), s.Scenarios))
	content.WriteString(fmt.Sprintf("  %s  %d decision records\n",
		IconBullet.Render(), s.Records))
	content.WriteString(fmt.Sprintf("  %s  built in %s\n",
		IconTime.Render(), formatDuration(s.Elapsed)))

	boxStyle := Styles.Box.Width(68)
	fmt.Println(boxStyle.Render(content.String()))

	if len(s.SkippedRuns) > 0 {
		Warning(fmt.Sprintf("%d runs skipped", len(s.SkippedRuns)))
		for _, run := range s.SkippedRuns {
			FileStatus(run, IconWarning, "")
		}
	}
}

// Table renders rows under headers with aligned columns. Machine mode
// returns tab-separated lines; styled modes pad cells and color the
// header row. Rows wider than the header are truncated to it.
func Table(headers []string, rows [][]string) string {
	var b strings.Builder
	if GetPersonality().Level == PersonalityMachine {
		b.WriteString(strings.Join(headers, "\t"))
		b.WriteString("\n")
		for _, row := range rows {
			b.WriteString(strings.Join(row, "\t"))
			b.WriteString("\n")
		}
		return b.String()
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = utf8.RuneCountInString(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i >= len(widths) {
				break
			}
			if n := utf8.RuneCountInString(cell); n > widths[i] {
				widths[i] = n
			}
		}
	}

	for i, h := range headers {
		b.WriteString(Styles.Subtitle.Render(padCell(h, widths[i])))
		if i < len(headers)-1 {
			b.WriteString("  ")
		}
	}
	b.WriteString("\n")
	for _, row := range rows {
		for i, cell := range row {
			if i >= len(widths) {
				break
			}
			b.WriteString(padCell(cell, widths[i]))
			if i < len(row)-1 && i < len(widths)-1 {
				b.WriteString("  ")
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

// padCell pads before styling; ANSI escapes would skew width math.
func padCell(s string, width int) string {
	if n := width - utf8.RuneCountInString(s); n > 0 {
		return s + strings.Repeat(" ", n)
	}
	return s
}

// formatDuration renders a duration at human scale: 420ms, 3.2s, 4m12s, 1h3m.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		mins := int(d.Minutes())
		secs := int(d.Seconds()) % 60
		if secs == 0 {
			return fmt.Sprintf("%dm", mins)
		}
		return fmt.Sprintf("%dm%ds", mins, secs)
	}
	hours := int(d.Hours())
	mins := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", hours, mins)
}
