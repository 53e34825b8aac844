// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package impact joins detected breaking changes with scan results to
// produce per-package impact assessments.
package impact

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/AleutianAI/DepScope/services/scanner"
	"github.com/AleutianAI/DepScope/services/stream"
)

// Impact describes what one breaking change touches in the scanned code.
type Impact struct {
	// Package is the normalized package name.
	Package string `json:"package"`

	// CurrentVersion is the version the repository declares.
	CurrentVersion string `json:"current_version"`

	// LatestVersion is the registry version that triggered detection.
	LatestVersion string `json:"latest_version"`

	// TotalImpacts is len(ImpactedCode).
	TotalImpacts int `json:"total_impacts"`

	// FilesAffected is the number of distinct files in ImpactedCode.
	FilesAffected int `json:"files_affected"`

	// ImpactedCode lists the usage sites affected by the change.
	ImpactedCode []scanner.Usage `json:"impacted_code"`
}

// FromReport builds the impact of one breaking change from its scan report.
func FromReport(change stream.BreakingChange, report *scanner.Report) Impact {
	return Impact{
		Package:        change.Package,
		CurrentVersion: change.CurrentVersion,
		LatestVersion:  change.LatestVersion,
		TotalImpacts:   report.TotalUsages,
		FilesAffected:  report.FilesAffected,
		ImpactedCode:   report.Usages,
	}
}

// Map joins breaking changes with scan reports, keyed by package name.
//
// A change without a matching report is skipped with a warning rather than
// mapped to an empty impact: absence of a report means the package was
// never scanned, not that it is unused.
func Map(changes []stream.BreakingChange, reports map[string]*scanner.Report) map[string]Impact {
	impacts := make(map[string]Impact, len(changes))
	for _, change := range changes {
		report, ok := reports[change.Package]
		if !ok {
			slog.Warn("no scan report for breaking change, skipping",
				"package", change.Package)
			continue
		}
		impacts[change.Package] = FromReport(change, report)
	}
	return impacts
}

// TextReport renders impacts as a human-readable summary, one package at a
// time in name order.
func TextReport(impacts map[string]Impact) string {
	if len(impacts) == 0 {
		return "No breaking changes impact this codebase.\n"
	}

	packages := make([]string, 0, len(impacts))
	for pkg := range impacts {
		packages = append(packages, pkg)
	}
	sort.Strings(packages)

	var b strings.Builder
	for _, pkg := range packages {
		imp := impacts[pkg]
		fmt.Fprintf(&b, "%s: %s -> %s (%d usages in %d files)\n",
			imp.Package, displayVersion(imp.CurrentVersion), imp.LatestVersion,
			imp.TotalImpacts, imp.FilesAffected)
		for _, usage := range imp.ImpactedCode {
			fmt.Fprintf(&b, "  %s:%d [%s] %s\n",
				usage.File, usage.Line, usage.Kind, usage.Statement)
		}
	}
	return b.String()
}

func displayVersion(v string) string {
	if v == "" {
		return "(unspecified)"
	}
	return v
}
