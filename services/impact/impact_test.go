// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package impact

import (
	"strings"
	"testing"

	"github.com/AleutianAI/DepScope/services/scanner"
	"github.com/AleutianAI/DepScope/services/stream"
)

func flaskReport() *scanner.Report {
	return &scanner.Report{
		Package:       "flask",
		TotalUsages:   2,
		FilesAffected: 1,
		Usages: []scanner.Usage{
			{File: "app.py", Line: 3, Kind: scanner.UsageImport, Symbol: "from flask import Flask", Statement: "from flask import Flask"},
			{File: "app.py", Line: 6, Kind: scanner.UsageCall, Symbol: "flask.Flask", Statement: "app = Flask(__name__)"},
		},
	}
}

func TestMap_JoinsChangeWithReport(t *testing.T) {
	changes := []stream.BreakingChange{
		{Package: "flask", CurrentVersion: "2.0.0", LatestVersion: "3.1.2"},
	}
	reports := map[string]*scanner.Report{"flask": flaskReport()}

	impacts := Map(changes, reports)
	if len(impacts) != 1 {
		t.Fatalf("got %d impacts, want 1", len(impacts))
	}

	imp, ok := impacts["flask"]
	if !ok {
		t.Fatalf("impacts not keyed by package: %v", impacts)
	}
	if imp.Package != "flask" || imp.CurrentVersion != "2.0.0" || imp.LatestVersion != "3.1.2" {
		t.Errorf("impact header = %+v", imp)
	}
	if imp.TotalImpacts != 2 || imp.FilesAffected != 1 {
		t.Errorf("TotalImpacts = %d, FilesAffected = %d, want 2 and 1",
			imp.TotalImpacts, imp.FilesAffected)
	}
	if imp.TotalImpacts != len(imp.ImpactedCode) {
		t.Error("TotalImpacts disagrees with len(ImpactedCode)")
	}
}

func TestMap_SkipsChangeWithoutReport(t *testing.T) {
	changes := []stream.BreakingChange{
		{Package: "flask", CurrentVersion: "2.0.0", LatestVersion: "3.1.2"},
		{Package: "django", CurrentVersion: "3.0.0", LatestVersion: "5.0.0"},
	}
	reports := map[string]*scanner.Report{"flask": flaskReport()}

	impacts := Map(changes, reports)
	if len(impacts) != 1 {
		t.Fatalf("got %d impacts, want 1", len(impacts))
	}
	if _, ok := impacts["flask"]; !ok {
		t.Errorf("kept impacts = %v, want flask", impacts)
	}
	if _, ok := impacts["django"]; ok {
		t.Error("django has no report and should have been skipped")
	}
}

func TestMap_EmptyInputs(t *testing.T) {
	if impacts := Map(nil, nil); len(impacts) != 0 {
		t.Errorf("got %d impacts for empty input", len(impacts))
	}
}

func TestTextReport(t *testing.T) {
	impacts := Map(
		[]stream.BreakingChange{{Package: "flask", CurrentVersion: "2.0.0", LatestVersion: "3.1.2"}},
		map[string]*scanner.Report{"flask": flaskReport()},
	)

	text := TextReport(impacts)
	for _, want := range []string{"flask: 2.0.0 -> 3.1.2", "app.py:3", "app.py:6", "2 usages in 1 files"} {
		if !strings.Contains(text, want) {
			t.Errorf("report missing %q:\n%s", want, text)
		}
	}
}

func TestTextReport_UnspecifiedVersion(t *testing.T) {
	impacts := map[string]Impact{"numpy": {Package: "numpy", LatestVersion: "3.1.2"}}
	if text := TextReport(impacts); !strings.Contains(text, "(unspecified) -> 3.1.2") {
		t.Errorf("report = %q", text)
	}
}

func TestTextReport_PackagesInNameOrder(t *testing.T) {
	impacts := map[string]Impact{
		"zope":  {Package: "zope", CurrentVersion: "1.0.0", LatestVersion: "2.0.0"},
		"attrs": {Package: "attrs", CurrentVersion: "1.0.0", LatestVersion: "2.0.0"},
	}
	text := TextReport(impacts)
	if !(strings.Index(text, "attrs") < strings.Index(text, "zope")) {
		t.Errorf("packages out of order:\n%s", text)
	}
}

func TestTextReport_Empty(t *testing.T) {
	if text := TextReport(nil); !strings.Contains(text, "No breaking changes") {
		t.Errorf("report = %q", text)
	}
}
