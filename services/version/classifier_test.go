// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package version

import "testing"

func TestCompare(t *testing.T) {
	tests := []struct {
		name    string
		current string
		latest  string
		want    Status
	}{
		{"equal", "2.28.1", "2.28.1", StatusUpToDate},
		{"equal different spelling", "1.0", "1.0.0", StatusUpToDate},
		{"minor bump", "1.4.2", "1.9.0", StatusOutdated},
		{"patch bump", "2.0.0", "2.0.3", StatusOutdated},
		{"major bump", "1.4.2", "2.0.0", StatusBreaking},
		{"major bump with lower minor", "1.9.9", "2.0.0", StatusBreaking},
		{"zero major minor bump", "0.4.0", "0.5.0", StatusOutdated},
		{"declared ahead of registry", "3.0.0", "2.9.9", StatusAhead},
		{"garbage current", "not-a-version", "1.0.0", StatusUnknown},
		{"garbage latest", "1.0.0", "###", StatusUnknown},
		{"both garbage", "x", "y", StatusUnknown},
		{"unspecified vs zero line", Unspecified, "0.5.0", StatusOutdated},
		{"unspecified vs stable", Unspecified, "3.1.2", StatusBreaking},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Compare(tt.current, tt.latest); got != tt.want {
				t.Errorf("Compare(%q, %q) = %v, want %v", tt.current, tt.latest, got, tt.want)
			}
		})
	}
}

func TestIsBreaking(t *testing.T) {
	tests := []struct {
		current string
		latest  string
		want    bool
	}{
		{"1.4.2", "2.0.0", true},
		{"1.4.2", "1.9.0", false},
		{"0.4.0", "0.5.0", false},
		{"2.0.0", "3.1.2", true},
		{"2.0.0", "2.0.0", false},
		// Major comparison ignores pre-release markers.
		{"1.0.0", "2.0.0-rc.1", true},
		// Unparseable input never reports breaking.
		{"garbage", "2.0.0", false},
		{"1.0.0", "garbage", false},
	}
	for _, tt := range tests {
		if got := IsBreaking(tt.current, tt.latest); got != tt.want {
			t.Errorf("IsBreaking(%q, %q) = %v, want %v", tt.current, tt.latest, got, tt.want)
		}
	}
}

func TestParseUnspecifiedSentinel(t *testing.T) {
	v, err := Parse(Unspecified)
	if err != nil {
		t.Fatalf("Parse(Unspecified): %v", err)
	}
	if v.Major() != 0 || v.Minor() != 0 || v.Patch() != 0 {
		t.Errorf("Unspecified parsed as %s, want 0.0.0", v)
	}
}
