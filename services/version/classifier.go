// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package version classifies upgrades between two package version strings.
//
// Classification is total: any pair of strings, including garbage, yields a
// Status. Unparseable input classifies as StatusUnknown rather than failing.
package version

import (
	"github.com/Masterminds/semver/v3"
)

// Status describes the relationship between a declared version and the
// latest version known to the registry.
type Status string

const (
	// StatusUpToDate means the parsed versions are equal (the string
	// spellings may differ, e.g. "1.0" vs "1.0.0").
	StatusUpToDate Status = "up-to-date"

	// StatusOutdated means a newer version exists within the same major.
	StatusOutdated Status = "outdated"

	// StatusBreaking means a newer version exists with a higher major.
	StatusBreaking Status = "breaking"

	// StatusAhead means the declared version is newer than the registry's.
	StatusAhead Status = "ahead"

	// StatusUnknown means one of the versions could not be parsed.
	StatusUnknown Status = "unknown"
)

// Unspecified is the sentinel for a dependency declared without a version.
// For comparison purposes it parses as the lowest possible version, so any
// registry release classifies as at least StatusOutdated.
const Unspecified = ""

// Parse parses a version string into structured form.
//
// The empty string (the Unspecified sentinel) parses as 0.0.0. Loose
// spellings like "1.0" are coerced to full semantic versions.
func Parse(s string) (*semver.Version, error) {
	if s == Unspecified {
		return semver.New(0, 0, 0, "", ""), nil
	}
	return semver.NewVersion(s)
}

// Compare classifies the upgrade from current to latest.
func Compare(current, latest string) Status {
	cur, err := Parse(current)
	if err != nil {
		return StatusUnknown
	}
	lat, err := Parse(latest)
	if err != nil {
		return StatusUnknown
	}

	switch {
	case cur.Equal(lat):
		return StatusUpToDate
	case cur.LessThan(lat):
		if lat.Major() > cur.Major() {
			return StatusBreaking
		}
		return StatusOutdated
	default:
		return StatusAhead
	}
}

// IsBreaking reports whether upgrading from current to latest crosses a
// major version boundary.
//
// This is a heuristic, not proof of incompatibility: a major bump is taken
// as breaking regardless of minor/patch/pre-release differences, and
// packages that do not follow semantic versioning (calendar versions, 0.x
// lines with breaking minor bumps) will be misclassified. Unparseable input
// on either side yields false.
func IsBreaking(current, latest string) bool {
	cur, err := Parse(current)
	if err != nil {
		return false
	}
	lat, err := Parse(latest)
	if err != nil {
		return false
	}
	return lat.Major() > cur.Major()
}
