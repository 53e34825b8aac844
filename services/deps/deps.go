// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package deps loads the declared dependency set DepScope watches.
//
// The input is the normalized mapping of package name to declared version
// (a small YAML file), not an ecosystem manifest format; producing that
// mapping from requirements.txt, pyproject.toml and friends is the job of
// an external tool. Names are normalized per PEP 503 so they match PyPI
// identities and scanner targets regardless of `-`/`_`/`.` spelling.
package deps

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/DepScope/services/version"
)

// separatorRuns collapses PEP 503 name separators.
var separatorRuns = regexp.MustCompile(`[-_.]+`)

// Normalize canonicalizes a package name: lowercase, with runs of `-`, `_`
// and `.` collapsed to a single `-`.
func Normalize(name string) string {
	return separatorRuns.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
}

// Dependency is one declared dependency. Immutable once loaded.
type Dependency struct {
	// Name is the normalized package name.
	Name string

	// Version is the declared version, or version.Unspecified when the
	// dependency was declared without one.
	Version string
}

// Unspecified reports whether the dependency was declared without a version.
func (d Dependency) Unspecified() bool {
	return d.Version == version.Unspecified
}

// Set is the full declared dependency set for a run, keyed by normalized
// package name. Treated as immutable after Load.
type Set map[string]Dependency

// Names returns the sorted normalized package names.
func (s Set) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DeclaredVersion returns the declared version for the (normalized) name,
// or version.Unspecified when the package is unknown or undeclared.
func (s Set) DeclaredVersion(name string) string {
	return s[Normalize(name)].Version
}

// unspecifiedSpellings are accepted aliases for "no version declared".
var unspecifiedSpellings = map[string]bool{
	"":            true,
	"*":           true,
	"n/a":         true,
	"unspecified": true,
}

// FromMap builds a Set from raw name -> version pairs, normalizing names
// and mapping unspecified spellings to the sentinel.
func FromMap(raw map[string]string) Set {
	set := make(Set, len(raw))
	for name, ver := range raw {
		norm := Normalize(name)
		if norm == "" {
			continue
		}
		ver = strings.TrimSpace(ver)
		if unspecifiedSpellings[strings.ToLower(ver)] {
			ver = version.Unspecified
		}
		set[norm] = Dependency{Name: norm, Version: ver}
	}
	return set
}

// Load reads a dependency set from a YAML file mapping package names to
// declared version strings.
func Load(path string) (Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dependency file: %w", err)
	}
	var raw map[string]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse dependency file %s: %w", path, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("dependency file %s declares no packages", path)
	}
	return FromMap(raw), nil
}
