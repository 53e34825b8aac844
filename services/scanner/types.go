package scanner

import (
	"fmt"
	"sort"
)

// UsageKind classifies how a dependency is used at a given site.
type UsageKind string

const (
	// UsageImport is an import statement naming the package.
	UsageImport UsageKind = "import"

	// UsageCall is a call whose callee resolves to the package.
	UsageCall UsageKind = "call"

	// UsageAttribute is an attribute access on a name bound to the package.
	UsageAttribute UsageKind = "attribute"
)

// Usage is one site in the scanned source where the target package is used.
type Usage struct {
	// File is the path of the file containing the usage, relative to the
	// scan root when produced by ScanTree.
	File string `json:"file"`

	// Line is the 1-based line of the usage.
	Line int `json:"line"`

	// Column is the 0-based column of the usage.
	Column int `json:"column"`

	// Kind classifies the usage site.
	Kind UsageKind `json:"kind"`

	// Symbol is the fully resolved dotted name: a call written p.foo
	// under 'import pkg as p' is recorded as "pkg.foo", and Flask under
	// 'from flask import Flask' as "flask.Flask". Imports keep the
	// statement text.
	Symbol string `json:"symbol"`

	// Statement is the source text of the usage site, first line only.
	Statement string `json:"statement"`
}

// FileError records a file the scan could not process. A failed file never
// aborts the scan of its siblings.
type FileError struct {
	File  string `json:"file"`
	Error string `json:"error"`
}

// Report is the result of scanning a source tree for one package.
type Report struct {
	// Package is the normalized package name that was searched for.
	Package string `json:"package"`

	// TotalUsages is len(Usages).
	TotalUsages int `json:"total_usages"`

	// FilesAffected is the number of distinct files with at least one usage.
	FilesAffected int `json:"files_affected"`

	// FilesScanned is the number of files parsed, including failed ones.
	FilesScanned int `json:"files_scanned"`

	// Usages lists every usage site, ordered by file then line.
	Usages []Usage `json:"usages"`

	// Errors lists files that could not be scanned.
	Errors []FileError `json:"errors,omitempty"`
}

// finalize orders the usages deterministically and fills in the derived
// counters. Parallel scans merge in completion order, so this must run
// before a report is returned.
func (r *Report) finalize() {
	sort.Slice(r.Usages, func(i, j int) bool {
		if r.Usages[i].File != r.Usages[j].File {
			return r.Usages[i].File < r.Usages[j].File
		}
		if r.Usages[i].Line != r.Usages[j].Line {
			return r.Usages[i].Line < r.Usages[j].Line
		}
		return r.Usages[i].Column < r.Usages[j].Column
	})
	sort.Slice(r.Errors, func(i, j int) bool {
		return r.Errors[i].File < r.Errors[j].File
	})

	r.TotalUsages = len(r.Usages)

	files := make(map[string]struct{}, len(r.Usages))
	for _, u := range r.Usages {
		files[u.File] = struct{}{}
	}
	r.FilesAffected = len(files)
}

// String summarizes the report for logs.
func (r *Report) String() string {
	return fmt.Sprintf("%s: %d usages in %d files (%d scanned)",
		r.Package, r.TotalUsages, r.FilesAffected, r.FilesScanned)
}
