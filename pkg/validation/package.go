// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation utilities for security-critical operations.
//
// This package contains validators for user-provided inputs that end up in
// registry URLs or file paths. Using these validators prevents injection
// (URL path traversal, request smuggling via crafted package names).
package validation

import (
	"fmt"
	"regexp"
)

// packagePattern matches valid Python distribution names per PEP 508:
// letters, digits, and interior runs of dots, hyphens, or underscores.
// Max length 128 is far above anything on a real index.
var packagePattern = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9._-]{0,126}[A-Za-z0-9])?$`)

// ValidatePackageName validates a package name before it is interpolated
// into a registry URL path.
//
// Example:
//
//	if err := validation.ValidatePackageName(pkg); err != nil {
//	    return "", fmt.Errorf("invalid package: %w", err)
//	}
//	// Safe to place in the request path
func ValidatePackageName(name string) error {
	if name == "" {
		return fmt.Errorf("package name cannot be empty")
	}
	if !packagePattern.MatchString(name) {
		return fmt.Errorf("invalid package name: %q (must be alphanumeric with interior dots, hyphens, or underscores)", name)
	}
	return nil
}

// ValidatePackageNames validates multiple package names.
// Returns an error listing all invalid names if any fail validation.
func ValidatePackageNames(names []string) error {
	var invalid []string
	for _, name := range names {
		if err := ValidatePackageName(name); err != nil {
			invalid = append(invalid, name)
		}
	}
	if len(invalid) > 0 {
		return fmt.Errorf("invalid package names: %v", invalid)
	}
	return nil
}
