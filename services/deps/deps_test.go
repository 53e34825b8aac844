// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package deps

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Flask", "flask"},
		{"typing_extensions", "typing-extensions"},
		{"zope.interface", "zope-interface"},
		{"Some__Weird..Name", "some-weird-name"},
		{"  requests  ", "requests"},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFromMap(t *testing.T) {
	set := FromMap(map[string]string{
		"Flask":       "2.0.0",
		"NumPy":       "*",
		"python_dotenv": "N/A",
		"requests":    " 2.28.1 ",
	})

	if len(set) != 4 {
		t.Fatalf("got %d dependencies, want 4", len(set))
	}
	if set["flask"].Version != "2.0.0" {
		t.Errorf("flask version = %q", set["flask"].Version)
	}
	if !set["numpy"].Unspecified() {
		t.Errorf("numpy should be unspecified, got %q", set["numpy"].Version)
	}
	if !set["python-dotenv"].Unspecified() {
		t.Errorf("python-dotenv should be unspecified")
	}
	if set["requests"].Version != "2.28.1" {
		t.Errorf("requests version = %q", set["requests"].Version)
	}
}

func TestDeclaredVersionNormalizesLookup(t *testing.T) {
	set := FromMap(map[string]string{"typing_extensions": "4.1.0"})
	if got := set.DeclaredVersion("Typing.Extensions"); got != "4.1.0" {
		t.Errorf("DeclaredVersion = %q, want 4.1.0", got)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deps.yaml")
	content := "flask: 2.0.0\nrequests: 2.28.1\nnumpy: \"*\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	set, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(set) != 3 {
		t.Fatalf("got %d dependencies, want 3", len(set))
	}
	want := []string{"flask", "numpy", "requests"}
	got := set.Names()
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Names()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestLoadEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deps.yaml")
	if err := os.WriteFile(path, []byte("{}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for empty dependency set")
	}
}
