package validation

import (
	"strings"
	"testing"
)

func TestValidatePackageName(t *testing.T) {
	tests := []struct {
		name    string
		pkg     string
		wantErr bool
	}{
		// Valid names
		{"simple", "flask", false},
		{"single char", "q", false},
		{"with digit", "oslo2", false},
		{"dotted", "zope.interface", false},
		{"underscored", "typing_extensions", false},
		{"hyphenated", "python-dotenv", false},
		{"mixed case", "Flask", false},

		// Invalid names
		{"empty", "", true},
		{"leading dot", ".hidden", true},
		{"trailing hyphen", "flask-", true},
		{"path traversal", "../etc/passwd", true},
		{"slash", "flask/json", true},
		{"space", "fl ask", true},
		{"query injection", "flask?x=1", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePackageName(tt.pkg)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePackageName(%q) error = %v, wantErr %v", tt.pkg, err, tt.wantErr)
			}
		})
	}
}

func TestValidatePackageNames(t *testing.T) {
	if err := ValidatePackageNames([]string{"flask", "requests"}); err != nil {
		t.Errorf("valid names rejected: %v", err)
	}

	err := ValidatePackageNames([]string{"flask", "../bad", "also/bad"})
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"../bad", "also/bad"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not name %q", err, want)
		}
	}
}
