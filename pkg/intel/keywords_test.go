package intel

import (
	"os"
	"path/filepath"
	"testing"
)

func writeKeywordsFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "keywords.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadKeywordsFileReplace(t *testing.T) {
	path := writeKeywordsFile(t, "keywords:\n  - lottery\n  - prize\n")

	got, err := LoadKeywordsFile(path)
	if err != nil {
		t.Fatalf("LoadKeywordsFile: %v", err)
	}
	if len(got) != 2 || got[0] != "lottery" || got[1] != "prize" {
		t.Errorf("got %v, want [lottery prize]", got)
	}
}

func TestLoadKeywordsFileExtend(t *testing.T) {
	path := writeKeywordsFile(t, "extend: true\nkeywords:\n  - lottery\n")

	got, err := LoadKeywordsFile(path)
	if err != nil {
		t.Fatalf("LoadKeywordsFile: %v", err)
	}
	if len(got) != len(DefaultKeywords)+1 {
		t.Fatalf("got %d keywords, want %d", len(got), len(DefaultKeywords)+1)
	}
	if got[len(got)-1] != "lottery" {
		t.Errorf("last keyword = %q, want lottery", got[len(got)-1])
	}
}

func TestLoadKeywordsFileErrors(t *testing.T) {
	if _, err := LoadKeywordsFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	empty := writeKeywordsFile(t, "extend: true\n")
	if _, err := LoadKeywordsFile(empty); err == nil {
		t.Error("expected error for file without keywords")
	}

	bad := writeKeywordsFile(t, "keywords: {not: a list}\n")
	if _, err := LoadKeywordsFile(bad); err == nil {
		t.Error("expected error for malformed YAML")
	}
}

func TestFold(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"URGENT", "urgent"},
		{"Vérify your Accöunt", "verify your account"},
		{"already lower", "already lower"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := Fold(tt.in); got != tt.want {
			t.Errorf("Fold(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
