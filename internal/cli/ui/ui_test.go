package ui

import (
	"bytes"
	"strings"
	"testing"
)

func TestTable_Render(t *testing.T) {
	var buf bytes.Buffer
	table := NewTable(&buf, true, "COLUMN", "TYPE")
	table.AddRow("id", "BIGINT")
	table.AddRow("email_address", "VARCHAR(255)")
	table.AddRow("short")
	table.Render()

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 5 {
		t.Fatalf("expected 5 lines, got %d:\n%s", len(lines), buf.String())
	}
	if lines[0] != "COLUMN         TYPE" {
		t.Errorf("unexpected header %q", lines[0])
	}
	if lines[1] != strings.Repeat("─", 13)+"  "+strings.Repeat("─", 12) {
		t.Errorf("unexpected separator %q", lines[1])
	}
	if lines[3] != "email_address  VARCHAR(255)" {
		t.Errorf("unexpected row %q", lines[3])
	}
	if lines[4] != "short          " {
		t.Errorf("missing cells should render empty, got %q", lines[4])
	}
}

func TestTable_NoHeaders(t *testing.T) {
	var buf bytes.Buffer
	NewTable(&buf, true).Render()
	if buf.Len() != 0 {
		t.Errorf("expected no output, got %q", buf.String())
	}
}

func TestKeyValueTable_Render(t *testing.T) {
	var buf bytes.Buffer
	kv := NewKeyValueTable(&buf, true)
	kv.AddRow("Table", "user")
	kv.AddRow("Primary key", "id")
	kv.Render()

	want := "Table:       user\nPrimary key: id\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestFindSimilar(t *testing.T) {
	candidates := []string{"User", "Post", "Profile", "Comment", "Tag"}

	tests := []struct {
		target string
		want   []string
	}{
		{"Usr", []string{"User", "Post", "Tag"}},
		{"post", []string{"Post"}},
		{"Profil", []string{"Profile"}},
		{"Pst", []string{"Post", "User", "Tag"}},
		{"Zzzzzzzz", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			got := FindSimilar(tt.target, candidates)
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("FindSimilar(%q) = %v, want %v", tt.target, got, tt.want)
			}
		})
	}
}

func TestLevenshteinDistance(t *testing.T) {
	tests := []struct {
		s1, s2 string
		want   int
	}{
		{"", "", 0},
		{"", "abc", 3},
		{"abc", "", 3},
		{"kitten", "sitting", 3},
		{"saturday", "sunday", 3},
		{"user", "user", 0},
	}

	for _, tt := range tests {
		if got := LevenshteinDistance(tt.s1, tt.s2); got != tt.want {
			t.Errorf("LevenshteinDistance(%q, %q) = %d, want %d", tt.s1, tt.s2, got, tt.want)
		}
	}
}

func TestFormatError(t *testing.T) {
	out := FormatError(ErrorOptions{
		Context:     "unknown entity",
		Problem:     "Usr",
		Suggestions: []string{"User"},
		Help:        []string{"List entities: ormctl describe"},
		NoColor:     true,
	})

	for _, want := range []string{
		"✗ UNKNOWN ENTITY: Usr",
		"Did you mean: User?",
		"→ List entities: ormctl describe",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestFormatError_Plain(t *testing.T) {
	out := FormatError(ErrorOptions{Problem: "connection refused", NoColor: true})
	if out != "✗ connection refused\n" {
		t.Errorf("unexpected output %q", out)
	}
}

func TestFormatSuccess(t *testing.T) {
	if got := FormatSuccess("connected", true); got != "✓ connected\n" {
		t.Errorf("unexpected output %q", got)
	}
}
