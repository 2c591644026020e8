package engine

import "testing"

func TestCleanup(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "collapses runs of newlines",
			input:    "a\n\n\n\n\nb",
			expected: "a\n\nb",
		},
		{
			name:     "removes tabs",
			input:    "a\tb\t\tc",
			expected: "abc",
		},
		{
			name:     "removes four-space indent groups",
			input:    "        indented",
			expected: "indented",
		},
		{
			name:     "keeps short spacing",
			input:    "a  b c",
			expected: "a  b c",
		},
		{
			name:     "strips comment with its newline",
			input:    "before\n<!-- internal note -->\nafter",
			expected: "before\nafter",
		},
		{
			name:     "strips multiline comment",
			input:    "a\n<!-- line one\nline two -->\nb",
			expected: "a\nb",
		},
		{
			name:     "comment removal triggers second pass",
			input:    "a\n\n<!-- note -->\n\nb",
			expected: "a\n\nb",
		},
		{
			name:     "empty input",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Cleanup(tt.input)
			if got != tt.expected {
				t.Errorf("Cleanup(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestCleanup_Idempotent(t *testing.T) {
	inputs := []string{
		"a\n\n\n\nb\t<!-- c -->\n    d",
		"plain text",
		"\t\t\n\n\n\n<!-- x --><!-- y -->",
	}

	for _, in := range inputs {
		once := Cleanup(in)
		twice := Cleanup(once)
		if once != twice {
			t.Errorf("Cleanup not idempotent for %q: %q != %q", in, once, twice)
		}
	}
}
