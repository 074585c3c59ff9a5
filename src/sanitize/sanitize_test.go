package sanitize

import (
	"reflect"
	"testing"
)

func TestLine(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "color codes",
			input:    "\x1b[31mERROR\x1b[0m: something failed",
			expected: "ERROR: something failed",
		},
		{
			name:     "no ANSI",
			input:    "plain text message",
			expected: "plain text message",
		},
		{
			name:     "multiple codes",
			input:    "\x1b[1m\x1b[31mbold red\x1b[0m normal",
			expected: "bold red normal",
		},
		{
			name:     "progress redraw keeps last frame",
			input:    "copying 10%\rcopying 55%\rcopying 100%",
			expected: "copying 100%",
		},
		{
			name:     "windows line ending",
			input:    "building foo\r",
			expected: "building foo",
		},
		{
			name:     "trailing whitespace",
			input:    "error: build failed   \t",
			expected: "error: build failed",
		},
		{
			name:     "control characters dropped, tabs kept",
			input:    "a\x07b\tc",
			expected: "ab\tc",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Line(tt.input)
			if result != tt.expected {
				t.Errorf("Line(%q) = %q, expected %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestLines(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{name: "empty", input: "", expected: nil},
		{name: "trailing newline", input: "a\nb\n", expected: []string{"a", "b"}},
		{name: "crlf", input: "a\r\nb\r\n", expected: []string{"a", "b"}},
		{name: "blank lines kept", input: "a\n\nb", expected: []string{"a", "", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Lines(tt.input)
			if !reflect.DeepEqual(result, tt.expected) {
				t.Errorf("Lines(%q) = %q, expected %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestClean(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "full cleanup",
			input:    "\x1b[31mERROR\x1b[0m: message\r\n",
			expected: "ERROR: message",
		},
		{
			name:     "carriage returns",
			input:    "line1\r\nline2\r",
			expected: "line1\nline2",
		},
		{
			name:     "trailing blank lines",
			input:    "done\n\n\n",
			expected: "done",
		},
		{
			name:     "already clean",
			input:    "clean message",
			expected: "clean message",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Clean(tt.input)
			if result != tt.expected {
				t.Errorf("Clean(%q) = %q, expected %q", tt.input, result, tt.expected)
			}
		})
	}
}
