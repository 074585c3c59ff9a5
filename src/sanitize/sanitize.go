// Package sanitize cleans build log text before it is rendered or handed to
// an LLM: terminal escape sequences are removed and progress-bar redraws are
// collapsed to their final state.
package sanitize

import (
	"strings"

	"github.com/charmbracelet/x/ansi"
)

// Line cleans a single log line. Carriage-return redraws keep only the text
// written last, escape sequences are stripped, and trailing whitespace is
// trimmed.
func Line(s string) string {
	s = strings.TrimSuffix(s, "\r")
	if i := strings.LastIndexByte(s, '\r'); i >= 0 {
		s = s[i+1:]
	}
	s = ansi.Strip(s)
	s = strings.Map(func(r rune) rune {
		if r == '\t' {
			return r
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
	return strings.TrimRight(s, " \t")
}

// Lines splits s on newlines and cleans each line. A trailing newline does
// not produce an empty final line.
func Lines(s string) []string {
	if s == "" {
		return nil
	}
	s = strings.TrimSuffix(s, "\n")
	raw := strings.Split(s, "\n")
	out := make([]string, len(raw))
	for i, l := range raw {
		out[i] = Line(l)
	}
	return out
}

// Clean sanitizes multi-line text and drops trailing blank lines.
func Clean(s string) string {
	lines := Lines(s)
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}
