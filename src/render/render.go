// Package render turns build reports into text. Every function here is pure
// and total: any report renders in any format without error.
package render

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"garnix-insights/src/failure"
	"garnix-insights/src/report"
)

// Format is the closed set of output styles.
type Format int

const (
	// Human is a multi-line report for people, with glyphs and log excerpts.
	Human Format = iota
	// Structured is indented JSON with stable field names.
	Structured
	// Plain is one "<name>\t<status>" line per package.
	Plain
)

func (f Format) String() string {
	switch f {
	case Structured:
		return "json"
	case Plain:
		return "plain"
	default:
		return "human"
	}
}

// ContentType is the HTTP media type of output in this format.
func (f Format) ContentType() string {
	if f == Structured {
		return "application/json"
	}
	return "text/plain; charset=utf-8"
}

// ParseFormat parses a user-supplied format name. The empty string selects def.
func ParseFormat(s string, def Format) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return def, nil
	case "json", "structured":
		return Structured, nil
	case "human", "text":
		return Human, nil
	case "plain":
		return Plain, nil
	default:
		return def, failure.Newf(failure.InvalidRequest, "unknown format %q (want json, human or plain)", s)
	}
}

// DefaultLogLines is how many log lines the human format shows per failed package.
const DefaultLogLines = 20

// maxLineWidth bounds a single log line in human output.
const maxLineWidth = 240

// Options tune human output. Structured and plain output ignore them.
type Options struct {
	// LogLines is the excerpt length per failed package. Zero hides logs.
	LogLines int
	// Color enables ANSI styling.
	Color bool
}

// DefaultOptions returns the options used when a transport has no preference.
func DefaultOptions() Options {
	return Options{LogLines: DefaultLogLines}
}

// Render formats a build report.
func Render(r *report.BuildReport, f Format, opts Options) string {
	if r == nil {
		r = report.New("", nil)
	}
	switch f {
	case Structured:
		return renderStructured(r)
	case Plain:
		return renderPlain(r)
	default:
		return renderHuman(r, opts)
	}
}

func renderStructured(r *report.BuildReport) string {
	return marshal(r)
}

func renderPlain(r *report.BuildReport) string {
	var sb strings.Builder
	for _, p := range r.Packages {
		sb.WriteString(plainField(p.Name))
		sb.WriteByte('\t')
		sb.WriteString(p.Status.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}

// plainField keeps a value on one line and out of the tab-separated columns.
func plainField(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\t' || r == '\n' || r == '\r' {
			return ' '
		}
		return r
	}, s)
}

func glyph(s report.Status) string {
	switch s {
	case report.Passed:
		return "✔"
	case report.Failed:
		return "✘"
	default:
		return "…"
	}
}

func renderHuman(r *report.BuildReport, opts Options) string {
	pal := newPalette(opts.Color)
	var sb strings.Builder

	sb.WriteString(pal.Title("Build status for " + shortCommit(r.Summary.CommitID)))
	if r.Repository != nil && !r.Repository.IsZero() {
		where := r.Repository.FullName()
		if r.Repository.Branch != "" {
			where += "@" + r.Repository.Branch
		}
		sb.WriteString(pal.Muted(" (" + where + ")"))
	}
	sb.WriteString("\n\n")

	if len(r.Packages) == 0 {
		sb.WriteString(pal.Muted("  no builds reported for this commit"))
		sb.WriteString("\n\n")
	}

	nameWidth, systemWidth := columnWidths(r.Packages)
	for _, p := range r.Packages {
		line := fmt.Sprintf("  %s %s  %s",
			glyph(p.Status),
			truncateAndPad(p.Name, nameWidth),
			truncateAndPad(p.System, systemWidth),
		)
		if p.DurationSeconds != nil {
			line += "  " + formatDuration(*p.DurationSeconds)
		}
		sb.WriteString(pal.Status(p.Status, strings.TrimRight(line, " ")))
		sb.WriteByte('\n')

		if p.Status == report.Failed && p.Log != nil && opts.LogLines > 0 {
			writeExcerpt(&sb, p.Log, opts.LogLines, pal)
		}
	}
	if len(r.Packages) > 0 {
		sb.WriteByte('\n')
	}

	s := r.Summary
	totals := fmt.Sprintf("%d packages: %d passed, %d failed, %d pending", s.Total, s.Passed, s.Failed, s.Pending)
	if s.Total > 0 {
		totals += fmt.Sprintf(" (%.1f%% success rate)", 100*float64(s.Passed)/float64(s.Total))
	}
	sb.WriteString(pal.Title(totals))
	sb.WriteByte('\n')
	return sb.String()
}

func writeExcerpt(sb *strings.Builder, entry *report.LogEntry, n int, pal palette) {
	lines := entry.Lines
	hidden := 0
	if len(lines) > n {
		hidden = len(lines) - n
		lines = lines[:n]
	}
	for _, l := range lines {
		sb.WriteString("      ")
		sb.WriteString(pal.Muted(truncate(l, maxLineWidth)))
		sb.WriteByte('\n')
	}
	if hidden > 0 {
		fmt.Fprintf(sb, "      … %d more lines\n", hidden)
	}
	if entry.Truncated {
		sb.WriteString("      [log truncated by remote service]\n")
	}
}

const maxNameWidth = 48

func columnWidths(pkgs []report.PackageBuild) (name, system int) {
	for _, p := range pkgs {
		name = max(name, visualWidth(p.Name))
		system = max(system, visualWidth(p.System))
	}
	return min(name, maxNameWidth), min(system, maxNameWidth)
}

func shortCommit(id string) string {
	if id == "" {
		return "(unknown commit)"
	}
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func formatDuration(secs float64) string {
	if secs < 1 {
		return "<1s"
	}
	return time.Duration(secs * float64(time.Second)).Round(time.Second).String()
}

// marshal encodes v as indented JSON. The report types hold only strings,
// numbers and booleans, so encoding cannot fail in practice; should it ever,
// the error itself is returned as JSON.
func marshal(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		b, _ = json.Marshal(map[string]string{"error": err.Error()})
	}
	return string(b) + "\n"
}
