package render

import (
	"fmt"
	"strings"

	"garnix-insights/src/report"
)

// packageLog is the structured form of one package's log.
type packageLog struct {
	Package   string        `json:"package"`
	System    string        `json:"system,omitempty"`
	Status    report.Status `json:"status"`
	BuildID   string        `json:"build_id"`
	Lines     []string      `json:"lines"`
	Truncated bool          `json:"truncated"`
}

type logsDocument struct {
	CommitID string       `json:"commit_id"`
	Logs     []packageLog `json:"logs"`
}

// RenderLogs formats the logs attached to a report's packages. Packages
// without a log are skipped; in human format every line is shown.
func RenderLogs(r *report.BuildReport, f Format, opts Options) string {
	if r == nil {
		r = report.New("", nil)
	}

	var logs []packageLog
	for _, p := range r.Packages {
		if p.Log == nil {
			continue
		}
		lines := p.Log.Lines
		if lines == nil {
			lines = []string{}
		}
		logs = append(logs, packageLog{
			Package:   p.Name,
			System:    p.System,
			Status:    p.Status,
			BuildID:   p.Log.BuildID,
			Lines:     lines,
			Truncated: p.Log.Truncated,
		})
	}

	switch f {
	case Structured:
		if logs == nil {
			logs = []packageLog{}
		}
		return marshal(logsDocument{CommitID: r.Summary.CommitID, Logs: logs})
	case Plain:
		var sb strings.Builder
		for _, l := range logs {
			for _, line := range l.Lines {
				sb.WriteString(plainField(l.Package))
				sb.WriteByte('\t')
				sb.WriteString(line)
				sb.WriteByte('\n')
			}
		}
		return sb.String()
	default:
		pal := newPalette(opts.Color)
		var sb strings.Builder
		if len(logs) == 0 {
			fmt.Fprintf(&sb, "No logs to show for %s.\n", shortCommit(r.Summary.CommitID))
			return sb.String()
		}
		for i, l := range logs {
			if i > 0 {
				sb.WriteByte('\n')
			}
			header := fmt.Sprintf("%s %s", glyph(l.Status), l.Package)
			if l.System != "" {
				header += " (" + l.System + ")"
			}
			sb.WriteString(pal.Status(l.Status, header))
			sb.WriteString(pal.Muted("  build " + l.BuildID))
			sb.WriteByte('\n')
			writeLines(&sb, l.Lines, l.Truncated, pal)
		}
		return sb.String()
	}
}

// RenderLog formats a single build log.
func RenderLog(entry *report.LogEntry, f Format, opts Options) string {
	if entry == nil {
		entry = &report.LogEntry{}
	}
	switch f {
	case Structured:
		out := *entry
		if out.Lines == nil {
			out.Lines = []string{}
		}
		return marshal(out)
	case Plain:
		if len(entry.Lines) == 0 {
			return ""
		}
		return strings.Join(entry.Lines, "\n") + "\n"
	default:
		pal := newPalette(opts.Color)
		var sb strings.Builder
		sb.WriteString(pal.Title("Log for build " + entry.BuildID))
		sb.WriteByte('\n')
		writeLines(&sb, entry.Lines, entry.Truncated, pal)
		return sb.String()
	}
}

func writeLines(sb *strings.Builder, lines []string, truncated bool, pal palette) {
	if len(lines) == 0 {
		sb.WriteString(pal.Muted("  (empty log)"))
		sb.WriteByte('\n')
	}
	for _, line := range lines {
		sb.WriteString("  ")
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	if truncated {
		sb.WriteString("  [log truncated by remote service]\n")
	}
}
