package garnix

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"garnix-insights/src/failure"
	"garnix-insights/src/report"
	"garnix-insights/src/sanitize"
)

// mapStatus normalizes a Garnix build status. Cancelled and timed-out builds
// did not produce a result, so they count as failed. Unrecognised statuses
// report false and count as pending.
func mapStatus(s string) (report.Status, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "success", "succeeded", "passed":
		return report.Passed, true
	case "failed", "failure", "cancelled", "canceled", "timedout", "timed_out":
		return report.Failed, true
	case "pending", "queued", "running", "building":
		return report.Pending, true
	default:
		return report.Pending, false
	}
}

// assemble converts a decoded build-status payload into a BuildReport. It
// is pure apart from logging a summary mismatch.
func assemble(commitID string, resp *buildStatusResponse, log *slog.Logger) (*report.BuildReport, error) {
	packages := make([]report.PackageBuild, 0, len(resp.Builds))
	for i, b := range resp.Builds {
		status, ok := mapStatus(b.Status)
		if !ok {
			log.Warn("unknown build status; counting it as pending",
				"field", fmt.Sprintf("builds.%d.status", i),
				"package", b.Package,
				"status", b.Status,
			)
		}

		duration, err := buildDuration(i, b.StartTime, b.EndTime)
		if err != nil {
			return nil, err
		}

		packages = append(packages, report.PackageBuild{
			Name:            b.Package,
			Status:          status,
			System:          deref(b.System),
			DurationSeconds: duration,
			BuildID:         b.ID,
			DerivationPath:  deref(b.DrvPath),
		})
	}

	id := commitID
	if s := resp.Summary; s != nil && s.GitCommit != "" && strings.HasPrefix(s.GitCommit, commitID) {
		id = s.GitCommit
	}

	r := report.New(id, packages)

	if s := resp.Summary; s != nil {
		repo := report.Repository{Owner: s.RepoOwner, Name: s.RepoName, Branch: s.Branch}
		if !repo.IsZero() {
			r.Repository = &repo
		}

		remoteFailed := s.Failed + s.Cancelled
		if s.Succeeded != r.Summary.Passed || remoteFailed != r.Summary.Failed || s.Pending != r.Summary.Pending {
			log.Warn("remote build summary disagrees with build list; using build list",
				"commit", id,
				"remote_succeeded", s.Succeeded,
				"remote_failed", remoteFailed,
				"remote_pending", s.Pending,
				"passed", r.Summary.Passed,
				"failed", r.Summary.Failed,
				"pending", r.Summary.Pending,
			)
		}
	}

	return r, nil
}

// buildDuration returns end minus start in seconds, or nil when either end
// is missing or the build ended before it started.
func buildDuration(i int, start, end *string) (*float64, error) {
	startAt, err := parseTimestamp(fmt.Sprintf("builds.%d.start_time", i), deref(start))
	if err != nil {
		return nil, err
	}
	endAt, err := parseTimestamp(fmt.Sprintf("builds.%d.end_time", i), deref(end))
	if err != nil {
		return nil, err
	}
	if startAt.IsZero() || endAt.IsZero() || endAt.Before(startAt) {
		return nil, nil
	}
	secs := endAt.Sub(startAt).Seconds()
	return &secs, nil
}

func parseTimestamp(field, v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		fe := failure.Parse(field, fmt.Sprintf("timestamp %q is not RFC 3339", v))
		fe.Err = err
		return time.Time{}, fe
	}
	return t, nil
}

// assembleLog sanitizes a log payload into a LogEntry capped at MaxLogLines.
func assembleLog(buildID string, resp *buildLogsResponse) *report.LogEntry {
	entry := &report.LogEntry{
		BuildID:   buildID,
		Lines:     []string{},
		Truncated: !resp.Finished,
	}
	for _, l := range resp.Logs {
		lines := sanitize.Lines(l.LogMessage)
		if len(lines) == 0 {
			lines = []string{""}
		}
		for _, line := range lines {
			if len(entry.Lines) == MaxLogLines {
				entry.Truncated = true
				return entry
			}
			entry.Lines = append(entry.Lines, line)
		}
	}
	return entry
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
