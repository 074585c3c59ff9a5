// Package report holds the transport-agnostic domain model for one commit's
// Garnix builds. Values are built fresh for each request and never shared.
package report

import (
	"fmt"
	"strings"

	"garnix-insights/src/failure"
)

// Status is the normalized outcome of a package build.
type Status int

const (
	Pending Status = iota
	Passed
	Failed
)

func (s Status) String() string {
	switch s {
	case Passed:
		return "passed"
	case Failed:
		return "failed"
	default:
		return "pending"
	}
}

// MarshalText encodes the status as its lower-case name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText accepts the lower-case names produced by MarshalText.
func (s *Status) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "passed":
		*s = Passed
	case "failed":
		*s = Failed
	case "pending":
		*s = Pending
	default:
		return fmt.Errorf("unknown status %q", b)
	}
	return nil
}

// CommitBuildSummary holds the counts for one commit. Counts are always
// derived from the package list, see Summarize.
type CommitBuildSummary struct {
	CommitID  string `json:"commit_id"`
	Total     int    `json:"total"`
	Passed    int    `json:"passed"`
	Failed    int    `json:"failed"`
	Pending   int    `json:"pending"`
	AllPassed bool   `json:"all_passed"`
}

// LogEntry is the log of one package build.
type LogEntry struct {
	BuildID string   `json:"build_id"`
	Lines   []string `json:"lines"`
	// Truncated is set when the remote returned a partial log or the client
	// cut it at its line cap.
	Truncated bool `json:"truncated"`
}

// PackageBuild is the result of building one package on one system.
type PackageBuild struct {
	Name            string    `json:"name"`
	Status          Status    `json:"status"`
	System          string    `json:"system"`
	DurationSeconds *float64  `json:"duration_seconds,omitempty"`
	BuildID         string    `json:"build_id,omitempty"`
	DerivationPath  string    `json:"derivation_path,omitempty"`
	Log             *LogEntry `json:"log,omitempty"`
}

// Repository identifies where the commit lives, when the remote reports it.
type Repository struct {
	Owner  string `json:"owner,omitempty"`
	Name   string `json:"name,omitempty"`
	Branch string `json:"branch,omitempty"`
}

// IsZero reports whether no repository metadata is known.
func (r Repository) IsZero() bool {
	return r == Repository{}
}

// FullName returns "owner/name", or whichever part is known.
func (r Repository) FullName() string {
	switch {
	case r.Owner != "" && r.Name != "":
		return r.Owner + "/" + r.Name
	case r.Name != "":
		return r.Name
	default:
		return r.Owner
	}
}

// BuildReport is everything known about one commit's builds. Packages keep
// the order the remote service returned them in.
type BuildReport struct {
	Summary    CommitBuildSummary `json:"summary"`
	Packages   []PackageBuild     `json:"packages"`
	Repository *Repository        `json:"repository,omitempty"`
}

// New assembles a report, deriving the summary from packages.
func New(commitID string, packages []PackageBuild) *BuildReport {
	if packages == nil {
		packages = []PackageBuild{}
	}
	return &BuildReport{
		Summary:  Summarize(commitID, packages),
		Packages: packages,
	}
}

// Summarize counts package statuses. It is pure and deterministic.
func Summarize(commitID string, packages []PackageBuild) CommitBuildSummary {
	s := CommitBuildSummary{CommitID: commitID, Total: len(packages)}
	for _, p := range packages {
		switch p.Status {
		case Passed:
			s.Passed++
		case Failed:
			s.Failed++
		default:
			s.Pending++
		}
	}
	// A commit with no builds has nothing failing or outstanding.
	s.AllPassed = s.Failed == 0 && s.Pending == 0
	return s
}

// Validate checks the counts invariant against the package list. A mismatch
// has no remote cause, so it is reported as an internal failure.
func (r *BuildReport) Validate() error {
	if r == nil {
		return failure.New(failure.Internal, "nil build report")
	}
	want := Summarize(r.Summary.CommitID, r.Packages)
	if r.Summary != want {
		return failure.Newf(failure.Internal,
			"build summary %+v does not match package list %+v", r.Summary, want)
	}
	if r.Summary.Passed+r.Summary.Failed+r.Summary.Pending != r.Summary.Total {
		return failure.Newf(failure.Internal,
			"build summary counts do not add up to total %d", r.Summary.Total)
	}
	return nil
}

// FailedPackages returns pointers to failed packages, in report order, so
// callers can attach logs in place.
func (r *BuildReport) FailedPackages() []*PackageBuild {
	var out []*PackageBuild
	for i := range r.Packages {
		if r.Packages[i].Status == Failed {
			out = append(out, &r.Packages[i])
		}
	}
	return out
}

// PackagesWithBuildID returns pointers to every package that has a log reference.
func (r *BuildReport) PackagesWithBuildID() []*PackageBuild {
	var out []*PackageBuild
	for i := range r.Packages {
		if r.Packages[i].BuildID != "" {
			out = append(out, &r.Packages[i])
		}
	}
	return out
}

// Finished reports whether no package is still pending.
func (r *BuildReport) Finished() bool {
	return r.Summary.Pending == 0
}
