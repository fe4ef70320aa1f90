package webhook

import "regexp"

// Decision reasons.
const (
	ReasonIgnoredEventType = "ignored-event-type"
	ReasonNoBranchFilter   = "no-branch-filter"
	ReasonBranchUnresolved = "branch-unresolved"
	ReasonBranchMismatch   = "branch-mismatch"
	ReasonBranchMatch      = "branch-match"
)

// EventPush is the only event type that triggers a script.
const EventPush = "push"

var branchRefPattern = regexp.MustCompile(`/heads/(.+)$`)

// Decision is the outcome of ShouldRun.
type Decision struct {
	Run    bool
	Reason string
}

// ShouldRun decides whether a verified delivery triggers the repository script.
// branch is the repository's configured branch filter, empty for none.
// A ref the branch cannot be extracted from never runs.
func ShouldRun(eventType, ref, branch string) Decision {
	if eventType != EventPush {
		return Decision{Run: false, Reason: ReasonIgnoredEventType}
	}
	if branch == "" {
		return Decision{Run: true, Reason: ReasonNoBranchFilter}
	}

	pushed, ok := BranchFromRef(ref)
	if !ok {
		return Decision{Run: false, Reason: ReasonBranchUnresolved}
	}
	if pushed != branch {
		return Decision{Run: false, Reason: ReasonBranchMismatch}
	}
	return Decision{Run: true, Reason: ReasonBranchMatch}
}

// BranchFromRef extracts the branch name from a ref such as
// "refs/heads/feature/login". Branch names may contain slashes.
func BranchFromRef(ref string) (string, bool) {
	m := branchRefPattern.FindStringSubmatch(ref)
	if m == nil {
		return "", false
	}
	return m[1], true
}
