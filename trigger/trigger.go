// Package trigger models the events that start pipeline runs and the
// filters that decide whether a run starts at all.
package trigger

import (
	"fmt"
	"path"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// Event describes what fired the pipeline: a ref update on a repository.
type Event struct {
	// Ref is the full reference name (e.g. "refs/heads/main").
	Ref string

	// Branch is the short branch name, empty for detached heads.
	Branch string

	// Commit is the commit hash the ref points at.
	Commit string
}

// Filter gates pipeline runs on the triggering branch.
type Filter struct {
	// Branches lists the branch names a run may start for. Entries may
	// use path.Match glob syntax ("release/*"). Empty means all
	// branches match.
	Branches []string `json:"branches,omitempty" yaml:"branches,omitempty"`
}

// Match reports whether the event passes the filter.
func (f Filter) Match(event Event) bool {
	if len(f.Branches) == 0 {
		return true
	}
	for _, pattern := range f.Branches {
		if pattern == event.Branch {
			return true
		}
		if ok, err := path.Match(pattern, event.Branch); err == nil && ok {
			return true
		}
	}
	return false
}

// FromRepository resolves an Event from the HEAD of the git repository at
// the given path.
func FromRepository(repoPath string) (Event, error) {
	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		return Event{}, fmt.Errorf("opening repository at %q: %w", repoPath, err)
	}

	head, err := repo.Head()
	if err != nil {
		return Event{}, fmt.Errorf("resolving HEAD: %w", err)
	}

	event := Event{
		Ref:    head.Name().String(),
		Commit: head.Hash().String(),
	}
	if head.Name().IsBranch() {
		event.Branch = head.Name().Short()
	}
	return event, nil
}

// ForBranch builds an Event for the named branch, for callers that know
// the branch without a repository at hand (CI environments, tests).
func ForBranch(branch string) Event {
	return Event{
		Ref:    plumbing.NewBranchReferenceName(branch).String(),
		Branch: branch,
	}
}
