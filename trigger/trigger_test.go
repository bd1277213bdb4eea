package trigger_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlecRosenbaum/GearGen/trigger"
)

func TestFilterMatch(t *testing.T) {
	tests := []struct {
		name     string
		branches []string
		branch   string
		want     bool
	}{
		{"empty filter matches everything", nil, "feature/x", true},
		{"exact match", []string{"main"}, "main", true},
		{"exact mismatch", []string{"main"}, "feature/x", false},
		{"glob match", []string{"release/*"}, "release/1.2", true},
		{"glob mismatch", []string{"release/*"}, "main", false},
		{"any of several", []string{"main", "release/*"}, "main", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := trigger.Filter{Branches: tt.branches}
			assert.Equal(t, tt.want, f.Match(trigger.ForBranch(tt.branch)))
		})
	}
}

func TestForBranch(t *testing.T) {
	event := trigger.ForBranch("main")
	assert.Equal(t, "refs/heads/main", event.Ref)
	assert.Equal(t, "main", event.Branch)
}

func TestFromRepository(t *testing.T) {
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "README"), []byte("gears"), 0o644))

	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add("README")
	require.NoError(t, err)
	hash, err := wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@example.com", When: time.Now()},
	})
	require.NoError(t, err)

	event, err := trigger.FromRepository(dir)
	require.NoError(t, err)
	assert.Equal(t, hash.String(), event.Commit)
	assert.NotEmpty(t, event.Branch)
	assert.Contains(t, event.Ref, "refs/heads/")
}

func TestFromRepositoryMissing(t *testing.T) {
	_, err := trigger.FromRepository(t.TempDir())
	assert.Error(t, err)
}
