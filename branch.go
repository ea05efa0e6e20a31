package vercraft

import (
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Branch is a named reference together with its history, newest commit first.
type Branch struct {
	ref     *plumbing.Reference
	commits []*object.Commit
	index   map[plumbing.Hash]int
}

// NewBranch reads the full history reachable from ref.
func NewBranch(repo *git.Repository, ref *plumbing.Reference) (*Branch, error) {
	iter, err := repo.Log(&git.LogOptions{
		From:  ref.Hash(),
		Order: git.LogOrderCommitterTime,
	})
	if err != nil {
		return nil, fmt.Errorf("reading log of %s: %w", ref.Name(), err)
	}
	defer iter.Close()

	var commits []*object.Commit
	err = iter.ForEach(func(c *object.Commit) error {
		commits = append(commits, c)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking log of %s: %w", ref.Name(), err)
	}

	return newBranchFromCommits(ref, commits), nil
}

func newBranchFromCommits(ref *plumbing.Reference, commits []*object.Commit) *Branch {
	index := make(map[plumbing.Hash]int, len(commits))
	for i, c := range commits {
		if _, seen := index[c.Hash]; !seen {
			index[c.Hash] = i
		}
	}
	return &Branch{ref: ref, commits: commits, index: index}
}

// Ref returns the reference the branch was read from.
func (b *Branch) Ref() *plumbing.Reference {
	return b.ref
}

// Name returns the full reference name, e.g. refs/remotes/origin/release/1.1.x.
func (b *Branch) Name() plumbing.ReferenceName {
	return b.ref.Name()
}

// ShortName strips refs/heads/ or refs/remotes/<remote>/ from the name.
func (b *Branch) ShortName(remote string) string {
	return shortBranchName(b.ref.Name(), remote)
}

// Commits returns the history, newest first.
func (b *Branch) Commits() []*object.Commit {
	return b.commits
}

// Tip returns the newest commit, or nil for an empty history.
func (b *Branch) Tip() *object.Commit {
	if len(b.commits) == 0 {
		return nil
	}
	return b.commits[0]
}

// Oldest returns the root end of the history, or nil for an empty history.
func (b *Branch) Oldest() *object.Commit {
	if len(b.commits) == 0 {
		return nil
	}
	return b.commits[len(b.commits)-1]
}

// Contains reports whether hash is part of the branch history.
func (b *Branch) Contains(hash plumbing.Hash) bool {
	_, ok := b.index[hash]
	return ok
}

func (b *Branch) indexOf(hash plumbing.Hash) int {
	if i, ok := b.index[hash]; ok {
		return i
	}
	return -1
}

// Equal compares ref names and tips. Two refs with the same name but
// diverged histories are different branches.
func (b *Branch) Equal(other *Branch) bool {
	if b == nil || other == nil {
		return b == other
	}
	return b.ref.Name() == other.ref.Name() && b.ref.Hash() == other.ref.Hash()
}

// DistanceBetweenCommits counts the commits after start up to and including
// end. start must be older than end; DistanceBetweenCommits(c, c) is 0.
func (b *Branch) DistanceBetweenCommits(start, end *object.Commit) (int, error) {
	count := 0
	endSeen := false
	for _, c := range b.commits {
		if c.Hash == end.Hash {
			endSeen = true
		}
		if c.Hash == start.Hash {
			if !endSeen {
				return 0, fmt.Errorf("%w: %s comes after %s in %s",
					ErrCommitOrder, shortHash(start), shortHash(end), b.Name())
			}
			return count, nil
		}
		if endSeen {
			count++
		}
	}

	missing := start
	if !endSeen {
		missing = end
	}
	return 0, fmt.Errorf("%w: %s in %s", ErrCommitNotFound, missing.Hash, b.Name())
}

// IntersectionWithMain returns the last commit this branch shares with main
// before the first commit main does not have. When every commit is shared
// the tip is returned. The scan is linear and assumes the branch forked
// from main once; criss-cross merges are not handled.
func (b *Branch) IntersectionWithMain(main *Branch) *object.Commit {
	var last *object.Commit
	for i := len(b.commits) - 1; i >= 0; i-- {
		c := b.commits[i]
		if !main.Contains(c.Hash) {
			return last
		}
		last = c
	}
	return last
}

func shortBranchName(name plumbing.ReferenceName, remote string) string {
	full := name.String()
	if name.IsRemote() {
		return strings.TrimPrefix(full, "refs/remotes/"+remote+"/")
	}
	return name.Short()
}

func shortHash(c *object.Commit) string {
	return c.Hash.String()[:5]
}
