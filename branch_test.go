package vercraft

import (
	"fmt"
	"testing"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func fakeCommit(id int) *object.Commit {
	return &object.Commit{Hash: plumbing.NewHash(fmt.Sprintf("%040x", id))}
}

// fakeBranch builds a branch from commits given oldest first.
func fakeBranch(name string, oldestFirst ...*object.Commit) *Branch {
	commits := make([]*object.Commit, len(oldestFirst))
	for i, c := range oldestFirst {
		commits[len(oldestFirst)-1-i] = c
	}
	var tip plumbing.Hash
	if len(commits) > 0 {
		tip = commits[0].Hash
	}
	ref := plumbing.NewHashReference(plumbing.NewBranchReferenceName(name), tip)
	return newBranchFromCommits(ref, commits)
}

func TestDistanceBetweenCommits(t *testing.T) {
	c := []*object.Commit{fakeCommit(1), fakeCommit(2), fakeCommit(3), fakeCommit(4)}
	branch := fakeBranch("main", c...)

	t.Run("Root to tip", func(t *testing.T) {
		distance, err := branch.DistanceBetweenCommits(c[0], c[3])
		require.NoError(t, err)
		require.Equal(t, 3, distance)
	})

	t.Run("Same commit", func(t *testing.T) {
		distance, err := branch.DistanceBetweenCommits(c[2], c[2])
		require.NoError(t, err)
		require.Equal(t, 0, distance)
	})

	t.Run("Wrong order", func(t *testing.T) {
		_, err := branch.DistanceBetweenCommits(c[3], c[1])
		require.ErrorIs(t, err, ErrCommitOrder)
	})

	t.Run("Start missing", func(t *testing.T) {
		_, err := branch.DistanceBetweenCommits(fakeCommit(99), c[3])
		require.ErrorIs(t, err, ErrCommitNotFound)
	})

	t.Run("End missing", func(t *testing.T) {
		_, err := branch.DistanceBetweenCommits(c[0], fakeCommit(99))
		require.ErrorIs(t, err, ErrCommitNotFound)
	})
}

func TestIntersectionWithMain(t *testing.T) {
	root, a, b, c := fakeCommit(1), fakeCommit(2), fakeCommit(3), fakeCommit(4)
	x, y := fakeCommit(10), fakeCommit(11)

	main := fakeBranch("main", root, a, b, c)

	t.Run("Forked branch", func(t *testing.T) {
		feature := fakeBranch("feature/x", root, a, x, y)
		require.Equal(t, a.Hash, feature.IntersectionWithMain(main).Hash)
	})

	t.Run("Branch without own commits", func(t *testing.T) {
		release := fakeBranch("release/1.0.x", root, a, b)
		require.Equal(t, b.Hash, release.IntersectionWithMain(main).Hash)
	})

	t.Run("Main with itself", func(t *testing.T) {
		require.Equal(t, c.Hash, main.IntersectionWithMain(main).Hash)
	})

	t.Run("Unrelated history", func(t *testing.T) {
		orphan := fakeBranch("orphan", x, y)
		require.Nil(t, orphan.IntersectionWithMain(main))
	})
}

func TestBranchAccessors(t *testing.T) {
	root, tip := fakeCommit(1), fakeCommit(2)
	branch := fakeBranch("feature/a", root, tip)

	require.Equal(t, tip.Hash, branch.Tip().Hash)
	require.Equal(t, root.Hash, branch.Oldest().Hash)
	require.True(t, branch.Contains(root.Hash))
	require.False(t, branch.Contains(fakeCommit(3).Hash))
	require.Equal(t, "feature/a", branch.ShortName(DefaultRemote))

	empty := fakeBranch("empty")
	require.Nil(t, empty.Tip())
	require.Nil(t, empty.Oldest())
}

func TestBranchEqual(t *testing.T) {
	root, a, b := fakeCommit(1), fakeCommit(2), fakeCommit(3)

	require.True(t, fakeBranch("main", root, a).Equal(fakeBranch("main", root, a)))
	require.False(t, fakeBranch("main", root, a).Equal(fakeBranch("main", root, b)))
	require.False(t, fakeBranch("main", root, a).Equal(fakeBranch("other", root, a)))
	require.False(t, fakeBranch("main", root).Equal(nil))
}

func TestShortBranchName(t *testing.T) {
	tests := []struct {
		name     plumbing.ReferenceName
		expected string
	}{
		{plumbing.NewBranchReferenceName("release/1.1.x"), "release/1.1.x"},
		{plumbing.NewRemoteReferenceName("origin", "release/1.1.x"), "release/1.1.x"},
		{plumbing.NewRemoteReferenceName("origin", "main"), "main"},
	}
	for _, test := range tests {
		t.Run(test.name.String(), func(t *testing.T) {
			require.Equal(t, test.expected, shortBranchName(test.name, "origin"))
		})
	}
}

func TestDistanceProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 50).Draw(t, "commits")
		commits := make([]*object.Commit, n)
		for i := range commits {
			commits[i] = fakeCommit(i + 1)
		}
		branch := fakeBranch("main", commits...)

		i := rapid.IntRange(0, n-1).Draw(t, "start")
		j := rapid.IntRange(i, n-1).Draw(t, "end")

		distance, err := branch.DistanceBetweenCommits(commits[i], commits[j])
		if err != nil {
			t.Fatalf("distance %d..%d: %v", i, j, err)
		}
		if distance != j-i {
			t.Fatalf("distance %d..%d = %d, want %d", i, j, distance, j-i)
		}
		if i < j {
			if _, err := branch.DistanceBetweenCommits(commits[j], commits[i]); err == nil {
				t.Fatalf("reversed distance %d..%d did not fail", j, i)
			}
		}
	})
}
