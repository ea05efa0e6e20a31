package vercraft

import (
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/samber/lo"
)

// ReleaseBranch is a branch named release/<major>.<minor>.<patch|x>.
type ReleaseBranch struct {
	Version SemVer
	Branch  *Branch
}

func (r *ReleaseBranch) String() string {
	return fmt.Sprintf("%s (%s)", r.Branch.Name(), r.Version)
}

// newReleaseBranch returns nil when the branch name does not follow the
// release naming convention.
func newReleaseBranch(branch *Branch, remote string) *ReleaseBranch {
	name := branch.ShortName(remote)
	if !strings.HasPrefix(name, releasePrefix) {
		return nil
	}
	version, err := ParseSemVer(name)
	if err != nil {
		return nil
	}
	return &ReleaseBranch{Version: version, Branch: branch}
}

// Registry holds every release branch known locally or on the remote. It is
// owned by one calculation and only grows through created releases.
type Registry struct {
	remote   string
	logger   *slog.Logger
	branches []*ReleaseBranch
}

// DiscoverReleases lists local and remote release branches. When both
// exist for the same name the local one is used; diverging histories are
// reported as a warning.
func DiscoverReleases(repo *git.Repository, cfg Config, logger *slog.Logger) (*Registry, error) {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	refs, err := repo.References()
	if err != nil {
		return nil, fmt.Errorf("listing references: %w", err)
	}

	remotePrefix := "refs/remotes/" + cfg.Remote + "/"
	var local, remote []*ReleaseBranch
	err = refs.ForEach(func(ref *plumbing.Reference) error {
		if ref.Type() != plumbing.HashReference {
			return nil
		}
		name := ref.Name()
		isLocal := name.IsBranch()
		isRemote := name.IsRemote() && strings.HasPrefix(name.String(), remotePrefix)
		if !isLocal && !isRemote {
			return nil
		}
		if !strings.HasPrefix(shortBranchName(name, cfg.Remote), releasePrefix) {
			return nil
		}

		branch, err := NewBranch(repo, ref)
		if err != nil {
			return err
		}
		release := newReleaseBranch(branch, cfg.Remote)
		if release == nil {
			logger.Debug("ignoring malformed release branch", "ref", name)
			return nil
		}
		if isLocal {
			local = append(local, release)
		} else {
			remote = append(remote, release)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discovering release branches: %w", err)
	}

	return newRegistry(cfg.Remote, logger, local, remote), nil
}

func newRegistry(remote string, logger *slog.Logger, local, remoteBranches []*ReleaseBranch) *Registry {
	grouped := lo.GroupBy(append(local, remoteBranches...), func(r *ReleaseBranch) string {
		return r.Branch.ShortName(remote)
	})

	branches := make([]*ReleaseBranch, 0, len(grouped))
	for name, group := range grouped {
		chosen := group[0]
		for _, other := range group[1:] {
			if chosen.Branch.Tip().Hash != other.Branch.Tip().Hash {
				logger.Warn("local and remote release branches differ, using the local one",
					"branch", name,
					"local", chosen.Branch.Tip().Hash.String(),
					"remote", other.Branch.Tip().Hash.String())
			}
		}
		branches = append(branches, chosen)
	}

	r := &Registry{remote: remote, logger: logger, branches: branches}
	r.sort()
	return r
}

func (r *Registry) sort() {
	sort.SliceStable(r.branches, func(i, j int) bool {
		if c := r.branches[i].Version.Compare(r.branches[j].Version); c != 0 {
			return c < 0
		}
		return r.branches[i].Branch.Name() < r.branches[j].Branch.Name()
	})
}

// Branches returns a copy of the release branches in ascending version order.
func (r *Registry) Branches() []*ReleaseBranch {
	return slices.Clone(r.branches)
}

// Latest returns the release with the highest version, or nil.
func (r *Registry) Latest() *ReleaseBranch {
	if len(r.branches) == 0 {
		return nil
	}
	return lo.MaxBy(r.branches, func(a, b *ReleaseBranch) bool {
		return a.Version.Compare(b.Version) > 0
	})
}

// LatestForCommit walks branch from commit towards the root and returns the
// newest release whose base commit on branch is met first. It returns nil
// when no release was cut at or before commit.
func (r *Registry) LatestForCommit(commit *object.Commit, branch *Branch) (*ReleaseBranch, error) {
	start := branch.indexOf(commit.Hash)
	if start < 0 {
		return nil, fmt.Errorf("%w: %s in %s", ErrCommitNotFound, commit.Hash, branch.Name())
	}

	byBase := make(map[plumbing.Hash][]*ReleaseBranch)
	for _, release := range r.branches {
		if base := release.Branch.IntersectionWithMain(branch); base != nil {
			byBase[base.Hash] = append(byBase[base.Hash], release)
		}
	}

	for _, c := range branch.Commits()[start:] {
		if candidates, ok := byBase[c.Hash]; ok {
			return lo.MaxBy(candidates, func(a, b *ReleaseBranch) bool {
				return a.Version.Compare(b.Version) > 0
			}), nil
		}
	}
	return nil, nil
}

// Find returns the release backed by branch, or nil.
func (r *Registry) Find(branch *Branch) *ReleaseBranch {
	release, _ := lo.Find(r.branches, func(rb *ReleaseBranch) bool {
		return rb.Branch.Equal(branch)
	})
	return release
}

// IsReleaseBranch reports whether branch is one of the registered releases.
func (r *Registry) IsReleaseBranch(branch *Branch) bool {
	return r.Find(branch) != nil
}

// HasVersion reports whether a release with the version exists, either by
// its parsed version or by the release/<major>.<minor>.x name it would use.
func (r *Registry) HasVersion(v SemVer) bool {
	return r.FindVersion(v) != nil
}

// FindVersion returns the release HasVersion matches, or nil.
func (r *Registry) FindVersion(v SemVer) *ReleaseBranch {
	branchName := releasePrefix + v.BranchName()
	release, _ := lo.Find(r.branches, func(rb *ReleaseBranch) bool {
		return rb.Version.Equal(v) || rb.Branch.ShortName(r.remote) == branchName
	})
	return release
}

// StartingAt returns the releases whose base commit on main is hash.
func (r *Registry) StartingAt(hash plumbing.Hash, main *Branch) []*ReleaseBranch {
	return lo.Filter(r.branches, func(rb *ReleaseBranch, _ int) bool {
		base := rb.Branch.IntersectionWithMain(main)
		return base != nil && base.Hash == hash
	})
}

func (r *Registry) add(release *ReleaseBranch) {
	r.logger.Debug("registered release branch", "branch", release.Branch.Name().String(), "version", release.Version.String())
	r.branches = append(r.branches, release)
	r.sort()
}
