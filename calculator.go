package vercraft

import (
	"fmt"
	"path"
	"strings"
	"unicode"

	"github.com/go-git/go-git/v5/plumbing/object"
)

const branchTagLength = 10

// BranchKind classifies the branch a version is calculated for.
type BranchKind int

const (
	KindMain BranchKind = iota
	KindRelease
	KindOther
)

func (k BranchKind) String() string {
	switch k {
	case KindMain:
		return "main"
	case KindRelease:
		return "release"
	default:
		return "other"
	}
}

// Calculator derives the version of one commit on one branch.
type Calculator struct {
	config   Config
	releases *Registry
	main     *Branch
	current  *Branch
	head     *object.Commit
	kind     BranchKind
}

// NewCalculator resolves the effective HEAD and classifies current once.
func NewCalculator(cfg Config, releases *Registry, main, current *Branch, head *object.Commit) (*Calculator, error) {
	effective, err := ResolveEffectiveHead(head, current)
	if err != nil {
		return nil, err
	}

	c := &Calculator{
		config:   cfg.withDefaults(),
		releases: releases,
		main:     main,
		current:  current,
		head:     effective,
	}
	switch {
	case current.Equal(main):
		c.kind = KindMain
	case releases.IsReleaseBranch(current):
		c.kind = KindRelease
	default:
		c.kind = KindOther
	}
	return c, nil
}

// ResolveEffectiveHead replaces a merge commit that is not part of branch
// with its second parent. CI systems check out such synthetic merges to
// test pull requests; the second parent is the tip of the source branch.
func ResolveEffectiveHead(head *object.Commit, branch *Branch) (*object.Commit, error) {
	if head.NumParents() <= 1 || branch.Contains(head.Hash) {
		return head, nil
	}
	parent, err := head.Parent(1)
	if err != nil {
		return nil, fmt.Errorf("loading second parent of merge commit %s: %w", head.Hash, err)
	}
	return parent, nil
}

// Head returns the effective HEAD commit.
func (c *Calculator) Head() *object.Commit {
	return c.head
}

// Kind returns the classification of the current branch.
func (c *Calculator) Kind() BranchKind {
	return c.kind
}

// Calc computes the version for the effective HEAD.
func (c *Calculator) Calc() (SemVer, error) {
	switch c.kind {
	case KindMain:
		return c.calcOnMain()
	case KindRelease:
		return c.calcOnRelease()
	default:
		return c.calcOnOther()
	}
}

// calcOnMain bumps the minor version of the latest release and adds the
// number of commits made on main since that release was branched off.
// Without releases the version is 0.0.<commits since the root commit>.
func (c *Calculator) calcOnMain() (SemVer, error) {
	latest, err := c.releases.LatestForCommit(c.head, c.current)
	if err != nil {
		return SemVer{}, fmt.Errorf("finding latest release: %w", err)
	}
	if latest == nil {
		latest = c.releases.Latest()
	}

	base := c.current.Oldest()
	if latest != nil {
		if b := latest.Branch.IntersectionWithMain(c.current); b != nil {
			base = b
		}
	}

	distance, err := c.current.DistanceBetweenCommits(base, c.head)
	if err != nil {
		return SemVer{}, err
	}

	if latest == nil {
		return NewSemVer(0, 0, distance), nil
	}
	return latest.Version.
		NextVersion(Minor).
		IncrementPatch(distance).
		WithPostfix(fmt.Sprintf("%s+%s", c.config.DefaultMainBranch, shortHash(c.head))), nil
}

func (c *Calculator) calcOnRelease() (SemVer, error) {
	release := c.releases.Find(c.current)
	if release == nil {
		return SemVer{}, fmt.Errorf("%w: %s", ErrNotInRegistry, c.current.Name())
	}

	distance, err := c.distanceFromMain()
	if err != nil {
		return SemVer{}, err
	}
	return release.Version.IncrementPatch(distance), nil
}

// calcOnOther renders <date>-<branch>-<commits since main>-<hash>.
func (c *Calculator) calcOnOther() (SemVer, error) {
	distance, err := c.distanceFromMain()
	if err != nil {
		return SemVer{}, err
	}

	date := c.head.Committer.When.UTC().Format("2006-01-02")
	prefix := date + "-" + branchTag(c.current.ShortName(c.config.Remote))

	return SemVer{Major: Absent, Minor: Absent, Patch: distance}.
		WithPrefix(prefix).
		WithPostfix(shortHash(c.head)), nil
}

func (c *Calculator) distanceFromMain() (int, error) {
	base := c.current.IntersectionWithMain(c.main)
	if base == nil {
		return 0, fmt.Errorf("%w: %s and %s", ErrNoCommonHistory, c.main.Name(), c.current.Name())
	}
	return c.current.DistanceBetweenCommits(base, c.head)
}

// branchTag keeps the alphanumeric characters of the last path segment,
// at most ten of them.
func branchTag(name string) string {
	tag := strings.Map(func(r rune) rune {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return r
		}
		return -1
	}, path.Base(name))
	if len(tag) > branchTagLength {
		tag = tag[:branchTagLength]
	}
	return tag
}
