package vercraft

import (
	"context"
	"fmt"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// CreateRelease cuts a release from the default main branch.
//
// MAJOR and MINOR releases create the branch release/<major>.<minor>.x and
// the annotated tag v<major>.<minor>.<patch> at the checked out commit. The
// next version bumps the latest release, or the version calculated for the
// commit when there is none.
//
// PATCH releases create no branch: the latest release branch (main when
// there is none) is checked out and its tip is tagged with the version
// calculated for it. The returned version is the tagged one, so after two
// fixes on release/1.1.x it is 1.1.2. When that tag already exists nothing
// is checked out or tagged and the existing version is returned.
func (e *Engine) CreateRelease(ctx context.Context, kind BumpKind) (SemVer, error) {
	calc, err := e.Calculator()
	if err != nil {
		return SemVer{}, err
	}
	if err := e.checkReleasable(kind.String(), calc.Head()); err != nil {
		return SemVer{}, err
	}

	latest := e.releases.Latest()
	if kind == Patch {
		return e.createPatchRelease(ctx, latest)
	}

	var next SemVer
	if latest != nil {
		next = latest.Version.NextVersion(kind)
	} else {
		current, err := calc.Calc()
		if err != nil {
			return SemVer{}, fmt.Errorf("calculating current version: %w", err)
		}
		next = current.NextVersion(kind)
	}

	if err := e.createBranchAndTag(ctx, next, calc.Head()); err != nil {
		return SemVer{}, err
	}
	return next, nil
}

// CreateReleaseVersion cuts a release with an explicit version. Asking for a
// version that already exists logs a warning and changes nothing, except
// that a release branch left without its tag by an interrupted run gets the
// missing tag.
func (e *Engine) CreateReleaseVersion(ctx context.Context, version SemVer) (SemVer, error) {
	version = NewSemVer(version.Major, version.Minor, version.Patch)
	if existing := e.releases.FindVersion(version); existing != nil {
		recovered, err := e.recoverReleaseTag(ctx, existing, version)
		if err != nil {
			return SemVer{}, err
		}
		if !recovered {
			e.logger.Warn("release already exists, no branch or tag created",
				"version", version.String(),
				"branch", releasePrefix+version.BranchName())
		}
		return version, nil
	}

	calc, err := e.Calculator()
	if err != nil {
		return SemVer{}, err
	}
	if err := e.checkReleasable(version.String(), calc.Head()); err != nil {
		return SemVer{}, err
	}

	if err := e.createBranchAndTag(ctx, version, calc.Head()); err != nil {
		return SemVer{}, err
	}
	return version, nil
}

func (e *Engine) checkReleasable(what string, head *object.Commit) error {
	if !e.current.Equal(e.main) {
		return fmt.Errorf("%w: %s release requested on [%s], but releases create a branch and tag from [%s]",
			ErrNotOnMain, what, e.current.Name(), e.main.Name())
	}
	if existing := e.releases.StartingAt(head.Hash, e.main); len(existing) > 0 {
		return fmt.Errorf("%w: %s is the base of %s", ErrReleaseAtCommit, head.Hash, existing[0].Branch.Name())
	}
	return nil
}

func (e *Engine) createPatchRelease(ctx context.Context, latest *ReleaseBranch) (SemVer, error) {
	target := e.main
	if latest != nil {
		target = latest.Branch
	}
	e.logger.Warn("PATCH release selected, no release branch will be created; tagging the tip of the latest release instead",
		"branch", target.Name())

	calc, err := NewCalculator(e.config, e.releases, e.main, target, target.Tip())
	if err != nil {
		return SemVer{}, err
	}
	version, err := calc.Calc()
	if err != nil {
		return SemVer{}, fmt.Errorf("calculating version of %s: %w", target.Name(), err)
	}
	version = NewSemVer(version.Major, version.Minor, version.Patch)

	exists, err := tagExists(e.repo, releaseTagName(version))
	if err != nil {
		return SemVer{}, err
	}
	if exists {
		e.logger.Warn("no commits to release since the last tag, nothing created",
			"branch", target.Name(),
			"tag", releaseTagName(version))
		return version, nil
	}

	dirty, err := workTreeIsDirty(e.repo)
	if err != nil {
		return SemVer{}, err
	}
	if dirty {
		return SemVer{}, fmt.Errorf("%w: cannot check out %s", ErrDirtyWorktree, target.Name())
	}
	if err := checkoutRef(e.repo, target.Name()); err != nil {
		return SemVer{}, err
	}
	e.current = target

	tag, err := createReleaseTag(e.repo, version, calc.Head().Hash, e.tagger)
	if err != nil {
		return SemVer{}, err
	}
	e.logger.Info("created release tag", "tag", tag.Name().Short(), "commit", calc.Head().Hash.String(), "version", version.String())

	if err := e.pushRefs(ctx, tag.Name()); err != nil {
		return SemVer{}, err
	}
	return version, nil
}

// recoverReleaseTag tags a release branch that an interrupted run left
// without its tag. It only acts on the main branch, when the branch has no
// commits of its own and no tag points at its base yet.
func (e *Engine) recoverReleaseTag(ctx context.Context, existing *ReleaseBranch, version SemVer) (bool, error) {
	if !e.current.Equal(e.main) || existing.Branch.ShortName(e.config.Remote) != releasePrefix+version.BranchName() {
		return false, nil
	}
	base := existing.Branch.IntersectionWithMain(e.main)
	if base == nil || base.Hash != existing.Branch.Tip().Hash {
		return false, nil
	}

	exists, err := tagExists(e.repo, releaseTagName(version))
	if err != nil || exists {
		return false, err
	}
	tagged, err := hasTagAt(e.repo, base.Hash)
	if err != nil || tagged {
		return false, err
	}

	tag, err := createReleaseTag(e.repo, version, base.Hash, e.tagger)
	if err != nil {
		return false, err
	}
	e.logger.Warn("release branch had no tag, created the missing tag",
		"branch", existing.Branch.Name().String(),
		"tag", tag.Name().Short())

	refs := []plumbing.ReferenceName{tag.Name()}
	if existing.Branch.Name().IsBranch() {
		refs = append(refs, existing.Branch.Name())
	}
	return true, e.pushRefs(ctx, refs...)
}

// createBranchAndTag is not atomic: if it stops after the branch, re-running
// CreateReleaseVersion with the same version adds the tag.
func (e *Engine) createBranchAndTag(ctx context.Context, version SemVer, head *object.Commit) error {
	ref, err := createBranchRef(e.repo, releasePrefix+version.BranchName(), head.Hash)
	if err != nil {
		return err
	}
	branch, err := NewBranch(e.repo, ref)
	if err != nil {
		return err
	}
	e.releases.add(&ReleaseBranch{Version: version, Branch: branch})
	e.logger.Info("created release branch", "branch", ref.Name().Short(), "commit", head.Hash.String())

	tag, err := createReleaseTag(e.repo, version, head.Hash, e.tagger)
	if err != nil {
		return err
	}
	e.logger.Info("created release tag", "tag", tag.Name().Short(), "version", version.String())

	return e.pushRefs(ctx, ref.Name(), tag.Name())
}

func (e *Engine) pushRefs(ctx context.Context, refs ...plumbing.ReferenceName) error {
	if !e.push {
		return nil
	}
	if err := pushRefs(ctx, e.repo, e.config.Remote, e.auth, refs...); err != nil {
		return err
	}
	e.logger.Info("pushed release refs", "remote", e.config.Remote, "refs", refs)
	return nil
}
