// This file contains code adapted from pulumictl (https://github.com/pulumi/pulumictl)
// which is licensed under the Apache License 2.0.

package vercraft

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/storage/filesystem"
)

// Environment variables consulted, in order, when HEAD is detached.
const (
	EnvGitLabBranch    = "CI_COMMIT_REF_NAME"
	EnvGitHubHeadRef   = "GITHUB_HEAD_REF"
	EnvBitbucketBranch = "BITBUCKET_BRANCH"
	EnvVercraftBranch  = "VERCRAFT_BRANCH"
)

var branchEnvFallbacks = []string{EnvGitLabBranch, EnvGitHubHeadRef, EnvBitbucketBranch, EnvVercraftBranch}

// OpenRepository opens a Git repository at the specified path
func OpenRepository(path string) (*git.Repository, error) {
	return git.PlainOpenWithOptions(path, &git.PlainOpenOptions{
		DetectDotGit:          true,
		EnableDotGitCommonDir: true,
	})
}

// CloseRepository releases file handles held by on-disk storage.
func CloseRepository(repo *git.Repository) {
	if c, ok := repo.Storer.(io.Closer); ok {
		_ = c.Close()
	}
}

// findBranch looks the name up in local branches first, then in the
// branches of the configured remote. It returns nil when neither exists.
func findBranch(repo *git.Repository, name, remote string) (*Branch, error) {
	candidates := []plumbing.ReferenceName{
		plumbing.NewBranchReferenceName(name),
		plumbing.NewRemoteReferenceName(remote, name),
	}
	for _, refName := range candidates {
		ref, err := repo.Reference(refName, true)
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", refName, err)
		}
		return NewBranch(repo, ref)
	}
	return nil, nil
}

// currentBranchName resolves the branch being processed. An explicit
// CheckoutBranch wins, then the checked out branch, then CI variables.
func currentBranchName(repo *git.Repository, cfg Config, logger *slog.Logger) (string, error) {
	if cfg.CheckoutBranch != "" {
		return cfg.CheckoutBranch, nil
	}

	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("resolving HEAD: %w", err)
	}
	if head.Name().IsBranch() {
		return head.Name().Short(), nil
	}

	logger.Warn("HEAD is detached, resolving branch name from CI environment",
		"variables", branchEnvFallbacks)
	for _, key := range branchEnvFallbacks {
		if name := os.Getenv(key); name != "" {
			logger.Debug("branch name taken from environment", "variable", key, "branch", name)
			return name, nil
		}
	}

	return "", fmt.Errorf("%w: set %s or pass the branch explicitly", ErrDetachedHead, EnvVercraftBranch)
}

func headCommit(repo *git.Repository) (*object.Commit, error) {
	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolving HEAD: %w", err)
	}
	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return nil, fmt.Errorf("getting commit object: %w", err)
	}
	return commit, nil
}

func fetchRemote(ctx context.Context, repo *git.Repository, remote string, auth transport.AuthMethod) error {
	err := repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: remote,
		RefSpecs: []config.RefSpec{
			config.RefSpec(fmt.Sprintf("+refs/heads/*:refs/remotes/%s/*", remote)),
		},
		Tags: git.AllTags,
		Auth: auth,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("fetching %s: %w", remote, err)
	}
	return nil
}

func pushRefs(ctx context.Context, repo *git.Repository, remote string, auth transport.AuthMethod, refs ...plumbing.ReferenceName) error {
	specs := make([]config.RefSpec, 0, len(refs))
	for _, ref := range refs {
		specs = append(specs, config.RefSpec(fmt.Sprintf("%s:%s", ref, ref)))
	}
	err := repo.PushContext(ctx, &git.PushOptions{
		RemoteName: remote,
		RefSpecs:   specs,
		Auth:       auth,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("pushing to %s: %w", remote, err)
	}
	return nil
}

func createBranchRef(repo *git.Repository, name string, hash plumbing.Hash) (*plumbing.Reference, error) {
	refName := plumbing.NewBranchReferenceName(name)
	if _, err := repo.Reference(refName, false); err == nil {
		return nil, fmt.Errorf("creating branch %s: already exists", name)
	}
	ref := plumbing.NewHashReference(refName, hash)
	if err := repo.Storer.SetReference(ref); err != nil {
		return nil, fmt.Errorf("creating branch %s: %w", name, err)
	}
	return ref, nil
}

func releaseTagName(version SemVer) string {
	return "v" + version.Core()
}

func tagExists(repo *git.Repository, name string) (bool, error) {
	_, err := repo.Tag(name)
	if errors.Is(err, git.ErrTagNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("looking up tag %s: %w", name, err)
	}
	return true, nil
}

// hasTagAt reports whether any tag, lightweight or annotated, points at hash.
func hasTagAt(repo *git.Repository, hash plumbing.Hash) (bool, error) {
	tags, err := repo.Tags()
	if err != nil {
		return false, fmt.Errorf("listing tags: %w", err)
	}
	defer tags.Close()

	found := false
	err = tags.ForEach(func(ref *plumbing.Reference) error {
		target := ref.Hash()
		if tag, err := repo.TagObject(target); err == nil {
			target = tag.Target
		}
		if target == hash {
			found = true
			return storer.ErrStop
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("walking tags: %w", err)
	}
	return found, nil
}

func createReleaseTag(repo *git.Repository, version SemVer, hash plumbing.Hash, tagger *object.Signature) (*plumbing.Reference, error) {
	name := releaseTagName(version)
	ref, err := repo.CreateTag(name, hash, &git.CreateTagOptions{
		Tagger:  tagger,
		Message: "Release " + version.Core(),
	})
	if err != nil {
		return nil, fmt.Errorf("creating tag %s: %w", name, err)
	}
	return ref, nil
}

// releaseSignature reads user.name and user.email from the repository and
// global git config, falling back to a fixed identity.
func releaseSignature(repo *git.Repository) *object.Signature {
	sig := &object.Signature{Name: "vercraft", Email: "vercraft@localhost", When: time.Now()}
	cfg, err := repo.ConfigScoped(config.GlobalScope)
	if err != nil {
		return sig
	}
	if cfg.User.Name != "" {
		sig.Name = cfg.User.Name
	}
	if cfg.User.Email != "" {
		sig.Email = cfg.User.Email
	}
	return sig
}

func checkoutRef(repo *git.Repository, name plumbing.ReferenceName) error {
	workTree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("getting worktree: %w", err)
	}
	if err := workTree.Checkout(&git.CheckoutOptions{Branch: name}); err != nil {
		return fmt.Errorf("checking out %s: %w", name, err)
	}
	return nil
}

func workTreeIsDirty(repo *git.Repository) (bool, error) {
	workTree, err := repo.Worktree()
	if err != nil {
		return false, fmt.Errorf("getting worktree: %w", err)
	}

	// Fast path for filesystem storage
	if _, ok := repo.Storer.(*filesystem.Storage); ok {
		if dirty, err := checkDirtyWithGitCommand(workTree.Filesystem.Root()); err == nil {
			return dirty, nil
		}
	}

	status, err := workTree.Status()
	if err != nil {
		return false, fmt.Errorf("getting git status: %w", err)
	}

	return !status.IsClean(), nil
}

func checkDirtyWithGitCommand(repoPath string) (bool, error) {
	cmd := exec.Command("git", "update-index", "-q", "--refresh")
	cmd.Dir = repoPath
	if err := cmd.Run(); err != nil {
		return false, err
	}

	cmd = exec.Command("git", "diff-index", "--quiet", "HEAD", "--")
	cmd.Dir = repoPath
	err := cmd.Run()
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return false, nil
	case errors.As(err, &exitErr) && exitErr.ExitCode() == 1:
		return true, nil
	default:
		return false, err
	}
}
