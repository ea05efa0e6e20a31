package vercraft

import "errors"

// Configuration and repository state errors.
var (
	ErrMainBranchNotFound = errors.New("default main branch not found")
	ErrBranchNotFound     = errors.New("branch not found")
	ErrDetachedHead       = errors.New("HEAD is detached and no branch name is configured")
	ErrNotInRegistry      = errors.New("branch is not a known release branch")
	ErrNoCommonHistory    = errors.New("branches share no common history")
	ErrDirtyWorktree      = errors.New("worktree has uncommitted changes")
)

// Validation errors.
var (
	ErrInvalidVersion  = errors.New("invalid version")
	ErrInvalidBumpKind = errors.New("invalid release type")
)

// Release policy rejections.
var (
	ErrNotOnMain       = errors.New("releases can only be made from the default main branch")
	ErrReleaseAtCommit = errors.New("a release branch already starts at this commit")
)

// Ordering errors. Both usually mean the clone is too shallow.
var (
	ErrCommitOrder    = errors.New("commits are in the wrong order")
	ErrCommitNotFound = errors.New("commit not found in branch history")
)
