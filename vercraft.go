package vercraft

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
)

// Engine ties the release registry and version calculation to one
// repository for the length of one invocation.
type Engine struct {
	repo     *git.Repository
	config   Config
	logger   *slog.Logger
	auth     transport.AuthMethod
	push     bool
	tagger   *object.Signature
	main     *Branch
	current  *Branch
	releases *Registry
}

// New resolves the main and current branches and discovers releases. When
// opts.Fetch is set the remote is fetched first; a failed fetch only logs.
func New(ctx context.Context, opts Options) (*Engine, error) {
	if opts.Repository == nil {
		return nil, fmt.Errorf("repository is required")
	}

	cfg := opts.Config.withDefaults()
	logger := opts.logger()

	if opts.Fetch {
		if err := fetchRemote(ctx, opts.Repository, cfg.Remote, opts.Auth); err != nil {
			logger.Warn("unable to fetch from remote, using local snapshot", "remote", cfg.Remote, "error", err)
		}
	}

	main, err := findBranch(opts.Repository, cfg.DefaultMainBranch, cfg.Remote)
	if err != nil {
		return nil, err
	}
	if main == nil {
		return nil, fmt.Errorf("%w: %q, check fetched branches and fetch depth (CI platforms often limit it)",
			ErrMainBranchNotFound, cfg.DefaultMainBranch)
	}

	releases, err := DiscoverReleases(opts.Repository, cfg, logger)
	if err != nil {
		return nil, err
	}

	name, err := currentBranchName(opts.Repository, cfg, logger)
	if err != nil {
		return nil, err
	}
	current, err := findBranch(opts.Repository, name, cfg.Remote)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, fmt.Errorf("%w: %q is neither a local branch nor on %s", ErrBranchNotFound, name, cfg.Remote)
	}

	tagger := opts.Tagger
	if tagger == nil {
		tagger = releaseSignature(opts.Repository)
	}

	return &Engine{
		repo:     opts.Repository,
		config:   cfg,
		logger:   logger,
		auth:     opts.Auth,
		push:     opts.Push,
		tagger:   tagger,
		main:     main,
		current:  current,
		releases: releases,
	}, nil
}

// Releases returns the registry of known release branches.
func (e *Engine) Releases() *Registry {
	return e.releases
}

func (e *Engine) MainBranch() *Branch {
	return e.main
}

func (e *Engine) CurrentBranch() *Branch {
	return e.current
}

// Calculator returns a calculator for the checked out commit on the
// current branch.
func (e *Engine) Calculator() (*Calculator, error) {
	head, err := headCommit(e.repo)
	if err != nil {
		return nil, err
	}
	return NewCalculator(e.config, e.releases, e.main, e.current, head)
}

// Version calculates the version of the checked out commit.
func (e *Engine) Version() (SemVer, error) {
	calc, err := e.Calculator()
	if err != nil {
		return SemVer{}, err
	}
	version, err := calc.Calc()
	if err != nil {
		return SemVer{}, fmt.Errorf("calculating version on %s branch %s: %w",
			calc.Kind(), e.current.ShortName(e.config.Remote), err)
	}
	return version, nil
}

// Calculate determines the version of the checked out commit. The
// repository is not modified.
func Calculate(ctx context.Context, opts Options) (SemVer, error) {
	engine, err := New(ctx, opts)
	if err != nil {
		return SemVer{}, err
	}
	return engine.Version()
}

// ComputeVersion opens the repository at repoPath and returns the version
// of its checked out commit.
func ComputeVersion(repoPath string, cfg Config) (string, error) {
	repo, err := OpenRepository(repoPath)
	if err != nil {
		return "", fmt.Errorf("opening repository: %w", err)
	}
	defer CloseRepository(repo)

	version, err := Calculate(context.Background(), Options{Repository: repo, Config: cfg})
	if err != nil {
		return "", err
	}
	return version.String(), nil
}

// CreateRelease opens the repository at repoPath and cuts a release of the
// given kind from the default main branch.
func CreateRelease(repoPath string, kind BumpKind, cfg Config) (string, error) {
	repo, err := OpenRepository(repoPath)
	if err != nil {
		return "", fmt.Errorf("opening repository: %w", err)
	}
	defer CloseRepository(repo)

	engine, err := New(context.Background(), Options{Repository: repo, Config: cfg})
	if err != nil {
		return "", err
	}
	version, err := engine.CreateRelease(context.Background(), kind)
	if err != nil {
		return "", err
	}
	return version.String(), nil
}

// CreateReleaseVersion is CreateRelease with an explicit version.
func CreateReleaseVersion(repoPath string, version SemVer, cfg Config) (string, error) {
	repo, err := OpenRepository(repoPath)
	if err != nil {
		return "", fmt.Errorf("opening repository: %w", err)
	}
	defer CloseRepository(repo)

	engine, err := New(context.Background(), Options{Repository: repo, Config: cfg})
	if err != nil {
		return "", err
	}
	created, err := engine.CreateReleaseVersion(context.Background(), version)
	if err != nil {
		return "", err
	}
	return created.String(), nil
}
