// Package vercraft derives semantic versions for the checked out commit of a
// Git repository and manages the release/X.Y.x branches and vX.Y.Z tags that
// anchor those versions.
package vercraft

import (
	"log/slog"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
)

const (
	DefaultMainBranch = "main"
	DefaultRemote     = "origin"
)

// Config is supplied once per invocation.
type Config struct {
	// DefaultMainBranch is the branch releases are cut from (default: "main")
	DefaultMainBranch string `json:"defaultMainBranch"`

	// Remote is the remote whose branches are considered (default: "origin")
	Remote string `json:"remote"`

	// CheckoutBranch names the branch being processed. It takes precedence
	// over the checked out branch and over CI environment variables.
	CheckoutBranch string `json:"checkoutBranch,omitempty"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{DefaultMainBranch: DefaultMainBranch, Remote: DefaultRemote}
}

func (c Config) withDefaults() Config {
	if c.DefaultMainBranch == "" {
		c.DefaultMainBranch = DefaultMainBranch
	}
	if c.Remote == "" {
		c.Remote = DefaultRemote
	}
	return c
}

// Options configures a calculation or a release
type Options struct {
	// Repository is the Git repository to analyze
	Repository *git.Repository

	Config Config

	// Logger receives warnings and progress (default: slog.Default())
	Logger *slog.Logger

	// Fetch updates remote branches and tags before discovery. A failed
	// fetch is logged and the local snapshot is used.
	Fetch bool

	// Push sends created release branches and tags to the remote
	Push bool

	// Auth is used for fetch and push; nil leaves it to go-git defaults
	Auth transport.AuthMethod

	// Tagger signs release tags (default: git config user, else "vercraft")
	Tagger *object.Signature
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}
