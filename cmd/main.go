package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/TwiN/go-color"
	"github.com/alecthomas/kong"
	"github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/jaxxstorm/vercraft"
	"github.com/jaxxstorm/vercraft/internal/config"
)

// Version will be set by build process
var Version = "dev"

// Globals are shared by every command.
type Globals struct {
	Repo       string `short:"r" help:"Repository path (default: current directory)"`
	Config     string `short:"c" help:"Config file (default: .vercraft.yaml in the repository)"`
	MainBranch string `help:"Default main branch releases are cut from"`
	Remote     string `help:"Remote whose branches are considered"`
	Branch     string `short:"b" help:"Branch being processed, needed when HEAD is detached"`
	Fetch      bool   `help:"Fetch the remote before calculating"`
	LogLevel   string `help:"Log level (debug, info, warn, error)"`
	JSON       bool   `short:"j" help:"Output as JSON"`
}

type CLI struct {
	Globals

	Calc        CalcCmd          `cmd:"" default:"1" help:"Calculate the version of the checked out commit"`
	Release     ReleaseCmd       `cmd:"" help:"Create a release branch and tag from the main branch"`
	ShowVersion kong.VersionFlag `name:"version" help:"Show version information"`
}

type CalcCmd struct{}

type ReleaseCmd struct {
	Type    string `short:"t" default:"minor" help:"Release type: major, minor or patch (any case)"`
	Version string `short:"v" name:"release-version" help:"Explicit version to release (e.g. 1.4.0)"`
	Push    bool   `help:"Push the release branch and tag to the remote"`
	Token   string `env:"VERCRAFT_GIT_TOKEN" help:"Token used to push over HTTPS"`
}

func main() {
	var cli CLI

	ctx := kong.Parse(&cli,
		kong.Name("vercraft"),
		kong.Description("Calculate semantic versions from Git branches and create release branches"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Vars{
			"version": Version,
		},
	)

	err := ctx.Run(&cli.Globals)
	if err != nil {
		fmt.Fprintln(os.Stderr, color.Ize(color.Red, "Error: ")+err.Error())
		os.Exit(1)
	}
}

func (c *CalcCmd) Run(g *Globals) error {
	return c.run(context.Background(), g, os.Stdout)
}

func (c *CalcCmd) run(ctx context.Context, g *Globals, out io.Writer) error {
	_, opts, err := g.options()
	if err != nil {
		return err
	}
	defer vercraft.CloseRepository(opts.Repository)

	version, err := vercraft.Calculate(ctx, opts)
	if err != nil {
		return err
	}
	return writeVersion(out, version, g.JSON)
}

func (c *ReleaseCmd) Run(g *Globals) error {
	return c.run(context.Background(), g, os.Stdout)
}

func (c *ReleaseCmd) run(ctx context.Context, g *Globals, out io.Writer) error {
	cfg, opts, err := g.options()
	if err != nil {
		return err
	}
	defer vercraft.CloseRepository(opts.Repository)

	opts.Push = c.Push || cfg.Push
	if c.Token != "" {
		opts.Auth = &http.BasicAuth{Username: "vercraft", Password: c.Token}
	}

	engine, err := vercraft.New(ctx, opts)
	if err != nil {
		return err
	}

	var version vercraft.SemVer
	if c.Version != "" {
		explicit, err := vercraft.ParseSemVer(c.Version)
		if err != nil {
			return err
		}
		version, err = engine.CreateReleaseVersion(ctx, explicit)
		if err != nil {
			return err
		}
	} else {
		kind, err := vercraft.ParseBumpKind(c.Type)
		if err != nil {
			return err
		}
		version, err = engine.CreateRelease(ctx, kind)
		if err != nil {
			return err
		}
	}

	if !g.JSON {
		fmt.Fprintln(os.Stderr, color.Ize(color.Green, "Released ")+version.String())
	}
	return writeVersion(out, version, g.JSON)
}

// options loads the config file and environment, then applies flags.
func (g *Globals) options() (config.Config, vercraft.Options, error) {
	repoPath := g.Repo
	if repoPath == "" {
		var err error
		repoPath, err = os.Getwd()
		if err != nil {
			return config.Config{}, vercraft.Options{}, fmt.Errorf("getting current directory: %w", err)
		}
	}

	cfg, err := config.Load(repoPath, g.Config)
	if err != nil {
		return config.Config{}, vercraft.Options{}, err
	}
	cfg = g.apply(cfg)

	repo, err := vercraft.OpenRepository(repoPath)
	if err != nil {
		return config.Config{}, vercraft.Options{}, fmt.Errorf("opening repository %s: %w", repoPath, err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Level()}))

	return cfg, vercraft.Options{
		Repository: repo,
		Config:     cfg.Vercraft(),
		Logger:     logger,
		Fetch:      cfg.Fetch,
		Push:       cfg.Push,
	}, nil
}

// apply overrides loaded values with flags that were set.
func (g *Globals) apply(cfg config.Config) config.Config {
	if g.MainBranch != "" {
		cfg.DefaultMainBranch = g.MainBranch
	}
	if g.Remote != "" {
		cfg.Remote = g.Remote
	}
	if g.Branch != "" {
		cfg.CheckoutBranch = g.Branch
	}
	if g.Fetch {
		cfg.Fetch = true
	}
	if g.LogLevel != "" {
		cfg.LogLevel = g.LogLevel
	}
	return cfg
}

func writeVersion(out io.Writer, version vercraft.SemVer, asJSON bool) error {
	if asJSON {
		return json.NewEncoder(out).Encode(map[string]string{
			"version": version.String(),
			"core":    version.Core(),
		})
	}
	_, err := fmt.Fprintln(out, version.String())
	return err
}
