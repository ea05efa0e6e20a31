package vercraft

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/stretchr/testify/require"
)

var testEpoch = time.Date(2025, time.January, 22, 9, 0, 0, 0, time.UTC)

var testTagger = &object.Signature{
	Name:  "test",
	Email: "test@example.com",
	When:  testEpoch,
}

// testRepo is an in-memory repository whose commits are one minute apart.
type testRepo struct {
	t        *testing.T
	repo     *git.Repository
	workTree *git.Worktree
	clock    time.Time
	files    int
	logs     *bytes.Buffer
}

// testRepoCreate creates a new in-memory git repository with "main" as the
// initial branch
func testRepoCreate(t *testing.T) *testRepo {
	t.Helper()
	repo, err := git.InitWithOptions(memory.NewStorage(), memfs.New(), git.InitOptions{
		DefaultBranch: plumbing.Main,
	})
	require.NoError(t, err)

	workTree, err := repo.Worktree()
	require.NoError(t, err)

	return &testRepo{
		t:        t,
		repo:     repo,
		workTree: workTree,
		clock:    testEpoch,
		logs:     &bytes.Buffer{},
	}
}

func (r *testRepo) signature() *object.Signature {
	sig := &object.Signature{Name: "test", Email: "test@example.com", When: r.clock}
	r.clock = r.clock.Add(time.Minute)
	return sig
}

// commit adds a new file and commits it on whatever HEAD points to.
func (r *testRepo) commit(msg string) *object.Commit {
	r.t.Helper()
	return r.commitWithParents(msg, nil)
}

func (r *testRepo) commitWithParents(msg string, parents []plumbing.Hash) *object.Commit {
	r.t.Helper()
	r.files++
	filename := fmt.Sprintf("file_%d.txt", r.files)
	require.NoError(r.t, writeFile(r.workTree.Filesystem, filename, "Content for "+msg))

	_, err := r.workTree.Add(filename)
	require.NoError(r.t, err)

	sig := r.signature()
	hash, err := r.workTree.Commit(msg, &git.CommitOptions{
		Author:    sig,
		Committer: sig,
		Parents:   parents,
	})
	require.NoError(r.t, err)

	commit, err := r.repo.CommitObject(hash)
	require.NoError(r.t, err)
	return commit
}

// commits makes n commits and returns them oldest first.
func (r *testRepo) commits(prefix string, n int) []*object.Commit {
	r.t.Helper()
	out := make([]*object.Commit, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, r.commit(fmt.Sprintf("%s %d", prefix, i+1)))
	}
	return out
}

// createBranch creates a local branch at HEAD and checks it out.
func (r *testRepo) createBranch(name string) {
	r.t.Helper()
	require.NoError(r.t, r.workTree.Checkout(&git.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName(name),
		Create: true,
	}))
}

func (r *testRepo) checkout(name string) {
	r.t.Helper()
	require.NoError(r.t, r.workTree.Checkout(&git.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName(name),
	}))
}

// orphan points HEAD at a branch that does not exist yet, so the next
// commit starts a new history.
func (r *testRepo) orphan(name string) {
	r.t.Helper()
	head := plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(name))
	require.NoError(r.t, r.repo.Storer.SetReference(head))
}

// detach checks out a commit without a branch, as CI platforms do.
func (r *testRepo) detach(hash plumbing.Hash) {
	r.t.Helper()
	require.NoError(r.t, r.workTree.Checkout(&git.CheckoutOptions{Hash: hash}))
}

// setRemoteBranch points refs/remotes/origin/<name> at hash.
func (r *testRepo) setRemoteBranch(name string, hash plumbing.Hash) {
	r.t.Helper()
	ref := plumbing.NewHashReference(plumbing.NewRemoteReferenceName(DefaultRemote, name), hash)
	require.NoError(r.t, r.repo.Storer.SetReference(ref))
}

// setLocalBranch points refs/heads/<name> at hash without checking it out.
func (r *testRepo) setLocalBranch(name string, hash plumbing.Hash) {
	r.t.Helper()
	ref := plumbing.NewHashReference(plumbing.NewBranchReferenceName(name), hash)
	require.NoError(r.t, r.repo.Storer.SetReference(ref))
}

func (r *testRepo) deleteLocalBranch(name string) {
	r.t.Helper()
	require.NoError(r.t, r.repo.Storer.RemoveReference(plumbing.NewBranchReferenceName(name)))
}

func (r *testRepo) branch(name plumbing.ReferenceName) *Branch {
	r.t.Helper()
	ref, err := r.repo.Reference(name, true)
	require.NoError(r.t, err)
	branch, err := NewBranch(r.repo, ref)
	require.NoError(r.t, err)
	return branch
}

func (r *testRepo) logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(r.logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func (r *testRepo) options(cfg Config) Options {
	return Options{
		Repository: r.repo,
		Config:     cfg,
		Logger:     r.logger(),
		Tagger:     testTagger,
	}
}

func (r *testRepo) engine(cfg Config) *Engine {
	r.t.Helper()
	engine, err := New(context.Background(), r.options(cfg))
	require.NoError(r.t, err)
	return engine
}

func (r *testRepo) version(cfg Config) string {
	r.t.Helper()
	version, err := r.engine(cfg).Version()
	require.NoError(r.t, err)
	return version.String()
}

// tag creates an annotated release tag at hash.
func (r *testRepo) tag(name string, hash plumbing.Hash) {
	r.t.Helper()
	_, err := r.repo.CreateTag(name, hash, &git.CreateTagOptions{Tagger: testTagger, Message: "Release " + name})
	require.NoError(r.t, err)
}

func (r *testRepo) tagTarget(name string) plumbing.Hash {
	r.t.Helper()
	ref, err := r.repo.Tag(name)
	require.NoError(r.t, err)
	tag, err := r.repo.TagObject(ref.Hash())
	require.NoError(r.t, err)
	return tag.Target
}

func (r *testRepo) hasReference(name plumbing.ReferenceName) bool {
	_, err := r.repo.Reference(name, false)
	return err == nil
}

func (r *testRepo) tagCount() int {
	r.t.Helper()
	tags, err := r.repo.Tags()
	require.NoError(r.t, err)
	n := 0
	require.NoError(r.t, tags.ForEach(func(*plumbing.Reference) error {
		n++
		return nil
	}))
	return n
}

func withBranch(name string) Config {
	cfg := DefaultConfig()
	cfg.CheckoutBranch = name
	return cfg
}

func hash5(c *object.Commit) string {
	return c.Hash.String()[:5]
}

// writeFile writes content to a file in the given filesystem
func writeFile(fs billy.Filesystem, filename, content string) error {
	file, err := fs.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = file.Write([]byte(content))
	return err
}
