package local

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/texforge/texforge/pkg/sandbox"
)

func newTestPool(t *testing.T) (*Pool, string) {
	t.Helper()
	dir := t.TempDir()
	p, err := New(Config{WorkspaceDir: dir})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p, dir
}

func TestNewRequiresWorkspace(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	_, err = New(Config{WorkspaceDir: "   "})
	assert.Error(t, err)
}

func TestLookupSharesEnvironmentAcrossKeys(t *testing.T) {
	p, _ := newTestPool(t)
	ctx := context.Background()

	a, err := p.Lookup(ctx, "latex-compiler-main")
	require.NoError(t, err)
	b, err := p.Lookup(ctx, "another-pool")
	require.NoError(t, err)

	assert.Same(t, a, b)
}

func TestLookupAfterClose(t *testing.T) {
	p, _ := newTestPool(t)
	require.NoError(t, p.Close())

	_, err := p.Lookup(context.Background(), "latex-compiler-main")
	require.Error(t, err)
	assert.True(t, sandbox.IsNoEnvironment(err))
}

func TestWriteReadRoundTrip(t *testing.T) {
	p, dir := newTestPool(t)
	ctx := context.Background()

	env, err := p.Lookup(ctx, "k")
	require.NoError(t, err)

	path := filepath.Join(dir, "document-abc.tex")
	require.NoError(t, env.WriteFile(ctx, path, []byte(`\documentclass{article}`)))

	data, err := env.ReadFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, `\documentclass{article}`, string(data))
}

func TestReadMissingFile(t *testing.T) {
	p, dir := newTestPool(t)
	ctx := context.Background()

	env, err := p.Lookup(ctx, "k")
	require.NoError(t, err)

	_, err = env.ReadFile(ctx, filepath.Join(dir, "document-missing.pdf"))
	require.Error(t, err)
	assert.True(t, sandbox.IsFileNotFound(err))
}

func TestPathEscapeRejected(t *testing.T) {
	p, dir := newTestPool(t)
	ctx := context.Background()

	env, err := p.Lookup(ctx, "k")
	require.NoError(t, err)

	for _, path := range []string{
		"/etc/passwd",
		filepath.Join(dir, "..", "outside.txt"),
		filepath.Join(dir, "sub", "..", "..", "outside.txt"),
	} {
		err := env.WriteFile(ctx, path, []byte("x"))
		assert.Error(t, err, path)

		_, err = env.ReadFile(ctx, path)
		assert.Error(t, err, path)
	}
}

func TestExecCapturesOutputAndExitCode(t *testing.T) {
	p, _ := newTestPool(t)
	ctx := context.Background()

	env, err := p.Lookup(ctx, "k")
	require.NoError(t, err)

	res, err := env.Exec(ctx, "sh", "-c", "echo out; echo err >&2")
	require.NoError(t, err)
	assert.True(t, res.Success())
	assert.Equal(t, "out\n", res.Stdout)
	assert.Equal(t, "err\n", res.Stderr)

	res, err = env.Exec(ctx, "sh", "-c", "exit 3")
	require.NoError(t, err)
	assert.False(t, res.Success())
	assert.Equal(t, 3, res.ExitCode)
}

func TestExecRunsInWorkspace(t *testing.T) {
	p, dir := newTestPool(t)
	ctx := context.Background()

	env, err := p.Lookup(ctx, "k")
	require.NoError(t, err)

	res, err := env.Exec(ctx, "pwd")
	require.NoError(t, err)

	got, wantErr := filepath.EvalSymlinks(filepath.Clean(res.Stdout[:len(res.Stdout)-1]))
	require.NoError(t, wantErr)
	want, wantErr := filepath.EvalSymlinks(dir)
	require.NoError(t, wantErr)
	assert.Equal(t, want, got)
}

func TestExecMissingBinary(t *testing.T) {
	p, _ := newTestPool(t)
	ctx := context.Background()

	env, err := p.Lookup(ctx, "k")
	require.NoError(t, err)

	_, err = env.Exec(ctx, "definitely-not-a-binary-xyz")
	assert.Error(t, err)
}
