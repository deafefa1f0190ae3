package pipeline

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/texforge/texforge/pkg/sandbox"
	"github.com/texforge/texforge/pkg/sandbox/sandboxtest"
)

type fakeSigner struct {
	mu      sync.Mutex
	err     error
	keys    []string
	expires []time.Duration
}

func (s *fakeSigner) SignPut(ctx context.Context, key string, expires time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.keys = append(s.keys, key)
	s.expires = append(s.expires, expires)
	return "https://store.example/" + key + "?X-Amz-Expires=3600&X-Amz-Signature=deadbeef", nil
}

func (s *fakeSigner) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.keys...)
}

// scriptEnvironment wires a FakeEnvironment with behavior close to a real
// worker: tectonic produces (or refuses to produce) a PDF and log, curl
// succeeds or fails, and rm removes job-prefixed files.
type script struct {
	compileExit   int
	compileStderr string
	writeLog      bool
	writePDF      bool
	logContent    string
	pdfContent    []byte
	uploadExit    int
	uploadStderr  string
}

func (sc script) install(env *sandboxtest.FakeEnvironment) {
	env.ExecFunc = func(ctx context.Context, e *sandboxtest.FakeEnvironment, name string, args []string) (*sandbox.ExecResult, error) {
		switch name {
		case "tectonic":
			input := args[len(args)-1]
			base := strings.TrimSuffix(input, ".tex")
			if sc.writeLog {
				e.PutFile(base+".log", []byte(sc.logContent))
			}
			if sc.writePDF && sc.compileExit == 0 {
				e.PutFile(base+".pdf", sc.pdfContent)
			}
			return &sandbox.ExecResult{ExitCode: sc.compileExit, Stderr: sc.compileStderr}, nil
		case "curl":
			return &sandbox.ExecResult{ExitCode: sc.uploadExit, Stderr: sc.uploadStderr}, nil
		case "sh":
			// rm -f <base>.*
			cmd := args[len(args)-1]
			prefix := strings.TrimSuffix(strings.TrimPrefix(cmd, "rm -f "), ".*")
			e.RemovePrefix(prefix)
			return &sandbox.ExecResult{}, nil
		default:
			return nil, fmt.Errorf("unexpected command %q", name)
		}
	}
}

func successScript() script {
	return script{
		writeLog:   true,
		writePDF:   true,
		logContent: "This is Tectonic",
		pdfContent: []byte("%PDF-1.5 fake"),
	}
}

func sequenceIDs(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func newTestPipeline(t *testing.T, sc script, opts ...Option) (*Pipeline, *sandboxtest.FakePool, *fakeSigner) {
	t.Helper()
	pool := sandboxtest.NewFakePool()
	sc.install(pool.Env(DefaultPoolKey))
	sig := &fakeSigner{}
	p := New(pool, sig, Config{}, zap.NewNop(), opts...)
	return p, pool, sig
}

func TestRunSuccess(t *testing.T) {
	fixed := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	p, pool, sig := newTestPipeline(t, successScript(),
		WithIDGenerator(sequenceIDs("id")),
		WithClock(func() time.Time { return fixed }))

	artifact, err := p.Run(context.Background(), `\documentclass{article}`)
	require.NoError(t, err)
	require.NotNil(t, artifact)

	assert.Equal(t, []byte("%PDF-1.5 fake"), artifact.PDF)

	// The object key carries the UTC date and the second minted identifier,
	// decoupled from the job identifier.
	assert.Equal(t, "documents/2026-03-14/id-2.pdf", artifact.Key)

	env := pool.Env(DefaultPoolKey)
	commands := env.Commands()
	require.Len(t, commands, 3)

	assert.Equal(t, []string{
		"tectonic", "-o", "/workspace", "--keep-logs", "--synctex=0",
		"/workspace/document-id-1.tex",
	}, commands[0])

	curl := commands[1]
	assert.Equal(t, "curl", curl[0])
	assert.Contains(t, curl, "-T")
	assert.Contains(t, curl, "/workspace/document-id-1.pdf")
	assert.Contains(t, curl, "Content-Type: application/pdf")
	// The signed URL travels as a single argument vector entry.
	assert.Equal(t, "https://store.example/documents/2026-03-14/id-2.pdf?X-Amz-Expires=3600&X-Amz-Signature=deadbeef", curl[len(curl)-1])

	assert.Equal(t, []string{"sh", "-c", "rm -f /workspace/document-id-1.*"}, commands[2])

	// Cleanup removed every job-prefixed file.
	for _, path := range env.Paths() {
		assert.NotContains(t, path, "document-id-1")
	}

	require.Len(t, sig.Keys(), 1)
	assert.Equal(t, []time.Duration{time.Hour}, sig.expires)
}

func TestRunObjectKeyPattern(t *testing.T) {
	p, _, sig := newTestPipeline(t, successScript())

	artifact, err := p.Run(context.Background(), `\documentclass{article}`)
	require.NoError(t, err)

	pattern := regexp.MustCompile(`^documents/\d{4}-\d{2}-\d{2}/[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}\.pdf$`)
	assert.Regexp(t, pattern, artifact.Key)
	assert.Equal(t, []string{artifact.Key}, sig.Keys())
}

func TestRunCompileFailure(t *testing.T) {
	sc := script{
		compileExit:   1,
		compileStderr: "error: unable to compile document.tex",
		writeLog:      true,
		logContent:    "! Undefined control sequence.\nl.3 \\badmacro",
	}
	p, pool, sig := newTestPipeline(t, sc, WithIDGenerator(sequenceIDs("id")))

	artifact, err := p.Run(context.Background(), `\badmacro`)
	assert.Nil(t, artifact)

	var cerr *CompileError
	require.ErrorAs(t, err, &cerr)
	assert.True(t, cerr.LogAvailable)

	diag := cerr.Diagnostic()
	assert.Contains(t, diag, "LaTeX Compilation Failed:")
	assert.Contains(t, diag, "--- STDERR ---")
	assert.Contains(t, diag, "error: unable to compile document.tex")
	assert.Contains(t, diag, "--- LOG FILE ---")
	assert.Contains(t, diag, "Undefined control sequence")

	// No object key is ever minted for a failed compile.
	assert.Empty(t, sig.Keys())

	env := pool.Env(DefaultPoolKey)
	commands := env.Commands()
	// tectonic, then cleanup; never curl.
	require.Len(t, commands, 2)
	assert.Equal(t, "tectonic", commands[0][0])
	assert.Equal(t, "sh", commands[1][0])
	for _, path := range env.Paths() {
		assert.NotContains(t, path, "document-id-1")
	}
}

func TestRunCompileFailureLogMissing(t *testing.T) {
	sc := script{
		compileExit:   1,
		compileStderr: "error: input rejected",
		writeLog:      false,
	}
	p, _, _ := newTestPipeline(t, sc)

	_, err := p.Run(context.Background(), `\badmacro`)

	var cerr *CompileError
	require.ErrorAs(t, err, &cerr)
	assert.False(t, cerr.LogAvailable)
	assert.Contains(t, cerr.Diagnostic(), "Log file not available")
}

func TestRunPublishFailure(t *testing.T) {
	sc := successScript()
	sc.uploadExit = 22
	sc.uploadStderr = "curl: (22) The requested URL returned error: 403"
	p, pool, _ := newTestPipeline(t, sc, WithIDGenerator(sequenceIDs("id")))

	artifact, err := p.Run(context.Background(), `\documentclass{article}`)
	assert.Nil(t, artifact)

	var perr *PublishError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "documents", strings.SplitN(perr.Key, "/", 2)[0])
	assert.Contains(t, perr.Stderr, "403")

	// Cleanup still ran after the failed upload.
	env := pool.Env(DefaultPoolKey)
	commands := env.Commands()
	last := commands[len(commands)-1]
	assert.Equal(t, "sh", last[0])
	for _, path := range env.Paths() {
		assert.NotContains(t, path, "document-id-1")
	}
}

func TestRunSignerFailure(t *testing.T) {
	p, pool, sig := newTestPipeline(t, successScript(), WithIDGenerator(sequenceIDs("id")))
	sig.err = errors.New("credentials rejected")

	_, err := p.Run(context.Background(), `\documentclass{article}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sign upload")

	var cerr *CompileError
	assert.False(t, errors.As(err, &cerr))

	env := pool.Env(DefaultPoolKey)
	commands := env.Commands()
	last := commands[len(commands)-1]
	assert.Equal(t, "sh", last[0])
}

func TestRunMissingArtifact(t *testing.T) {
	sc := successScript()
	sc.writePDF = false
	p, _, _ := newTestPipeline(t, sc)

	_, err := p.Run(context.Background(), `\documentclass{article}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read artifact")
	assert.True(t, sandbox.IsFileNotFound(err))
}

func TestRunLookupFailure(t *testing.T) {
	pool := sandboxtest.NewFakePool()
	pool.LookupErr = &sandbox.Error{Op: "Lookup", Key: DefaultPoolKey, Err: sandbox.ErrNoEnvironment}
	p := New(pool, &fakeSigner{}, Config{}, zap.NewNop())

	_, err := p.Run(context.Background(), `\documentclass{article}`)
	require.Error(t, err)
	assert.True(t, sandbox.IsNoEnvironment(err))
}

func TestRunPoolKeyIsFixed(t *testing.T) {
	p, pool, _ := newTestPipeline(t, successScript())

	for i := 0; i < 3; i++ {
		_, err := p.Run(context.Background(), `\documentclass{article}`)
		require.NoError(t, err)
	}
	assert.Equal(t, []string{DefaultPoolKey, DefaultPoolKey, DefaultPoolKey}, pool.Lookups())
}

func TestRunConcurrentJobsAreIsolated(t *testing.T) {
	p, pool, sig := newTestPipeline(t, successScript())

	const workers = 8
	var wg sync.WaitGroup
	results := make([]*Artifact, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = p.Run(context.Background(), `\documentclass{article}`)
		}(i)
	}
	wg.Wait()

	keys := make(map[string]bool)
	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		keys[results[i].Key] = true
	}
	assert.Len(t, keys, workers, "every run must mint a distinct object key")
	assert.Len(t, sig.Keys(), workers)

	// Every run staged a distinct input file.
	inputs := make(map[string]bool)
	for _, cmd := range pool.Env(DefaultPoolKey).Commands() {
		if cmd[0] == "tectonic" {
			inputs[cmd[len(cmd)-1]] = true
		}
	}
	assert.Len(t, inputs, workers, "every run must stage a distinct input file")
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, DefaultPoolKey, cfg.PoolKey)
	assert.Equal(t, DefaultWorkspaceDir, cfg.WorkspaceDir)
	assert.Equal(t, DefaultKeyPrefix, cfg.KeyPrefix)
	assert.Equal(t, DefaultSignExpiry, cfg.SignExpiry)
}
