// Package pipeline drives one LaTeX submission from source text to published
// PDF.
//
// The pipeline borrows a warm execution environment from a pool, stages a
// uniquely named input file, invokes the tectonic compiler, and on success
// has the environment push the artifact straight to object storage through a
// presigned URL - the pipeline process never relays the artifact bytes
// during upload. Every terminal path, success or failure, ends with a
// best-effort removal of the job's transient files.
package pipeline

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/texforge/texforge/pkg/sandbox"
	"github.com/texforge/texforge/pkg/signer"
)

const (
	// DefaultPoolKey is the fixed key every request uses to address the
	// shared environment pool. Concurrency is the pool's concern, not the
	// pipeline's.
	DefaultPoolKey = "latex-compiler-main"

	// DefaultWorkspaceDir is the in-environment directory for job files.
	DefaultWorkspaceDir = "/workspace"

	// DefaultKeyPrefix is the logical prefix for published artifacts.
	DefaultKeyPrefix = "documents"

	// DefaultSignExpiry bounds the validity of upload authorizations.
	DefaultSignExpiry = time.Hour

	// ArtifactContentType is the MIME type of compiled artifacts.
	ArtifactContentType = "application/pdf"

	// cleanupTimeout bounds the best-effort file removal so a wedged
	// environment cannot block a response.
	cleanupTimeout = 10 * time.Second
)

// Config tunes pipeline behavior. Zero values take defaults.
type Config struct {
	PoolKey      string
	WorkspaceDir string
	KeyPrefix    string
	SignExpiry   time.Duration
}

func (c Config) withDefaults() Config {
	if c.PoolKey == "" {
		c.PoolKey = DefaultPoolKey
	}
	if c.WorkspaceDir == "" {
		c.WorkspaceDir = DefaultWorkspaceDir
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = DefaultKeyPrefix
	}
	if c.SignExpiry == 0 {
		c.SignExpiry = DefaultSignExpiry
	}
	return c
}

// Artifact is a successfully compiled and published document.
type Artifact struct {
	// Key is the storage object key the PDF was uploaded under.
	Key string

	// PDF is the artifact content mirrored back for the response body.
	PDF []byte
}

// Pipeline orchestrates compile-and-publish runs. It is stateless across
// requests and safe for concurrent use; isolation between concurrent runs
// rests on job identifier uniqueness.
type Pipeline struct {
	pool   sandbox.Pool
	signer signer.UploadSigner
	cfg    Config
	logger *zap.Logger

	newID func() string
	now   func() time.Time
}

// Option adjusts pipeline construction, mainly for tests.
type Option func(*Pipeline)

// WithIDGenerator replaces the job and object identifier source.
func WithIDGenerator(fn func() string) Option {
	return func(p *Pipeline) { p.newID = fn }
}

// WithClock replaces the time source used for object key dates.
func WithClock(fn func() time.Time) Option {
	return func(p *Pipeline) { p.now = fn }
}

// New creates a pipeline with injected collaborators.
func New(pool sandbox.Pool, sig signer.UploadSigner, cfg Config, logger *zap.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		pool:   pool,
		signer: sig,
		cfg:    cfg.withDefaults(),
		logger: logger,
		newID:  uuid.NewString,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// job scopes one request's transient files inside the shared environment.
// All paths derive from the identifier, so removing "<base>.*" reclaims
// everything the job created.
type job struct {
	id     string
	base   string
	input  string
	output string
	log    string
}

func (p *Pipeline) newJob() job {
	id := p.newID()
	base := path.Join(p.cfg.WorkspaceDir, "document-"+id)
	return job{
		id:     id,
		base:   base,
		input:  base + ".tex",
		output: base + ".pdf",
		log:    base + ".log",
	}
}

// Run executes one compile-and-publish job.
//
// Failure classification: a *CompileError means the compiler rejected the
// source (caller fault), a *PublishError means the artifact upload failed,
// and any other error is an environment or signing fault. Cleanup is
// attempted exactly once on every path and never affects the returned
// outcome.
func (p *Pipeline) Run(ctx context.Context, source string) (*Artifact, error) {
	env, err := p.pool.Lookup(ctx, p.cfg.PoolKey)
	if err != nil {
		return nil, fmt.Errorf("acquire environment: %w", err)
	}

	j := p.newJob()
	logger := p.logger.With(zap.String("job_id", j.id))
	defer p.cleanup(env, j, logger)

	logger.Debug("staging input", zap.String("path", j.input))
	if err := env.WriteFile(ctx, j.input, []byte(source)); err != nil {
		return nil, fmt.Errorf("stage input: %w", err)
	}

	logger.Debug("invoking compiler", zap.String("input", j.input))
	res, err := env.Exec(ctx, "tectonic", "-o", p.cfg.WorkspaceDir, "--keep-logs", "--synctex=0", j.input)
	if err != nil {
		return nil, fmt.Errorf("invoke compiler: %w", err)
	}
	if !res.Success() {
		logger.Info("compilation failed", zap.Int("exit_code", res.ExitCode))
		return nil, p.compileFailure(ctx, env, j, res)
	}

	key := p.objectKey()
	signedURL, err := p.signer.SignPut(ctx, key, p.cfg.SignExpiry)
	if err != nil {
		return nil, fmt.Errorf("sign upload for %s: %w", key, err)
	}

	logger.Debug("uploading artifact", zap.String("object_key", key))
	up, err := env.Exec(ctx, "curl", "-f", "-sS", "-X", "PUT",
		"-T", j.output,
		"-H", "Content-Type: "+ArtifactContentType,
		signedURL)
	if err != nil {
		return nil, fmt.Errorf("upload artifact: %w", err)
	}
	if !up.Success() {
		logger.Warn("artifact upload failed",
			zap.String("object_key", key),
			zap.Int("exit_code", up.ExitCode))
		return nil, &PublishError{Key: key, Stderr: up.Stderr}
	}

	pdf, err := env.ReadFile(ctx, j.output)
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}

	logger.Info("compilation published",
		zap.String("object_key", key),
		zap.Int("pdf_bytes", len(pdf)))
	return &Artifact{Key: key, PDF: pdf}, nil
}

// compileFailure assembles the caller-facing diagnostic. The log read is
// itself fallible and must not mask the primary result.
func (p *Pipeline) compileFailure(ctx context.Context, env sandbox.Environment, j job, res *sandbox.ExecResult) error {
	cerr := &CompileError{Stderr: res.Stderr}
	logContent, err := env.ReadFile(ctx, j.log)
	if err != nil {
		p.logger.Debug("compiler log unavailable",
			zap.String("job_id", j.id), zap.Error(err))
		return cerr
	}
	cerr.Log = string(logContent)
	cerr.LogAvailable = true
	return cerr
}

// objectKey derives the storage key for a published artifact: UTC date at
// day granularity plus a fresh identifier, deliberately decoupled from the
// job identifier so storage keys never depend on transient filenames.
func (p *Pipeline) objectKey() string {
	return fmt.Sprintf("%s/%s/%s.pdf", p.cfg.KeyPrefix, p.now().UTC().Format("2006-01-02"), p.newID())
}

// cleanup best-effort removes every job-prefixed file. It runs detached from
// the request context so an already-canceled request still reclaims its
// files, and its failures are logged, never surfaced.
func (p *Pipeline) cleanup(env sandbox.Environment, j job, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	// The glob expansion needs a shell; the pattern is built solely from
	// the pipeline-minted identifier, never from caller input.
	res, err := env.Exec(ctx, "sh", "-c", "rm -f "+j.base+".*")
	if err != nil {
		logger.Warn("cleanup failed", zap.Error(err))
		return
	}
	if !res.Success() {
		logger.Warn("cleanup exited non-zero",
			zap.Int("exit_code", res.ExitCode),
			zap.String("stderr", res.Stderr))
		return
	}
	logger.Debug("cleaned up job files", zap.String("base", j.base))
}
