package docker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"go.uber.org/zap"

	"github.com/texforge/texforge/pkg/sandbox"
)

// Pool keeps a set of warm containers per pool key and hands out environment
// handles bound to them.
//
// Containers are labeled with their pool key so a restarted process adopts
// running workers instead of starting cold. The pool replaces dead containers
// from a background monitor; it never tears a pool down on Close, keeping
// workers warm for the next process.
type Pool struct {
	cli    *client.Client
	cfg    Config
	logger *zap.Logger

	mu    sync.Mutex
	keys  map[string]*keyPool
	close chan struct{}
	once  sync.Once
}

type keyPool struct {
	containers []string
	next       int
}

var _ sandbox.Pool = (*Pool)(nil)

// New connects to the Docker daemon and returns a pool. No containers are
// started until the first Lookup.
func New(cfg Config, logger *zap.Logger) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, &sandbox.Error{Op: "New", Err: err}
	}
	p := &Pool{
		cli:    cli,
		cfg:    cfg.withDefaults(),
		logger: logger,
		keys:   make(map[string]*keyPool),
		close:  make(chan struct{}),
	}
	go p.monitor()
	return p, nil
}

// Lookup returns an environment backed by one of the warm containers for
// key, creating the containers on first use. Successive lookups rotate
// through the pool so concurrent requests spread across workers.
func (p *Pool) Lookup(ctx context.Context, key string) (sandbox.Environment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	kp, ok := p.keys[key]
	if !ok {
		var err error
		kp, err = p.ensure(ctx, key)
		if err != nil {
			return nil, err
		}
		p.keys[key] = kp
	}
	if len(kp.containers) == 0 {
		return nil, &sandbox.Error{Op: "Lookup", Key: key, Err: sandbox.ErrNoEnvironment}
	}

	id := kp.containers[kp.next%len(kp.containers)]
	kp.next++
	return &Environment{pool: p, containerID: id}, nil
}

// ensure adopts running containers labeled for key and starts replacements
// until the pool is at size. Caller holds p.mu.
func (p *Pool) ensure(ctx context.Context, key string) (*keyPool, error) {
	args := filters.NewArgs(filters.Arg("label", poolLabel+"="+key))
	existing, err := p.cli.ContainerList(ctx, container.ListOptions{All: true, Filters: args})
	if err != nil {
		return nil, &sandbox.Error{Op: "Lookup", Key: key, Err: err}
	}

	kp := &keyPool{}
	for _, c := range existing {
		if c.State == "running" {
			kp.containers = append(kp.containers, c.ID)
			p.logger.Info("adopted warm sandbox container",
				zap.String("pool_key", key),
				zap.String("container_id", shortID(c.ID)))
		}
	}

	for len(kp.containers) < p.cfg.PoolSize {
		id, err := p.startContainer(ctx, key)
		if err != nil {
			if len(kp.containers) > 0 {
				// Run degraded on whatever came up.
				p.logger.Warn("failed to start sandbox container",
					zap.String("pool_key", key), zap.Error(err))
				break
			}
			return nil, err
		}
		kp.containers = append(kp.containers, id)
	}
	return kp, nil
}

func (p *Pool) startContainer(ctx context.Context, key string) (string, error) {
	cfg := &container.Config{
		Image:  p.cfg.Image,
		Tty:    true,
		Labels: map[string]string{poolLabel: key},
	}
	hostCfg := &container.HostConfig{
		Resources: container.Resources{
			Memory:   p.cfg.MemoryBytes,
			NanoCPUs: p.cfg.NanoCPUs,
		},
	}

	resp, err := p.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, "")
	if err != nil {
		return "", &sandbox.Error{Op: "Lookup", Key: key, Err: fmt.Errorf("create container: %w", err)}
	}
	if err := p.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		_ = p.cli.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return "", &sandbox.Error{Op: "Lookup", Key: key, Err: fmt.Errorf("start container: %w", err)}
	}

	if err := p.execSimple(ctx, resp.ID, "mkdir", "-p", p.cfg.WorkspaceDir); err != nil {
		p.logger.Warn("failed to create workspace dir",
			zap.String("container_id", shortID(resp.ID)), zap.Error(err))
	}

	p.logger.Info("started sandbox container",
		zap.String("pool_key", key),
		zap.String("container_id", shortID(resp.ID)))
	return resp.ID, nil
}

// monitor replaces containers that died since the last sweep.
func (p *Pool) monitor() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-p.close:
			return
		case <-ticker.C:
			p.sweep()
		}
	}
}

func (p *Pool) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	listing, err := p.cli.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		p.logger.Warn("sandbox health sweep failed", zap.Error(err))
		return
	}
	running := make(map[string]bool, len(listing))
	for _, c := range listing {
		if c.State == "running" {
			running[c.ID] = true
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for key, kp := range p.keys {
		alive := kp.containers[:0]
		for _, id := range kp.containers {
			if running[id] {
				alive = append(alive, id)
				continue
			}
			p.logger.Warn("sandbox container gone, replacing",
				zap.String("pool_key", key),
				zap.String("container_id", shortID(id)))
			_ = p.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true})
		}
		kp.containers = alive
		for len(kp.containers) < p.cfg.PoolSize {
			id, err := p.startContainer(ctx, key)
			if err != nil {
				p.logger.Warn("failed to replace sandbox container",
					zap.String("pool_key", key), zap.Error(err))
				break
			}
			kp.containers = append(kp.containers, id)
		}
	}
}

// CheckHealth reports whether the Docker daemon is reachable. Registered
// with the readiness endpoint.
func (p *Pool) CheckHealth(ctx context.Context) error {
	if _, err := p.cli.Ping(ctx); err != nil {
		return &sandbox.Error{Op: "CheckHealth", Err: sandbox.ErrEnvironmentUnavailable}
	}
	return nil
}

// Close stops the monitor and releases the Docker client. Containers are
// left running so they stay warm for the next process.
func (p *Pool) Close() error {
	p.once.Do(func() { close(p.close) })
	return p.cli.Close()
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
