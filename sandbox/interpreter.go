package sandbox

import (
	"context"
	"math/rand"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"
)

// Config holds the interpreter settings. The zero value of any field
// falls back to the package default.
type Config struct {
	// Timeout is the default wall-clock budget for a request that does
	// not set its own.
	Timeout time.Duration
	// MaxOutputBytes caps each captured output stream.
	MaxOutputBytes int
	// OutputDir is the only path sandboxed executions may write to;
	// saved figures land here.
	OutputDir string
	// MaxCallStack caps script call-stack depth.
	MaxCallStack int
	// MaxFigures caps figures per execution.
	MaxFigures int
	// AllowedModules is the import allowlist. Nil means the default
	// set; an empty non-nil slice denies every import.
	AllowedModules []string
}

// Executor is the single interface the host application consumes.
type Executor interface {
	Execute(ctx context.Context, req Request) (Result, error)
}

// Interpreter is the sandbox facade. It owns the shared read-only
// capability registry and import gate and spins up an independent
// session per Execute call, so concurrent calls never share a
// namespace.
type Interpreter struct {
	logger   *zap.Logger
	cfg      Config
	registry *Registry
	gate     *Gate
	fs       FileSystem
	clock    Clock
}

// Option defines a functional option for the Interpreter.
type Option func(*Interpreter)

// WithFileSystem sets the FileSystem used by the artifact store.
func WithFileSystem(fs FileSystem) Option {
	return func(i *Interpreter) {
		i.fs = fs
	}
}

// WithClock sets the Clock used for timing and artifact names.
func WithClock(clock Clock) Option {
	return func(i *Interpreter) {
		i.clock = clock
	}
}

// New creates an Interpreter with default implementations and optional
// overrides.
func New(logger *zap.Logger, cfg Config, opts ...Option) *Interpreter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = defaultMaxOutputBytes
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = defaultOutputDir
	}
	if cfg.MaxCallStack <= 0 {
		cfg.MaxCallStack = defaultMaxCallStack
	}
	if cfg.MaxFigures <= 0 {
		cfg.MaxFigures = defaultMaxFigures
	}
	if cfg.AllowedModules == nil {
		cfg.AllowedModules = DefaultAllowedModules()
	}

	interp := &Interpreter{
		logger:   logger,
		cfg:      cfg,
		registry: NewRegistry(cfg.MaxCallStack),
		gate:     NewGate(cfg.AllowedModules),
		fs:       &RealFileSystem{},
		clock:    RealClock{},
	}
	for _, opt := range opts {
		opt(interp)
	}
	return interp
}

// Registry exposes the shared capability registry for auditing.
func (i *Interpreter) Registry() *Registry { return i.registry }

// Gate exposes the shared import gate for auditing.
func (i *Interpreter) Gate() *Gate { return i.gate }

// Execute runs one snippet and returns its structured result. Script
// failures of every kind (syntax, denied import, runtime error,
// timeout) are reported inside the Result; the error return is
// reserved for host-side faults and is nil in normal operation.
func (i *Interpreter) Execute(ctx context.Context, req Request) (Result, error) {
	if req.Timeout <= 0 {
		req.Timeout = i.cfg.Timeout
	}

	sess := i.newSession()
	res := sess.run(ctx, req)

	i.logger.Info("execution finished",
		zap.Bool("success", res.Success),
		zap.Stringer("error_kind", res.ErrorKind),
		zap.Int("stdout_len", len(res.Stdout)),
		zap.Int("variables", len(res.Variables)),
		zap.Int("artifacts", len(res.Artifacts)),
		zap.Duration("elapsed", res.Elapsed))
	return res, nil
}

func (i *Interpreter) newSession() *session {
	return &session{
		vm:         goja.New(),
		registry:   i.registry,
		gate:       i.gate,
		capture:    NewCapture(i.cfg.MaxOutputBytes),
		logger:     i.logger,
		clock:      i.clock,
		fs:         i.fs,
		outputDir:  i.cfg.OutputDir,
		maxFigures: i.cfg.MaxFigures,
		runID:      runCounter.Add(1),
		rng:        rand.New(rand.NewSource(i.clock.Now().UnixNano())),
		modules:    make(map[string]any),
		state:      stateIdle,
	}
}
