package sandbox

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"gonum.org/v1/plot"
)

// Defaults shared by the session and the interpreter.
const (
	defaultTimeout        = 30 * time.Second
	defaultMaxOutputBytes = 10000
	defaultMaxCallStack   = 500
	defaultMaxFigures     = 20
	defaultOutputDir      = "generated_plots"

	// interruptGrace is how long the host waits for the worker to
	// acknowledge an interrupt before abandoning it.
	interruptGrace = 500 * time.Millisecond

	scriptName = "snippet"
)

// sessionState tracks where a session is in its lifecycle. Exactly one
// pass through the machine happens per request; Finalized is always
// reached.
type sessionState int

const (
	stateIdle sessionState = iota
	stateCompiling
	stateRunning
	stateSucceeded
	stateFailed
	stateTimedOut
	stateFinalized
)

func (s sessionState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateCompiling:
		return "compiling"
	case stateRunning:
		return "running"
	case stateSucceeded:
		return "succeeded"
	case stateFailed:
		return "failed"
	case stateTimedOut:
		return "timed_out"
	case stateFinalized:
		return "finalized"
	default:
		return "unknown"
	}
}

// errAbandoned marks a worker that did not acknowledge its interrupt
// within the grace period.
var errAbandoned = errors.New("execution worker abandoned")

// runCounter numbers executions process-wide so artifact names from
// runs landing in the same second cannot collide.
var runCounter atomic.Int64

// session owns one execution: a fresh VM, its capture buffers and its
// figures. Sessions are never reused; concurrent Execute calls get
// independent sessions over the shared read-only registry and gate.
type session struct {
	vm       *goja.Runtime
	registry *Registry
	gate     *Gate
	capture  *Capture
	logger   *zap.Logger
	clock    Clock
	fs       FileSystem

	outputDir  string
	maxFigures int
	runID      int64

	rng     *rand.Rand
	modules map[string]any

	figures   []*Figure
	figureSeq int

	denied atomic.Pointer[ImportDeniedError]

	state sessionState
}

func (s *session) transition(to sessionState) {
	s.logger.Debug("session state change",
		zap.Stringer("from", s.state),
		zap.Stringer("to", to))
	s.state = to
}

func (s *session) recordDenied(err *ImportDeniedError) {
	s.denied.CompareAndSwap(nil, err)
}

func (s *session) deniedImport() *ImportDeniedError {
	return s.denied.Load()
}

// newFigure registers a figure on the session, enforcing the per-run
// figure cap.
func (s *session) newFigure() (*Figure, error) {
	if len(s.figures) >= s.maxFigures {
		return nil, fmt.Errorf("figure limit reached (%d per execution)", s.maxFigures)
	}
	fig := &Figure{p: plot.New(), seq: s.figureSeq}
	s.figureSeq++
	s.figures = append(s.figures, fig)
	return fig, nil
}

// run drives the whole state machine for one request and always
// produces a well-formed Result. No failure mode escapes as an error
// or panic.
func (s *session) run(ctx context.Context, req Request) Result {
	start := s.clock.Now()
	res := Result{Variables: map[string]any{}}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	s.transition(stateCompiling)
	prog, err := goja.Compile(scriptName, req.Source, false)
	if err != nil {
		s.transition(stateFailed)
		res.ErrorKind = ErrSyntax
		res.ErrorMessage = err.Error()
		s.finalize(&res, true, start)
		return res
	}

	if err := s.registry.install(s); err != nil {
		s.transition(stateFailed)
		res.ErrorKind = ErrInternal
		res.ErrorMessage = err.Error()
		s.finalize(&res, true, start)
		return res
	}
	for name, value := range req.Bindings {
		if err := s.vm.Set(name, value); err != nil {
			s.transition(stateFailed)
			res.ErrorKind = ErrInternal
			res.ErrorMessage = fmt.Sprintf("failed to set binding %q: %v", name, err)
			s.finalize(&res, true, start)
			return res
		}
	}

	s.transition(stateRunning)
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("execution panic: %v", r)
			}
		}()
		_, runErr := s.vm.RunProgram(prog)
		done <- runErr
	}()

	timer := time.AfterFunc(timeout, func() {
		s.vm.Interrupt(fmt.Sprintf("execution timed out after %s", timeout))
	})
	defer timer.Stop()

	var runErr error
	vmOwned := true // whether the worker has returned the VM to us
	select {
	case runErr = <-done:
		s.vm.ClearInterrupt()
	case <-ctx.Done():
		s.vm.Interrupt("execution canceled")
		select {
		case runErr = <-done:
			s.vm.ClearInterrupt()
		case <-time.After(interruptGrace):
			vmOwned = false
			runErr = errAbandoned
		}
	case <-time.After(timeout + interruptGrace):
		// The interrupt timer fired but the worker never came back; it
		// is stuck inside a host call and cannot be stopped.
		vmOwned = false
		runErr = errAbandoned
	}

	switch {
	case runErr == nil:
		s.transition(stateSucceeded)
		res.Success = true
	case errors.Is(runErr, errAbandoned):
		s.transition(stateTimedOut)
		res.ErrorKind = ErrTimeout
		res.ErrorMessage = fmt.Sprintf("execution did not stop within %s", timeout)
	default:
		kind, msg, detail := s.classify(runErr)
		if kind == ErrTimeout {
			s.transition(stateTimedOut)
		} else {
			s.transition(stateFailed)
		}
		res.ErrorKind = kind
		res.ErrorMessage = msg
		res.ErrorDetail = detail
	}

	s.finalize(&res, vmOwned, start)
	return res
}

// classify maps an engine error to the result taxonomy.
func (s *session) classify(err error) (kind ErrorKind, msg, detail string) {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return ErrTimeout, fmt.Sprintf("%v", interrupted.Value()), interrupted.String()
	}
	var overflow *goja.StackOverflowError
	if errors.As(err, &overflow) {
		return ErrRange, "maximum call stack size exceeded", overflow.String()
	}
	var exception *goja.Exception
	if errors.As(err, &exception) {
		// The latch is a tiebreaker, not an override: a script may catch
		// the denial and fail later for an unrelated reason.
		if denied := s.deniedImport(); denied != nil && strings.Contains(exception.String(), denied.Error()) {
			return ErrImportDenied, denied.Error(), exception.String()
		}
		kind, msg := classifyException(exception)
		return kind, msg, exception.String()
	}
	return ErrInternal, err.Error(), ""
}

var kindByErrorName = map[string]ErrorKind{
	"TypeError":      ErrType,
	"ReferenceError": ErrReference,
	"RangeError":     ErrRange,
	"SyntaxError":    ErrSyntax,
}

func classifyException(ex *goja.Exception) (ErrorKind, string) {
	v := ex.Value()
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return ErrRuntime, ex.Error()
	}
	if obj, ok := v.(*goja.Object); ok {
		name := ""
		if nv := obj.Get("name"); nv != nil && !goja.IsUndefined(nv) {
			name = nv.String()
		}
		msg := v.String()
		if mv := obj.Get("message"); mv != nil && !goja.IsUndefined(mv) {
			msg = mv.String()
		}
		if kind, ok := kindByErrorName[name]; ok {
			return kind, msg
		}
		return ErrRuntime, msg
	}
	// A thrown primitive ("throw 'oops'").
	return ErrRuntime, v.String()
}

// finalize flushes buffers, saves figures and extracts variables. It
// runs on every exit path. When the worker still owns the VM (an
// abandoned timeout) the VM and figure list cannot be touched safely,
// so only the mutex-guarded buffers are read.
func (s *session) finalize(res *Result, vmOwned bool, start time.Time) {
	s.transition(stateFinalized)

	res.Stdout = s.capture.Stdout()
	res.Stderr = s.capture.Stderr()
	res.Truncated = s.capture.Truncated()

	if vmOwned {
		res.Artifacts = saveFigures(s.fs, s.clock, s.outputDir, s.runID, s.figures, s.capture)
		s.figures = nil

		serializer := NewSerializer(s.registry.BaselineNames())
		res.Variables, res.Fallbacks = serializer.Variables(s.vm)

		// Re-read after figure saving may have appended to stderr.
		res.Stderr = s.capture.Stderr()
		res.Truncated = s.capture.Truncated()
	}

	res.Elapsed = s.clock.Now().Sub(start)
}
