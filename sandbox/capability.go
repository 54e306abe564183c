package sandbox

import (
	"fmt"
	"strings"

	"github.com/dop251/goja"
)

// Kind tags what a capability exposes to the script.
type Kind int

const (
	// KindFunction is a single callable.
	KindFunction Kind = iota
	// KindModule is an object grouping related callables.
	KindModule
	// KindValue is a plain constant.
	KindValue
)

func (k Kind) String() string {
	switch k {
	case KindFunction:
		return "function"
	case KindModule:
		return "module"
	case KindValue:
		return "value"
	default:
		return "unknown"
	}
}

// Capability is one named symbol intentionally exposed to sandboxed
// code. Bind produces the concrete value for a fresh session; a nil
// return means the capability is unavailable and the name is simply
// not installed (scripts referencing it fail with a reference error
// at run time, never at registry build time).
type Capability struct {
	Name string
	Kind Kind
	Bind func(s *session) any
}

// Registry is the immutable set of capabilities installed into every
// execution namespace. It is built once and shared read-only across
// concurrent sessions.
type Registry struct {
	caps         []Capability
	baseline     map[string]struct{}
	maxCallStack int
}

// NewRegistry builds the default capability table. The table contains
// only pure callables and the curated numeric/plotting entry points;
// nothing here can touch the filesystem (outside the artifact store),
// the network, or the host process.
func NewRegistry(maxCallStack int) *Registry {
	if maxCallStack <= 0 {
		maxCallStack = defaultMaxCallStack
	}
	r := &Registry{
		caps: []Capability{
			{Name: "print", Kind: KindFunction, Bind: bindPrint},
			{Name: "console", Kind: KindModule, Bind: bindConsole},
			{Name: "require", Kind: KindFunction, Bind: bindRequire},
			{Name: "plot", Kind: KindModule, Bind: bindPlotGlobal},
			{Name: "range", Kind: KindFunction, Bind: bindRange},
		},
		maxCallStack: maxCallStack,
	}
	r.baseline = make(map[string]struct{}, len(r.caps)+1)
	for _, c := range r.caps {
		r.baseline[c.Name] = struct{}{}
	}
	r.baseline["eval"] = struct{}{}
	r.baseline["Function"] = struct{}{}
	return r
}

// Capabilities returns a copy of the capability table, for auditing.
func (r *Registry) Capabilities() []Capability {
	out := make([]Capability, len(r.caps))
	copy(out, r.caps)
	return out
}

// Contains reports whether a symbol name is part of the registry.
func (r *Registry) Contains(name string) bool {
	_, ok := r.baseline[name]
	return ok
}

// BaselineNames returns the set of names the registry installs. The
// serializer uses it to tell script-created variables apart from the
// pre-installed namespace.
func (r *Registry) BaselineNames() map[string]struct{} {
	out := make(map[string]struct{}, len(r.baseline))
	for name := range r.baseline {
		out[name] = struct{}{}
	}
	return out
}

// install populates a fresh VM with the capability set and disables
// the escape hatches goja ships enabled (eval, the Function
// constructor). Call-stack depth is capped so runaway recursion is
// caught before the wall clock.
func (r *Registry) install(s *session) error {
	vm := s.vm
	vm.SetMaxCallStackSize(r.maxCallStack)
	vm.SetFieldNameMapper(goja.UncapFieldNameMapper())

	for _, c := range r.caps {
		v := c.Bind(s)
		if v == nil {
			continue
		}
		if err := vm.Set(c.Name, v); err != nil {
			return fmt.Errorf("failed to install capability %q: %w", c.Name, err)
		}
	}

	if err := vm.Set("eval", goja.Undefined()); err != nil {
		return fmt.Errorf("failed to disable eval: %w", err)
	}
	// The Function constructor is eval in disguise; shadow the global
	// and make the prototype route throw.
	if err := vm.Set("Function", goja.Undefined()); err != nil {
		return fmt.Errorf("failed to disable the Function constructor: %w", err)
	}
	_, _ = vm.RunString(`(function() {
		try {
			Object.defineProperty(Function.prototype, 'constructor', {
				value: function() { throw new TypeError('Function constructor is disabled'); },
				writable: false,
				configurable: false
			});
		} catch (e) {}
	})();`)
	return nil
}

func bindPrint(s *session) any {
	return func(call goja.FunctionCall) goja.Value {
		s.capture.WriteStdoutLine(joinArgs(call.Arguments))
		return goja.Undefined()
	}
}

func bindConsole(s *session) any {
	toStdout := func(call goja.FunctionCall) goja.Value {
		s.capture.WriteStdoutLine(joinArgs(call.Arguments))
		return goja.Undefined()
	}
	toStderr := func(call goja.FunctionCall) goja.Value {
		s.capture.WriteStderrLine(joinArgs(call.Arguments))
		return goja.Undefined()
	}
	return map[string]any{
		"log":   toStdout,
		"info":  toStdout,
		"warn":  toStderr,
		"error": toStderr,
	}
}

func bindRequire(s *session) any {
	return func(name string) (any, error) {
		return s.gate.Resolve(name, s)
	}
}

func bindPlotGlobal(s *session) any {
	if !s.gate.Allowed(moduleNamePlot) {
		return nil
	}
	mod, err := s.gate.Resolve(moduleNamePlot, s)
	if err != nil {
		return nil
	}
	return mod
}

func bindRange(s *session) any {
	return func(bounds ...int64) ([]int64, error) {
		var start, stop, step int64
		step = 1
		switch len(bounds) {
		case 1:
			stop = bounds[0]
		case 2:
			start, stop = bounds[0], bounds[1]
		case 3:
			start, stop, step = bounds[0], bounds[1], bounds[2]
			if step == 0 {
				return nil, fmt.Errorf("range() step must not be zero")
			}
		default:
			return nil, fmt.Errorf("range() takes 1 to 3 arguments, got %d", len(bounds))
		}
		out := []int64{}
		if step > 0 {
			for i := start; i < stop; i += step {
				out = append(out, i)
			}
		} else {
			for i := start; i > stop; i += step {
				out = append(out, i)
			}
		}
		return out, nil
	}
}

func joinArgs(args []goja.Value) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		parts = append(parts, a.String())
	}
	return strings.Join(parts, " ")
}
