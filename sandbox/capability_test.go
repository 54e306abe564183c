package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryBuild(t *testing.T) {
	registry := NewRegistry(0)
	require.NotNil(t, registry)

	t.Run("ContainsCoreCapabilities", func(t *testing.T) {
		for _, name := range []string{"print", "console", "require", "plot", "range"} {
			assert.True(t, registry.Contains(name), "missing capability %q", name)
		}
	})

	t.Run("BaselineIncludesDisabledEscapeHatches", func(t *testing.T) {
		assert.True(t, registry.Contains("eval"))
		assert.True(t, registry.Contains("Function"))
	})

	t.Run("NoHostCapabilities", func(t *testing.T) {
		// The registry must never grow entries that reach the host.
		for _, name := range []string{"os", "fs", "exec", "process", "fetch", "open"} {
			assert.False(t, registry.Contains(name), "forbidden capability %q present", name)
		}
	})

	t.Run("BaselineNamesIsACopy", func(t *testing.T) {
		names := registry.BaselineNames()
		delete(names, "print")
		assert.True(t, registry.Contains("print"))
	})

	t.Run("CapabilitiesIsACopy", func(t *testing.T) {
		caps := registry.Capabilities()
		require.NotEmpty(t, caps)
		caps[0].Name = "mutated"
		assert.NotEqual(t, "mutated", registry.Capabilities()[0].Name)
	})

	t.Run("EveryCapabilityHasABinder", func(t *testing.T) {
		for _, c := range registry.Capabilities() {
			assert.NotNil(t, c.Bind, "capability %q has no binder", c.Name)
			assert.NotEmpty(t, c.Name)
		}
	})
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "function", KindFunction.String())
	assert.Equal(t, "module", KindModule.String())
	assert.Equal(t, "value", KindValue.String())
	assert.Equal(t, "unknown", Kind(99).String())
}

func TestRegistryInstall(t *testing.T) {
	s := newBareSession(t)
	require.NoError(t, s.registry.install(s))

	t.Run("PrintInstalled", func(t *testing.T) {
		_, err := s.vm.RunString(`print("hello")`)
		require.NoError(t, err)
		assert.Equal(t, "hello\n", s.capture.Stdout())
	})

	t.Run("ConsoleSplitsStreams", func(t *testing.T) {
		_, err := s.vm.RunString(`console.error("bad thing")`)
		require.NoError(t, err)
		assert.Contains(t, s.capture.Stderr(), "bad thing")
	})

	t.Run("EvalDisabled", func(t *testing.T) {
		_, err := s.vm.RunString(`eval("1")`)
		assert.Error(t, err)
	})

	t.Run("FunctionConstructorDisabled", func(t *testing.T) {
		_, err := s.vm.RunString(`Function("return 7")`)
		assert.Error(t, err)
	})

	t.Run("FunctionPrototypeRouteDisabled", func(t *testing.T) {
		_, err := s.vm.RunString(`(function() {}).constructor("return 7")`)
		assert.Error(t, err)
	})

	t.Run("RangeHelper", func(t *testing.T) {
		v, err := s.vm.RunString(`range(2, 8, 2)`)
		require.NoError(t, err)
		assert.Equal(t, []int64{2, 4, 6}, v.Export())
	})

	t.Run("RangeRejectsZeroStep", func(t *testing.T) {
		_, err := s.vm.RunString(`range(0, 5, 0)`)
		assert.Error(t, err)
	})
}

func TestPlotGlobalFollowsAllowlist(t *testing.T) {
	s := newBareSession(t)
	s.gate = NewGate([]string{"math"}) // plot not allowed
	require.NoError(t, s.registry.install(s))

	v := s.vm.GlobalObject().Get("plot")
	assert.True(t, v == nil || v.Export() == nil, "plot should not be installed when denied")
}
