package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustMatrix(t *testing.T, rows [][]float64) *Matrix {
	t.Helper()
	m, err := newMatrixFromRows(rows)
	require.NoError(t, err)
	return m
}

func TestNewMatrixFromRows(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		m := mustMatrix(t, [][]float64{{1, 2, 3}, {4, 5, 6}})
		assert.Equal(t, 2, m.Rows())
		assert.Equal(t, 3, m.Cols())
	})

	t.Run("Empty", func(t *testing.T) {
		_, err := newMatrixFromRows(nil)
		assert.Error(t, err)
	})

	t.Run("Ragged", func(t *testing.T) {
		_, err := newMatrixFromRows([][]float64{{1, 2}, {3}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "row 1")
	})
}

func TestMatrixAccess(t *testing.T) {
	m := mustMatrix(t, [][]float64{{1, 2}, {3, 4}})

	t.Run("Get", func(t *testing.T) {
		v, err := m.Get(1, 0)
		require.NoError(t, err)
		assert.Equal(t, 3.0, v)
	})

	t.Run("GetOutOfBounds", func(t *testing.T) {
		_, err := m.Get(2, 0)
		assert.Error(t, err)
		_, err = m.Get(0, -1)
		assert.Error(t, err)
	})

	t.Run("Set", func(t *testing.T) {
		m := mustMatrix(t, [][]float64{{0, 0}})
		require.NoError(t, m.Set(0, 1, 9))
		v, err := m.Get(0, 1)
		require.NoError(t, err)
		assert.Equal(t, 9.0, v)
	})

	t.Run("SetOutOfBounds", func(t *testing.T) {
		assert.Error(t, m.Set(5, 5, 1))
	})

	t.Run("Row", func(t *testing.T) {
		row, err := m.Row(1)
		require.NoError(t, err)
		assert.Equal(t, []float64{3, 4}, row)

		_, err = m.Row(2)
		assert.Error(t, err)
	})
}

func TestMatrixArithmetic(t *testing.T) {
	a := mustMatrix(t, [][]float64{{1, 2}, {3, 4}})
	b := mustMatrix(t, [][]float64{{5, 6}, {7, 8}})

	t.Run("Add", func(t *testing.T) {
		sum, err := a.Add(b)
		require.NoError(t, err)
		assert.Equal(t, [][]float64{{6, 8}, {10, 12}}, sum.ToList())
	})

	t.Run("Sub", func(t *testing.T) {
		diff, err := b.Sub(a)
		require.NoError(t, err)
		assert.Equal(t, [][]float64{{4, 4}, {4, 4}}, diff.ToList())
	})

	t.Run("Mul", func(t *testing.T) {
		prod, err := a.Mul(a)
		require.NoError(t, err)
		assert.Equal(t, [][]float64{{7, 10}, {15, 22}}, prod.ToList())
	})

	t.Run("MulDimensionMismatch", func(t *testing.T) {
		wide := mustMatrix(t, [][]float64{{1, 2, 3}})
		_, err := wide.Mul(wide)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "inner dimensions")
	})

	t.Run("AddDimensionMismatch", func(t *testing.T) {
		wide := mustMatrix(t, [][]float64{{1, 2, 3}})
		_, err := a.Add(wide)
		assert.Error(t, err)
	})

	t.Run("Scale", func(t *testing.T) {
		assert.Equal(t, [][]float64{{2, 4}, {6, 8}}, a.Scale(2).ToList())
	})

	t.Run("Transpose", func(t *testing.T) {
		rect := mustMatrix(t, [][]float64{{1, 2, 3}, {4, 5, 6}})
		assert.Equal(t, [][]float64{{1, 4}, {2, 5}, {3, 6}}, rect.T().ToList())
	})
}

func TestMatrixString(t *testing.T) {
	m := mustMatrix(t, [][]float64{{1, 2, 3}, {4, 5, 6}})
	assert.Equal(t, "matrix(2x3)", m.String())
}

func TestMatrixModuleConstructors(t *testing.T) {
	t.Run("Zeros", func(t *testing.T) {
		v := runModuleSnippet(t, `
			m = require("matrix");
			m.zeros(2, 3).rows()
		`)
		assert.Equal(t, int64(2), v.Export())
	})

	t.Run("Identity", func(t *testing.T) {
		v := runModuleSnippet(t, `
			m = require("matrix");
			m.identity(3).get(1, 1)
		`)
		assert.Equal(t, int64(1), v.Export())
	})

	t.Run("IdentityRejectsNonPositive", func(t *testing.T) {
		s := newBareSession(t)
		require.NoError(t, s.registry.install(s))
		_, err := s.vm.RunString(`require("matrix").identity(0)`)
		assert.Error(t, err)
	})
}
