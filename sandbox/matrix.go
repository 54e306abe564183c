package sandbox

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Matrix is the dense numeric matrix handle exposed to scripts through
// the matrix module. Methods surface in scripts with a lowercased
// first letter (m.mul(n), m.t(), ...). Dimension mismatches come back
// as thrown script errors, not host panics.
type Matrix struct {
	d *mat.Dense
}

func newMatrixFromRows(rows [][]float64) (*Matrix, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, fmt.Errorf("matrix.of requires a non-empty rectangular array")
	}
	cols := len(rows[0])
	data := make([]float64, 0, len(rows)*cols)
	for i, row := range rows {
		if len(row) != cols {
			return nil, fmt.Errorf("matrix.of: row %d has %d columns, expected %d", i, len(row), cols)
		}
		data = append(data, row...)
	}
	return &Matrix{d: mat.NewDense(len(rows), cols, data)}, nil
}

func (m *Matrix) Rows() int { r, _ := m.d.Dims(); return r }
func (m *Matrix) Cols() int { _, c := m.d.Dims(); return c }

func (m *Matrix) Get(i, j int) (float64, error) {
	r, c := m.d.Dims()
	if i < 0 || i >= r || j < 0 || j >= c {
		return 0, fmt.Errorf("matrix index (%d,%d) out of bounds for %dx%d matrix", i, j, r, c)
	}
	return m.d.At(i, j), nil
}

func (m *Matrix) Set(i, j int, v float64) error {
	r, c := m.d.Dims()
	if i < 0 || i >= r || j < 0 || j >= c {
		return fmt.Errorf("matrix index (%d,%d) out of bounds for %dx%d matrix", i, j, r, c)
	}
	m.d.Set(i, j, v)
	return nil
}

func (m *Matrix) Row(i int) ([]float64, error) {
	r, _ := m.d.Dims()
	if i < 0 || i >= r {
		return nil, fmt.Errorf("matrix row %d out of bounds for %d rows", i, r)
	}
	return mat.Row(nil, i, m.d), nil
}

func (m *Matrix) Add(o *Matrix) (*Matrix, error) {
	if err := sameDims("add", m, o); err != nil {
		return nil, err
	}
	var out mat.Dense
	out.Add(m.d, o.d)
	return &Matrix{d: &out}, nil
}

func (m *Matrix) Sub(o *Matrix) (*Matrix, error) {
	if err := sameDims("sub", m, o); err != nil {
		return nil, err
	}
	var out mat.Dense
	out.Sub(m.d, o.d)
	return &Matrix{d: &out}, nil
}

func (m *Matrix) Mul(o *Matrix) (*Matrix, error) {
	_, mc := m.d.Dims()
	or, _ := o.d.Dims()
	if mc != or {
		return nil, fmt.Errorf("matrix mul: inner dimensions differ (%d vs %d)", mc, or)
	}
	var out mat.Dense
	out.Mul(m.d, o.d)
	return &Matrix{d: &out}, nil
}

func (m *Matrix) Scale(f float64) *Matrix {
	var out mat.Dense
	out.Scale(f, m.d)
	return &Matrix{d: &out}
}

// T returns the transpose as a new matrix.
func (m *Matrix) T() *Matrix {
	var out mat.Dense
	out.CloneFrom(m.d.T())
	return &Matrix{d: &out}
}

// ToList converts the matrix to nested row slices. The serializer uses
// this to report matrices as JSON arrays that round-trip through
// matrix.of.
func (m *Matrix) ToList() [][]float64 {
	r, c := m.d.Dims()
	rows := make([][]float64, r)
	for i := 0; i < r; i++ {
		row := make([]float64, c)
		for j := 0; j < c; j++ {
			row[j] = m.d.At(i, j)
		}
		rows[i] = row
	}
	return rows
}

func (m *Matrix) String() string {
	r, c := m.d.Dims()
	return fmt.Sprintf("matrix(%dx%d)", r, c)
}

func sameDims(op string, a, b *Matrix) error {
	ar, ac := a.d.Dims()
	br, bc := b.d.Dims()
	if ar != br || ac != bc {
		return fmt.Errorf("matrix %s: dimensions differ (%dx%d vs %dx%d)", op, ar, ac, br, bc)
	}
	return nil
}

func buildMatrixModule(_ *session) any {
	return map[string]any{
		"of": func(rows [][]float64) (*Matrix, error) {
			return newMatrixFromRows(rows)
		},
		"zeros": func(r, c int) (*Matrix, error) {
			if r <= 0 || c <= 0 {
				return nil, fmt.Errorf("matrix.zeros requires positive dimensions, got %dx%d", r, c)
			}
			return &Matrix{d: mat.NewDense(r, c, nil)}, nil
		},
		"identity": func(n int) (*Matrix, error) {
			if n <= 0 {
				return nil, fmt.Errorf("matrix.identity requires a positive size, got %d", n)
			}
			d := mat.NewDense(n, n, nil)
			for i := 0; i < n; i++ {
				d.Set(i, i, 1)
			}
			return &Matrix{d: d}, nil
		},
	}
}
