package nuc

import (
	"errors"
	"math"

	"github.com/gonum/matrix/mat64"
)

// smallScale is a small value such that if Q-scale is less than it,
// the matrix is replaced by an identity matrix.
const smallScale = 1e-30

// EMatrix stores a reversible Q-matrix and its eigendecomposition to
// quickly compute e^Qt.
//
// Reversibility makes D^1/2 Q D^-1/2 symmetric for D = diag(freq),
// so the decomposition is done on the symmetrized matrix and the
// eigenvalues are real.
type EMatrix struct {
	// Q is the Q-matrix.
	Q *mat64.Dense
	// Scale is the Q-matrix scale (the expected number of
	// substitutions per unit time before normalization).
	Scale float64
	// CF is the stationary frequency used for symmetrization.
	CF Frequency

	v  *mat64.Dense
	iv *mat64.Dense
	d  []float64
}

// NewEMatrix creates a new EMatrix for a stationary frequency.
func NewEMatrix(cf Frequency) *EMatrix {
	return &EMatrix{CF: cf}
}

// Set sets the Q-matrix and its scale, invalidating any previous
// decomposition.
func (m *EMatrix) Set(q *mat64.Dense, scale float64) {
	m.Q = q
	m.Scale = scale
	m.v = nil
}

// Eigen performs eigendecomposition of the symmetrized Q-matrix.
func (m *EMatrix) Eigen() error {
	if m.v != nil {
		return nil
	}
	if m.Scale < smallScale {
		// an all-zero matrix exponentiates to identity
		return nil
	}
	rows, cols := m.Q.Dims()
	if rows != cols {
		return errors.New("Q isn't a square matrix")
	}

	sym := mat64.NewSymDense(rows, nil)
	for i := 0; i < rows; i++ {
		for j := i; j < cols; j++ {
			v := math.Sqrt(m.CF[i]/m.CF[j]) * m.Q.At(i, j)
			sym.SetSym(i, j, v)
		}
	}

	var es mat64.EigenSym
	if ok := es.Factorize(sym, true); !ok {
		return errors.New("error decomposing Q")
	}
	m.d = es.Values(nil)

	u := mat64.NewDense(rows, cols, nil)
	u.EigenvectorsSym(&es)

	// Q = D^-1/2 (U L U') D^1/2
	m.v = mat64.NewDense(rows, cols, nil)
	m.iv = mat64.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			m.v.Set(i, j, u.At(i, j)/math.Sqrt(m.CF[i]))
			m.iv.Set(i, j, u.At(j, i)*math.Sqrt(m.CF[j]))
		}
	}
	return nil
}

// Exp computes P=e^Qv and writes it to dst in row-major order. The
// branch length v is measured in expected substitutions per site.
func (m *EMatrix) Exp(dst []float64, v float64) error {
	n := len(m.CF)
	if len(dst) != n*n {
		return errors.New("wrong destination size")
	}
	if m.Scale < smallScale || v < smallScale {
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				if i == j {
					dst[i*n+j] = 1
				} else {
					dst[i*n+j] = 0
				}
			}
		}
		return nil
	}
	if m.v == nil {
		return errors.New("Exp called before Eigen")
	}
	if math.IsInf(v, 1) {
		v = math.MaxFloat64
	}

	t := v / m.Scale
	var ed [NState]float64
	for k := 0; k < n; k++ {
		ed[k] = math.Exp(m.d[k] * t)
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			s := 0.0
			for k := 0; k < n; k++ {
				s += m.v.At(i, k) * ed[k] * m.iv.At(k, j)
			}
			// clip slightly negative values
			dst[i*n+j] = math.Max(0, s)
		}
	}
	return nil
}
