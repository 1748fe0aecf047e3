// Package nucmodel provides nucleotide substitution models and the
// pruning likelihood engine.
package nucmodel

import (
	"fmt"
	"math"

	"github.com/gonum/matrix/mat64"

	"github.com/bjoelle/tree-likelihood/nuc"
)

// Model is a nucleotide substitution model. TransitionProb is the
// only required operation: the probability of ending in state j
// after evolving along a branch of length v (expected substitutions
// per site) from state i. For every i and v >= 0 the probabilities
// over j sum to one.
type Model interface {
	// TransitionProb returns p_ij(v).
	TransitionProb(i, j int, v float64) float64
	// Freq returns the model stationary frequencies.
	Freq() nuc.Frequency
	// String returns a short model description.
	String() string
}

// branchExper is an optional fast path: models backed by a
// decomposed Q-matrix fill a whole row-major P-matrix at once.
type branchExper interface {
	expBranch(dst []float64, v float64) error
}

// expBranch fills dst (row-major NState x NState) with the
// transition matrix of a model for one branch.
func expBranch(m Model, dst []float64, v float64) error {
	if be, ok := m.(branchExper); ok {
		return be.expBranch(dst, v)
	}
	for i := 0; i < nuc.NState; i++ {
		for j := 0; j < nuc.NState; j++ {
			dst[i*nuc.NState+j] = m.TransitionProb(i, j, v)
		}
	}
	return nil
}

// JC69 is the Jukes-Cantor model: a single substitution rate and
// uniform frequencies.
type JC69 struct{}

// TransitionProb returns p_ij(v) under JC69.
func (JC69) TransitionProb(i, j int, v float64) float64 {
	e := math.Exp(-4. * v / 3.)
	if i == j {
		return 1./4. + 3./4.*e
	}
	return 1./4. - 1./4.*e
}

// Freq returns uniform frequencies.
func (JC69) Freq() nuc.Frequency {
	return nuc.F0()
}

func (JC69) String() string {
	return "JC69"
}

// K80 is the Kimura two-parameter model: transitions (A<->G, C<->T)
// and transversions have different rates; frequencies are uniform.
type K80 struct {
	// Kappa is the transition/transversion rate ratio; 1 reduces
	// K80 to JC69.
	Kappa float64
}

// isTransition returns true for the two purine<->purine and
// pyrimidine<->pyrimidine pairs. In alphabet order A C G T the
// states of a transition pair have equal parity.
func isTransition(i, j int) bool {
	return i != j && (i+j)%2 == 0
}

// TransitionProb returns p_ij(v) under K80.
func (m K80) TransitionProb(i, j int, v float64) float64 {
	k := m.Kappa
	e1 := math.Exp(-4. * v / (k + 2.))
	switch {
	case i == j:
		e2 := math.Exp(-2. * v * (k + 1.) / (k + 2.))
		return 1./4. + 1./4.*e1 + 1./2.*e2
	case isTransition(i, j):
		e2 := math.Exp(-2. * v * (k + 1.) / (k + 2.))
		return 1./4. + 1./4.*e1 - 1./2.*e2
	default:
		return 1./4. - 1./4.*e1
	}
}

// Freq returns uniform frequencies.
func (K80) Freq() nuc.Frequency {
	return nuc.F0()
}

func (m K80) String() string {
	return fmt.Sprintf("K80(kappa=%v)", m.Kappa)
}

// GTR is the general time-reversible model: six exchangeability
// parameters and an arbitrary stationary frequency vector. The
// Q-matrix is normalized to one expected substitution per unit
// branch length and exponentiated through its eigendecomposition.
type GTR struct {
	rates [6]float64
	cf    nuc.Frequency
	em    *nuc.EMatrix
}

// NewGTR creates a GTR model from exchangeabilities (upper-triangle
// order: AC, AG, AT, CG, CT, GT) and stationary frequencies.
func NewGTR(rates [6]float64, cf nuc.Frequency) (*GTR, error) {
	if err := cf.Validate(); err != nil {
		return nil, err
	}
	for _, r := range rates {
		if r < 0 || math.IsNaN(r) {
			return nil, fmt.Errorf("negative exchangeability %v", r)
		}
	}

	q := mat64.NewDense(nuc.NState, nuc.NState, nil)
	ri := 0
	for i := 0; i < nuc.NState; i++ {
		for j := i + 1; j < nuc.NState; j++ {
			q.Set(i, j, rates[ri]*cf[j])
			q.Set(j, i, rates[ri]*cf[i])
			ri++
		}
	}
	scale := 0.0
	for i := 0; i < nuc.NState; i++ {
		rowSum := 0.0
		for j := 0; j < nuc.NState; j++ {
			if i != j {
				rowSum += q.At(i, j)
			}
		}
		q.Set(i, i, -rowSum)
		scale += cf[i] * rowSum
	}

	m := &GTR{rates: rates, cf: cf, em: nuc.NewEMatrix(cf)}
	m.em.Set(q, scale)
	if err := m.em.Eigen(); err != nil {
		return nil, err
	}
	return m, nil
}

// TransitionProb returns p_ij(v) under GTR. The pruning engine uses
// the whole-matrix path instead.
func (m *GTR) TransitionProb(i, j int, v float64) float64 {
	var p [nuc.NState * nuc.NState]float64
	if err := m.em.Exp(p[:], v); err != nil {
		panic(err)
	}
	return p[i*nuc.NState+j]
}

func (m *GTR) expBranch(dst []float64, v float64) error {
	return m.em.Exp(dst, v)
}

// Freq returns the model stationary frequencies.
func (m *GTR) Freq() nuc.Frequency {
	return m.cf
}

func (m *GTR) String() string {
	return fmt.Sprintf("GTR(rates=%v, freq=%v)", m.rates, []float64(m.cf))
}
