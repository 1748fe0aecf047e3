package nucmodel

import (
	"fmt"
	"math"
	"runtime"

	"github.com/bjoelle/tree-likelihood/dist"
	"github.com/bjoelle/tree-likelihood/nuc"
	"github.com/bjoelle/tree-likelihood/tree"
)

// smallProp: site classes with a smaller proportion are skipped.
const smallProp = 1e-20

// Engine computes alignment likelihoods by Felsenstein pruning. The
// tree, alignment and model are read-only; per-site work is
// independent and fans out over a worker pool with one conditional
// likelihood buffer per worker.
type Engine struct {
	data  *Data
	model Model

	// discrete gamma rate categories, length 1 without rate
	// variation
	rates []float64
	prop  []float64
	alpha float64

	// exponentiated per-class, per-branch transition matrices
	pmats [][][]float64

	// likelihoods per position
	l []float64
}

// NewEngine creates an Engine for validated Data and a model.
func NewEngine(data *Data, model Model) *Engine {
	return &Engine{
		data:  data,
		model: model,
		rates: []float64{1},
		prop:  []float64{1},
		l:     make([]float64, data.Seqs.Length()),
	}
}

// SetRateVariation enables discrete-gamma rate variation across
// sites: ncat categories of equal proportion with mean rate one.
// ncat 1 disables variation.
func (e *Engine) SetRateVariation(alpha float64, ncat int) error {
	if ncat < 1 {
		return fmt.Errorf("need at least one rate category, got %d", ncat)
	}
	if ncat > 1 && alpha <= 0 {
		return fmt.Errorf("gamma shape must be positive, got %v", alpha)
	}
	e.alpha = alpha
	e.rates = dist.DiscreteGamma(alpha, alpha, ncat, false, nil)
	e.prop = make([]float64, ncat)
	for i := range e.prop {
		e.prop[i] = 1 / float64(ncat)
	}
	e.pmats = nil
	log.Debugf("rates=%v", e.rates)
	return nil
}

// expBranches computes the transition matrix of every branch for
// every rate class.
func (e *Engine) expBranches() {
	t := e.data.Tree
	e.pmats = make([][][]float64, len(e.rates))
	for class := range e.rates {
		e.pmats[class] = make([][]float64, t.NNodes())
		for _, id := range t.Postorder() {
			if id == t.Root() {
				continue
			}
			v, err := t.BranchLength(id)
			if err != nil {
				panic(err)
			}
			p := make([]float64, nuc.NState*nuc.NState)
			if err := expBranch(e.model, p, v*e.rates[class]); err != nil {
				panic(fmt.Sprintf("error exponentiating branch %d: %v", id, err))
			}
			e.pmats[class][id] = p
		}
	}
}

// classSubL computes the site likelihood for one rate class using
// the preallocated plh buffers.
func (e *Engine) classSubL(class, pos int, plh [][]float64) (res float64) {
	t := e.data.Tree

	for _, id := range t.Terminals() {
		e.data.Seqs[t.LeafID(id)].Sequence[pos].Vector(plh[id])
	}

	for _, id := range t.Postorder() {
		if t.IsLeaf(id) {
			continue
		}
		for s1 := 0; s1 < nuc.NState; s1++ {
			l := 1.0
			for _, child := range t.ChildNodes(id) {
				// get the matrix row
				q := e.pmats[class][child][s1*nuc.NState:]
				// get child partial likelihood
				cplh := plh[child]
				s := 0.0
				for s2 := 0; s2 < nuc.NState; s2++ {
					s += q[s2] * cplh[s2]
				}
				l *= s
			}
			plh[id][s1] = l
		}
	}

	rplh := plh[t.Root()]
	for s := 0; s < nuc.NState; s++ {
		res += e.data.Freq[s] * rplh[s]
	}
	return
}

// subL computes a single site likelihood, averaged over rate classes.
func (e *Engine) subL(pos int, plh [][]float64) (res float64) {
	for class, p := range e.prop {
		if p <= smallProp {
			continue
		}
		res += e.classSubL(class, pos, plh) * p
	}
	return
}

// SiteLikelihoods returns the per-site log-likelihoods of the last
// Likelihood call.
func (e *Engine) SiteLikelihoods() []float64 {
	return e.l
}

// newPLH allocates conditional likelihood buffers for one worker,
// one vector per node.
func (e *Engine) newPLH() [][]float64 {
	plh := make([][]float64, e.data.Tree.NNodes())
	for i := range plh {
		plh[i] = make([]float64, nuc.NState)
	}
	return plh
}

// Likelihood calculates the alignment log-likelihood. Sites are
// computed on parallel workers; per-site logs land in distinct slice
// slots and are summed once at the end.
func (e *Engine) Likelihood() (lnL float64) {
	if e.pmats == nil {
		e.expBranches()
	}

	nPos := e.data.Seqs.Length()
	nWorkers := runtime.GOMAXPROCS(0)
	if nWorkers > nPos {
		nWorkers = nPos
	}
	tasks := make(chan int, nPos)
	done := make(chan struct{}, nWorkers)

	for i := 0; i < nWorkers; i++ {
		go func() {
			plh := e.newPLH()
			for pos := range tasks {
				e.l[pos] = math.Log(e.subL(pos, plh))
			}
			done <- struct{}{}
		}()
	}

	for pos := 0; pos < nPos; pos++ {
		tasks <- pos
	}
	close(tasks)

	for i := 0; i < nWorkers; i++ {
		<-done
	}

	for pos := 0; pos < nPos; pos++ {
		lnL += e.l[pos]
	}
	if math.IsNaN(lnL) {
		lnL = math.Inf(-1)
	}
	log.Debugf("L=%v", lnL)
	return
}

// SiteLikelihood computes the likelihood of a single site given
// encoded tip vectors: tips maps every taxon label of the tree to a
// conditional likelihood vector of length nuc.NState. All inputs are
// validated before the traversal starts.
func SiteLikelihood(t *tree.Tree, tips map[string][]float64, model Model, cf nuc.Frequency) (float64, error) {
	if err := t.Validate(); err != nil {
		return 0, err
	}
	if err := cf.Validate(); err != nil {
		return 0, err
	}
	for _, id := range t.Terminals() {
		vec, ok := tips[t.Label(id)]
		if !ok {
			return 0, &MissingTaxonError{Taxon: t.Label(id), Missing: "alignment"}
		}
		if len(vec) != nuc.NState {
			return 0, fmt.Errorf("tip vector of %q has %d entries, want %d",
				t.Label(id), len(vec), nuc.NState)
		}
	}

	plh := make([][]float64, t.NNodes())
	for i := range plh {
		plh[i] = make([]float64, nuc.NState)
	}
	var p [nuc.NState * nuc.NState]float64

	for _, id := range t.Terminals() {
		copy(plh[id], tips[t.Label(id)])
	}
	for _, id := range t.Postorder() {
		if t.IsLeaf(id) {
			continue
		}
		nplh := plh[id]
		for s1 := 0; s1 < nuc.NState; s1++ {
			nplh[s1] = 1
		}
		for _, child := range t.ChildNodes(id) {
			v, err := t.BranchLength(child)
			if err != nil {
				panic(err)
			}
			if err := expBranch(model, p[:], v); err != nil {
				panic(err)
			}
			cplh := plh[child]
			for s1 := 0; s1 < nuc.NState; s1++ {
				s := 0.0
				for s2 := 0; s2 < nuc.NState; s2++ {
					s += p[s1*nuc.NState+s2] * cplh[s2]
				}
				nplh[s1] *= s
			}
		}
	}

	res := 0.0
	rplh := plh[t.Root()]
	for s := 0; s < nuc.NState; s++ {
		res += cf[s] * rplh[s]
	}
	return res, nil
}

// LogLikelihood computes the total alignment log-likelihood: the sum
// over sites of the log site likelihoods.
func LogLikelihood(t *tree.Tree, seqs nuc.Sequences, model Model, cf nuc.Frequency) (float64, error) {
	data, err := NewData(t, seqs, cf)
	if err != nil {
		return 0, err
	}
	return NewEngine(data, model).Likelihood(), nil
}
