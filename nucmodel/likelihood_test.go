package nucmodel

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/bjoelle/tree-likelihood/bio"
	"github.com/bjoelle/tree-likelihood/nuc"
	"github.com/bjoelle/tree-likelihood/tree"
)

const threeTaxonTree = "((t1:0.1,t2:0.1):0.1,t3:0.1);"

func parseTree(tst testing.TB, s string) *tree.Tree {
	t, err := tree.ParseNewick(strings.NewReader(s))
	if err != nil {
		tst.Fatal("Error parsing tree:", err)
	}
	return t
}

func newSequences(tst testing.TB, names, seqs []string) nuc.Sequences {
	ali := make(bio.Sequences, len(names))
	for i := range names {
		ali[i] = bio.Sequence{Name: names[i], Sequence: seqs[i]}
	}
	res, err := nuc.ToSequences(ali)
	if err != nil {
		tst.Fatal("Error encoding alignment:", err)
	}
	return res
}

func newData(tst testing.TB, treeStr string, names, seqs []string) *Data {
	data, err := NewData(parseTree(tst, treeStr), newSequences(tst, names, seqs), nuc.F0())
	if err != nil {
		tst.Fatal("Error creating data:", err)
	}
	return data
}

func TestLikelihoodReference(tst *testing.T) {
	data := newData(tst, threeTaxonTree,
		[]string{"t1", "t2", "t3"},
		[]string{"A", "A", "A"})

	e := NewEngine(data, JC69{})
	refL := -1.775679
	lnL := e.Likelihood()
	if math.Abs(lnL-refL) > smallDiff {
		tst.Error("Expected lnL = ", refL, ", got", lnL)
	}

	sl := e.SiteLikelihoods()
	if len(sl) != 1 || math.Abs(sl[0]-lnL) > 1e-12 {
		tst.Error("Site log-likelihoods do not sum to the total:", sl)
	}
}

func TestSiteLikelihoodReference(tst *testing.T) {
	t := parseTree(tst, threeTaxonTree)
	a := []float64{1, 0, 0, 0}
	tips := map[string][]float64{"t1": a, "t2": a, "t3": a}

	res, err := SiteLikelihood(t, tips, JC69{}, nuc.F0())
	if err != nil {
		tst.Fatal("Error computing site likelihood:", err)
	}
	refL := 0.169368
	if math.Abs(res-refL) > smallDiff {
		tst.Error("Expected site likelihood", refL, ", got", res)
	}
}

func TestLikelihoodLogSum(tst *testing.T) {
	single := newData(tst, threeTaxonTree,
		[]string{"t1", "t2", "t3"},
		[]string{"A", "A", "A"})
	repeated := newData(tst, threeTaxonTree,
		[]string{"t1", "t2", "t3"},
		[]string{"AAAAAAAAAA", "AAAAAAAAAA", "AAAAAAAAAA"})

	l1 := NewEngine(single, JC69{}).Likelihood()
	l10 := NewEngine(repeated, JC69{}).Likelihood()
	if math.Abs(l10-10*l1) > 1e-10 {
		tst.Error("Expected", 10*l1, ", got", l10)
	}
}

func TestLikelihoodOrderIndependent(tst *testing.T) {
	d1 := newData(tst, threeTaxonTree,
		[]string{"t1", "t2", "t3"},
		[]string{"ACGT", "AAGT", "ACGA"})
	d2 := newData(tst, threeTaxonTree,
		[]string{"t3", "t1", "t2"},
		[]string{"ACGA", "ACGT", "AAGT"})

	l1 := NewEngine(d1, K80{Kappa: 4}).Likelihood()
	l2 := NewEngine(d2, K80{Kappa: 4}).Likelihood()
	if math.Abs(l1-l2) > 1e-12 {
		tst.Error("Likelihood depends on sequence order:", l1, "vs", l2)
	}
}

func TestMissingTaxon(tst *testing.T) {
	t := parseTree(tst, threeTaxonTree)

	_, err := NewData(t, newSequences(tst,
		[]string{"t1", "t2"},
		[]string{"A", "A"}), nuc.F0())
	var merr *MissingTaxonError
	if !errors.As(err, &merr) || merr.Taxon != "t3" || merr.Missing != "alignment" {
		tst.Error("Expected missing taxon t3, got", err)
	}

	_, err = NewData(t, newSequences(tst,
		[]string{"t1", "t2", "t3", "t4"},
		[]string{"A", "A", "A", "A"}), nuc.F0())
	if !errors.As(err, &merr) || merr.Taxon != "t4" || merr.Missing != "tree" {
		tst.Error("Expected taxon t4 missing from the tree, got", err)
	}
}

func TestAllMissingSite(tst *testing.T) {
	// an all-gap column carries no information, its likelihood is one
	data := newData(tst, threeTaxonTree,
		[]string{"t1", "t2", "t3"},
		[]string{"N-", "?N", "N."})

	lnL := NewEngine(data, JC69{}).Likelihood()
	if math.Abs(lnL) > 1e-12 {
		tst.Error("Expected lnL = 0, got", lnL)
	}
}

func TestRateVariation(tst *testing.T) {
	data := newData(tst, threeTaxonTree,
		[]string{"t1", "t2", "t3"},
		[]string{"ACGT", "AAGT", "ACGA"})

	e0 := NewEngine(data, JC69{})
	l0 := e0.Likelihood()

	// a single category is no variation at all
	e1 := NewEngine(data, JC69{})
	if err := e1.SetRateVariation(0.5, 1); err != nil {
		tst.Fatal("Error setting rate variation:", err)
	}
	if l1 := e1.Likelihood(); math.Abs(l1-l0) > 1e-12 {
		tst.Error("Expected", l0, ", got", l1)
	}

	// a huge shape parameter concentrates all categories at rate one
	e2 := NewEngine(data, JC69{})
	if err := e2.SetRateVariation(1e6, 4); err != nil {
		tst.Fatal("Error setting rate variation:", err)
	}
	if l2 := e2.Likelihood(); math.Abs(l2-l0) > 1e-5 {
		tst.Error("Expected", l0, ", got", l2)
	}

	// real variation changes the likelihood
	e3 := NewEngine(data, JC69{})
	if err := e3.SetRateVariation(0.5, 4); err != nil {
		tst.Fatal("Error setting rate variation:", err)
	}
	if l3 := e3.Likelihood(); math.Abs(l3-l0) < 1e-6 {
		tst.Error("Expected rate variation to change the likelihood:", l3)
	}

	if err := NewEngine(data, JC69{}).SetRateVariation(-1, 4); err == nil {
		tst.Error("Expected error for a negative shape parameter")
	}
	if err := NewEngine(data, JC69{}).SetRateVariation(0.5, 0); err == nil {
		tst.Error("Expected error for zero categories")
	}
}

func TestSiteLikelihoodMatchesEngine(tst *testing.T) {
	names := []string{"t1", "t2", "t3"}
	seqs := []string{"ACGTN", "AAGTC", "ACGAC"}
	data := newData(tst, threeTaxonTree, names, seqs)

	e := NewEngine(data, JC69{})
	e.Likelihood()
	sl := e.SiteLikelihoods()

	t := parseTree(tst, threeTaxonTree)
	enc := newSequences(tst, names, seqs)
	for pos := 0; pos < len(sl); pos++ {
		res, err := SiteLikelihood(t, enc.EncodeSite(pos), JC69{}, nuc.F0())
		if err != nil {
			tst.Fatal("Error computing site likelihood:", err)
		}
		if math.Abs(math.Log(res)-sl[pos]) > 1e-12 {
			tst.Error("Site", pos, ": expected", sl[pos], ", got", math.Log(res))
		}
	}
}

func TestGTRMatchesJC69(tst *testing.T) {
	data := newData(tst, threeTaxonTree,
		[]string{"t1", "t2", "t3"},
		[]string{"ACGT", "AAGT", "ACGA"})

	gtr, err := NewGTR([6]float64{1, 1, 1, 1, 1, 1}, nuc.F0())
	if err != nil {
		tst.Fatal("Error creating GTR:", err)
	}
	lj := NewEngine(data, JC69{}).Likelihood()
	lg := NewEngine(data, gtr).Likelihood()
	if math.Abs(lj-lg) > 1e-8 {
		tst.Error("Expected", lj, ", got", lg)
	}
}

func TestLogLikelihood(tst *testing.T) {
	t := parseTree(tst, threeTaxonTree)
	seqs := newSequences(tst,
		[]string{"t1", "t2", "t3"},
		[]string{"A", "A", "A"})

	lnL, err := LogLikelihood(t, seqs, JC69{}, nuc.F0())
	if err != nil {
		tst.Fatal("Error computing log-likelihood:", err)
	}
	refL := -1.775679
	if math.Abs(lnL-refL) > smallDiff {
		tst.Error("Expected lnL = ", refL, ", got", lnL)
	}
}

func BenchmarkLikelihood(b *testing.B) {
	site := "ACGT"
	data := newData(b, threeTaxonTree,
		[]string{"t1", "t2", "t3"},
		[]string{
			strings.Repeat(site, 250),
			strings.Repeat("AAGT", 250),
			strings.Repeat("ACGA", 250),
		})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		NewEngine(data, JC69{}).Likelihood()
	}
}
