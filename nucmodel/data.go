package nucmodel

import (
	"fmt"
	"os"

	"github.com/bjoelle/tree-likelihood/bio"
	"github.com/bjoelle/tree-likelihood/nuc"
	"github.com/bjoelle/tree-likelihood/tree"
)

// MissingTaxonError reports a tip without a sequence, or a sequence
// without a tip.
type MissingTaxonError struct {
	Taxon string
	// Missing names the side lacking the taxon, "alignment" or
	// "tree".
	Missing string
}

func (e *MissingTaxonError) Error() string {
	return fmt.Sprintf("taxon %q is missing from the %s", e.Taxon, e.Missing)
}

// Data bundles the validated inputs of a likelihood computation: the
// tree, the encoded alignment and the stationary frequencies. After
// NewData succeeds nothing here is ever mutated, so a Data can be
// shared by concurrent engines.
type Data struct {
	// Seqs is the encoded alignment, ordered by tree leaf id.
	Seqs nuc.Sequences
	// Tree is the phylogenetic tree.
	Tree *tree.Tree
	// Freq is the stationary frequency vector.
	Freq nuc.Frequency
}

// NewData validates the inputs and reorders the alignment so that
// sequence i belongs to the leaf with LeafID i. This is the single
// eager validation point: traversals assume a valid Data.
func NewData(t *tree.Tree, seqs nuc.Sequences, cf nuc.Frequency) (*Data, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if err := cf.Validate(); err != nil {
		return nil, err
	}
	if seqs.Length() == 0 {
		return nil, fmt.Errorf("zero length alignment")
	}

	nm2id := make(map[string]int, len(seqs))
	for i, s := range seqs {
		nm2id[s.Name] = i
	}
	if len(nm2id) != len(seqs) {
		return nil, fmt.Errorf("duplicated taxon name in the alignment")
	}

	ordered := make(nuc.Sequences, t.NLeaves())
	seen := make(map[string]bool, len(seqs))
	for _, id := range t.Terminals() {
		si, ok := nm2id[t.Label(id)]
		if !ok {
			return nil, &MissingTaxonError{Taxon: t.Label(id), Missing: "alignment"}
		}
		ordered[t.LeafID(id)] = seqs[si]
		seen[t.Label(id)] = true
	}
	for _, s := range seqs {
		if !seen[s.Name] {
			return nil, &MissingTaxonError{Taxon: s.Name, Missing: "tree"}
		}
	}

	return &Data{Seqs: ordered, Tree: t, Freq: cf}, nil
}

// ReadData reads a Newick tree and a FASTA alignment from files and
// builds a Data. freq selects the stationary frequencies: "F0"
// (uniform), "FOBS" (observed counts) or a file name to read them
// from.
func ReadData(treeFileName, alignmentFileName, freq string) (*Data, error) {
	treeFile, err := os.Open(treeFileName)
	if err != nil {
		return nil, err
	}
	defer treeFile.Close()

	t, err := tree.ParseNewick(treeFile)
	if err != nil {
		return nil, err
	}

	fastaFile, err := os.Open(alignmentFileName)
	if err != nil {
		return nil, err
	}
	defer fastaFile.Close()

	ali, err := bio.ParseFasta(fastaFile)
	if err != nil {
		return nil, err
	}
	seqs, err := nuc.ToSequences(ali)
	if err != nil {
		return nil, err
	}
	log.Infof("Read alignment of %d sites, %d fixed positions, %d ambiguous positions",
		seqs.Length(), seqs.NFixed(), seqs.NAmbiguous())

	var cf nuc.Frequency
	switch freq {
	case "F0":
		log.Info("F0 frequency")
		cf = nuc.F0()
	case "FOBS":
		log.Info("Observed frequency")
		cf, err = nuc.FObs(seqs)
		if err != nil {
			return nil, err
		}
	default:
		log.Infof("Reading frequency from %s", freq)
		freqFile, ferr := os.Open(freq)
		if ferr != nil {
			return nil, ferr
		}
		defer freqFile.Close()
		cf, err = nuc.ReadFrequency(freqFile)
		if err != nil {
			return nil, err
		}
	}

	return NewData(t, seqs, cf)
}
