// Package nuc provides nucleotide alphabet handling, encoded
// alignments and state frequencies.
package nuc

import (
	"bytes"
	"fmt"

	"github.com/bjoelle/tree-likelihood/bio"
)

// NState is the alphabet size.
const NState = 4

var (
	// Alphabet is the nucleotide alphabet in state order.
	Alphabet = [NState]byte{'A', 'C', 'G', 'T'}
	// rAlphabet is reverse nucleotide alphabet (letter to a state
	// number).
	rAlphabet = map[byte]int{'A': 0, 'C': 1, 'G': 2, 'T': 3}
)

// StateSet is the set of states compatible with one observed
// character, one bit per state. An unambiguous character has a
// single bit set; N and gaps have all bits set.
type StateSet byte

// AllStates is the StateSet carrying no information.
const AllStates StateSet = 1<<NState - 1

// stateSets maps observed characters (including IUPAC ambiguity
// codes) to their state sets.
var stateSets = map[byte]StateSet{
	'A': 1 << 0, 'C': 1 << 1, 'G': 1 << 2, 'T': 1 << 3,
	'U': 1 << 3,
	'R': 1<<0 | 1<<2, // puRine
	'Y': 1<<1 | 1<<3, // pYrimidine
	'S': 1<<1 | 1<<2,
	'W': 1<<0 | 1<<3,
	'K': 1<<2 | 1<<3,
	'M': 1<<0 | 1<<1,
	'B': AllStates &^ (1 << 0),
	'D': AllStates &^ (1 << 1),
	'H': AllStates &^ (1 << 2),
	'V': AllStates &^ (1 << 3),
	'N': AllStates, '-': AllStates, '?': AllStates, '.': AllStates, 'X': AllStates,
}

// Has returns true if state s belongs to the set.
func (ss StateSet) Has(s int) bool {
	return ss&(1<<uint(s)) != 0
}

// State returns the single state of an unambiguous set, -1 otherwise.
func (ss StateSet) State() int {
	for s := 0; s < NState; s++ {
		if ss == 1<<uint(s) {
			return s
		}
	}
	return -1
}

// Vector fills dst with the conditional likelihood vector of a tip
// observing this set: 1 at every member state, 0 elsewhere.
func (ss StateSet) Vector(dst []float64) {
	for s := 0; s < NState; s++ {
		if ss.Has(s) {
			dst[s] = 1
		} else {
			dst[s] = 0
		}
	}
}

// String returns the character for the state set, or N when the set
// has no character of its own.
func (ss StateSet) String() string {
	for c, s := range stateSets {
		if s == ss && c != 'U' && c != '-' && c != '?' && c != '.' && c != 'X' {
			return string(c)
		}
	}
	return "N"
}

// UnknownCharacterError reports an alignment character outside the
// alphabet which is not a recognized ambiguity code.
type UnknownCharacterError struct {
	Taxon string
	Site  int
	Char  byte
}

func (e *UnknownCharacterError) Error() string {
	return fmt.Sprintf("unknown character %q at site %d of taxon %q", e.Char, e.Site, e.Taxon)
}

// SequenceLengthMismatchError reports alignment sequences of
// differing lengths.
type SequenceLengthMismatchError struct {
	Taxon    string
	Length   int
	Expected int
}

func (e *SequenceLengthMismatchError) Error() string {
	return fmt.Sprintf("sequence of taxon %q has %d sites, want %d", e.Taxon, e.Length, e.Expected)
}

// Sequence is a single encoded sequence.
type Sequence struct {
	Name     string
	Sequence []StateSet
}

// Sequences is an encoded alignment.
type Sequences []Sequence

// ToSequences encodes a parsed alignment. Sequences must all have
// the same length and contain only alphabet characters or ambiguity
// codes.
func ToSequences(seqs bio.Sequences) (Sequences, error) {
	res := make(Sequences, 0, len(seqs))
	for _, seq := range seqs {
		if len(res) > 0 && len(seq.Sequence) != len(res[0].Sequence) {
			return nil, &SequenceLengthMismatchError{
				Taxon:    seq.Name,
				Length:   len(seq.Sequence),
				Expected: len(res[0].Sequence),
			}
		}
		eseq := Sequence{
			Name:     seq.Name,
			Sequence: make([]StateSet, 0, len(seq.Sequence)),
		}
		for i := 0; i < len(seq.Sequence); i++ {
			ss, ok := stateSets[seq.Sequence[i]]
			if !ok {
				return nil, &UnknownCharacterError{
					Taxon: seq.Name,
					Site:  i,
					Char:  seq.Sequence[i],
				}
			}
			eseq.Sequence = append(eseq.Sequence, ss)
		}
		res = append(res, eseq)
	}
	return res, nil
}

// EncodeSite returns the tip conditional likelihood vectors of one
// alignment column, keyed by taxon name.
func (seqs Sequences) EncodeSite(pos int) map[string][]float64 {
	res := make(map[string][]float64, len(seqs))
	for _, seq := range seqs {
		vec := make([]float64, NState)
		seq.Sequence[pos].Vector(vec)
		res[seq.Name] = vec
	}
	return res
}

// Length returns the alignment length.
func (seqs Sequences) Length() int {
	if len(seqs) == 0 {
		return 0
	}
	return len(seqs[0].Sequence)
}

// NFixed calculates number of constant positions in the alignment.
func (seqs Sequences) NFixed() (f int) {
	f = seqs.Length()
	for pos := 0; pos < seqs.Length(); pos++ {
		for i := 1; i < len(seqs); i++ {
			if seqs[i].Sequence[pos] != seqs[0].Sequence[pos] {
				f--
				break
			}
		}
	}
	return
}

// NAmbiguous counts positions with at least one ambiguous character.
func (seqs Sequences) NAmbiguous() (count int) {
	for pos := 0; pos < seqs.Length(); pos++ {
		for _, seq := range seqs {
			if seq.Sequence[pos].State() < 0 {
				count++
				break
			}
		}
	}
	return
}

// String returns sequences in FASTA format.
func (seqs Sequences) String() (s string) {
	for _, seq := range seqs {
		var b bytes.Buffer
		for _, ss := range seq.Sequence {
			b.WriteString(ss.String())
		}
		s += ">" + seq.Name + "\n" + bio.Wrap(b.String(), 80)
	}
	if s == "" {
		return s
	}
	return s[:len(s)-1]
}
