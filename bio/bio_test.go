package bio

import (
	"strings"
	"testing"
)

func TestParseFasta(tst *testing.T) {
	in := `>t1
ACGT
acgt
>t2 extra label

AC GT
TTTT
`
	seqs, err := ParseFasta(strings.NewReader(in))
	if err != nil {
		tst.Fatal("Error parsing fasta:", err)
	}
	if len(seqs) != 2 {
		tst.Fatal("Expected 2 sequences, got", len(seqs))
	}
	if seqs[0].Name != "t1" || seqs[0].Sequence != "ACGTACGT" {
		tst.Error("Wrong first sequence:", seqs[0])
	}
	if seqs[1].Name != "t2 extra label" || seqs[1].Sequence != "ACGTTTTT" {
		tst.Error("Wrong second sequence:", seqs[1])
	}
}

func TestParseFastaNoHeader(tst *testing.T) {
	if _, err := ParseFasta(strings.NewReader("ACGT\n")); err == nil {
		tst.Error("Expected error for sequence without a header")
	}
}

func TestWrap(tst *testing.T) {
	if s := Wrap("AAAAA", 2); s != "AA\nAA\nA\n" {
		tst.Errorf("Wrong wrapping: %q", s)
	}
}

func TestString(tst *testing.T) {
	seqs := Sequences{{Name: "t1", Sequence: "ACGT"}}
	if s := seqs.String(); s != ">t1\nACGT" {
		tst.Errorf("Wrong fasta output: %q", s)
	}
}
