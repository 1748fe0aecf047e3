package nuc

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
)

// freqTolerance is how far from 1 a frequency vector may sum.
const freqTolerance = 1e-9

// Frequency is a stationary state frequency vector, one entry per
// alphabet state.
type Frequency []float64

// F0 returns equal state frequencies.
func F0() Frequency {
	cf := make(Frequency, NState)
	for i := range cf {
		cf[i] = 1. / NState
	}
	return cf
}

// FObs computes frequencies from state counts in the alignment.
// Ambiguous characters are skipped.
func FObs(seqs Sequences) (Frequency, error) {
	cf := make(Frequency, NState)
	total := 0.0
	for _, seq := range seqs {
		for _, ss := range seq.Sequence {
			if s := ss.State(); s >= 0 {
				cf[s]++
				total++
			}
		}
	}
	if total == 0 {
		return nil, errors.New("no unambiguous characters in the alignment")
	}
	for i := range cf {
		cf[i] /= total
	}
	return cf, nil
}

// ReadFrequency reads state frequencies from a reader. It should be
// just a list of numbers in a text format, in alphabet order.
func ReadFrequency(rd io.Reader) (Frequency, error) {
	cf := make(Frequency, 0, NState)

	scanner := bufio.NewScanner(rd)
	scanner.Split(bufio.ScanWords)
	for scanner.Scan() {
		if len(cf) >= NState {
			return nil, errors.New("too many frequencies in file")
		}
		f, err := strconv.ParseFloat(scanner.Text(), 64)
		if err != nil {
			return nil, err
		}
		cf = append(cf, f)
	}
	if len(cf) < NState {
		return nil, errors.New("not enough frequencies in file")
	}
	if err := cf.Validate(); err != nil {
		return nil, err
	}
	return cf, nil
}

// Validate checks that the vector has one entry per state, only
// non-negative entries, and sums to one.
func (cf Frequency) Validate() error {
	if len(cf) != NState {
		return fmt.Errorf("frequency vector has %d entries, want %d", len(cf), NState)
	}
	sum := 0.0
	for i, f := range cf {
		if f < 0 || math.IsNaN(f) {
			return fmt.Errorf("negative frequency %v for state %c", f, Alphabet[i])
		}
		sum += f
	}
	if math.Abs(sum-1) > freqTolerance {
		return fmt.Errorf("frequencies sum to %v, want 1", sum)
	}
	return nil
}

// String returns the frequency vector with state labels.
func (cf Frequency) String() (s string) {
	s = "<Frequency:"
	for i, f := range cf {
		s += fmt.Sprintf(" %c: %v,", Alphabet[i], f)
	}
	return s[:len(s)-1] + ">"
}
