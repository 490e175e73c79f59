package ferromic

import (
	"math"
)

// Sentinel omega values. OmegaIdentical marks byte-identical sequences
// (no divergence to estimate, dN = dS = 0) and is assigned without
// running the external tool. OmegaNoSynonymous is the tool's convention
// for pairs with no synonymous substitutions: with dS = 0 the ratio is
// undefined and the estimate saturates at 99. Failed comparisons carry
// NaN.
const (
	OmegaIdentical    = -1.0
	OmegaNoSynonymous = 99.0
)

// PairKey is the cache fingerprint of one pairwise comparison. A and B
// are held in canonical (lexicographic) order so that the same two
// samples always produce the same key regardless of generation order.
// AllPairs records the comparison mode, because within-cohort and
// all-pairs runs are different experiments and must not share results.
type PairKey struct {
	Region   string
	A, B     string
	AllPairs bool
}

// NewPairKey builds the canonical key for a pair of samples.
func NewPairKey(region, a, b string, allPairs bool) PairKey {
	if b < a {
		a, b = b, a
	}
	return PairKey{Region: region, A: a, B: b, AllPairs: allPairs}
}

// PairResult is the outcome of one pairwise comparison.
type PairResult struct {
	SeqA, SeqB       string
	CohortA, CohortB int
	DN, DS, Omega    float64
	Region           string
}

// Failed reports whether the comparison produced no estimate (external
// tool failure or unparsable output).
func (r PairResult) Failed() bool {
	return math.IsNaN(r.Omega)
}

// Sentinel reports whether the omega is a marker value rather than a
// computed ratio.
func (r PairResult) Sentinel() bool {
	return r.Omega == OmegaIdentical || r.Omega == OmegaNoSynonymous
}

// Valid reports whether the omega is a real computed ratio, usable in
// mean/median statistics.
func (r PairResult) Valid() bool {
	return !r.Failed() && !r.Sentinel()
}

// Pair is an unordered pair of sample names awaiting comparison.
type Pair struct {
	A, B string
}

// GeneratePairs enumerates the unordered sample pairs a region needs.
// In all-pairs mode every pair of samples is produced, C(n, 2) in all.
// In within-cohort mode only same-cohort pairs are produced,
// C(n0, 2) + C(n1, 2); a cross-cohort pair is never constructed, so no
// later filtering step is needed or possible.
func GeneratePairs(samples []Sample, allPairs bool) []Pair {
	var pairs []Pair
	if allPairs {
		for i := 0; i < len(samples); i++ {
			for j := i + 1; j < len(samples); j++ {
				pairs = append(pairs, Pair{samples[i].Name, samples[j].Name})
			}
		}
		return pairs
	}

	var cohort0, cohort1 []string
	for _, s := range samples {
		if s.Cohort == 0 {
			cohort0 = append(cohort0, s.Name)
		} else {
			cohort1 = append(cohort1, s.Name)
		}
	}
	for _, names := range [][]string{cohort0, cohort1} {
		for i := 0; i < len(names); i++ {
			for j := i + 1; j < len(names); j++ {
				pairs = append(pairs, Pair{names[i], names[j]})
			}
		}
	}
	return pairs
}
