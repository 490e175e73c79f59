package ferromic

import (
	"math"
	"testing"
)

var sixSamples = []Sample{
	{Name: "a_0", Seq: "ATG", Cohort: 0},
	{Name: "b_0", Seq: "ATG", Cohort: 0},
	{Name: "c_0", Seq: "ATG", Cohort: 0},
	{Name: "d_1", Seq: "ATG", Cohort: 1},
	{Name: "e_1", Seq: "ATG", Cohort: 1},
	{Name: "f_1", Seq: "ATG", Cohort: 1},
}

func TestGeneratePairsWithinCohorts(t *testing.T) {
	pairs := GeneratePairs(sixSamples, false)

	// Three samples per cohort give C(3,2) + C(3,2) = 6 pairs.
	if len(pairs) != 6 {
		t.Fatalf("Within-cohort mode generated %d pairs, "+
			"but should have been 6.", len(pairs))
	}

	cohorts := map[string]int{}
	for _, s := range sixSamples {
		cohorts[s.Name] = s.Cohort
	}
	for _, p := range pairs {
		if cohorts[p.A] != cohorts[p.B] {
			t.Fatalf("Within-cohort mode generated the cross pair (%s, %s).",
				p.A, p.B)
		}
	}
}

func TestGeneratePairsAll(t *testing.T) {
	pairs := GeneratePairs(sixSamples, true)

	// Six samples give C(6,2) = 15 pairs.
	if len(pairs) != 15 {
		t.Fatalf("All-pairs mode generated %d pairs, "+
			"but should have been 15.", len(pairs))
	}

	seen := map[Pair]bool{}
	for _, p := range pairs {
		if p.A == p.B {
			t.Fatalf("Generated the self pair (%s, %s).", p.A, p.B)
		}
		if seen[p] || seen[Pair{p.B, p.A}] {
			t.Fatalf("Generated the pair (%s, %s) twice.", p.A, p.B)
		}
		seen[p] = true
	}
}

func TestGeneratePairsSingleSamplePerCohort(t *testing.T) {
	samples := []Sample{
		{Name: "a_0", Cohort: 0},
		{Name: "b_1", Cohort: 1},
	}
	if pairs := GeneratePairs(samples, false); len(pairs) != 0 {
		t.Fatalf("Lone samples per cohort generated %d pairs, "+
			"but should have been none.", len(pairs))
	}
	if pairs := GeneratePairs(samples, true); len(pairs) != 1 {
		t.Fatalf("All-pairs mode generated %d pairs, "+
			"but should have been 1.", len(pairs))
	}
}

func TestNewPairKeyCanonicalOrder(t *testing.T) {
	k1 := NewPairKey("chr1_start1_end2", "b_0", "a_0", false)
	k2 := NewPairKey("chr1_start1_end2", "a_0", "b_0", false)
	if k1 != k2 {
		t.Fatalf("Keys differ by generation order: %v vs %v.", k1, k2)
	}
	if k1.A != "a_0" || k1.B != "b_0" {
		t.Fatalf("Key is not in canonical order: %v.", k1)
	}

	all := NewPairKey("chr1_start1_end2", "a_0", "b_0", true)
	if all == k2 {
		t.Fatal("All-pairs and within-cohort keys must differ.")
	}
}

func TestPairResultClassification(t *testing.T) {
	type test struct {
		omega    float64
		failed   bool
		sentinel bool
		valid    bool
	}

	tests := []test{
		{0.5, false, false, true},
		{0.0, false, false, true},
		{OmegaIdentical, false, true, false},
		{OmegaNoSynonymous, false, true, false},
		{math.NaN(), true, false, false},
	}

	for _, test := range tests {
		r := PairResult{Omega: test.omega}
		if r.Failed() != test.failed {
			t.Fatalf("Failed() for omega %v is %v, but should have been %v.",
				test.omega, r.Failed(), test.failed)
		}
		if r.Sentinel() != test.sentinel {
			t.Fatalf("Sentinel() for omega %v is %v, but should have been %v.",
				test.omega, r.Sentinel(), test.sentinel)
		}
		if r.Valid() != test.valid {
			t.Fatalf("Valid() for omega %v is %v, but should have been %v.",
				test.omega, r.Valid(), test.valid)
		}
	}
}
