package ferromic

import (
	"errors"
	"testing"
)

func TestValidateSequence(t *testing.T) {
	type test struct {
		seq  string
		out  string
		fail bool
	}

	tests := []test{
		{"ATGAAATAG", "ATGAAATAG", false},
		{"atgaaatag", "ATGAAATAG", false},
		{"ATGN-ATAG", "ATGN-ATAG", false},
		{"ATG---TAG", "ATG---TAG", false},
		{"ATGNNNTAG", "ATGNNNTAG", false},
		{"ATGA", "", true},
		{"ATGXXXTAG", "", true},
		{"", "", false},
	}

	for _, test := range tests {
		out, err := ValidateSequence(test.seq)
		if test.fail {
			if err == nil {
				t.Fatalf("Validating %q should have failed, got %q.",
					test.seq, out)
			}
			continue
		}
		if err != nil {
			t.Fatalf("Validating %q failed: %s", test.seq, err)
		}
		if out != test.out {
			t.Fatalf("Validating %q returned %q, but should have been %q.",
				test.seq, out, test.out)
		}
	}
}

func TestExtractCohort(t *testing.T) {
	type test struct {
		name   string
		cohort int
		fail   bool
	}

	tests := []test{
		{"EUR_GBR_HG00096_L_0", 0, false},
		{"EUR_GBR_HG00096_R_1", 1, false},
		{"x_0", 0, false},
		{"x_1", 1, false},
		{"EUR_GBR_HG00096_L", 0, true},
		{"EUR_GBR_HG00096_2", 0, true},
		{"", 0, true},
	}

	for _, test := range tests {
		cohort, err := ExtractCohort(test.name)
		if test.fail {
			if !errors.Is(err, ErrNoCohortSuffix) {
				t.Fatalf("Extracting a cohort from %q should have failed "+
					"with ErrNoCohortSuffix, got cohort %d, err %v.",
					test.name, cohort, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("Extracting a cohort from %q failed: %s", test.name, err)
		}
		if cohort != test.cohort {
			t.Fatalf("Cohort of %q is %d, but should have been %d.",
				test.name, cohort, test.cohort)
		}
	}
}

// The renaming scheme replaces the third character with the occurrence
// count. Cached results are keyed by these names, so the scheme is a
// compatibility contract.
func TestRenameDuplicate(t *testing.T) {
	type test struct {
		name       string
		occurrence int
		out        string
	}

	tests := []test{
		{"EUR_GBR_HG00096_L_0", 1, "EU1_GBR_HG00096_L_0"},
		{"EUR_GBR_HG00096_L_0", 2, "EU2_GBR_HG00096_L_0"},
		{"ABCD", 3, "AB3D"},
		{"ABC", 1, "AB1"},
		{"AB", 1, "AB1"},
		{"A", 7, "A7"},
	}

	for _, test := range tests {
		out := RenameDuplicate(test.name, test.occurrence)
		if out != test.out {
			t.Fatalf("Renaming %q (occurrence %d) gave %q, "+
				"but should have been %q.",
				test.name, test.occurrence, out, test.out)
		}
	}
}

func TestDedupNameCountsStrippedMatches(t *testing.T) {
	// 'EUR_GBR_HG00096_L_0' and its earlier rename 'EU1_GBR_HG00096_L_0'
	// share the same name with the third character removed, so the next
	// collision sees an occurrence count of 2.
	seen := map[string]string{
		"EUR_GBR_HG00096_L_0": "",
		"EU1_GBR_HG00096_L_0": "",
		"EUR_GBR_HG00097_L_0": "",
	}
	renamed := dedupName("EUR_GBR_HG00096_L_0", seen)
	if renamed != "EU2_GBR_HG00096_L_0" {
		t.Fatalf("Resolving the third duplicate gave %q, "+
			"but should have been %q.", renamed, "EU2_GBR_HG00096_L_0")
	}
}

func TestCohortCounts(t *testing.T) {
	region := &Region{
		ID: "chr1_start0_end9",
		Samples: []Sample{
			{Name: "a_0", Cohort: 0},
			{Name: "b_0", Cohort: 0},
			{Name: "c_1", Cohort: 1},
		},
	}
	n0, n1 := region.CohortCounts()
	if n0 != 2 || n1 != 1 {
		t.Fatalf("Cohort counts are (%d, %d), but should have been (2, 1).",
			n0, n1)
	}
	if got := region.Cohorts()["c_1"]; got != 1 {
		t.Fatalf("Cohort of 'c_1' is %d, but should have been 1.", got)
	}
}
