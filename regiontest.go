package ferromic

import (
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat/distuv"
)

// SamplePair identifies one compared pair of samples independent of
// region, canonicalized like PairKey. Evidence deduplication across
// overlapping regions unions these.
type SamplePair struct {
	A, B string
}

func NewSamplePair(a, b string) SamplePair {
	if b < a {
		a, b = b, a
	}
	return SamplePair{A: a, B: b}
}

// RegionTest is the per-region cohort contrast: Cliff's delta between
// the two cohorts' within-cohort omega values and a two-sided
// Mann-Whitney p-value, plus the sample and comparison counts behind
// them and the set of pairs contributing evidence.
type RegionTest struct {
	Region       string
	EffectSize   float64
	PValue       float64
	N0, N1       int
	Comparisons0 int
	Comparisons1 int
	Pairs        map[SamplePair]bool
}

// Defined reports whether the test produced usable evidence.
func (t RegionTest) Defined() bool {
	return !math.IsNaN(t.EffectSize) && !math.IsNaN(t.PValue)
}

// TestRegion contrasts the cohorts of one region from its valid
// pairwise rows (sentinels and failures already filtered out by the
// reader). Cross-cohort rows contribute to the pair set but not to the
// contrast, which compares within-cohort-0 omegas against
// within-cohort-1 omegas. Fewer than minSamples samples in either
// cohort, an empty side, or a flat omega distribution all yield NaN
// effect and p-value while keeping the counts.
func TestRegion(regionID string, rows []PairResult, minSamples int) RegionTest {
	test := RegionTest{
		Region:     regionID,
		EffectSize: math.NaN(),
		PValue:     math.NaN(),
		Pairs:      make(map[SamplePair]bool, len(rows)),
	}

	cohorts := make(map[string]int)
	note := func(name string) bool {
		if _, ok := cohorts[name]; ok {
			return true
		}
		cohort, err := ExtractCohort(name)
		if err != nil {
			log.Warnf("%s: no cohort suffix on sample %s; row ignored",
				regionID, name)
			return false
		}
		cohorts[name] = cohort
		return true
	}

	var x, y []float64
	for _, r := range rows {
		if !note(r.SeqA) || !note(r.SeqB) {
			continue
		}
		test.Pairs[NewSamplePair(r.SeqA, r.SeqB)] = true

		ca, cb := cohorts[r.SeqA], cohorts[r.SeqB]
		switch {
		case ca == 0 && cb == 0:
			x = append(x, r.Omega)
		case ca == 1 && cb == 1:
			y = append(y, r.Omega)
		}
	}

	for _, c := range cohorts {
		if c == 0 {
			test.N0++
		} else {
			test.N1++
		}
	}

	if test.N0 < minSamples || test.N1 < minSamples {
		return test
	}
	test.Comparisons0 = len(x)
	test.Comparisons1 = len(y)
	if len(x) == 0 || len(y) == 0 {
		return test
	}
	if flat(x, y) {
		return test
	}

	test.EffectSize = CliffsDelta(x, y)
	test.PValue = MannWhitneyU(x, y)
	return test
}

// flat reports whether every omega across both sides is the same value,
// in which case no contrast exists to test.
func flat(x, y []float64) bool {
	first := x[0]
	for _, v := range x {
		if v != first {
			return false
		}
	}
	for _, v := range y {
		if v != first {
			return false
		}
	}
	return true
}

// CliffsDelta is the proportion of (x, y) pairings where x exceeds y
// minus the proportion where y exceeds x, in [-1, 1].
func CliffsDelta(x, y []float64) float64 {
	if len(x) == 0 || len(y) == 0 {
		return math.NaN()
	}
	greater, less := 0, 0
	for _, xv := range x {
		for _, yv := range y {
			if xv > yv {
				greater++
			} else if xv < yv {
				less++
			}
		}
	}
	return float64(greater-less) / float64(len(x)*len(y))
}

// MannWhitneyU is the two-sided Mann-Whitney U p-value under the normal
// approximation with midranks, tie correction and continuity
// correction. Degenerate input (zero rank variance) returns NaN.
func MannWhitneyU(x, y []float64) float64 {
	n1, n2 := float64(len(x)), float64(len(y))
	if n1 == 0 || n2 == 0 {
		return math.NaN()
	}

	ranks, tieTerm := midranks(x, y)
	var r1 float64
	for i := range x {
		r1 += ranks[i]
	}

	u1 := r1 - n1*(n1+1)/2
	mu := n1 * n2 / 2
	n := n1 + n2
	sigma2 := n1 * n2 / 12 * ((n + 1) - tieTerm/(n*(n-1)))
	if sigma2 <= 0 {
		return math.NaN()
	}

	z := (math.Abs(u1-mu) - 0.5) / math.Sqrt(sigma2)
	if z < 0 {
		z = 0
	}
	p := 2 * distuv.UnitNormal.Survival(z)
	return math.Min(p, 1)
}

// midranks ranks the concatenation of x and y (x first), averaging the
// ranks of tied values, and returns Σ(t³ - t) over tie groups for the
// variance correction.
func midranks(x, y []float64) (ranks []float64, tieTerm float64) {
	n := len(x) + len(y)
	values := make([]float64, 0, n)
	values = append(values, x...)
	values = append(values, y...)

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool {
		return values[order[i]] < values[order[j]]
	})

	ranks = make([]float64, n)
	for i := 0; i < n; {
		j := i
		for j < n && values[order[j]] == values[order[i]] {
			j++
		}
		// Positions i..j-1 hold one tie group; each member gets the
		// average of ranks i+1..j.
		mid := float64(i+j+1) / 2
		for k := i; k < j; k++ {
			ranks[order[k]] = mid
		}
		t := float64(j - i)
		tieTerm += t*t*t - t
		i = j
	}
	return ranks, tieTerm
}

// regionTestFile maps a region id to its memo file inside cacheDir.
func regionTestFile(cacheDir, regionID string) string {
	return path.Join(cacheDir, strings.ReplaceAll(regionID, "/", "_")+".gob")
}

// LoadRegionTest retrieves a memoized test result. Any read or decode
// problem is treated as a miss so the test simply recomputes.
func LoadRegionTest(cacheDir, regionID string) (RegionTest, bool) {
	f, err := os.Open(regionTestFile(cacheDir, regionID))
	if err != nil {
		return RegionTest{}, false
	}
	defer f.Close()

	var test RegionTest
	if err := gob.NewDecoder(f).Decode(&test); err != nil {
		return RegionTest{}, false
	}
	return test, true
}

// SaveRegionTest memoizes a test result for later runs.
func SaveRegionTest(cacheDir string, test RegionTest) error {
	if err := os.MkdirAll(cacheDir, 0777); err != nil {
		return fmt.Errorf("Could not create cache directory '%s': %s.",
			cacheDir, err)
	}
	f, err := os.Create(regionTestFile(cacheDir, test.Region))
	if err != nil {
		return fmt.Errorf("Could not create memo for region %s: %s.",
			test.Region, err)
	}
	defer f.Close()

	if err := gob.NewEncoder(f).Encode(test); err != nil {
		return fmt.Errorf("Could not encode memo for region %s: %s.",
			test.Region, err)
	}
	return nil
}
