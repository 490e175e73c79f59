package ferromic

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// SampleStats is one haplotype's summary over a region: location of its
// omega values across all comparisons that touch it, with sentinels and
// failures excluded from both the statistics and the count.
type SampleStats struct {
	Haplotype      string
	Cohort         int
	Region         string
	MeanOmega      float64
	MedianOmega    float64
	NumComparisons int
}

// AggregateRegion summarizes a completed region per sample. Only valid
// omegas contribute: the identical sentinel (-1), the tool's 99 marker
// and failed comparisons (NaN) are dropped before the mean and median
// and are not counted as comparisons either. A sample with nothing left
// gets NaN statistics and a zero count.
func AggregateRegion(region *Region, results []PairResult) []SampleStats {
	byName := make(map[string][]float64, len(region.Samples))
	for _, r := range results {
		if !r.Valid() {
			continue
		}
		byName[r.SeqA] = append(byName[r.SeqA], r.Omega)
		byName[r.SeqB] = append(byName[r.SeqB], r.Omega)
	}

	rows := make([]SampleStats, 0, len(region.Samples))
	for _, s := range region.Samples {
		omegas := byName[s.Name]
		row := SampleStats{
			Haplotype:      s.Name,
			Cohort:         s.Cohort,
			Region:         region.ID,
			MeanOmega:      math.NaN(),
			MedianOmega:    math.NaN(),
			NumComparisons: len(omegas),
		}
		if len(omegas) > 0 {
			row.MeanOmega = stat.Mean(omegas, nil)
			row.MedianOmega = median(omegas)
		}
		rows = append(rows, row)
	}
	return rows
}

// median averages the two central values for even-length input.
func median(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
