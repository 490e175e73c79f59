package ferromic

import (
	"math"
	"sort"

	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat/distuv"
)

// CombineMethod selects the p-value combination rule. Both are sound;
// Fisher is the default primary. Neither is privileged by the math, so
// both are always computed at the overall level and the choice only
// decides which one is reported as the headline number.
type CombineMethod string

const (
	MethodFisher   CombineMethod = "fisher"
	MethodStouffer CombineMethod = "stouffer"
)

// ClusterEvidence is the merged evidence of one overlap cluster.
// NumComparisons deduplicates: it is the size of the union of member
// regions' pair sets, since overlapping regions can test the same
// sample pair and summing would count that evidence twice.
type ClusterEvidence struct {
	CombinedP      float64
	WeightedEffect float64
	NumComparisons int
	ValidRegions   int
	Pairs          map[SamplePair]bool
}

// CombineClusterEvidence merges the per-region tests of one cluster.
// Regions are weighted by interval length (equal shares for members
// whose coordinates cannot be parsed); regions with an undefined effect
// size contribute nothing at all, not a zero. P-values are combined by
// the configured method over the valid members. A cluster with no valid
// member yields NaN evidence with a zero comparison count.
func CombineClusterEvidence(memberIDs []string,
	tests map[string]RegionTest, method CombineMethod) ClusterEvidence {

	evidence := ClusterEvidence{
		CombinedP:      math.NaN(),
		WeightedEffect: math.NaN(),
		Pairs:          make(map[SamplePair]bool),
	}

	weights := make(map[string]float64, len(memberIDs))
	totalLength := 0
	for _, id := range memberIDs {
		coords, err := ParseRegionCoords(id)
		if err != nil {
			continue
		}
		weights[id] = float64(coords.Length())
		totalLength += coords.Length()
	}
	for id := range weights {
		weights[id] /= float64(totalLength)
	}
	equalShare := 1 / float64(len(memberIDs))

	var weightedEffect float64
	var pvals, pweights []float64
	for _, id := range memberIDs {
		test, ok := tests[id]
		if !ok || math.IsNaN(test.EffectSize) {
			continue
		}

		weight, ok := weights[id]
		if !ok {
			weight = equalShare
		}
		weightedEffect += test.EffectSize * weight
		for pair := range test.Pairs {
			evidence.Pairs[pair] = true
		}
		evidence.ValidRegions++

		if !math.IsNaN(test.PValue) && !math.IsInf(test.PValue, 0) {
			if test.PValue == 0 {
				log.Warnf("Zero p-value for region %s in cluster %v",
					id, memberIDs)
			}
			pvals = append(pvals, test.PValue)
			pweights = append(pweights, weight)
		}
	}

	if evidence.ValidRegions == 0 {
		return evidence
	}
	evidence.WeightedEffect = weightedEffect
	evidence.NumComparisons = len(evidence.Pairs)

	if len(pvals) == 0 {
		return evidence
	}
	var combined float64
	if method == MethodStouffer {
		combined = stoufferCombine(pvals, pweights)
	} else {
		combined = fisherCombine(pvals)
	}
	if combined == 0 {
		combined = math.SmallestNonzeroFloat64
		log.Warnf("Combined p-value underflow for cluster %v; "+
			"clamped to %g", memberIDs, combined)
	}
	evidence.CombinedP = combined
	return evidence
}

// OverallResult is the final combination across independent clusters.
type OverallResult struct {
	FisherP          float64
	StoufferP        float64
	Effect           float64
	PrimaryMethod    CombineMethod
	ValidClusters    int
	TotalComparisons int
}

// PrimaryP is the p-value of the nominated method.
func (o OverallResult) PrimaryP() float64 {
	if o.PrimaryMethod == MethodStouffer {
		return o.StoufferP
	}
	return o.FisherP
}

// CombineOverall treats each cluster as one independent test (overlap
// dependence is already absorbed inside clusters) and combines them by
// both methods: Fisher over the cluster p-values, and weighted Stouffer
// with each cluster's deduplicated comparison count as weight (equal
// weights when all counts are zero). The effect size is the weighted
// average of cluster effects under the same weights. Total comparisons
// is the union of all cluster pair sets, computed explicitly even
// though clusters are disjoint by construction.
func CombineOverall(evidence map[int]ClusterEvidence,
	primary CombineMethod) OverallResult {

	result := OverallResult{
		FisherP:       math.NaN(),
		StoufferP:     math.NaN(),
		Effect:        math.NaN(),
		PrimaryMethod: primary,
	}

	ids := make([]int, 0, len(evidence))
	for id := range evidence {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	var pvals, effects, weights []float64
	allPairs := make(map[SamplePair]bool)
	for _, id := range ids {
		c := evidence[id]
		if math.IsNaN(c.CombinedP) || math.IsNaN(c.WeightedEffect) {
			continue
		}
		p := c.CombinedP
		if p == 0 {
			log.Warnf("Zero combined p-value in cluster %d", id)
			p = math.SmallestNonzeroFloat64
		}
		pvals = append(pvals, p)
		effects = append(effects, c.WeightedEffect)
		weights = append(weights, float64(c.NumComparisons))
		for pair := range c.Pairs {
			allPairs[pair] = true
		}
	}
	if len(pvals) == 0 {
		log.Warn("No valid clusters available for significance computation")
		return result
	}
	result.ValidClusters = len(pvals)
	result.TotalComparisons = len(allPairs)

	result.FisherP = fisherCombine(pvals)
	if result.FisherP == 0 {
		result.FisherP = math.SmallestNonzeroFloat64
		log.Warnf("Overall Fisher p-value underflow; clamped to %g",
			result.FisherP)
	}

	totalWeight := 0.0
	for _, w := range weights {
		totalWeight += w
	}
	if totalWeight == 0 {
		log.Warn("All cluster weights are zero; using equal weights")
		for i := range weights {
			weights[i] = 1
		}
		totalWeight = float64(len(weights))
	}
	for i := range weights {
		weights[i] /= totalWeight
	}

	result.StoufferP = stoufferCombine(pvals, weights)
	if result.StoufferP == 0 {
		result.StoufferP = math.SmallestNonzeroFloat64
		log.Warnf("Overall Stouffer p-value underflow; clamped to %g",
			result.StoufferP)
	}

	var effect float64
	for i, e := range effects {
		effect += e * weights[i]
	}
	result.Effect = effect

	return result
}

// fisherCombine maps p-values to a chi-square statistic, -2 Σ ln p,
// compared against 2k degrees of freedom.
func fisherCombine(pvals []float64) float64 {
	stat := 0.0
	for _, p := range pvals {
		stat += -2 * math.Log(p)
	}
	chi := distuv.ChiSquared{K: 2 * float64(len(pvals))}
	return chi.Survival(stat)
}

// stoufferCombine converts p-values to z-scores through the inverse
// survival function and averages them under the given weights
// (renormalized here over the inputs), mapping the combined z back
// through the survival function.
func stoufferCombine(pvals, weights []float64) float64 {
	totalWeight := 0.0
	for _, w := range weights {
		totalWeight += w
	}

	var z float64
	for i, p := range pvals {
		w := 1 / float64(len(pvals))
		if totalWeight > 0 {
			w = weights[i] / totalWeight
		}
		z += w * distuv.UnitNormal.Quantile(1-p)
	}
	return distuv.UnitNormal.Survival(z)
}
