package main

import (
	"flag"
	"fmt"
	"os"
	"path"
	"sort"

	"github.com/ScottSauers/ferromic"

	log "github.com/sirupsen/logrus"
)

var (
	flagMethod     = "fisher"
	flagMinSamples = 5
	flagNoCache    = false
	flagQuiet      = false
)

func init() {
	flag.StringVar(&flagMethod, "method", flagMethod,
		"The rule used to combine p-values, either 'fisher' or\n"+
			"\t'stouffer'. The overall summary always reports both; this\n"+
			"\tselects the cluster-level rule and the primary overall value.")
	flag.IntVar(&flagMinSamples, "min-samples", flagMinSamples,
		"The number of samples each cohort must reach before a region\n"+
			"\tis tested. Regions below the floor are reported untested.")
	flag.BoolVar(&flagNoCache, "no-cache", flagNoCache,
		"When set, memoized per-region test results are ignored and\n"+
			"\tevery region is retested.")
	flag.BoolVar(&flagQuiet, "quiet", flagQuiet,
		"When set, the only console outputs will be warnings and errors.")

	flag.Usage = usage
	flag.Parse()
}

func main() {
	if flag.NArg() != 2 {
		flag.Usage()
	}
	inputCSV, outDir := flag.Arg(0), flag.Arg(1)

	method, err := parseMethod(flagMethod)
	if err != nil {
		fatalf("%s\n", err)
	}
	if !flagQuiet {
		ferromic.Verbose = true
	}
	if err := os.MkdirAll(outDir, 0777); err != nil {
		fatalf("Could not create output directory '%s': %s.\n", outDir, err)
	}
	logFile, err := ferromic.OpenRunLog(outDir, "evidence_analysis.log", flagQuiet)
	if err != nil {
		fatalf("%s\n", err)
	}
	defer logFile.Close()

	rows, err := ferromic.ReadPairwiseCSV(inputCSV)
	if err != nil {
		fatalf("%s\n", err)
	}
	valid := ferromic.FilterValid(rows)

	byRegion := make(map[string][]ferromic.PairResult)
	for _, row := range valid {
		byRegion[row.Region] = append(byRegion[row.Region], row)
	}
	regionIDs := make([]string, 0, len(byRegion))
	for id := range byRegion {
		regionIDs = append(regionIDs, id)
	}
	sort.Strings(regionIDs)
	log.Infof("Loaded %d comparisons (%d valid) across %d regions",
		len(rows), len(valid), len(regionIDs))

	tests := testRegions(outDir, regionIDs, byRegion)
	testRows := make([]ferromic.RegionTest, 0, len(tests))
	defined, significant := 0, 0
	for _, id := range regionIDs {
		t := tests[id]
		testRows = append(testRows, t)
		if t.Defined() {
			defined++
			if t.PValue < 0.05 {
				significant++
			}
		}
	}
	testsCSV := path.Join(outDir, ferromic.FileRegionTests)
	if err := ferromic.WriteRegionTestsCSV(testsCSV, testRows); err != nil {
		fatalf("%s\n", err)
	}
	log.Infof("Tested %d regions: %d defined, %d significant (p < 0.05)",
		len(testRows), defined, significant)

	clusters := ferromic.BuildOverlapClusters(regionIDs)
	evidence := make(map[int]ferromic.ClusterEvidence, len(clusters))
	clusterIDs := make([]int, 0, len(clusters))
	for id := range clusters {
		clusterIDs = append(clusterIDs, id)
	}
	sort.Ints(clusterIDs)
	for _, cid := range clusterIDs {
		ev := ferromic.CombineClusterEvidence(clusters[cid], tests, method)
		evidence[cid] = ev
		log.Infof("Cluster %d: %d regions (%d tested), p %s, effect %s, "+
			"%d comparisons",
			cid, len(clusters[cid]), ev.ValidRegions,
			ferromic.FormatOmega(ev.CombinedP),
			ferromic.FormatOmega(ev.WeightedEffect),
			ev.NumComparisons)
	}

	overall := ferromic.CombineOverall(evidence, method)
	overallJSON := path.Join(outDir, ferromic.FileOverall)
	if err := ferromic.WriteOverallJSON(overallJSON, overall); err != nil {
		fatalf("%s\n", err)
	}
	log.Infof("Overall p-value (%s): %s", overall.PrimaryMethod,
		ferromic.FormatOmega(overall.PrimaryP()))
	log.Infof("Overall effect %s over %d clusters and %d comparisons",
		ferromic.FormatOmega(overall.Effect),
		overall.ValidClusters, overall.TotalComparisons)
}

// testRegions runs the per-region cohort test for every region, reusing
// memoized results from earlier runs unless -no-cache is set.
func testRegions(outDir string, regionIDs []string,
	byRegion map[string][]ferromic.PairResult) map[string]ferromic.RegionTest {

	cacheDir := path.Join(outDir, "cache")
	tests := make(map[string]ferromic.RegionTest, len(regionIDs))
	memoized := 0
	for _, id := range regionIDs {
		if !flagNoCache {
			if t, ok := ferromic.LoadRegionTest(cacheDir, id); ok {
				tests[id] = t
				memoized++
				continue
			}
		}
		t := ferromic.TestRegion(id, byRegion[id], flagMinSamples)
		if err := ferromic.SaveRegionTest(cacheDir, t); err != nil {
			log.Warnf("Could not memoize test for %s: %s", id, err)
		}
		tests[id] = t
	}
	if memoized > 0 {
		log.Infof("Reused %d memoized region tests", memoized)
	}
	return tests
}

func parseMethod(name string) (ferromic.CombineMethod, error) {
	switch name {
	case "fisher":
		return ferromic.MethodFisher, nil
	case "stouffer":
		return ferromic.MethodStouffer, nil
	}
	return "", fmt.Errorf(
		"Unknown combination method '%s' (want 'fisher' or 'stouffer').",
		name)
}

func fatalf(format string, v ...interface{}) {
	fmt.Fprintf(os.Stderr, format, v...)
	os.Exit(1)
}

func usage() {
	fmt.Fprintf(os.Stderr,
		"\nUsage: %s [flags] pairwise-csv output-directory\n",
		path.Base(os.Args[0]))
	ferromic.PrintFlagDefaults()
	os.Exit(1)
}
