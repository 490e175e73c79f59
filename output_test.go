package ferromic

import (
	"encoding/json"
	"math"
	"os"
	"path"
	"strings"
	"testing"
)

func TestFormatOmegaRoundTrip(t *testing.T) {
	type test struct {
		value float64
		text  string
	}

	tests := []test{
		{0.5, "0.5"},
		{OmegaIdentical, "-1"},
		{OmegaNoSynonymous, "99"},
		{math.NaN(), "NaN"},
		{0.0045, "0.0045"},
	}

	for _, test := range tests {
		text := FormatOmega(test.value)
		if text != test.text {
			t.Fatalf("Formatting %v gave %q, but should have been %q.",
				test.value, text, test.text)
		}
		back, err := ParseOmega(text)
		if err != nil {
			t.Fatal(err)
		}
		if math.IsNaN(test.value) {
			if !math.IsNaN(back) {
				t.Fatalf("NaN did not round-trip: got %v.", back)
			}
			continue
		}
		if back != test.value {
			t.Fatalf("%v round-tripped to %v.", test.value, back)
		}
	}

	// Empty fields read as missing values.
	if v, err := ParseOmega(""); err != nil || !math.IsNaN(v) {
		t.Fatalf("Parsing an empty field gave (%v, %v), "+
			"but should have been (NaN, nil).", v, err)
	}
}

func pairwiseFixture() []PairResult {
	return []PairResult{
		{SeqA: "b_0", SeqB: "c_0", CohortA: 0, CohortB: 0,
			DN: 0.01, DS: 0.02, Omega: 0.5, Region: "chr1_start1_end2"},
		{SeqA: "a_0", SeqB: "b_0", CohortA: 0, CohortB: 0,
			DN: 0, DS: 0, Omega: OmegaIdentical, Region: "chr1_start1_end2"},
		{SeqA: "a_1", SeqB: "b_1", CohortA: 1, CohortB: 1,
			DN: math.NaN(), DS: math.NaN(), Omega: math.NaN(),
			Region: "chr1_start1_end2"},
	}
}

func TestPairwiseCSVRoundTrip(t *testing.T) {
	file := path.Join(t.TempDir(), "chr1_start1_end2.csv")
	if err := WritePairwiseCSV(file, pairwiseFixture()); err != nil {
		t.Fatal(err)
	}

	results, err := ReadPairwiseCSV(file)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("Read %d rows, but should have been 3.", len(results))
	}

	// Output is sorted by pair.
	if results[0].SeqA != "a_0" || results[1].SeqA != "a_1" ||
		results[2].SeqA != "b_0" {
		t.Fatalf("Rows are not sorted by pair: %v, %v, %v.",
			results[0].SeqA, results[1].SeqA, results[2].SeqA)
	}

	if results[0].Omega != OmegaIdentical {
		t.Fatalf("Sentinel omega read as %v, but should have been %v.",
			results[0].Omega, OmegaIdentical)
	}
	if !results[1].Failed() {
		t.Fatalf("Failed row read as omega %v, but should have been NaN.",
			results[1].Omega)
	}
	if results[2].DN != 0.01 || results[2].DS != 0.02 ||
		results[2].Omega != 0.5 {
		t.Fatalf("Computed row read as (%v, %v, %v), "+
			"but should have been (0.01, 0.02, 0.5).",
			results[2].DN, results[2].DS, results[2].Omega)
	}
}

func TestFilterValid(t *testing.T) {
	valid := FilterValid(pairwiseFixture())
	if len(valid) != 1 || valid[0].Omega != 0.5 {
		t.Fatalf("FilterValid kept %d rows, but should have kept only "+
			"the computed one.", len(valid))
	}
}

func TestRegionOutputFiles(t *testing.T) {
	pairwise, stats := RegionOutputFiles("out", "chr1_start1_end2", false)
	if pairwise != "out/chr1_start1_end2.csv" ||
		stats != "out/chr1_start1_end2_haplotype_stats.csv" {
		t.Fatalf("Within-cohort output files are (%s, %s).", pairwise, stats)
	}

	pairwise, stats = RegionOutputFiles("out", "chr1_start1_end2", true)
	if pairwise != "out/chr1_start1_end2_all.csv" ||
		stats != "out/chr1_start1_end2_all_haplotype_stats.csv" {
		t.Fatalf("All-pairs output files are (%s, %s), but should carry "+
			"the _all suffix.", pairwise, stats)
	}
}

func TestSampleStatsCSVRoundTrip(t *testing.T) {
	file := path.Join(t.TempDir(), "chr1_start1_end2_haplotype_stats.csv")
	rows := []SampleStats{
		{Haplotype: "a_0", Cohort: 0, Region: "chr1_start1_end2",
			MeanOmega: 0.5, MedianOmega: 0.4, NumComparisons: 3},
		{Haplotype: "b_1", Cohort: 1, Region: "chr1_start1_end2",
			MeanOmega: math.NaN(), MedianOmega: math.NaN()},
	}
	if err := WriteSampleStatsCSV(file, rows); err != nil {
		t.Fatal(err)
	}

	back, err := ReadSampleStatsCSV(file)
	if err != nil {
		t.Fatal(err)
	}
	if len(back) != 2 {
		t.Fatalf("Read %d rows, but should have been 2.", len(back))
	}
	if back[0].Haplotype != "a_0" || back[0].MeanOmega != 0.5 ||
		back[0].NumComparisons != 3 {
		t.Fatalf("First row read as %+v.", back[0])
	}
	if !math.IsNaN(back[1].MeanOmega) || !math.IsNaN(back[1].MedianOmega) {
		t.Fatalf("NaN statistics did not round-trip: %+v.", back[1])
	}
}

func TestCombinePairwiseFiles(t *testing.T) {
	dir := t.TempDir()

	region1 := []PairResult{
		{SeqA: "a_0", SeqB: "b_0", Omega: 0.5, Region: "chr1_start1_end2"},
		{SeqA: "a_0", SeqB: "c_0", Omega: 0.7, Region: "chr1_start1_end2"},
	}
	region2 := []PairResult{
		{SeqA: "x_1", SeqB: "y_1", Omega: 0.9, Region: "chr2_start5_end9"},
	}
	if err := WritePairwiseCSV(
		path.Join(dir, "chr1_start1_end2.csv"), region1); err != nil {
		t.Fatal(err)
	}
	if err := WritePairwiseCSV(
		path.Join(dir, "chr2_start5_end9.csv"), region2); err != nil {
		t.Fatal(err)
	}
	// Tables that must be left out of the combination.
	if err := WriteSampleStatsCSV(path.Join(
		dir, "chr1_start1_end2_haplotype_stats.csv"), nil); err != nil {
		t.Fatal(err)
	}
	if err := WritePairwiseCSV(
		path.Join(dir, "chr3_start0_end1.csv"), nil); err != nil {
		t.Fatal(err)
	}

	if err := CombinePairwiseFiles(dir); err != nil {
		t.Fatal(err)
	}
	combined, err := ReadPairwiseCSV(path.Join(dir, FileAllPairwise))
	if err != nil {
		t.Fatal(err)
	}
	if len(combined) != 3 {
		t.Fatalf("Combined table holds %d rows, but should have been 3.",
			len(combined))
	}

	// Recombining must not fold the combined table into itself.
	if err := CombinePairwiseFiles(dir); err != nil {
		t.Fatal(err)
	}
	combined, err = ReadPairwiseCSV(path.Join(dir, FileAllPairwise))
	if err != nil {
		t.Fatal(err)
	}
	if len(combined) != 3 {
		t.Fatalf("Recombination grew the table to %d rows, "+
			"but should have stayed 3.", len(combined))
	}
}

func TestListHaplotypeStatsFiles(t *testing.T) {
	dir := t.TempDir()
	names := []string{
		"chr2_start5_end9_haplotype_stats.csv",
		"chr1_start1_end2_haplotype_stats.csv",
		"chr1_start1_end2.csv",
		FileCohortSummary,
	}
	for _, name := range names {
		if err := os.WriteFile(
			path.Join(dir, name), []byte("x"), 0666); err != nil {
			t.Fatal(err)
		}
	}

	files, err := ListHaplotypeStatsFiles(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 {
		t.Fatalf("Found %d haplotype tables, but should have been 2.",
			len(files))
	}
	if path.Base(files[0]) != "chr1_start1_end2_haplotype_stats.csv" {
		t.Fatalf("Tables are not sorted: %v.", files)
	}
}

func TestSummarizeCohorts(t *testing.T) {
	rows := []SampleStats{
		{Haplotype: "a_0", Cohort: 0, MeanOmega: 0.5, NumComparisons: 2},
		{Haplotype: "b_0", Cohort: 0, MeanOmega: 1.5, NumComparisons: 2},
		{Haplotype: "c_0", Cohort: 0, MeanOmega: math.NaN()},
	}

	summaries := SummarizeCohorts(rows)
	if len(summaries) != 2 {
		t.Fatalf("Got %d summaries, but should have been one per cohort.",
			len(summaries))
	}

	s0 := summaries[0]
	if s0.Count != 2 {
		t.Fatalf("Cohort 0 counts %d haplotypes, but should have been 2: "+
			"NaN means are excluded.", s0.Count)
	}
	if s0.Mean != 1.0 || s0.Median != 1.0 || s0.Min != 0.5 || s0.Max != 1.5 {
		t.Fatalf("Cohort 0 summary is %+v.", s0)
	}
	if math.Abs(s0.StdDev-math.Sqrt(0.5)) > 1e-12 {
		t.Fatalf("Cohort 0 standard deviation is %v, "+
			"but should have been sqrt(0.5).", s0.StdDev)
	}
	// The comparison total includes the NaN row's count.
	if s0.TotalComparisons != 4 {
		t.Fatalf("Cohort 0 totals %d comparisons, but should have been 4.",
			s0.TotalComparisons)
	}

	s1 := summaries[1]
	if s1.Count != 0 || !math.IsNaN(s1.Mean) {
		t.Fatalf("Cohort 1 summary is %+v, but should have been empty.", s1)
	}
}

func TestWriteRegionTestsCSV(t *testing.T) {
	file := path.Join(t.TempDir(), FileRegionTests)
	tests := []RegionTest{
		{Region: "chr2_start5_end9", EffectSize: math.NaN(),
			PValue: math.NaN(), N0: 2, N1: 2},
		{Region: "chr1_start1_end2", EffectSize: -0.5, PValue: 0.01,
			N0: 5, N1: 6, Comparisons0: 10, Comparisons1: 15},
	}
	if err := WriteRegionTestsCSV(file, tests); err != nil {
		t.Fatal(err)
	}

	buf, err := os.ReadFile(file)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(buf)), "\n")
	if len(lines) != 3 {
		t.Fatalf("Table has %d lines, but should have been a header "+
			"plus 2 rows.", len(lines))
	}
	if lines[0] != "CDS,effect_size,p_value,n0,n1,"+
		"num_comp_group_0,num_comp_group_1" {
		t.Fatalf("Header is %q.", lines[0])
	}
	// Sorted by region id, NaN written literally.
	if lines[1] != "chr1_start1_end2,-0.5,0.01,5,6,10,15" {
		t.Fatalf("First row is %q.", lines[1])
	}
	if lines[2] != "chr2_start5_end9,NaN,NaN,2,2,0,0" {
		t.Fatalf("Second row is %q.", lines[2])
	}
}

func TestWriteOverallJSON(t *testing.T) {
	file := path.Join(t.TempDir(), FileOverall)
	result := OverallResult{
		FisherP:          0.01,
		StoufferP:        0.02,
		Effect:           0.3,
		PrimaryMethod:    MethodStouffer,
		ValidClusters:    2,
		TotalComparisons: 40,
	}
	if err := WriteOverallJSON(file, result); err != nil {
		t.Fatal(err)
	}

	buf, err := os.ReadFile(file)
	if err != nil {
		t.Fatal(err)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(buf, &body); err != nil {
		t.Fatal(err)
	}

	// The primary method is Stouffer, so the headline value follows it.
	if body["overall_pvalue"] != 0.02 {
		t.Fatalf("overall_pvalue is %v, but should have been 0.02.",
			body["overall_pvalue"])
	}
	if body["overall_pvalue_fisher"] != 0.01 ||
		body["overall_pvalue_stouffer"] != 0.02 {
		t.Fatalf("Method p-values are (%v, %v).",
			body["overall_pvalue_fisher"], body["overall_pvalue_stouffer"])
	}
	if body["primary_method"] != "stouffer" {
		t.Fatalf("primary_method is %v.", body["primary_method"])
	}
	if body["n_valid_clusters"] != 2.0 || body["total_comparisons"] != 40.0 {
		t.Fatalf("Counts are (%v, %v).",
			body["n_valid_clusters"], body["total_comparisons"])
	}
}

func TestWriteOverallJSONUndefined(t *testing.T) {
	file := path.Join(t.TempDir(), FileOverall)
	result := OverallResult{
		FisherP:       math.NaN(),
		StoufferP:     math.NaN(),
		Effect:        math.NaN(),
		PrimaryMethod: MethodFisher,
	}
	if err := WriteOverallJSON(file, result); err != nil {
		t.Fatal(err)
	}

	buf, err := os.ReadFile(file)
	if err != nil {
		t.Fatal(err)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(buf, &body); err != nil {
		t.Fatal(err)
	}

	// Undefined statistics are JSON nulls, never NaN text.
	for _, key := range []string{"overall_pvalue", "overall_pvalue_fisher",
		"overall_pvalue_stouffer", "overall_effect"} {
		value, ok := body[key]
		if !ok {
			t.Fatalf("Key %q is missing from the summary.", key)
		}
		if value != nil {
			t.Fatalf("Key %q is %v, but should have been null.", key, value)
		}
	}
}
