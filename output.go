package ferromic

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"
)

// Names of the run-wide output files. Per-region tables are named after
// the region itself (see RegionOutputFiles) and everything else is
// fixed.
const (
	FileAllPairwise   = "all_pairwise_results.csv"
	FileCohortSummary = "summary_statistics.csv"
	FileRegionTests   = "final_results.csv"
	FileOverall       = "overall_results.json"
)

// RegionOutputFiles returns the pairwise table and haplotype table
// paths for a region. All-pairs runs carry an "_all" suffix so the two
// modes never clobber each other.
func RegionOutputFiles(outDir, regionID string, allPairs bool) (string, string) {
	suffix := ""
	if allPairs {
		suffix = "_all"
	}
	pairwise := path.Join(outDir, regionID+suffix+".csv")
	stats := path.Join(outDir, regionID+suffix+"_haplotype_stats.csv")
	return pairwise, stats
}

var pairwiseHeader = []string{
	"Seq1", "Seq2", "Group1", "Group2", "dN", "dS", "omega", "CDS"}

// WritePairwiseCSV writes a region's pairwise results, sorted by pair
// for stable output across runs.
func WritePairwiseCSV(file string, results []PairResult) error {
	sorted := make([]PairResult, len(results))
	copy(sorted, results)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].SeqA != sorted[j].SeqA {
			return sorted[i].SeqA < sorted[j].SeqA
		}
		return sorted[i].SeqB < sorted[j].SeqB
	})

	rows := make([][]string, 0, len(sorted)+1)
	rows = append(rows, pairwiseHeader)
	for _, r := range sorted {
		rows = append(rows, []string{
			r.SeqA,
			r.SeqB,
			strconv.Itoa(r.CohortA),
			strconv.Itoa(r.CohortB),
			FormatOmega(r.DN),
			FormatOmega(r.DS),
			FormatOmega(r.Omega),
			r.Region,
		})
	}
	return writeCSV(file, rows)
}

// ReadPairwiseCSV loads a pairwise table written by WritePairwiseCSV
// (or the concatenation of several).
func ReadPairwiseCSV(file string) ([]PairResult, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, fmt.Errorf("Could not open pairwise table '%s': %s.",
			file, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("Could not read pairwise table '%s': %s.",
			file, err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	results := make([]PairResult, 0, len(records)-1)
	for i, rec := range records {
		if i == 0 && rec[0] == "Seq1" {
			continue
		}
		if len(rec) != len(pairwiseHeader) {
			return nil, fmt.Errorf(
				"Row %d of '%s' has %d fields, want %d.",
				i+1, file, len(rec), len(pairwiseHeader))
		}
		cohortA, aerr := strconv.Atoi(rec[2])
		cohortB, berr := strconv.Atoi(rec[3])
		dn, dnErr := ParseOmega(rec[4])
		ds, dsErr := ParseOmega(rec[5])
		omega, oErr := ParseOmega(rec[6])
		if aerr != nil || berr != nil ||
			dnErr != nil || dsErr != nil || oErr != nil {
			return nil, fmt.Errorf("Could not parse row %d of '%s'.", i+1, file)
		}
		results = append(results, PairResult{
			SeqA:    rec[0],
			SeqB:    rec[1],
			CohortA: cohortA,
			CohortB: cohortB,
			DN:      dn,
			DS:      ds,
			Omega:   omega,
			Region:  rec[7],
		})
	}
	return results, nil
}

// FilterValid drops sentinel and failed rows, leaving only computed
// omega ratios. The evidence pipeline runs on this subset.
func FilterValid(results []PairResult) []PairResult {
	valid := make([]PairResult, 0, len(results))
	for _, r := range results {
		if r.Valid() {
			valid = append(valid, r)
		}
	}
	return valid
}

// WriteSampleStatsCSV writes a region's haplotype summary table.
func WriteSampleStatsCSV(file string, rows []SampleStats) error {
	records := make([][]string, 0, len(rows)+1)
	records = append(records, []string{
		"Haplotype", "Group", "CDS",
		"Mean_dNdS", "Median_dNdS", "Num_Comparisons"})
	for _, row := range rows {
		records = append(records, []string{
			row.Haplotype,
			strconv.Itoa(row.Cohort),
			row.Region,
			FormatOmega(row.MeanOmega),
			FormatOmega(row.MedianOmega),
			strconv.Itoa(row.NumComparisons),
		})
	}
	return writeCSV(file, records)
}

// ReadSampleStatsCSV loads a haplotype summary table.
func ReadSampleStatsCSV(file string) ([]SampleStats, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, fmt.Errorf("Could not open haplotype table '%s': %s.",
			file, err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("Could not read haplotype table '%s': %s.",
			file, err)
	}

	rows := make([]SampleStats, 0, len(records))
	for i, rec := range records {
		if i == 0 && rec[0] == "Haplotype" {
			continue
		}
		if len(rec) != 6 {
			return nil, fmt.Errorf(
				"Row %d of '%s' has %d fields, want 6.", i+1, file, len(rec))
		}
		cohort, cerr := strconv.Atoi(rec[1])
		mean, merr := ParseOmega(rec[3])
		med, derr := ParseOmega(rec[4])
		count, nerr := strconv.Atoi(rec[5])
		if cerr != nil || merr != nil || derr != nil || nerr != nil {
			return nil, fmt.Errorf("Could not parse row %d of '%s'.", i+1, file)
		}
		rows = append(rows, SampleStats{
			Haplotype:      rec[0],
			Cohort:         cohort,
			Region:         rec[2],
			MeanOmega:      mean,
			MedianOmega:    med,
			NumComparisons: count,
		})
	}
	return rows, nil
}

// ListHaplotypeStatsFiles returns every haplotype summary table in
// outDir, sorted by name.
func ListHaplotypeStatsFiles(outDir string) ([]string, error) {
	files, err := filepath.Glob(
		filepath.Join(outDir, "*_haplotype_stats.csv"))
	if err != nil {
		return nil, fmt.Errorf("Could not scan '%s' for haplotype tables: %s.",
			outDir, err)
	}
	sort.Strings(files)
	return files, nil
}

// CombinePairwiseFiles concatenates every per-region pairwise table in
// outDir into FileAllPairwise, skipping the run-wide outputs and the
// haplotype tables. Empty or unreadable tables are skipped with a
// warning rather than failing the run.
func CombinePairwiseFiles(outDir string) error {
	skip := map[string]bool{
		FileAllPairwise:   true,
		FileCohortSummary: true,
		FileRegionTests:   true,
	}

	files, err := filepath.Glob(filepath.Join(outDir, "*.csv"))
	if err != nil {
		return fmt.Errorf("Could not scan '%s' for result tables: %s.",
			outDir, err)
	}
	sort.Strings(files)

	var all []PairResult
	for _, file := range files {
		base := path.Base(file)
		if skip[base] || strings.HasSuffix(base, "_haplotype_stats.csv") {
			continue
		}
		results, err := ReadPairwiseCSV(file)
		if err != nil {
			log.Warnf("Skipping unreadable pairwise table: %s", err)
			continue
		}
		if len(results) == 0 {
			log.Warnf("Empty pairwise table skipped: %s", file)
			continue
		}
		all = append(all, results...)
	}
	if len(all) == 0 {
		log.Warn("No pairwise result tables found to combine")
		return nil
	}

	combined := path.Join(outDir, FileAllPairwise)
	if err := WritePairwiseCSV(combined, all); err != nil {
		return err
	}
	log.Infof("Combined %d pairwise results into %s", len(all), combined)
	return nil
}

// CohortSummary describes one cohort's sample mean omegas across all
// regions.
type CohortSummary struct {
	Cohort           int
	Count            int
	Mean             float64
	StdDev           float64
	Min              float64
	Max              float64
	Median           float64
	TotalComparisons int
}

// SummarizeCohorts reduces haplotype rows to one summary per cohort,
// over rows whose mean omega is defined.
func SummarizeCohorts(rows []SampleStats) []CohortSummary {
	summaries := make([]CohortSummary, 2)
	values := make([][]float64, 2)
	for i := range summaries {
		summaries[i].Cohort = i
		summaries[i].Mean = math.NaN()
		summaries[i].StdDev = math.NaN()
		summaries[i].Min = math.NaN()
		summaries[i].Max = math.NaN()
		summaries[i].Median = math.NaN()
	}

	for _, row := range rows {
		if row.Cohort != 0 && row.Cohort != 1 {
			continue
		}
		s := &summaries[row.Cohort]
		s.TotalComparisons += row.NumComparisons
		if math.IsNaN(row.MeanOmega) {
			continue
		}
		s.Count++
		values[row.Cohort] = append(values[row.Cohort], row.MeanOmega)
	}

	for i := range summaries {
		vs := values[i]
		if len(vs) == 0 {
			continue
		}
		sort.Float64s(vs)
		summaries[i].Mean = stat.Mean(vs, nil)
		summaries[i].StdDev = stat.StdDev(vs, nil)
		summaries[i].Min = vs[0]
		summaries[i].Max = vs[len(vs)-1]
		summaries[i].Median = median(vs)
	}
	return summaries
}

// WriteCohortSummaryCSV writes the per-cohort summary table.
func WriteCohortSummaryCSV(file string, summaries []CohortSummary) error {
	records := [][]string{{
		"Group", "Count", "Mean", "Std", "Min", "Max", "Median",
		"Total_Comparisons"}}
	for _, s := range summaries {
		records = append(records, []string{
			strconv.Itoa(s.Cohort),
			strconv.Itoa(s.Count),
			FormatOmega(s.Mean),
			FormatOmega(s.StdDev),
			FormatOmega(s.Min),
			FormatOmega(s.Max),
			FormatOmega(s.Median),
			strconv.Itoa(s.TotalComparisons),
		})
	}
	return writeCSV(file, records)
}

// WriteRegionTestsCSV writes the per-region test table, sorted by
// region id.
func WriteRegionTestsCSV(file string, tests []RegionTest) error {
	sorted := make([]RegionTest, len(tests))
	copy(sorted, tests)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Region < sorted[j].Region
	})

	records := [][]string{{
		"CDS", "effect_size", "p_value", "n0", "n1",
		"num_comp_group_0", "num_comp_group_1"}}
	for _, t := range sorted {
		records = append(records, []string{
			t.Region,
			FormatOmega(t.EffectSize),
			FormatOmega(t.PValue),
			strconv.Itoa(t.N0),
			strconv.Itoa(t.N1),
			strconv.Itoa(t.Comparisons0),
			strconv.Itoa(t.Comparisons1),
		})
	}
	return writeCSV(file, records)
}

type overallJSON struct {
	OverallPvalue         *float64 `json:"overall_pvalue"`
	OverallPvalueFisher   *float64 `json:"overall_pvalue_fisher"`
	OverallPvalueStouffer *float64 `json:"overall_pvalue_stouffer"`
	OverallEffect         *float64 `json:"overall_effect"`
	PrimaryMethod         string   `json:"primary_method"`
	NValidClusters        int      `json:"n_valid_clusters"`
	TotalComparisons      int      `json:"total_comparisons"`
}

// WriteOverallJSON writes the final structured summary. Undefined
// statistics become JSON nulls.
func WriteOverallJSON(file string, result OverallResult) error {
	fptr := func(v float64) *float64 {
		if math.IsNaN(v) {
			return nil
		}
		return &v
	}
	primaryP := result.PrimaryP()
	body := overallJSON{
		OverallPvalue:         fptr(primaryP),
		OverallPvalueFisher:   fptr(result.FisherP),
		OverallPvalueStouffer: fptr(result.StoufferP),
		OverallEffect:         fptr(result.Effect),
		PrimaryMethod:         string(result.PrimaryMethod),
		NValidClusters:        result.ValidClusters,
		TotalComparisons:      result.TotalComparisons,
	}

	buf, err := json.MarshalIndent(body, "", "  ")
	if err != nil {
		return fmt.Errorf("Could not encode overall results: %s.", err)
	}
	if err := os.WriteFile(file, append(buf, '\n'), 0666); err != nil {
		return fmt.Errorf("Could not write '%s': %s.", file, err)
	}
	return nil
}

func writeCSV(file string, records [][]string) error {
	f, err := os.Create(file)
	if err != nil {
		return fmt.Errorf("Could not create '%s': %s.", file, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.WriteAll(records); err != nil {
		return fmt.Errorf("Could not write '%s': %s.", file, err)
	}
	return nil
}
