package ferromic

import (
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
)

// ErrNoCohortSuffix marks a sample name that does not end in the literal
// cohort suffix '_0' or '_1'.
var ErrNoCohortSuffix = errors.New("sample name has no cohort suffix")

// Sample is one haplotype of a region: a codon-aligned nucleotide
// sequence tagged with the cohort its name carries. Samples are built
// once during region parsing and never mutated.
type Sample struct {
	Name   string
	Seq    string
	Cohort int
}

// Region is one genomic coding unit and the samples aligned to it. The
// ID is the region file's base name; genomic coordinates are encoded in
// it and recovered by ParseRegionCoords when clustering.
type Region struct {
	ID      string
	Samples []Sample

	// HadDuplicates reports that at least one sample name collided
	// during parsing and was renamed. Cached comparisons for this
	// region are untrustworthy when set, since the renamed identities
	// may not line up with the previous run's.
	HadDuplicates bool
}

// SampleNames returns the region's sample names in their parse order.
func (r *Region) SampleNames() []string {
	names := make([]string, len(r.Samples))
	for i, s := range r.Samples {
		names[i] = s.Name
	}
	return names
}

// Cohorts maps each sample name to its cohort.
func (r *Region) Cohorts() map[string]int {
	m := make(map[string]int, len(r.Samples))
	for _, s := range r.Samples {
		m[s.Name] = s.Cohort
	}
	return m
}

// CohortCounts returns the number of samples in cohorts 0 and 1.
func (r *Region) CohortCounts() (n0, n1 int) {
	for _, s := range r.Samples {
		if s.Cohort == 0 {
			n0++
		} else {
			n1++
		}
	}
	return n0, n1
}

// ValidateSequence checks that a sequence is codon aligned (length
// divisible by 3) and drawn from the nucleotide alphabet ATCGN plus the
// gap character, and returns it uppercased. A failed check returns an
// error naming what was wrong; the caller drops the sequence.
func ValidateSequence(seq string) (string, error) {
	if len(seq)%3 != 0 {
		return "", fmt.Errorf(
			"sequence length %d is not divisible by 3", len(seq))
	}
	for i := 0; i < len(seq); i++ {
		switch seq[i] {
		case 'A', 'T', 'C', 'G', 'N', 'a', 't', 'c', 'g', 'n', '-':
		default:
			return "", fmt.Errorf(
				"invalid character %q in sequence", seq[i])
		}
	}
	return strings.ToUpper(seq), nil
}

// ExtractCohort reads the cohort from a sample name's trailing '_0' or
// '_1'. Any other ending is ErrNoCohortSuffix.
func ExtractCohort(name string) (int, error) {
	switch {
	case strings.HasSuffix(name, "_0"):
		return 0, nil
	case strings.HasSuffix(name, "_1"):
		return 1, nil
	}
	return 0, ErrNoCohortSuffix
}

// RenameDuplicate derives the replacement name for a duplicated sample.
// The contract comes from the upstream naming pipeline and must not be
// altered: the name's third character is replaced by the number of
// already-present names that share the name with its third character
// removed. Cache keys depend on this exact scheme staying stable.
func RenameDuplicate(name string, occurrence int) string {
	if len(name) < 3 {
		return fmt.Sprintf("%s%d", name, occurrence)
	}
	return name[:2] + fmt.Sprintf("%d", occurrence) + name[3:]
}

// dedupName resolves a colliding sample name against the names already
// seen, applying RenameDuplicate with the count of entries sharing the
// same third-character-stripped base.
func dedupName(name string, seen map[string]string) string {
	base := stripThird(name)
	occurrence := 0
	for s := range seen {
		if stripThird(s) == base {
			occurrence++
		}
	}
	renamed := RenameDuplicate(name, occurrence)
	log.Infof("Duplicate sample name found. Renaming %s to %s", name, renamed)
	return renamed
}

func stripThird(name string) string {
	if len(name) < 3 {
		return name
	}
	return name[:2] + name[3:]
}
