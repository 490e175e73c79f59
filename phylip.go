package ferromic

import (
	"bufio"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"
)

// ReadRegionFile parses one PHYLIP region file into a Region. The first
// line may be a '<count> <length>' header; its absence is tolerated with
// a warning and the whole file is treated as sequence lines. Each
// sequence line is either '<name> <sequence...>' (whitespace separated,
// sequence possibly split into blocks) or fixed width: a 10-character
// name field followed by the sequence.
//
// Sequences failing validation are dropped with a warning. Samples
// without a cohort suffix fail the region, since every downstream
// statistic needs a complete cohort assignment. Duplicate sample names
// are renamed through the fixed upstream contract (see RenameDuplicate)
// and flag the region so stale cache entries can be purged.
func ReadRegionFile(file string) (*Region, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, fmt.Errorf("Could not open region file '%s': %s.", file, err)
	}
	defer f.Close()

	id := strings.TrimSuffix(path.Base(file), ".phy")
	region := &Region{ID: id}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1<<20), 1<<26)

	lines := make([]string, 0, 64)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("Could not read region file '%s': %s.", file, err)
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("Region file is empty: %s.", file)
	}

	// A valid header is two integers. Anything else means the file
	// starts directly with sequence lines.
	body := lines
	var n, seqLen int
	if _, err := fmt.Sscanf(lines[0], "%d %d", &n, &seqLen); err == nil {
		body = lines[1:]
	} else {
		log.Warnf("No valid header found in %s. Processing without header.", file)
	}

	seqs := make(map[string]string, len(body))
	order := make([]string, 0, len(body))
	for _, line := range body {
		line = strings.TrimRight(line, " \t\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		var name, seq string
		if fields := strings.Fields(line); len(fields) >= 2 {
			name = fields[0]
			seq = strings.Join(fields[1:], "")
		} else if len(line) > 10 {
			name = strings.TrimSpace(line[:10])
			seq = strings.ReplaceAll(line[10:], " ", "")
		} else {
			log.Warnf("Skipping malformed line in %s: %q", file, line)
			continue
		}

		validated, err := ValidateSequence(seq)
		if err != nil {
			log.Warnf("%s: %s. Skipping sequence %s.", id, err, name)
			continue
		}

		if _, ok := seqs[name]; ok {
			region.HadDuplicates = true
			name = dedupName(name, seqs)
		}
		seqs[name] = validated
		order = append(order, name)
	}

	for _, name := range order {
		cohort, err := ExtractCohort(name)
		if err != nil {
			return nil, fmt.Errorf(
				"Cohort suffix not found in sample name '%s' (region %s).",
				name, id)
		}
		region.Samples = append(region.Samples, Sample{
			Name:   name,
			Seq:    seqs[name],
			Cohort: cohort,
		})
	}

	if len(region.Samples) == 0 {
		return nil, fmt.Errorf("No valid sequences in %s.", file)
	}
	return region, nil
}

// ListRegionFiles returns the .phy files under dir, sorted by name.
func ListRegionFiles(dir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.phy"))
	if err != nil {
		return nil, fmt.Errorf("Could not scan '%s' for region files: %s.", dir, err)
	}
	sort.Strings(files)
	return files, nil
}
