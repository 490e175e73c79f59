package ferromic

import (
	"fmt"
	"strconv"
	"strings"
)

// RegionCoords is the genomic interval recovered from a region id.
// Intervals are closed: two regions on the same chromosome overlap when
// neither ends before the other starts.
type RegionCoords struct {
	Chrom string
	Start int
	End   int
}

// Length is the interval span used for evidence weighting.
func (rc RegionCoords) Length() int {
	return rc.End - rc.Start
}

// Overlaps reports same-chromosome interval intersection.
func (rc RegionCoords) Overlaps(other RegionCoords) bool {
	return rc.Chrom == other.Chrom &&
		rc.Start <= other.End && other.Start <= rc.End
}

// ParseRegionCoords recovers chromosome and coordinates from a region
// id. Two literal formats are accepted: 'chrom_start<N>_end<N>' and
// 'chrom:start-end' (or 'chrom:start..end'). A leading path component
// is ignored. Anything else is an error; callers drop such regions from
// clustering with a warning.
func ParseRegionCoords(id string) (RegionCoords, error) {
	name := id
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}

	if parts := strings.Split(name, "_"); len(parts) == 3 &&
		strings.HasPrefix(parts[1], "start") &&
		strings.HasPrefix(parts[2], "end") {

		start, serr := strconv.Atoi(strings.TrimPrefix(parts[1], "start"))
		end, eerr := strconv.Atoi(strings.TrimPrefix(parts[2], "end"))
		if serr == nil && eerr == nil {
			return RegionCoords{Chrom: parts[0], Start: start, End: end}, nil
		}
	}

	if chrom, coords, ok := strings.Cut(name, ":"); ok {
		sep := "-"
		if strings.Contains(coords, "..") {
			sep = ".."
		}
		if startStr, endStr, ok := strings.Cut(coords, sep); ok {
			start, serr := strconv.Atoi(startStr)
			end, eerr := strconv.Atoi(endStr)
			if serr == nil && eerr == nil {
				return RegionCoords{Chrom: chrom, Start: start, End: end}, nil
			}
		}
	}

	return RegionCoords{}, fmt.Errorf("could not parse coordinates from '%s'", id)
}
