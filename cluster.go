package ferromic

import (
	"sort"

	log "github.com/sirupsen/logrus"
)

// activeEntry is a clustered interval that may still overlap a later
// region in the sweep.
type activeEntry struct {
	chrom   string
	end     int
	cluster int
}

// BuildOverlapClusters partitions regions into connected components of
// same-chromosome interval overlap, using a single sweep over the
// regions sorted by (chromosome, start). Active entries record the
// reach of clusters seen so far; once the sweep passes an entry's end
// (or moves to another chromosome) it can never overlap again and is
// dropped. A region overlapping several active clusters merges them
// all into the lowest-numbered one. Regions whose ids carry no
// parseable coordinates are excluded with a warning.
//
// The returned map keys are cluster ids; values are the member region
// ids, sorted.
func BuildOverlapClusters(regionIDs []string) map[int][]string {
	type located struct {
		coords RegionCoords
		id     string
	}

	regions := make([]located, 0, len(regionIDs))
	for _, id := range regionIDs {
		coords, err := ParseRegionCoords(id)
		if err != nil {
			log.Warnf("Excluding region from clustering: %s", err)
			continue
		}
		regions = append(regions, located{coords, id})
	}
	log.Infof("Clustering %d of %d regions with parseable coordinates",
		len(regions), len(regionIDs))

	sort.Slice(regions, func(i, j int) bool {
		a, b := regions[i].coords, regions[j].coords
		if a.Chrom != b.Chrom {
			return a.Chrom < b.Chrom
		}
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		if a.End != b.End {
			return a.End < b.End
		}
		return regions[i].id < regions[j].id
	})

	clusters := make(map[int]map[string]bool)
	var active []activeEntry
	nextCluster := 0

	for _, r := range regions {
		chrom, start, end := r.coords.Chrom, r.coords.Start, r.coords.End

		// Entries from other chromosomes, or ending before this start,
		// cannot overlap this or any later region.
		kept := active[:0]
		for _, a := range active {
			if a.chrom == chrom && a.end >= start {
				kept = append(kept, a)
			}
		}
		active = kept

		overlapping := make(map[int]bool)
		for _, a := range active {
			if a.chrom == chrom && a.end >= start {
				overlapping[a.cluster] = true
			}
		}

		if len(overlapping) == 0 {
			clusters[nextCluster] = map[string]bool{r.id: true}
			active = append(active, activeEntry{chrom, end, nextCluster})
			nextCluster++
			continue
		}

		target := -1
		for cid := range overlapping {
			if target < 0 || cid < target {
				target = cid
			}
		}
		clusters[target][r.id] = true

		for cid := range overlapping {
			if cid == target {
				continue
			}
			for id := range clusters[cid] {
				clusters[target][id] = true
			}
			delete(clusters, cid)
		}
		for i, a := range active {
			if overlapping[a.cluster] {
				active[i].cluster = target
			}
		}
		active = append(active, activeEntry{chrom, end, target})
	}

	out := make(map[int][]string, len(clusters))
	for cid, members := range clusters {
		ids := make([]string, 0, len(members))
		for id := range members {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		out[cid] = ids
	}
	return out
}
