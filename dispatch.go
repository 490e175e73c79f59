package ferromic

import (
	"errors"
	"sync"

	log "github.com/sirupsen/logrus"
)

// ErrNoPairs marks a region whose sample set yields nothing to compare
// under the configured mode. The region is skipped, not fatal.
var ErrNoPairs = errors.New("region has no pairs to compare")

// Dispatcher drives a region's pairwise comparisons through a bounded
// worker pool. The cache belongs to the dispatcher alone: workers are
// pure functions from a pair to a result, and every insert happens on
// the coordinating goroutine while it drains completions. Completion
// order is arbitrary; aggregation must wait for ProcessRegion to
// return, which is the per-region barrier.
type Dispatcher struct {
	Cache    *Cache
	Exec     Executor
	Workers  int
	AllPairs bool
}

// pairJob is the unit of work handed to the pool.
type pairJob struct {
	region string
	a, b   Sample
}

// pairPool is a fixed set of comparison workers reading from a shared
// jobs channel and reporting on a shared completion channel.
type pairPool struct {
	exec Executor
	jobs chan pairJob
	out  chan PairResult
	wg   *sync.WaitGroup
}

func startPairWorkers(exec Executor, n int) pairPool {
	pool := pairPool{
		exec: exec,
		jobs: make(chan pairJob, 200),
		out:  make(chan PairResult, 200),
		wg:   &sync.WaitGroup{},
	}
	for i := 0; i < max(1, n); i++ {
		pool.wg.Add(1)
		go pool.worker()
	}
	return pool
}

func (pool pairPool) worker() {
	for job := range pool.jobs {
		pool.out <- pool.exec.Compare(job.region, job.a, job.b)
	}
	pool.wg.Done()
}

// ProcessRegion resolves every pair of the region: cache hits are
// returned as-is, misses are fanned out to the pool, and each fresh
// completion is inserted into the cache before being collected. The
// returned slice covers all pairs, in no particular order.
func (d *Dispatcher) ProcessRegion(region *Region) ([]PairResult, error) {
	pairs := GeneratePairs(region.Samples, d.AllPairs)
	if len(pairs) == 0 {
		return nil, ErrNoPairs
	}

	byName := make(map[string]Sample, len(region.Samples))
	for _, s := range region.Samples {
		byName[s.Name] = s
	}

	results := make([]PairResult, 0, len(pairs))
	misses := make([]pairJob, 0, len(pairs))
	bar := NewProgressBar(region.ID, len(pairs))

	for _, p := range pairs {
		key := NewPairKey(region.ID, p.A, p.B, d.AllPairs)
		if hit, ok := d.Cache.Lookup(key); ok {
			results = append(results, hit)
			bar.Increment()
			continue
		}
		misses = append(misses, pairJob{
			region: region.ID,
			a:      byName[p.A],
			b:      byName[p.B],
		})
	}
	bar.ClearAndDisplay()
	log.Infof("%s: %d pairs (%d cached, %d to compute)",
		region.ID, len(pairs), len(results), len(misses))

	if len(misses) == 0 {
		bar.Finish()
		return results, nil
	}

	workers := d.Workers
	if workers <= 0 {
		workers = SafeWorkerCount()
	}
	pool := startPairWorkers(d.Exec, min(workers, len(misses)))

	go func() {
		for _, job := range misses {
			pool.jobs <- job
		}
		close(pool.jobs)
	}()
	go func() {
		pool.wg.Wait()
		close(pool.out)
	}()

	for result := range pool.out {
		key := NewPairKey(result.Region, result.SeqA, result.SeqB, d.AllPairs)
		d.Cache.Insert(key, result)
		results = append(results, result)
		bar.Increment()
		bar.ClearAndDisplay()
	}
	bar.Finish()

	return results, nil
}
