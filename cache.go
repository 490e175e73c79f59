package ferromic

import (
	"encoding/gob"
	"fmt"
	"os"
	"path"

	log "github.com/sirupsen/logrus"
)

// FileResultsCache is the cache file name inside the output directory.
const FileResultsCache = "results_cache.gob"

// Cache is the persistent store of pairwise comparison results. It is
// owned by the run coordinator: workers never touch it, so an insert is
// never lost to a goroutine-private copy. Failed results are stored like
// any other so a crashed tool is not re-run every time; retrying one
// requires invalidating its region explicitly.
type Cache struct {
	file    string
	results map[PairKey]PairResult
	dirty   bool
}

// NewCache returns an empty cache that will persist to file.
func NewCache(file string) *Cache {
	return &Cache{
		file:    file,
		results: make(map[PairKey]PairResult),
	}
}

// LoadCache reads a previously persisted cache. A missing file is a
// fresh start, not an error.
func LoadCache(file string) (*Cache, error) {
	c := NewCache(file)

	f, err := os.Open(file)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Could not open cache '%s': %s.", file, err)
	}
	defer f.Close()

	if err := gob.NewDecoder(f).Decode(&c.results); err != nil {
		return nil, fmt.Errorf("Could not decode cache '%s': %s.", file, err)
	}
	log.Infof("Cache loaded from %s (%d results)", file, len(c.results))
	return c, nil
}

// Lookup returns the cached result for a key.
func (c *Cache) Lookup(key PairKey) (PairResult, bool) {
	r, ok := c.results[key]
	return r, ok
}

// Insert stores a result, overwriting any previous entry for the key.
func (c *Cache) Insert(key PairKey, result PairResult) {
	c.results[key] = result
	c.dirty = true
}

// InvalidateRegion drops every entry belonging to a region. Used when
// region parsing renamed duplicate samples, which makes that region's
// cached identities suspect.
func (c *Cache) InvalidateRegion(regionID string) int {
	dropped := 0
	for key := range c.results {
		if key.Region == regionID {
			delete(c.results, key)
			dropped++
		}
	}
	if dropped > 0 {
		c.dirty = true
		log.Infof("Invalidated %d cached results for region %s",
			dropped, regionID)
	}
	return dropped
}

// Len returns the number of cached results.
func (c *Cache) Len() int {
	return len(c.results)
}

// Save persists the cache as a whole-map snapshot. The write goes to a
// temporary file in the same directory and is renamed into place, so a
// crash mid-write leaves the previous snapshot intact. Saving a clean
// cache is a no-op.
func (c *Cache) Save() error {
	if !c.dirty {
		return nil
	}

	tmp, err := os.CreateTemp(path.Dir(c.file), "cache-")
	if err != nil {
		return fmt.Errorf("Could not create temporary cache file: %s.", err)
	}
	tmpName := tmp.Name()

	if err := gob.NewEncoder(tmp).Encode(c.results); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("Could not encode cache: %s.", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("Could not close temporary cache file: %s.", err)
	}
	if err := os.Rename(tmpName, c.file); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("Could not replace cache '%s': %s.", c.file, err)
	}

	c.dirty = false
	log.Infof("Cache saved to %s (%d results)", c.file, len(c.results))
	return nil
}
