package gomtl

import "golang.org/x/sync/errgroup"

const (
	// parallelLookupThreshold is the number of lookups from which cache reads
	// run concurrently.
	parallelLookupThreshold = 5

	maxLookupWorkers = 8
)

// lookupMany reads the cached translation of every request. hits[i] reports
// whether values[i] came from the cache.
func (t *Translator) lookupMany(reqs []Request) (values []string, hits []bool) {
	values = make([]string, len(reqs))
	hits = make([]bool, len(reqs))
	if t.cache == nil {
		return values, hits
	}

	if len(reqs) < parallelLookupThreshold {
		for i, req := range reqs {
			values[i], hits[i] = t.cached(req)
		}
		return values, hits
	}

	var g errgroup.Group
	g.SetLimit(maxLookupWorkers)
	for i, req := range reqs {
		g.Go(func() error {
			values[i], hits[i] = t.cached(req)
			return nil
		})
	}
	_ = g.Wait()
	return values, hits
}

// dedupe returns the distinct texts in first-seen order and, for each, the
// positions it occupies in texts.
func dedupe(texts []string, positions []int) (unique []string, slots map[string][]int) {
	slots = make(map[string][]int, len(positions))
	for _, pos := range positions {
		text := texts[pos]
		if _, seen := slots[text]; !seen {
			unique = append(unique, text)
		}
		slots[text] = append(slots[text], pos)
	}
	return unique, slots
}
