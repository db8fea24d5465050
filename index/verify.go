package index

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/cespare/xxhash"
)

// Report compares the live map with one rebuilt from storage.
type Report struct {
	Consistent bool   `json:"consistent"`
	Live       uint64 `json:"live"`
	Rebuilt    uint64 `json:"rebuilt"`
	Documents  int    `json:"documents"`
	Entries    int    `json:"entries"`
}

// Verify rebuilds the map from storage on the side and compares fingerprints
// with the live map, which is left untouched. Events wait until the
// comparison is done, so both sides describe the same point in time.
func (ix *Index) Verify(ctx context.Context) (Report, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	docs, err := ix.source.List(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("verify %s: %w", ix.name, err)
	}
	rebuilt, _ := build(ix.fields, docs)

	r := Report{
		Live:      fingerprint(ix.terms),
		Rebuilt:   fingerprint(rebuilt),
		Documents: len(docs),
		Entries:   len(ix.byID),
	}
	r.Consistent = r.Live == r.Rebuilt
	if !r.Consistent {
		ix.logger.Warn("index diverged from storage", "live_entries", r.Entries, "documents", r.Documents)
	}
	return r, nil
}

// Fingerprint hashes the current map. Equal maps give equal fingerprints.
func (ix *Index) Fingerprint() uint64 {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return fingerprint(ix.terms)
}

func fingerprint(terms map[string]map[string]struct{}) uint64 {
	d := xxhash.New()
	for _, key := range slices.Sorted(maps.Keys(terms)) {
		d.Write([]byte(key))
		d.Write([]byte{0})
		for _, id := range slices.Sorted(maps.Keys(terms[key])) {
			d.Write([]byte(id))
			d.Write([]byte{1})
		}
		d.Write([]byte{2})
	}
	return d.Sum64()
}
