package knowledge

import "sort"

// RRFK is the rank constant of reciprocal-rank fusion
const RRFK = 60

// FuseRRF merges ranked lists by reciprocal-rank fusion: each chunk scores
// the sum of 1/(RRFK+rank) over the lists it appears in (rank starts at 1).
// Chunks are identified by content hash.
func FuseRRF(limit int, lists ...[]SearchResult) []SearchResult {
	scores := make(map[string]float64)
	chunks := make(map[string]Chunk)
	var order []string

	for _, list := range lists {
		for rank, r := range list {
			key := r.Chunk.ContentHash
			if _, seen := chunks[key]; !seen {
				chunks[key] = r.Chunk
				order = append(order, key)
			}
			scores[key] += 1.0 / float64(RRFK+rank+1)
		}
	}

	fused := make([]SearchResult, 0, len(order))
	for _, key := range order {
		fused = append(fused, SearchResult{Chunk: chunks[key], Score: scores[key]})
	}
	sort.SliceStable(fused, func(i, j int) bool { return fused[i].Score > fused[j].Score })

	if limit > 0 && len(fused) > limit {
		fused = fused[:limit]
	}
	return fused
}
