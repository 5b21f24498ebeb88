package vectordb

// Entry is one document vector handed to an index.
type Entry struct {
	ID        string
	Title     string
	Source    string
	Embedding []float32
}

// Hit pairs a document ID with its similarity to the query vector.
type Hit struct {
	ID         string
	Title      string
	Source     string
	Similarity float64
}

func filterHits(hits []Hit, threshold float64, limit int) []Hit {
	out := hits[:0]
	for _, h := range hits {
		if h.Similarity >= threshold {
			out = append(out, h)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
