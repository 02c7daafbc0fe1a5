package batch

import "github.com/teranos/exportsync/candidate"

// DefaultBatchSize is the chunk size when none is configured.
const DefaultBatchSize = 50

// Plan is the ordered partition of a candidate list into fixed-size chunks.
// Concatenating the chunks yields the input list.
type Plan struct {
	Size   int
	Chunks [][]candidate.Symbol
}

// NewPlan chunks symbols into groups of size. size <= 0 uses DefaultBatchSize.
func NewPlan(symbols []candidate.Symbol, size int) Plan {
	if size <= 0 {
		size = DefaultBatchSize
	}
	p := Plan{Size: size}
	for start := 0; start < len(symbols); start += size {
		end := start + size
		if end > len(symbols) {
			end = len(symbols)
		}
		p.Chunks = append(p.Chunks, symbols[start:end:end])
	}
	return p
}

// Len is the number of chunks.
func (p Plan) Len() int {
	return len(p.Chunks)
}
