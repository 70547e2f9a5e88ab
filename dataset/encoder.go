package dataset

import (
	"sort"
	"sync"
)

// CategoricalEncoder assigns integer codes to string values per column, in order of
// first appearance. It also records whether each column it has seen is categorical
// or numeric. One encoder shared by the training and holdout loads keeps both the
// codes and the column types consistent across datasets.
type CategoricalEncoder struct {
	mu    sync.Mutex
	codes map[string]map[string]int
	kinds map[string]bool
}

// NewCategoricalEncoder returns an empty encoder.
func NewCategoricalEncoder() *CategoricalEncoder {
	return &CategoricalEncoder{
		codes: make(map[string]map[string]int),
		kinds: make(map[string]bool),
	}
}

// Kind reports whether column is categorical, and whether its type is fixed yet.
func (e *CategoricalEncoder) Kind(column string) (categorical, known bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	categorical, known = e.kinds[column]
	return categorical, known
}

// Fix records the type of column unless one is already recorded, and returns the
// type in force. The first caller wins.
func (e *CategoricalEncoder) Fix(column string, categorical bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if prev, ok := e.kinds[column]; ok {
		return prev
	}
	e.kinds[column] = categorical
	return categorical
}

// Encode returns the code of value in column, assigning the next one when unseen.
func (e *CategoricalEncoder) Encode(column, value string) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	m, ok := e.codes[column]
	if !ok {
		m = make(map[string]int)
		e.codes[column] = m
	}
	if _, ok := e.kinds[column]; !ok {
		e.kinds[column] = true
	}
	code, ok := m[value]
	if !ok {
		code = len(m)
		m[value] = code
	}
	return float64(code)
}

// Mapping returns a copy of the codes assigned in column.
func (e *CategoricalEncoder) Mapping(column string) map[string]int {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[string]int, len(e.codes[column]))
	for k, v := range e.codes[column] {
		out[k] = v
	}
	return out
}

// Columns lists the columns that have been encoded, sorted.
func (e *CategoricalEncoder) Columns() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	cols := make([]string, 0, len(e.codes))
	for c := range e.codes {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}
