package drift

import (
	"bytes"
	"encoding/gob"
	"math"
	"sync"
)

// ADWIN (ADaptive WINdowing) keeps a variable-length window of recent values and drops
// its oldest part whenever two sub-windows have significantly different means.
// A. Bifet, R. Gavalda (2007) "Learning from time-changing data with adaptive windowing"
//
// The window is stored as an exponential histogram: buckets hold 2^k values and at
// most maxBuckets buckets share a size.
type ADWIN struct {
	delta      float64
	maxBuckets int
	clock      int
	minWindow  int

	buckets []bucket // oldest first
	total   float64
	squares float64
	width   int
	ticks   int

	mu sync.RWMutex
}

type bucket struct {
	Sum     float64
	Squares float64
	Count   int
}

// ADWINOption configures an ADWIN.
type ADWINOption func(*ADWIN)

// WithADWINDelta sets the confidence parameter; smaller is less sensitive.
func WithADWINDelta(delta float64) ADWINOption {
	return func(a *ADWIN) { a.delta = delta }
}

// WithADWINMaxBuckets sets how many buckets of equal size are kept before merging.
func WithADWINMaxBuckets(n int) ADWINOption {
	return func(a *ADWIN) { a.maxBuckets = n }
}

// WithADWINClock sets how many updates pass between cut checks.
func WithADWINClock(n int) ADWINOption {
	return func(a *ADWIN) { a.clock = n }
}

// NewADWIN creates an empty detector with delta 0.002.
func NewADWIN(options ...ADWINOption) *ADWIN {
	a := &ADWIN{
		delta:      0.002,
		maxBuckets: 5,
		clock:      32,
		minWindow:  5,
	}
	for _, opt := range options {
		opt(a)
	}
	if a.maxBuckets < 2 {
		a.maxBuckets = 2
	}
	if a.clock < 1 {
		a.clock = 1
	}
	return a
}

// Update adds value to the window and reports whether the window was cut.
func (a *ADWIN) Update(value float64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.buckets = append(a.buckets, bucket{Sum: value, Squares: value * value, Count: 1})
	a.total += value
	a.squares += value * value
	a.width++
	a.compress()

	a.ticks++
	if a.ticks%a.clock != 0 || a.width < 2*a.minWindow {
		return false
	}
	return a.cut()
}

// compress merges the two oldest buckets of any size that exceeds maxBuckets.
func (a *ADWIN) compress() {
	size := 1
	for {
		first, n := -1, 0
		for i, b := range a.buckets {
			if b.Count == size {
				if first < 0 {
					first = i
				}
				n++
			}
		}
		if n <= a.maxBuckets {
			return
		}
		merged := bucket{
			Sum:     a.buckets[first].Sum + a.buckets[first+1].Sum,
			Squares: a.buckets[first].Squares + a.buckets[first+1].Squares,
			Count:   a.buckets[first].Count + a.buckets[first+1].Count,
		}
		a.buckets[first] = merged
		a.buckets = append(a.buckets[:first+1], a.buckets[first+2:]...)
		size *= 2
	}
}

// cut drops old buckets while some split of the window shows a significant change in
// mean. It reports whether anything was dropped.
func (a *ADWIN) cut() bool {
	changed := false
	for {
		dropped := false
		n := float64(a.width)
		variance := a.squares/n - (a.total/n)*(a.total/n)
		if variance < 0 {
			variance = 0
		}
		deltaPrime := a.delta / math.Log(n)

		n0, sum0 := 0, 0.0
		for i := 0; i < len(a.buckets)-1; i++ {
			n0 += a.buckets[i].Count
			sum0 += a.buckets[i].Sum
			n1 := a.width - n0
			if n0 < a.minWindow || n1 < a.minWindow {
				continue
			}
			mean0 := sum0 / float64(n0)
			mean1 := (a.total - sum0) / float64(n1)
			if math.Abs(mean0-mean1) > a.bound(n0, n1, variance, deltaPrime) {
				a.dropOldest()
				dropped = true
				changed = true
				break
			}
		}
		if !dropped || a.width < 2*a.minWindow {
			return changed
		}
	}
}

// bound is the ADWIN epsilon-cut for sub-window sizes n0 and n1.
func (a *ADWIN) bound(n0, n1 int, variance, deltaPrime float64) float64 {
	m := 1.0 / (1.0/float64(n0) + 1.0/float64(n1))
	logTerm := math.Log(2.0 / deltaPrime)
	return math.Sqrt(2.0/m*variance*logTerm) + 2.0/(3.0*m)*logTerm
}

func (a *ADWIN) dropOldest() {
	oldest := a.buckets[0]
	a.buckets = a.buckets[1:]
	a.total -= oldest.Sum
	a.width -= oldest.Count
	a.squares -= oldest.Squares
	if a.squares < 0 || a.width == 0 {
		a.squares = 0
	}
}

// Mean returns the mean of the current window.
func (a *ADWIN) Mean() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.width == 0 {
		return 0
	}
	return a.total / float64(a.width)
}

// Width returns the number of values in the current window.
func (a *ADWIN) Width() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.width
}

// Reset empties the window.
func (a *ADWIN) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.buckets = nil
	a.total = 0
	a.squares = 0
	a.width = 0
	a.ticks = 0
}

type adwinState struct {
	Delta      float64
	MaxBuckets int
	Clock      int
	MinWindow  int
	Buckets    []bucket
	Total      float64
	Squares    float64
	Width      int
	Ticks      int
}

// GobEncode lets ADWIN travel inside model snapshots.
func (a *ADWIN) GobEncode() ([]byte, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(adwinState{
		Delta: a.delta, MaxBuckets: a.maxBuckets, Clock: a.clock, MinWindow: a.minWindow,
		Buckets: a.buckets, Total: a.total, Squares: a.squares, Width: a.width, Ticks: a.ticks,
	})
	return buf.Bytes(), err
}

// GobDecode restores an ADWIN written by GobEncode.
func (a *ADWIN) GobDecode(data []byte) error {
	var s adwinState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.delta, a.maxBuckets, a.clock, a.minWindow = s.Delta, s.MaxBuckets, s.Clock, s.MinWindow
	a.buckets, a.total, a.squares, a.width, a.ticks = s.Buckets, s.Total, s.Squares, s.Width, s.Ticks
	return nil
}
