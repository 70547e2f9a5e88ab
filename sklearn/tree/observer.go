package tree

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// GaussianObserver summarises one numeric feature per class with running mean and
// variance (Welford). It proposes binary splits by assuming each class is normal.
type GaussianObserver struct {
	Weight [2]float64
	Mean   [2]float64
	M2     [2]float64
	Min    float64
	Max    float64
}

// NewGaussianObserver returns an empty observer.
func NewGaussianObserver() *GaussianObserver {
	return &GaussianObserver{Min: math.Inf(1), Max: math.Inf(-1)}
}

// Update adds value for class y with the given weight.
func (o *GaussianObserver) Update(value float64, y int, weight float64) {
	if math.IsNaN(value) || weight <= 0 {
		return
	}
	o.Min = math.Min(o.Min, value)
	o.Max = math.Max(o.Max, value)

	o.Weight[y] += weight
	delta := value - o.Mean[y]
	o.Mean[y] += weight * delta / o.Weight[y]
	o.M2[y] += weight * delta * (value - o.Mean[y])
}

// StdDev returns the sample standard deviation of class y.
func (o *GaussianObserver) StdDev(y int) float64 {
	if o.Weight[y] <= 1 {
		return 0
	}
	return math.Sqrt(o.M2[y] / (o.Weight[y] - 1))
}

// normal returns the class-conditional distribution, or false for a point mass.
func (o *GaussianObserver) normal(y int) (distuv.Normal, bool) {
	sd := o.StdDev(y)
	if sd <= 0 {
		return distuv.Normal{}, false
	}
	return distuv.Normal{Mu: o.Mean[y], Sigma: sd}, true
}

// LeftWeight estimates how much weight of class y has value <= threshold.
func (o *GaussianObserver) LeftWeight(y int, threshold float64) float64 {
	w := o.Weight[y]
	if w == 0 {
		return 0
	}
	if n, ok := o.normal(y); ok {
		return w * n.CDF(threshold)
	}
	if o.Mean[y] <= threshold {
		return w
	}
	return 0
}

// Likelihood is the class-conditional density at value, used by naive Bayes leaves.
func (o *GaussianObserver) Likelihood(y int, value float64) float64 {
	if n, ok := o.normal(y); ok {
		return n.Prob(value)
	}
	if o.Weight[y] > 0 && value == o.Mean[y] {
		return 1
	}
	return 0
}

// SplitSuggestion is a candidate binary split of a leaf.
type SplitSuggestion struct {
	Feature   int
	Threshold float64
	Merit     float64
	Left      [2]float64
	Right     [2]float64
}

// BestSplit evaluates nBins evenly spaced thresholds between the observed min and max
// and returns the one with the highest merit.
func (o *GaussianObserver) BestSplit(feature int, pre [2]float64, crit Criterion, nBins int) (SplitSuggestion, bool) {
	best := SplitSuggestion{Feature: feature, Merit: math.Inf(-1)}
	if !(o.Min < o.Max) {
		return best, false
	}
	step := (o.Max - o.Min) / float64(nBins+1)
	found := false
	for b := 1; b <= nBins; b++ {
		threshold := o.Min + float64(b)*step
		var left, right [2]float64
		for y := 0; y < 2; y++ {
			left[y] = o.LeftWeight(y, threshold)
			right[y] = o.Weight[y] - left[y]
		}
		merit := crit.Merit(pre, left, right)
		if merit > best.Merit {
			best = SplitSuggestion{Feature: feature, Threshold: threshold, Merit: merit, Left: left, Right: right}
			found = true
		}
	}
	return best, found
}
