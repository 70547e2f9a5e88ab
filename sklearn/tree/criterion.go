package tree

import (
	"math"

	"github.com/YuminosukeSato/holdout/pkg/errors"
)

// Criterion scores how much a split purifies the class distribution.
type Criterion interface {
	// Merit is impurity(pre) minus the weighted impurity of the two branches.
	Merit(pre, left, right [2]float64) float64
	// Range bounds Merit, the R in the Hoeffding bound.
	Range() float64
	Name() string
}

// NewCriterion returns the criterion registered under name ("gini" or "info_gain").
func NewCriterion(name string) (Criterion, error) {
	switch name {
	case "gini":
		return giniCriterion{}, nil
	case "info_gain", "entropy":
		return infoGainCriterion{}, nil
	default:
		return nil, errors.NewValidationError("split_criterion", "must be gini or info_gain", name)
	}
}

type giniCriterion struct{}

func (giniCriterion) Name() string   { return "gini" }
func (giniCriterion) Range() float64 { return 1 }

func (giniCriterion) Merit(pre, left, right [2]float64) float64 {
	return merit(pre, left, right, gini)
}

type infoGainCriterion struct{}

func (infoGainCriterion) Name() string   { return "info_gain" }
func (infoGainCriterion) Range() float64 { return 1 } // log2 of two classes

func (infoGainCriterion) Merit(pre, left, right [2]float64) float64 {
	return merit(pre, left, right, entropy)
}

func merit(pre, left, right [2]float64, impurity func([2]float64) float64) float64 {
	total := pre[0] + pre[1]
	nl, nr := left[0]+left[1], right[0]+right[1]
	if total == 0 || nl+nr == 0 {
		return 0
	}
	// Both branches must receive a minimum share of the weight.
	if nl/(nl+nr) < 0.01 || nr/(nl+nr) < 0.01 {
		return math.Inf(-1)
	}
	post := (nl*impurity(left) + nr*impurity(right)) / (nl + nr)
	return impurity(pre) - post
}

func gini(d [2]float64) float64 {
	n := d[0] + d[1]
	if n == 0 {
		return 0
	}
	p0, p1 := d[0]/n, d[1]/n
	return 1 - p0*p0 - p1*p1
}

func entropy(d [2]float64) float64 {
	n := d[0] + d[1]
	if n == 0 {
		return 0
	}
	h := 0.0
	for _, c := range d {
		if c > 0 {
			p := c / n
			h -= p * math.Log2(p)
		}
	}
	return h
}
