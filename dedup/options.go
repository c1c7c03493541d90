// Package dedup finds listings from different sources that describe the same
// property and collapses them into canonical records.
//
// A batch is partitioned by identity.Fingerprint, each partition is clustered
// with seed-based single-link grouping, and every multi-listing cluster is
// merged. Work is proportional to the sum of squared partition sizes; a batch
// where every listing shares one fingerprint degrades to O(n²) and is logged,
// not capped.
package dedup

import (
	"errors"
	"fmt"
	"math"
	"runtime"
)

var (
	ErrEmptyCluster     = errors.New("dedup: cannot merge an empty cluster")
	ErrNilListing       = errors.New("dedup: nil listing")
	ErrMalformedListing = errors.New("dedup: listing has no source or external id")
	ErrInvalidWeights   = errors.New("dedup: similarity weights must sum to 1")
)

// Weights are the coefficients of the four similarity signals.
type Weights struct {
	Price      float64 `yaml:"price"`
	Location   float64 `yaml:"location"`
	Attributes float64 `yaml:"attributes"`
	Title      float64 `yaml:"title"`
}

// DefaultWeights returns price 0.25, location 0.30, attributes 0.25, title 0.20.
func DefaultWeights() Weights {
	return Weights{
		Price:      0.25,
		Location:   0.30,
		Attributes: 0.25,
		Title:      0.20,
	}
}

// Sum returns the total of all four weights
func (w Weights) Sum() float64 {
	return w.Price + w.Location + w.Attributes + w.Title
}

// Options tune scoring and batch processing.
type Options struct {
	Weights        Weights
	Threshold      float64 // minimum score for a duplicate (inclusive)
	PriceTolerance float64 // relative price difference that still scores 1.0
	PriceDecay     float64 // score lost per unit of relative difference past the tolerance
	AreaTolerance  float64 // relative area difference that still counts as a match

	Workers         int // concurrent buckets; <= 0 means GOMAXPROCS
	LargeBucketWarn int // log a warning for buckets bigger than this
}

// DefaultOptions returns the production tuning.
func DefaultOptions() Options {
	return Options{
		Weights:         DefaultWeights(),
		Threshold:       0.75,
		PriceTolerance:  0.05,
		PriceDecay:      5,
		AreaTolerance:   0.10,
		Workers:         runtime.GOMAXPROCS(0),
		LargeBucketWarn: 500,
	}
}

const weightEpsilon = 1e-9

// Validate checks the weight invariant and value ranges.
func (o Options) Validate() error {
	w := o.Weights
	for _, v := range []float64{w.Price, w.Location, w.Attributes, w.Title} {
		if v < 0 {
			return fmt.Errorf("%w: negative weight %v", ErrInvalidWeights, v)
		}
	}
	if math.Abs(w.Sum()-1) > weightEpsilon {
		return fmt.Errorf("%w: got %v", ErrInvalidWeights, w.Sum())
	}
	if o.Threshold < 0 || o.Threshold > 1 {
		return fmt.Errorf("dedup: threshold %v outside [0,1]", o.Threshold)
	}
	if o.PriceTolerance < 0 || o.AreaTolerance < 0 || o.PriceDecay < 0 {
		return fmt.Errorf("dedup: tolerances must not be negative")
	}
	return nil
}

func (o Options) workers() int {
	if o.Workers <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return o.Workers
}
