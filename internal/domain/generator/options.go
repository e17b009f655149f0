package generator

import (
	"math/rand/v2"
	"time"
)

// Option applies a configuration option to the Generator.
type Option func(*Generator)

// WithSeed makes the category and value sequence reproducible.
func WithSeed(seed uint64) Option {
	return func(g *Generator) {
		g.rnd = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

// WithClock sets the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		if now != nil {
			g.now = now
		}
	}
}

// WithSource sets the metadata "source" value.
func WithSource(source string) Option {
	return func(g *Generator) {
		if source != "" {
			g.source = source
		}
	}
}

// WithRegions sets the pool of metadata "region" values.
func WithRegions(regions ...string) Option {
	return func(g *Generator) {
		if len(regions) > 0 {
			g.regions = regions
		}
	}
}
