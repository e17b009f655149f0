// Package generator synthesizes stream events with a value distribution
// chosen per category.
package generator

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/okian/pulse/internal/domain/model"
)

// Distribution bounds per category.
const (
	sensorMin      = 20.0
	sensorRange    = 100.0
	transactionMin = 1.0
	transactionMax = 5000.0
	metricRange    = 100.0
	logRange       = 1000.0
	alertMin       = 5000.0
	alertRange     = 5000.0
)

var defaultRegions = []string{"us-east", "us-west", "eu-central", "ap-south"}

// Generator produces events. It is safe for concurrent use.
type Generator struct {
	mu      sync.Mutex
	rnd     *rand.Rand
	now     func() time.Time
	source  string
	regions []string
}

// New creates a Generator.
func New(opts ...Option) *Generator {
	g := &Generator{
		rnd:     rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15)),
		now:     time.Now,
		source:  "generator",
		regions: defaultRegions,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Next synthesizes the event numbered seq.
func (g *Generator) Next(seq int64) model.Event {
	g.mu.Lock()
	defer g.mu.Unlock()

	cats := model.Categories()
	cat := cats[g.rnd.IntN(len(cats))]

	return model.Event{
		GeneratedAt: g.now().UTC(),
		Value:       model.RoundValue(g.value(cat)),
		Category:    cat,
		Metadata: map[string]any{
			"id":     uuid.NewString(),
			"seq":    seq,
			"source": g.source,
			"region": g.regions[g.rnd.IntN(len(g.regions))],
		},
	}
}

// value draws from the category's distribution. Callers hold g.mu.
func (g *Generator) value(cat model.Category) float64 {
	u := g.rnd.Float64()
	switch cat {
	case model.CategorySensor:
		return sensorMin + u*sensorRange
	case model.CategoryTransaction:
		// most transactions are small
		return transactionMin + u*u*(transactionMax-transactionMin)
	case model.CategoryMetric:
		return u * metricRange
	case model.CategoryLog:
		return u * logRange
	case model.CategoryAlert:
		return alertMin + u*alertRange
	default:
		return u * model.MaxValue
	}
}
