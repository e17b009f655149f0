// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"math"
	"time"
)

// Value bounds for generated events.
const (
	MinValue = 0.0
	MaxValue = 10000.0
)

// Category classifies an event. The set is closed.
type Category string

// Known categories.
const (
	CategorySensor      Category = "sensor"
	CategoryTransaction Category = "transaction"
	CategoryMetric      Category = "metric"
	CategoryLog         Category = "log"
	CategoryAlert       Category = "alert"
)

// Categories returns every known category in a stable order.
func Categories() []Category {
	return []Category{CategorySensor, CategoryTransaction, CategoryMetric, CategoryLog, CategoryAlert}
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategorySensor, CategoryTransaction, CategoryMetric, CategoryLog, CategoryAlert:
		return true
	}
	return false
}

// ParseCategory converts s into a Category.
func ParseCategory(s string) (Category, error) {
	c := Category(s)
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownCategory, s)
	}
	return c, nil
}

// Event is one generated record. Events are immutable once generated and
// ordered by generation.
type Event struct {
	GeneratedAt time.Time      `json:"generatedAt"`
	Value       float64        `json:"value"`
	Category    Category       `json:"category"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// RoundValue clamps v into [MinValue, MaxValue] and rounds it to two
// decimals.
func RoundValue(v float64) float64 {
	v = math.Max(MinValue, math.Min(MaxValue, v))
	return math.Round(v*100) / 100
}

// Batch is a run of events flushed together by the producer.
type Batch struct {
	// Seq numbers flushes from 1.
	Seq int64
	// Total is the producer's generated count at flush time.
	Total     int64
	Events    []Event
	FlushedAt time.Time
}
