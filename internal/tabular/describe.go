package tabular

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// ColumnSummary mirrors the shape of a pandas describe() column: count plus
// the usual location and spread statistics. Std is nil when fewer than two
// values exist (sample standard deviation is undefined there).
type ColumnSummary struct {
	Count float64  `json:"count"`
	Mean  float64  `json:"mean"`
	Std   *float64 `json:"std"`
	Min   float64  `json:"min"`
	P25   float64  `json:"25%"`
	P50   float64  `json:"50%"`
	P75   float64  `json:"75%"`
	Max   float64  `json:"max"`
}

// Describer is the stats collaborator: a pure, deterministic
// Frame -> JSON summary function with no side effects.
type Describer struct{}

func NewDescriber() *Describer { return &Describer{} }

// Describe summarizes every numeric column of the frame and serializes the
// result as a JSON object keyed by column name. Key order is alphabetical
// (encoding/json map ordering), so repeated calls on the same frame are
// byte-identical.
func (d *Describer) Describe(frame *Frame) ([]byte, error) {
	numeric := frame.numericColumns()
	if len(numeric) == 0 {
		return nil, fmt.Errorf("no numeric columns to describe")
	}

	summary := make(map[string]ColumnSummary, len(numeric))
	for _, name := range numeric {
		values, err := frame.NumericColumn(name)
		if err != nil {
			return nil, err
		}
		summary[name] = summarize(values)
	}

	payload, err := json.Marshal(summary)
	if err != nil {
		return nil, fmt.Errorf("marshal summary: %w", err)
	}
	return payload, nil
}

func summarize(values []float64) ColumnSummary {
	n := len(values)
	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(n)

	var std *float64
	if n > 1 {
		var ss float64
		for _, v := range values {
			d := v - mean
			ss += d * d
		}
		s := math.Sqrt(ss / float64(n-1))
		std = &s
	}

	return ColumnSummary{
		Count: float64(n),
		Mean:  mean,
		Std:   std,
		Min:   sorted[0],
		P25:   quantile(sorted, 0.25),
		P50:   quantile(sorted, 0.50),
		P75:   quantile(sorted, 0.75),
		Max:   sorted[n-1],
	}
}

// quantile uses linear interpolation between closest ranks, matching the
// pandas default.
func quantile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	pos := q * float64(n-1)
	lower := int(math.Floor(pos))
	upper := int(math.Ceil(pos))
	if lower == upper {
		return sorted[lower]
	}
	frac := pos - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}
