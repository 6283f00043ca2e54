package carbon

import (
	"fmt"
	"math"
)

// ImpactCalculator converts activity entries into kilograms of CO2.
type ImpactCalculator interface {
	// CalculateCarbonImpact returns the estimated impact of entry in kg CO2.
	// The result is always finite and non-negative.
	CalculateCarbonImpact(entry ActivityEntry) float64
}

// Calculator implements ImpactCalculator over an immutable FactorTable.
// A Calculator holds no mutable state and is safe for concurrent use.
type Calculator struct {
	table FactorTable
}

var defaultCalculator = &Calculator{table: DefaultFactorTable()}

// NewCalculator creates a Calculator from a validated copy of table.
func NewCalculator(table FactorTable) (*Calculator, error) {
	if err := table.Validate(); err != nil {
		return nil, fmt.Errorf("new calculator: %w", err)
	}
	return &Calculator{table: table.Clone()}, nil
}

// DefaultCalculator returns the calculator backed by DefaultFactorTable.
func DefaultCalculator() *Calculator {
	return defaultCalculator
}

// CalculateCarbonImpact estimates entry's impact with the default factor table.
func CalculateCarbonImpact(entry ActivityEntry) float64 {
	return defaultCalculator.CalculateCarbonImpact(entry)
}

// Table returns a copy of the calculator's factor table.
func (c *Calculator) Table() FactorTable {
	return c.table.Clone()
}

// CalculateCarbonImpact estimates the carbon impact of entry in kg CO2.
//
// The calculation:
//  1. Non-finite or negative values are treated as zero.
//  2. Distance-based categories convert miles to kilometers.
//  3. The category's factor (or the mode/type sub-factor, falling back to the
//     category default) is applied. Unknown categories use the table fallback.
func (c *Calculator) CalculateCarbonImpact(entry ActivityEntry) float64 {
	return c.Breakdown(entry).ImpactKg
}

// Breakdown computes the impact of entry and reports which factor was used.
func (c *Calculator) Breakdown(entry ActivityEntry) ImpactBreakdown {
	quantity := sanitizeValue(entry.Value)

	b := ImpactBreakdown{
		Category:     entry.Category,
		QuantityUnit: entry.Unit,
	}

	cf, ok := c.table.Categories[entry.Category]
	if !ok {
		b.CategoryFallback = true
		b.Factor = c.table.Fallback
		b.Quantity = quantity
		b.ImpactKg = sanitizeValue(quantity * b.Factor)
		return b
	}

	if cf.DistanceBased {
		quantity, b.QuantityUnit = NormalizeDistanceKm(quantity, entry.Unit)
	}
	b.Quantity = quantity

	if len(cf.SubFactors) == 0 {
		b.Factor = cf.Factor
	} else {
		key := entry.selectorValue(cf.Selector)
		factor, found := cf.SubFactors[key]
		if !found {
			key = cf.DefaultSubKey
			factor = cf.SubFactors[key]
			b.SubKeyFallback = true
		}
		b.SubKey = key
		b.Factor = factor
	}

	b.ImpactKg = sanitizeValue(quantity * b.Factor)
	return b
}

// sanitizeValue maps negative, NaN and infinite values to zero so that
// malformed input never blocks data entry. It also guards products that
// overflow to infinity.
func sanitizeValue(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}
