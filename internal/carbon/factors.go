package carbon

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrInvalidFactor is returned when a factor table contains a negative or non-finite factor.
var ErrInvalidFactor = errors.New("invalid emission factor")

// ErrInvalidFactorTable is returned when a factor table is structurally inconsistent.
var ErrInvalidFactorTable = errors.New("invalid factor table")

// CategoryFactors holds the emission factors for one category.
type CategoryFactors struct {
	// Factor is the flat factor used when the category has no sub-factors.
	Factor float64 `json:"factor,omitempty"`

	// Selector names the entry field that picks a sub-factor (mode or type).
	Selector Selector `json:"selector,omitempty"`

	// SubFactors maps mode/type values to factors.
	SubFactors map[string]float64 `json:"sub_factors,omitempty"`

	// DefaultSubKey is used when the entry's mode/type is absent or unknown.
	DefaultSubKey string `json:"default_sub_key,omitempty"`

	// DistanceBased enables mile to kilometer normalization of the entry value.
	DistanceBased bool `json:"distance_based,omitempty"`
}

// FactorTable maps categories to their emission factors.
type FactorTable struct {
	// Categories holds the per-category factors.
	Categories map[Category]CategoryFactors `json:"categories"`

	// Fallback is the flat factor for categories not present in Categories.
	Fallback float64 `json:"fallback"`
}

// DefaultFactorTable returns the built-in emission factor table.
//
//	electricity            0.4  kg/kWh
//	transport   car        0.2  kg/km (default)
//	transport   bus        0.1  kg/km
//	transport   train      0.05 kg/km
//	consumption plastic    0.5  kg/item (default)
//	consumption meat       2.0  kg/item
//	consumption water      0.2  kg/item
//	other                  0.1  kg/unit
func DefaultFactorTable() FactorTable {
	return FactorTable{
		Categories: map[Category]CategoryFactors{
			CategoryElectricity: {
				Factor: ElectricityFactorKgPerKWh,
			},
			CategoryTransport: {
				Selector: SelectorMode,
				SubFactors: map[string]float64{
					string(ModeCar):   CarFactorKgPerKm,
					string(ModeBus):   BusFactorKgPerKm,
					string(ModeTrain): TrainFactorKgPerKm,
				},
				DefaultSubKey: string(ModeCar),
				DistanceBased: true,
			},
			CategoryConsumption: {
				Selector: SelectorType,
				SubFactors: map[string]float64{
					string(TypePlastic): PlasticFactorKgPerItem,
					string(TypeMeat):    MeatFactorKgPerItem,
					string(TypeWater):   WaterFactorKgPerItem,
				},
				DefaultSubKey: string(TypePlastic),
			},
		},
		Fallback: FallbackFactorKgPerUnit,
	}
}

// Clone returns a deep copy of the table.
func (t FactorTable) Clone() FactorTable {
	out := FactorTable{
		Categories: make(map[Category]CategoryFactors, len(t.Categories)),
		Fallback:   t.Fallback,
	}
	for cat, cf := range t.Categories {
		out.Categories[cat] = cf.clone()
	}
	return out
}

func (cf CategoryFactors) clone() CategoryFactors {
	out := cf
	if cf.SubFactors != nil {
		out.SubFactors = make(map[string]float64, len(cf.SubFactors))
		for k, v := range cf.SubFactors {
			out.SubFactors[k] = v
		}
	}
	return out
}

// RegisterCategory adds or replaces the factors for a category.
func (t *FactorTable) RegisterCategory(category Category, factors CategoryFactors) error {
	if category == "" {
		return fmt.Errorf("%w: empty category name", ErrInvalidFactorTable)
	}
	if err := factors.validate(category); err != nil {
		return err
	}
	if t.Categories == nil {
		t.Categories = make(map[Category]CategoryFactors)
	}
	t.Categories[category] = factors.clone()
	return nil
}

// Validate checks that every factor is finite and non-negative and that
// every sub-factored category has a resolvable default.
func (t FactorTable) Validate() error {
	if !validFactor(t.Fallback) {
		return fmt.Errorf("%w: fallback %v", ErrInvalidFactor, t.Fallback)
	}
	for cat, cf := range t.Categories {
		if err := cf.validate(cat); err != nil {
			return err
		}
	}
	return nil
}

func (cf CategoryFactors) validate(cat Category) error {
	if len(cf.SubFactors) == 0 {
		if !validFactor(cf.Factor) {
			return fmt.Errorf("%w: %s factor %v", ErrInvalidFactor, cat, cf.Factor)
		}
		return nil
	}
	switch cf.Selector {
	case SelectorMode, SelectorType:
	default:
		return fmt.Errorf("%w: %s has sub-factors but selector %q", ErrInvalidFactorTable, cat, cf.Selector)
	}
	for key, f := range cf.SubFactors {
		if !validFactor(f) {
			return fmt.Errorf("%w: %s/%s factor %v", ErrInvalidFactor, cat, key, f)
		}
	}
	if _, ok := cf.SubFactors[cf.DefaultSubKey]; !ok {
		return fmt.Errorf("%w: %s default %q is not a listed sub-factor", ErrInvalidFactorTable, cat, cf.DefaultSubKey)
	}
	return nil
}

// SortedCategories returns the registered categories in lexical order.
func (t FactorTable) SortedCategories() []Category {
	cats := make([]Category, 0, len(t.Categories))
	for cat := range t.Categories {
		cats = append(cats, cat)
	}
	sort.Slice(cats, func(i, j int) bool { return cats[i] < cats[j] })
	return cats
}

func validFactor(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0) && f >= 0
}
