package carbon

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultFactorTable(t *testing.T) {
	table := DefaultFactorTable()
	require.NoError(t, table.Validate())

	assert.Equal(t, 0.1, table.Fallback)
	assert.Equal(t, 0.4, table.Categories[CategoryElectricity].Factor)

	transport := table.Categories[CategoryTransport]
	assert.True(t, transport.DistanceBased)
	assert.Equal(t, SelectorMode, transport.Selector)
	assert.Equal(t, "car", transport.DefaultSubKey)
	assert.Equal(t, map[string]float64{"car": 0.2, "bus": 0.1, "train": 0.05}, transport.SubFactors)

	consumption := table.Categories[CategoryConsumption]
	assert.False(t, consumption.DistanceBased)
	assert.Equal(t, SelectorType, consumption.Selector)
	assert.Equal(t, "plastic", consumption.DefaultSubKey)
	assert.Equal(t, map[string]float64{"plastic": 0.5, "meat": 2.0, "water": 0.2}, consumption.SubFactors)
}

func TestDefaultFactorTable_ReturnsFreshCopy(t *testing.T) {
	a := DefaultFactorTable()
	a.Categories[CategoryTransport].SubFactors["car"] = 9

	b := DefaultFactorTable()
	assert.Equal(t, 0.2, b.Categories[CategoryTransport].SubFactors["car"])
}

func TestFactorTable_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*FactorTable)
		wantErr error
	}{
		{
			name:   "defaults are valid",
			mutate: func(*FactorTable) {},
		},
		{
			name:    "negative fallback",
			mutate:  func(ft *FactorTable) { ft.Fallback = -0.1 },
			wantErr: ErrInvalidFactor,
		},
		{
			name:    "NaN flat factor",
			mutate:  func(ft *FactorTable) { ft.Categories["x"] = CategoryFactors{Factor: math.NaN()} },
			wantErr: ErrInvalidFactor,
		},
		{
			name: "infinite sub-factor",
			mutate: func(ft *FactorTable) {
				ft.Categories[CategoryTransport].SubFactors["rocket"] = math.Inf(1)
			},
			wantErr: ErrInvalidFactor,
		},
		{
			name: "sub-factors without selector",
			mutate: func(ft *FactorTable) {
				ft.Categories["diet"] = CategoryFactors{SubFactors: map[string]float64{"vegan": 0.1}, DefaultSubKey: "vegan"}
			},
			wantErr: ErrInvalidFactorTable,
		},
		{
			name: "default sub key not listed",
			mutate: func(ft *FactorTable) {
				cf := ft.Categories[CategoryConsumption]
				cf.DefaultSubKey = "glass"
				ft.Categories[CategoryConsumption] = cf
			},
			wantErr: ErrInvalidFactorTable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := DefaultFactorTable()
			tt.mutate(&table)
			err := table.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestFactorTable_RegisterCategory(t *testing.T) {
	var table FactorTable

	require.NoError(t, table.RegisterCategory("heating", CategoryFactors{Factor: 0.18}))
	assert.Equal(t, 0.18, table.Categories["heating"].Factor)

	err := table.RegisterCategory("", CategoryFactors{Factor: 1})
	assert.ErrorIs(t, err, ErrInvalidFactorTable)

	err = table.RegisterCategory("bad", CategoryFactors{Factor: -1})
	assert.ErrorIs(t, err, ErrInvalidFactor)
	_, exists := table.Categories["bad"]
	assert.False(t, exists)
}

func TestFactorTable_SortedCategories(t *testing.T) {
	got := DefaultFactorTable().SortedCategories()
	assert.Equal(t, []Category{CategoryConsumption, CategoryElectricity, CategoryTransport}, got)
}

func TestNormalizeDistanceKm(t *testing.T) {
	tests := []struct {
		unit     string
		value    float64
		want     float64
		wantUnit string
	}{
		{UnitMiles, 1, 1.60934, UnitKm},
		{UnitMiles, 0, 0, UnitKm},
		{UnitKm, 5, 5, UnitKm},
		{"", 5, 5, UnitKm},
		{"MI", 5, 5, "MI"},
		{"m", 500, 500, "m"},
	}

	for _, tt := range tests {
		t.Run(tt.unit, func(t *testing.T) {
			got, unit := NormalizeDistanceKm(tt.value, tt.unit)
			assert.InDelta(t, tt.want, got, floatTolerance)
			assert.Equal(t, tt.wantUnit, unit)
		})
	}
}
