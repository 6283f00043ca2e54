// Package carbon provides carbon impact estimation for logged household
// activities (electricity use, travel, consumption).
package carbon

// Default emission factors in kilograms CO2 per unit of activity.
const (
	// ElectricityFactorKgPerKWh is the average carbon intensity of grid electricity.
	// Source: global average grid intensity (~0.4 kg CO2/kWh).
	ElectricityFactorKgPerKWh = 0.4

	// CarFactorKgPerKm is the emission factor for an average passenger car.
	CarFactorKgPerKm = 0.2

	// BusFactorKgPerKm is the per-passenger emission factor for bus travel.
	BusFactorKgPerKm = 0.1

	// TrainFactorKgPerKm is the per-passenger emission factor for rail travel.
	TrainFactorKgPerKm = 0.05

	// PlasticFactorKgPerItem is the estimated footprint of one single-use plastic item.
	PlasticFactorKgPerItem = 0.5

	// MeatFactorKgPerItem is the estimated footprint of one meat serving.
	MeatFactorKgPerItem = 2.0

	// WaterFactorKgPerItem is the estimated footprint of one bottled water.
	WaterFactorKgPerItem = 0.2

	// FallbackFactorKgPerUnit applies to categories with no registered factors.
	FallbackFactorKgPerUnit = 0.1
)

// Unit conversion constants.
const (
	// KmPerMile converts statute miles to kilometers.
	KmPerMile = 1.60934

	// UnitKWh is the electricity unit used by the track form.
	UnitKWh = "kWh"

	// UnitKm is the metric distance unit.
	UnitKm = "km"

	// UnitMiles is the imperial distance unit; transport values are converted to km.
	UnitMiles = "mi"

	// UnitItems is the count unit for consumption entries.
	UnitItems = "items"
)

// Equivalency factors.
// Source: EPA Greenhouse Gas Equivalencies Calculator (2024 edition).
const (
	// EPAMilesDrivenFactor is kg CO2e per mile for an average passenger vehicle.
	EPAMilesDrivenFactor = 0.393

	// EPASmartphoneChargeFactor is kg CO2e per smartphone charge.
	EPASmartphoneChargeFactor = 0.00822

	// MinEquivalencyThresholdKg is the smallest impact that gets equivalencies.
	MinEquivalencyThresholdKg = 1.0
)
