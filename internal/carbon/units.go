package carbon

// NormalizeDistanceKm converts a distance to kilometers.
// Miles are converted with KmPerMile; kilometers and an empty unit pass through
// as kilometers. Any other unit is informational and passes through unchanged.
func NormalizeDistanceKm(value float64, unit string) (float64, string) {
	switch unit {
	case UnitMiles:
		return value * KmPerMile, UnitKm
	case UnitKm, "":
		return value, UnitKm
	default:
		return value, unit
	}
}
