package carbon

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatImpact renders an impact in kilograms with one decimal place,
// e.g. "4.0 kg CO₂".
func FormatImpact(kg float64) string {
	return fmt.Sprintf("%.1f kg CO₂", sanitizeValue(kg))
}

// DescribeEntry returns a short human-readable label for an entry,
// e.g. "10 kWh used", "100 km by car", "3 meat items".
func DescribeEntry(entry ActivityEntry) string {
	parts := []string{formatFloat(entry.Value)}
	withUnit := func(words ...string) string {
		if entry.Unit != "" {
			parts = append(parts, entry.Unit)
		}
		return strings.Join(append(parts, words...), " ")
	}
	switch entry.Category {
	case CategoryElectricity:
		return withUnit("used")
	case CategoryTransport:
		mode := string(entry.Mode)
		if mode == "" {
			mode = string(ModeCar)
		}
		return withUnit("by", mode)
	case CategoryConsumption:
		kind := string(entry.Type)
		if kind == "" {
			kind = string(TypePlastic)
		}
		return strings.Join(append(parts, kind, "items"), " ")
	default:
		return withUnit(string(entry.Category))
	}
}

// formatFloat formats a float for display.
// Integral values are formatted without decimals, others with the shortest
// representation.
func formatFloat(f float64) string {
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
