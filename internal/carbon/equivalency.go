package carbon

import (
	"fmt"
	"math"
	"strings"
)

// EquivalencyType enumerates supported equivalency categories.
type EquivalencyType int

const (
	// EquivalencyMilesDriven converts CO2 to miles in an average passenger vehicle.
	EquivalencyMilesDriven EquivalencyType = iota

	// EquivalencySmartphonesCharged converts CO2 to full smartphone charges.
	EquivalencySmartphonesCharged
)

// String returns the label used in display text.
func (t EquivalencyType) String() string {
	switch t {
	case EquivalencyMilesDriven:
		return "miles driven"
	case EquivalencySmartphonesCharged:
		return "smartphones charged"
	default:
		return "unknown"
	}
}

// Equivalency is a single relatable comparison for an impact.
type Equivalency struct {
	Type  EquivalencyType `json:"-"`
	Label string          `json:"label"`
	Value float64         `json:"value"`
}

// Equivalencies returns relatable comparisons for an impact in kg CO2.
// Impacts below MinEquivalencyThresholdKg produce none.
func Equivalencies(kg float64) []Equivalency {
	kg = sanitizeValue(kg)
	if kg < MinEquivalencyThresholdKg {
		return nil
	}
	return []Equivalency{
		{
			Type:  EquivalencyMilesDriven,
			Label: EquivalencyMilesDriven.String(),
			Value: math.Round(kg / EPAMilesDrivenFactor),
		},
		{
			Type:  EquivalencySmartphonesCharged,
			Label: EquivalencySmartphonesCharged.String(),
			Value: math.Round(kg / EPASmartphoneChargeFactor),
		},
	}
}

// EquivalencyText renders equivalencies as prose, e.g.
// "Equivalent to driving ~10 miles or charging ~487 smartphones".
// It returns an empty string when there are no equivalencies.
func EquivalencyText(kg float64) string {
	eqs := Equivalencies(kg)
	if len(eqs) == 0 {
		return ""
	}
	parts := make([]string, 0, len(eqs))
	for _, eq := range eqs {
		switch eq.Type {
		case EquivalencyMilesDriven:
			parts = append(parts, fmt.Sprintf("driving ~%s miles", formatThousands(eq.Value)))
		case EquivalencySmartphonesCharged:
			parts = append(parts, fmt.Sprintf("charging ~%s smartphones", formatThousands(eq.Value)))
		}
	}
	return "Equivalent to " + strings.Join(parts, " or ")
}

// formatThousands formats a whole number with comma separators.
func formatThousands(f float64) string {
	s := formatFloat(math.Round(f))
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}
