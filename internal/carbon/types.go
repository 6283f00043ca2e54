package carbon

// Category identifies the kind of activity an entry records.
// Categories outside the registered factor table are valid and priced
// with the table's fallback factor.
type Category string

// Built-in activity categories.
const (
	CategoryElectricity Category = "electricity"
	CategoryTransport   Category = "transport"
	CategoryConsumption Category = "consumption"
)

// TransportMode sub-classifies transport entries.
type TransportMode string

// Built-in transport modes.
const (
	ModeCar   TransportMode = "car"
	ModeBus   TransportMode = "bus"
	ModeTrain TransportMode = "train"
)

// ConsumptionType sub-classifies consumption entries.
type ConsumptionType string

// Built-in consumption types.
const (
	TypePlastic ConsumptionType = "plastic"
	TypeMeat    ConsumptionType = "meat"
	TypeWater   ConsumptionType = "water"
)

// Selector names the entry field that picks a sub-factor within a category.
type Selector string

// Supported selectors.
const (
	SelectorNone Selector = ""
	SelectorMode Selector = "mode"
	SelectorType Selector = "type"
)

// ActivityEntry is a single user-logged activity.
type ActivityEntry struct {
	// Category is the semantic activity kind (electricity, transport, consumption, ...).
	Category Category `json:"category" yaml:"category"`

	// Value is the activity magnitude (kWh used, distance traveled, items consumed).
	Value float64 `json:"value" yaml:"value"`

	// Unit is the measurement unit of Value. Only transport entries use it ("mi" is converted to km).
	Unit string `json:"unit" yaml:"unit"`

	// Mode is the transport sub-classification. Empty or unknown modes price as car.
	Mode TransportMode `json:"mode,omitempty" yaml:"mode,omitempty"`

	// Type is the consumption sub-classification. Empty or unknown types price as plastic.
	Type ConsumptionType `json:"type,omitempty" yaml:"type,omitempty"`
}

// selectorValue returns the entry field named by s.
func (e ActivityEntry) selectorValue(s Selector) string {
	switch s {
	case SelectorMode:
		return string(e.Mode)
	case SelectorType:
		return string(e.Type)
	default:
		return ""
	}
}

// ImpactBreakdown explains how an impact was derived.
type ImpactBreakdown struct {
	// Category is the entry category as given.
	Category Category `json:"category"`

	// SubKey is the resolved mode/type key, after fallback. Empty for flat categories.
	SubKey string `json:"sub_key,omitempty"`

	// Factor is the emission factor applied, in kg CO2 per QuantityUnit.
	Factor float64 `json:"factor"`

	// Quantity is the normalized quantity the factor was applied to.
	Quantity float64 `json:"quantity"`

	// QuantityUnit is the unit of Quantity after normalization.
	QuantityUnit string `json:"quantity_unit,omitempty"`

	// ImpactKg is the resulting impact in kilograms CO2.
	ImpactKg float64 `json:"impact_kg"`

	// CategoryFallback is true when the category had no registered factors.
	CategoryFallback bool `json:"category_fallback"`

	// SubKeyFallback is true when the mode/type was absent or unrecognized.
	SubKeyFallback bool `json:"sub_key_fallback"`
}
