package carbon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEquivalencies(t *testing.T) {
	t.Run("below threshold", func(t *testing.T) {
		assert.Nil(t, Equivalencies(0.99))
		assert.Nil(t, Equivalencies(-5))
	})

	t.Run("150 kg", func(t *testing.T) {
		eqs := Equivalencies(150)
		require.Len(t, eqs, 2)

		assert.Equal(t, EquivalencyMilesDriven, eqs[0].Type)
		assert.Equal(t, "miles driven", eqs[0].Label)
		assert.Equal(t, 382.0, eqs[0].Value)

		assert.Equal(t, EquivalencySmartphonesCharged, eqs[1].Type)
		assert.Equal(t, 18248.0, eqs[1].Value)
	})
}

func TestEquivalencyText(t *testing.T) {
	assert.Equal(t, "", EquivalencyText(0.5))
	assert.Equal(t, "Equivalent to driving ~382 miles or charging ~18,248 smartphones", EquivalencyText(150))
}

func TestFormatThousands(t *testing.T) {
	tests := map[float64]string{
		0:       "0",
		999:     "999",
		1000:    "1,000",
		18248:   "18,248",
		1234567: "1,234,567",
	}
	for in, want := range tests {
		assert.Equal(t, want, formatThousands(in))
	}
}
