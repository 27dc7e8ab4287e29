package units

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvert_Scenarios(t *testing.T) {
	table := Default()

	c, err := table.Convert(1, "cup", "tbsp")
	require.NoError(t, err)
	assert.Equal(t, "1 cup = **16.00 tbsp**", c.String())

	c, err = table.Convert(2, "tbsp", "cup")
	require.NoError(t, err)
	assert.Equal(t, "2 tbsp = **0.12 cup**", c.String())
	assert.InDelta(t, 0.125, c.Result, 1e-12, "no rounding before formatting")
}

func TestConvert_NormalizesUnits(t *testing.T) {
	c, err := Default().Convert(1.5, "  Cup ", "ML")
	require.NoError(t, err)
	assert.InDelta(t, 360, c.Result, 1e-9)
	assert.Equal(t, "1.5 Cup = **360.00 ML**", c.String())
}

func TestConvert_Unsupported(t *testing.T) {
	_, err := Default().Convert(1, "cup", "ounce")
	assert.ErrorIs(t, err, ErrUnsupportedConversion)

	// Pairs are not chained: tsp→cup is not derived through tbsp.
	_, err = Default().Convert(1, "tsp", "cup")
	assert.ErrorIs(t, err, ErrUnsupportedConversion)
}

func TestConvert_RoundTrip(t *testing.T) {
	table := Default()
	for _, p := range table.Pairs() {
		for _, x := range []float64{0.25, 1, 3, 17.5} {
			there, err := table.Convert(x, p.From, p.To)
			require.NoError(t, err)
			back, err := table.Convert(there.Result, p.To, p.From)
			require.NoError(t, err)
			assert.InDelta(t, x, back.Result, 1e-9, "%v %s→%s→%s", x, p.From, p.To, p.From)
		}
	}
}

func TestTable_Add(t *testing.T) {
	table := NewTable()
	assert.Error(t, table.Add("cup", "ml", 0))
	assert.Error(t, table.Add("cup", "ml", -1))
	assert.Error(t, table.Add(" ", "ml", 1))

	require.NoError(t, table.Add("Pint", "cup", 2))
	f, err := table.Factor("cup", "pint")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, f, 1e-12)

	// Re-adding replaces the factor without duplicating the pair.
	require.NoError(t, table.Add("pint", "cup", 2.5))
	assert.Len(t, table.Pairs(), 1)
}

func TestDefault_Pairs(t *testing.T) {
	assert.Len(t, Default().Pairs(), 8)
	assert.Panics(t, func() { NewTable().MustAdd("a", "b", 0) })
}

func TestFormatAmount(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{3, "3"},
		{-2, "-2"},
		{0.25, "0.25"},
		{1e20, "1e+20"},
		{math.Inf(1), "+Inf"},
		{math.NaN(), "NaN"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, formatAmount(c.in), "formatAmount(%v)", c.in)
	}
}
