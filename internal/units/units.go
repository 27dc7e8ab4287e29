// Package units converts between common kitchen measures.
package units

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrUnsupportedConversion is returned when neither direction of a unit
// pair is known.
var ErrUnsupportedConversion = errors.New("units: unsupported conversion")

// Pair is an ordered (from, to) unit pair.
type Pair struct {
	From string
	To   string
}

// Table maps unit pairs to the factor that converts From into To.
type Table struct {
	factors map[Pair]float64
	order   []Pair
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{factors: make(map[Pair]float64)}
}

// Default returns the kitchen table: volume conversions plus rough weights
// for flour-like ingredients.
func Default() *Table {
	t := NewTable()
	t.MustAdd("cup", "tbsp", 16)
	t.MustAdd("tbsp", "tsp", 3)
	t.MustAdd("cup", "ml", 240)
	t.MustAdd("tbsp", "ml", 15)
	t.MustAdd("tsp", "ml", 5)
	t.MustAdd("cup", "g", 200)
	t.MustAdd("tbsp", "g", 12.5)
	t.MustAdd("tsp", "g", 4.2)
	return t
}

func normalize(u string) string {
	return strings.ToLower(strings.TrimSpace(u))
}

// Add registers factor for from→to. The factor must be positive.
func (t *Table) Add(from, to string, factor float64) error {
	if !(factor > 0) {
		return fmt.Errorf("units: factor for %s→%s must be positive, got %v", from, to, factor)
	}
	p := Pair{From: normalize(from), To: normalize(to)}
	if p.From == "" || p.To == "" {
		return errors.New("units: empty unit name")
	}
	if _, ok := t.factors[p]; !ok {
		t.order = append(t.order, p)
	}
	t.factors[p] = factor
	return nil
}

// MustAdd is Add that panics on error, for static tables.
func (t *Table) MustAdd(from, to string, factor float64) {
	if err := t.Add(from, to, factor); err != nil {
		panic(err)
	}
}

// Pairs returns the registered pairs in insertion order.
func (t *Table) Pairs() []Pair {
	return append([]Pair(nil), t.order...)
}

// Factor returns the multiplier for from→to, trying the forward pair first
// and then the inverse of the reverse pair.
func (t *Table) Factor(from, to string) (float64, error) {
	f, u := normalize(from), normalize(to)
	if factor, ok := t.factors[Pair{From: f, To: u}]; ok {
		return factor, nil
	}
	if factor, ok := t.factors[Pair{From: u, To: f}]; ok {
		return 1 / factor, nil
	}
	return 0, fmt.Errorf("%w: %s to %s", ErrUnsupportedConversion, from, to)
}

// Conversion is the outcome of a successful Convert.
type Conversion struct {
	Amount float64
	From   string
	To     string
	Result float64
}

// String renders the conversion with two decimals, "1 cup = **16.00 tbsp**".
func (c Conversion) String() string {
	return fmt.Sprintf("%s %s = **%.2f %s**", formatAmount(c.Amount), c.From, c.Result, c.To)
}

// Convert multiplies amount by the from→to factor. No rounding is applied
// before the multiplication.
func (t *Table) Convert(amount float64, from, to string) (Conversion, error) {
	factor, err := t.Factor(from, to)
	if err != nil {
		return Conversion{}, err
	}
	return Conversion{
		Amount: amount,
		From:   strings.TrimSpace(from),
		To:     strings.TrimSpace(to),
		Result: amount * factor,
	}, nil
}

// formatAmount prints whole numbers without a fraction.
func formatAmount(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%g", v)
}
