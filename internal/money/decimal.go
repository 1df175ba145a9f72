package money

import (
	"fmt"

	"github.com/cockroachdb/apd/v3"
)

// Decimal is an arbitrary-precision decimal used for monetary amounts.
// Summing order values as binary floats drifts; GMV totals must not.
type Decimal struct {
	value apd.Decimal
}

func decCtx() *apd.Context {
	c := apd.BaseContext.WithPrecision(34)
	return c
}

// Parse converts a string to a Decimal. Non-finite inputs are rejected.
func Parse(s string) (Decimal, error) {
	var d apd.Decimal
	if _, _, err := d.SetString(s); err != nil {
		return Decimal{}, fmt.Errorf("invalid decimal %q: %w", s, err)
	}
	if d.Form != apd.Finite {
		return Decimal{}, fmt.Errorf("non-finite decimal %q", s)
	}
	return Decimal{value: d}, nil
}

// Zero returns the zero amount.
func Zero() Decimal { return Decimal{} }

func (d Decimal) String() string { return d.value.String() }

func (d Decimal) IsZero() bool { return d.value.IsZero() }

// Negative reports whether the amount is strictly below zero.
func (d Decimal) Negative() bool { return d.value.Sign() < 0 }

func (d Decimal) Cmp(other Decimal) int { return d.value.Cmp(&other.value) }

// Add returns the sum of d and other.
func (d Decimal) Add(other Decimal) Decimal {
	var result apd.Decimal
	_, _ = decCtx().Add(&result, &d.value, &other.value)
	return Decimal{value: result}
}

// Float64 converts the amount for the gold tier, which is FLOAT64 by contract.
func (d Decimal) Float64() (float64, error) {
	f, err := d.value.Float64()
	if err != nil {
		return 0, fmt.Errorf("decimal %s to float64: %w", d.value.String(), err)
	}
	return f, nil
}

// MarshalJSON encodes the amount as a JSON string so silver rows keep the
// exact decimal representation.
func (d Decimal) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.value.String() + `"`), nil
}

func (d *Decimal) UnmarshalJSON(b []byte) error {
	if len(b) < 2 || b[0] != '"' || b[len(b)-1] != '"' {
		return fmt.Errorf("decimal must be a JSON string, got %s", string(b))
	}
	parsed, err := Parse(string(b[1 : len(b)-1]))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
