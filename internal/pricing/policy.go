// Package pricing computes order money fields from the market's pricing
// policy: a flat shipping fee, a proportional tax, and a single currency.
package pricing

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Policy is the market-wide pricing configuration, loaded from YAML at
// startup. Orders snapshot the computed amounts, so later policy edits never
// touch existing orders.
type Policy struct {
	Currency       string  `yaml:"currency"`
	ShippingCents  int     `yaml:"shipping_cents"`
	TaxRate        float64 `yaml:"tax_rate"`
	ArrivalMinDays int     `yaml:"arrival_min_days"`
	ArrivalMaxDays int     `yaml:"arrival_max_days"`
}

// DefaultPolicy matches the production TANA Market configuration: ETB, a flat
// 50 ETB shipping fee and 15% tax, arrivals quoted between 3 and 60 days out.
func DefaultPolicy() Policy {
	return Policy{
		Currency:       "ETB",
		ShippingCents:  5000,
		TaxRate:        0.15,
		ArrivalMinDays: 3,
		ArrivalMaxDays: 60,
	}
}

// LoadPolicy reads the policy file, filling unset fields from the defaults.
// An empty path yields the defaults unchanged.
func LoadPolicy(path string) (Policy, error) {
	policy := DefaultPolicy()
	if path == "" {
		return policy, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("failed to read pricing policy: %w", err)
	}

	var loaded Policy
	if err := yaml.Unmarshal(raw, &loaded); err != nil {
		return Policy{}, fmt.Errorf("failed to parse pricing policy: %w", err)
	}

	if loaded.Currency != "" {
		policy.Currency = loaded.Currency
	}
	if loaded.ShippingCents != 0 {
		policy.ShippingCents = loaded.ShippingCents
	}
	if loaded.TaxRate != 0 {
		policy.TaxRate = loaded.TaxRate
	}
	if loaded.ArrivalMinDays != 0 {
		policy.ArrivalMinDays = loaded.ArrivalMinDays
	}
	if loaded.ArrivalMaxDays != 0 {
		policy.ArrivalMaxDays = loaded.ArrivalMaxDays
	}

	if err := policy.validate(); err != nil {
		return Policy{}, err
	}
	return policy, nil
}

func (p Policy) validate() error {
	if p.Currency == "" {
		return fmt.Errorf("pricing policy: currency is required")
	}
	if p.ShippingCents < 0 {
		return fmt.Errorf("pricing policy: shipping_cents must not be negative")
	}
	if p.TaxRate < 0 || p.TaxRate >= 1 {
		return fmt.Errorf("pricing policy: tax_rate must be in [0, 1)")
	}
	if p.ArrivalMinDays < 1 || p.ArrivalMaxDays < p.ArrivalMinDays {
		return fmt.Errorf("pricing policy: arrival day bounds are invalid")
	}
	return nil
}
