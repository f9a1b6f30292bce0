package pricing

import (
	"os"
	"testing"

	"github.com/google/uuid"

	"github.com/tanamarket/tana/internal/models"
)

func TestQuoteOrder(t *testing.T) {
	t.Parallel()

	pricer := NewPricer(DefaultPolicy())

	tests := []struct {
		name         string
		items        []models.OrderItem
		wantItems    int
		wantShipping int
		wantTax      int
		wantTotal    int
	}{
		{
			name: "single line, qty 2 at 100 ETB",
			items: []models.OrderItem{
				{ProductID: uuid.New(), UnitPriceCents: 10000, Quantity: 2},
			},
			wantItems:    20000,
			wantShipping: 5000,
			wantTax:      3000,
			wantTotal:    28000,
		},
		{
			name: "multiple lines",
			items: []models.OrderItem{
				{ProductID: uuid.New(), UnitPriceCents: 2500, Quantity: 4},
				{ProductID: uuid.New(), UnitPriceCents: 19900, Quantity: 1},
			},
			wantItems:    29900,
			wantShipping: 5000,
			wantTax:      4485,
			wantTotal:    39385,
		},
		{
			name:         "empty cart quotes shipping only",
			items:        nil,
			wantItems:    0,
			wantShipping: 5000,
			wantTax:      0,
			wantTotal:    5000,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			quote := pricer.QuoteOrder(tc.items)
			if quote.ItemsCents != tc.wantItems {
				t.Fatalf("ItemsCents = %d, want %d", quote.ItemsCents, tc.wantItems)
			}
			if quote.ShippingCents != tc.wantShipping {
				t.Fatalf("ShippingCents = %d, want %d", quote.ShippingCents, tc.wantShipping)
			}
			if quote.TaxCents != tc.wantTax {
				t.Fatalf("TaxCents = %d, want %d", quote.TaxCents, tc.wantTax)
			}
			if quote.TotalCents != tc.wantTotal {
				t.Fatalf("TotalCents = %d, want %d", quote.TotalCents, tc.wantTotal)
			}
			if quote.TotalCents != quote.ItemsCents+quote.ShippingCents+quote.TaxCents {
				t.Fatalf("total %d does not equal items+shipping+tax", quote.TotalCents)
			}
		})
	}
}

func TestQuoteOrderCurrency(t *testing.T) {
	t.Parallel()

	quote := NewPricer(DefaultPolicy()).QuoteOrder(nil)
	if quote.Currency != "ETB" {
		t.Fatalf("Currency = %q, want ETB", quote.Currency)
	}
}

func TestLoadPolicyDefaults(t *testing.T) {
	t.Parallel()

	policy, err := LoadPolicy("")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if policy != DefaultPolicy() {
		t.Fatalf("LoadPolicy(\"\") = %+v, want defaults", policy)
	}
}

func TestLoadPolicyOverrides(t *testing.T) {
	t.Parallel()

	path := t.TempDir() + "/tana.yaml"
	content := "currency: ETB\nshipping_cents: 7500\ntax_rate: 0.15\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write policy file: %v", err)
	}

	policy, err := LoadPolicy(path)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if policy.ShippingCents != 7500 {
		t.Fatalf("ShippingCents = %d, want 7500", policy.ShippingCents)
	}
	if policy.ArrivalMinDays != 3 || policy.ArrivalMaxDays != 60 {
		t.Fatalf("arrival bounds = %d..%d, want defaults 3..60", policy.ArrivalMinDays, policy.ArrivalMaxDays)
	}
}

func TestLoadPolicyRejectsBadTaxRate(t *testing.T) {
	t.Parallel()

	path := t.TempDir() + "/tana.yaml"
	if err := os.WriteFile(path, []byte("tax_rate: 1.5\n"), 0o600); err != nil {
		t.Fatalf("failed to write policy file: %v", err)
	}

	if _, err := LoadPolicy(path); err == nil {
		t.Fatal("expected error, got nil")
	}
}
