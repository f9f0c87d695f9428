package catalog

import (
	"github.com/shopspring/decimal"
)

type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	UnitName    string          `json:"unit_name"` // tampil setelah harga, mis. 595 USDC/trip
	PriceSol    decimal.Decimal `json:"price_sol"`
	PriceUSD    decimal.Decimal `json:"price_usd"`
}

// Cart: item-id -> quantity, persis seperti yang datang dari query string.
type Cart map[string]string

var products = []Product{
	{
		ID:          "single-day",
		Name:        "Single Day",
		Description: "Full day of guided fly fishing. Includes lunch and gear.",
		UnitName:    "trip",
		PriceSol:    decimal.RequireFromString("0.06"),
		PriceUSD:    decimal.NewFromInt(595),
	},
	{
		ID:          "two-days",
		Name:        "Two Days",
		Description: "Two full days of guided fly fishing. Includes lunch and gear.",
		UnitName:    "trip",
		PriceSol:    decimal.RequireFromString("0.12"),
		PriceUSD:    decimal.NewFromInt(1190),
	},
}

func Products() []Product {
	out := make([]Product, len(products))
	copy(out, products)
	return out
}

func Find(id string) (Product, bool) {
	for _, p := range products {
		if p.ID == id {
			return p, true
		}
	}
	return Product{}, false
}

// Price sums priceUsd*qty over the cart. Unknown ids and quantities that are
// not positive numbers are skipped, so extra query params never abort checkout.
// Zero means nothing to charge.
func Price(cart Cart) decimal.Decimal {
	amount := decimal.Zero
	for id, qty := range cart {
		p, ok := Find(id)
		if !ok {
			continue
		}
		q, err := decimal.NewFromString(qty)
		if err != nil || !q.IsPositive() {
			continue
		}
		amount = amount.Add(p.PriceUSD.Mul(q))
	}
	return amount
}

// FromQuery takes the first value of every query param.
func FromQuery(q map[string][]string) Cart {
	cart := make(Cart, len(q))
	for k, vs := range q {
		if len(vs) == 0 {
			continue
		}
		cart[k] = vs[0]
	}
	return cart
}
