package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a digital product listed by a creator.
type Product struct {
	ID         string          `json:"id"`
	CreatorID  string          `json:"creator_id"`
	Title      string          `json:"title"`
	Price      decimal.Decimal `json:"price"`
	Currency   string          `json:"currency"`
	Published  bool            `json:"published"`
	SalesCount int64           `json:"sales_count"`
	Revenue    decimal.Decimal `json:"revenue"`
	CreatedAt  time.Time       `json:"created_at"`
}

// IsPurchasable reports whether the product can be checked out.
func (p *Product) IsPurchasable() bool {
	return p.Published && p.Price.IsPositive()
}
