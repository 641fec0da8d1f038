package order

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order is one table's order. It owns its details.
type Order struct {
	ID          int64     `json:"id" db:"id"`
	OrderDate   time.Time `json:"order_date" db:"order_date"`
	TableNumber int       `json:"table_number" db:"table_number"`
	Details     []Detail  `json:"details" db:"-"`
}

// Detail is a single line item. ID 0 means the row has not been saved yet.
type Detail struct {
	ID       int64           `json:"id" db:"id"`
	MenuName string          `json:"menu_name" db:"menu_name"`
	Price    decimal.Decimal `json:"price" db:"price"`
	OrderID  int64           `json:"order_id" db:"order_id"`
}

// IsNew reports whether the detail still has to be inserted.
func (d Detail) IsNew() bool {
	return d.ID == 0
}

// Total sums the prices of all details.
func (o *Order) Total() decimal.Decimal {
	total := decimal.Zero
	for _, d := range o.Details {
		total = total.Add(d.Price)
	}
	return total
}
