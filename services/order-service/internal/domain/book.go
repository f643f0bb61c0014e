package domain

import "github.com/shopspring/decimal"

// Book is the catalog row as seen by the stock ledger. StockQuantity is the
// value after the reservation that returned it.
type Book struct {
	ID            int64
	Title         string
	Author        string
	ImageURL      string
	Price         decimal.Decimal
	StockQuantity int
}
