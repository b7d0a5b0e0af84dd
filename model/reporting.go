package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Summary is the headline view of the processed data.
type Summary struct {
	TotalTransactions int64           `json:"totalTransactions"`
	TotalReturns      int64           `json:"totalReturns"`
	GuestTransactions int64           `json:"guestTransactions"`
	TotalProducts     int64           `json:"totalProducts"`
	TotalCustomers    int64           `json:"totalCustomers"`
	TotalCountries    int64           `json:"totalCountries"`
	TotalRevenue      decimal.Decimal `json:"totalRevenue"`
	StagedRows        int64           `json:"stagedRows"`
	QuarantinedRows   int64           `json:"quarantinedRows"`
	FirstInvoiceDate  time.Time       `json:"firstInvoiceDate"`
	LastInvoiceDate   time.Time       `json:"lastInvoiceDate"`
}

// MonthlySales is one row of the sales metrics.
type MonthlySales struct {
	Year         int             `json:"year"`
	Month        int             `json:"month"`
	Revenue      decimal.Decimal `json:"revenue"`
	Transactions int64           `json:"transactions"`
	Orders       int64           `json:"orders"`
	Returns      int64           `json:"returns"`
}

type ProductOrder string

const (
	ProductOrderRevenue   ProductOrder = "revenue"
	ProductOrderQuantity  ProductOrder = "quantity"
	ProductOrderCustomers ProductOrder = "customers"
)

// ProductQuery filters product listings.
type ProductQuery struct {
	OrderBy ProductOrder
	Limit   int
}

// CustomerQuery filters customer listings. An empty Segment matches all.
type CustomerQuery struct {
	Segment CustomerSegment
	Limit   int
}
