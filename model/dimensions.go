package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type CustomerSegment string

const (
	CustomerSegmentVip    CustomerSegment = "VIP"
	CustomerSegmentHigh   CustomerSegment = "HIGH_VALUE"
	CustomerSegmentMedium CustomerSegment = "MEDIUM_VALUE"
	CustomerSegmentLow    CustomerSegment = "LOW_VALUE"
	CustomerSegmentNew    CustomerSegment = "NEW"
)

// Product aggregates every Transaction for a stock code.
// Price and sale date fields cover SALE transactions only.
type Product struct {
	StockCode         string          `json:"stockCode"`
	Description       string          `json:"description"`
	TotalQuantitySold int64           `json:"totalQuantitySold"` // net of returns
	TotalRevenue      decimal.Decimal `json:"totalRevenue"`      // net of returns
	TransactionCount  int64           `json:"transactionCount"`
	ReturnCount       int64           `json:"returnCount"`
	SalesCount        int64           `json:"salesCount"`
	UnitPriceSum      decimal.Decimal `json:"unitPriceSum"`
	AverageUnitPrice  decimal.Decimal `json:"averageUnitPrice"`
	MinUnitPrice      decimal.Decimal `json:"minUnitPrice"`
	MaxUnitPrice      decimal.Decimal `json:"maxUnitPrice"`
	FirstSaleDate     time.Time       `json:"firstSaleDate"`
	LastSaleDate      time.Time       `json:"lastSaleDate"`
	UniqueCustomers   int64           `json:"uniqueCustomers"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// Customer aggregates the Transactions that carry a customer id.
type Customer struct {
	CustomerID            string          `json:"customerId"`
	Country               string          `json:"country"`
	FirstPurchaseDate     time.Time       `json:"firstPurchaseDate"`
	LastPurchaseDate      time.Time       `json:"lastPurchaseDate"`
	TotalOrders           int64           `json:"totalOrders"` // distinct SALE invoices
	TotalItemsPurchased   int64           `json:"totalItemsPurchased"`
	TotalAmountSpent      decimal.Decimal `json:"totalAmountSpent"`
	TotalReturns          int64           `json:"totalReturns"`
	TotalReturnedAmount   decimal.Decimal `json:"totalReturnedAmount"`
	AverageOrderValue     decimal.Decimal `json:"averageOrderValue"`
	Segment               CustomerSegment `json:"customerSegment"`
	DaysSinceLastPurchase *int64          `json:"daysSinceLastPurchase"`
	CreatedAt             time.Time       `json:"createdAt"`
	UpdatedAt             time.Time       `json:"updatedAt"`
}

// Country aggregates every Transaction for a country.
type Country struct {
	Country           string          `json:"country"`
	TotalCustomers    int64           `json:"totalCustomers"`
	TotalOrders       int64           `json:"totalOrders"` // distinct invoices of any type
	TotalTransactions int64           `json:"totalTransactions"`
	TotalRevenue      decimal.Decimal `json:"totalRevenue"` // net of returns
	FirstOrderDate    time.Time       `json:"firstOrderDate"`
	LastOrderDate     time.Time       `json:"lastOrderDate"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// MemberSet names a set-membership relation used for distinct counts on dimensions.
type MemberSet string

const (
	MemberSetProductCustomers MemberSet = "PRODUCT_CUSTOMERS"
	MemberSetCustomerInvoices MemberSet = "CUSTOMER_INVOICES"
	MemberSetCountryCustomers MemberSet = "COUNTRY_CUSTOMERS"
	MemberSetCountryInvoices  MemberSet = "COUNTRY_INVOICES"
)

// Member is one (dimension key, member key) pair of a MemberSet.
type Member struct {
	Key    string
	Member string
}
