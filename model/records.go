package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// SourceRow is one data line of the source file exactly as read.
// RowIndex is 1-based and excludes the header.
type SourceRow struct {
	FileName    string
	RowIndex    int64
	InvoiceNo   string
	StockCode   string
	Description string
	Quantity    string
	InvoiceDate string
	UnitPrice   string
	CustomerID  string
	Country     string
	Raw         string // the raw payload for quarantine
	Malformed   string // set when the line could not be decoded into the header's fields
}

// StagedRecord is a parsed SourceRow plus derived flags, keyed by (FileName, RowIndex).
type StagedRecord struct {
	InvoiceNo          string          `json:"invoiceNo"`
	StockCode          string          `json:"stockCode"`
	Description        string          `json:"description"`
	Quantity           int64           `json:"quantity"`
	InvoiceDate        time.Time       `json:"invoiceDate"`
	UnitPrice          decimal.Decimal `json:"unitPrice"`
	CustomerID         string          `json:"customerId,omitempty"` // empty for guest purchases
	Country            string          `json:"country"`
	HasMissingCustomer bool            `json:"hasMissingCustomer"`
	IsReturn           bool            `json:"isReturn"`
	TotalAmount        decimal.Decimal `json:"totalAmount"`
	LoadTimestamp      time.Time       `json:"loadTimestamp"`
	FileName           string          `json:"fileName"`
	RowIndex           int64           `json:"rowIndex"`
	DataSource         string          `json:"dataSource"`
}

// StagingKey identifies a staged or quarantined row.
type StagingKey struct {
	FileName string
	RowIndex int64
}

func (s StagedRecord) Key() StagingKey {
	return StagingKey{FileName: s.FileName, RowIndex: s.RowIndex}
}

type TransactionType string

const (
	TransactionTypeSale   TransactionType = "SALE"
	TransactionTypeReturn TransactionType = "RETURN"
)

// Transaction is the fact row. TransactionID is derived from invoice, stock code and row index.
type Transaction struct {
	TransactionID    string          `json:"transactionId"`
	InvoiceNo        string          `json:"invoiceNo"`
	StockCode        string          `json:"stockCode"`
	CustomerID       string          `json:"customerId,omitempty"`
	Description      string          `json:"description"`
	Quantity         int64           `json:"quantity"`
	UnitPrice        decimal.Decimal `json:"unitPrice"`
	TotalAmount      decimal.Decimal `json:"totalAmount"`
	InvoiceDate      time.Time       `json:"invoiceDate"`
	InvoiceYear      int             `json:"invoiceYear"`
	InvoiceMonth     int             `json:"invoiceMonth"`
	InvoiceDayOfWeek int             `json:"invoiceDayOfWeek"` // 0 = Sunday
	Country          string          `json:"country"`
	TransactionType  TransactionType `json:"transactionType"`
	IsGuestPurchase  bool            `json:"isGuestPurchase"`
	SourceFile       string          `json:"sourceFile"`
	RowIndex         int64           `json:"rowIndex"`
	BatchNumber      int64           `json:"batchNumber"`
	LoadedAt         time.Time       `json:"loadedAt"`
}

func (t Transaction) IsReturn() bool {
	return t.TransactionType == TransactionTypeReturn
}
