package components

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/relloyd/retail-loader/constants"
	"github.com/relloyd/retail-loader/helper"
	"github.com/relloyd/retail-loader/logger"
	"github.com/relloyd/retail-loader/model"
	"github.com/shopspring/decimal"
)

// RowError is a per-row validation failure. It is quarantined and never fails the batch.
type RowError struct {
	Reason model.QuarantineReason
	Detail string
}

func (e *RowError) Error() string {
	return fmt.Sprintf("%v: %v", e.Reason, e.Detail)
}

type ValidationOutcome int

const (
	Accepted ValidationOutcome = iota
	Quarantined
	Malformed
)

func (o ValidationOutcome) String() string {
	switch o {
	case Accepted:
		return "Accepted"
	case Quarantined:
		return "Quarantined"
	case Malformed:
		return "Malformed"
	}
	return "Unknown"
}

type ValidationResult struct {
	Outcome ValidationOutcome
	Record  model.StagedRecord // set when Accepted
	Err     *RowError          // set otherwise
}

// BatchContext carries the values stamped on every record of one batch run.
type BatchContext struct {
	RunID    string
	Range    model.BatchRange
	LoadedAt time.Time
}

// DataSource is the staging tag for the batch, e.g. CSV_BATCH_3.
func (b BatchContext) DataSource() string {
	return constants.DataSourceTagPrefix + strconv.FormatInt(b.Range.Number, 10)
}

// invoiceDateLayouts are tried in order. Values without a zone are UTC.
var invoiceDateLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"1/2/2006 15:04",
	"1/2/06 15:04",
	"2006-01-02",
}

type RecordValidatorConfig struct {
	Log   logger.Logger `errorTxt:"logger" mandatory:"yes"`
	Rules *QualityRules // optional extra checks
}

// RecordValidator turns SourceRows into StagedRecords or quarantine reasons. It has no side effects.
type RecordValidator struct {
	RecordValidatorConfig
}

func NewRecordValidator(cfg RecordValidatorConfig) (*RecordValidator, error) {
	if err := helper.ValidateStructIsPopulated(cfg); err != nil {
		return nil, err
	}
	return &RecordValidator{cfg}, nil
}

// Validate checks one row.
func (v *RecordValidator) Validate(row model.SourceRow, b BatchContext) ValidationResult {
	if row.Malformed != "" {
		return ValidationResult{Outcome: Malformed, Err: &RowError{Reason: model.QuarantineReasonMalformedRow, Detail: row.Malformed}}
	}
	reject := func(reason model.QuarantineReason, format string, args ...interface{}) ValidationResult {
		return ValidationResult{Outcome: Quarantined, Err: &RowError{Reason: reason, Detail: fmt.Sprintf(format, args...)}}
	}
	// Mandatory fields.
	missing := make([]string, 0)
	for _, f := range []struct{ name, value string }{
		{"InvoiceNo", row.InvoiceNo},
		{"StockCode", row.StockCode},
		{"Quantity", row.Quantity},
		{"InvoiceDate", row.InvoiceDate},
		{"UnitPrice", row.UnitPrice},
		{"Country", row.Country},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return reject(model.QuarantineReasonMissingField, "missing %v", strings.Join(missing, ", "))
	}
	// Numbers.
	qty, err := decimal.NewFromString(strings.TrimSpace(row.Quantity))
	if err != nil || !qty.Equal(qty.Truncate(0)) || qty.Abs().GreaterThan(decimal.New(1, 15)) {
		return reject(model.QuarantineReasonInvalidNumber, "quantity %q is not a whole number", row.Quantity)
	}
	price, err := decimal.NewFromString(strings.TrimSpace(row.UnitPrice))
	if err != nil {
		return reject(model.QuarantineReasonInvalidNumber, "unit price %q is not a number", row.UnitPrice)
	}
	if price.IsNegative() {
		return reject(model.QuarantineReasonNegativePrice, "unit price %v is negative", price)
	}
	invoiceDate, ok := parseInvoiceDate(row.InvoiceDate)
	if !ok {
		return reject(model.QuarantineReasonInvalidDate, "invoice date %q is not a recognised date", row.InvoiceDate)
	}
	quantity := qty.IntPart()
	if quantity == 0 {
		return reject(model.QuarantineReasonZeroQuantity, "quantity is zero")
	}
	invoiceNo := strings.TrimSpace(row.InvoiceNo)
	customerID := normaliseCustomerID(row.CustomerID)
	if customerID == "" && strings.TrimSpace(row.CustomerID) != "" {
		v.Log.Debug("row ", row.RowIndex, " has non-numeric customer id ", row.CustomerID, "; treating it as a guest purchase")
	}
	rec := model.StagedRecord{
		InvoiceNo:          invoiceNo,
		StockCode:          strings.TrimSpace(row.StockCode),
		Description:        strings.TrimSpace(row.Description),
		Quantity:           quantity,
		InvoiceDate:        invoiceDate,
		UnitPrice:          price,
		CustomerID:         customerID,
		Country:            strings.TrimSpace(row.Country),
		HasMissingCustomer: customerID == "",
		IsReturn:           IsReturn(invoiceNo, quantity),
		TotalAmount:        price.Mul(decimal.NewFromInt(quantity)),
		LoadTimestamp:      b.LoadedAt,
		FileName:           row.FileName,
		RowIndex:           row.RowIndex,
		DataSource:         b.DataSource(),
	}
	if v.Rules.Len() > 0 {
		rowErr, err := v.Rules.Evaluate(rec)
		if err != nil {
			v.Log.Warn("row ", row.RowIndex, " skipped quality rules: ", err)
		} else if rowErr != nil {
			return ValidationResult{Outcome: Quarantined, Err: rowErr}
		}
	}
	return ValidationResult{Outcome: Accepted, Record: rec}
}

// ValidateBatch splits rows into accepted records and quarantined rows, preserving row order.
func (v *RecordValidator) ValidateBatch(rows []model.SourceRow, b BatchContext) (accepted []model.StagedRecord, rejected []model.QuarantinedRow) {
	accepted = make([]model.StagedRecord, 0, len(rows))
	rejected = make([]model.QuarantinedRow, 0)
	for _, row := range rows {
		res := v.Validate(row, b)
		if res.Outcome == Accepted {
			accepted = append(accepted, res.Record)
			continue
		}
		rejected = append(rejected, model.QuarantinedRow{
			FileName:      row.FileName,
			RowIndex:      row.RowIndex,
			Reason:        res.Err.Reason,
			Detail:        res.Err.Detail,
			RawPayload:    row.Raw,
			BatchNumber:   b.Range.Number,
			RunID:         b.RunID,
			QuarantinedAt: b.LoadedAt,
		})
	}
	return accepted, rejected
}

// IsReturn is true for negative quantities and for invoices carrying the cancellation prefix.
func IsReturn(invoiceNo string, quantity int64) bool {
	return quantity < 0 || strings.HasPrefix(strings.ToUpper(invoiceNo), constants.ReturnInvoicePrefix)
}

func parseInvoiceDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range invoiceDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// normaliseCustomerID returns the integral form of a numeric id ("17850.0" becomes "17850").
// Anything else is treated as missing.
func normaliseCustomerID(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	d, err := decimal.NewFromString(s)
	if err != nil || !d.Equal(d.Truncate(0)) {
		return ""
	}
	return d.Truncate(0).String()
}
