package components

import (
	"testing"
	"time"

	"github.com/relloyd/retail-loader/model"
	"github.com/shopspring/decimal"
)

func TestRecordValidatorReasons(t *testing.T) {
	v := newTestValidator(t, nil)
	malformed := testRow(9, "1", "A", "1", "1", "", "UK")
	malformed.Malformed = "expected 8 fields; got 5"
	cases := []struct {
		name    string
		row     model.SourceRow
		outcome ValidationOutcome
		reason  model.QuarantineReason
	}{
		{"ok", testRow(1, "536365", "85123A", "6", "2.55", "17850", "United Kingdom"), Accepted, ""},
		{"missing invoice", testRow(2, " ", "A", "1", "1", "1", "UK"), Quarantined, model.QuarantineReasonMissingField},
		{"missing country", testRow(3, "1", "A", "1", "1", "1", ""), Quarantined, model.QuarantineReasonMissingField},
		{"missing quantity", testRow(4, "1", "A", "", "1", "1", "UK"), Quarantined, model.QuarantineReasonMissingField},
		{"text quantity", testRow(5, "1", "A", "abc", "1", "1", "UK"), Quarantined, model.QuarantineReasonInvalidNumber},
		{"fractional quantity", testRow(6, "1", "A", "1.5", "1", "1", "UK"), Quarantined, model.QuarantineReasonInvalidNumber},
		{"text price", testRow(7, "1", "A", "1", "x", "1", "UK"), Quarantined, model.QuarantineReasonInvalidNumber},
		{"negative price", testRow(8, "1", "A", "1", "-0.01", "1", "UK"), Quarantined, model.QuarantineReasonNegativePrice},
		{"zero quantity", testRow(10, "1", "A", "0", "1", "1", "UK"), Quarantined, model.QuarantineReasonZeroQuantity},
		{"malformed", malformed, Malformed, model.QuarantineReasonMalformedRow},
	}
	for _, c := range cases {
		res := v.Validate(c.row, testBatch(1, 1, 10))
		if res.Outcome != c.outcome {
			t.Fatalf("%v: expected: %v; got: %v (%v)", c.name, c.outcome, res.Outcome, res.Err)
		}
		if c.outcome != Accepted && res.Err.Reason != c.reason {
			t.Fatalf("%v: expected reason: %v; got: %v", c.name, c.reason, res.Err.Reason)
		}
	}
}

func TestRecordValidatorDates(t *testing.T) {
	v := newTestValidator(t, nil)
	want := time.Date(2010, 12, 1, 8, 26, 0, 0, time.UTC)
	for _, s := range []string{"2010-12-01 08:26:00", "2010-12-01T08:26:00Z", "2010-12-01T08:26:00", "12/1/2010 8:26", "12/1/10 08:26"} {
		row := testRow(1, "1", "A", "1", "1", "1", "UK")
		row.InvoiceDate = s
		res := v.Validate(row, testBatch(1, 1, 1))
		if res.Outcome != Accepted || !res.Record.InvoiceDate.Equal(want) {
			t.Fatalf("date %q: expected: %v; got: %v (%v)", s, want, res.Record.InvoiceDate, res.Err)
		}
	}
	row := testRow(1, "1", "A", "1", "1", "1", "UK")
	row.InvoiceDate = "yesterday"
	if res := v.Validate(row, testBatch(1, 1, 1)); res.Err == nil || res.Err.Reason != model.QuarantineReasonInvalidDate {
		t.Fatalf("expected INVALID_DATE; got: %+v", res)
	}
	row.InvoiceDate = ""
	if res := v.Validate(row, testBatch(1, 1, 1)); res.Err == nil || res.Err.Reason != model.QuarantineReasonMissingField {
		t.Fatalf("expected MISSING_FIELD; got: %+v", res)
	}
}

func TestRecordValidatorDerivedFields(t *testing.T) {
	v := newTestValidator(t, nil)
	b := testBatch(3, 401, 600)
	// Sale with a float-formatted customer id.
	res := v.Validate(testRow(401, "536365", "85123A", "6", "2.55", "17850.0", "United Kingdom"), b)
	r := res.Record
	if r.CustomerID != "17850" || r.HasMissingCustomer || r.IsReturn {
		t.Fatalf("unexpected sale record: %+v", r)
	}
	if !r.TotalAmount.Equal(decimal.RequireFromString("15.30")) {
		t.Fatalf("expected total: 15.30; got: %v", r.TotalAmount)
	}
	if r.DataSource != "CSV_BATCH_3" || r.RowIndex != 401 || !r.LoadTimestamp.Equal(testNow) {
		t.Fatalf("unexpected batch fields: %+v", r)
	}
	// Negative quantity is a return and guests are accepted.
	r = v.Validate(testRow(402, "536366", "A", "-2", "1.25", "", "UK"), b).Record
	if !r.IsReturn || !r.HasMissingCustomer || !r.TotalAmount.Equal(decimal.RequireFromString("-2.5")) {
		t.Fatalf("unexpected return record: %+v", r)
	}
	// The cancellation prefix alone also marks a return.
	r = v.Validate(testRow(403, "C536379", "D", "1", "27.50", "14527", "UK"), b).Record
	if !r.IsReturn {
		t.Fatalf("expected prefixed invoice to be a return: %+v", r)
	}
	// Non-numeric customer ids become guests.
	r = v.Validate(testRow(404, "1", "A", "1", "1", "abc", "UK"), b).Record
	if r.CustomerID != "" || !r.HasMissingCustomer {
		t.Fatalf("expected a guest purchase; got: %+v", r)
	}
}

func TestRecordValidatorBatch(t *testing.T) {
	v := newTestValidator(t, nil)
	rows := []model.SourceRow{
		testRow(1, "1", "A", "1", "1", "1", "UK"),
		testRow(2, "2", "B", "abc", "1", "1", "UK"),
		testRow(3, "3", "C", "1", "1", "1", "UK"),
	}
	b := testBatch(1, 1, 3)
	accepted, rejected := v.ValidateBatch(rows, b)
	if len(accepted) != 2 || len(rejected) != 1 {
		t.Fatalf("expected: 2 accepted and 1 rejected; got: %v and %v", len(accepted), len(rejected))
	}
	q := rejected[0]
	if q.RowIndex != 2 || q.Reason != model.QuarantineReasonInvalidNumber || q.RawPayload != "2,B" || q.RunID != b.RunID || q.BatchNumber != 1 {
		t.Fatalf("unexpected quarantined row: %+v", q)
	}
	if accepted[0].RowIndex != 1 || accepted[1].RowIndex != 3 {
		t.Fatal("expected accepted rows in source order")
	}
}

func TestRecordValidatorQualityRules(t *testing.T) {
	rules, err := NewQualityRules([]QualityRule{
		{Reason: "POSTAGE", Rule: []byte(`{"==": [{"var": "stockCode"}, "POST"]}`)},
		{Reason: "BULK_ORDER", Rule: []byte(`{">": [{"var": "quantity"}, 1000]}`)},
	})
	if err != nil {
		t.Fatal(err)
	}
	v := newTestValidator(t, rules)
	b := testBatch(1, 1, 3)
	if res := v.Validate(testRow(1, "1", "POST", "1", "18", "1", "UK"), b); res.Outcome != Quarantined || res.Err.Reason != "POSTAGE" {
		t.Fatalf("expected POSTAGE; got: %+v", res)
	}
	if res := v.Validate(testRow(2, "1", "A", "5000", "1", "1", "UK"), b); res.Outcome != Quarantined || res.Err.Reason != "BULK_ORDER" {
		t.Fatalf("expected BULK_ORDER; got: %+v", res)
	}
	if res := v.Validate(testRow(3, "1", "A", "5", "1", "1", "UK"), b); res.Outcome != Accepted {
		t.Fatalf("expected Accepted; got: %+v", res)
	}
}
