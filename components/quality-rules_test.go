package components

import (
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/relloyd/retail-loader/model"
	"github.com/shopspring/decimal"
)

func TestNewQualityRulesRejectsBadRules(t *testing.T) {
	if _, err := NewQualityRules([]QualityRule{{Reason: "", Rule: []byte(`{"==": [1, 1]}`)}}); err == nil {
		t.Fatal("expected an error for a rule without a reason")
	}
	if _, err := NewQualityRules([]QualityRule{{Reason: "X", Rule: []byte(`{"==": [1, 1]`)}}); err == nil {
		t.Fatal("expected an error for invalid JSON logic")
	}
	var q *QualityRules
	if q.Len() != 0 {
		t.Fatal("expected nil rules to be empty")
	}
}

func TestLoadQualityRulesYAML(t *testing.T) {
	p := filepath.Join(t.TempDir(), "rules.yaml")
	data := `
- reason: HIGH_PRICE
  rule:
    ">":
      - var: unitPrice
      - 500
- reason: UNSPECIFIED_COUNTRY
  rule: {"==": [{"var": "country"}, "Unspecified"]}
`
	if err := ioutil.WriteFile(p, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}
	q, err := LoadQualityRules(p)
	if err != nil {
		t.Fatal(err)
	}
	if q.Len() != 2 {
		t.Fatalf("expected: 2 rules; got: %v", q.Len())
	}
	rowErr, err := q.Evaluate(model.StagedRecord{UnitPrice: decimal.NewFromInt(650), Country: "UK"})
	if err != nil || rowErr == nil || rowErr.Reason != "HIGH_PRICE" {
		t.Fatalf("expected HIGH_PRICE; got: %v (%v)", rowErr, err)
	}
	rowErr, err = q.Evaluate(model.StagedRecord{UnitPrice: decimal.NewFromInt(1), Country: "Unspecified"})
	if err != nil || rowErr == nil || rowErr.Reason != "UNSPECIFIED_COUNTRY" {
		t.Fatalf("expected UNSPECIFIED_COUNTRY; got: %v (%v)", rowErr, err)
	}
	rowErr, err = q.Evaluate(model.StagedRecord{UnitPrice: decimal.NewFromInt(1), Country: "UK"})
	if err != nil || rowErr != nil {
		t.Fatalf("expected no match; got: %v (%v)", rowErr, err)
	}
}

func TestTruthy(t *testing.T) {
	cases := map[string]bool{
		"true": true, "false": false, "null": false, "0": false, "1.5": true,
		`""`: false, `"x"`: true, "[]": false, "[1]": true, "{}": true, "junk": false,
	}
	for in, want := range cases {
		if got := truthy([]byte(in)); got != want {
			t.Fatalf("%v: expected: %v; got: %v", in, want, got)
		}
	}
}
