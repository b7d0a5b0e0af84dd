package components

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"strings"

	"github.com/diegoholiveira/jsonlogic"
	"github.com/ghodss/yaml"
	"github.com/relloyd/retail-loader/model"
)

// QualityRule quarantines a row with Reason when Rule, a JsonLogic expression, is truthy for the row.
type QualityRule struct {
	Reason string          `json:"reason"`
	Rule   json.RawMessage `json:"rule"`
}

// QualityRules holds validated JsonLogic rules in evaluation order.
type QualityRules struct {
	rules []QualityRule
}

// NewQualityRules checks every rule is valid JsonLogic with a reason code.
func NewQualityRules(rules []QualityRule) (*QualityRules, error) {
	for idx, r := range rules {
		if strings.TrimSpace(r.Reason) == "" {
			return nil, fmt.Errorf("quality rule %v has no reason code", idx+1)
		}
		if len(r.Rule) == 0 || !jsonlogic.IsValid(bytes.NewReader(r.Rule)) {
			return nil, fmt.Errorf("quality rule %v (%v) is not valid JsonLogic: %s", idx+1, r.Reason, r.Rule)
		}
	}
	return &QualityRules{rules: rules}, nil
}

// LoadQualityRules reads a YAML or JSON list of rules from fileName.
func LoadQualityRules(fileName string) (*QualityRules, error) {
	b, err := ioutil.ReadFile(fileName)
	if err != nil {
		return nil, fmt.Errorf("error reading quality rules: %w", err)
	}
	rules := make([]QualityRule, 0)
	if err := yaml.Unmarshal(b, &rules); err != nil {
		return nil, fmt.Errorf("error parsing quality rules in %v: %w", fileName, err)
	}
	return NewQualityRules(rules)
}

func (q *QualityRules) Len() int {
	if q == nil {
		return 0
	}
	return len(q.rules)
}

// Evaluate returns a RowError for the first rule that matches rec, or nil.
func (q *QualityRules) Evaluate(rec model.StagedRecord) (*RowError, error) {
	if q.Len() == 0 {
		return nil, nil
	}
	data, err := json.Marshal(ruleData(rec))
	if err != nil {
		return nil, fmt.Errorf("error marshalling data before applying JSON logic: %v", err)
	}
	var result bytes.Buffer
	for _, r := range q.rules {
		result.Reset()
		if err := jsonlogic.Apply(bytes.NewReader(r.Rule), bytes.NewReader(data), &result); err != nil {
			return nil, fmt.Errorf("error applying quality rule %v: %v", r.Reason, err)
		}
		if truthy(result.Bytes()) {
			return &RowError{Reason: model.QuarantineReason(r.Reason), Detail: fmt.Sprintf("matched quality rule %s", r.Rule)}, nil
		}
	}
	return nil, nil
}

// ruleData is the row as seen by rules. Numbers are floats so JsonLogic can compare them.
func ruleData(rec model.StagedRecord) map[string]interface{} {
	price, _ := rec.UnitPrice.Float64()
	total, _ := rec.TotalAmount.Float64()
	return map[string]interface{}{
		"invoiceNo":          rec.InvoiceNo,
		"stockCode":          rec.StockCode,
		"description":        rec.Description,
		"quantity":           rec.Quantity,
		"unitPrice":          price,
		"totalAmount":        total,
		"invoiceDate":        rec.InvoiceDate.Format("2006-01-02 15:04:05"),
		"customerId":         rec.CustomerID,
		"country":            rec.Country,
		"isReturn":           rec.IsReturn,
		"hasMissingCustomer": rec.HasMissingCustomer,
	}
}

// truthy follows JsonLogic truthiness for the JSON result of a rule.
func truthy(b []byte) bool {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return false
	}
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case float64:
		return x != 0
	case string:
		return x != ""
	case []interface{}:
		return len(x) > 0
	default:
		return true
	}
}
