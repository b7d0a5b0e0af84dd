package source

import (
	"fmt"
	"sort"
	"strings"

	"github.com/relloyd/retail-loader/model"
)

type field int

const (
	fieldInvoice field = iota
	fieldStock
	fieldDescription
	fieldQuantity
	fieldDate
	fieldPrice
	fieldCustomer
	fieldCountry
)

// headerAliases maps normalised header names to fields.
var headerAliases = map[string]field{
	"invoiceno":   fieldInvoice,
	"invoice":     fieldInvoice,
	"stockcode":   fieldStock,
	"stock":       fieldStock,
	"description": fieldDescription,
	"quantity":    fieldQuantity,
	"invoicedate": fieldDate,
	"date":        fieldDate,
	"unitprice":   fieldPrice,
	"price":       fieldPrice,
	"customerid":  fieldCustomer,
	"customer":    fieldCustomer,
	"country":     fieldCountry,
}

var requiredFields = map[field]string{
	fieldInvoice:  "InvoiceNo",
	fieldStock:    "StockCode",
	fieldQuantity: "Quantity",
	fieldDate:     "InvoiceDate",
	fieldPrice:    "UnitPrice",
	fieldCountry:  "Country",
}

type header struct {
	width int
	pos   map[field]int
}

func normaliseHeaderName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Replace(s, "_", "", -1)
	return strings.Replace(s, " ", "", -1)
}

func parseHeader(line string) (*header, error) {
	names, err := splitLine(line)
	if err != nil {
		return nil, err
	}
	h := &header{width: len(names), pos: make(map[field]int)}
	for i, n := range names {
		f, ok := headerAliases[normaliseHeaderName(n)]
		if !ok {
			continue
		}
		if _, dup := h.pos[f]; dup {
			return nil, fmt.Errorf("duplicate column %q", n)
		}
		h.pos[f] = i
	}
	missing := make([]string, 0)
	for f, name := range requiredFields {
		if _, ok := h.pos[f]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("missing columns: %v", strings.Join(missing, ", "))
	}
	return h, nil
}

// accepts is true when text splits into exactly one field per header column.
func (h *header) accepts(text string) bool {
	values, err := splitLine(text)
	return err == nil && len(values) == h.width
}

func (h *header) row(fileName string, idx int64, rec record) model.SourceRow {
	r := model.SourceRow{FileName: fileName, RowIndex: idx, Raw: rec.text}
	switch {
	case rec.tooLong:
		r.Malformed = fmt.Sprintf("line is longer than %v bytes", maxRecordBytes)
		return r
	case rec.unterminated:
		r.Malformed = "quoted field is not terminated"
		return r
	}
	values, err := splitLine(rec.text)
	if err != nil {
		r.Malformed = fmt.Sprintf("cannot decode line: %v", err)
		return r
	}
	if len(values) != h.width {
		r.Malformed = fmt.Sprintf("expected %v fields; got %v", h.width, len(values))
		return r
	}
	get := func(f field) string {
		if i, ok := h.pos[f]; ok {
			return strings.TrimSpace(values[i])
		}
		return ""
	}
	r.InvoiceNo = get(fieldInvoice)
	r.StockCode = get(fieldStock)
	r.Description = get(fieldDescription)
	r.Quantity = get(fieldQuantity)
	r.InvoiceDate = get(fieldDate)
	r.UnitPrice = get(fieldPrice)
	r.CustomerID = get(fieldCustomer)
	r.Country = get(fieldCountry)
	return r
}
