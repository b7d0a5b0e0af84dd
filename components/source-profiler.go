package components

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/cevaris/ordered_map"
	"github.com/relloyd/retail-loader/helper"
	"github.com/relloyd/retail-loader/logger"
	"github.com/relloyd/retail-loader/model"
	"github.com/relloyd/retail-loader/source"
	"github.com/shopspring/decimal"
)

const (
	profileTopValues   = 5
	profileSampleRows  = 5
	profileMeanScale   = 4
	profilePercentBase = 100
)

type SourceProfilerConfig struct {
	Log    logger.Logger `errorTxt:"logger" mandatory:"yes"`
	Source source.Reader `errorTxt:"source" mandatory:"yes"`
	Clock  func() time.Time
}

// SourceProfiler summarises a source file before it is loaded.
type SourceProfiler struct {
	SourceProfilerConfig
}

type ProfileFileInfo struct {
	SourceFile   string    `json:"sourceFile"`
	ProfiledAt   time.Time `json:"profiledAt"`
	TotalRows    int64     `json:"totalRows"`
	TotalColumns int       `json:"totalColumns"`
}

type ValueCount struct {
	Value string `json:"value"`
	Count int64  `json:"count"`
}

type ColumnProfile struct {
	Name           string           `json:"name"`
	DataType       string           `json:"dataType"` // numeric or text
	NonNullCount   int64            `json:"nonNullCount"`
	NullCount      int64            `json:"nullCount"`
	NullPercentage decimal.Decimal  `json:"nullPercentage"`
	UniqueValues   int64            `json:"uniqueValues"`
	Min            *decimal.Decimal `json:"min,omitempty"`
	Max            *decimal.Decimal `json:"max,omitempty"`
	Mean           *decimal.Decimal `json:"mean,omitempty"`
	TopValues      []ValueCount     `json:"topValues,omitempty"`
}

type DataQuality struct {
	TotalDuplicates    int64 `json:"totalDuplicates"`
	CompletelyNullRows int64 `json:"completelyNullRows"`
	RowsWithAnyNull    int64 `json:"rowsWithAnyNull"`
	MalformedRows      int64 `json:"malformedRows"`
	NegativeQuantities int64 `json:"negativeQuantities"`
	ZeroQuantities     int64 `json:"zeroQuantities"`
	NegativePrices     int64 `json:"negativePrices"`
	ZeroPrices         int64 `json:"zeroPrices"`
	MissingCustomers   int64 `json:"missingCustomers"`
	ReturnRows         int64 `json:"returnRows"`
}

type SourceProfile struct {
	FileInfo    ProfileFileInfo     `json:"fileInfo"`
	Columns     []ColumnProfile     `json:"columns"`
	DataQuality DataQuality         `json:"dataQuality"`
	SampleData  []map[string]string `json:"sampleData"`
}

// columnAccumulator collects one column. Values are counted in first-seen order so ties in the
// top values list keep file order.
type columnAccumulator struct {
	name       string
	get        func(r model.SourceRow) string
	nonNull    int64
	counts     *ordered_map.OrderedMap // value -> int64
	numeric    bool
	min, max   decimal.Decimal
	sum        decimal.Decimal
	numericSet bool
}

func (c *columnAccumulator) add(v string) {
	if v == "" {
		return
	}
	c.nonNull++
	n, ok := c.counts.Get(v)
	if ok {
		c.counts.Set(v, n.(int64)+1)
	} else {
		c.counts.Set(v, int64(1))
	}
	if !c.numeric {
		return
	}
	d, err := decimal.NewFromString(v)
	if err != nil { // if one value is not a number the column is text...
		c.numeric = false
		return
	}
	if !c.numericSet {
		c.min, c.max, c.numericSet = d, d, true
	} else {
		if d.LessThan(c.min) {
			c.min = d
		}
		if d.GreaterThan(c.max) {
			c.max = d
		}
	}
	c.sum = c.sum.Add(d)
}

func (c *columnAccumulator) profile(total int64) ColumnProfile {
	p := ColumnProfile{
		Name:         c.name,
		DataType:     "text",
		NonNullCount: c.nonNull,
		NullCount:    total - c.nonNull,
		UniqueValues: int64(c.counts.Len()),
	}
	p.NullPercentage = percentage(p.NullCount, total)
	if c.numeric && c.numericSet {
		p.DataType = "numeric"
		mn, mx := c.min, c.max
		mean := c.sum.DivRound(decimal.NewFromInt(c.nonNull), profileMeanScale)
		p.Min, p.Max, p.Mean = &mn, &mx, &mean
		return p
	}
	p.TopValues = topValues(c.counts, profileTopValues)
	return p
}

func percentage(n, total int64) decimal.Decimal {
	if total == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(n * profilePercentBase).DivRound(decimal.NewFromInt(total), 2)
}

func topValues(m *ordered_map.OrderedMap, n int) []ValueCount {
	all := make([]ValueCount, 0, m.Len())
	iter := m.IterFunc()
	for kv, ok := iter(); ok; kv, ok = iter() {
		all = append(all, ValueCount{Value: kv.Key.(string), Count: kv.Value.(int64)})
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Count > all[j].Count
	})
	if len(all) > n {
		all = all[:n]
	}
	return all
}

func NewSourceProfiler(cfg SourceProfilerConfig) (*SourceProfiler, error) {
	if err := helper.ValidateStructIsPopulated(cfg); err != nil {
		return nil, err
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &SourceProfiler{SourceProfilerConfig: cfg}, nil
}

func newColumnAccumulators() []*columnAccumulator {
	col := func(name string, numeric bool, get func(r model.SourceRow) string) *columnAccumulator {
		return &columnAccumulator{name: name, get: get, numeric: numeric, counts: ordered_map.NewOrderedMap()}
	}
	return []*columnAccumulator{
		col("InvoiceNo", false, func(r model.SourceRow) string { return r.InvoiceNo }),
		col("StockCode", false, func(r model.SourceRow) string { return r.StockCode }),
		col("Description", false, func(r model.SourceRow) string { return r.Description }),
		col("Quantity", true, func(r model.SourceRow) string { return r.Quantity }),
		col("InvoiceDate", false, func(r model.SourceRow) string { return r.InvoiceDate }),
		col("UnitPrice", true, func(r model.SourceRow) string { return r.UnitPrice }),
		col("CustomerID", false, func(r model.SourceRow) string { return r.CustomerID }),
		col("Country", false, func(r model.SourceRow) string { return r.Country }),
	}
}

// Profile reads the whole source once.
func (p *SourceProfiler) Profile(ctx context.Context) (*SourceProfile, error) {
	cols := newColumnAccumulators()
	seen := make(map[string]struct{})
	retval := &SourceProfile{SampleData: make([]map[string]string, 0, profileSampleRows)}
	q := &retval.DataQuality
	var total int64
	err := p.Source.Each(ctx, func(r model.SourceRow) error {
		total++
		if r.Malformed != "" {
			q.MalformedRows++
		}
		values := make([]string, len(cols))
		nulls := 0
		for idx, c := range cols {
			v := c.get(r)
			values[idx] = v
			if v == "" {
				nulls++
			}
			c.add(v)
		}
		switch {
		case nulls == len(cols):
			q.CompletelyNullRows++
			q.RowsWithAnyNull++
		case nulls > 0:
			q.RowsWithAnyNull++
		}
		key := strings.Join(values, "\x1f")
		if _, dup := seen[key]; dup {
			q.TotalDuplicates++
		} else {
			seen[key] = struct{}{}
		}
		if qty, err := decimal.NewFromString(r.Quantity); err == nil {
			if qty.IsNegative() {
				q.NegativeQuantities++
			} else if qty.IsZero() {
				q.ZeroQuantities++
			}
			if IsReturn(r.InvoiceNo, qty.IntPart()) {
				q.ReturnRows++
			}
		}
		if price, err := decimal.NewFromString(r.UnitPrice); err == nil {
			if price.IsNegative() {
				q.NegativePrices++
			} else if price.IsZero() {
				q.ZeroPrices++
			}
		}
		if r.CustomerID == "" {
			q.MissingCustomers++
		}
		if len(retval.SampleData) < profileSampleRows {
			sample := make(map[string]string, len(cols))
			for idx, c := range cols {
				sample[c.name] = values[idx]
			}
			retval.SampleData = append(retval.SampleData, sample)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	retval.FileInfo = ProfileFileInfo{
		SourceFile:   p.Source.Name(),
		ProfiledAt:   p.Clock().UTC(),
		TotalRows:    total,
		TotalColumns: len(cols),
	}
	retval.Columns = make([]ColumnProfile, 0, len(cols))
	for _, c := range cols {
		retval.Columns = append(retval.Columns, c.profile(total))
	}
	p.Log.Info("profiled ", total, " rows of ", p.Source.Name())
	return retval, nil
}
