package pipeline_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"strings"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/relloyd/retail-loader/components"
	"github.com/relloyd/retail-loader/logger"
	"github.com/relloyd/retail-loader/model"
	"github.com/relloyd/retail-loader/pipeline"
	"github.com/relloyd/retail-loader/source"
	"github.com/relloyd/retail-loader/warehouse"
)

var testLog = logger.NewLogger("pipeline-test", "error", true)

var fixedNow = time.Date(2011, 12, 10, 12, 0, 0, 0, time.UTC)

const csvHeader = "InvoiceNo,StockCode,Description,Quantity,InvoiceDate,UnitPrice,CustomerID,Country\n"

func csvSource(lines ...string) source.Reader {
	data := csvHeader + strings.Join(lines, "\n") + "\n"
	s, err := source.NewCSVSource(source.CSVSourceConfig{
		Log:      testLog,
		Location: "online_retail.csv",
		Opener: func(ctx context.Context) (io.ReadCloser, error) {
			return ioutil.NopCloser(strings.NewReader(data)), nil
		},
	})
	Expect(err).NotTo(HaveOccurred())
	return s
}

func newWarehouse() *warehouse.Memory {
	w, err := warehouse.NewMemoryWarehouse(warehouse.MemoryConfig{Log: testLog, PipelineName: "TEST"})
	Expect(err).NotTo(HaveOccurred())
	return w
}

func newController(w warehouse.Warehouse, src source.Reader, batchSize int64) *pipeline.Controller {
	c, err := pipeline.NewController(pipeline.Config{
		Log:          testLog,
		PipelineName: "TEST",
		BatchSize:    batchSize,
		Source:       src,
		Warehouse:    w,
		Owner:        "test",
		Clock:        func() time.Time { return fixedNow },
	})
	Expect(err).NotTo(HaveOccurred())
	return c
}

// runToEnd advances until no rows remain and returns the number of committed batches.
func runToEnd(c *pipeline.Controller) int {
	n := 0
	for i := 0; i < 10000; i++ {
		res, err := c.Advance(context.Background())
		Expect(err).NotTo(HaveOccurred())
		if res.NoRowsRemaining {
			return n
		}
		Expect(res.State).To(Equal(pipeline.StateCommitted))
		n++
	}
	Fail("pipeline did not finish")
	return n
}

// retailLines is a small mixed data set: sales, returns, guests, repeated customers and bad rows.
func retailLines() []string {
	lines := make([]string, 0)
	countries := []string{"United Kingdom", "France", "Germany"}
	for i := 1; i <= 23; i++ {
		invoice := fmt.Sprintf("5363%02d", i/3)
		stock := fmt.Sprintf("SKU%v", i%5)
		qty := fmt.Sprintf("%v", i%4+1)
		customer := fmt.Sprintf("%v", 12340+i%6)
		switch {
		case i%7 == 0: // returns
			invoice = "C" + invoice
			qty = "-1"
		case i%5 == 0: // guests
			customer = ""
		}
		price := fmt.Sprintf("%v.%02d", i%3+1, (i*17)%100)
		date := fmt.Sprintf("2011-0%v-%02d 10:%02d:00", i%9+1, i%28+1, i%60)
		lines = append(lines, strings.Join([]string{invoice, stock, "ITEM " + stock, qty, date, price, customer, countries[i%3]}, ","))
	}
	lines = append(lines,
		"536999,SKU1,bad,abc,2011-01-01 10:00:00,1.00,12340,France",
		"536999,SKU1,bad,1,2011-01-01 10:00:00,-1.00,12340,France",
		"536999,SKU1,short line",
	)
	return lines
}

// dimensionsJSON renders every dimension row without the fields that depend on when a batch ran.
// Money is compared through its canonical JSON text.
func dimensionsJSON(w warehouse.Reader) string {
	ctx := context.Background()
	p, err := w.Products(ctx, model.ProductQuery{Limit: 1000})
	Expect(err).NotTo(HaveOccurred())
	c, err := w.Customers(ctx, model.CustomerQuery{Limit: 1000})
	Expect(err).NotTo(HaveOccurred())
	n, err := w.Countries(ctx)
	Expect(err).NotTo(HaveOccurred())
	for i := range p {
		p[i].CreatedAt, p[i].UpdatedAt = time.Time{}, time.Time{}
	}
	for i := range c {
		c[i].CreatedAt, c[i].UpdatedAt, c[i].DaysSinceLastPurchase = time.Time{}, time.Time{}, nil
	}
	for i := range n {
		n[i].CreatedAt, n[i].UpdatedAt = time.Time{}, time.Time{}
	}
	b, err := json.Marshal(map[string]interface{}{"products": p, "customers": c, "countries": n})
	Expect(err).NotTo(HaveOccurred())
	return string(b)
}

func componentsCounts(processed, inserted, present, rejected int64) components.RunCounts {
	return components.RunCounts{Processed: processed, Inserted: inserted, AlreadyPresent: present, Rejected: rejected}
}
