package components

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/relloyd/retail-loader/constants"
	"github.com/relloyd/retail-loader/helper"
	"github.com/relloyd/retail-loader/logger"
	"github.com/relloyd/retail-loader/model"
	"github.com/relloyd/retail-loader/warehouse"
	"github.com/shopspring/decimal"
)

// averageScale is the number of decimal places kept for stored averages.
const averageScale = 4

type DimensionAggregatorConfig struct {
	Log logger.Logger `errorTxt:"logger" mandatory:"yes"`
}

// DimensionAggregator applies deltas from newly inserted facts to the product, customer and country dimensions.
type DimensionAggregator struct {
	DimensionAggregatorConfig
}

type DimensionResult struct {
	Products  int
	Customers int
	Countries int
}

func NewDimensionAggregator(cfg DimensionAggregatorConfig) (*DimensionAggregator, error) {
	if err := helper.ValidateStructIsPopulated(cfg); err != nil {
		return nil, err
	}
	return &DimensionAggregator{cfg}, nil
}

// memberCounts holds the number of members added per dimension key.
type memberCounts map[string]int64

// Apply folds txns into the dimensions inside tx.
// txns must be only the facts inserted by this batch, otherwise a replay would double count.
// now is the reference time for days-since-last-purchase.
func (a *DimensionAggregator) Apply(ctx context.Context, tx warehouse.Tx, txns []model.Transaction, now time.Time) (DimensionResult, error) {
	if len(txns) == 0 {
		return DimensionResult{}, nil
	}
	stockCodes, customerIDs, countryNames := dimensionKeys(txns)
	products, err := tx.Products(ctx, stockCodes)
	if err != nil {
		return DimensionResult{}, errors.Wrap(err, "error reading products")
	}
	customers, err := tx.Customers(ctx, customerIDs)
	if err != nil {
		return DimensionResult{}, errors.Wrap(err, "error reading customers")
	}
	countries, err := tx.Countries(ctx, countryNames)
	if err != nil {
		return DimensionResult{}, errors.Wrap(err, "error reading countries")
	}
	// Distinct counts.
	added := make(map[model.MemberSet]memberCounts)
	for set, members := range dimensionMembers(txns) {
		newMembers, err := tx.AddMembers(ctx, set, members)
		if err != nil {
			return DimensionResult{}, errors.Wrapf(err, "error adding %v members", set)
		}
		counts := make(memberCounts)
		for _, m := range newMembers {
			counts[m.Key]++
		}
		added[set] = counts
	}
	// Deltas, in row order.
	for _, t := range txns {
		products[t.StockCode] = applyProduct(products[t.StockCode], t, now)
		if t.CustomerID != "" {
			customers[t.CustomerID] = applyCustomer(customers[t.CustomerID], t, now)
		}
		countries[t.Country] = applyCountry(countries[t.Country], t, now)
	}
	// Distinct counts and derived fields.
	outProducts := make([]model.Product, 0, len(stockCodes))
	for _, k := range stockCodes {
		p := products[k]
		p.UniqueCustomers += added[model.MemberSetProductCustomers][k]
		outProducts = append(outProducts, p)
	}
	outCustomers := make([]model.Customer, 0, len(customerIDs))
	for _, k := range customerIDs {
		c := customers[k]
		c.TotalOrders += added[model.MemberSetCustomerInvoices][k]
		if c.TotalOrders > 0 {
			c.AverageOrderValue = c.TotalAmountSpent.DivRound(decimal.NewFromInt(c.TotalOrders), averageScale)
		}
		c.Segment = CustomerSegmentFor(c.TotalAmountSpent)
		c.DaysSinceLastPurchase = daysSince(c.LastPurchaseDate, now)
		outCustomers = append(outCustomers, c)
	}
	outCountries := make([]model.Country, 0, len(countryNames))
	for _, k := range countryNames {
		c := countries[k]
		c.TotalCustomers += added[model.MemberSetCountryCustomers][k]
		c.TotalOrders += added[model.MemberSetCountryInvoices][k]
		outCountries = append(outCountries, c)
	}
	if err := tx.PutProducts(ctx, outProducts); err != nil {
		return DimensionResult{}, errors.Wrap(err, "error writing products")
	}
	if err := tx.PutCustomers(ctx, outCustomers); err != nil {
		return DimensionResult{}, errors.Wrap(err, "error writing customers")
	}
	if err := tx.PutCountries(ctx, outCountries); err != nil {
		return DimensionResult{}, errors.Wrap(err, "error writing countries")
	}
	res := DimensionResult{Products: len(outProducts), Customers: len(outCustomers), Countries: len(outCountries)}
	a.Log.Debug("updated ", res.Products, " products, ", res.Customers, " customers and ", res.Countries, " countries")
	return res, nil
}

// dimensionKeys returns the sorted distinct keys touched by txns.
func dimensionKeys(txns []model.Transaction) (stockCodes, customerIDs, countries []string) {
	s, c, n := make(map[string]bool), make(map[string]bool), make(map[string]bool)
	for _, t := range txns {
		s[t.StockCode] = true
		if t.CustomerID != "" {
			c[t.CustomerID] = true
		}
		n[t.Country] = true
	}
	return sortedKeys(s), sortedKeys(c), sortedKeys(n)
}

func sortedKeys(m map[string]bool) []string {
	retval := make([]string, 0, len(m))
	for k := range m {
		retval = append(retval, k)
	}
	sort.Strings(retval)
	return retval
}

// dimensionMembers returns the distinct memberships implied by txns.
func dimensionMembers(txns []model.Transaction) map[model.MemberSet][]model.Member {
	retval := make(map[model.MemberSet][]model.Member)
	seen := make(map[model.MemberSet]map[model.Member]bool)
	add := func(set model.MemberSet, key, member string) {
		if seen[set] == nil {
			seen[set] = make(map[model.Member]bool)
		}
		m := model.Member{Key: key, Member: member}
		if seen[set][m] {
			return
		}
		seen[set][m] = true
		retval[set] = append(retval[set], m)
	}
	for _, t := range txns {
		add(model.MemberSetCountryInvoices, t.Country, t.InvoiceNo)
		if t.CustomerID == "" {
			continue
		}
		add(model.MemberSetCountryCustomers, t.Country, t.CustomerID)
		if !t.IsReturn() {
			add(model.MemberSetProductCustomers, t.StockCode, t.CustomerID)
			add(model.MemberSetCustomerInvoices, t.CustomerID, t.InvoiceNo)
		}
	}
	return retval
}

func applyProduct(p model.Product, t model.Transaction, now time.Time) model.Product {
	if p.StockCode == "" {
		p = model.Product{StockCode: t.StockCode, CreatedAt: now}
	}
	if t.Description != "" {
		p.Description = t.Description
	}
	p.TotalQuantitySold += t.Quantity
	p.TotalRevenue = p.TotalRevenue.Add(t.TotalAmount)
	p.TransactionCount++
	if t.IsReturn() {
		p.ReturnCount++
	} else {
		if p.SalesCount == 0 || t.UnitPrice.LessThan(p.MinUnitPrice) {
			p.MinUnitPrice = t.UnitPrice
		}
		if p.SalesCount == 0 || t.UnitPrice.GreaterThan(p.MaxUnitPrice) {
			p.MaxUnitPrice = t.UnitPrice
		}
		p.SalesCount++
		p.UnitPriceSum = p.UnitPriceSum.Add(t.UnitPrice)
		p.AverageUnitPrice = p.UnitPriceSum.DivRound(decimal.NewFromInt(p.SalesCount), averageScale)
		p.FirstSaleDate, p.LastSaleDate = widen(p.FirstSaleDate, p.LastSaleDate, t.InvoiceDate)
	}
	p.UpdatedAt = now
	return p
}

func applyCustomer(c model.Customer, t model.Transaction, now time.Time) model.Customer {
	if c.CustomerID == "" {
		c = model.Customer{CustomerID: t.CustomerID, Segment: model.CustomerSegmentNew, CreatedAt: now}
	}
	c.Country = t.Country
	if t.IsReturn() {
		c.TotalReturns++
		c.TotalReturnedAmount = c.TotalReturnedAmount.Add(t.TotalAmount.Abs())
	} else {
		c.TotalItemsPurchased += t.Quantity
		c.TotalAmountSpent = c.TotalAmountSpent.Add(t.TotalAmount)
		c.FirstPurchaseDate, c.LastPurchaseDate = widen(c.FirstPurchaseDate, c.LastPurchaseDate, t.InvoiceDate)
	}
	c.UpdatedAt = now
	return c
}

func applyCountry(c model.Country, t model.Transaction, now time.Time) model.Country {
	if c.Country == "" {
		c = model.Country{Country: t.Country, CreatedAt: now}
	}
	c.TotalTransactions++
	c.TotalRevenue = c.TotalRevenue.Add(t.TotalAmount)
	c.FirstOrderDate, c.LastOrderDate = widen(c.FirstOrderDate, c.LastOrderDate, t.InvoiceDate)
	c.UpdatedAt = now
	return c
}

// widen returns the (first, last) pair extended to include d. Zero values count as unset.
func widen(first, last, d time.Time) (time.Time, time.Time) {
	if first.IsZero() || d.Before(first) {
		first = d
	}
	if last.IsZero() || d.After(last) {
		last = d
	}
	return first, last
}

// CustomerSegmentFor buckets a customer by total amount spent.
func CustomerSegmentFor(spent decimal.Decimal) model.CustomerSegment {
	switch {
	case spent.GreaterThanOrEqual(decimal.NewFromInt(constants.CustomerSegmentThresholdVip)):
		return model.CustomerSegmentVip
	case spent.GreaterThanOrEqual(decimal.NewFromInt(constants.CustomerSegmentThresholdHigh)):
		return model.CustomerSegmentHigh
	case spent.GreaterThanOrEqual(decimal.NewFromInt(constants.CustomerSegmentThresholdMedium)):
		return model.CustomerSegmentMedium
	case spent.IsPositive():
		return model.CustomerSegmentLow
	}
	return model.CustomerSegmentNew
}

// daysSince counts whole UTC calendar days between the last purchase and now.
func daysSince(last, now time.Time) *int64 {
	if last.IsZero() {
		return nil
	}
	l := last.UTC().Truncate(24 * time.Hour)
	n := now.UTC().Truncate(24 * time.Hour)
	d := int64(n.Sub(l).Hours() / 24)
	return &d
}
