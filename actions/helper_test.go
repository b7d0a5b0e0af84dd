package actions

import (
	"fmt"
	"io/ioutil"
	"path/filepath"
	"sort"
	"testing"

	"github.com/relloyd/retail-loader/constants"
	"github.com/relloyd/retail-loader/rdbms/shared"
)

// Rows 1-3 are valid; row 4 has a negative price.
const testRetailCSV = "InvoiceNo,StockCode,Description,Quantity,InvoiceDate,UnitPrice,CustomerID,Country\r\n" +
	"536365,85123A,WHITE HANGING HEART,6,2010-12-01 08:26:00,2.55,17850,United Kingdom\r\n" +
	"536365,71053,WHITE METAL LANTERN,6,2010-12-01 08:26:00,3.39,17850,United Kingdom\r\n" +
	"C536379,D,Discount,-1,2010-12-01 09:41:00,27.50,14527,United Kingdom\r\n" +
	"536366,22633,HAND WARMER,6,2010-12-01 08:28:00,-1.00,17850,United Kingdom\r\n"

// mapConnections is an in-memory ConnectionLister.
type mapConnections map[string]shared.ConnectionDetails

func (m mapConnections) LoadConnection(name string) (shared.ConnectionDetails, error) {
	c, ok := m[name]
	if !ok {
		return shared.ConnectionDetails{}, fmt.Errorf("connection %q not found", name)
	}
	return c, nil
}

func (m mapConnections) GetAllKeys() ([]string, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// newTestFixture writes the retail CSV to a temp dir and returns its path plus a connection set
// holding a "local" warehouse called "wh" in the same dir.
func newTestFixture(t *testing.T) (csvPath string, whPath string, conns mapConnections) {
	dir := t.TempDir()
	csvPath = filepath.Join(dir, "online_retail.csv")
	if err := ioutil.WriteFile(csvPath, []byte(testRetailCSV), 0600); err != nil {
		t.Fatal(err)
	}
	whPath = filepath.Join(dir, "warehouse.json")
	conns = mapConnections{
		"wh": {
			Type:        constants.ConnectionTypeLocal,
			LogicalName: "wh",
			Data:        map[string]string{localConnectionKeyPath: whPath},
		},
	}
	return
}
