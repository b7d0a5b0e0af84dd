package actions

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"
)

func TestRunQuarantineWritesCSV(t *testing.T) {
	csvPath, _, conns := newTestFixture(t)
	cfg := newTestLoadConfig(csvPath, conns, &bytes.Buffer{})
	cfg.BatchSize = 10
	if _, err := RunLoad(context.Background(), cfg); err != nil {
		t.Fatal(err)
	}
	out := &bytes.Buffer{}
	err := RunQuarantine(context.Background(), &QuarantineConfig{Connections: conns, WarehouseName: "wh", PrintHeader: true, LogLevel: "error", Out: out})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	records, err := csv.NewReader(out).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("expected a header and one row; got: %v", records)
	}
	if records[0][0] != "file" || records[1][0] != "online_retail.csv" || records[1][1] != "4" || records[1][2] != "NEGATIVE_PRICE" {
		t.Fatalf("unexpected quarantine output: %v", records)
	}
	if records[1][5] != "1" {
		t.Fatalf("expected batch 1; got: %v", records[1][5])
	}
}
