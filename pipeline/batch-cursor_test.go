package pipeline

import (
	"context"
	"io"
	"io/ioutil"
	"strings"
	"testing"

	"github.com/relloyd/retail-loader/logger"
	"github.com/relloyd/retail-loader/model"
	"github.com/relloyd/retail-loader/source"
)

type fixedCheckpoint struct {
	cp model.BatchCheckpoint
}

func (f fixedCheckpoint) Checkpoint(ctx context.Context) (model.BatchCheckpoint, error) {
	return f.cp, nil
}

func rowsSource(t *testing.T, n int) source.Reader {
	var b strings.Builder
	b.WriteString("InvoiceNo,StockCode,Description,Quantity,InvoiceDate,UnitPrice,CustomerID,Country\n")
	for i := 0; i < n; i++ {
		b.WriteString("1,A,x,1,2011-01-01 10:00:00,1,1,UK\n")
	}
	data := b.String()
	s, err := source.NewCSVSource(source.CSVSourceConfig{
		Log:      logger.NewLogger("cursor-test", "error", true),
		Location: "rows.csv",
		Opener: func(ctx context.Context) (io.ReadCloser, error) {
			return ioutil.NopCloser(strings.NewReader(data)), nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestBatchCursorNext(t *testing.T) {
	src := rowsSource(t, 450)
	cases := []struct {
		offset int64
		want   model.BatchRange
	}{
		{0, model.BatchRange{Start: 1, End: 200, Number: 1}},
		{200, model.BatchRange{Start: 201, End: 400, Number: 2}},
		{400, model.BatchRange{Start: 401, End: 450, Number: 3, Last: true}},
		{450, model.BatchRange{Start: 451, End: 450, Number: 3, Last: true}},
	}
	for _, c := range cases {
		cur, err := NewBatchCursor(fixedCheckpoint{model.BatchCheckpoint{LastRowOffset: c.offset}}, src, 200)
		if err != nil {
			t.Fatal(err)
		}
		_, got, err := cur.Next(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if got != c.want {
			t.Fatalf("offset %v: expected: %+v; got: %+v", c.offset, c.want, got)
		}
	}
	cur, _ := NewBatchCursor(fixedCheckpoint{model.BatchCheckpoint{LastRowOffset: 451}}, src, 200)
	if _, _, err := cur.Next(context.Background()); err == nil {
		t.Fatal("expected an error for an offset past the end of the source")
	}
}

func TestBatchCursorForBatch(t *testing.T) {
	cur, err := NewBatchCursor(fixedCheckpoint{}, rowsSource(t, 45), 20)
	if err != nil {
		t.Fatal(err)
	}
	_, got, err := cur.ForBatch(context.Background(), 3)
	if err != nil {
		t.Fatal(err)
	}
	if want := (model.BatchRange{Start: 41, End: 45, Number: 3, Last: true}); got != want {
		t.Fatalf("expected: %+v; got: %+v", want, got)
	}
	if _, _, err := cur.ForBatch(context.Background(), 0); !IsConfigError(err) {
		t.Fatalf("expected a config error; got: %v", err)
	}
	if _, err := NewBatchCursor(fixedCheckpoint{}, rowsSource(t, 1), 0); !IsConfigError(err) {
		t.Fatalf("expected a config error; got: %v", err)
	}
}

func TestStateMachine(t *testing.T) {
	s := newStateMachine()
	if err := s.transition(StateCommitted); err == nil {
		t.Fatal("expected IDLE -> COMMITTED to be rejected")
	}
	for _, to := range []State{StateRunning, StateFailed, StateIdle, StateRunning, StateCommitted, StateIdle} {
		if err := s.transition(to); err != nil {
			t.Fatal(err)
		}
	}
	current, last := s.get()
	if current != StateIdle || last != StateCommitted {
		t.Fatalf("expected: IDLE and COMMITTED; got: %v and %v", current, last)
	}
}

func TestBatchErrorText(t *testing.T) {
	err := &BatchError{Stage: StageFacts, Range: model.BatchRange{Start: 1, End: 200, Number: 1}, Cause: io.EOF}
	if err.Error() != "batch 1 rows 1-200 failed at facts: EOF" {
		t.Fatalf("unexpected error text: %v", err)
	}
	if !IsBatchError(err) || IsConfigError(err) {
		t.Fatal("unexpected error classification")
	}
}
