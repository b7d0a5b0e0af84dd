package pipeline_test

import (
	"context"
	"errors"
	"io"
	"io/ioutil"
	"strings"
	"time"

	"github.com/golang/mock/gomock"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/relloyd/retail-loader/model"
	"github.com/relloyd/retail-loader/pipeline"
	"github.com/relloyd/retail-loader/source"
	"github.com/relloyd/retail-loader/source/mocks"
	"github.com/relloyd/retail-loader/stats"
	"github.com/relloyd/retail-loader/warehouse"
	"github.com/shopspring/decimal"
)

var _ = Describe("Controller", func() {
	var (
		ctx context.Context
		w   *warehouse.Memory
	)

	BeforeEach(func() {
		ctx = context.Background()
		w = newWarehouse()
	})

	Describe("a sale and a guest return", func() {
		It("loads two facts and aggregates them", func() {
			c := newController(w, csvSource(
				"INV1,SKU1,Lantern,3,2010-12-01 08:26:00,2.50,100,UK",
				"INV2,SKU1,Lantern,-1,2010-12-02 09:00:00,2.50,,UK",
			), 2)
			res, err := c.Advance(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.State).To(Equal(pipeline.StateCommitted))
			Expect(res.Range).To(Equal(model.BatchRange{Start: 1, End: 2, Number: 1, Last: true}))
			Expect(res.CheckpointAdvanced).To(BeTrue())

			s, err := w.Summary(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(s.TotalTransactions).To(BeEquivalentTo(2))
			Expect(s.TotalReturns).To(BeEquivalentTo(1))
			Expect(s.GuestTransactions).To(BeEquivalentTo(1))

			p, err := w.Product(ctx, "SKU1")
			Expect(err).NotTo(HaveOccurred())
			Expect(p.TotalQuantitySold).To(BeEquivalentTo(2))
			Expect(p.UniqueCustomers).To(BeEquivalentTo(1))

			countries, err := w.Countries(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(countries).To(HaveLen(1))
			Expect(countries[0].TotalOrders).To(BeEquivalentTo(2))
		})
	})

	Describe("a row with a non-numeric quantity", func() {
		It("is quarantined and the checkpoint still moves past it", func() {
			c := newController(w, csvSource(
				"INV1,SKU1,Lantern,3,2010-12-01 08:26:00,2.50,100,UK",
				"INV2,SKU2,Candle,abc,2010-12-01 08:26:00,1.00,100,UK",
				"INV3,SKU3,Mug,1,2010-12-01 08:26:00,4.00,100,UK",
			), 10)
			res, err := c.Advance(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Counts).To(Equal(componentsCounts(3, 2, 0, 1)))

			q, err := w.Quarantined(ctx, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(q).To(HaveLen(1))
			Expect(q[0].Reason).To(Equal(model.QuarantineReasonInvalidNumber))
			Expect(q[0].RowIndex).To(BeEquivalentTo(2))

			_, err = w.Product(ctx, "SKU2")
			Expect(errors.Is(err, warehouse.ErrNotFound)).To(BeTrue())

			cp, err := w.Checkpoint(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(cp.LastRowOffset).To(BeEquivalentTo(3))
		})
	})

	Describe("checkpoint progress", func() {
		It("is monotonic and contiguous", func() {
			c := newController(w, csvSource(retailLines()...), 4)
			var last model.BatchCheckpoint
			for i := 1; ; i++ {
				res, err := c.Advance(ctx)
				Expect(err).NotTo(HaveOccurred())
				if res.NoRowsRemaining {
					break
				}
				cp, err := w.Checkpoint(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(res.Range.Start).To(Equal(last.LastRowOffset + 1))
				Expect(cp.LastRowOffset).To(Equal(res.Range.End))
				Expect(cp.BatchSequence).To(BeEquivalentTo(i))
				Expect(cp.Version).To(Equal(last.Version + 1))
				Expect(res.Range.Number).To(BeEquivalentTo(i))
				last = cp
			}
			Expect(last.LastRowOffset).To(BeEquivalentTo(len(retailLines())))
		})

		It("reports no rows remaining for an empty file", func() {
			c := newController(w, csvSource(), 10)
			res, err := c.Advance(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.NoRowsRemaining).To(BeTrue())
			Expect(res.State).To(Equal(pipeline.StateIdle))
		})
	})

	Describe("reprocessing", func() {
		It("leaves everything unchanged when a committed batch runs again", func() {
			c := newController(w, csvSource(retailLines()...), 5)
			runToEnd(c)
			before := dimensionsJSON(w)
			summaryBefore, _ := w.Summary(ctx)
			cpBefore, _ := w.Checkpoint(ctx)

			res, err := c.ProcessBatch(ctx, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.State).To(Equal(pipeline.StateCommitted))
			Expect(res.CheckpointAdvanced).To(BeFalse())
			Expect(res.Counts.Inserted).To(BeZero())
			Expect(res.Counts.AlreadyPresent).To(BeEquivalentTo(5))

			Expect(dimensionsJSON(w)).To(Equal(before))
			summaryAfter, _ := w.Summary(ctx)
			Expect(summaryAfter.TotalTransactions).To(Equal(summaryBefore.TotalTransactions))
			Expect(summaryAfter.StagedRows).To(Equal(summaryBefore.StagedRows))
			Expect(summaryAfter.QuarantinedRows).To(Equal(summaryBefore.QuarantinedRows))
			cpAfter, _ := w.Checkpoint(ctx)
			Expect(cpAfter).To(Equal(cpBefore))
		})

		It("does not move the checkpoint for a batch beyond the next one", func() {
			c := newController(w, csvSource(retailLines()...), 5)
			res, err := c.ProcessBatch(ctx, 3)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Range.Start).To(BeEquivalentTo(11))
			Expect(res.CheckpointAdvanced).To(BeFalse())
			cp, _ := w.Checkpoint(ctx)
			Expect(cp.LastRowOffset).To(BeZero())
			// The gap is filled by the normal sequence and batch 3 then adds nothing new.
			runToEnd(c)
			s, _ := w.Summary(ctx)
			Expect(s.TotalTransactions + s.QuarantinedRows).To(BeEquivalentTo(len(retailLines())))
		})

		It("reports no rows for a batch past the end of the file", func() {
			c := newController(w, csvSource(retailLines()...), 5)
			res, err := c.ProcessBatch(ctx, 100)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.NoRowsRemaining).To(BeTrue())
		})
	})

	Describe("conservation", func() {
		It("accounts for every source row exactly once", func() {
			c := newController(w, csvSource(retailLines()...), 3)
			runToEnd(c)
			s, err := w.Summary(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(s.TotalTransactions + s.QuarantinedRows).To(BeEquivalentTo(len(retailLines())))
			Expect(s.QuarantinedRows).To(BeEquivalentTo(3))
			Expect(s.StagedRows).To(Equal(s.TotalTransactions))
		})
	})

	Describe("batch size", func() {
		It("does not change the aggregates", func() {
			var reference string
			for _, size := range []int64{1, 2, 7, 1000} {
				wh := newWarehouse()
				runToEnd(newController(wh, csvSource(retailLines()...), size))
				got := dimensionsJSON(wh)
				if reference == "" {
					reference = got
					continue
				}
				Expect(got).To(Equal(reference), "batch size %v", size)
			}
		})
	})

	Describe("a failure after facts are loaded", func() {
		It("keeps no partial effects and the retry matches a clean run", func() {
			lines := retailLines()
			// One batch holds every row, including the three bad ones at the end.
			c := newController(w, csvSource(lines...), 30)
			w.FailAt("PutCustomers", errors.New("connection reset"))

			res, err := c.Advance(ctx)
			Expect(err).To(HaveOccurred())
			Expect(pipeline.IsBatchError(err)).To(BeTrue())
			var berr *pipeline.BatchError
			Expect(errors.As(err, &berr)).To(BeTrue())
			Expect(berr.Stage).To(Equal(pipeline.StageDimensions))
			Expect(res.State).To(Equal(pipeline.StateFailed))
			Expect(c.State()).To(Equal(pipeline.StateIdle))

			s, _ := w.Summary(ctx)
			Expect(s.TotalTransactions).To(BeZero())
			Expect(s.StagedRows).To(BeZero())
			Expect(s.TotalProducts).To(BeZero())
			cp, _ := w.Checkpoint(ctx)
			Expect(cp.LastRowOffset).To(BeZero())

			// Rejected rows were committed on their own and survive the failed batch.
			Expect(s.QuarantinedRows).To(BeEquivalentTo(3))
			q, err := w.Quarantined(ctx, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(q).To(HaveLen(3))
			Expect(q[0].RowIndex).To(BeEquivalentTo(len(lines) - 2))
			Expect(q[0].Reason).To(Equal(model.QuarantineReasonInvalidNumber))
			Expect(q[1].RowIndex).To(BeEquivalentTo(len(lines) - 1))
			Expect(q[1].Reason).To(Equal(model.QuarantineReasonNegativePrice))

			status, err := c.Status(ctx, 5)
			Expect(err).NotTo(HaveOccurred())
			Expect(status.LastResult).To(Equal(pipeline.StateFailed))
			Expect(status.RecentRuns).To(HaveLen(2))
			Expect(status.RecentRuns[0].Status).To(Equal(model.BatchStatusFailed))
			Expect(status.RecentRuns[0].ErrorMessage).To(ContainSubstring("connection reset"))
			Expect(status.RecentRuns[1].Status).To(Equal(model.BatchStatusStarted))

			w.FailAt("PutCustomers", nil)
			Expect(runToEnd(c)).To(Equal(1))

			s, _ = w.Summary(ctx)
			Expect(s.QuarantinedRows).To(BeEquivalentTo(3))
			Expect(s.TotalTransactions + s.QuarantinedRows).To(BeEquivalentTo(len(lines)))
			retried, err := w.Quarantined(ctx, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(retried).To(HaveLen(3))
			for i := range retried {
				Expect(retried[i].RowIndex).To(Equal(q[i].RowIndex))
			}

			clean := newWarehouse()
			runToEnd(newController(clean, csvSource(lines...), 30))
			Expect(dimensionsJSON(w)).To(Equal(dimensionsJSON(clean)))
		})

		It("records a failed run when the source cannot be read before the range is known", func() {
			broken := true
			data := csvHeader + "INV1,SKU1,Lantern,3,2010-12-01 08:26:00,2.50,100,UK\n"
			src, err := source.NewCSVSource(source.CSVSourceConfig{
				Log:      testLog,
				Location: "online_retail.csv",
				Opener: func(ctx context.Context) (io.ReadCloser, error) {
					if broken {
						return nil, errors.New("no such bucket")
					}
					return ioutil.NopCloser(strings.NewReader(data)), nil
				},
			})
			Expect(err).NotTo(HaveOccurred())
			c := newController(w, src, 10)

			res, err := c.Advance(ctx)
			var berr *pipeline.BatchError
			Expect(errors.As(err, &berr)).To(BeTrue())
			Expect(berr.Stage).To(Equal(pipeline.StageCursor))
			Expect(res.State).To(Equal(pipeline.StateFailed))
			Expect(res.Entry.Status).To(Equal(model.BatchStatusFailed))
			Expect(c.State()).To(Equal(pipeline.StateIdle))

			status, err := c.Status(ctx, 5)
			Expect(err).NotTo(HaveOccurred())
			Expect(status.LastResult).To(Equal(pipeline.StateFailed))
			Expect(status.RecentRuns).To(HaveLen(1))
			Expect(status.RecentRuns[0].Status).To(Equal(model.BatchStatusFailed))
			Expect(status.RecentRuns[0].BatchSequence).To(BeEquivalentTo(1))
			Expect(status.RecentRuns[0].StartRow).To(BeZero())
			Expect(status.RecentRuns[0].ErrorMessage).To(ContainSubstring("no such bucket"))
			Expect(status.Checkpoint.LastRowOffset).To(BeZero())

			broken = false
			Expect(runToEnd(c)).To(Equal(1))
			// The lock was released after the failure.
			Expect(w.AcquireLock(ctx, "someone-else", time.Minute)).To(Succeed())
		})

		It("fails when the commit itself fails", func() {
			c := newController(w, csvSource(retailLines()...), 10)
			w.FailAt("Commit", errors.New("disk full"))
			_, err := c.Advance(ctx)
			Expect(err).To(HaveOccurred())
			cp, _ := w.Checkpoint(ctx)
			Expect(cp.LastRowOffset).To(BeZero())
		})
	})

	Describe("locking", func() {
		It("refuses to run while another owner holds the warehouse lock but still reports status", func() {
			Expect(w.AcquireLock(ctx, "someone-else", time.Minute)).To(Succeed())
			c := newController(w, csvSource(retailLines()...), 10)
			_, err := c.Advance(ctx)
			Expect(errors.Is(err, warehouse.ErrLockHeld)).To(BeTrue())

			status, err := c.Status(ctx, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(status.State).To(Equal(pipeline.StateIdle))
			Expect(status.RecentRuns).To(BeEmpty())

			Expect(w.ReleaseLock(ctx, "someone-else")).To(Succeed())
			_, err = c.Advance(ctx)
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Describe("with a mocked source", func() {
		var (
			ctrl *gomock.Controller
			src  *mocks.MockReader
		)

		BeforeEach(func() {
			ctrl = gomock.NewController(GinkgoT())
			src = mocks.NewMockReader(ctrl)
			src.EXPECT().Name().Return("online_retail.csv").AnyTimes()
			src.EXPECT().Count(gomock.Any()).Return(int64(5), nil).AnyTimes()
		})

		AfterEach(func() {
			ctrl.Finish()
		})

		It("turns a panic into a failed batch and releases the lock", func() {
			src.EXPECT().ReadRange(gomock.Any(), int64(1), int64(5)).DoAndReturn(
				func(ctx context.Context, start, end int64) ([]model.SourceRow, error) {
					panic("boom")
				})
			c := newController(w, src, 10)
			res, err := c.Advance(ctx)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("panic: boom"))
			Expect(res.State).To(Equal(pipeline.StateFailed))
			Expect(w.AcquireLock(ctx, "someone-else", time.Minute)).To(Succeed())
		})

		It("fails the batch when it runs past its timeout", func() {
			src.EXPECT().ReadRange(gomock.Any(), int64(1), int64(5)).DoAndReturn(
				func(ctx context.Context, start, end int64) ([]model.SourceRow, error) {
					<-ctx.Done()
					return nil, ctx.Err()
				})
			c, err := pipeline.NewController(pipeline.Config{
				Log: testLog, PipelineName: "TEST", BatchSize: 10, Source: src, Warehouse: w,
				Timeout: 50 * time.Millisecond, Clock: func() time.Time { return fixedNow },
			})
			Expect(err).NotTo(HaveOccurred())
			_, err = c.Advance(ctx)
			Expect(errors.Is(err, context.DeadlineExceeded)).To(BeTrue())
			snap, _ := w.Snapshot(ctx, 1)
			Expect(snap.RecentRuns[0].Status).To(Equal(model.BatchStatusFailed))
		})

		It("fails when the source returns fewer rows than the range", func() {
			src.EXPECT().ReadRange(gomock.Any(), int64(1), int64(5)).Return([]model.SourceRow{{RowIndex: 1}}, nil)
			c := newController(w, src, 10)
			_, err := c.Advance(ctx)
			var berr *pipeline.BatchError
			Expect(errors.As(err, &berr)).To(BeTrue())
			Expect(berr.Stage).To(Equal(pipeline.StageRead))
		})
	})

	Describe("configuration", func() {
		It("rejects a batch size below one", func() {
			_, err := pipeline.NewController(pipeline.Config{
				Log: testLog, PipelineName: "TEST", BatchSize: 0, Source: csvSource(), Warehouse: w,
			})
			Expect(pipeline.IsConfigError(err)).To(BeTrue())
		})

		It("rejects batch number zero", func() {
			_, err := newController(w, csvSource(), 10).ProcessBatch(ctx, 0)
			Expect(pipeline.IsConfigError(err)).To(BeTrue())
		})

		It("records metrics for each batch", func() {
			m := stats.NewMetrics()
			c, err := pipeline.NewController(pipeline.Config{
				Log: testLog, PipelineName: "TEST", BatchSize: 10, Source: csvSource(retailLines()...), Warehouse: w, Metrics: m,
			})
			Expect(err).NotTo(HaveOccurred())
			runToEnd(c)
			families, err := m.Registry().Gather()
			Expect(err).NotTo(HaveOccurred())
			names := make([]string, 0)
			for _, f := range families {
				names = append(names, f.GetName())
			}
			Expect(names).To(ContainElement("retail_loader_batches_total"))
			Expect(names).To(ContainElement("retail_loader_stage_duration_seconds"))
		})
	})

	Describe("money", func() {
		It("keeps exact totals", func() {
			c := newController(w, csvSource(
				"1,A,x,3,2011-01-01 10:00:00,0.10,1,UK",
				"2,A,x,3,2011-01-01 10:00:00,0.20,1,UK",
			), 1)
			runToEnd(c)
			p, _ := w.Product(ctx, "A")
			Expect(p.TotalRevenue.Equal(decimal.RequireFromString("0.9"))).To(BeTrue())
			Expect(p.AverageUnitPrice.String()).To(Equal("0.15"))
		})
	})
})
