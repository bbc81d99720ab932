package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"futures-terminal/internal/conditional"
	"futures-terminal/internal/order"
	"futures-terminal/internal/reconciliation"
	"futures-terminal/internal/trailing"
	"futures-terminal/pkg/db"
	"futures-terminal/pkg/exchanges/common"
)

func openDB(t *testing.T) *db.Database {
	t.Helper()
	d, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestJournalRecordsEverything(t *testing.T) {
	d := openDB(t)
	j := NewJournal(d, "main", true, zaptest.NewLogger(t))

	j.RecordReconcile(reconciliation.Report{
		Mode: reconciliation.ModeFullRebuild, Positions: 2, Orders: 3,
		AddedPositions: []string{"BTCUSDT:BOTH"}, RemovedOrders: []int64{9},
		Duration: 12 * time.Millisecond,
	})
	j.RecordTransitions([]conditional.Transition{
		{OrderID: 1, Symbol: "BTCUSDT", Category: conditional.ClosePosition, From: conditional.StatusPending, To: conditional.StatusTriggered},
		{OrderID: 2, Symbol: "ETHUSDT", Category: conditional.AddPosition, From: conditional.StatusPending, To: conditional.StatusCancelled},
	})
	j.RecordTrailing(trailing.Result{Symbol: "BTCUSDT", PositionSide: common.PositionSideBoth, OldOrderID: 1, NewOrderID: 2,
		CallbackRate: 2, ActivationPrice: 103, CancelError: "unknown order"})
	j.RecordBatch(order.BatchResult{Operation: "cancel_orders", Succeeded: 1, Failed: 1,
		Items: []order.BatchItem{{Key: "BTCUSDT#1"}, {Key: "BTCUSDT#2", Error: "boom"}}})

	require.NoError(t, j.Close())

	ctx := context.Background()
	counts, err := d.JournalCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, db.Counts{Reports: 1, Transitions: 2, Trailing: 1, Batches: 1}, counts)

	reports, err := d.RecentReports(ctx, "main", 10)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, "full_rebuild", reports[0].Mode)
	assert.JSONEq(t, `{"positions":["BTCUSDT:BOTH"]}`, reports[0].Added)
	assert.JSONEq(t, `{"orders":[9]}`, reports[0].Removed)

	conv, err := d.TrailingConversions(ctx, "main")
	require.NoError(t, err)
	require.Len(t, conv, 1)
	assert.Equal(t, "unknown order", conv[0].CancelError)

	m := j.Metrics()
	assert.Equal(t, uint64(5), m.TotalWrites)
	assert.Zero(t, m.TotalErrors)
}

func TestNilJournalIsNoop(t *testing.T) {
	t.Parallel()
	var j *Journal
	j.RecordReconcile(reconciliation.Report{})
	j.RecordBatch(order.BatchResult{})
	assert.NoError(t, j.Flush())
	assert.NoError(t, j.Close())
	assert.Zero(t, j.Metrics().TotalWrites)
}

func TestBatchWriterRollsBackFailedBatch(t *testing.T) {
	d := openDB(t)
	bw := NewBatchWriter(d.DB, 10, time.Hour, zaptest.NewLogger(t))
	defer bw.Close()

	bw.WriteQuery("batch_results", db.InsertBatchResult, "main", "close_all", 1, 0, "[]")
	bw.WriteQuery("nope", "INSERT INTO missing_table VALUES (1)")
	assert.Equal(t, 2, bw.Pending())

	err := bw.Flush()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "journal write to nope")
	assert.Zero(t, bw.Pending())
	assert.Equal(t, uint64(1), bw.Metrics().TotalErrors)

	counts, err := d.JournalCounts(context.Background())
	require.NoError(t, err)
	assert.Zero(t, counts.Batches, "the whole batch rolls back")
}

func TestBatchWriterFlushesAtMaxSize(t *testing.T) {
	d := openDB(t)
	bw := NewBatchWriter(d.DB, 2, time.Hour, zaptest.NewLogger(t))
	defer bw.Close()

	bw.WriteQuery("batch_results", db.InsertBatchResult, "main", "cancel_all", 1, 0, "[]")
	bw.WriteQuery("batch_results", db.InsertBatchResult, "main", "cancel_all", 2, 0, "[]")
	assert.Zero(t, bw.Pending())
	assert.Equal(t, 2, bw.Metrics().LastBatchSize)
}
