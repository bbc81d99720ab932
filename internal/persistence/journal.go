package persistence

import (
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"futures-terminal/internal/conditional"
	"futures-terminal/internal/order"
	"futures-terminal/internal/reconciliation"
	"futures-terminal/internal/trailing"
	"futures-terminal/pkg/db"
)

// Journal records engine activity for one account. A nil *Journal is a
// valid no-op, used when no journal path is configured.
type Journal struct {
	w       *BatchWriter
	account string
	testnet bool
	log     *zap.Logger
}

// NewJournal starts a batched journal on d.
func NewJournal(d *db.Database, account string, testnet bool, log *zap.Logger) *Journal {
	if log == nil {
		log = zap.NewNop()
	}
	return &Journal{
		w:       NewBatchWriter(d.DB, 50, time.Second, log),
		account: account,
		testnet: testnet,
		log:     log.Named("journal"),
	}
}

type reconcileKeys struct {
	Positions []string `json:"positions,omitempty"`
	Orders    []int64  `json:"orders,omitempty"`
}

// RecordReconcile queues one reconciliation report.
func (j *Journal) RecordReconcile(r reconciliation.Report) {
	if j == nil {
		return
	}
	added := j.encode(reconcileKeys{Positions: r.AddedPositions, Orders: r.AddedOrders})
	removed := j.encode(reconcileKeys{Positions: r.RemovedPositions, Orders: r.RemovedOrders})
	j.w.WriteQuery("reconcile_reports", db.InsertReconcileReport,
		j.account, string(r.Mode), r.Positions, r.Orders, added, removed, r.Duration.Milliseconds())
}

// RecordTransitions queues conditional record status changes.
func (j *Journal) RecordTransitions(ts []conditional.Transition) {
	if j == nil {
		return
	}
	for _, t := range ts {
		j.w.WriteQuery("conditional_transitions", db.InsertConditionalTransition,
			j.account, t.OrderID, t.Symbol, string(t.Category), string(t.From), string(t.To))
	}
}

// RecordTrailing queues one trailing conversion.
func (j *Journal) RecordTrailing(r trailing.Result) {
	if j == nil {
		return
	}
	j.w.WriteQuery("trailing_conversions", db.InsertTrailingConversion,
		j.account, r.Symbol, string(r.PositionSide), r.OldOrderID, r.NewOrderID,
		r.CallbackRate, r.ActivationPrice, r.CancelError, j.testnet)
}

// RecordBatch queues one batch operation result with its items.
func (j *Journal) RecordBatch(r order.BatchResult) {
	if j == nil {
		return
	}
	j.w.WriteQuery("batch_results", db.InsertBatchResult,
		j.account, r.Operation, r.Succeeded, r.Failed, j.encode(r.Items))
}

// Flush writes everything queued so far.
func (j *Journal) Flush() error {
	if j == nil {
		return nil
	}
	return j.w.Flush()
}

// Metrics exposes the writer counters.
func (j *Journal) Metrics() BatchWriterMetrics {
	if j == nil {
		return BatchWriterMetrics{}
	}
	return j.w.Metrics()
}

// Close flushes and stops the writer. The database stays open.
func (j *Journal) Close() error {
	if j == nil {
		return nil
	}
	return j.w.Close()
}

func (j *Journal) encode(v any) string {
	s, err := sonic.MarshalString(v)
	if err != nil {
		j.log.Warn("encode journal column", zap.Error(err))
		return ""
	}
	return s
}
