package conditional

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"futures-terminal/internal/state"
	"futures-terminal/pkg/exchanges/common"
)

// SyncResult summarises one reconciliation pass over the records.
type SyncResult struct {
	Added       []Record     `json:"added"`
	Removed     []Record     `json:"removed"`
	Transitions []Transition `json:"transitions"`
}

// Changed reports whether the pass altered anything.
func (r SyncResult) Changed() bool {
	return len(r.Added) > 0 || len(r.Removed) > 0 || len(r.Transitions) > 0
}

// Monitor holds the conditional order records of one account. Like the state
// store it is owned by the engine loop and carries no locks.
type Monitor struct {
	records map[string]*Record
	log     *zap.Logger
	now     func() time.Time
}

// NewMonitor returns an empty monitor.
func NewMonitor(log *zap.Logger) *Monitor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Monitor{
		records: make(map[string]*Record),
		log:     log.Named("conditional"),
		now:     time.Now,
	}
}

// Track registers a locally submitted conditional order before the exchange
// acknowledges it. Non-conditional types are ignored and return nil.
func (m *Monitor) Track(req common.OrderRequest, desc string) *Record {
	if !req.Type.IsConditional() {
		return nil
	}
	now := m.now()
	r := &Record{
		ID:              uuid.NewString(),
		ClientID:        req.ClientID,
		Symbol:          req.Symbol,
		Side:            req.Side,
		Type:            req.Type,
		Quantity:        req.Qty,
		StopPrice:       req.StopPrice,
		ActivationPrice: req.ActivationPrice,
		CallbackRate:    req.CallbackRate,
		ReduceOnly:      req.ReduceOnly,
		ClosePosition:   req.ClosePosition,
		PositionSide:    req.PositionSide,
		Category:        Classify(req.ReduceOnly || state.HedgeClose(req.Side, req.PositionSide), req.ClosePosition),
		Status:          StatusPending,
		Description:     desc,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	m.records[r.ID] = r
	return r
}

// Confirm attaches the exchange order ID to a tracked record.
func (m *Monitor) Confirm(id string, orderID int64) bool {
	r, ok := m.records[id]
	if !ok {
		return false
	}
	r.OrderID = orderID
	r.UpdatedAt = m.now()
	return true
}

// Discard drops a record, e.g. when submission failed.
func (m *Monitor) Discard(id string) {
	delete(m.records, id)
}

// Sync aligns the records with the live open orders. Confirmed records whose
// order is gone are removed; untracked live conditional orders are added.
// Records not yet confirmed are kept until a live order with the same client
// ID shows up or they are discarded.
func (m *Monitor) Sync(orders []*state.OpenOrder) SyncResult {
	var res SyncResult
	now := m.now()

	byOrder := make(map[int64]*Record, len(m.records))
	byClient := make(map[string]*Record)
	for _, r := range m.records {
		if r.Confirmed() {
			byOrder[r.OrderID] = r
		} else if r.ClientID != "" {
			byClient[r.ClientID] = r
		}
	}

	live := make(map[int64]struct{}, len(orders))
	for _, o := range orders {
		if !o.Type.IsConditional() {
			continue
		}
		live[o.OrderID] = struct{}{}

		r, ok := byOrder[o.OrderID]
		if !ok {
			if r, ok = byClient[o.ClientID]; ok && o.ClientID != "" {
				delete(byClient, o.ClientID)
			} else {
				r = &Record{ID: uuid.NewString(), Status: StatusPending, CreatedAt: now}
				m.records[r.ID] = r
				ok = false
			}
		}
		r.fill(o)
		r.UpdatedAt = now
		if !ok {
			res.Added = append(res.Added, *r)
		}

		next := MapStatus(o.Status)
		if next == r.Status {
			continue
		}
		if !CanTransition(r.Status, next) {
			m.log.Warn("illegal status change ignored",
				zap.Int64("order_id", o.OrderID),
				zap.String("from", string(r.Status)),
				zap.String("to", string(next)))
			continue
		}
		res.Transitions = append(res.Transitions, Transition{
			RecordID: r.ID, OrderID: r.OrderID, Symbol: r.Symbol, Category: r.Category,
			From: r.Status, To: next,
		})
		r.Status = next
	}

	for id, r := range m.records {
		if !r.Confirmed() {
			continue
		}
		if _, ok := live[r.OrderID]; ok && !r.Status.Terminal() {
			continue
		}
		res.Removed = append(res.Removed, *r)
		delete(m.records, id)
	}
	sortRecords(res.Added)
	sortRecords(res.Removed)

	if res.Changed() {
		m.log.Debug("conditional records synced",
			zap.Int("added", len(res.Added)),
			zap.Int("removed", len(res.Removed)),
			zap.Int("transitions", len(res.Transitions)))
	}
	return res
}

// Conditional lists add-position records, the conditional-order view.
func (m *Monitor) Conditional() []Record { return m.list(AddPosition) }

// ReduceOnly lists close-position records, the reduce-only view.
func (m *Monitor) ReduceOnly() []Record { return m.list(ClosePosition) }

// Records lists every record.
func (m *Monitor) Records() []Record { return m.list("") }

// Len is the number of records.
func (m *Monitor) Len() int { return len(m.records) }

// Reset drops every record; used when the account changes.
func (m *Monitor) Reset() {
	m.records = make(map[string]*Record)
}

func (m *Monitor) list(c Category) []Record {
	out := make([]Record, 0, len(m.records))
	for _, r := range m.records {
		if c == "" || r.Category == c {
			out = append(out, *r)
		}
	}
	sortRecords(out)
	return out
}

func sortRecords(rs []Record) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].Symbol != rs[j].Symbol {
			return rs[i].Symbol < rs[j].Symbol
		}
		if rs[i].OrderID != rs[j].OrderID {
			return rs[i].OrderID < rs[j].OrderID
		}
		return rs[i].ID < rs[j].ID
	})
}
