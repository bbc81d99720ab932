package reconciliation

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"futures-terminal/internal/state"
)

// Mode names the path a reconciliation pass took.
type Mode string

const (
	ModeIntelligent Mode = "intelligent"
	ModeFullRebuild Mode = "full_rebuild"
)

// Source is the read side of an exchange account.
type Source interface {
	Account(ctx context.Context) (state.Account, error)
	Positions(ctx context.Context) ([]state.Position, error)
	OpenOrders(ctx context.Context, symbol string) ([]state.OpenOrder, error)
}

// Snapshot is one consistent fetch of account, positions and orders.
type Snapshot struct {
	Account   state.Account
	Positions []state.Position
	Orders    []state.OpenOrder
	FetchedAt time.Time
}

// Fetch loads the three parts of a snapshot concurrently. Any failure fails
// the whole snapshot; a partial snapshot would look like drift.
func Fetch(ctx context.Context, src Source) (Snapshot, error) {
	var snap Snapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a, err := src.Account(gctx)
		if err != nil {
			return errors.Wrap(err, "fetch account")
		}
		snap.Account = a
		return nil
	})
	g.Go(func() error {
		ps, err := src.Positions(gctx)
		if err != nil {
			return errors.Wrap(err, "fetch positions")
		}
		snap.Positions = ps
		return nil
	})
	g.Go(func() error {
		os, err := src.OpenOrders(gctx, "")
		if err != nil {
			return errors.Wrap(err, "fetch open orders")
		}
		snap.Orders = os
		return nil
	})
	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}
	snap.FetchedAt = time.Now()
	return snap, nil
}

// Report describes what a pass changed.
type Report struct {
	Mode             Mode          `json:"mode"`
	Positions        int           `json:"positions"`
	Orders           int           `json:"orders"`
	AddedPositions   []string      `json:"added_positions,omitempty"`
	RemovedPositions []string      `json:"removed_positions,omitempty"`
	AddedOrders      []int64       `json:"added_orders,omitempty"`
	RemovedOrders    []int64       `json:"removed_orders,omitempty"`
	Duration         time.Duration `json:"duration"`
	AppliedAt        time.Time     `json:"applied_at"`
}

// Reconciler applies snapshots to the local store. It runs on the engine
// loop and is not safe for concurrent use.
type Reconciler struct {
	store *state.Store
	log   *zap.Logger
	now   func() time.Time
}

// NewReconciler binds a reconciler to store.
func NewReconciler(store *state.Store, log *zap.Logger) *Reconciler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{store: store, log: log.Named("reconcile"), now: time.Now}
}

// Apply patches the store in place when the position keys and order IDs are
// unchanged, and rebuilds it otherwise. Selection survives both paths.
// Derived account fields are recomputed after the position list is complete.
func (r *Reconciler) Apply(snap Snapshot) Report {
	start := r.now()
	positions := openPositions(snap.Positions)

	report := Report{Positions: len(positions), Orders: len(snap.Orders)}
	report.AddedPositions, report.RemovedPositions = diffKeys(r.store.PositionKeys(), positionKeys(positions))
	report.AddedOrders, report.RemovedOrders = diffIDs(r.store.OrderIDs(), orderIDs(snap.Orders))

	r.store.SetAccount(snap.Account)
	if len(report.AddedPositions)+len(report.RemovedPositions)+len(report.AddedOrders)+len(report.RemovedOrders) == 0 {
		report.Mode = ModeIntelligent
		r.store.Patch(positions, snap.Orders)
	} else {
		report.Mode = ModeFullRebuild
		r.store.Replace(positions, snap.Orders, r.store.SelectedPositionKeys(), r.store.SelectedOrderIDs())
		r.log.Info("full rebuild",
			zap.Strings("added_positions", report.AddedPositions),
			zap.Strings("removed_positions", report.RemovedPositions),
			zap.Int64s("added_orders", report.AddedOrders),
			zap.Int64s("removed_orders", report.RemovedOrders))
	}
	r.store.RecomputeDerived()

	report.AppliedAt = r.now()
	report.Duration = report.AppliedAt.Sub(start)
	return report
}

func openPositions(ps []state.Position) []state.Position {
	out := make([]state.Position, 0, len(ps))
	for _, p := range ps {
		if p.Amount != 0 {
			out = append(out, p)
		}
	}
	return out
}

func positionKeys(ps []state.Position) map[string]struct{} {
	out := make(map[string]struct{}, len(ps))
	for i := range ps {
		out[ps[i].Key()] = struct{}{}
	}
	return out
}

func orderIDs(os []state.OpenOrder) map[int64]struct{} {
	out := make(map[int64]struct{}, len(os))
	for _, o := range os {
		out[o.OrderID] = struct{}{}
	}
	return out
}

func diffKeys(old, fresh map[string]struct{}) (added, removed []string) {
	for k := range fresh {
		if _, ok := old[k]; !ok {
			added = append(added, k)
		}
	}
	for k := range old {
		if _, ok := fresh[k]; !ok {
			removed = append(removed, k)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	return added, removed
}

func diffIDs(old, fresh map[int64]struct{}) (added, removed []int64) {
	for id := range fresh {
		if _, ok := old[id]; !ok {
			added = append(added, id)
		}
	}
	for id := range old {
		if _, ok := fresh[id]; !ok {
			removed = append(removed, id)
		}
	}
	sort.Slice(added, func(i, j int) bool { return added[i] < added[j] })
	sort.Slice(removed, func(i, j int) bool { return removed[i] < removed[j] })
	return added, removed
}
