package state

import (
	"sort"
)

// Store is the local view of account, positions and orders. It has no locks:
// the engine loop is its only user.
type Store struct {
	account    Account
	positions  []*Position
	orders     []*OpenOrder
	posIndex   map[string]*Position
	orderIndex map[int64]*OpenOrder
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		posIndex:   make(map[string]*Position),
		orderIndex: make(map[int64]*OpenOrder),
	}
}

// Account returns the account projection.
func (s *Store) Account() Account { return s.account }

// SetAccount replaces exchange-owned account fields and keeps derived ones.
func (s *Store) SetAccount(a Account) {
	used := s.account.UsedMargin
	s.account = a
	s.account.UsedMargin = used
}

// Positions returns the live position objects in display order.
func (s *Store) Positions() []*Position { return s.positions }

// Orders returns the live order objects in display order.
func (s *Store) Orders() []*OpenOrder { return s.orders }

// Position looks up a position by key.
func (s *Store) Position(key string) (*Position, bool) {
	p, ok := s.posIndex[key]
	return p, ok
}

// Order looks up an order by exchange ID.
func (s *Store) Order(id int64) (*OpenOrder, bool) {
	o, ok := s.orderIndex[id]
	return o, ok
}

// PositionKeys returns the set of position keys.
func (s *Store) PositionKeys() map[string]struct{} {
	out := make(map[string]struct{}, len(s.positions))
	for _, p := range s.positions {
		out[p.Key()] = struct{}{}
	}
	return out
}

// OrderIDs returns the set of order IDs.
func (s *Store) OrderIDs() map[int64]struct{} {
	out := make(map[int64]struct{}, len(s.orders))
	for _, o := range s.orders {
		out[o.OrderID] = struct{}{}
	}
	return out
}

// Patch updates existing objects in place. Callers must have checked that
// the key sets match; unknown entries are ignored.
func (s *Store) Patch(positions []Position, orders []OpenOrder) {
	for _, src := range positions {
		if p, ok := s.posIndex[src.Key()]; ok {
			p.patch(src)
		}
	}
	for _, src := range orders {
		if o, ok := s.orderIndex[src.OrderID]; ok {
			o.patch(src)
		}
	}
}

// Replace clears and repopulates both lists. Selection is restored for
// keys present in selectedPositions / selectedOrders.
func (s *Store) Replace(positions []Position, orders []OpenOrder, selectedPositions map[string]struct{}, selectedOrders map[int64]struct{}) {
	s.positions = s.positions[:0:0]
	s.orders = s.orders[:0:0]
	s.posIndex = make(map[string]*Position, len(positions))
	s.orderIndex = make(map[int64]*OpenOrder, len(orders))

	for i := range positions {
		p := positions[i]
		_, p.Selected = selectedPositions[p.Key()]
		s.positions = append(s.positions, &p)
		s.posIndex[p.Key()] = &p
	}
	for i := range orders {
		o := orders[i]
		_, o.Selected = selectedOrders[o.OrderID]
		s.orders = append(s.orders, &o)
		s.orderIndex[o.OrderID] = &o
	}
	sortPositions(s.positions)
	sortOrders(s.orders)
}

// SelectedPositionKeys captures the keys of selected positions.
func (s *Store) SelectedPositionKeys() map[string]struct{} {
	out := make(map[string]struct{})
	for _, p := range s.positions {
		if p.Selected {
			out[p.Key()] = struct{}{}
		}
	}
	return out
}

// SelectedOrderIDs captures the IDs of selected orders.
func (s *Store) SelectedOrderIDs() map[int64]struct{} {
	out := make(map[int64]struct{})
	for _, o := range s.orders {
		if o.Selected {
			out[o.OrderID] = struct{}{}
		}
	}
	return out
}

// SelectPosition sets the selection marker; it reports whether the key exists.
func (s *Store) SelectPosition(key string, selected bool) bool {
	p, ok := s.posIndex[key]
	if ok {
		p.Selected = selected
	}
	return ok
}

// SelectOrder sets the selection marker; it reports whether the order exists.
func (s *Store) SelectOrder(id int64, selected bool) bool {
	o, ok := s.orderIndex[id]
	if ok {
		o.Selected = selected
	}
	return ok
}

// RecomputeDerived re-derives account fields from the current positions.
func (s *Store) RecomputeDerived() {
	var used float64
	for _, p := range s.positions {
		used += p.Margin()
	}
	s.account.UsedMargin = used
}

// Clear drops everything; used when the account changes.
func (s *Store) Clear() {
	*s = *NewStore()
}

// PositionsFor returns positions of one symbol.
func (s *Store) PositionsFor(symbol string) []*Position {
	var out []*Position
	for _, p := range s.positions {
		if p.Symbol == symbol {
			out = append(out, p)
		}
	}
	return out
}

// OrdersFor returns orders of one symbol.
func (s *Store) OrdersFor(symbol string) []*OpenOrder {
	var out []*OpenOrder
	for _, o := range s.orders {
		if o.Symbol == symbol {
			out = append(out, o)
		}
	}
	return out
}

// View is a detached copy for readers outside the engine loop.
type View struct {
	Account   Account     `json:"account"`
	Positions []Position  `json:"positions"`
	Orders    []OpenOrder `json:"orders"`
}

// Snapshot copies the store.
func (s *Store) Snapshot() View {
	v := View{
		Account:   s.account,
		Positions: make([]Position, 0, len(s.positions)),
		Orders:    make([]OpenOrder, 0, len(s.orders)),
	}
	for _, p := range s.positions {
		v.Positions = append(v.Positions, *p)
	}
	for _, o := range s.orders {
		v.Orders = append(v.Orders, *o)
	}
	return v
}

func sortPositions(ps []*Position) {
	sort.SliceStable(ps, func(i, j int) bool { return ps[i].Key() < ps[j].Key() })
}

func sortOrders(os []*OpenOrder) {
	sort.SliceStable(os, func(i, j int) bool {
		if os[i].Symbol != os[j].Symbol {
			return os[i].Symbol < os[j].Symbol
		}
		return os[i].OrderID < os[j].OrderID
	})
}
