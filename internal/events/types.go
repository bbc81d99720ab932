package events

// Event enumerates topics published by the engine.
type Event string

const (
	// EventSnapshotApplied carries a SnapshotApplied after each reconciliation.
	EventSnapshotApplied Event = "snapshot.applied"
	// EventPriceTick carries a PriceTick per refreshed symbol.
	EventPriceTick Event = "price.tick"
	// EventTrailingConverted carries a trailing.Result.
	EventTrailingConverted Event = "trailing.converted"
	// EventOrderPlaced carries an OrderPlaced.
	EventOrderPlaced Event = "order.placed"
	// EventOrderRejected carries an OrderRejected.
	EventOrderRejected Event = "order.rejected"
	// EventBatchCompleted carries an order.BatchResult.
	EventBatchCompleted Event = "batch.completed"
	// EventAccountChanged carries the new account name, empty when cleared.
	EventAccountChanged Event = "account.changed"
	// EventDataSourceDegraded carries a bool: true while public data is synthetic.
	EventDataSourceDegraded Event = "datasource.degraded"
)

// SnapshotApplied summarises one applied snapshot.
type SnapshotApplied struct {
	Account    string
	Generation uint64
	Sequence   uint64
	Mode       string
	Positions  int
	Orders     int
	Total      float64 // total risk capital of the active symbol
}

// PriceTick is one refreshed price.
type PriceTick struct {
	Symbol string
	Price  float64
	Source string
}

// OrderPlaced is an accepted order.
type OrderPlaced struct {
	Account  string
	Symbol   string
	OrderID  int64
	ClientID string
	Type     string
}

// OrderRejected is an order that failed validation or submission.
type OrderRejected struct {
	Account string
	Symbol  string
	Reason  string
}
