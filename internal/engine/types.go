package engine

import (
	"time"

	"github.com/pkg/errors"

	"futures-terminal/internal/conditional"
	"futures-terminal/internal/risk"
	"futures-terminal/internal/state"
)

var (
	// ErrNoAccount is returned by commands issued before SelectAccount.
	ErrNoAccount = errors.New("engine: no account selected")
	// ErrStopped is returned once Run has exited.
	ErrStopped = errors.New("engine: stopped")
	// ErrRunning is returned by a second call to Run.
	ErrRunning = errors.New("engine: already running")
)

// View is a detached copy of everything the engine derived.
type View struct {
	Account      string               `json:"account"`
	Mock         bool                 `json:"mock"`
	Generation   uint64               `json:"generation"`
	Sequence     uint64               `json:"sequence"`
	ActiveSymbol string               `json:"active_symbol"`
	Balance      state.Account        `json:"balance"`
	Positions    []state.Position     `json:"positions"`
	Orders       []state.OpenOrder    `json:"orders"`
	Conditional  []conditional.Record `json:"conditional"`
	ReduceOnly   []conditional.Record `json:"reduce_only"`
	Risk         risk.Snapshot        `json:"risk"`
	Prices       map[string]float64   `json:"prices"`
	LastApplied  time.Time            `json:"last_applied"`
}

// Status is the lock-free liveness summary.
type Status struct {
	Running     bool      `json:"running"`
	Account     string    `json:"account"`
	Mock        bool      `json:"mock"`
	LastApplied time.Time `json:"last_applied"`
}
