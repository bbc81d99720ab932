package common

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultResyncInterval is how long an offset stays trusted.
const DefaultResyncInterval = 5 * time.Minute

// TimeSync manages time synchronization with an exchange server.
type TimeSync struct {
	getServerTime func(ctx context.Context) (int64, error)
	offset        int64 // milliseconds offset (server - local)
	lastSync      time.Time
	syncInterval  time.Duration
	log           *zap.Logger
	mu            sync.RWMutex
}

// NewTimeSync creates a new time synchronization manager.
func NewTimeSync(getServerTime func(ctx context.Context) (int64, error), interval time.Duration, log *zap.Logger) *TimeSync {
	if interval <= 0 {
		interval = DefaultResyncInterval
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &TimeSync{
		getServerTime: getServerTime,
		syncInterval:  interval,
		log:           log,
	}
}

// Start begins periodic time synchronization until ctx is done.
func (ts *TimeSync) Start(ctx context.Context) {
	if err := ts.Sync(ctx); err != nil {
		ts.log.Warn("initial time sync failed", zap.Error(err))
	}

	go func() {
		ticker := time.NewTicker(ts.syncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := ts.Sync(ctx); err != nil {
					ts.log.Warn("time sync failed", zap.Error(err))
				}
			}
		}
	}()
}

// Sync synchronizes with server time.
func (ts *TimeSync) Sync(ctx context.Context) error {
	localBefore := time.Now().UnixMilli()
	serverTime, err := ts.getServerTime(ctx)
	if err != nil {
		return err
	}
	localAfter := time.Now().UnixMilli()

	// Assume network latency is symmetric
	localTime := localBefore + (localAfter-localBefore)/2

	ts.mu.Lock()
	ts.offset = serverTime - localTime
	ts.lastSync = time.Now()
	ts.mu.Unlock()

	ts.log.Debug("time sync", zap.Int64("offset_ms", serverTime-localTime))
	return nil
}

// EnsureFresh resyncs when the offset is older than the resync interval.
// A failed resync keeps the previous offset.
func (ts *TimeSync) EnsureFresh(ctx context.Context) {
	ts.mu.RLock()
	stale := time.Since(ts.lastSync) >= ts.syncInterval
	ts.mu.RUnlock()
	if !stale {
		return
	}
	if err := ts.Sync(ctx); err != nil {
		ts.log.Warn("time resync failed, keeping previous offset", zap.Error(err))
	}
}

// Now returns current time in ms adjusted for server offset.
func (ts *TimeSync) Now() int64 {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return time.Now().UnixMilli() + ts.offset
}

// Offset returns the current time offset in milliseconds.
func (ts *TimeSync) Offset() int64 {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.offset
}

// LastSync returns when the offset was last refreshed.
func (ts *TimeSync) LastSync() time.Time {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.lastSync
}
