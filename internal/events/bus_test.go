package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusPublishSubscribe(t *testing.T) {
	t.Parallel()
	b := NewBus()
	ch, unsub := b.Subscribe(EventSnapshotApplied, 1)
	assert.Equal(t, 1, b.Subscribers(EventSnapshotApplied))

	b.Publish(EventSnapshotApplied, SnapshotApplied{Sequence: 1})
	b.Publish(EventSnapshotApplied, SnapshotApplied{Sequence: 2}) // dropped, buffer full
	b.Publish(EventPriceTick, PriceTick{Symbol: "BTCUSDT"})      // other topic

	got := <-ch
	require.IsType(t, SnapshotApplied{}, got)
	assert.Equal(t, uint64(1), got.(SnapshotApplied).Sequence)

	unsub()
	unsub()
	_, open := <-ch
	assert.False(t, open)
	assert.Zero(t, b.Subscribers(EventSnapshotApplied))
}
