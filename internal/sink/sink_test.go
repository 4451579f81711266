package sink_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoiceswap/internal/sink"
)

type fakeSubscriber struct {
	id       string
	mu       sync.Mutex
	received []sink.Message
}

func newFakeSubscriber(id string) *fakeSubscriber {
	return &fakeSubscriber{id: id}
}

func (f *fakeSubscriber) ID() string { return f.id }

func (f *fakeSubscriber) Deliver(msg sink.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.received = append(f.received, msg)
	return nil
}

func (f *fakeSubscriber) snapshot() []sink.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sink.Message, len(f.received))
	copy(out, f.received)
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	require.Fail(t, "condition never became true")
}

func TestBroadcast_DeliversToSubscribedChannel(t *testing.T) {
	s := sink.New()
	defer s.Shutdown()

	sub := newFakeSubscriber("alice")
	s.Subscribe(sub, "trading_updates")

	s.Broadcast("trading_updates", "trade_executed", map[string]any{"price": "100"})

	waitFor(t, func() bool { return len(sub.snapshot()) == 1 })
	msgs := sub.snapshot()
	assert.Equal(t, "trade_executed", msgs[0].Type)
	assert.Equal(t, uint64(1), msgs[0].Sequence)
}

func TestBroadcast_SequenceIsPerChannelMonotonic(t *testing.T) {
	s := sink.New()
	defer s.Shutdown()

	sub := newFakeSubscriber("alice")
	s.Subscribe(sub, "orderbook:INV-1")

	s.Broadcast("orderbook:INV-1", "order_book_update", nil)
	s.Broadcast("orderbook:INV-1", "order_book_update", nil)
	s.Broadcast("orderbook:INV-1", "order_book_update", nil)

	waitFor(t, func() bool { return len(sub.snapshot()) == 3 })
	msgs := sub.snapshot()
	assert.Equal(t, uint64(1), msgs[0].Sequence)
	assert.Equal(t, uint64(2), msgs[1].Sequence)
	assert.Equal(t, uint64(3), msgs[2].Sequence)
}

func TestUnsubscribe_StopsDelivery(t *testing.T) {
	s := sink.New()
	defer s.Shutdown()

	sub := newFakeSubscriber("alice")
	s.Subscribe(sub, "trading_updates")
	s.Unsubscribe("alice", "trading_updates")

	s.Broadcast("trading_updates", "trade_executed", nil)
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, sub.snapshot())
}

func TestSend_IsDirectedNotBroadcast(t *testing.T) {
	s := sink.New()
	defer s.Shutdown()

	alice := newFakeSubscriber("alice")
	bob := newFakeSubscriber("bob")
	s.Subscribe(alice, "user:alice")
	s.Subscribe(bob, "user:bob")

	s.Send("alice", "order_accepted", nil)

	waitFor(t, func() bool { return len(alice.snapshot()) == 1 })
	time.Sleep(10 * time.Millisecond)
	assert.Empty(t, bob.snapshot())
}

func TestClose_DropsAllSubscriptions(t *testing.T) {
	s := sink.New()
	defer s.Shutdown()

	sub := newFakeSubscriber("alice")
	s.Subscribe(sub, "trading_updates")
	s.Subscribe(sub, "user:alice")
	s.Close("alice")

	s.Broadcast("trading_updates", "trade_executed", nil)
	s.Send("alice", "order_accepted", nil)
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, sub.snapshot())
}

func TestSlowConsumer_DroppedOnOverflow(t *testing.T) {
	s := sink.New()
	defer s.Shutdown()

	blocking := &blockingSubscriber{id: "slow", release: make(chan struct{})}
	defer close(blocking.release)
	s.Subscribe(blocking, "trading_updates")

	// First message is picked up by dispatch and blocks inside Deliver,
	// leaving the full queue behind it to overflow.
	for i := 0; i < sink.DefaultQueueSize+10; i++ {
		s.Broadcast("trading_updates", "trade_executed", i)
	}

	waitFor(t, func() bool { return blocking.droppedNotice() })
}

type blockingSubscriber struct {
	id      string
	release chan struct{}
	mu      sync.Mutex
	dropped bool
}

func (b *blockingSubscriber) ID() string { return b.id }

func (b *blockingSubscriber) Deliver(msg sink.Message) error {
	if msg.Type == "slow_consumer" {
		b.mu.Lock()
		b.dropped = true
		b.mu.Unlock()
		return nil
	}
	<-b.release
	return nil
}

func (b *blockingSubscriber) droppedNotice() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
