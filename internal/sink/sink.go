// Package sink implements the event fan-out layer described by the spec's
// "abstract event sink": channel-scoped subscriptions, independent
// per-subscriber delivery, and bounded queues that drop slow consumers
// rather than block the producer. Grounded on the teacher's
// tomb-supervised worker pool (internal/worker.go) for goroutine lifecycle,
// and on the pack's production pub/sub broker idiom
// (other_examples/…pub_sub.go.go: bounded per-subscriber channel +
// circuit-breaker-style drop on overflow) for the delivery discipline.
package sink

import (
	"sync"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"
)

// DefaultQueueSize is the bounded per-subscriber mailbox size (spec: 256).
const DefaultQueueSize = 256

// Message is the tagged-variant envelope delivered to subscribers. Payload
// shapes are fixed per Type, per spec.md §9's "dynamic event payloads"
// design note.
type Message struct {
	Type     string `json:"type"`
	Channel  string `json:"channel,omitempty"`
	Sequence uint64 `json:"sequence,omitempty"`
	Payload  any    `json:"payload,omitempty"`
}

// Subscriber is the abstract transport the spec keeps out of the core's
// scope: something that can accept delivery of a Message and be told when
// it has been dropped for being too slow. A websocket connection, an
// in-process test channel, or a gRPC stream can all implement it.
type Subscriber interface {
	ID() string
	Deliver(Message) error
}

type registration struct {
	sub      Subscriber
	queue    chan Message
	done     chan struct{}
	channels map[string]struct{}
	mu       sync.Mutex
	closed   bool
}

// channelState serializes sequence assignment and delivery for one channel,
// so that two concurrent Broadcast calls on the same channel can never
// deliver out of the order their sequence numbers imply.
type channelState struct {
	mu      sync.Mutex
	counter uint64
}

// Sink multiplexes events to subscribers keyed by channel name.
type Sink struct {
	mu          sync.RWMutex
	subscribers map[string]*registration
	byChannel   map[string]map[string]*registration
	sequences   map[string]*channelState
	queueSize   int

	t tomb.Tomb
}

// New creates an empty sink; each subscriber's delivery goroutine starts
// lazily on its first Subscribe call.
func New() *Sink {
	return &Sink{
		subscribers: make(map[string]*registration),
		byChannel:   make(map[string]map[string]*registration),
		sequences:   make(map[string]*channelState),
		queueSize:   DefaultQueueSize,
	}
}

// Subscribe registers sub for channel, starting its delivery goroutine on
// first subscription. Safe to call concurrently with Broadcast: a
// subscriber added mid-broadcast may or may not receive that message, but
// every later one is guaranteed delivery (subject to the queue bound).
func (s *Sink) Subscribe(sub Subscriber, channel string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg, ok := s.subscribers[sub.ID()]
	if !ok {
		reg = &registration{
			sub:      sub,
			queue:    make(chan Message, s.queueSize),
			done:     make(chan struct{}),
			channels: make(map[string]struct{}),
		}
		s.subscribers[sub.ID()] = reg
		s.t.Go(func() error {
			s.dispatch(reg)
			return nil
		})
	}

	reg.mu.Lock()
	reg.channels[channel] = struct{}{}
	reg.mu.Unlock()

	if s.byChannel[channel] == nil {
		s.byChannel[channel] = make(map[string]*registration)
	}
	s.byChannel[channel][sub.ID()] = reg
}

// Unsubscribe drops sub's subscription to channel.
func (s *Sink) Unsubscribe(subscriberID, channel string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if reg, ok := s.subscribers[subscriberID]; ok {
		reg.mu.Lock()
		delete(reg.channels, channel)
		reg.mu.Unlock()
	}
	if subs, ok := s.byChannel[channel]; ok {
		delete(subs, subscriberID)
		if len(subs) == 0 {
			delete(s.byChannel, channel)
		}
	}
}

// Close drops all of a subscriber's subscriptions and stops its delivery
// goroutine. It never closes reg.queue: enqueue's producer-side send would
// race an unguarded channel close, so the dispatch goroutine is instead told
// to stop via reg.done, closed once under reg.mu.
func (s *Sink) Close(subscriberID string) {
	s.mu.Lock()
	reg, ok := s.subscribers[subscriberID]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.subscribers, subscriberID)
	reg.mu.Lock()
	for ch := range reg.channels {
		if subs, ok := s.byChannel[ch]; ok {
			delete(subs, subscriberID)
			if len(subs) == 0 {
				delete(s.byChannel, ch)
			}
		}
	}
	alreadyClosed := reg.closed
	reg.closed = true
	reg.mu.Unlock()
	s.mu.Unlock()

	if !alreadyClosed {
		close(reg.done)
	}
}

// Broadcast delivers message on channel to every current subscriber,
// assigning the next monotonic sequence number for that channel. Sequence
// assignment and fan-out are serialized per channel (spec §4.3: order
// preserved per channel), so two concurrent Broadcasts on the same channel
// can never deliver in the opposite order to their assigned sequences;
// broadcasts on different channels still proceed fully concurrently. Never
// blocks: a subscriber whose queue is full is dropped with a slow_consumer
// notice instead.
func (s *Sink) Broadcast(channel string, msgType string, payload any) {
	cs := s.channelState(channel)
	cs.mu.Lock()
	defer cs.mu.Unlock()

	cs.counter++
	msg := Message{Type: msgType, Channel: channel, Sequence: cs.counter, Payload: payload}

	s.mu.RLock()
	subs := make([]*registration, 0, len(s.byChannel[channel]))
	for _, reg := range s.byChannel[channel] {
		subs = append(subs, reg)
	}
	s.mu.RUnlock()

	for _, reg := range subs {
		s.enqueue(reg, msg)
	}
}

// Send delivers message directly to one subscriber, outside any channel's
// sequence numbering (Sequence is left at 0).
func (s *Sink) Send(subscriberID string, msgType string, payload any) {
	s.mu.RLock()
	reg, ok := s.subscribers[subscriberID]
	s.mu.RUnlock()
	if !ok {
		return
	}
	s.enqueue(reg, Message{Type: msgType, Payload: payload})
}

// enqueue checks reg.closed and sends under reg.mu, so it can never race
// Close's close(reg.done): either this send completes entirely before Close
// marks the registration closed, or it observes closed already set and does
// nothing. reg.queue itself is never closed, so the send is always safe.
func (s *Sink) enqueue(reg *registration, msg Message) {
	reg.mu.Lock()
	if reg.closed {
		reg.mu.Unlock()
		return
	}
	select {
	case reg.queue <- msg:
		reg.mu.Unlock()
	default:
		reg.mu.Unlock()
		log.Warn().Str("subscriber", reg.sub.ID()).Msg("slow consumer, dropping subscription")
		s.Close(reg.sub.ID())
		_ = reg.sub.Deliver(Message{Type: "slow_consumer"})
	}
}

func (s *Sink) channelState(channel string) *channelState {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs, ok := s.sequences[channel]
	if !ok {
		cs = &channelState{}
		s.sequences[channel] = cs
	}
	return cs
}

// dispatch is the per-subscriber delivery goroutine: it owns reg.queue and
// runs independently of Broadcast/Send, so one slow subscriber never blocks
// another or the producer. It stops on reg.done rather than on reg.queue
// being closed, since the queue is never closed from the producer side
// (grounded on other_examples/…pub_sub.go.go's cancel-channel shutdown).
func (s *Sink) dispatch(reg *registration) {
	for {
		select {
		case <-reg.done:
			return
		case msg := <-reg.queue:
			if err := reg.sub.Deliver(msg); err != nil {
				log.Error().Err(err).Str("subscriber", reg.sub.ID()).Msg("delivery failed")
			}
		}
	}
}

// Shutdown closes every subscriber, which halts each dispatch goroutine via
// its done channel (any messages still sitting in a queue are discarded),
// and waits for them all to exit. With no subscriber registered it returns
// at once.
func (s *Sink) Shutdown() {
	s.mu.Lock()
	ids := make([]string, 0, len(s.subscribers))
	for id := range s.subscribers {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	if len(ids) == 0 {
		return
	}
	for _, id := range ids {
		s.Close(id)
	}
	_ = s.t.Wait()
}
