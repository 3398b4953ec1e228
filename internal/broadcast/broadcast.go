// Package broadcast fans a single producer's values out to many
// subscribers, each on its own bounded channel (SPEC_FULL.md §4.I).
//
// The shape is grounded on the teacher's bgp.Pool: one goroutine owns the
// subscriber map and only that goroutine ever touches it, reached through
// command channels rather than a mutex. Subscriber registration returns
// only the subscriber handle; values published before it joined are not
// delivered to it.
package broadcast

import (
	"context"

	"github.com/pkg/errors"
)

// ErrLagged is returned by Subscriber.Recv when that subscriber's buffer
// filled and a publish had to be dropped for it. The subscriber has missed
// at least one value and must resynchronize from a fresh snapshot.
var ErrLagged = errors.New("broadcast: subscriber lagged, missed values")

// ErrClosed is returned once the Broadcaster has been closed and the
// subscriber has drained everything buffered before that.
var ErrClosed = errors.New("broadcast: broadcaster closed")

type subscribeReq[T any] struct {
	reply chan *Subscriber[T]
}

type unsubscribeReq[T any] struct {
	id uint64
}

type publishReq[T any] struct {
	value T
}

// Broadcaster publishes values of type T to any number of live Subscribers.
// Capacity bounds each subscriber's per-value buffer; a subscriber that
// falls capacity values behind is marked lagged and has the oldest value
// dropped rather than blocking the publisher.
type Broadcaster[T any] struct {
	capacity int

	subscribe   chan subscribeReq[T]
	unsubscribe chan unsubscribeReq[T]
	publish     chan publishReq[T]
	closed      chan struct{}
}

// NewBroadcaster starts the broadcaster's owning goroutine and returns a
// handle. capacity must be >= 1.
func NewBroadcaster[T any](capacity int) *Broadcaster[T] {
	if capacity < 1 {
		capacity = 1
	}
	b := &Broadcaster[T]{
		capacity:    capacity,
		subscribe:   make(chan subscribeReq[T]),
		unsubscribe: make(chan unsubscribeReq[T]),
		publish:     make(chan publishReq[T]),
		closed:      make(chan struct{}),
	}
	go b.run()
	return b
}

func (b *Broadcaster[T]) run() {
	subs := map[uint64]*Subscriber[T]{}
	var nextID uint64

	defer func() {
		for _, s := range subs {
			close(s.ch)
		}
	}()

	for {
		select {
		case req := <-b.subscribe:
			nextID++
			s := &Subscriber[T]{
				id:   nextID,
				ch:   make(chan T, b.capacity),
				lag:  make(chan struct{}, 1),
				done: make(chan struct{}),
				b:    b,
			}
			subs[s.id] = s
			req.reply <- s

		case req := <-b.unsubscribe:
			if s, ok := subs[req.id]; ok {
				close(s.ch)
				delete(subs, req.id)
			}

		case req := <-b.publish:
			for _, s := range subs {
				select {
				case s.ch <- req.value:
				default:
					select {
					case <-s.ch:
					default:
					}
					select {
					case s.ch <- req.value:
					default:
					}
					select {
					case s.lag <- struct{}{}:
					default:
					}
				}
			}

		case <-b.closed:
			return
		}
	}
}

// Publish sends value to every current subscriber. It never blocks on a
// slow subscriber: that subscriber is marked lagged instead.
func (b *Broadcaster[T]) Publish(value T) {
	select {
	case b.publish <- publishReq[T]{value: value}:
	case <-b.closed:
	}
}

// Subscribe registers a new Subscriber. Only values published after this
// call are delivered to it; callers that need the current state too must
// capture their own snapshot before subscribing.
func (b *Broadcaster[T]) Subscribe() *Subscriber[T] {
	reply := make(chan *Subscriber[T], 1)
	select {
	case b.subscribe <- subscribeReq[T]{reply: reply}:
		return <-reply
	case <-b.closed:
		return nil
	}
}

// Close stops the broadcaster and closes every subscriber's channel.
func (b *Broadcaster[T]) Close() {
	close(b.closed)
}

// Subscriber is one broadcast recipient's handle.
type Subscriber[T any] struct {
	id   uint64
	ch   chan T
	lag  chan struct{}
	done chan struct{}
	b    *Broadcaster[T]
}

// Recv blocks until a value is available, ctx is cancelled, or the
// broadcaster closes. If this subscriber lagged since the last Recv,
// ErrLagged is returned first (values, not the error, still arrive on
// later calls).
func (s *Subscriber[T]) Recv(ctx context.Context) (T, error) {
	var zero T
	select {
	case <-s.lag:
		return zero, ErrLagged
	default:
	}

	select {
	case v, ok := <-s.ch:
		if !ok {
			return zero, ErrClosed
		}
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Unsubscribe removes this subscriber from the broadcaster. Safe to call
// more than once.
func (s *Subscriber[T]) Unsubscribe() {
	select {
	case s.b.unsubscribe <- unsubscribeReq[T]{id: s.id}:
	case <-s.b.closed:
	}
}
