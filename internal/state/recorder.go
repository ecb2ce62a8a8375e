package state

import (
	"context"
	"sync"
	"time"
)

// RecordedEvent is one bus event retained for status display.
type RecordedEvent struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
	At   time.Time   `json:"at"`
}

// EventRecorder subscribes to every bus event and keeps the newest ones in a
// bounded ring, so the status endpoint can show what the daemon has been doing
// without a database query.
type EventRecorder struct {
	bus      *EventBus
	capacity int
	channels map[EventType]chan interface{}

	mu     sync.RWMutex
	events []RecordedEvent
}

func NewEventRecorder(bus *EventBus, capacity int) *EventRecorder {
	if capacity <= 0 {
		capacity = 64
	}
	r := &EventRecorder{
		bus:      bus,
		capacity: capacity,
		channels: make(map[EventType]chan interface{}),
	}
	for _, et := range []EventType{
		WithdrawRequested, BatchConfirmed, ProofReady, ClaimSubmitted,
		ClaimConfirmed, ClaimFailed, PollExpired, BalanceCorrected, DepositSynced,
	} {
		ch := make(chan interface{}, 16)
		bus.Subscribe(et, ch)
		r.channels[et] = ch
	}
	return r
}

// Start drains the subscriptions until ctx ends, then unsubscribes.
func (r *EventRecorder) Start(ctx context.Context) {
	var wg sync.WaitGroup
	for et, ch := range r.channels {
		wg.Add(1)
		go func(et EventType, ch chan interface{}) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					r.bus.Unsubscribe(et, ch)
					return
				case data := <-ch:
					r.append(RecordedEvent{Type: et.String(), Data: data, At: time.Now()})
				}
			}
		}(et, ch)
	}
	wg.Wait()
}

func (r *EventRecorder) append(event RecordedEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	if len(r.events) > r.capacity {
		r.events = r.events[len(r.events)-r.capacity:]
	}
}

// Recent returns up to limit events, newest first.
func (r *EventRecorder) Recent(limit int) []RecordedEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if limit <= 0 || limit > len(r.events) {
		limit = len(r.events)
	}
	out := make([]RecordedEvent, 0, limit)
	for i := len(r.events) - 1; i >= len(r.events)-limit; i-- {
		out = append(out, r.events[i])
	}
	return out
}
