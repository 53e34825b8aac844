// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package stream

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// DefaultSubscriberBuffer is the queue capacity handed to display
// subscribers. The orchestrator subscribes with a much larger buffer since
// its delivery must not be lossy in practice.
const DefaultSubscriberBuffer = 100

// Subscription is one consumer's handle on the broadcast stream.
//
// Each subscription owns a bounded queue. When the queue is full at publish
// time the event is dropped for this subscription only; Dropped reports how
// many events were lost. The Events channel is closed by Unsubscribe.
type Subscription struct {
	id      string
	types   []Type
	ch      chan Event
	dropped atomic.Uint64
}

// Events returns the receive side of the subscription's queue.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Dropped returns the number of events dropped because the queue was full.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

func (s *Subscription) wants(t Type) bool {
	if len(s.types) == 0 {
		return true
	}
	for _, want := range s.types {
		if want == t {
			return true
		}
	}
	return false
}

// Broadcaster fans events out to independently paced consumers.
//
// Publish never blocks the caller: delivery to each subscription is a
// non-blocking send into its bounded queue, and a slow consumer loses
// events without affecting the producer or other consumers.
//
// Thread Safety: Broadcaster is safe for concurrent use. Publish,
// Subscribe and Unsubscribe may be called from any goroutine.
type Broadcaster struct {
	mu   sync.RWMutex
	subs map[string]*Subscription
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[string]*Subscription)}
}

// Subscribe registers a consumer with the given queue capacity.
//
// A non-positive buffer falls back to DefaultSubscriberBuffer. When types
// are given, only events of those types are delivered.
func (b *Broadcaster) Subscribe(buffer int, types ...Type) *Subscription {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	sub := &Subscription{
		id:    uuid.NewString(),
		types: types,
		ch:    make(chan Event, buffer),
	}

	b.mu.Lock()
	b.subs[sub.id] = sub
	b.mu.Unlock()
	return sub
}

// Unsubscribe removes the subscription and closes its Events channel.
// Unsubscribing twice is a no-op.
func (b *Broadcaster) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub.id]; !ok {
		return
	}
	delete(b.subs, sub.id)
	// Safe to close here: sends happen under the read lock, so no sender
	// can hold the channel while we hold the write lock.
	close(sub.ch)
}

// Publish delivers the event to every matching subscription without
// blocking. Missing ID and Timestamp fields are filled in.
func (b *Broadcaster) Publish(event Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if !sub.wants(event.Type) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			sub.dropped.Add(1)
		}
	}
}

// SubscriberCount returns the number of active subscriptions.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
