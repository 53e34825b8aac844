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
	"fmt"
	"testing"
	"time"
)

func TestBroadcaster_PublishFillsIDAndTimestamp(t *testing.T) {
	b := NewBroadcaster()
	sub := b.Subscribe(1)
	defer b.Unsubscribe(sub)

	b.Publish(Event{Type: TypePollCycleStarted})

	select {
	case event := <-sub.Events():
		if event.ID == "" {
			t.Error("event ID not filled in")
		}
		if event.Timestamp.IsZero() {
			t.Error("event timestamp not filled in")
		}
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
}

func TestBroadcaster_StalledSubscriberDropsWithoutBlocking(t *testing.T) {
	b := NewBroadcaster()

	const total = 10
	const buffer = 3

	stalled := b.Subscribe(buffer)
	prompt := b.Subscribe(total)
	defer b.Unsubscribe(stalled)
	defer b.Unsubscribe(prompt)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < total; i++ {
			b.Publish(Event{Type: TypePollCycleStarted, Data: PollCycleData{PackageCount: i}})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publisher blocked on stalled subscriber")
	}

	if got := len(stalled.Events()); got > buffer {
		t.Errorf("stalled subscriber queued %d events, capacity %d", got, buffer)
	}
	if got := stalled.Dropped(); got != total-buffer {
		t.Errorf("Dropped() = %d, want %d", got, total-buffer)
	}

	// The prompt subscriber (buffer >= total) sees everything in order.
	for i := 0; i < total; i++ {
		select {
		case event := <-prompt.Events():
			data := event.Data.(PollCycleData)
			if data.PackageCount != i {
				t.Fatalf("event %d out of order: got %d", i, data.PackageCount)
			}
		case <-time.After(time.Second):
			t.Fatalf("prompt subscriber missing event %d", i)
		}
	}
	if prompt.Dropped() != 0 {
		t.Errorf("prompt subscriber dropped %d events", prompt.Dropped())
	}
}

func TestBroadcaster_TypeFilter(t *testing.T) {
	b := NewBroadcaster()
	sub := b.Subscribe(10, TypeBreakingChangeDetected)
	defer b.Unsubscribe(sub)

	b.Publish(Event{Type: TypePollCycleStarted})
	b.Publish(Event{Type: TypePackageVersionChanged})
	b.Publish(Event{Type: TypeBreakingChangeDetected})

	select {
	case event := <-sub.Events():
		if event.Type != TypeBreakingChangeDetected {
			t.Errorf("got event type %q", event.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("filtered event not delivered")
	}

	select {
	case event := <-sub.Events():
		t.Errorf("unexpected extra event %q", event.Type)
	default:
	}
}

func TestBroadcaster_UnsubscribeClosesAndIsIdempotent(t *testing.T) {
	b := NewBroadcaster()
	sub := b.Subscribe(1)

	b.Unsubscribe(sub)
	b.Unsubscribe(sub)
	b.Unsubscribe(nil)

	if _, ok := <-sub.Events(); ok {
		t.Error("Events channel still open after Unsubscribe")
	}
	if got := b.SubscriberCount(); got != 0 {
		t.Errorf("SubscriberCount() = %d, want 0", got)
	}

	// Publishing after removal must not panic.
	b.Publish(Event{Type: TypePollCycleStarted})
}

func TestBroadcaster_ConcurrentPublishAndUnsubscribe(t *testing.T) {
	b := NewBroadcaster()

	subs := make([]*Subscription, 20)
	for i := range subs {
		subs[i] = b.Subscribe(1)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			b.Publish(Event{Type: TypePollCycleStarted, Data: PollCycleData{PackageCount: i}})
		}
	}()
	for _, sub := range subs {
		b.Unsubscribe(sub)
	}
	<-done

	if got := b.SubscriberCount(); got != 0 {
		t.Errorf("SubscriberCount() = %d, want 0", got)
	}
}

func TestBroadcaster_IndependentSubscriptionIDs(t *testing.T) {
	b := NewBroadcaster()
	seen := make(map[string]bool)
	for i := 0; i < 5; i++ {
		sub := b.Subscribe(1)
		if seen[sub.id] {
			t.Fatalf("duplicate subscription id %q", sub.id)
		}
		seen[sub.id] = true
	}
	if got := b.SubscriberCount(); got != 5 {
		t.Errorf("SubscriberCount() = %d, want 5", got)
	}
}

func ExampleBroadcaster() {
	b := NewBroadcaster()
	sub := b.Subscribe(10, TypePackageVersionChanged)
	defer b.Unsubscribe(sub)

	b.Publish(Event{
		Type: TypePackageVersionChanged,
		Data: ChangeEvent{Package: "flask", LatestVersion: "3.1.2"},
	})

	event := <-sub.Events()
	change := event.Data.(ChangeEvent)
	fmt.Println(change.Package, change.LatestVersion)
	// Output: flask 3.1.2
}
