/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package realtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/clock"
	applog "github.com/mjsxi/matts-infinite-canvas-sub000/internal/log"
)

type feedCall struct {
	ctx     context.Context
	deliver func(Event)
	result  chan error
}

type fakeFeed struct{ calls chan *feedCall }

func (f *fakeFeed) Subscribe(ctx context.Context, _ []string, deliver func(Event)) error {
	c := &feedCall{ctx: ctx, deliver: deliver, result: make(chan error, 1)}
	f.calls <- c
	select {
	case err := <-c.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeFeed) next(t *testing.T) *feedCall {
	t.Helper()
	select {
	case c := <-f.calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatalf("no subscribe call")
		return nil
	}
}

func (f *fakeFeed) none(t *testing.T) {
	t.Helper()
	select {
	case <-f.calls:
		t.Fatalf("unexpected subscribe call")
	default:
	}
}

func TestBackoff(t *testing.T) {
	lo, hi := 500*time.Millisecond, 4*time.Second
	want := []time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second, 4 * time.Second, 4 * time.Second}
	for i, w := range want {
		if got := Backoff(i+1, lo, hi); got != w {
			t.Fatalf("Backoff(%d) = %v want %v", i+1, got, w)
		}
	}
}

func TestSubscriberLifecycle(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	feed := &fakeFeed{calls: make(chan *feedCall, 4)}
	var mu sync.Mutex
	var got []Event
	sub := NewSubscriber(SubscriberOptions{
		Feed: feed, Clock: fc,
		ActivationDelay: time.Second,
		BackoffMin:      500 * time.Millisecond,
		BackoffMax:      30 * time.Second,
		Deliver: func(ev Event) {
			mu.Lock()
			got = append(got, ev)
			mu.Unlock()
		},
		Logger: applog.Discard(),
	})

	sub.Start()
	sub.Start() // no-op
	if sub.State() != Activating {
		t.Fatalf("state = %v", sub.State())
	}
	fc.Advance(999 * time.Millisecond)
	feed.none(t)
	fc.Advance(time.Millisecond)
	c := feed.next(t)
	if sub.State() != Live {
		t.Fatalf("state = %v", sub.State())
	}
	c.deliver(Event{Operation: OpInsert, Table: TableItems})

	// first failure waits BackoffMin
	c.result <- errors.New("reset by peer")
	sub.Wait()
	if sub.State() != Reconnecting {
		t.Fatalf("state = %v", sub.State())
	}
	fc.Advance(499 * time.Millisecond)
	feed.none(t)
	fc.Advance(time.Millisecond)
	c = feed.next(t)

	// second consecutive failure doubles
	c.result <- errors.New("reset by peer")
	sub.Wait()
	fc.Advance(999 * time.Millisecond)
	feed.none(t)
	fc.Advance(time.Millisecond)
	c = feed.next(t)

	// an event resets the failure count
	c.deliver(Event{Operation: OpUpdate, Table: TableItems})
	c.result <- errors.New("reset by peer")
	sub.Wait()
	fc.Advance(500 * time.Millisecond)
	c = feed.next(t)

	sub.Stop()
	sub.Wait()
	if c.ctx.Err() == nil {
		t.Fatalf("stop did not cancel the feed")
	}
	if sub.State() != Stopped {
		t.Fatalf("state = %v", sub.State())
	}
	fc.Advance(time.Minute)
	feed.none(t)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 {
		t.Fatalf("delivered %d events", len(got))
	}
}

func TestStopDuringActivation(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	feed := &fakeFeed{calls: make(chan *feedCall, 1)}
	sub := NewSubscriber(SubscriberOptions{Feed: feed, Clock: fc, ActivationDelay: time.Second, Logger: applog.Discard()})
	sub.Start()
	sub.Stop()
	fc.Advance(5 * time.Second)
	feed.none(t)

	// restart after stop works
	sub.Start()
	fc.Advance(time.Second)
	c := feed.next(t)
	sub.Stop()
	sub.Wait()
	if c.ctx.Err() == nil {
		t.Fatalf("feed context still live")
	}
}
