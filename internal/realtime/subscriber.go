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
	"log/slog"
	"sync"
	"time"

	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/clock"
	applog "github.com/mjsxi/matts-infinite-canvas-sub000/internal/log"
)

// Feed delivers change events. Subscribe blocks, calling deliver for every
// event, until ctx is cancelled or the transport fails.
type Feed interface {
	Subscribe(ctx context.Context, tables []string, deliver func(Event)) error
}

// State is the subscription lifecycle state.
type State int

const (
	Stopped State = iota
	// Activating waits out the activation delay.
	Activating
	Live
	// Reconnecting waits before reconnecting after a transport error.
	Reconnecting
)

func (s State) String() string {
	switch s {
	case Activating:
		return "activating"
	case Live:
		return "live"
	case Reconnecting:
		return "backoff"
	}
	return "stopped"
}

// SubscriberOptions configures a Subscriber.
type SubscriberOptions struct {
	Feed   Feed
	Tables []string
	Clock  clock.Clock
	// ActivationDelay lets the initial bulk load settle before events flow.
	ActivationDelay time.Duration
	BackoffMin      time.Duration
	BackoffMax      time.Duration
	// Deliver receives every event. It is called from the feed goroutine.
	Deliver func(Event)
	Logger  *slog.Logger
}

// Subscriber keeps one feed subscription alive between Start and Stop.
type Subscriber struct {
	opts SubscriberOptions
	log  *slog.Logger

	mu       sync.Mutex
	state    State
	gen      int
	timer    clock.Timer
	cancel   context.CancelFunc
	attempts int
	done     chan struct{}
}

// NewSubscriber returns a stopped subscriber.
func NewSubscriber(opts SubscriberOptions) *Subscriber {
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if len(opts.Tables) == 0 {
		opts.Tables = []string{TableItems, TableCenter}
	}
	if opts.BackoffMin <= 0 {
		opts.BackoffMin = 500 * time.Millisecond
	}
	if opts.BackoffMax < opts.BackoffMin {
		opts.BackoffMax = 30 * time.Second
	}
	l := opts.Logger
	if l == nil {
		l = applog.WithComponent("realtime")
	}
	return &Subscriber{opts: opts, log: l}
}

// Backoff returns the reconnect delay after the given number of consecutive
// failures: lo doubled per failure, capped at hi.
func Backoff(failures int, lo, hi time.Duration) time.Duration {
	d := lo
	for i := 1; i < failures; i++ {
		d *= 2
		if d >= hi {
			return hi
		}
	}
	return min(d, hi)
}

// State returns the lifecycle state.
func (s *Subscriber) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start schedules the subscription after the activation delay. It does
// nothing if already started.
func (s *Subscriber) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Stopped {
		return
	}
	s.gen++
	s.attempts = 0
	gen := s.gen
	s.setStateLocked(Activating)
	s.timer = s.opts.Clock.AfterFunc(s.opts.ActivationDelay, func() { s.connect(gen) })
}

// Stop tears the subscription down. Events already in flight may still be
// delivered until the feed returns.
func (s *Subscriber) Stop() {
	s.mu.Lock()
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.setStateLocked(Stopped)
	s.mu.Unlock()
}

// Wait blocks until the current feed goroutine has returned.
func (s *Subscriber) Wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (s *Subscriber) setStateLocked(st State) {
	if s.state == st {
		return
	}
	s.state = st
	s.log.Debug("subscription state", slog.String("state", st.String()))
}

func (s *Subscriber) connect(gen int) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.timer = nil
	done := make(chan struct{})
	s.done = done
	s.setStateLocked(Live)
	s.mu.Unlock()

	go func() {
		defer close(done)
		defer cancel()
		applog.WithOperation(s.log, "subscribe").Info("subscribing", slog.Any("tables", s.opts.Tables))
		err := s.opts.Feed.Subscribe(ctx, s.opts.Tables, func(ev Event) {
			s.mu.Lock()
			live := gen == s.gen
			if live {
				s.attempts = 0
			}
			s.mu.Unlock()
			if live && s.opts.Deliver != nil {
				s.opts.Deliver(ev)
			}
		})
		s.failed(gen, err)
	}()
}

func (s *Subscriber) failed(gen int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return
	}
	if err == nil || errors.Is(err, context.Canceled) {
		err = errors.New("feed closed")
	}
	s.attempts++
	wait := Backoff(s.attempts, s.opts.BackoffMin, s.opts.BackoffMax)
	s.log.Warn("feed lost, reconnecting", slog.Duration("in", wait), slog.Int("attempt", s.attempts), applog.Err(err))
	s.cancel = nil
	s.setStateLocked(Reconnecting)
	s.timer = s.opts.Clock.AfterFunc(wait, func() { s.connect(gen) })
}
