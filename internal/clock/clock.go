/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package clock abstracts time for the debounce, inertia, realtime and
// session timers so they can be driven deterministically in tests.
package clock

import (
	"sort"
	"sync"
	"time"
)

// Timer is a cancellable pending callback.
type Timer interface {
	// Stop prevents the callback from running. It reports whether the call
	// stopped the timer (false if it already fired or was stopped).
	Stop() bool
}

// Clock provides the current time and one-shot callbacks.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Real is the wall clock.
type Real struct{}

func (Real) Now() time.Time { return time.Now() }

func (Real) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// Every calls f every d until the returned Timer is stopped.
func Every(c Clock, d time.Duration, f func()) Timer {
	p := &periodic{c: c, d: d, f: f}
	p.mu.Lock()
	p.t = c.AfterFunc(d, p.fire)
	p.mu.Unlock()
	return p
}

type periodic struct {
	mu      sync.Mutex
	c       Clock
	d       time.Duration
	f       func()
	t       Timer
	stopped bool
}

func (p *periodic) fire() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	p.f()
	p.mu.Lock()
	if !p.stopped {
		p.t = p.c.AfterFunc(p.d, p.fire)
	}
	p.mu.Unlock()
}

func (p *periodic) Stop() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return false
	}
	p.stopped = true
	p.t.Stop()
	return true
}

// Fake is a manually advanced clock. Callbacks run synchronously inside
// Advance, in deadline order.
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*fakeTimer
}

// NewFake returns a fake clock positioned at start.
func NewFake(start time.Time) *Fake { return &Fake{now: start} }

type fakeTimer struct {
	c     *Fake
	at    time.Time
	seq   int
	f     func()
	state int // 0 pending, 1 fired, 2 stopped
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) AfterFunc(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	t := &fakeTimer{c: f, at: f.now.Add(d), seq: f.seq, f: fn}
	f.timers = append(f.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	if t.state != 0 {
		return false
	}
	t.state = 2
	return true
}

// Advance moves time forward by d, firing every timer that comes due,
// including timers scheduled by callbacks within the window.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)
	f.mu.Unlock()
	for {
		f.mu.Lock()
		next := f.nextDueLocked(target)
		if next == nil {
			f.now = target
			f.mu.Unlock()
			return
		}
		next.state = 1
		if next.at.After(f.now) {
			f.now = next.at
		}
		f.mu.Unlock()
		next.f()
	}
}

func (f *Fake) nextDueLocked(target time.Time) *fakeTimer {
	pending := f.timers[:0]
	for _, t := range f.timers {
		if t.state == 0 {
			pending = append(pending, t)
		}
	}
	f.timers = pending
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].at.Equal(pending[j].at) {
			return pending[i].seq < pending[j].seq
		}
		return pending[i].at.Before(pending[j].at)
	})
	if len(pending) == 0 || pending[0].at.After(target) {
		return nil
	}
	return pending[0]
}

// Pending reports the number of timers that have not fired or been stopped.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.timers {
		if t.state == 0 {
			n++
		}
	}
	return n
}
