// Copyright 2026 Ewout Prangsma
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// Author Ewout Prangsma
//

package pcf857x

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/binkynet/pcf857x/pkg/bridge"
)

const testAddress = uint8(0x20)

// manualScheduler runs timers only when time is advanced explicitly.
type manualScheduler struct {
	mutex  sync.Mutex
	now    time.Duration
	timers []*manualTimer
}

type manualTimer struct {
	s       *manualScheduler
	at      time.Duration
	f       func()
	stopped bool
	fired   bool
}

func newManualScheduler() *manualScheduler {
	return &manualScheduler{}
}

func (s *manualScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	t := &manualTimer{s: s, at: s.now + d, f: f}
	s.timers = append(s.timers, t)
	return t
}

func (t *manualTimer) Stop() bool {
	t.s.mutex.Lock()
	defer t.s.mutex.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves time forward, running all timers that become due, in order.
func (s *manualScheduler) Advance(d time.Duration) {
	s.mutex.Lock()
	target := s.now + d
	s.mutex.Unlock()
	for {
		s.mutex.Lock()
		var next *manualTimer
		for _, t := range s.timers {
			if t.stopped || t.fired || t.at > target {
				continue
			}
			if next == nil || t.at < next.at {
				next = t
			}
		}
		if next == nil {
			s.now = target
			s.mutex.Unlock()
			return
		}
		next.fired = true
		s.now = next.at
		s.mutex.Unlock()
		next.f()
	}
}

// Pending returns the number of timers that have not fired or been stopped.
func (s *manualScheduler) Pending() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	n := 0
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

type testEnv struct {
	bus   *bridge.VirtualBus
	chip  *bridge.VirtualExpander
	sched *manualScheduler
	dev   *Device
}

// newTestEnv creates a device of given variant on a virtual bus.
func newTestEnv(t *testing.T, variant Variant) *testEnv {
	t.Helper()
	env := &testEnv{
		bus:   bridge.NewVirtualBus(),
		sched: newManualScheduler(),
	}
	env.chip = env.bus.AddExpander(testAddress, variant.PinCount())
	dev, err := New(context.Background(), Config{
		Variant:      variant,
		Address:      testAddress,
		InterruptPin: NoInterrupt,
	}, Dependencies{
		Log:       zerolog.New(zerolog.NewTestWriter(t)),
		Bus:       env.bus,
		Scheduler: env.sched,
	})
	require.NoError(t, err)
	env.dev = dev
	t.Cleanup(func() {
		env.dev.Close(context.Background())
	})
	return env
}

// writesSince returns the words written to the chip after the first n writes.
func (env *testEnv) writesSince(n int) []uint16 {
	return env.chip.Writes()[n:]
}

// recorder collects interrupt handler invocations.
type recorder struct {
	mutex sync.Mutex
	calls []recordedCall
}

type recordedCall struct {
	Pin   int
	Level bool
	Arg   interface{}
}

func (r *recorder) handle(pin int, level bool, arg interface{}) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.calls = append(r.calls, recordedCall{Pin: pin, Level: level, Arg: arg})
}

func (r *recorder) Calls() []recordedCall {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return append([]recordedCall(nil), r.calls...)
}
