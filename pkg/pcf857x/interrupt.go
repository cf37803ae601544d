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
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// pinInterrupt holds the interrupt configuration & state of a single pin.
type pinInterrupt struct {
	state    IntState
	mode     IntMode
	handler  IntHandler
	arg      interface{}
	debounce time.Duration
	reported bool // Last level reported to the handler
	pending  bool // Level captured at the start of the debounce window
	timer    Timer
	// Incremented on every (re)start or cancel of the debounce timer,
	// so stale timer callbacks can be detected.
	generation uint64
}

// cancel stops a pending debounce timer.
func (pi *pinInterrupt) cancel() {
	if pi.timer != nil {
		pi.timer.Stop()
		pi.timer = nil
	}
	pi.generation++
}

// firedHandler is a handler invocation collected under the lock
// and made after releasing it.
type firedHandler struct {
	pin     int
	level   bool
	handler IntHandler
	arg     interface{}
}

// SetIntHandler registers a handler for level changes of the input pin at
// given index (0...). The handler is invoked once interrupts are enabled
// for the pin.
func (d *Device) SetIntHandler(pin int, mode IntMode, handler IntHandler, arg interface{}) error {
	if err := d.lock(); err != nil {
		return err
	}
	defer d.mutex.Unlock()

	return d.setIntHandler(pin, mode, 0, handler, arg)
}

// Must be called with the mutex held.
func (d *Device) setIntHandler(pin int, mode IntMode, debounce time.Duration, handler IntHandler, arg interface{}) error {
	mask, err := d.bitMask(pin)
	if err != nil {
		return err
	}
	if !mode.valid() {
		return errors.Wrapf(ErrInvalidArgument, "invalid interrupt mode %d for pin %d", mode, pin)
	}
	if handler == nil {
		return errors.Wrapf(ErrInvalidArgument, "handler for pin %d is nil", pin)
	}
	if d.direction&mask == 0 {
		return errors.Wrapf(ErrInvalidDirection, "pin %d has direction output", pin)
	}
	pi := &d.ints[pin]
	pi.mode = mode
	pi.handler = handler
	pi.arg = arg
	pi.debounce = debounce
	return nil
}

// EnableInt arms the interrupt of the pin at given index (0...).
func (d *Device) EnableInt(pin int) error {
	if err := d.lock(); err != nil {
		return err
	}
	defer d.mutex.Unlock()

	return d.enableInt(pin)
}

// Must be called with the mutex held.
func (d *Device) enableInt(pin int) error {
	mask, err := d.bitMask(pin)
	if err != nil {
		return err
	}
	pi := &d.ints[pin]
	if pi.handler == nil {
		return errors.Wrapf(ErrInvalidArgument, "no interrupt handler for pin %d", pin)
	}
	if pi.state == IntStateDisabled {
		pi.state = IntStateArmed
		pi.reported = d.snapshot&mask != 0
	}
	return nil
}

// DisableInt disarms the interrupt of the pin at given index (0...).
// A pending debounce window is canceled.
func (d *Device) DisableInt(pin int) error {
	if err := d.lock(); err != nil {
		return err
	}
	defer d.mutex.Unlock()

	if _, err := d.bitMask(pin); err != nil {
		return err
	}
	pi := &d.ints[pin]
	pi.cancel()
	pi.state = IntStateDisabled
	return nil
}

// ClearInt acknowledges a pending interrupt of the pin at given index (0...)
// without invoking its handler. The current level of the pin becomes the
// reported level.
func (d *Device) ClearInt(pin int) error {
	if err := d.lock(); err != nil {
		return err
	}
	defer d.mutex.Unlock()

	mask, err := d.bitMask(pin)
	if err != nil {
		return err
	}
	pi := &d.ints[pin]
	switch pi.state {
	case IntStateDebouncing, IntStateFired:
		pi.cancel()
		pi.state = IntStateArmed
	}
	pi.reported = d.snapshot&mask != 0
	return nil
}

// RemoveIntHandler disables the interrupt of the pin at given index (0...)
// and returns the handler and argument that were registered.
func (d *Device) RemoveIntHandler(pin int) (IntHandler, interface{}, error) {
	if err := d.lock(); err != nil {
		return nil, nil, err
	}
	defer d.mutex.Unlock()

	if _, err := d.bitMask(pin); err != nil {
		return nil, nil, err
	}
	pi := &d.ints[pin]
	handler, arg := pi.handler, pi.arg
	pi.cancel()
	*pi = pinInterrupt{generation: pi.generation}
	return handler, arg, nil
}

// IntState returns the interrupt state of the pin at given index (0...).
func (d *Device) IntState(pin int) (IntState, error) {
	if err := d.lock(); err != nil {
		return IntStateDisabled, err
	}
	defer d.mutex.Unlock()

	if _, err := d.bitMask(pin); err != nil {
		return IntStateDisabled, err
	}
	return d.ints[pin].state, nil
}

// SetButtonHandler configures the pin at given index (0...) as input with
// given pull and registers & enables a debounced interrupt handler for it.
func (d *Device) SetButtonHandler(ctx context.Context, pin int, pull Pull, mode IntMode, debounce time.Duration, handler IntHandler, arg interface{}) error {
	if err := d.lock(); err != nil {
		return err
	}
	defer d.mutex.Unlock()

	mask, err := d.bitMask(pin)
	if err != nil {
		return err
	}
	if debounce <= 0 {
		return errors.Wrapf(ErrInvalidArgument, "debounce for pin %d must be positive, got %s", pin, debounce)
	}
	if !mode.valid() || handler == nil {
		return errors.Wrapf(ErrInvalidArgument, "invalid interrupt mode or handler for pin %d", pin)
	}
	if err := d.setupInput(ctx, pin, mask, pull); err != nil {
		return err
	}
	if err := d.setIntHandler(pin, mode, debounce, handler, arg); err != nil {
		return err
	}
	return d.enableInt(pin)
}

// poll reads the port after an edge on the interrupt line and
// processes the pins that changed since the previous poll.
func (d *Device) poll(ctx context.Context) error {
	d.mutex.Lock()
	if d.closed {
		d.mutex.Unlock()
		return nil
	}
	interruptsTotal.WithLabelValues(d.label).Inc()
	value, err := d.readPort(ctx)
	if err != nil {
		d.mutex.Unlock()
		return err
	}
	changed := (value ^ d.snapshot) & d.direction
	d.snapshot = value

	var fired []firedHandler
	for pin := 0; pin < d.pinCount; pin++ {
		mask := uint16(1) << uint(pin)
		if changed&mask == 0 {
			continue
		}
		if f, ok := d.edgeDetected(pin, value&mask != 0); ok {
			fired = append(fired, f)
		}
	}
	d.mutex.Unlock()

	d.dispatch(fired)
	return nil
}

// edgeDetected processes a level change of a single pin.
// Must be called with the mutex held.
func (d *Device) edgeDetected(pin int, level bool) (firedHandler, bool) {
	pi := &d.ints[pin]
	if pi.state == IntStateDisabled {
		return firedHandler{}, false
	}
	if pi.debounce > 0 {
		// (Re)start debounce window
		pi.cancel()
		pi.state = IntStateDebouncing
		pi.pending = level
		generation := pi.generation
		pi.timer = d.scheduler.AfterFunc(pi.debounce, func() {
			d.debounceExpired(pin, generation)
		})
		return firedHandler{}, false
	}
	return d.report(pin, level)
}

// debounceExpired is called when the debounce window of a pin ends.
func (d *Device) debounceExpired(pin int, generation uint64) {
	d.mutex.Lock()
	pi := &d.ints[pin]
	if d.closed || pi.generation != generation || pi.state != IntStateDebouncing {
		// Stale timer
		d.mutex.Unlock()
		return
	}
	pi.timer = nil
	value, err := d.readPort(context.Background())
	if err != nil {
		pi.state = IntStateArmed
		d.mutex.Unlock()
		d.log.Warn().Err(err).Int("pin", pin).Msg("Failed to read port after debounce")
		return
	}
	level := value&(uint16(1)<<uint(pin)) != 0
	var f firedHandler
	var ok bool
	if level == pi.pending {
		f, ok = d.report(pin, level)
	} else {
		pi.state = IntStateArmed
	}
	if !ok {
		debounceRejectedTotal.WithLabelValues(d.label, strconv.Itoa(pin)).Inc()
	}
	d.mutex.Unlock()

	if ok {
		d.dispatch([]firedHandler{f})
	}
}

// report a new level of a pin. Returns the handler to invoke, if any.
// Must be called with the mutex held.
func (d *Device) report(pin int, level bool) (firedHandler, bool) {
	pi := &d.ints[pin]
	pi.state = IntStateArmed
	if level == pi.reported {
		return firedHandler{}, false
	}
	pi.reported = level
	if !pi.mode.accepts(level) {
		return firedHandler{}, false
	}
	pi.state = IntStateFired
	return firedHandler{pin: pin, level: level, handler: pi.handler, arg: pi.arg}, true
}

// dispatch invokes the given handlers and re-arms their pins,
// unless the interrupt was disabled or cleared meanwhile.
// Must be called without holding the mutex.
func (d *Device) dispatch(fired []firedHandler) {
	for _, f := range fired {
		callbacksTotal.WithLabelValues(d.label, strconv.Itoa(f.pin)).Inc()
		d.log.Debug().Int("pin", f.pin).Bool("level", f.level).Msg("Invoking interrupt handler")
		f.handler(f.pin, f.level, f.arg)

		d.mutex.Lock()
		if pi := &d.ints[f.pin]; pi.state == IntStateFired {
			pi.state = IntStateArmed
		}
		d.mutex.Unlock()
	}
}
