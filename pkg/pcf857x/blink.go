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
	"time"

	"github.com/pkg/errors"
)

// pinBlink holds the blink schedule of a single pin.
type pinBlink struct {
	on, off    time.Duration
	timer      Timer
	generation uint64
}

// cancel stops blinking.
func (b *pinBlink) cancel() {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.on, b.off = 0, 0
	b.generation++
}

func (b *pinBlink) active() bool {
	return b.on > 0 && b.off > 0
}

// Blink the output pin at given index (0...): it is driven high for the
// on duration and low for the off duration, starting high.
// Set on or off to 0 to stop blinking.
func (d *Device) Blink(ctx context.Context, pin int, on, off time.Duration) error {
	if err := d.lock(); err != nil {
		return err
	}
	defer d.mutex.Unlock()

	mask, err := d.bitMask(pin)
	if err != nil {
		return err
	}
	if on < 0 || off < 0 {
		return errors.Wrapf(ErrInvalidArgument, "blink durations of pin %d must not be negative", pin)
	}
	b := &d.blinks[pin]
	b.cancel()
	if on == 0 || off == 0 {
		return nil
	}
	if d.direction&mask != 0 {
		return errors.Wrapf(ErrInvalidDirection, "pin %d has direction input", pin)
	}
	if err := d.writePort(ctx, d.direction, d.output|mask); err != nil {
		return err
	}
	b.on, b.off = on, off
	d.scheduleBlink(pin, on)
	return nil
}

// Blinking returns true when the pin at given index (0...) is blinking.
func (d *Device) Blinking(pin int) (bool, error) {
	if err := d.lock(); err != nil {
		return false, err
	}
	defer d.mutex.Unlock()

	if _, err := d.bitMask(pin); err != nil {
		return false, err
	}
	return d.blinks[pin].active(), nil
}

// Must be called with the mutex held.
func (d *Device) scheduleBlink(pin int, delay time.Duration) {
	b := &d.blinks[pin]
	generation := b.generation
	b.timer = d.scheduler.AfterFunc(delay, func() {
		d.blinkTick(pin, generation)
	})
}

// blinkTick toggles a blinking pin and schedules the next toggle.
func (d *Device) blinkTick(pin int, generation uint64) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	b := &d.blinks[pin]
	if d.closed || b.generation != generation || !b.active() {
		// Stale timer
		return
	}
	mask := uint16(1) << uint(pin)
	if d.direction&mask != 0 {
		b.cancel()
		return
	}
	if err := d.writePort(context.Background(), d.direction, d.output^mask); err != nil {
		// Retry in the same phase
		d.log.Warn().Err(err).Int("pin", pin).Msg("Failed to toggle blinking pin")
	}
	delay := b.off
	if d.output&mask != 0 {
		delay = b.on
	}
	d.scheduleBlink(pin, delay)
}
