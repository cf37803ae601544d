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

	"github.com/pkg/errors"
)

// SetMode sets the mode of the pin at given index (0...).
// Switching a pin to output drives it low.
func (d *Device) SetMode(ctx context.Context, pin int, mode Mode) error {
	if err := d.lock(); err != nil {
		return err
	}
	defer d.mutex.Unlock()

	mask, err := d.bitMask(pin)
	if err != nil {
		return err
	}
	switch mode {
	case ModeInput:
		return d.setInput(ctx, pin, mask)
	case ModeOutput, ModeOutputOD:
		if d.direction&mask == 0 {
			// Already output, keep level
			return nil
		}
		return d.setOutput(ctx, pin, mask, false)
	default:
		return errors.Wrapf(ErrInvalidArgument, "invalid mode %s for pin %d", mode, pin)
	}
}

// Mode returns the mode of the pin at given index (0...).
func (d *Device) Mode(pin int) (Mode, error) {
	if err := d.lock(); err != nil {
		return ModeInput, err
	}
	defer d.mutex.Unlock()

	mask, err := d.bitMask(pin)
	if err != nil {
		return ModeInput, err
	}
	if d.direction&mask != 0 {
		return ModeInput, nil
	}
	return ModeOutput, nil
}

// SetupOutput configures the pin at given index (0...) as output
// with the given initial level.
func (d *Device) SetupOutput(ctx context.Context, pin int, level bool) error {
	if err := d.lock(); err != nil {
		return err
	}
	defer d.mutex.Unlock()

	mask, err := d.bitMask(pin)
	if err != nil {
		return err
	}
	return d.setOutput(ctx, pin, mask, level)
}

// SetupInput configures the pin at given index (0...) as input.
// The chip only has a weak pull-up, so PullDown is rejected.
func (d *Device) SetupInput(ctx context.Context, pin int, pull Pull) error {
	if err := d.lock(); err != nil {
		return err
	}
	defer d.mutex.Unlock()

	mask, err := d.bitMask(pin)
	if err != nil {
		return err
	}
	return d.setupInput(ctx, pin, mask, pull)
}

func (d *Device) setupInput(ctx context.Context, pin int, mask uint16, pull Pull) error {
	switch pull {
	case PullNone, PullUp:
	default:
		return errors.Wrapf(ErrInvalidArgument, "pin %d does not support pull %d", pin, pull)
	}
	if err := d.setInput(ctx, pin, mask); err != nil {
		return err
	}
	d.pulls[pin] = pull
	return nil
}

// setInput releases the pin and cancels any blink on it.
// Must be called with the mutex held.
func (d *Device) setInput(ctx context.Context, pin int, mask uint16) error {
	wasOutput := d.direction&mask == 0
	if err := d.applyPort(ctx, d.direction|mask, d.output&^mask); err != nil {
		return err
	}
	d.blinks[pin].cancel()
	if !wasOutput {
		return nil
	}
	// Writing the port does not assert INT, so the level of the released
	// pin becomes its new reference without being reported.
	value, err := d.readPort(ctx)
	if err != nil {
		return err
	}
	d.snapshot = d.snapshot&^mask | value&mask
	d.ints[pin].reported = value&mask != 0
	return nil
}

// setOutput makes the pin an output with given level.
// Must be called with the mutex held.
func (d *Device) setOutput(ctx context.Context, pin int, mask uint16, level bool) error {
	output := d.output &^ mask
	if level {
		output |= mask
	}
	if err := d.applyPort(ctx, d.direction&^mask, output); err != nil {
		return err
	}
	// Output pins do not debounce
	if pi := &d.ints[pin]; pi.state == IntStateDebouncing {
		pi.cancel()
		pi.state = IntStateArmed
	}
	return nil
}

// Read the level of the pin at given index (0...).
// Every call reads the port from the chip.
func (d *Device) Read(ctx context.Context, pin int) (bool, error) {
	if err := d.lock(); err != nil {
		return false, err
	}
	defer d.mutex.Unlock()

	mask, err := d.bitMask(pin)
	if err != nil {
		return false, err
	}
	value, err := d.readPort(ctx)
	if err != nil {
		return false, err
	}
	return value&mask != 0, nil
}

// OutputLevel returns the shadow output level of the output pin at given index (0...).
func (d *Device) OutputLevel(pin int) (bool, error) {
	if err := d.lock(); err != nil {
		return false, err
	}
	defer d.mutex.Unlock()

	mask, err := d.outputMask(pin)
	if err != nil {
		return false, err
	}
	return d.output&mask != 0, nil
}

// Write sets the output pin at given index (0...) to the given level.
func (d *Device) Write(ctx context.Context, pin int, level bool) error {
	if err := d.lock(); err != nil {
		return err
	}
	defer d.mutex.Unlock()

	mask, err := d.outputMask(pin)
	if err != nil {
		return err
	}
	output := d.output &^ mask
	if level {
		output |= mask
	}
	return d.writePort(ctx, d.direction, output)
}

// Toggle inverts the level of the output pin at given index (0...).
func (d *Device) Toggle(ctx context.Context, pin int) error {
	if err := d.lock(); err != nil {
		return err
	}
	defer d.mutex.Unlock()

	mask, err := d.outputMask(pin)
	if err != nil {
		return err
	}
	return d.writePort(ctx, d.direction, d.output^mask)
}

// outputMask returns the bit mask of the given pin, failing for input pins.
func (d *Device) outputMask(pin int) (uint16, error) {
	mask, err := d.bitMask(pin)
	if err != nil {
		return 0, err
	}
	if d.direction&mask != 0 {
		return 0, errors.Wrapf(ErrInvalidDirection, "pin %d has direction input", pin)
	}
	return mask, nil
}
