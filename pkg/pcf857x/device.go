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
	"fmt"
	"strings"
	"sync"
	"time"

	aerr "github.com/ewoutp/go-aggregate-error"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/binkynet/pcf857x/pkg/bridge"
	"github.com/binkynet/pcf857x/pkg/util"
)

const (
	// Maximum time the interrupt watcher waits for an edge before
	// checking for cancellation.
	interruptWaitTimeout = time.Millisecond * 100
)

// Config of a single device.
type Config struct {
	// Chip variant
	Variant Variant
	// 7-bit I2C address
	Address uint8
	// Host GPIO pin connected to the INT line, or NoInterrupt.
	InterruptPin int
}

// Dependencies of a device.
type Dependencies struct {
	Log zerolog.Logger
	// Bus the device is connected to
	Bus bridge.I2CBus
	// Host GPIO used to open the interrupt pin.
	// Only needed when Config.InterruptPin != NoInterrupt.
	GPIO bridge.GPIO
	// Timer facility, defaults to SystemScheduler.
	Scheduler Scheduler
}

// Device is a single PCF8574/PCF8575 chip.
// All methods are safe for concurrent use.
type Device struct {
	mutex     sync.Mutex
	log       zerolog.Logger
	bus       bridge.I2CBus
	scheduler Scheduler
	variant   Variant
	address   uint8
	label     string
	pinCount  int
	mask      uint16

	direction uint16 // 1 per input pin
	output    uint16 // output level per output pin, 0 for input pins
	pulls     []Pull
	input     uint16 // Last value read from the port
	snapshot  uint16 // Last value seen by the interrupt dispatcher
	ints      []pinInterrupt
	blinks    []pinBlink
	closed    bool

	intPin      int
	intLine     bridge.InterruptPin
	cancelWatch context.CancelFunc
	watchDone   chan struct{}
}

// State is a snapshot of the driver side state of a device.
type State struct {
	Variant Variant
	Address uint8
	// Direction has a bit set for every input pin
	Direction uint16
	// Output is the shadow of the output levels
	Output uint16
	// Input is the last value read from the port
	Input uint16
}

// Word returns the value written to the chip for this state.
func (s State) Word() uint16 {
	return s.Direction | s.Output
}

// Pins returns a single character per pin, highest pin first.
// 'I' is an input, 'H' an output driven high and 'L' an output driven low.
func (s State) Pins() string {
	var sb strings.Builder
	for pin := s.Variant.PinCount() - 1; pin >= 0; pin-- {
		bit := uint16(1) << uint(pin)
		switch {
		case s.Direction&bit != 0:
			sb.WriteByte('I')
		case s.Output&bit != 0:
			sb.WriteByte('H')
		default:
			sb.WriteByte('L')
		}
	}
	return sb.String()
}

// NewPCF8574 probes for a PCF8574 at given address on the given bus.
// Set intPin to NoInterrupt to disable interrupts.
func NewPCF8574(ctx context.Context, bus bridge.I2CBus, address uint8, intPin int, deps Dependencies) (*Device, error) {
	deps.Bus = bus
	return New(ctx, Config{Variant: PCF8574, Address: address, InterruptPin: intPin}, deps)
}

// NewPCF8575 probes for a PCF8575 at given address on the given bus.
// Set intPin to NoInterrupt to disable interrupts.
func NewPCF8575(ctx context.Context, bus bridge.I2CBus, address uint8, intPin int, deps Dependencies) (*Device, error) {
	deps.Bus = bus
	return New(ctx, Config{Variant: PCF8575, Address: address, InterruptPin: intPin}, deps)
}

// New probes for a device with given config.
// When the device does not respond, an error is returned that satisfies IsDeviceNotFound.
// On success all pins are configured as input and, when configured, the
// interrupt pin is watched for falling edges.
func New(ctx context.Context, cfg Config, deps Dependencies) (*Device, error) {
	pinCount := cfg.Variant.PinCount()
	if pinCount == 0 {
		return nil, errors.Wrapf(ErrInvalidArgument, "invalid variant '%s'", cfg.Variant)
	}
	if cfg.Address > 0x7f {
		return nil, errors.Wrapf(ErrInvalidArgument, "address 0x%02x is not a 7-bit address", cfg.Address)
	}
	if deps.Bus == nil {
		return nil, errors.Wrap(ErrInvalidArgument, "bus is required")
	}
	if cfg.InterruptPin != NoInterrupt && (cfg.InterruptPin < 0 || deps.GPIO == nil) {
		return nil, errors.Wrapf(ErrInvalidArgument, "cannot use interrupt pin %d", cfg.InterruptPin)
	}
	if deps.Scheduler == nil {
		deps.Scheduler = SystemScheduler()
	}
	label := fmt.Sprintf("0x%02x", cfg.Address)
	mask := uint16(1<<uint(pinCount)) - 1
	d := &Device{
		log: deps.Log.With().
			Str("component", "pcf857x").
			Str("variant", string(cfg.Variant)).
			Str("address", label).
			Logger(),
		bus:       deps.Bus,
		scheduler: deps.Scheduler,
		variant:   cfg.Variant,
		address:   cfg.Address,
		label:     label,
		pinCount:  pinCount,
		mask:      mask,
		direction: mask, // All input
		output:    0,
		pulls:     make([]Pull, pinCount),
		ints:      make([]pinInterrupt, pinCount),
		blinks:    make([]pinBlink, pinCount),
		intPin:    cfg.InterruptPin,
	}
	for i := range d.pulls {
		d.pulls[i] = PullUp
	}

	// Probe
	if _, err := d.readPort(ctx); err != nil {
		return nil, errors.Wrapf(ErrDeviceNotFound, "no %s at address %s: %s", cfg.Variant, label, err)
	}
	// Release all pins
	if err := d.writePort(ctx, mask, 0); err != nil {
		return nil, err
	}
	v, err := d.readPort(ctx)
	if err != nil {
		return nil, err
	}
	d.snapshot = v

	if cfg.InterruptPin != NoInterrupt {
		line, err := deps.GPIO.Interrupt(cfg.InterruptPin)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to open interrupt pin %d", cfg.InterruptPin)
		}
		watchCtx, cancel := context.WithCancel(context.Background())
		d.intLine = line
		d.cancelWatch = cancel
		d.watchDone = make(chan struct{})
		go d.watchInterrupts(watchCtx)
	}

	d.log.Info().Int("int_pin", cfg.InterruptPin).Msg("Device created")
	return d, nil
}

// Destroy closes the device referenced by dev and sets the reference to nil.
func Destroy(ctx context.Context, dev **Device) error {
	if dev == nil || *dev == nil {
		return errors.Wrap(ErrInvalidHandle, "cannot destroy nil device")
	}
	err := (*dev).Close(ctx)
	*dev = nil
	return err
}

// Close stops all timers and the interrupt watcher and brings
// the device back to a safe state (all pins released).
// Calling Close on a closed device is a no-op.
// Close waits for the interrupt watcher, so it must not be called
// from an interrupt handler.
func (d *Device) Close(ctx context.Context) error {
	if d == nil {
		return errors.Wrap(ErrInvalidHandle, "nil device")
	}
	d.mutex.Lock()
	if d.closed {
		d.mutex.Unlock()
		return nil
	}
	d.closed = true
	for pin := range d.ints {
		d.ints[pin].cancel()
	}
	for pin := range d.blinks {
		d.blinks[pin].cancel()
	}
	cancel, done := d.cancelWatch, d.watchDone
	d.mutex.Unlock()

	var ae aerr.AggregateError
	if cancel != nil {
		cancel()
		<-done
		if err := d.intLine.Close(); err != nil {
			ae.Add(errors.Wrapf(err, "failed to close interrupt pin %d", d.intPin))
		}
	}

	d.mutex.Lock()
	if err := d.writePort(ctx, d.mask, 0); err != nil {
		ae.Add(err)
	}
	d.mutex.Unlock()

	if err := ae.AsError(); err != nil {
		d.log.Error().Err(err).Msg("Device closed with errors")
		return err
	}
	d.log.Info().Msg("Device closed")
	return nil
}

// Variant returns the chip variant.
func (d *Device) Variant() Variant {
	if d == nil {
		return ""
	}
	return d.variant
}

// Address returns the I2C address of the device.
func (d *Device) Address() uint8 {
	if d == nil {
		return 0
	}
	return d.address
}

// PinCount returns the number of pins of the device
func (d *Device) PinCount() int {
	if d == nil {
		return 0
	}
	return d.pinCount
}

func (d *Device) String() string {
	return fmt.Sprintf("%s_%s", d.variant, d.label)
}

// State returns the current driver side state.
func (d *Device) State() (State, error) {
	if err := d.lock(); err != nil {
		return State{}, err
	}
	defer d.mutex.Unlock()
	return d.state(), nil
}

func (d *Device) state() State {
	return State{
		Variant:   d.variant,
		Address:   d.address,
		Direction: d.direction,
		Output:    d.output,
		Input:     d.input,
	}
}

// PrintState logs the pin directions, the output shadow and the last
// value read from the port.
func (d *Device) PrintState() {
	if d == nil {
		return
	}
	s, err := d.State()
	if err != nil {
		d.log.Warn().Err(err).Msg("Cannot print state")
		return
	}
	d.log.Info().
		Str("pins", s.Pins()).
		Str("output", fmt.Sprintf("0x%04x", s.Word())).
		Str("input", fmt.Sprintf("0x%04x", s.Input)).
		Msg("Device state")
}

// lock the device, failing for nil or closed devices.
func (d *Device) lock() error {
	if d == nil {
		return errors.Wrap(ErrInvalidHandle, "nil device")
	}
	d.mutex.Lock()
	if d.closed {
		d.mutex.Unlock()
		return errors.Wrapf(ErrInvalidHandle, "device %s is closed", d)
	}
	return nil
}

// bitMask calculates a bit map (bit set for the given pin)
func (d *Device) bitMask(pin int) (uint16, error) {
	if pin < 0 || pin >= d.pinCount {
		return 0, errors.Wrapf(ErrInvalidPin, "Pin must be between 0 and %d, got %d", d.pinCount-1, pin)
	}
	return uint16(1) << uint(pin), nil
}

// readPort reads the level of all pins.
// Must be called with the mutex held.
func (d *Device) readPort(ctx context.Context) (uint16, error) {
	var value uint16
	if err := d.bus.Execute(ctx, d.address, func(ctx context.Context, dev bridge.I2CDevice) error {
		if d.pinCount == 8 {
			x, err := dev.ReadByte()
			value = uint16(x)
			return err
		}
		var buf [2]byte
		if err := dev.ReadDevice(buf[:]); err != nil {
			return err
		}
		value = uint16(buf[0]) | uint16(buf[1])<<8
		return nil
	}); err != nil {
		busErrorsTotal.WithLabelValues(d.label, "read").Inc()
		return 0, errors.Wrapf(err, "read port of %s failed", d)
	}
	value &= d.mask
	d.input = value
	d.log.Debug().Str("value", fmt.Sprintf("0x%04x", value)).Msg("Read port")
	return value, nil
}

// writePort writes the word for the given direction & output to the chip.
// The shadow is only updated when the write succeeded.
// Must be called with the mutex held.
func (d *Device) writePort(ctx context.Context, direction, output uint16) error {
	direction &= d.mask
	output &= d.mask &^ direction
	word := direction | output
	if err := d.bus.Execute(ctx, d.address, func(ctx context.Context, dev bridge.I2CDevice) error {
		if d.pinCount == 8 {
			return dev.WriteByte(uint8(word))
		}
		return dev.WriteDevice([]byte{byte(word), byte(word >> 8)})
	}); err != nil {
		busErrorsTotal.WithLabelValues(d.label, "write").Inc()
		return errors.Wrapf(err, "write 0x%04x to %s failed", word, d)
	}
	d.direction = direction
	d.output = output
	outputGauge.WithLabelValues(d.label).Set(float64(word))
	d.log.Debug().Str("value", fmt.Sprintf("0x%04x", word)).Msg("Wrote port")
	return nil
}

// applyPort commits the given direction & output, writing to the chip
// only when the resulting word differs from the current one.
// Must be called with the mutex held.
func (d *Device) applyPort(ctx context.Context, direction, output uint16) error {
	direction &= d.mask
	output &= d.mask &^ direction
	if direction|output == d.direction|d.output {
		d.direction = direction
		d.output = output
		return nil
	}
	return d.writePort(ctx, direction, output)
}

// watchInterrupts polls the port on every edge of the interrupt line
// until the given context is canceled.
func (d *Device) watchInterrupts(ctx context.Context) {
	defer close(d.watchDone)
	util.UntilCanceled(ctx, d.log, "interrupt poll", func() error {
		edge, err := d.intLine.WaitForEdge(interruptWaitTimeout)
		if err != nil {
			return err
		}
		if !edge {
			return nil
		}
		return d.poll(ctx)
	})
}
