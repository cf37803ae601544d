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

package bridge

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

type periphBridge struct {
	mutex   sync.Mutex
	busName string
	bus     I2CBus
}

// NewPeriphBridge implements the bridge on top of the periph.io host drivers.
// busName selects the I2C bus ("" for the first one found).
func NewPeriphBridge(busName string) (API, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "host.Init failed")
	}
	return &periphBridge{busName: busName}, nil
}

// Open the I2C bus
func (p *periphBridge) I2CBus() (I2CBus, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.bus == nil {
		bus, err := i2creg.Open(p.busName)
		if err != nil {
			return nil, errors.Wrapf(err, "i2creg.Open(%q) failed", p.busName)
		}
		p.bus = NewPeriphBus(bus)
	}
	return p.bus, nil
}

// Interrupt opens the host pin with given number as a falling edge
// interrupt source.
func (p *periphBridge) Interrupt(pinNumber int) (InterruptPin, error) {
	pin := gpioreg.ByName(strconv.Itoa(pinNumber))
	if pin == nil {
		return nil, errors.Errorf("GPIO pin %d not found", pinNumber)
	}
	return NewPeriphInterruptPin(pin)
}

func (p *periphBridge) Close() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.bus != nil {
		bus := p.bus
		p.bus = nil
		if err := bus.Close(); err != nil {
			return errors.Wrap(err, "Close failed")
		}
	}
	return nil
}

type periphBus struct {
	mutex sync.Mutex
	bus   i2c.Bus
}

// NewPeriphBus wraps a periph.io I2C bus.
func NewPeriphBus(bus i2c.Bus) I2CBus {
	return &periphBus{bus: bus}
}

// Execute an option on the bus.
func (b *periphBus) Execute(ctx context.Context, address uint8, op func(context.Context, I2CDevice) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mutex.Lock()
	defer b.mutex.Unlock()

	label := strconv.Itoa(int(address))
	i2cExecuteCounters.WithLabelValues(label).Inc()
	dev := &periphDevice{dev: &i2c.Dev{Bus: b.bus, Addr: uint16(address)}}
	if err := op(ctx, dev); err != nil {
		i2cExecuteErrorCounters.WithLabelValues(label).Inc()
		return errors.Wrapf(err, "execute operation on address 0x%02x failed", address)
	}
	return nil
}

// DetectSlaveAddresses probes the bus to detect available addresses.
func (b *periphBus) DetectSlaveAddresses() []byte {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	var result []byte
	var buf [1]byte
	for addr := uint8(1); addr < 128; addr++ {
		if err := b.bus.Tx(uint16(addr), nil, buf[:]); err == nil {
			result = append(result, addr)
		}
	}
	return result
}

// Close the bus
func (b *periphBus) Close() error {
	if c, ok := b.bus.(i2c.BusCloser); ok {
		return c.Close()
	}
	return nil
}

type periphDevice struct {
	dev *i2c.Dev
}

// Read a byte from device
func (d *periphDevice) ReadByte() (byte, error) {
	var buf [1]byte
	if err := d.dev.Tx(nil, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// Write a byte to device
func (d *periphDevice) WriteByte(val byte) error {
	return d.dev.Tx([]byte{val}, nil)
}

// Read a block of data directly from the device
func (d *periphDevice) ReadDevice(data []byte) error {
	return d.dev.Tx(nil, data)
}

// Write a block of data directly to the device
func (d *periphDevice) WriteDevice(data []byte) error {
	return d.dev.Tx(data, nil)
}

type periphInterruptPin struct {
	pin gpio.PinIn
}

// NewPeriphInterruptPin configures the given periph.io pin as pulled-up
// input with falling edge detection.
func NewPeriphInterruptPin(pin gpio.PinIn) (InterruptPin, error) {
	if err := pin.In(gpio.PullUp, gpio.FallingEdge); err != nil {
		return nil, errors.Wrapf(err, "In(%s) failed", pin)
	}
	return &periphInterruptPin{pin: pin}, nil
}

// WaitForEdge blocks until an edge is detected or the timeout expires.
func (p *periphInterruptPin) WaitForEdge(timeout time.Duration) (bool, error) {
	return p.pin.WaitForEdge(timeout), nil
}

// Close releases the pin.
func (p *periphInterruptPin) Close() error {
	return p.pin.Halt()
}
