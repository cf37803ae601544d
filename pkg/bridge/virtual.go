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
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"
)

// VirtualBus is an in-memory I2C bus populated with simulated PCF857x
// expanders. It implements both API and I2CBus.
type VirtualBus struct {
	mutex      sync.Mutex
	expanders  map[uint8]*VirtualExpander
	interrupts map[int]*VirtualExpander
}

// NewVirtualBus creates an empty virtual bus.
func NewVirtualBus() *VirtualBus {
	return &VirtualBus{
		expanders:  make(map[uint8]*VirtualExpander),
		interrupts: make(map[int]*VirtualExpander),
	}
}

// AddExpander places a simulated expander with given pin count (8 or 16)
// at given address.
func (b *VirtualBus) AddExpander(address uint8, pinCount int) *VirtualExpander {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	mask := uint16(1<<uint(pinCount)) - 1
	x := &VirtualExpander{
		address: address,
		width:   pinCount,
		mask:    mask,
		latch:   mask,
		edges:   make(chan struct{}, 1),
	}
	b.expanders[address] = x
	return x
}

// ConnectInterrupt wires the INT line of the given expander to the
// host pin with given number.
func (b *VirtualBus) ConnectInterrupt(pinNumber int, x *VirtualExpander) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.interrupts[pinNumber] = x
}

// Open the I2C bus
func (b *VirtualBus) I2CBus() (I2CBus, error) {
	return b, nil
}

// Interrupt returns the INT line of the expander connected to given pin.
func (b *VirtualBus) Interrupt(pinNumber int) (InterruptPin, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	x, found := b.interrupts[pinNumber]
	if !found {
		return nil, fmt.Errorf("invalid pin %d", pinNumber)
	}
	return x, nil
}

// Execute an option on the bus.
func (b *VirtualBus) Execute(ctx context.Context, address uint8, op func(ctx context.Context, dev I2CDevice) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mutex.Lock()
	x, found := b.expanders[address]
	b.mutex.Unlock()
	if !found {
		return fmt.Errorf("device 0x%02x not found", address)
	}
	return op(ctx, x)
}

// DetectSlaveAddresses returns the addresses of all expanders, sorted.
func (b *VirtualBus) DetectSlaveAddresses() []byte {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	result := lo.Keys(b.expanders)
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}

func (b *VirtualBus) Close() error {
	return nil
}

// VirtualExpander simulates a single PCF8574/PCF8575 chip.
// A pin reads high when its latch bit is 1 and nothing external pulls it low.
type VirtualExpander struct {
	mutex      sync.Mutex
	address    uint8
	width      int
	mask       uint16
	latch      uint16
	pulledLow  uint16
	writes     []uint16
	reads      int
	failWrites bool
	failReads  bool
	edges      chan struct{}
}

// Port returns the level of all pins as the chip would report them.
func (x *VirtualExpander) Port() uint16 {
	x.mutex.Lock()
	defer x.mutex.Unlock()
	return x.port()
}

func (x *VirtualExpander) port() uint16 {
	return x.latch & ^x.pulledLow & x.mask
}

// Latch returns the last word written to the chip.
func (x *VirtualExpander) Latch() uint16 {
	x.mutex.Lock()
	defer x.mutex.Unlock()
	return x.latch
}

// Writes returns all words written to the chip.
func (x *VirtualExpander) Writes() []uint16 {
	x.mutex.Lock()
	defer x.mutex.Unlock()
	return append([]uint16(nil), x.writes...)
}

// Reads returns the number of port reads.
func (x *VirtualExpander) Reads() int {
	x.mutex.Lock()
	defer x.mutex.Unlock()
	return x.reads
}

// FailWrites makes subsequent writes fail (or succeed again).
func (x *VirtualExpander) FailWrites(fail bool) {
	x.mutex.Lock()
	defer x.mutex.Unlock()
	x.failWrites = fail
}

// FailReads makes subsequent reads fail (or succeed again).
func (x *VirtualExpander) FailReads(fail bool) {
	x.mutex.Lock()
	defer x.mutex.Unlock()
	x.failReads = fail
}

// SetInput drives the given pin externally. Driving it low pulls the
// pin to ground, driving it high releases it. A change of the port
// raises the INT line.
func (x *VirtualExpander) SetInput(pin int, level bool) {
	x.mutex.Lock()
	defer x.mutex.Unlock()
	before := x.port()
	if level {
		x.pulledLow &= ^(1 << uint(pin))
	} else {
		x.pulledLow |= 1 << uint(pin)
	}
	if x.port() != before {
		x.raiseInterrupt()
	}
}

func (x *VirtualExpander) raiseInterrupt() {
	select {
	case x.edges <- struct{}{}:
	default:
		// INT already asserted
	}
}

// WaitForEdge blocks until the INT line was asserted or the timeout expires.
func (x *VirtualExpander) WaitForEdge(timeout time.Duration) (bool, error) {
	select {
	case <-x.edges:
		return true, nil
	case <-time.After(timeout):
		return false, nil
	}
}

// Close releases the INT line.
func (x *VirtualExpander) Close() error {
	return nil
}

// ReadByte reads the low byte of the port.
func (x *VirtualExpander) ReadByte() (byte, error) {
	v, err := x.read()
	return uint8(v), err
}

// WriteByte writes the low byte of the latch.
func (x *VirtualExpander) WriteByte(val byte) error {
	return x.write(uint16(val) | (x.mask &^ 0xff))
}

// ReadDevice reads the port, LSB first.
func (x *VirtualExpander) ReadDevice(data []byte) error {
	v, err := x.read()
	if err != nil {
		return err
	}
	for i := range data {
		data[i] = byte(v >> (8 * uint(i)))
	}
	return nil
}

// WriteDevice writes the latch, LSB first.
func (x *VirtualExpander) WriteDevice(data []byte) error {
	var v uint16
	for i, b := range data {
		v |= uint16(b) << (8 * uint(i))
	}
	return x.write(v)
}

func (x *VirtualExpander) read() (uint16, error) {
	x.mutex.Lock()
	defer x.mutex.Unlock()
	if x.failReads {
		return 0, fmt.Errorf("read from 0x%02x: no acknowledge", x.address)
	}
	x.reads++
	return x.port(), nil
}

func (x *VirtualExpander) write(v uint16) error {
	x.mutex.Lock()
	defer x.mutex.Unlock()
	if x.failWrites {
		return fmt.Errorf("write to 0x%02x: no acknowledge", x.address)
	}
	// Only external input changes assert INT, writes do not
	x.latch = v & x.mask
	x.writes = append(x.writes, x.latch)
	return nil
}
