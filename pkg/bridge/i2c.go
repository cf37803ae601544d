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
	"runtime"
	"strconv"
	"time"

	aerr "github.com/ewoutp/go-aggregate-error"
	"github.com/pkg/errors"
)

// I2CBus gives serialized access to the devices on an I2C bus.
type I2CBus interface {
	// Execute an option on the bus.
	Execute(ctx context.Context, address uint8, op func(ctx context.Context, dev I2CDevice) error) error
	// DetectSlaveAddresses probes the bus to detect available addresses.
	DetectSlaveAddresses() []byte
	// Close the bus and all devices on it
	Close() error
}

// I2CDevice communicates with a device on the I2C Bus that has a specific address.
// The PCF857x family has no registers, so only plain reads and writes are needed.
type I2CDevice interface {
	// Read a byte from device
	ReadByte() (byte, error)
	// Write a byte to device
	WriteByte(val byte) (err error)
	// Read a block of data directly from the device
	ReadDevice(data []byte) (err error)
	// Write a block of data directly to the device
	WriteDevice(data []byte) (err error)
}

const (
	// An operation is tried once more after closing all devices
	// (and clocking SCL when recovery is configured).
	maxExecuteAttempts = 2
)

// i2cBus is a linux i2c-dev bus. All access happens on a single locked OS thread.
type i2cBus struct {
	location string
	devices  map[uint8]*i2cDevice
	requests chan busRequest
	recovery *sclRecovery
}

type busRequest struct {
	run    func() error
	result chan error
}

// NewI2CBus opens the I2C bus at the given location (/dev/i2c-N).
// When sclPin >= 0, a failed operation triggers a bus lockup recovery
// by clocking the SCL line through that host GPIO pin.
func NewI2CBus(location string, sclPin int) (I2CBus, error) {
	b := &i2cBus{
		location: location,
		devices:  make(map[uint8]*i2cDevice),
		requests: make(chan busRequest),
	}
	if sclPin >= 0 {
		b.recovery = &sclRecovery{pin: sclPin}
	}
	go b.serve()
	if b.recovery != nil {
		if err := b.recovery.clock(); err != nil {
			return nil, errors.Wrap(err, "initial bus recovery failed")
		}
		time.Sleep(sclSettleTime)
	}
	return b, nil
}

// serve runs requests until the process ends.
func (b *i2cBus) serve() {
	runtime.LockOSThread()
	for req := range b.requests {
		req.result <- req.run()
	}
}

// do runs f on the bus thread and returns its result.
// Once queued, f always runs to completion.
func (b *i2cBus) do(ctx context.Context, f func() error) error {
	req := busRequest{run: f, result: make(chan error, 1)}
	select {
	case b.requests <- req:
	case <-ctx.Done():
		return ctx.Err()
	}
	return <-req.result
}

// Execute an option on the bus.
func (b *i2cBus) Execute(ctx context.Context, address uint8, op func(context.Context, I2CDevice) error) error {
	return b.do(ctx, func() error {
		label := strconv.Itoa(int(address))
		i2cExecuteCounters.WithLabelValues(label).Inc()
		if err := b.execute(ctx, address, op); err != nil {
			i2cExecuteErrorCounters.WithLabelValues(label).Inc()
			return err
		}
		return nil
	})
}

// Must be called on the bus thread.
func (b *i2cBus) execute(ctx context.Context, address uint8, op func(context.Context, I2CDevice) error) error {
	var lastErr error
	for attempt := 0; attempt < maxExecuteAttempts; attempt++ {
		dev, err := b.device(address)
		if err != nil {
			return errors.Wrapf(err, "cannot open device 0x%02x", address)
		}
		if lastErr = op(ctx, dev); lastErr == nil {
			return nil
		}
		// Start over with fresh file handles
		b.closeDevices()
		if err := b.recover(); err != nil {
			return err
		}
	}
	return errors.Wrapf(lastErr, "operation on 0x%02x failed after %d attempts", address, maxExecuteAttempts)
}

// device returns the open device at given address, opening it when needed.
// Must be called on the bus thread.
func (b *i2cBus) device(address uint8) (*i2cDevice, error) {
	if d, found := b.devices[address]; found {
		return d, nil
	}
	d, err := openI2CDevice(b.location, address)
	if err != nil {
		return nil, err
	}
	b.devices[address] = d
	return d, nil
}

// Must be called on the bus thread.
func (b *i2cBus) recover() error {
	if b.recovery == nil {
		i2cRecoverySkippedTotal.Inc()
		return nil
	}
	i2cRecoveryAttemptsTotal.Inc()
	if err := b.recovery.clock(); err != nil {
		i2cRecoveryFailedTotal.Inc()
		return errors.Wrap(err, "bus recovery failed")
	}
	i2cRecoverySucceededTotal.Inc()
	return nil
}

// Must be called on the bus thread.
func (b *i2cBus) closeDevices() error {
	var ae aerr.AggregateError
	for address, d := range b.devices {
		if err := d.close(); err != nil {
			ae.Add(errors.Wrapf(err, "cannot close device 0x%02x", address))
		}
		delete(b.devices, address)
	}
	return ae.AsError()
}

// DetectSlaveAddresses probes the bus to detect available addresses.
func (b *i2cBus) DetectSlaveAddresses() []byte {
	var found []byte
	b.do(context.Background(), func() error {
		for address := uint8(1); address < 128; address++ {
			d, err := openI2CDevice(b.location, address)
			if err != nil {
				continue
			}
			if d.present() {
				found = append(found, address)
			}
			d.close()
		}
		return nil
	})
	return found
}

// Close the bus and all devices on it
func (b *i2cBus) Close() error {
	return b.do(context.Background(), b.closeDevices)
}
