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
	"sync"
	"time"

	"github.com/ecc1/gpio"
	"github.com/pkg/errors"
)

const (
	rpiI2CLocation = "/dev/i2c-1"
)

type piBridge struct {
	mutex  sync.Mutex
	sclPin int
	bus    I2CBus
}

// NewRaspberryPiBridge implements the bridge for Raspberry PI's.
// The I2C bus is /dev/i2c-1, interrupt pins use the sysfs GPIO interface.
// Set sclPin to the GPIO number of the SCL line to enable bus lockup
// recovery, or -1 to disable it.
func NewRaspberryPiBridge(sclPin int) (API, error) {
	return &piBridge{sclPin: sclPin}, nil
}

// Open the I2C bus
func (p *piBridge) I2CBus() (I2CBus, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.bus == nil {
		bus, err := NewI2CBus(rpiI2CLocation, p.sclPin)
		if err != nil {
			return nil, errors.Wrap(err, "NewI2CBus failed")
		}
		p.bus = bus
	}
	return p.bus, nil
}

// Interrupt opens the host pin with given number as a falling edge
// interrupt source.
func (p *piBridge) Interrupt(pinNumber int) (InterruptPin, error) {
	// The INT line of the expanders is active low, open drain.
	// With activeLow the asserted line reads as 1 and its falling edge is a
	// logical rising edge.
	pin, err := gpio.Interrupt(pinNumber, true, "rising")
	if err != nil {
		return nil, errors.Wrapf(err, "Interrupt[%d] failed", pinNumber)
	}
	return &sysfsInterruptPin{pin: pin}, nil
}

func (p *piBridge) Close() error {
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

// sysfsInterruptPin adapts a sysfs GPIO interrupt pin.
type sysfsInterruptPin struct {
	pin gpio.InterruptPin
}

// WaitForEdge blocks until the line is asserted or the timeout expires.
func (p *sysfsInterruptPin) WaitForEdge(timeout time.Duration) (bool, error) {
	err := p.pin.Wait(timeout)
	if err == nil {
		return true, nil
	}
	if _, ok := err.(gpio.TimeoutError); ok {
		return false, nil
	}
	return false, errors.Wrap(err, "wait for interrupt failed")
}

// Close releases the pin.
func (p *sysfsInterruptPin) Close() error {
	return nil
}
