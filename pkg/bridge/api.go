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
	"time"
)

// API of the bridge, the host hardware that connects the I2C bus
// and the interrupt line of the expanders to the host.
type API interface {
	GPIO

	// Open the I2C bus
	I2CBus() (I2CBus, error)
	// Close the bridge and the bus opened through it.
	Close() error
}

// GPIO gives access to the GPIO pins of the host.
type GPIO interface {
	// Interrupt opens the host pin with given number as a falling edge
	// interrupt source.
	Interrupt(pinNumber int) (InterruptPin, error)
}

// InterruptPin is the interface satisfied by host GPIO pins
// that are used as interrupt source.
type InterruptPin interface {
	// WaitForEdge blocks until an edge is detected or the timeout expires.
	// Returns true when an edge was detected, false on timeout.
	// An error is returned when the pin cannot be waited on.
	WaitForEdge(timeout time.Duration) (bool, error)
	// Close releases the pin.
	Close() error
}
