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

// Package pcf857x is a driver for the PCF8574 (8 pins) and PCF8575 (16 pins)
// I2C GPIO expanders.
//
// The chips have no registers. Every write sets the latch of all pins at once
// and every read returns the level of all pins. A pin is used as input by
// writing a 1 to it (quasi-bidirectional), letting external circuitry pull it
// low. The driver keeps a shadow of the latch so single pins can be changed.
//
// The chips have a single active-low INT line that is asserted on any input
// change. When an interrupt pin is configured, the driver reads the port on
// every falling edge, determines the pins that changed and invokes the
// handlers registered for those pins, optionally after a debounce window.
package pcf857x
