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
	"fmt"
	"time"
)

// Variant represents the actual chip model.
type Variant string

const (
	PCF8574 Variant = "PCF8574"
	PCF8575 Variant = "PCF8575"

	// DefaultAddress is the address of a chip with A0..A2 tied low.
	DefaultAddress uint8 = 0x20
	// NoInterrupt disables the interrupt line.
	NoInterrupt = -1
)

// PinCount returns the number of pins of the variant, 0 for unknown variants.
func (v Variant) PinCount() int {
	switch v {
	case PCF8574:
		return 8
	case PCF8575:
		return 16
	default:
		return 0
	}
}

// Mode of a pin
type Mode uint8

const (
	ModeInput Mode = iota
	ModeOutput
	// ModeOutputOD is an open drain output. Since the chip only sinks current
	// this behaves the same as ModeOutput.
	ModeOutputOD
)

func (m Mode) String() string {
	switch m {
	case ModeInput:
		return "input"
	case ModeOutput:
		return "output"
	case ModeOutputOD:
		return "output-od"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// Pull configuration of an input pin
type Pull uint8

const (
	PullNone Pull = iota
	PullUp
	PullDown
)

// IntMode selects the level changes that invoke an interrupt handler.
type IntMode uint8

const (
	IntModeNone IntMode = iota
	IntModeEdgePos
	IntModeEdgeNeg
	IntModeEdgeAny
	IntModeLevelHi
	IntModeLevelLo
)

// accepts returns true when a newly reported level must invoke the handler.
func (m IntMode) accepts(level bool) bool {
	switch m {
	case IntModeEdgePos, IntModeLevelHi:
		return level
	case IntModeEdgeNeg, IntModeLevelLo:
		return !level
	case IntModeEdgeAny:
		return true
	default:
		return false
	}
}

func (m IntMode) valid() bool {
	return m >= IntModeEdgePos && m <= IntModeLevelLo
}

// IntState is the interrupt state of a single pin.
type IntState uint8

const (
	IntStateDisabled IntState = iota
	IntStateArmed
	IntStateDebouncing
	IntStateFired
)

func (s IntState) String() string {
	switch s {
	case IntStateDisabled:
		return "disabled"
	case IntStateArmed:
		return "armed"
	case IntStateDebouncing:
		return "debouncing"
	case IntStateFired:
		return "fired"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// IntHandler is invoked with the pin, its new level and the argument
// given when the handler was registered.
type IntHandler func(pin int, level bool, arg interface{})

// Scheduler is the timer facility used for debounce windows and blinking.
type Scheduler interface {
	// AfterFunc calls f in its own goroutine after the given duration.
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a scheduled callback.
type Timer interface {
	// Stop prevents the callback from being called.
	// Returns false when it was already called or stopped.
	Stop() bool
}

type systemScheduler struct{}

// SystemScheduler returns a Scheduler backed by runtime timers.
func SystemScheduler() Scheduler {
	return systemScheduler{}
}

func (systemScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
