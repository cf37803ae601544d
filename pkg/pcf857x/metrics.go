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
	"github.com/binkynet/pcf857x/pkg/metrics"
)

const (
	subSystem = "device"
)

var (
	// Total number of interrupt polls per device
	interruptsTotal = metrics.MustRegisterCounterVec(subSystem,
		"interrupts_total",
		"Total number of interrupt polls per device",
		"address")
	// Total number of invoked interrupt handlers per pin
	callbacksTotal = metrics.MustRegisterCounterVec(subSystem,
		"callbacks_total",
		"Total number of invoked interrupt handlers per pin",
		"address", "pin")
	// Total number of debounce windows that ended without a stable change
	debounceRejectedTotal = metrics.MustRegisterCounterVec(subSystem,
		"debounce_rejected_total",
		"Total number of debounce windows that ended without a stable change",
		"address", "pin")
	// Total number of failed port reads & writes
	busErrorsTotal = metrics.MustRegisterCounterVec(subSystem,
		"bus_errors_total",
		"Total number of failed port reads & writes",
		"address", "op")
	// Last word written to the port
	outputGauge = metrics.MustRegisterGaugeVec(subSystem,
		"output",
		"Last word written to the port",
		"address")
)
