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
	"github.com/binkynet/pcf857x/pkg/metrics"
)

const (
	subSystem = "bridge"
)

var (
	// Total number of times I2CBus.Execute is called
	i2cExecuteCounters = metrics.MustRegisterCounterVec(subSystem,
		"execute_total",
		"Total number of times I2CBus.Execute is called",
		"address")
	// Total number of times I2CBus.Execute failed
	i2cExecuteErrorCounters = metrics.MustRegisterCounterVec(subSystem,
		"execute_error_total",
		"Total number of times I2CBus.Execute failed",
		"address")
	// Total number of i2c lockup recoveries attempted
	i2cRecoveryAttemptsTotal = metrics.MustRegisterCounter(subSystem,
		"recovery_attempts_total",
		"Total number of i2c lockup recoveries attempted")
	// Total number of i2c lockup recoveries that failed
	i2cRecoveryFailedTotal = metrics.MustRegisterCounter(subSystem,
		"recovery_failed_total",
		"Total number of i2c lockup recoveries that failed")
	// Total number of i2c lockup recoveries that succeeded
	i2cRecoverySucceededTotal = metrics.MustRegisterCounter(subSystem,
		"recovery_succeeded_total",
		"Total number of i2c lockup recoveries that succeeded")
	// Total number of failed operations without a recovery
	i2cRecoverySkippedTotal = metrics.MustRegisterCounter(subSystem,
		"recovery_skipped_total",
		"Total number of failed operations without a lockup recovery")
)
