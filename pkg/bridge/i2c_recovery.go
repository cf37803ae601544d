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
	"os"
	"strconv"
	"time"

	"github.com/ecc1/gpio"
	"github.com/pkg/errors"
)

const (
	sclRecoveryPulses     = 10
	sclRecoveryHalfPeriod = time.Microsecond * 10 // 50kHz
	sclSettleTime         = time.Second * 2
	gpioUnexportPath      = "/sys/class/gpio/unexport"
)

// sclRecovery frees a bus on which a slave holds SDA low halfway a byte,
// by clocking SCL through the GPIO function of the SCL pin.
type sclRecovery struct {
	pin int
}

// clock the SCL pin and hand it back to the I2C controller.
func (r *sclRecovery) clock() error {
	scl, err := gpio.Output(r.pin, true, true)
	if err != nil {
		return errors.Wrapf(err, "cannot drive SCL pin %d", r.pin)
	}
	for i := 0; i < sclRecoveryPulses; i++ {
		for _, level := range []bool{false, true} {
			time.Sleep(sclRecoveryHalfPeriod)
			if err := scl.Write(level); err != nil {
				return errors.Wrapf(err, "cannot clock SCL pin %d", r.pin)
			}
		}
	}
	if _, err := gpio.Input(r.pin, true); err != nil {
		return errors.Wrapf(err, "cannot release SCL pin %d", r.pin)
	}
	if err := os.WriteFile(gpioUnexportPath, []byte(strconv.Itoa(r.pin)), 0644); err != nil {
		return errors.Wrapf(err, "cannot unexport SCL pin %d", r.pin)
	}
	return nil
}
