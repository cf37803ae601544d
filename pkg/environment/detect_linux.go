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

package environment

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

const (
	rpiI2CDevice = "/dev/i2c-1"
)

// AutoDetectBridgeType detects the default bridge type based on the environment.
func AutoDetectBridgeType(log zerolog.Logger) string {
	var name unix.Utsname
	if err := unix.Uname(&name); err != nil {
		log.Warn().Err(err).Msg("Uname failed, using virtual bridge")
		return "virtual"
	}
	_, err := os.Stat(rpiI2CDevice)
	result := detectBridgeType(unix.ByteSliceToString(name.Machine[:]), unix.ByteSliceToString(name.Release[:]), err == nil)
	log.Debug().Str("bridge", result).Msg("Detected bridge type")
	return result
}

// detectBridgeType selects a bridge from the uname machine & release
// and the presence of the Raspberry Pi I2C device.
func detectBridgeType(machine, release string, hasRpiI2C bool) string {
	machine = strings.TrimSpace(machine)
	release = strings.TrimSpace(release)
	if !strings.HasPrefix(machine, "arm") && machine != "aarch64" {
		return "virtual"
	}
	if strings.Contains(release, "sunxi") || !hasRpiI2C {
		return "periph"
	}
	return "rpi"
}
