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
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestDetectBridgeType(t *testing.T) {
	assert.Equal(t, "rpi", detectBridgeType("armv7l", "6.1.21-v7+", true))
	assert.Equal(t, "rpi", detectBridgeType("aarch64", "6.6.31+rpt-rpi-v8", true))
	assert.Equal(t, "periph", detectBridgeType("armv7l", "5.15.93-sunxi", true))
	assert.Equal(t, "periph", detectBridgeType("aarch64", "6.1.0", false))
	assert.Equal(t, "virtual", detectBridgeType("x86_64", "6.8.0-45-generic", true))
}

func TestAutoDetectBridgeType(t *testing.T) {
	result := AutoDetectBridgeType(zerolog.Nop())
	assert.Contains(t, []string{"rpi", "periph", "virtual"}, result)
}
