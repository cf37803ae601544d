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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// waitForEdge waits for an edge on the given pin, failing the test on errors.
func waitForEdge(t *testing.T, pin InterruptPin, timeout time.Duration) bool {
	t.Helper()
	edge, err := pin.WaitForEdge(timeout)
	require.NoError(t, err)
	return edge
}

func TestVirtualBusExecute(t *testing.T) {
	ctx := context.Background()
	bus := NewVirtualBus()
	x := bus.AddExpander(0x20, 8)

	err := bus.Execute(ctx, 0x21, func(ctx context.Context, dev I2CDevice) error {
		t.Fatal("op must not be called")
		return nil
	})
	assert.Error(t, err)

	require.NoError(t, bus.Execute(ctx, 0x20, func(ctx context.Context, dev I2CDevice) error {
		if err := dev.WriteByte(0x0f); err != nil {
			return err
		}
		v, err := dev.ReadByte()
		assert.Equal(t, uint8(0x0f), v)
		return err
	}))
	assert.Equal(t, []uint16{0x0f}, x.Writes())
	assert.Equal(t, 1, x.Reads())

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	assert.Error(t, bus.Execute(canceled, 0x20, func(ctx context.Context, dev I2CDevice) error { return nil }))
}

func TestVirtualBusDetect(t *testing.T) {
	bus := NewVirtualBus()
	assert.Empty(t, bus.DetectSlaveAddresses())
	bus.AddExpander(0x27, 8)
	bus.AddExpander(0x20, 16)
	bus.AddExpander(0x38, 8)
	assert.Equal(t, []byte{0x20, 0x27, 0x38}, bus.DetectSlaveAddresses())

	i2c, err := bus.I2CBus()
	require.NoError(t, err)
	assert.Equal(t, bus, i2c)
	assert.NoError(t, bus.Close())
}

func TestVirtualExpander16(t *testing.T) {
	ctx := context.Background()
	bus := NewVirtualBus()
	x := bus.AddExpander(0x20, 16)
	assert.Equal(t, uint16(0xffff), x.Port())

	require.NoError(t, bus.Execute(ctx, 0x20, func(ctx context.Context, dev I2CDevice) error {
		return dev.WriteDevice([]byte{0x34, 0x12})
	}))
	assert.Equal(t, uint16(0x1234), x.Latch())

	x.SetInput(2, false)
	var buf [2]byte
	require.NoError(t, bus.Execute(ctx, 0x20, func(ctx context.Context, dev I2CDevice) error {
		return dev.ReadDevice(buf[:])
	}))
	assert.Equal(t, [2]byte{0x30, 0x12}, buf)
}

func TestVirtualExpanderInputs(t *testing.T) {
	bus := NewVirtualBus()
	x := bus.AddExpander(0x20, 8)
	// Outputs driven low stay low
	require.NoError(t, x.WriteByte(0xf0))
	assert.Equal(t, uint16(0xf0), x.Port())
	x.SetInput(7, false)
	assert.Equal(t, uint16(0x70), x.Port())
	x.SetInput(7, true)
	assert.Equal(t, uint16(0xf0), x.Port())
	// Latch is not affected by external inputs
	assert.Equal(t, uint16(0xf0), x.Latch())
}

func TestVirtualExpanderFailures(t *testing.T) {
	bus := NewVirtualBus()
	x := bus.AddExpander(0x20, 8)
	x.FailWrites(true)
	assert.Error(t, x.WriteByte(0x00))
	assert.Empty(t, x.Writes())
	x.FailWrites(false)
	assert.NoError(t, x.WriteByte(0x00))

	x.FailReads(true)
	_, err := x.ReadByte()
	assert.Error(t, err)
	assert.Equal(t, 0, x.Reads())
}

func TestVirtualInterrupt(t *testing.T) {
	bus := NewVirtualBus()
	x := bus.AddExpander(0x20, 8)
	_, err := bus.Interrupt(4)
	assert.Error(t, err)

	bus.ConnectInterrupt(4, x)
	pin, err := bus.Interrupt(4)
	require.NoError(t, err)
	assert.False(t, waitForEdge(t, pin, time.Millisecond))

	// Writes do not raise INT
	require.NoError(t, x.WriteByte(0x00))
	assert.False(t, waitForEdge(t, pin, time.Millisecond))

	require.NoError(t, x.WriteByte(0xff))
	x.SetInput(3, false)
	x.SetInput(5, false)
	assert.True(t, waitForEdge(t, pin, time.Second))
	// Both changes are signaled by a single assertion
	assert.False(t, waitForEdge(t, pin, time.Millisecond))

	// No change, no INT
	x.SetInput(3, false)
	assert.False(t, waitForEdge(t, pin, time.Millisecond))
	assert.NoError(t, pin.Close())
}
