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
	"bytes"
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/i2c/i2ctest"

	"github.com/binkynet/pcf857x/pkg/bridge"
)

func TestNewPCF8574(t *testing.T) {
	env := newTestEnv(t, PCF8574)
	assert.Equal(t, 8, env.dev.PinCount())
	assert.Equal(t, PCF8574, env.dev.Variant())
	assert.Equal(t, testAddress, env.dev.Address())
	// All pins released
	assert.Equal(t, []uint16{0xff}, env.chip.Writes())
	for pin := 0; pin < 8; pin++ {
		mode, err := env.dev.Mode(pin)
		require.NoError(t, err)
		assert.Equal(t, ModeInput, mode)
	}
}

func TestNewPCF8575(t *testing.T) {
	env := newTestEnv(t, PCF8575)
	assert.Equal(t, 16, env.dev.PinCount())
	assert.Equal(t, []uint16{0xffff}, env.chip.Writes())
}

func TestNewDeviceNotFound(t *testing.T) {
	ctx := context.Background()
	bus := bridge.NewVirtualBus()
	bus.AddExpander(0x20, 8)

	dev, err := NewPCF8574(ctx, bus, 0x21, NoInterrupt, Dependencies{})
	assert.True(t, IsDeviceNotFound(err), "got %v", err)
	assert.Nil(t, dev)

	// Present but not acknowledging
	chip := bus.AddExpander(0x22, 8)
	chip.FailReads(true)
	dev, err = NewPCF8574(ctx, bus, 0x22, NoInterrupt, Dependencies{})
	assert.True(t, IsDeviceNotFound(err), "got %v", err)
	assert.Nil(t, dev)
	assert.Empty(t, chip.Writes())
}

func TestNewInvalidConfig(t *testing.T) {
	ctx := context.Background()
	bus := bridge.NewVirtualBus()
	bus.AddExpander(0x20, 8)

	_, err := New(ctx, Config{Variant: "PCF8576", Address: 0x20, InterruptPin: NoInterrupt}, Dependencies{Bus: bus})
	assert.True(t, IsInvalidArgument(err))
	_, err = New(ctx, Config{Variant: PCF8574, Address: 0x80, InterruptPin: NoInterrupt}, Dependencies{Bus: bus})
	assert.True(t, IsInvalidArgument(err))
	_, err = New(ctx, Config{Variant: PCF8574, Address: 0x20, InterruptPin: NoInterrupt}, Dependencies{})
	assert.True(t, IsInvalidArgument(err))
	// Interrupt pin without host GPIO
	_, err = New(ctx, Config{Variant: PCF8574, Address: 0x20, InterruptPin: 17}, Dependencies{Bus: bus})
	assert.True(t, IsInvalidArgument(err))
	// Unknown host pin
	_, err = New(ctx, Config{Variant: PCF8574, Address: 0x20, InterruptPin: 17}, Dependencies{Bus: bus, GPIO: bus})
	assert.Error(t, err)
}

func TestDestroy(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, PCF8574)
	dev := env.dev
	require.NoError(t, dev.SetupOutput(ctx, 1, false))

	require.NoError(t, Destroy(ctx, &dev))
	assert.Nil(t, dev)
	// Chip is back in safe state
	assert.Equal(t, uint16(0xff), env.chip.Latch())

	// Destroying again fails
	assert.True(t, IsInvalidHandle(Destroy(ctx, &dev)))
	assert.True(t, IsInvalidHandle(Destroy(ctx, nil)))

	// Operations on the nil handle fail
	assert.True(t, IsInvalidHandle(dev.SetMode(ctx, 1, ModeOutput)))
	assert.True(t, IsInvalidHandle(dev.Write(ctx, 1, true)))
	assert.True(t, IsInvalidHandle(dev.Toggle(ctx, 1)))
	_, err := dev.Read(ctx, 1)
	assert.True(t, IsInvalidHandle(err))
	assert.True(t, IsInvalidHandle(dev.EnableInt(1)))
	_, _, err = dev.RemoveIntHandler(1)
	assert.True(t, IsInvalidHandle(err))
	assert.True(t, IsInvalidHandle(dev.Blink(ctx, 1, time.Second, time.Second)))
	assert.True(t, IsInvalidHandle(dev.Close(ctx)))
	assert.NotPanics(t, dev.PrintState)
	assert.Equal(t, 0, dev.PinCount())
}

func TestCloseIdempotent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, PCF8574)
	require.NoError(t, env.dev.Close(ctx))
	writes := len(env.chip.Writes())
	require.NoError(t, env.dev.Close(ctx))
	assert.Len(t, env.chip.Writes(), writes)

	// Operations on the closed device fail
	assert.True(t, IsInvalidHandle(env.dev.SetupOutput(ctx, 0, true)))
	_, err := env.dev.State()
	assert.True(t, IsInvalidHandle(err))
}

func TestCloseStopsTimers(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, PCF8574)
	require.NoError(t, env.dev.SetupOutput(ctx, 0, false))
	require.NoError(t, env.dev.Blink(ctx, 0, time.Millisecond*10, time.Millisecond*10))
	require.NoError(t, env.dev.SetButtonHandler(ctx, 4, PullUp, IntModeEdgeAny, time.Millisecond*20, (&recorder{}).handle, nil))
	env.chip.SetInput(4, false)
	require.NoError(t, env.dev.poll(ctx))
	assert.Equal(t, 2, env.sched.Pending())

	require.NoError(t, env.dev.Close(ctx))
	assert.Equal(t, 0, env.sched.Pending())
	writes := len(env.chip.Writes())
	env.sched.Advance(time.Second)
	assert.Len(t, env.chip.Writes(), writes)
}

func TestInterruptWatcher(t *testing.T) {
	ctx := context.Background()
	bus := bridge.NewVirtualBus()
	chip := bus.AddExpander(0x20, 8)
	bus.ConnectInterrupt(17, chip)

	dev, err := NewPCF8574(ctx, bus, 0x20, 17, Dependencies{
		Log:  zerolog.New(zerolog.NewTestWriter(t)),
		GPIO: bus,
	})
	require.NoError(t, err)

	var rec recorder
	require.NoError(t, dev.SetIntHandler(2, IntModeEdgeNeg, rec.handle, "button"))
	require.NoError(t, dev.EnableInt(2))

	chip.SetInput(2, false)
	require.Eventually(t, func() bool { return len(rec.Calls()) == 1 }, time.Second*5, time.Millisecond*10)
	assert.Equal(t, recordedCall{Pin: 2, Level: false, Arg: "button"}, rec.Calls()[0])

	// Rising edge is filtered
	chip.SetInput(2, true)
	require.Eventually(t, func() bool {
		s, err := dev.State()
		return err == nil && s.Input&0x04 != 0
	}, time.Second*5, time.Millisecond*10)
	assert.Len(t, rec.Calls(), 1)

	require.NoError(t, Destroy(ctx, &dev))
}

// failingGPIO opens interrupt pins that cannot be waited on.
type failingGPIO struct {
	waits int32
}

func (g *failingGPIO) Interrupt(pinNumber int) (bridge.InterruptPin, error) {
	return g, nil
}

func (g *failingGPIO) WaitForEdge(timeout time.Duration) (bool, error) {
	atomic.AddInt32(&g.waits, 1)
	return false, errors.New("interrupt line unavailable")
}

func (g *failingGPIO) Close() error {
	return nil
}

func TestInterruptWatcherBacksOff(t *testing.T) {
	ctx := context.Background()
	bus := bridge.NewVirtualBus()
	bus.AddExpander(0x20, 8)
	gpio := &failingGPIO{}
	dev, err := NewPCF8574(ctx, bus, 0x20, 4, Dependencies{GPIO: gpio})
	require.NoError(t, err)

	time.Sleep(time.Millisecond * 250)
	require.NoError(t, Destroy(ctx, &dev))
	// 10, 15, 22, 33, 50, 75ms... between failing waits
	waits := atomic.LoadInt32(&gpio.waits)
	assert.True(t, waits >= 2 && waits <= 12, "waits=%d", waits)
}

func TestState(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, PCF8574)
	require.NoError(t, env.dev.SetupOutput(ctx, 0, true))
	require.NoError(t, env.dev.SetupOutput(ctx, 1, false))
	env.chip.SetInput(7, false)
	_, err := env.dev.Read(ctx, 7)
	require.NoError(t, err)

	s, err := env.dev.State()
	require.NoError(t, err)
	assert.Equal(t, "IIIIIILH", s.Pins())
	assert.Equal(t, uint16(0xfd), s.Word())
	assert.Equal(t, uint16(0x7d), s.Input)
}

func TestPrintState(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	bus := bridge.NewVirtualBus()
	bus.AddExpander(0x20, 16)
	dev, err := NewPCF8575(ctx, bus, 0x20, NoInterrupt, Dependencies{Log: zerolog.New(&buf)})
	require.NoError(t, err)
	defer dev.Close(ctx)
	require.NoError(t, dev.SetupOutput(ctx, 15, false))

	dev.PrintState()
	out := buf.String()
	assert.Contains(t, out, `"pins":"LIIIIIIIIIIIIIII"`)
	assert.Contains(t, out, `"output":"0x7fff"`)
	assert.Contains(t, out, `"address":"0x20"`)
}

func TestPeriphPCF8575(t *testing.T) {
	ctx := context.Background()
	playback := &i2ctest.Playback{
		Ops: []i2ctest.IO{
			// Probe
			{Addr: 0x21, R: []byte{0xff, 0xff}},
			// Release all pins, LSB first
			{Addr: 0x21, W: []byte{0xff, 0xff}},
			{Addr: 0x21, R: []byte{0xff, 0xff}},
			// Pin 12 low
			{Addr: 0x21, W: []byte{0xff, 0xef}},
			// Pin 1 reads low
			{Addr: 0x21, R: []byte{0xfd, 0xef}},
			// Close
			{Addr: 0x21, W: []byte{0xff, 0xff}},
		},
		DontPanic: true,
	}
	bus := bridge.NewPeriphBus(playback)
	dev, err := NewPCF8575(ctx, bus, 0x21, NoInterrupt, Dependencies{Log: zerolog.New(zerolog.NewTestWriter(t))})
	require.NoError(t, err)

	require.NoError(t, dev.SetupOutput(ctx, 12, false))
	level, err := dev.Read(ctx, 1)
	require.NoError(t, err)
	assert.False(t, level)
	require.NoError(t, Destroy(ctx, &dev))
	require.NoError(t, bus.Close())
}

func TestPeriphNotFound(t *testing.T) {
	ctx := context.Background()
	// Nothing is expected, so the probe fails
	bus := bridge.NewPeriphBus(&i2ctest.Playback{DontPanic: true})
	_, err := NewPCF8574(ctx, bus, 0x20, NoInterrupt, Dependencies{})
	assert.True(t, IsDeviceNotFound(err), "got %v", err)
}
