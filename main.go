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

package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	terminate "github.com/pulcy/go-terminate"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/binkynet/pcf857x/pkg/bridge"
	"github.com/binkynet/pcf857x/pkg/environment"
	"github.com/binkynet/pcf857x/pkg/pcf857x"
	"github.com/binkynet/pcf857x/pkg/server"
)

const (
	projectName       = "PCF857x GPIO expander tool"
	defaultServerPort = 7130
)

var (
	projectVersion = "dev"
	projectBuild   = "dev"
)

func main() {
	var levelFlag string
	var bridgeType string
	var busName string
	var sclPin int
	var variantFlag string
	var addressFlag string
	var intPin int
	var scan bool
	var outputs []string
	var watchPins []int
	var debounce time.Duration
	var blinkPins []int
	var blinkOn, blinkOff time.Duration
	var serverHost string
	var serverPort int
	var stateInterval time.Duration

	pflag.StringVarP(&levelFlag, "level", "l", "info", "Set log level")
	pflag.StringVarP(&bridgeType, "bridge", "b", "auto", "Type of bridge to use (auto|rpi|periph|virtual)")
	pflag.StringVar(&busName, "bus", "", "Name of the I2C bus (periph bridge only)")
	pflag.IntVar(&sclPin, "scl-pin", -1, "GPIO number of the SCL line used for bus recovery (rpi bridge only)")
	pflag.StringVar(&variantFlag, "variant", string(pcf857x.PCF8574), "Chip variant (PCF8574|PCF8575)")
	pflag.StringVarP(&addressFlag, "address", "a", "0x20", "I2C address of the chip")
	pflag.IntVar(&intPin, "int-pin", pcf857x.NoInterrupt, "Host GPIO connected to the INT line of the chip")
	pflag.BoolVar(&scan, "scan", false, "Scan the bus for devices and exit")
	pflag.StringSliceVar(&outputs, "output", nil, "Configure an output pin as pin=level (repeatable)")
	pflag.IntSliceVar(&watchPins, "watch", nil, "Log level changes of the given input pin (repeatable)")
	pflag.DurationVar(&debounce, "debounce", time.Millisecond*20, "Debounce time of watched pins")
	pflag.IntSliceVar(&blinkPins, "blink", nil, "Blink the given output pin (repeatable)")
	pflag.DurationVar(&blinkOn, "blink-on", time.Millisecond*500, "Time a blinking pin is high")
	pflag.DurationVar(&blinkOff, "blink-off", time.Millisecond*500, "Time a blinking pin is low")
	pflag.StringVar(&serverHost, "host", "0.0.0.0", "Host address the HTTP server will listen on")
	pflag.IntVar(&serverPort, "port", defaultServerPort, "Port the HTTP server will listen on")
	pflag.DurationVar(&stateInterval, "state-interval", time.Minute, "Interval between logging the device state (0 to disable)")
	pflag.Parse()

	level, err := zerolog.ParseLevel(levelFlag)
	if err != nil {
		Exitf("Invalid log level '%s': %v\n", levelFlag, err)
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()

	variant, err := pcf857x.ParseVariant(variantFlag)
	if err != nil {
		Exitf("%v\n", err)
	}
	address, err := pcf857x.ParseAddress(addressFlag)
	if err != nil {
		Exitf("%v\n", err)
	}
	levels, err := parseOutputs(outputs)
	if err != nil {
		Exitf("%v\n", err)
	}

	if bridgeType == "auto" {
		bridgeType = environment.AutoDetectBridgeType(logger)
	}
	var br bridge.API
	switch bridgeType {
	case "rpi":
		br, err = bridge.NewRaspberryPiBridge(sclPin)
		if err != nil {
			Exitf("Failed to initialize Raspberry Pi Bridge: %v\n", err)
		}
	case "periph":
		br, err = bridge.NewPeriphBridge(busName)
		if err != nil {
			Exitf("Failed to initialize periph.io Bridge: %v\n", err)
		}
	case "virtual":
		vb := bridge.NewVirtualBus()
		x := vb.AddExpander(address, variant.PinCount())
		if intPin != pcf857x.NoInterrupt {
			vb.ConnectInterrupt(intPin, x)
		}
		br = vb
	default:
		Exitf("Unknown bridge type '%s' (auto|rpi|periph|virtual)\n", bridgeType)
	}
	defer br.Close()

	bus, err := br.I2CBus()
	if err != nil {
		Exitf("Failed to open I2C bus: %v\n", err)
	}
	if scan {
		for _, addr := range bus.DetectSlaveAddresses() {
			fmt.Printf("0x%02x\n", addr)
		}
		return
	}

	// Prepare to shutdown in a controlled manor
	ctx, cancel := context.WithCancel(context.Background())
	t := terminate.NewTerminator(func(template string, args ...interface{}) {
		logger.Info().Msgf(template, args...)
	}, cancel)
	go t.ListenSignals()

	fmt.Printf("Starting %s (version %s build %s)\n", projectName, projectVersion, projectBuild)
	dev, err := pcf857x.New(ctx, pcf857x.Config{
		Variant:      variant,
		Address:      address,
		InterruptPin: intPin,
	}, pcf857x.Dependencies{
		Log:  logger,
		Bus:  bus,
		GPIO: br,
	})
	if err != nil {
		Exitf("Failed to initialize %s at 0x%02x: %v\n", variant, address, err)
	}
	defer pcf857x.Destroy(context.Background(), &dev)

	if err := configure(ctx, dev, logger, levels, watchPins, debounce, blinkPins, blinkOn, blinkOff); err != nil {
		Exitf("Failed to configure device: %v\n", err)
	}
	if len(watchPins) > 0 && intPin == pcf857x.NoInterrupt {
		logger.Warn().Msg("Watched pins are only reported with an interrupt pin (--int-pin)")
	}
	dev.PrintState()

	httpServer, err := server.New(server.Config{
		Host:     serverHost,
		HTTPPort: serverPort,
	}, logger, dev)
	if err != nil {
		Exitf("Failed to initialize Server: %v\n", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return httpServer.Run(ctx) })
	g.Go(func() error { return printStates(ctx, dev, stateInterval) })
	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("Run failed")
	}
}

// configure the pins of the device from the command line options.
func configure(ctx context.Context, dev *pcf857x.Device, log zerolog.Logger, levels map[int]bool,
	watchPins []int, debounce time.Duration, blinkPins []int, blinkOn, blinkOff time.Duration) error {
	for pin, level := range levels {
		if err := dev.SetupOutput(ctx, pin, level); err != nil {
			return errors.Wrapf(err, "output %d", pin)
		}
	}
	for _, pin := range blinkPins {
		if err := dev.SetupOutput(ctx, pin, false); err != nil {
			return errors.Wrapf(err, "blink %d", pin)
		}
		if err := dev.Blink(ctx, pin, blinkOn, blinkOff); err != nil {
			return errors.Wrapf(err, "blink %d", pin)
		}
	}
	for _, pin := range watchPins {
		if err := dev.SetButtonHandler(ctx, pin, pcf857x.PullUp, pcf857x.IntModeEdgeAny, debounce, func(pin int, level bool, arg interface{}) {
			log.Info().Int("pin", pin).Bool("level", level).Msg("Pin changed")
		}, nil); err != nil {
			return errors.Wrapf(err, "watch %d", pin)
		}
	}
	return nil
}

// printStates logs the state of the device at given interval
// until the given context is canceled.
func printStates(ctx context.Context, dev *pcf857x.Device, interval time.Duration) error {
	if interval <= 0 {
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			dev.PrintState()
		}
	}
}

// parseOutputs parses a list of pin=level options.
func parseOutputs(outputs []string) (map[int]bool, error) {
	result := make(map[int]bool)
	for _, o := range outputs {
		parts := strings.SplitN(o, "=", 2)
		if len(parts) != 2 {
			return nil, errors.Errorf("invalid output '%s', expected pin=level", o)
		}
		pin, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil {
			return nil, errors.Wrapf(err, "invalid pin in output '%s'", o)
		}
		level, err := parseLevel(parts[1])
		if err != nil {
			return nil, errors.Wrapf(err, "invalid level in output '%s'", o)
		}
		result[pin] = level
	}
	return result, nil
}

func parseLevel(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high", "h", "on":
		return true, nil
	case "low", "l", "off":
		return false, nil
	default:
		return strconv.ParseBool(strings.TrimSpace(s))
	}
}

// Print the given error message and exit with code 1
func Exitf(message string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, message, args...)
	os.Exit(1)
}
