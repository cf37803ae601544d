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

package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/binkynet/pcf857x/pkg/pcf857x"
)

// Config for the HTTP server.
type Config struct {
	// Host interface to listen on
	Host string
	// Port to listen on for HTTP requests
	HTTPPort int
}

// Device is the part of a device the server reports on.
type Device interface {
	State() (pcf857x.State, error)
}

// Server runs the HTTP server exposing metrics & device state.
type Server struct {
	Config
	log    zerolog.Logger
	device Device
}

// New configures a new Server.
func New(cfg Config, log zerolog.Logger, device Device) (*Server, error) {
	return &Server{
		Config: cfg,
		log:    log.With().Str("component", "server").Logger(),
		device: device,
	}, nil
}

// stateResponse is the JSON form of a device state.
type stateResponse struct {
	Variant string `json:"variant"`
	Address string `json:"address"`
	Pins    string `json:"pins"`
	Output  string `json:"output"`
	Input   string `json:"input"`
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	router := echo.New()
	router.HideBanner = true
	router.HidePort = true
	router.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	router.GET("/health", echo.WrapHandler(http.HandlerFunc(healthHandler)))
	router.GET("/state", s.stateHandler)
	return router
}

// Run the server until the given context is canceled.
func (s *Server) Run(ctx context.Context) error {
	log := s.log
	httpAddr := net.JoinHostPort(s.Host, strconv.Itoa(s.HTTPPort))
	httpLis, err := net.Listen("tcp", httpAddr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on address %s", httpAddr)
	}
	httpSrv := http.Server{
		Handler: s.Handler(),
	}

	log.Debug().Str("address", httpAddr).Msg("Serving HTTP")
	serveErr := make(chan error, 1)
	go func() {
		if err := httpSrv.Serve(httpLis); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
		close(serveErr)
		log.Debug().Str("address", httpAddr).Msg("Done Serving HTTP")
	}()

	// Wait until context closed
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return errors.Wrap(err, "failed to serve HTTP server")
		}
	}

	log.Info().Msg("Closing server")
	httpSrv.Shutdown(context.Background())
	return nil
}

func (s *Server) stateHandler(c echo.Context) error {
	if s.device == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "no device")
	}
	state, err := s.device.State()
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	return c.JSON(http.StatusOK, stateResponse{
		Variant: string(state.Variant),
		Address: fmt.Sprintf("0x%02x", state.Address),
		Pins:    state.Pins(),
		Output:  fmt.Sprintf("0x%04x", state.Word()),
		Input:   fmt.Sprintf("0x%04x", state.Input),
	})
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintln(w, "OK")
}
