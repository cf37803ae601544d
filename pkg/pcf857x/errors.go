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

import "github.com/pkg/errors"

var (
	// ErrDeviceNotFound is returned when no device responds at the given address.
	ErrDeviceNotFound  = errors.New("device not found")
	IsDeviceNotFound   = isErrorFunc(ErrDeviceNotFound)
	ErrInvalidPin      = errors.New("invalid pin")
	IsInvalidPin       = isErrorFunc(ErrInvalidPin)
	ErrInvalidArgument = errors.New("invalid argument")
	IsInvalidArgument  = isErrorFunc(ErrInvalidArgument)
	// ErrInvalidDirection is returned for output operations on input pins and
	// interrupt operations on output pins.
	ErrInvalidDirection = errors.New("invalid direction")
	IsInvalidDirection  = isErrorFunc(ErrInvalidDirection)
	// ErrInvalidHandle is returned by all operations on a nil or closed device.
	ErrInvalidHandle = errors.New("invalid handle")
	IsInvalidHandle  = isErrorFunc(ErrInvalidHandle)
)

func isErrorFunc(typeOfError error) func(err error) bool {
	return func(err error) bool {
		return err == typeOfError || errors.Cause(err) == typeOfError
	}
}
