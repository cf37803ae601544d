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
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// ioctl requests & SMBus transactions, see linux/i2c-dev.h and linux/i2c.h
const (
	ioctlSlave = 0x0703
	ioctlFuncs = 0x0705
	ioctlSmbus = 0x0720

	smbusWrite = 0
	smbusRead  = 1

	smbusQuick = 0
	smbusByte  = 1

	funcSmbusQuick     = 0x00010000
	funcSmbusReadByte  = 0x00020000
	funcSmbusWriteByte = 0x00040000

	// Size of union i2c_smbus_data
	smbusDataSize = 34
)

type smbusRequest struct {
	readWrite byte
	command   byte
	size      uint32
	data      uintptr
}

// i2cDevice is an i2c-dev file with a selected slave address.
// It is only used from the bus thread.
type i2cDevice struct {
	address uint8
	file    *os.File
	funcs   uint64
}

// openI2CDevice opens the bus at given location for the slave at given address.
func openI2CDevice(location string, address uint8) (*i2cDevice, error) {
	f, err := os.OpenFile(location, os.O_RDWR, os.ModeDevice)
	if err != nil {
		return nil, err
	}
	d := &i2cDevice{address: address, file: f}
	if err := d.ioctl(ioctlFuncs, uintptr(unsafe.Pointer(&d.funcs))); err != nil {
		f.Close()
		return nil, errors.Wrap(err, "cannot query adapter functionality")
	}
	if err := d.ioctl(ioctlSlave, uintptr(address)); err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "cannot select address 0x%02x", address)
	}
	return d, nil
}

func (d *i2cDevice) close() error {
	return d.file.Close()
}

// present returns true when the slave acknowledges its address.
// Adapters without the SMBus quick command are probed with a 1 byte read.
func (d *i2cDevice) present() bool {
	if d.funcs&funcSmbusQuick != 0 {
		return d.smbus(smbusWrite, 0, smbusQuick, nil) == nil
	}
	var buf [1]byte
	_, err := d.file.Read(buf[:])
	return err == nil
}

// Read a byte from device
func (d *i2cDevice) ReadByte() (byte, error) {
	if d.funcs&funcSmbusReadByte == 0 {
		return 0, errors.New("adapter does not support SMBus receive byte")
	}
	var data [smbusDataSize]byte
	if err := d.smbus(smbusRead, 0, smbusByte, &data); err != nil {
		return 0, errors.Wrapf(err, "receive byte from 0x%02x failed", d.address)
	}
	return data[0], nil
}

// Write a byte to device
func (d *i2cDevice) WriteByte(val byte) error {
	if d.funcs&funcSmbusWriteByte == 0 {
		return errors.New("adapter does not support SMBus send byte")
	}
	// The value goes in the command field
	if err := d.smbus(smbusWrite, val, smbusByte, nil); err != nil {
		return errors.Wrapf(err, "send byte 0x%02x to 0x%02x failed", val, d.address)
	}
	return nil
}

// Read a block of data directly from the device
func (d *i2cDevice) ReadDevice(data []byte) error {
	n, err := d.file.Read(data)
	return d.checkTransfer("read", n, len(data), err)
}

// Write a block of data directly to the device
func (d *i2cDevice) WriteDevice(data []byte) error {
	n, err := d.file.Write(data)
	return d.checkTransfer("write", n, len(data), err)
}

func (d *i2cDevice) checkTransfer(op string, n, expected int, err error) error {
	if err != nil {
		return errors.Wrapf(err, "%s of %d bytes at 0x%02x failed", op, expected, d.address)
	}
	if n != expected {
		return errors.Errorf("%s of %d bytes at 0x%02x transferred %d bytes", op, expected, d.address, n)
	}
	return nil
}

func (d *i2cDevice) smbus(readWrite, command byte, size uint32, data *[smbusDataSize]byte) error {
	req := smbusRequest{
		readWrite: readWrite,
		command:   command,
		size:      size,
		data:      uintptr(unsafe.Pointer(data)),
	}
	return d.ioctl(ioctlSmbus, uintptr(unsafe.Pointer(&req)))
}

func (d *i2cDevice) ioctl(req, arg uintptr) error {
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, d.file.Fd(), req, arg); errno != 0 {
		return errno
	}
	return nil
}
