/*
 * === This file is part of ALICE O² ===
 *
 * Copyright 2024 CERN and copyright holders of ALICE O².
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 *
 * In applying this license CERN does not waive the privileges and
 * immunities granted to it by virtue of its status as an
 * Intergovernmental Organization or submit itself to any jurisdiction.
 */

// Package sysfs resolves input device nodes to the USB bus and device
// numbers of the peripheral that owns them, by walking the Linux sysfs tree.
package sysfs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/AliceO2Group/gunconf/common/logger"
	"github.com/AliceO2Group/gunconf/core/device"
	"github.com/sirupsen/logrus"
)

const DefaultRoot = "/sys"

var log = logger.New(logrus.StandardLogger(), "sysfs")

var errNotCharDevice = errors.New("not a character device")

type Resolver struct {
	root string

	// devNumber returns the major and minor numbers of a device node.
	devNumber func(path string) (major uint32, minor uint32, err error)
}

func New(root string) *Resolver {
	if root == "" {
		root = DefaultRoot
	}
	return &Resolver{
		root:      root,
		devNumber: charDevNumber,
	}
}

// Resolve maps a device node such as /dev/input/event7 to the busnum and
// devnum attributes of its closest USB device ancestor.
func (r *Resolver) Resolve(name string) (bus int, address int, err error) {
	major, minor, err := r.devNumber(name)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %s: %v", device.ErrLookup, name, err)
	}

	link := filepath.Join(r.root, "dev", "char", fmt.Sprintf("%d:%d", major, minor))
	devPath, err := filepath.EvalSymlinks(link)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %s: %v", device.ErrLookup, name, err)
	}

	usbPath, ok := r.findUSBDevice(devPath)
	if !ok {
		return 0, 0, fmt.Errorf("%w: %s has no USB parent", device.ErrLookup, name)
	}

	bus, err = readSysfsInt(filepath.Join(usbPath, "busnum"))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %s: %v", device.ErrLookup, name, err)
	}
	address, err = readSysfsInt(filepath.Join(usbPath, "devnum"))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %s: %v", device.ErrLookup, name, err)
	}

	log.WithFields(logrus.Fields{
		"device":  name,
		"sysfs":   usbPath,
		"bus":     bus,
		"address": address,
	}).Debug("device resolved")
	return bus, address, nil
}

// findUSBDevice walks up from path until it finds a directory carrying both
// busnum and devnum, which only usb_device nodes have. Interfaces (1-2:1.0)
// and the HID and input children do not.
func (r *Resolver) findUSBDevice(path string) (string, bool) {
	root := filepath.Clean(r.root)
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}

	for dir := filepath.Clean(path); ; dir = filepath.Dir(dir) {
		if isUSBDevice(dir) {
			return dir, true
		}
		if dir == root || dir == filepath.Dir(dir) || !strings.HasPrefix(dir, root) {
			return "", false
		}
	}
}

func isUSBDevice(dir string) bool {
	for _, attr := range []string{"busnum", "devnum"} {
		info, err := os.Stat(filepath.Join(dir, attr))
		if err != nil || info.IsDir() {
			return false
		}
	}
	return true
}

func readSysfsString(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func readSysfsInt(path string) (int, error) {
	s, err := readSysfsString(path)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, err
	}
	return int(v), nil
}
