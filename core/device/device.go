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

// Package device defines the collaborators the controller drives: the gun
// driver, the absolute mouse manager and the device enumeration service.
package device

import "errors"

// Ultimarc AimTrak.
const AimtrakVendorID uint16 = 0xD209

var (
	// ErrConnection is wrapped by Driver.Open failures.
	ErrConnection = errors.New("cannot connect to device")

	// ErrIO is wrapped by transient read failures, such as a missed IR sample.
	ErrIO = errors.New("device I/O error")

	// ErrLookup is wrapped by Resolver failures for names that do not map to
	// a USB device.
	ErrLookup = errors.New("not a recognized USB device")
)

type Driver interface {
	Open(bus, address int) (Gun, error)
}

// Gun is an open connection to one light gun. It is owned by a single
// goroutine.
type Gun interface {
	GetConfig() (Config, error)
	// SetConfig writes cfg and reports whether the gun must reboot to apply it.
	SetConfig(cfg Config) (needsReboot bool, err error)
	Recoil() error
	GetDynData() (DynData, error)
	Close() error
}

type MouseManager interface {
	// Scan returns the number of input interfaces exposed by devices of the
	// given vendor.
	Scan(vendorID uint16) int
	// Read returns the name of a device that just reported activity, or an
	// empty name.
	Read() (name string, meta Metadata)
	// Update returns the positions reported by the named device since the
	// last call, possibly none.
	Update(name string) []Position
}

type Resolver interface {
	Resolve(name string) (bus int, address int, err error)
}
