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

// Package sim provides an in-memory gun backend. It implements the driver,
// mouse manager and resolver contracts of package device, and lets tests and
// the command line runner plug and unplug a virtual gun.
package sim

import (
	"fmt"
	"sync"
	"time"

	"github.com/AliceO2Group/gunconf/core/device"
)

// Backend is safe for concurrent use: the controller worker calls it while
// tests poke at it from other goroutines.
type Backend struct {
	mu sync.Mutex

	vendorID   uint16
	interfaces int

	plugged  bool
	name     string
	bus      int
	address  int
	reported bool

	config      device.Config
	needsReboot bool
	openErr     error
	dynData     device.DynData
	dynDataErr  error
	readLatency time.Duration
	positions   []device.Position

	opened  int
	closed  int
	recoils int
	writes  []device.Config
}

func NewBackend() *Backend {
	return &Backend{
		vendorID:   device.AimtrakVendorID,
		interfaces: 2,
		config:     device.Config{},
		dynData:    device.DynData{0x00},
	}
}

// Plug connects a virtual gun exposed as name on the given USB bus and
// address. The next MouseManager.Read reports it.
func (b *Backend) Plug(name string, bus, address int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.plugged = true
	b.name = name
	b.bus = bus
	b.address = address
	b.reported = false
}

func (b *Backend) Unplug() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.plugged = false
	b.name = ""
}

// SetInterfaces sets how many input interfaces one gun exposes.
func (b *Backend) SetInterfaces(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.interfaces = n
}

func (b *Backend) SetConfig(cfg device.Config) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.config = cfg.Clone()
}

func (b *Backend) SetNeedsReboot(v bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.needsReboot = v
}

func (b *Backend) FailOpen(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.openErr = err
}

func (b *Backend) SetDynData(data device.DynData) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dynData = append(device.DynData(nil), data...)
}

// SetReadLatency delays every IR sample read by d, like the interrupt
// transfer of a real gun would.
func (b *Backend) SetReadLatency(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.readLatency = d
}

// FailDynData makes IR sample reads fail with err until called with nil.
func (b *Backend) FailDynData(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dynDataErr = err
}

func (b *Backend) PushPositions(pos ...device.Position) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.positions = append(b.positions, pos...)
}

func (b *Backend) Opened() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opened
}

func (b *Backend) Closed() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (b *Backend) Recoils() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.recoils
}

// Writes returns every configuration written to the gun, oldest first.
func (b *Backend) Writes() []device.Config {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]device.Config, len(b.writes))
	copy(out, b.writes)
	return out
}

func (b *Backend) Scan(vendorID uint16) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.plugged || vendorID != b.vendorID {
		return 0
	}
	return b.interfaces
}

func (b *Backend) Read() (string, device.Metadata) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.plugged || b.reported {
		return "", nil
	}
	b.reported = true
	return b.name, device.Metadata{"vendor": fmt.Sprintf("%04x", b.vendorID)}
}

func (b *Backend) Update(name string) []device.Position {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.plugged || name != b.name {
		return nil
	}
	pos := b.positions
	b.positions = nil
	return pos
}

func (b *Backend) Resolve(name string) (int, int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.plugged || name != b.name {
		return 0, 0, fmt.Errorf("%w: %s", device.ErrLookup, name)
	}
	return b.bus, b.address, nil
}

func (b *Backend) Open(bus, address int) (device.Gun, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.openErr != nil {
		return nil, fmt.Errorf("%w: bus %d address %d: %v", device.ErrConnection, bus, address, b.openErr)
	}
	if !b.plugged || bus != b.bus || address != b.address {
		return nil, fmt.Errorf("%w: no gun at bus %d address %d", device.ErrConnection, bus, address)
	}
	b.opened++
	return &gun{backend: b}, nil
}

type gun struct {
	backend *Backend
	closed  bool
}

func (g *gun) GetConfig() (device.Config, error) {
	b := g.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	if g.closed {
		return nil, fmt.Errorf("%w: gun closed", device.ErrIO)
	}
	return b.config.Clone(), nil
}

func (g *gun) SetConfig(cfg device.Config) (bool, error) {
	b := g.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	if g.closed {
		return false, fmt.Errorf("%w: gun closed", device.ErrIO)
	}
	b.config = cfg.Clone()
	b.writes = append(b.writes, cfg.Clone())
	return b.needsReboot, nil
}

func (g *gun) Recoil() error {
	b := g.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	if g.closed {
		return fmt.Errorf("%w: gun closed", device.ErrIO)
	}
	b.recoils++
	return nil
}

func (g *gun) GetDynData() (device.DynData, error) {
	b := g.backend
	b.mu.Lock()
	latency := b.readLatency
	b.mu.Unlock()
	if latency > 0 {
		time.Sleep(latency)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if g.closed {
		return nil, fmt.Errorf("%w: gun closed", device.ErrIO)
	}
	if b.dynDataErr != nil {
		return nil, fmt.Errorf("%w: %v", device.ErrIO, b.dynDataErr)
	}
	return append(device.DynData(nil), b.dynData...), nil
}

// Close fails on a second call, which lets tests catch double closes.
func (g *gun) Close() error {
	b := g.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	if g.closed {
		return fmt.Errorf("%w: gun already closed", device.ErrIO)
	}
	g.closed = true
	b.closed++
	return nil
}
