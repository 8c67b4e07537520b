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

package controller

import (
	"fmt"
	"time"

	"github.com/AliceO2Group/gunconf/core/device"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/viper"
)

type Config struct {
	VendorID uint16
	// InterfacesPerDevice is the number of input interfaces one gun exposes.
	// The AimTrak has two, so a scan sees every gun twice.
	InterfacesPerDevice int

	ScanInterval      time.Duration
	ConnectInterval   time.Duration
	WaitInterval      time.Duration
	CalibrateInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		VendorID:            device.AimtrakVendorID,
		InterfacesPerDevice: 2,
		ScanInterval:        100 * time.Millisecond,
		ConnectInterval:     20 * time.Millisecond,
		WaitInterval:        100 * time.Millisecond,
		CalibrateInterval:   20 * time.Millisecond,
	}
}

func SetDefaults(cfg *viper.Viper) {
	def := DefaultConfig()
	cfg.SetDefault("vendorId", int(def.VendorID))
	cfg.SetDefault("interfacesPerDevice", def.InterfacesPerDevice)
	cfg.SetDefault("scanInterval", def.ScanInterval)
	cfg.SetDefault("connectInterval", def.ConnectInterval)
	cfg.SetDefault("waitInterval", def.WaitInterval)
	cfg.SetDefault("calibrateInterval", def.CalibrateInterval)
}

// ConfigFromViper reads the controller settings from cfg. Keys that are not
// set anywhere keep their default value.
func ConfigFromViper(cfg *viper.Viper) (Config, error) {
	SetDefaults(cfg)

	vendorID := cfg.GetUint("vendorId")
	if vendorID > 0xFFFF {
		return Config{}, fmt.Errorf("vendorId %#x out of range", vendorID)
	}

	out := Config{
		VendorID:            uint16(vendorID),
		InterfacesPerDevice: cfg.GetInt("interfacesPerDevice"),
		ScanInterval:        cfg.GetDuration("scanInterval"),
		ConnectInterval:     cfg.GetDuration("connectInterval"),
		WaitInterval:        cfg.GetDuration("waitInterval"),
		CalibrateInterval:   cfg.GetDuration("calibrateInterval"),
	}

	var errs *multierror.Error
	errs = multierror.Append(errs, out.Validate())
	// zero intervals are only accepted from a Config built in code
	for name, d := range out.intervals() {
		if d == 0 {
			errs = multierror.Append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	return out, errs.ErrorOrNil()
}

func (cfg Config) intervals() map[string]time.Duration {
	return map[string]time.Duration{
		"scanInterval":      cfg.ScanInterval,
		"connectInterval":   cfg.ConnectInterval,
		"waitInterval":      cfg.WaitInterval,
		"calibrateInterval": cfg.CalibrateInterval,
	}
}

func (cfg Config) Validate() error {
	var errs *multierror.Error
	if cfg.VendorID == 0 {
		errs = multierror.Append(errs, fmt.Errorf("vendorId must be set"))
	}
	if cfg.InterfacesPerDevice <= 0 {
		errs = multierror.Append(errs, fmt.Errorf("interfacesPerDevice must be positive, got %d", cfg.InterfacesPerDevice))
	}
	for name, d := range cfg.intervals() {
		if d < 0 {
			errs = multierror.Append(errs, fmt.Errorf("%s must not be negative, got %s", name, d))
		}
	}
	return errs.ErrorOrNil()
}
