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
	"errors"
	"time"

	"github.com/AliceO2Group/gunconf/core/metrics"
	"github.com/AliceO2Group/gunconf/core/session"
	"github.com/AliceO2Group/gunconf/core/sm"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var errNoGun = errors.New("no gun loaded")

// Every handler returns after at most one bounded device call or one short
// sleep, so an override takes effect within about one polling interval.

func (c *Controller) scanning() sm.Event {
	guns := c.collab.Mouses.Scan(c.cfg.VendorID) / c.cfg.InterfacesPerDevice
	c.publish(session.NbDevs, guns)
	metrics.DevicesDetected.Set(float64(guns))

	c.sleep(c.cfg.ScanInterval)
	return SCAN
}

func (c *Controller) connecting() sm.Event {
	name, meta := c.collab.Mouses.Read()
	if name == "" {
		c.sleep(c.cfg.ConnectInterval)
		return CONNECT
	}

	c.name = name
	log.WithFields(logrus.Fields{
		"device":   name,
		"metadata": meta,
	}).Info("gun connected")
	return CONNECTED
}

func (c *Controller) loading() sm.Event {
	c.releaseGun()

	bus, address, err := c.collab.Resolver.Resolve(c.name)
	if err != nil {
		log.WithError(err).WithField("device", c.name).Error("cannot resolve gun device")
		return ERROR
	}

	clog := log.WithFields(logrus.Fields{
		"device":  c.name,
		"bus":     bus,
		"address": address,
	})

	gun, err := c.collab.Driver.Open(bus, address)
	if err != nil {
		clog.WithError(err).Error("cannot open gun")
		return ERROR
	}
	c.gun = gun
	c.sessionId = uuid.NewString()

	cfg, err := gun.GetConfig()
	if err != nil {
		clog.WithError(err).Error("cannot read gun configuration")
		return ERROR
	}
	c.publish(session.Config, cfg)

	clog.WithFields(logrus.Fields{
		"session": c.sessionId,
		"config":  cfg,
	}).Info("gun configuration loaded")
	return LOADED
}

func (c *Controller) waiting() sm.Event {
	c.sleep(c.cfg.WaitInterval)
	return WAIT
}

func (c *Controller) configuring() sm.Event {
	if c.gun == nil {
		log.WithError(errNoGun).Error("cannot configure gun")
		return ERROR
	}
	cfg, ok := toConfig(c.store.Get(session.Config, false))
	if !ok {
		log.WithField("session", c.sessionId).Error("no gun configuration to write")
		return ERROR
	}

	needsReboot, err := c.gun.SetConfig(cfg)
	if err != nil {
		log.WithError(err).WithField("session", c.sessionId).Error("cannot write gun configuration")
		return ERROR
	}
	if needsReboot {
		log.WithField("session", c.sessionId).Info("gun reboots to apply its configuration")
		return REBOOT
	}
	log.WithField("session", c.sessionId).Debug("gun configured")
	return CONFIGURED
}

func (c *Controller) calibrating() sm.Event {
	pos := c.collab.Mouses.Update(c.name)
	if len(pos) > 0 {
		c.publish(session.GunPos, pos)
		log.WithField("positions", pos).Trace("gun positions")
	}

	c.sleep(c.cfg.CalibrateInterval)
	return CALIBRATE
}

// irtesting never fails the state: a lost IR sample is logged and the test
// goes on.
func (c *Controller) irtesting() sm.Event {
	if c.gun == nil {
		metrics.DynDataErrors.Inc()
		log.WithError(errNoGun).Error("cannot receive IR samples")
		return IRTEST
	}

	data, err := c.gun.GetDynData()
	if err != nil {
		metrics.DynDataErrors.Inc()
		log.WithError(err).WithField("session", c.sessionId).Error("cannot receive IR samples")
		return IRTEST
	}
	c.publish(session.DynData, data)
	log.WithField("dynData", data).Trace("IR samples")
	return IRTEST
}

func (c *Controller) recoiling() sm.Event {
	if c.gun == nil {
		log.WithError(errNoGun).Error("cannot trigger recoil")
		return ERROR
	}
	if err := c.gun.Recoil(); err != nil {
		log.WithError(err).WithField("session", c.sessionId).Error("cannot trigger recoil")
		return ERROR
	}
	return WAIT
}

func (c *Controller) disconnecting() sm.Event {
	c.reset()
	return DISCONNECTED
}

func (c *Controller) inerror() sm.Event {
	return c.disconnecting()
}

// reset forgets the current gun and everything published about it. A pending
// override survives, so a request issued during cleanup is not lost. Calling
// it again is a no-op.
func (c *Controller) reset() {
	if c.gun != nil || c.name != "" {
		log.WithFields(logrus.Fields{
			"device":  c.name,
			"session": c.sessionId,
		}).Info("gun disconnected")
	}
	c.releaseGun()
	c.name = ""
	c.sessionId = ""
	c.store.Clear(session.Override)
}

func (c *Controller) releaseGun() {
	if c.gun == nil {
		return
	}
	if err := c.gun.Close(); err != nil {
		log.WithError(err).WithField("session", c.sessionId).Warning("cannot close gun")
	}
	c.gun = nil
}

func (c *Controller) publish(key session.Key, value interface{}) {
	if err := c.store.Set(key, value); err != nil {
		log.WithError(err).Error("cannot publish session value")
	}
}

// sleep waits for d, or less if a stop is requested in the meantime.
func (c *Controller) sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-c.stop:
	}
}
