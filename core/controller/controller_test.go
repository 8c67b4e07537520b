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

	"github.com/AliceO2Group/gunconf/core/device"
	"github.com/AliceO2Group/gunconf/core/device/sim"
	"github.com/AliceO2Group/gunconf/core/metrics"
	"github.com/AliceO2Group/gunconf/core/session"
	"github.com/AliceO2Group/gunconf/core/sm"
	"github.com/hashicorp/go-multierror"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/viper"
)

var _ = Describe("controller", func() {
	var (
		b   *sim.Backend
		c   *Controller
		rec *recorder
	)

	step := func() {
		GinkgoHelper()
		Expect(c.step()).To(Succeed())
	}

	toWaiting := func() {
		GinkgoHelper()
		b.Plug(gunNode, 1, 7)
		c.Connect()
		step()
		Expect(c.machine.Current()).To(Equal(CONNECTING))
		step()
		Expect(c.machine.Current()).To(Equal(LOADING))
		step()
		Expect(c.machine.Current()).To(Equal(WAITING))
	}

	BeforeEach(func() {
		b = sim.NewBackend()
		b.SetConfig(device.Config{"gain": 3})
		c, rec = newTestController(b, 0)
	})

	Describe("construction", func() {
		It("reports every missing collaborator and invalid setting", func() {
			_, err := New(Config{}, Collaborators{})
			Expect(err).To(HaveOccurred())

			var merr *multierror.Error
			Expect(errors.As(err, &merr)).To(BeTrue())
			Expect(merr.Errors).To(HaveLen(5))
		})

		It("reads its settings from viper", func() {
			v := viper.New()
			v.Set("vendorId", 0x1234)
			v.Set("scanInterval", "250ms")

			cfg, err := ConfigFromViper(v)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.VendorID).To(Equal(uint16(0x1234)))
			Expect(cfg.ScanInterval).To(Equal(250 * time.Millisecond))
			Expect(cfg.InterfacesPerDevice).To(Equal(DefaultConfig().InterfacesPerDevice))
			Expect(cfg.WaitInterval).To(Equal(DefaultConfig().WaitInterval))
		})

		It("rejects out of range settings from viper", func() {
			v := viper.New()
			v.Set("vendorId", 0x10000)
			_, err := ConfigFromViper(v)
			Expect(err).To(MatchError(ContainSubstring("out of range")))

			v = viper.New()
			v.Set("interfacesPerDevice", 0)
			v.Set("connectInterval", "-1s")
			_, err = ConfigFromViper(v)
			var merr *multierror.Error
			Expect(errors.As(err, &merr)).To(BeTrue())
			Expect(merr.Errors).To(HaveLen(2))
		})

		It("rejects zero intervals from viper", func() {
			v := viper.New()
			v.Set("waitInterval", 0)
			v.Set("scanInterval", "0s")

			_, err := ConfigFromViper(v)
			var merr *multierror.Error
			Expect(errors.As(err, &merr)).To(BeTrue())
			Expect(merr.Errors).To(HaveLen(2))
			Expect(err).To(MatchError(ContainSubstring("waitInterval must be positive")))
			Expect(err).To(MatchError(ContainSubstring("scanInterval must be positive")))
		})

		It("accepts zero intervals from a config built in code", func() {
			Expect(testConfig(0).Validate()).To(Succeed())
		})

		It("starts in scanning", func() {
			Expect(c.machine.Current()).To(Equal(SCANNING))
		})
	})

	Describe("scanning", func() {
		It("publishes the number of guns, not of interfaces", func() {
			step()
			Expect(c.NbDevs()).To(Equal(0))
			Expect(rec.Last()).To(Equal(notification{SCAN, SCANNING}))

			b.Plug(gunNode, 1, 7)
			b.SetInterfaces(4)
			step()
			Expect(c.NbDevs()).To(Equal(2))
			Expect(c.machine.Current()).To(Equal(SCANNING))
		})
	})

	Describe("overrides", func() {
		It("replace the transition requested by the handler", func() {
			c.Transit(CONNECT)
			step()
			Expect(c.machine.Current()).To(Equal(CONNECTING))
			Expect(rec.Seen()).To(BeEmpty())
		})

		It("are consumed once", func() {
			c.Connect()
			step()
			Expect(c.Get(session.Override, false)).To(BeNil())
			step()
			Expect(c.machine.Current()).To(Equal(CONNECTING))
		})

		It("keep only the last request", func() {
			toWaiting()
			c.Calibrate()
			c.IRTest()
			step()
			Expect(c.machine.Current()).To(Equal(IRTESTING))
		})

		It("accept plain strings set through the store", func() {
			Expect(c.Set(session.Override, "connect")).To(Succeed())
			step()
			Expect(c.machine.Current()).To(Equal(CONNECTING))
		})

		It("halt the loop when no transition matches", func() {
			c.Transit(sm.Event("bogus"))
			err := c.step()
			var ute *sm.UnknownTransitionError
			Expect(errors.As(err, &ute)).To(BeTrue())
			Expect(ute.Src).To(Equal(SCANNING))
			Expect(ute.Evt).To(Equal(sm.Event("bogus")))
		})
	})

	Describe("discovery", func() {
		It("keeps polling until a gun reports", func() {
			c.Connect()
			step()
			step()
			step()
			Expect(c.machine.Current()).To(Equal(CONNECTING))

			b.Plug(gunNode, 1, 7)
			step()
			Expect(c.machine.Current()).To(Equal(LOADING))
		})

		It("loads the gun configuration and notifies about it", func() {
			toWaiting()
			Expect(b.Opened()).To(Equal(1))
			Expect(c.GunConfig()).To(Equal(device.Config{"gain": 3}))
			Expect(c.sessionId).NotTo(BeEmpty())
			Expect(rec.Seen()).To(Equal([]notification{
				{CONNECTED, LOADING},
				{LOADED, WAITING},
			}))
		})

		It("goes through inerror when the device cannot be resolved", func() {
			b.Plug(gunNode, 1, 7)
			c.Connect()
			step()
			step()
			b.Unplug()
			step()
			Expect(c.machine.Current()).To(Equal(INERROR))
			step()
			Expect(c.machine.Current()).To(Equal(SCANNING))
			Expect(b.Opened()).To(BeZero())
		})

		It("goes through inerror when the gun cannot be opened", func() {
			b.FailOpen(errors.New("resource busy"))
			b.Plug(gunNode, 1, 7)
			c.Connect()
			step()
			step()
			step()
			Expect(rec.Last()).To(Equal(notification{ERROR, INERROR}))
			step()
			Expect(rec.Last()).To(Equal(notification{DISCONNECTED, SCANNING}))
			Expect(b.Closed()).To(BeZero())
		})
	})

	Describe("configuring", func() {
		BeforeEach(func() {
			toWaiting()
		})

		It("writes the pending configuration and returns to waiting", func() {
			Expect(c.Set(session.Config, device.Config{"gain": 5})).To(Succeed())
			c.Configure()
			step()
			Expect(c.machine.Current()).To(Equal(CONFIGURING))
			step()
			Expect(c.machine.Current()).To(Equal(WAITING))
			Expect(rec.Last()).To(Equal(notification{CONFIGURED, WAITING}))
			Expect(b.Writes()).To(Equal([]device.Config{{"gain": 5}}))
		})

		It("accepts a configuration given as a plain map", func() {
			Expect(c.Set(session.Config, map[string]interface{}{"gain": 6})).To(Succeed())
			c.Configure()
			step()
			step()
			Expect(b.Writes()).To(Equal([]device.Config{{"gain": 6}}))
		})

		It("disconnects when the gun needs a reboot", func() {
			b.SetNeedsReboot(true)
			c.Configure()
			step()
			step()
			Expect(c.machine.Current()).To(Equal(DISCONNECTING))
			Expect(rec.Last()).To(Equal(notification{REBOOT, DISCONNECTING}))
			step()
			Expect(c.machine.Current()).To(Equal(SCANNING))
			Expect(b.Closed()).To(Equal(1))
			Expect(c.GunConfig()).To(BeNil())
		})

		It("fails without a pending configuration", func() {
			Expect(c.Set(session.Config, nil)).To(Succeed())
			c.Configure()
			step()
			step()
			Expect(c.machine.Current()).To(Equal(INERROR))
		})
	})

	Describe("calibration and IR test", func() {
		BeforeEach(func() {
			toWaiting()
		})

		It("publishes positions and returns to waiting", func() {
			c.Calibrate()
			step()
			Expect(c.machine.Current()).To(Equal(CALIBRATING))

			step()
			Expect(c.GunPos()).To(BeNil())

			b.PushPositions(device.Position{X: 10, Y: 20})
			step()
			Expect(c.GunPos()).To(Equal([]device.Position{{X: 10, Y: 20}}))
			Expect(rec.Last()).To(Equal(notification{CALIBRATE, CALIBRATING}))

			step()
			Expect(c.GunPos()).To(Equal([]device.Position{{X: 10, Y: 20}}))

			c.Calibrated()
			step()
			Expect(c.machine.Current()).To(Equal(WAITING))
		})

		It("moves from calibration to IR test without waiting", func() {
			c.Calibrate()
			step()
			c.IRTest()
			step()
			Expect(c.machine.Current()).To(Equal(IRTESTING))
		})

		It("publishes IR samples", func() {
			b.SetDynData(device.DynData{0xca, 0xfe})
			c.IRTest()
			step()
			step()
			Expect(c.DynData()).To(Equal(device.DynData{0xca, 0xfe}))
			Expect(rec.Last()).To(Equal(notification{IRTEST, IRTESTING}))

			c.IRTested()
			step()
			Expect(c.machine.Current()).To(Equal(WAITING))
		})

		It("keeps testing when an IR read fails", func() {
			before := testutil.ToFloat64(metrics.DynDataErrors)
			b.FailDynData(errors.New("timeout"))
			c.IRTest()
			step()
			step()
			step()
			Expect(c.machine.Current()).To(Equal(IRTESTING))
			Expect(c.DynData()).To(BeNil())
			Expect(testutil.ToFloat64(metrics.DynDataErrors)).To(Equal(before + 2))
		})
	})

	Describe("recoil", func() {
		It("fires once and returns to waiting", func() {
			toWaiting()
			c.Recoil()
			step()
			Expect(c.machine.Current()).To(Equal(RECOILING))
			step()
			Expect(c.machine.Current()).To(Equal(WAITING))
			Expect(b.Recoils()).To(Equal(1))
		})
	})

	Describe("cleanup", func() {
		It("releases the gun once when going through inerror", func() {
			toWaiting()
			c.Transit(ERROR)
			step()
			Expect(c.machine.Current()).To(Equal(INERROR))
			step()
			Expect(c.machine.Current()).To(Equal(SCANNING))
			Expect(b.Closed()).To(Equal(1))

			c.reset()
			c.reset()
			Expect(b.Closed()).To(Equal(1))
		})

		It("clears published values but keeps a pending override", func() {
			toWaiting()
			c.Connect()
			c.reset()
			Expect(b.Closed()).To(Equal(1))
			Expect(c.GunConfig()).To(BeNil())
			Expect(c.Get(session.Override, false)).To(Equal(CONNECT))
		})

		It("reconnects after a disconnect", func() {
			toWaiting()
			c.Disconnect()
			step()
			step()
			toWaiting()
			Expect(b.Opened()).To(Equal(2))
			Expect(b.Closed()).To(Equal(1))
		})
	})
})
