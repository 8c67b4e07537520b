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

package cmd

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/AliceO2Group/gunconf/core/controller"
	"github.com/AliceO2Group/gunconf/core/device"
	"github.com/AliceO2Group/gunconf/core/device/sim"
	"github.com/AliceO2Group/gunconf/core/device/sysfs"
	"github.com/AliceO2Group/gunconf/core/metrics"
	"github.com/AliceO2Group/gunconf/core/session"
	"github.com/AliceO2Group/gunconf/core/sm"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "run the gun controller",
	Long: `The run command starts the gun controller against a simulated gun and keeps
it running until interrupted. With --sysfs the simulated gun takes the USB bus
and address of a real input device node, found through sysfs.`,
	Args: cobra.NoArgs,
	RunE: runController,
}

func init() {
	rootCmd.AddCommand(runCmd)

	def := controller.DefaultConfig()
	runCmd.Flags().String("device", "/dev/input/event0", "input device node the simulated gun is exposed as")
	runCmd.Flags().Bool("sysfs", false, "resolve the device node through sysfs instead of simulating its USB address")
	runCmd.Flags().String("sysfsRoot", sysfs.DefaultRoot, "sysfs mount point")
	runCmd.Flags().String("gunConfig", "", "YAML gun configuration profile")
	runCmd.Flags().Bool("apply", false, "write the gun configuration profile to every gun once loaded")
	runCmd.Flags().Duration("irLatency", 10*time.Millisecond, "time the simulated gun takes to deliver an IR sample")
	runCmd.Flags().Uint("vendorId", uint(def.VendorID), "USB vendor id of the guns")
	runCmd.Flags().Int("interfacesPerDevice", def.InterfacesPerDevice, "number of input interfaces one gun exposes")
	runCmd.Flags().Duration("scanInterval", def.ScanInterval, "delay between two device scans")
	runCmd.Flags().Duration("connectInterval", def.ConnectInterval, "delay between two connection polls")
	runCmd.Flags().Duration("waitInterval", def.WaitInterval, "idle delay while waiting for a request")
	runCmd.Flags().Duration("calibrateInterval", def.CalibrateInterval, "delay between two position reads")
	runCmd.Flags().String("metrics.address", "127.0.0.1", "IP of metrics server")
	runCmd.Flags().Int("metrics.port", 9128, "port of metrics server, 0 disables it")
	runCmd.Flags().String("metrics.path", "/metrics", "URI path to metrics endpoint")

	bindFlags(runCmd.Flags())
}

// bindFlags exposes every flag of fs as the viper key of the same name.
func bindFlags(fs *pflag.FlagSet) {
	fs.VisitAll(func(f *pflag.Flag) {
		viper.BindPFlag(f.Name, f)
	})
}

func runController(*cobra.Command, []string) error {
	cfg, err := controller.ConfigFromViper(viper.GetViper())
	if err != nil {
		return err
	}

	var profile device.Config
	if path := viper.GetString("gunConfig"); path != "" {
		if profile, err = device.LoadConfig(path); err != nil {
			return err
		}
		log.WithField("file", path).Debug("gun configuration profile loaded")
	}

	backend := sim.NewBackend()
	backend.SetInterfaces(cfg.InterfacesPerDevice)
	backend.SetReadLatency(viper.GetDuration("irLatency"))
	if profile != nil {
		backend.SetConfig(profile)
	}

	collab := controller.Collaborators{
		Driver:   backend,
		Mouses:   backend,
		Resolver: backend,
	}

	node := viper.GetString("device")
	bus, address := 1, 2
	if viper.GetBool("sysfs") {
		resolver := sysfs.New(viper.GetString("sysfsRoot"))
		if bus, address, err = resolver.Resolve(node); err != nil {
			return err
		}
		collab.Resolver = resolver
	}
	backend.Plug(node, bus, address)

	ctl, err := controller.New(cfg, collab)
	if err != nil {
		return err
	}

	apply := viper.GetBool("apply") && profile != nil
	ctl.SetCallback(func(evt sm.Event, dst sm.State) {
		entry := log.WithFields(logrus.Fields{
			"event": evt,
			"state": dst,
		})
		switch evt {
		case controller.SCAN, controller.CALIBRATE, controller.IRTEST:
			entry.Trace("gun state refreshed")
		default:
			entry.Info("gun state changed")
		}

		switch {
		case evt == controller.SCAN:
			if ctl.NbDevs() > 0 {
				ctl.Connect()
			}
		case evt == controller.DISCONNECTED:
			// the simulated gun enumerates again, as a real one does after a reboot
			backend.Plug(node, bus, address)
		case dst == controller.WAITING && evt == controller.LOADED && apply:
			if err := ctl.Set(session.Config, profile.Clone()); err != nil {
				log.WithError(err).Error("cannot queue gun configuration")
				return
			}
			ctl.Configure()
		}
	})

	serveMetrics()

	if err := ctl.Start(); err != nil {
		return err
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	select {
	case s := <-sigs:
		log.WithField("signal", s).Info("stopping gun controller")
	case <-ctl.Done():
	}

	if err := ctl.Stop(); err != nil {
		return fmt.Errorf("gun controller halted: %w", err)
	}
	return nil
}

func serveMetrics() {
	port := viper.GetInt("metrics.port")
	if port == 0 {
		return
	}
	metrics.Register()

	address := net.JoinHostPort(viper.GetString("metrics.address"), strconv.Itoa(port))
	mux := http.NewServeMux()
	mux.Handle(viper.GetString("metrics.path"), promhttp.Handler())

	go func() {
		log.WithField("address", address).Debug("serving metrics")
		if err := http.ListenAndServe(address, mux); err != nil {
			log.WithError(err).WithField("address", address).Error("metrics server failed")
		}
	}()
}
