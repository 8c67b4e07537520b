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

// Package controller runs the light gun lifecycle: discovery, loading of the
// configuration block, configuration, calibration and IR testing.
//
// A Controller owns one worker goroutine which advances a state machine. Each
// iteration runs the handler of the current state, which performs one bounded
// unit of work and requests a transition. Callers steer the worker with Transit
// (or one of the named helpers such as Calibrate), whose request replaces the
// handler's own for the next iteration, and read published values from the
// session store.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/AliceO2Group/gunconf/common/logger"
	"github.com/AliceO2Group/gunconf/core/device"
	"github.com/AliceO2Group/gunconf/core/metrics"
	"github.com/AliceO2Group/gunconf/core/session"
	"github.com/AliceO2Group/gunconf/core/sm"
	"github.com/hashicorp/go-multierror"
	"github.com/looplab/fsm"
	"github.com/sirupsen/logrus"
)

var log = logger.New(logrus.StandardLogger(), "controller")

var (
	ErrAlreadyStarted = errors.New("controller already started")
	ErrStopped        = errors.New("controller stopped")
)

// Collaborators are used by the worker goroutine only.
type Collaborators struct {
	Driver   device.Driver
	Mouses   device.MouseManager
	Resolver device.Resolver
}

func (c Collaborators) validate() error {
	var errs *multierror.Error
	if c.Driver == nil {
		errs = multierror.Append(errs, errors.New("missing device driver"))
	}
	if c.Mouses == nil {
		errs = multierror.Append(errs, errors.New("missing mouse manager"))
	}
	if c.Resolver == nil {
		errs = multierror.Append(errs, errors.New("missing device resolver"))
	}
	return errs.ErrorOrNil()
}

type Controller struct {
	cfg     Config
	collab  Collaborators
	machine *sm.Machine
	store   *session.Store
	cb      sm.Callback

	// worker lifecycle, NEW -> RUNNING -> STOPPED
	lifeMu    sync.Mutex
	lifecycle *fsm.FSM
	started   bool

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	errMu sync.Mutex
	err   error

	// owned by the worker goroutine
	gun       device.Gun
	name      string
	sessionId string
}

func New(cfg Config, collab Collaborators) (*Controller, error) {
	var errs *multierror.Error
	errs = multierror.Append(errs, cfg.Validate(), collab.validate())
	if err := errs.ErrorOrNil(); err != nil {
		return nil, fmt.Errorf("cannot create controller: %w", err)
	}

	c := &Controller{
		cfg:    cfg,
		collab: collab,
		store:  session.New(),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	c.machine = newMachine(map[sm.State]sm.Handler{
		SCANNING:      sm.HandlerFunc(c.scanning),
		CONNECTING:    sm.HandlerFunc(c.connecting),
		LOADING:       sm.HandlerFunc(c.loading),
		WAITING:       sm.HandlerFunc(c.waiting),
		CONFIGURING:   sm.HandlerFunc(c.configuring),
		CALIBRATING:   sm.HandlerFunc(c.calibrating),
		IRTESTING:     sm.HandlerFunc(c.irtesting),
		RECOILING:     sm.HandlerFunc(c.recoiling),
		INERROR:       sm.HandlerFunc(c.inerror),
		DISCONNECTING: sm.HandlerFunc(c.disconnecting),
	})
	c.machine.SetCallback(c.notify)

	c.lifecycle = fsm.NewFSM(
		"NEW",
		fsm.Events{
			{Name: "START", Src: []string{"NEW"}, Dst: "RUNNING"},
			{Name: "STOP", Src: []string{"NEW", "RUNNING"}, Dst: "STOPPED"},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				log.WithFields(logrus.Fields{
					"event": e.Event,
					"src":   e.Src,
					"dst":   e.Dst,
				}).Debug("controller lifecycle changed")
			},
		},
	)

	return c, nil
}

// SetCallback registers the observer of notified transitions. It is called
// from the worker goroutine and must return quickly. Call before Start.
func (c *Controller) SetCallback(cb sm.Callback) {
	c.cb = cb
}

func (c *Controller) notify(evt sm.Event, dst sm.State) {
	log.WithFields(logrus.Fields{
		"event":   evt,
		"state":   dst,
		"session": c.sessionId,
	}).Trace("transition")
	if c.cb != nil {
		c.cb(evt, dst)
	}
}

// Start spawns the worker goroutine. A Controller runs at most once.
func (c *Controller) Start() error {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()

	if c.lifecycle.Is("RUNNING") {
		return ErrAlreadyStarted
	}
	if err := c.lifecycle.Event(context.Background(), "START"); err != nil {
		return fmt.Errorf("%w: %v", ErrStopped, err)
	}
	c.started = true

	go c.run()
	return nil
}

// Stop asks the worker to exit at the next iteration boundary and waits until
// it has done so and the gun has been released. It returns the error that
// terminated the worker, if any.
func (c *Controller) Stop() error {
	c.lifeMu.Lock()
	started := c.started
	if c.lifecycle.Can("STOP") {
		_ = c.lifecycle.Event(context.Background(), "STOP")
	}
	c.lifeMu.Unlock()

	c.stopOnce.Do(func() { close(c.stop) })
	if started {
		<-c.done
	}
	return c.Err()
}

// Done is closed when the worker goroutine has exited.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Err returns the error that terminated the worker, or nil.
func (c *Controller) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

func (c *Controller) run() {
	defer close(c.done)
	defer c.reset()

	log.WithField("state", c.machine.Current()).Info("controller started")
	for {
		select {
		case <-c.stop:
			log.WithField("state", c.machine.Current()).Info("controller stopped")
			return
		default:
		}

		if err := c.step(); err != nil {
			c.fail(err)
			return
		}
	}
}

func (c *Controller) fail(err error) {
	log.WithError(err).
		WithField("state", c.machine.Current()).
		Error("state machine halted")

	c.errMu.Lock()
	c.err = err
	c.errMu.Unlock()

	c.lifeMu.Lock()
	if c.lifecycle.Can("STOP") {
		_ = c.lifecycle.Event(context.Background(), "STOP")
	}
	c.lifeMu.Unlock()
}

// step runs one loop iteration: handle the current state, then apply either
// the pending override or the handler's own request.
func (c *Controller) step() error {
	state := c.machine.Current()

	start := time.Now()
	evt, err := c.machine.Handle()
	if err != nil {
		return err
	}
	metrics.HandlerLatency.WithLabelValues(state.String()).Observe(time.Since(start).Seconds())

	if override, ok := c.takeOverride(); ok {
		log.WithFields(logrus.Fields{
			"state":     state,
			"requested": evt,
			"override":  override,
		}).Debug("transition overridden")
		metrics.OverrideCount.WithLabelValues(override.String()).Inc()
		evt = override
	}

	t, err := c.machine.DoTransition(evt)
	if err != nil {
		return err
	}
	metrics.TransitionCount.WithLabelValues(t.Src.String(), t.Evt.String(), t.Dst.String()).Inc()
	return nil
}

func (c *Controller) takeOverride() (sm.Event, bool) {
	switch v := c.store.Get(session.Override, true).(type) {
	case sm.Event:
		return v, v != ""
	case string:
		return sm.Event(v), v != ""
	default:
		return "", false
	}
}

// Transit requests evt as the next transition, whatever the current state
// handler asks for. Requests are not queued: the last one issued before the
// worker reads the override wins. A request issued while the gun is being
// released survives the cleanup of the session store.
func (c *Controller) Transit(evt sm.Event) {
	_ = c.store.Set(session.Override, evt)
}

func (c *Controller) Connect() { c.Transit(CONNECT) }

// Disconnect releases the gun from any state. The published values are
// cleared, but a request issued during the cleanup is kept for the next
// iteration.
func (c *Controller) Disconnect() { c.Transit(DISCONNECT) }

func (c *Controller) Calibrate()  { c.Transit(CALIBRATE) }
func (c *Controller) Calibrated() { c.Transit(CALIBRATED) }
func (c *Controller) IRTest()     { c.Transit(IRTEST) }
func (c *Controller) IRTested()   { c.Transit(IRTESTED) }
func (c *Controller) Configure()  { c.Transit(CONFIGURE) }
func (c *Controller) Recoil()     { c.Transit(RECOIL) }

// Get returns the value published under key, or nil. With reset the entry is
// cleared atomically with the read.
func (c *Controller) Get(key session.Key, reset bool) interface{} {
	return c.store.Get(key, reset)
}

// Set publishes value under key. Values must not be modified once set.
func (c *Controller) Set(key session.Key, value interface{}) error {
	return c.store.Set(key, value)
}

func (c *Controller) NbDevs() int {
	n, _ := c.store.Get(session.NbDevs, false).(int)
	return n
}

func (c *Controller) GunConfig() device.Config {
	cfg, _ := toConfig(c.store.Get(session.Config, false))
	return cfg
}

func (c *Controller) DynData() device.DynData {
	data, _ := c.store.Get(session.DynData, false).(device.DynData)
	return data
}

func (c *Controller) GunPos() []device.Position {
	pos, _ := c.store.Get(session.GunPos, false).([]device.Position)
	return pos
}

func toConfig(v interface{}) (device.Config, bool) {
	switch cfg := v.(type) {
	case device.Config:
		return cfg, cfg != nil
	case map[string]interface{}:
		return device.Config(cfg), cfg != nil
	default:
		return nil, false
	}
}
