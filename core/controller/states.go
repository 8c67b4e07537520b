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

import "github.com/AliceO2Group/gunconf/core/sm"

const (
	SCANNING      = sm.State("scanning")
	CONNECTING    = sm.State("connecting")
	LOADING       = sm.State("loading")
	WAITING       = sm.State("waiting")
	CONFIGURING   = sm.State("configuring")
	CALIBRATING   = sm.State("calibrating")
	IRTESTING     = sm.State("irtesting")
	RECOILING     = sm.State("recoiling")
	INERROR       = sm.State("inerror")
	DISCONNECTING = sm.State("disconnecting")
)

const (
	SCAN         = sm.Event("scan")
	CONNECT      = sm.Event("connect")
	CONNECTED    = sm.Event("connected")
	LOADED       = sm.Event("loaded")
	WAIT         = sm.Event("wait")
	CALIBRATE    = sm.Event("calibrate")
	CALIBRATED   = sm.Event("calibrated")
	IRTEST       = sm.Event("irtest")
	IRTESTED     = sm.Event("irtested")
	CONFIGURE    = sm.Event("configure")
	CONFIGURED   = sm.Event("configured")
	REBOOT       = sm.Event("reboot")
	RECOIL       = sm.Event("recoil")
	DISCONNECT   = sm.Event("disconnect")
	DISCONNECTED = sm.Event("disconnected")
	ERROR        = sm.Event("error")
)

var States = []sm.State{
	SCANNING,
	CONNECTING,
	LOADING,
	WAITING,
	CONFIGURING,
	CALIBRATING,
	IRTESTING,
	RECOILING,
	INERROR,
	DISCONNECTING,
}

// Notify is set on the transitions a supervisor reacts to: state changes, and
// the self loops that publish fresh data (device count, positions, IR samples).
var transitionsTable = []sm.Transition{
	{Src: SCANNING, Evt: CONNECT, Dst: CONNECTING},
	{Src: SCANNING, Evt: SCAN, Dst: SCANNING, Notify: true},

	{Src: CONNECTING, Evt: CONNECTED, Dst: LOADING, Notify: true},
	{Src: CONNECTING, Evt: CONNECT, Dst: CONNECTING},

	{Src: LOADING, Evt: LOADED, Dst: WAITING, Notify: true},

	{Src: WAITING, Evt: WAIT, Dst: WAITING},
	{Src: WAITING, Evt: CALIBRATE, Dst: CALIBRATING},
	{Src: WAITING, Evt: IRTEST, Dst: IRTESTING},
	{Src: WAITING, Evt: CONFIGURE, Dst: CONFIGURING},
	{Src: WAITING, Evt: RECOIL, Dst: RECOILING},

	{Src: CONFIGURING, Evt: CONFIGURED, Dst: WAITING, Notify: true},
	{Src: CONFIGURING, Evt: REBOOT, Dst: DISCONNECTING, Notify: true},

	{Src: CALIBRATING, Evt: CALIBRATE, Dst: CALIBRATING, Notify: true},
	{Src: CALIBRATING, Evt: CALIBRATED, Dst: WAITING},
	{Src: CALIBRATING, Evt: IRTEST, Dst: IRTESTING},

	{Src: IRTESTING, Evt: IRTEST, Dst: IRTESTING, Notify: true},
	{Src: IRTESTING, Evt: IRTESTED, Dst: WAITING},
	{Src: IRTESTING, Evt: CALIBRATE, Dst: CALIBRATING},

	{Src: RECOILING, Evt: WAIT, Dst: WAITING},

	{Src: INERROR, Evt: DISCONNECTED, Dst: SCANNING, Notify: true},
	{Src: DISCONNECTING, Evt: DISCONNECTED, Dst: SCANNING, Notify: true},

	{Src: sm.ANY, Evt: DISCONNECT, Dst: DISCONNECTING, Notify: true},
	{Src: sm.ANY, Evt: ERROR, Dst: INERROR, Notify: true},
}

// Transitions returns a copy of the controller transition table.
func Transitions() []sm.Transition {
	out := make([]sm.Transition, len(transitionsTable))
	copy(out, transitionsTable)
	return out
}

func newMachine(handlers map[sm.State]sm.Handler) *sm.Machine {
	m := sm.New(SCANNING, handlers)
	m.AddTransitions(transitionsTable...)
	return m
}
