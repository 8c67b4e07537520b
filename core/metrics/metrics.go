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

// Package metrics holds the prometheus collectors of the gun controller.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	Namespace = "gunconf"
	Subsystem = "controller"
)

var (
	TransitionCount = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: Subsystem,
		Name:      "transitions_total",
		Help:      "The number of state machine transitions performed.",
	}, []string{"src", "event", "dst"})
	OverrideCount = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: Subsystem,
		Name:      "overrides_total",
		Help:      "The number of caller requested transitions consumed by the loop.",
	}, []string{"event"})
	HandlerLatency = prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Namespace: Namespace,
		Subsystem: Subsystem,
		Name:      "handler_latency_seconds",
		Help:      "Time spent in each state handler, sleeps included.",
	}, []string{"state"})
	DynDataErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: Subsystem,
		Name:      "dyndata_errors_total",
		Help:      "The number of failed IR sample reads.",
	})
	DevicesDetected = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Subsystem: Subsystem,
		Name:      "devices_detected",
		Help:      "The number of guns found by the last scan.",
	})
)

var registerMetrics sync.Once

func Register() {
	registerMetrics.Do(func() {
		prometheus.MustRegister(TransitionCount)
		prometheus.MustRegister(OverrideCount)
		prometheus.MustRegister(HandlerLatency)
		prometheus.MustRegister(DynDataErrors)
		prometheus.MustRegister(DevicesDetected)
	})
}
