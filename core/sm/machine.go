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

// Package sm provides a small data-driven state machine engine.
//
// A Machine holds a transition table and a current state. On every step the
// owner asks the Machine to Handle the current state, which calls the Handler
// registered for it and yields the name of the requested transition. That name
// is then resolved by DoTransition, first against the entries of the current
// state and then against the wildcard (ANY) entries.
//
// The Machine performs no I/O and holds no locks.
package sm

import (
	"errors"
	"fmt"
)

var ErrNoHandler = errors.New("no handler for state")

// UnknownTransitionError is returned when an event has neither an exact nor a
// wildcard entry for the current state.
type UnknownTransitionError struct {
	Src State
	Evt Event
}

func (e *UnknownTransitionError) Error() string {
	return fmt.Sprintf("no transition %s from state %s", e.Evt, e.Src)
}

// Transition is one entry of the table. Notify marks transitions the
// registered Callback is told about.
type Transition struct {
	Src    State
	Evt    Event
	Dst    State
	Notify bool
}

type Handler interface {
	Handle() Event
}

// HandlerFunc adapts an ordinary function to the Handler interface.
type HandlerFunc func() Event

func (f HandlerFunc) Handle() Event {
	return f()
}

// Callback is called with the event and the newly entered state.
type Callback func(evt Event, dst State)

type tableKey struct {
	src State
	evt Event
}

type Machine struct {
	current  State
	table    map[tableKey]Transition
	handlers map[State]Handler
	cb       Callback
}

func New(initial State, handlers map[State]Handler) *Machine {
	m := &Machine{
		current:  initial,
		table:    make(map[tableKey]Transition),
		handlers: make(map[State]Handler, len(handlers)),
	}
	for state, h := range handlers {
		m.handlers[state] = h
	}
	return m
}

// AddTransition inserts or replaces the entry for (src, evt). src may be ANY.
func (m *Machine) AddTransition(src State, evt Event, dst State, notify bool) {
	m.table[tableKey{src, evt}] = Transition{Src: src, Evt: evt, Dst: dst, Notify: notify}
}

func (m *Machine) AddTransitions(transitions ...Transition) {
	for _, t := range transitions {
		m.AddTransition(t.Src, t.Evt, t.Dst, t.Notify)
	}
}

func (m *Machine) SetCallback(cb Callback) {
	m.cb = cb
}

func (m *Machine) Current() State {
	return m.current
}

// Handle runs the handler of the current state and returns the event it
// requests.
func (m *Machine) Handle() (Event, error) {
	h, ok := m.handlers[m.current]
	if !ok || h == nil {
		return "", fmt.Errorf("%w %s", ErrNoHandler, m.current)
	}
	return h.Handle(), nil
}

// Resolve looks evt up for the current state without changing anything.
// Exact entries win over wildcard ones.
func (m *Machine) Resolve(evt Event) (Transition, bool) {
	if t, ok := m.table[tableKey{m.current, evt}]; ok {
		return t, true
	}
	if t, ok := m.table[tableKey{ANY, evt}]; ok {
		return t, true
	}
	return Transition{}, false
}

func (m *Machine) Can(evt Event) bool {
	_, ok := m.Resolve(evt)
	return ok
}

// DoTransition moves the machine along evt. The returned Transition carries
// the actual source state even when a wildcard entry matched. On failure the
// state is left untouched and no callback fires.
func (m *Machine) DoTransition(evt Event) (Transition, error) {
	t, ok := m.Resolve(evt)
	if !ok {
		return Transition{}, &UnknownTransitionError{Src: m.current, Evt: evt}
	}
	t.Src = m.current
	m.current = t.Dst
	if t.Notify && m.cb != nil {
		m.cb(evt, t.Dst)
	}
	return t, nil
}
