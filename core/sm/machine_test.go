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

package sm

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

const (
	idle    = State("idle")
	busy    = State("busy")
	broken  = State("broken")
	work    = Event("work")
	rest    = Event("rest")
	fail    = Event("fail")
	unknown = Event("nonexistent")
)

type notification struct {
	evt Event
	dst State
}

var _ = Describe("state machine", func() {
	var (
		m        *Machine
		notified []notification
		requests map[State]Event
	)

	BeforeEach(func() {
		notified = nil
		requests = map[State]Event{idle: work, busy: rest}
		m = New(idle, map[State]Handler{
			idle: HandlerFunc(func() Event { return requests[idle] }),
			busy: HandlerFunc(func() Event { return requests[busy] }),
		})
		m.AddTransitions(
			Transition{Src: idle, Evt: work, Dst: busy, Notify: true},
			Transition{Src: idle, Evt: rest, Dst: idle},
			Transition{Src: busy, Evt: rest, Dst: idle, Notify: true},
			Transition{Src: ANY, Evt: fail, Dst: broken, Notify: true},
			Transition{Src: ANY, Evt: rest, Dst: broken},
		)
		m.SetCallback(func(evt Event, dst State) {
			notified = append(notified, notification{evt, dst})
		})
	})

	Describe("handling the current state", func() {
		It("returns the event requested by the state's handler", func() {
			evt, err := m.Handle()
			Expect(err).NotTo(HaveOccurred())
			Expect(evt).To(Equal(work))
		})

		When("the current state has no handler", func() {
			It("fails", func() {
				_, err := m.DoTransition(fail)
				Expect(err).NotTo(HaveOccurred())
				_, err = m.Handle()
				Expect(errors.Is(err, ErrNoHandler)).To(BeTrue())
			})
		})
	})

	Describe("resolving transitions", func() {
		It("follows exact entries", func() {
			t, err := m.DoTransition(work)
			Expect(err).NotTo(HaveOccurred())
			Expect(t.Src).To(Equal(idle))
			Expect(t.Dst).To(Equal(busy))
			Expect(m.Current()).To(Equal(busy))
		})

		It("prefers an exact entry over a wildcard one", func() {
			_, err := m.DoTransition(rest)
			Expect(err).NotTo(HaveOccurred())
			Expect(m.Current()).To(Equal(idle))
		})

		It("falls back to wildcard entries from any state", func() {
			t, err := m.DoTransition(fail)
			Expect(err).NotTo(HaveOccurred())
			Expect(t.Src).To(Equal(idle))
			Expect(m.Current()).To(Equal(broken))

			m = New(busy, nil)
			m.AddTransition(ANY, fail, broken, false)
			_, err = m.DoTransition(fail)
			Expect(err).NotTo(HaveOccurred())
			Expect(m.Current()).To(Equal(broken))
		})

		It("lets a later entry replace an earlier one", func() {
			m.AddTransition(idle, work, broken, false)
			_, err := m.DoTransition(work)
			Expect(err).NotTo(HaveOccurred())
			Expect(m.Current()).To(Equal(broken))
			Expect(notified).To(BeEmpty())
		})

		When("an event has no entry at all", func() {
			It("fails instead of staying put silently", func() {
				_, err := m.DoTransition(unknown)
				Expect(err).To(HaveOccurred())

				var ute *UnknownTransitionError
				Expect(errors.As(err, &ute)).To(BeTrue())
				Expect(ute.Src).To(Equal(idle))
				Expect(ute.Evt).To(Equal(unknown))
				Expect(notified).To(BeEmpty())
			})

			It("reports it through Can and Resolve", func() {
				Expect(m.Can(unknown)).To(BeFalse())
				Expect(m.Can(fail)).To(BeTrue())
				_, ok := m.Resolve(unknown)
				Expect(ok).To(BeFalse())
			})
		})
	})

	Describe("notifications", func() {
		It("are sent only for flagged transitions", func() {
			_, err := m.DoTransition(work)
			Expect(err).NotTo(HaveOccurred())
			_, err = m.DoTransition(rest)
			Expect(err).NotTo(HaveOccurred())
			_, err = m.DoTransition(rest)
			Expect(err).NotTo(HaveOccurred())

			Expect(notified).To(Equal([]notification{{work, busy}, {rest, idle}}))
		})

		It("are skipped when no callback is registered", func() {
			m.SetCallback(nil)
			Expect(func() { _, _ = m.DoTransition(work) }).NotTo(Panic())
			Expect(m.Current()).To(Equal(busy))
		})
	})

	It("runs a handle and transition cycle", func() {
		for i := 0; i < 4; i++ {
			evt, err := m.Handle()
			Expect(err).NotTo(HaveOccurred())
			_, err = m.DoTransition(evt)
			Expect(err).NotTo(HaveOccurred())
		}
		Expect(m.Current()).To(Equal(idle))
		Expect(notified).To(HaveLen(4))
	})
})
