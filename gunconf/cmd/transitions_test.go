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
	"bytes"

	"github.com/AliceO2Group/gunconf/core/controller"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("transitions command", func() {
	It("lists every transition in the table", func() {
		var out bytes.Buffer
		drawTransitionTable(controller.Transitions(), &out)

		Expect(out.String()).To(ContainSubstring("FROM"))
		Expect(out.String()).To(ContainSubstring("irtesting"))
		Expect(out.String()).To(ContainSubstring("disconnected"))
		Expect(bytes.Count(out.Bytes(), []byte("\n"))).To(BeNumerically(">=", len(controller.Transitions())))
	})

	It("groups transitions by source state", func() {
		var out bytes.Buffer
		drawTransitionTree(controller.Transitions(), &out)

		Expect(out.String()).To(HavePrefix("gun"))
		for _, state := range controller.States {
			Expect(out.String()).To(ContainSubstring(state.String()))
		}
		Expect(out.String()).To(ContainSubstring("[notify]"))
		Expect(out.String()).To(ContainSubstring("*"))
	})
})
