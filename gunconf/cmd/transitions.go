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
	"io"
	"os"

	"github.com/AliceO2Group/gunconf/core/controller"
	"github.com/AliceO2Group/gunconf/core/sm"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/xlab/treeprint"
)

// transitionsCmd represents the transitions command
var transitionsCmd = &cobra.Command{
	Use:     "transitions",
	Aliases: []string{"t"},
	Short:   "show the gun state machine",
	Long: `The transitions command prints the transition table of the gun controller,
either as a table or, with --tree, grouped by source state.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		transitions := controller.Transitions()
		if tree, _ := cmd.Flags().GetBool("tree"); tree {
			drawTransitionTree(transitions, os.Stdout)
			return
		}
		drawTransitionTable(transitions, os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(transitionsCmd)
	transitionsCmd.Flags().Bool("tree", false, "group transitions by source state")
}

func notifyMark(t sm.Transition) string {
	if t.Notify {
		return "yes"
	}
	return ""
}

func drawTransitionTable(transitions []sm.Transition, o io.Writer) {
	headers := []string{"from", "event", "to", "notify"}

	table := tablewriter.NewWriter(o)
	table.SetHeader(headers)
	table.SetBorder(false)
	fg := tablewriter.Colors{tablewriter.Bold, tablewriter.FgYellowColor}
	fgColSlice := make([]tablewriter.Colors, len(headers))
	for i := range headers {
		fgColSlice[i] = fg
	}
	table.SetHeaderColor(fgColSlice...)

	data := make([][]string, 0, len(transitions))
	for _, t := range transitions {
		data = append(data, []string{t.Src.String(), t.Evt.String(), t.Dst.String(), notifyMark(t)})
	}

	table.AppendBulk(data)
	table.Render()
}

func drawTransitionTree(transitions []sm.Transition, o io.Writer) {
	tree := treeprint.New()
	tree.SetValue("gun")

	yellow := color.New(color.FgHiYellow).SprintFunc()
	branches := make(map[sm.State]treeprint.Tree)
	for _, src := range append(append([]sm.State{}, controller.States...), sm.ANY) {
		branches[src] = tree.AddBranch(src.String())
	}
	for _, t := range transitions {
		branch, ok := branches[t.Src]
		if !ok {
			branch = tree.AddBranch(t.Src.String())
			branches[t.Src] = branch
		}
		text := fmt.Sprintf("%-14s", t.Evt) + yellow(" --> ") + t.Dst.String()
		if t.Notify {
			branch.AddMetaNode("notify", text)
		} else {
			branch.AddNode(text)
		}
	}
	fmt.Fprint(o, tree.String())
}
