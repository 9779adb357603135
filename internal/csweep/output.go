/**
 * Copyright (c) 2024 Peking University and Peking University
 * Changsha Institute for Computing and Digital Economy
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as
 * published by the Free Software Foundation, either version 3 of the
 * License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program.  If not, see <https://www.gnu.org/licenses/>.
 */

package csweep

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"

	"github.com/tidwall/sjson"
	"github.com/xlab/treeprint"

	"CraneSweep/internal/util"
)

func PrintResults(w io.Writer, results []Result, layout Layout) {
	header := []string{"Nodes", "Ranks", "Threads", "Script", "Submitted"}
	if layout == LayoutRanks {
		header = header[1:]
	}
	table := util.NewBorderlessTable(w, header)
	for _, r := range results {
		row := []string{
			strconv.Itoa(r.Combo.Nodes),
			strconv.Itoa(r.Combo.Ranks),
			strconv.Itoa(r.Combo.Threads),
			r.Path,
			strconv.FormatBool(r.Submitted),
		}
		if layout == LayoutRanks {
			row = row[1:]
		}
		table.Append(row)
	}
	table.Render()
}

// FormatResultsJSON renders the run summary as a JSON document.
func FormatResultsJSON(runID string, results []Result, runErr error) (string, error) {
	doc := `{"scripts":[]}`
	var err error
	if doc, err = sjson.Set(doc, "run", runID); err != nil {
		return "", err
	}
	submitted := 0
	for i, r := range results {
		if doc, err = sjson.Set(doc, fmt.Sprintf("scripts.%d", i), r); err != nil {
			return "", err
		}
		if r.Submitted {
			submitted++
		}
	}
	if doc, err = sjson.Set(doc, "written", len(results)); err != nil {
		return "", err
	}
	if doc, err = sjson.Set(doc, "submitted", submitted); err != nil {
		return "", err
	}
	if runErr != nil {
		if doc, err = sjson.Set(doc, "error", runErr.Error()); err != nil {
			return "", err
		}
	}
	return doc, nil
}

// FormatPlan renders the scripts a run would write, grouped under the
// output directory.
func FormatPlan(dir string, results []Result, layout Layout, submit bool) string {
	tree := treeprint.NewWithRoot(dir)
	for _, r := range results {
		branch := tree.AddBranch(filepath.Base(r.Path))
		if layout == LayoutRanks {
			branch.AddNode(fmt.Sprintf("ranks=%d threads=%d", r.Combo.Ranks, r.Combo.Threads))
		} else {
			branch.AddNode(fmt.Sprintf("nodes=%d ranks=%d threads=%d", r.Combo.Nodes, r.Combo.Ranks, r.Combo.Threads))
		}
		if submit {
			branch.AddNode("submit")
		}
	}
	return tree.String()
}
