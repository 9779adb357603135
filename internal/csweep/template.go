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
	"os"
	"strconv"
	"strings"
)

const (
	PlaceholderNodes   = "@nodes"
	PlaceholderRanks   = "@ranks"
	PlaceholderThreads = "@threads"
)

// Layout selects which combo fields appear in templates and script names.
type Layout string

const (
	// LayoutNodes fills nodes, ranks and threads.
	LayoutNodes Layout = "nodes"
	// LayoutRanks fills ranks and threads only; the node count is left to
	// the queue arguments.
	LayoutRanks Layout = "ranks"
)

func ParseLayout(s string) (Layout, error) {
	switch Layout(strings.ToLower(strings.TrimSpace(s))) {
	case LayoutNodes, "":
		return LayoutNodes, nil
	case LayoutRanks:
		return LayoutRanks, nil
	}
	return "", fmt.Errorf("unknown layout %q, supported values: nodes, ranks", s)
}

// Placeholders returns the placeholders filled under the layout, in
// substitution order.
func (l Layout) Placeholders() []string {
	if l == LayoutRanks {
		return []string{PlaceholderRanks, PlaceholderThreads}
	}
	return []string{PlaceholderNodes, PlaceholderRanks, PlaceholderThreads}
}

func (l Layout) values(c Combo) []int {
	if l == LayoutRanks {
		return []int{c.Ranks, c.Threads}
	}
	return []int{c.Nodes, c.Ranks, c.Threads}
}

// Template is the script text shared by every combo of a run.
type Template struct {
	Path    string
	Content string
}

func LoadTemplate(path string) (*Template, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, &IOError{Op: "read template", Path: path, Err: err}
	}
	return &Template{Path: path, Content: string(content)}, nil
}

// Fill replaces every occurrence of each placeholder with the decimal value
// of the matching combo field. Placeholders absent from the template are
// ignored.
func (t *Template) Fill(c Combo, layout Layout) string {
	result := t.Content
	values := layout.values(c)
	for i, placeholder := range layout.Placeholders() {
		result = strings.ReplaceAll(result, placeholder, strconv.Itoa(values[i]))
	}
	return result
}

// Missing lists the placeholders of layout that never occur in the template.
func (t *Template) Missing(layout Layout) []string {
	missing := make([]string, 0)
	for _, placeholder := range layout.Placeholders() {
		if !strings.Contains(t.Content, placeholder) {
			missing = append(missing, placeholder)
		}
	}
	return missing
}
