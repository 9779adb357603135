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
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Combo is the resource shape of one generated job.
type Combo struct {
	Nodes   int `json:"nodes"`
	Ranks   int `json:"ranks"`
	Threads int `json:"threads"`
}

func (c Combo) String() string {
	return fmt.Sprintf("%d,%d,%d", c.Nodes, c.Ranks, c.Threads)
}

// DivisorsOf returns every positive divisor of n in ascending order.
func DivisorsOf(n int) []int {
	if n <= 0 {
		return nil
	}
	low := make([]int, 0)
	high := make([]int, 0)
	for d := 1; d*d <= n; d++ {
		if n%d != 0 {
			continue
		}
		low = append(low, d)
		if d != n/d {
			high = append(high, n/d)
		}
	}
	for i := len(high) - 1; i >= 0; i-- {
		low = append(low, high[i])
	}
	return low
}

// CheckDivisors verifies that divisors is strictly ascending and that
// every entry divides cores.
func CheckDivisors(cores int, divisors []int) error {
	for i, d := range divisors {
		if d <= 0 || cores%d != 0 {
			return fmt.Errorf("%d is not a divisor of %d", d, cores)
		}
		if i > 0 && d <= divisors[i-1] {
			return fmt.Errorf("divisor list must be strictly ascending, got %d after %d", d, divisors[i-1])
		}
	}
	return nil
}

// Enumerate produces one combo per divisor of cores, in divisor order.
// An empty divisor list means all divisors of cores. Entries that are not
// positive divisors of cores are skipped; use CheckDivisors to reject them.
func Enumerate(cores int, divisors []int, layout Layout) []Combo {
	if len(divisors) == 0 {
		divisors = DivisorsOf(cores)
	}
	nodes := 1
	if layout == LayoutRanks {
		nodes = 0
	}
	combos := make([]Combo, 0, len(divisors))
	for _, d := range divisors {
		if d <= 0 || cores%d != 0 {
			continue
		}
		combos = append(combos, Combo{Nodes: nodes, Ranks: d, Threads: cores / d})
	}
	return combos
}

// Combo fields are limited to 31 bits in both the argument and JSON forms.
const maxComboField = 1<<31 - 1

// ParseCombo parses a "nodes,ranks,threads" triple.
func ParseCombo(arg string) (Combo, error) {
	pieces := strings.Split(arg, ",")
	if len(pieces) != 3 {
		return Combo{}, &ParseError{Arg: arg, Reason: fmt.Sprintf("expected 3 comma separated fields, got %d", len(pieces))}
	}
	var values [3]int
	for i, piece := range pieces {
		v, err := strconv.ParseUint(piece, 10, 31)
		if err != nil {
			return Combo{}, &ParseError{Arg: arg, Reason: fmt.Sprintf("field %d is not a non-negative integer", i+1), Err: err}
		}
		values[i] = int(v)
	}
	return Combo{Nodes: values[0], Ranks: values[1], Threads: values[2]}, nil
}

// ParseCombos parses each argument in order. Duplicates are kept.
func ParseCombos(args []string) ([]Combo, error) {
	if len(args) == 0 {
		return nil, &ParseError{Reason: "no combos given"}
	}
	combos := make([]Combo, 0, len(args))
	for _, arg := range args {
		c, err := ParseCombo(arg)
		if err != nil {
			return nil, err
		}
		combos = append(combos, c)
	}
	return combos, nil
}

// ParseComboJSON reads a JSON array whose items are either "n,r,t"
// strings or objects with nodes, ranks and threads fields.
func ParseComboJSON(data []byte) ([]Combo, error) {
	if !gjson.ValidBytes(data) {
		return nil, &ParseError{Arg: "combos file", Reason: "invalid JSON"}
	}
	root := gjson.ParseBytes(data)
	if !root.IsArray() {
		return nil, &ParseError{Arg: "combos file", Reason: "top level value must be an array"}
	}

	combos := make([]Combo, 0)
	var err error
	root.ForEach(func(_, item gjson.Result) bool {
		var c Combo
		switch {
		case item.Type == gjson.String:
			c, err = ParseCombo(item.String())
		case item.IsObject():
			c, err = comboFromObject(item)
		default:
			err = &ParseError{Arg: item.Raw, Reason: "item must be a string or an object"}
		}
		if err != nil {
			return false
		}
		combos = append(combos, c)
		return true
	})
	if err != nil {
		return nil, err
	}
	return combos, nil
}

func comboFromObject(item gjson.Result) (Combo, error) {
	var values [3]int
	for i, key := range []string{"nodes", "ranks", "threads"} {
		field := item.Get(key)
		if !field.Exists() {
			return Combo{}, &ParseError{Arg: item.Raw, Reason: fmt.Sprintf("missing field %q", key)}
		}
		if field.Type != gjson.Number || field.Num < 0 || field.Num > maxComboField || field.Num != float64(field.Int()) {
			return Combo{}, &ParseError{Arg: item.Raw, Reason: fmt.Sprintf("field %q is not a non-negative integer", key)}
		}
		values[i] = int(field.Int())
	}
	return Combo{Nodes: values[0], Ranks: values[1], Threads: values[2]}, nil
}
