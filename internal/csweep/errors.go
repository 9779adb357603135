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
)

// ParseError reports a malformed combo argument.
type ParseError struct {
	Arg    string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid combo %q: %s: %v", e.Arg, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid combo %q: %s", e.Arg, e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }

// IOError reports a failed filesystem operation on Path.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// SubprocessError reports a queue command that could not be started or
// did not exit with status zero. ExitCode is -1 when the process never
// produced an exit status.
type SubprocessError struct {
	Command  string
	Path     string
	ExitCode int
	Err      error
}

func (e *SubprocessError) Error() string {
	if e.ExitCode >= 0 {
		return fmt.Sprintf("submit %s with %s: exit status %d", e.Path, e.Command, e.ExitCode)
	}
	return fmt.Sprintf("submit %s with %s: %v", e.Path, e.Command, e.Err)
}

func (e *SubprocessError) Unwrap() error { return e.Err }
