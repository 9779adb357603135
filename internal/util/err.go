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

package util

import (
	"errors"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type CraneCmdError = int

// general
const (
	ErrorSuccess       CraneCmdError = 0
	ErrorExecuteFailed CraneCmdError = 1
	ErrorCmdArg        CraneCmdError = 2
)

// csweep
const (
	ErrorConfig     CraneCmdError = 6
	ErrorIO         CraneCmdError = 7
	ErrorSubprocess CraneCmdError = 8
)

type CraneError struct {
	Code    CraneCmdError
	Message string
	Err     error
}

func (e *CraneError) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	}
	return fmt.Sprintf("command failed with code %d", e.Code)
}

func (e *CraneError) Unwrap() error {
	return e.Err
}

func WrapCraneErr(code CraneCmdError, msg string, err error) *CraneError {
	return &CraneError{Code: code, Message: msg, Err: err}
}

// ExitCode maps any error returned by a command to a process exit status.
func ExitCode(err error) int {
	if err == nil {
		return ErrorSuccess
	}
	var craneErr *CraneError
	if errors.As(err, &craneErr) {
		return craneErr.Code
	}
	return ErrorExecuteFailed
}

// RunEWrapperForLeafCommand silences cobra's own error printing on every
// leaf command so that RunAndHandleExit reports each failure exactly once.
func RunEWrapperForLeafCommand(cmd *cobra.Command) {
	if len(cmd.Commands()) == 0 {
		if cmd.RunE == nil {
			return
		}
		runE := cmd.RunE
		cmd.RunE = func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return runE(cmd, args)
		}
		cmd.SilenceErrors = true
		return
	}
	for _, sub := range cmd.Commands() {
		RunEWrapperForLeafCommand(sub)
	}
}

func RunAndHandleExit(cmd *cobra.Command) {
	err := cmd.Execute()
	if err == nil {
		os.Exit(ErrorSuccess)
	}
	var craneErr *CraneError
	if !errors.As(err, &craneErr) || craneErr.Message != "" || craneErr.Err != nil {
		log.Error(err)
	}
	os.Exit(ExitCode(err))
}
