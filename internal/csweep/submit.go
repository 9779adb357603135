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
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	log "github.com/sirupsen/logrus"
)

// Submitter hands one generated script to the queue manager.
type Submitter interface {
	Submit(ctx context.Context, path string) error
}

// QueueSubmitter runs "Command path Args..." and waits for it to exit.
// Output of the command is passed through, never parsed.
type QueueSubmitter struct {
	Command string
	Args    []string
	// Zero means no limit.
	Timeout time.Duration

	Stdout io.Writer
	Stderr io.Writer
}

func NewQueueSubmitter(command string, args []string, timeout time.Duration) *QueueSubmitter {
	return &QueueSubmitter{
		Command: command,
		Args:    args,
		Timeout: timeout,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
	}
}

func (q *QueueSubmitter) Submit(ctx context.Context, path string) error {
	if q.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.Timeout)
		defer cancel()
	}

	argv := append([]string{path}, q.Args...)
	cmd := exec.CommandContext(ctx, q.Command, argv...)
	cmd.Stdout = q.Stdout
	cmd.Stderr = q.Stderr
	// Do not wait on pipes held open by grandchildren after a kill.
	cmd.WaitDelay = time.Second

	log.Debugf("Running %s %v", q.Command, argv)
	err := cmd.Run()
	if err == nil {
		return nil
	}

	subErr := &SubprocessError{Command: q.Command, Path: path, ExitCode: -1, Err: err}
	if ctxErr := ctx.Err(); ctxErr != nil {
		subErr.Err = fmt.Errorf("%w: %v", ctxErr, err)
		return subErr
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		subErr.ExitCode = exitErr.ExitCode()
	}
	return subErr
}

// Pacer spaces out successive submissions.
type Pacer struct {
	Delay time.Duration
}

// Wait blocks for the configured delay, returning early with the context
// error if ctx is done first.
func (p Pacer) Wait(ctx context.Context) error {
	if p.Delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(p.Delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
