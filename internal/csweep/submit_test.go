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
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// fakeQueue writes an executable shell script that stands in for qsub.
func fakeQueue(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-qsub")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestQueueSubmitterSuccess(t *testing.T) {
	queue := fakeQueue(t, `echo "$@"`)
	var stdout bytes.Buffer
	q := NewQueueSubmitter(queue, []string{"-q", "batch", "-l", "walltime=01:00:00,mem=1gb"}, 0)
	q.Stdout = &stdout

	if err := q.Submit(context.Background(), "/out/run_1nodes_2ranks_12threads.sh"); err != nil {
		t.Fatalf("Submit() unexpected error: %v", err)
	}
	want := "/out/run_1nodes_2ranks_12threads.sh -q batch -l walltime=01:00:00,mem=1gb\n"
	if got := stdout.String(); got != want {
		t.Errorf("queue saw %q, want %q", got, want)
	}
}

func TestQueueSubmitterFailures(t *testing.T) {
	tests := []struct {
		name     string
		command  string
		timeout  time.Duration
		exitCode int
		wantCtx  error
	}{
		{name: "non-zero exit", command: fakeQueue(t, "exit 3"), exitCode: 3},
		{name: "missing executable", command: filepath.Join(t.TempDir(), "no-such-qsub"), exitCode: -1},
		{name: "timeout", command: fakeQueue(t, "exec sleep 10"), timeout: 100 * time.Millisecond, exitCode: -1, wantCtx: context.DeadlineExceeded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := NewQueueSubmitter(tt.command, nil, tt.timeout)
			q.Stdout, q.Stderr = &bytes.Buffer{}, &bytes.Buffer{}

			start := time.Now()
			err := q.Submit(context.Background(), "script.sh")
			var subErr *SubprocessError
			if !errors.As(err, &subErr) {
				t.Fatalf("Submit() error = %v, want *SubprocessError", err)
			}
			if subErr.ExitCode != tt.exitCode {
				t.Errorf("ExitCode = %d, want %d", subErr.ExitCode, tt.exitCode)
			}
			if subErr.Path != "script.sh" || subErr.Command != tt.command {
				t.Errorf("unexpected error fields: %+v", subErr)
			}
			if tt.wantCtx != nil && !errors.Is(err, tt.wantCtx) {
				t.Errorf("error %v should wrap %v", err, tt.wantCtx)
			}
			if time.Since(start) > 5*time.Second {
				t.Errorf("Submit() took %v", time.Since(start))
			}
		})
	}
}

func TestSubprocessErrorMessage(t *testing.T) {
	err := &SubprocessError{Command: "qsub", Path: "a.sh", ExitCode: 2}
	if !strings.Contains(err.Error(), "exit status 2") {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestPacer(t *testing.T) {
	t.Run("zero delay", func(t *testing.T) {
		if err := (Pacer{}).Wait(context.Background()); err != nil {
			t.Errorf("Wait() = %v", err)
		}
	})

	t.Run("waits for the delay", func(t *testing.T) {
		start := time.Now()
		if err := (Pacer{Delay: 30 * time.Millisecond}).Wait(context.Background()); err != nil {
			t.Fatalf("Wait() = %v", err)
		}
		if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
			t.Errorf("Wait() returned after %v", elapsed)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		start := time.Now()
		err := (Pacer{Delay: time.Hour}).Wait(ctx)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Wait() = %v, want context.Canceled", err)
		}
		if time.Since(start) > time.Second {
			t.Errorf("Wait() ignored cancellation")
		}
	})
}
