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
	"path/filepath"

	"CraneSweep/internal/util"
)

// ScriptName returns the deterministic file name of the script for c.
func ScriptName(c Combo, layout Layout) string {
	if layout == LayoutRanks {
		return fmt.Sprintf("run_%dranks_%dthreads.sh", c.Ranks, c.Threads)
	}
	return fmt.Sprintf("run_%dnodes_%dranks_%dthreads.sh", c.Nodes, c.Ranks, c.Threads)
}

// ScriptWriter materializes filled templates as executable files in Dir.
type ScriptWriter struct {
	Dir    string
	Mode   os.FileMode
	Layout Layout
}

func NewScriptWriter(dir string, mode os.FileMode, layout Layout) *ScriptWriter {
	return &ScriptWriter{Dir: dir, Mode: mode, Layout: layout}
}

func (w *ScriptWriter) PathFor(c Combo) string {
	return filepath.Join(w.Dir, ScriptName(c, w.Layout))
}

// Save creates or truncates the script for c, writes content verbatim and
// then sets the configured mode. The file is complete and executable once
// Save returns nil.
func (w *ScriptWriter) Save(c Combo, content string) (string, error) {
	path := w.PathFor(c)
	if err := util.CheckDirWritable(w.Dir); err != nil {
		return "", &IOError{Op: "check output directory", Path: w.Dir, Err: err}
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, w.Mode)
	if err != nil {
		return "", &IOError{Op: "create script", Path: path, Err: err}
	}
	if _, err := file.WriteString(content); err != nil {
		file.Close()
		return "", &IOError{Op: "write script", Path: path, Err: err}
	}
	if err := file.Close(); err != nil {
		return "", &IOError{Op: "close script", Path: path, Err: err}
	}
	// OpenFile honours the umask and leaves an existing file's mode alone.
	if err := os.Chmod(path, w.Mode); err != nil {
		return "", &IOError{Op: "set permissions on", Path: path, Err: err}
	}
	return path, nil
}
