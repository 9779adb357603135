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
	"os"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"CraneSweep/internal/util"
)

// Phase is the stage a Sweep is in while processing combos.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseWriting
	PhaseSubmitting
	PhaseDelaying
	PhaseDone
)

func (p Phase) String() string {
	return [...]string{"Idle", "Writing", "Submitting", "Delaying", "Done"}[p]
}

// Result records what happened to one combo.
type Result struct {
	Combo     Combo  `json:"combo"`
	Path      string `json:"path"`
	Submitted bool   `json:"submitted"`
}

// Sweep writes, and optionally submits, one script per combo. Combos are
// processed strictly one after another.
type Sweep struct {
	Template *Template
	Layout   Layout
	Writer   *ScriptWriter

	// Nil means scripts are only written.
	Submitter Submitter
	Pacer     Pacer
	RunID     string

	phase  Phase
	logger *log.Entry
}

func NewSweep(cfg *Resolved, tmpl *Template) *Sweep {
	s := &Sweep{
		Template: tmpl,
		Layout:   cfg.Layout,
		Writer:   NewScriptWriter(cfg.OutputDir, cfg.Mode, cfg.Layout),
		Pacer:    Pacer{Delay: cfg.Submit.Delay},
		RunID:    uuid.NewString(),
	}
	if cfg.Submit.Enabled {
		s.Submitter = NewQueueSubmitter(cfg.Submit.Command, cfg.Submit.Args, cfg.Submit.Timeout)
	}
	return s
}

func (s *Sweep) Phase() Phase {
	return s.phase
}

func (s *Sweep) entry() *log.Entry {
	if s.logger == nil {
		s.logger = log.WithField("run", s.RunID)
	}
	return s.logger
}

func (s *Sweep) enter(p Phase, c Combo) {
	s.phase = p
	s.entry().WithField("combo", c.String()).Tracef("%s", p)
}

// Step fills, writes and, when a Submitter is set, submits the script for
// a single combo. It never sleeps; pacing is left to the caller.
func (s *Sweep) Step(ctx context.Context, c Combo) (Result, error) {
	result := Result{Combo: c}

	s.enter(PhaseWriting, c)
	path, err := s.Writer.Save(c, s.Template.Fill(c, s.Layout))
	if err != nil {
		return result, err
	}
	result.Path = path
	s.entry().Infof("Wrote %s", path)

	if s.Submitter == nil {
		return result, nil
	}
	s.enter(PhaseSubmitting, c)
	if err := s.Submitter.Submit(ctx, path); err != nil {
		return result, err
	}
	result.Submitted = true
	s.entry().Infof("Submitted %s", path)
	return result, nil
}

// Run processes combos in order and stops at the first error. The results
// returned with an error cover every script written so far, including one
// whose submission failed. Those scripts stay on disk.
func (s *Sweep) Run(ctx context.Context, combos []Combo) ([]Result, error) {
	s.phase = PhaseIdle
	if missing := s.Template.Missing(s.Layout); len(missing) > 0 {
		s.entry().Warnf("Template %s does not contain %v", s.Template.Path, missing)
	}
	s.entry().Infof("Processing %d combos: %s", len(combos), util.ConvertSliceToString(combos, " "))

	results := make([]Result, 0, len(combos))
	for i, c := range combos {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		if i > 0 && s.Submitter != nil {
			s.enter(PhaseDelaying, c)
			if err := s.Pacer.Wait(ctx); err != nil {
				return results, err
			}
		}
		result, err := s.Step(ctx, c)
		if err != nil {
			if result.Path != "" {
				results = append(results, result)
			}
			s.entry().WithField("combo", c.String()).Errorf("Aborting at combo %d of %d", i+1, len(combos))
			return results, err
		}
		results = append(results, result)
	}
	s.phase = PhaseDone
	return results, nil
}

// Plan returns the results a run would produce without touching the disk.
func (s *Sweep) Plan(combos []Combo) []Result {
	results := make([]Result, 0, len(combos))
	for _, c := range combos {
		results = append(results, Result{Combo: c, Path: s.Writer.PathFor(c)})
	}
	return results
}

// SelectCombos enumerates divisors of the configured core count unless
// combos were given explicitly through args or a JSON combos file.
func SelectCombos(cfg *Resolved, args []string, combosFile string) ([]Combo, error) {
	if len(args) == 0 && combosFile == "" {
		return Enumerate(cfg.CoresPerNode, cfg.Divisors, cfg.Layout), nil
	}

	combos := make([]Combo, 0, len(args))
	if combosFile != "" {
		data, err := os.ReadFile(combosFile)
		if err != nil {
			return nil, &IOError{Op: "read combos file", Path: combosFile, Err: err}
		}
		fromFile, err := ParseComboJSON(data)
		if err != nil {
			return nil, err
		}
		combos = append(combos, fromFile...)
	}
	if len(args) > 0 {
		fromArgs, err := ParseCombos(args)
		if err != nil {
			return nil, err
		}
		combos = append(combos, fromArgs...)
	}
	if len(combos) == 0 {
		return nil, &ParseError{Arg: combosFile, Reason: "no combos given"}
	}
	return combos, nil
}
