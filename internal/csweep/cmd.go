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
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"CraneSweep/internal/util"
)

var (
	FlagConfigFilePath string
	FlagTemplate       string
	FlagOutputDir      string
	FlagCoresPerNode   int
	FlagDetectCores    bool
	FlagLayout         string
	FlagCombosFile     string

	FlagSubmit   bool
	FlagQueueCmd string
	FlagQueueArg []string
	FlagDelay    time.Duration
	FlagTimeout  time.Duration

	FlagLogLevel    string
	FlagLogFile     string
	FlagJson        bool
	FlagDryRun      bool
	FlagPrintConfig bool

	RootCmd = &cobra.Command{
		Use:   "csweep [flags] [nodes,ranks,threads ...]",
		Short: "Generate and submit job scripts for every rank/thread split of a node",
		Long: `Fill a job script template once per (nodes, ranks, threads) combo and write
each result as run_<nodes>nodes_<ranks>ranks_<threads>threads.sh.

Without arguments every divisor d of the per-node core count yields one combo
on a single node with d ranks and cores/d threads. Arguments of the form
"nodes,ranks,threads" select the combos explicitly.

The placeholders @nodes, @ranks and @threads in the template are replaced
with the combo values.`,
		Version: util.Version(),
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			util.InitLogger(FlagLogLevel, FlagLogFile)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			required := cmd.Flags().Changed("config")
			config, err := LoadConfig(FlagConfigFilePath, required, cmd.Flags())
			if err != nil {
				return util.WrapCraneErr(util.ErrorConfig, "Failed to load configuration", err)
			}
			// Log flags are already merged into config.Log key by key.
			util.InitLogger(config.Log.Level, config.Log.File)

			if FlagPrintConfig {
				out, err := config.Dump()
				if err != nil {
					return util.WrapCraneErr(util.ErrorConfig, "Failed to render configuration", err)
				}
				fmt.Print(out)
				return nil
			}

			resolved, err := config.Resolve()
			if err != nil {
				return util.WrapCraneErr(util.ErrorConfig, "Invalid configuration", err)
			}
			PrintConfig(resolved)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return Execute(ctx, resolved, args)
		},
	}
)

// Execute runs one sweep and prints its summary. Errors are returned as
// util.CraneError with the exit code of their kind.
func Execute(ctx context.Context, cfg *Resolved, args []string) error {
	combos, err := SelectCombos(cfg, args, FlagCombosFile)
	if err != nil {
		return ToCraneError(err)
	}

	tmpl, err := LoadTemplate(cfg.Template)
	if err != nil {
		return ToCraneError(err)
	}
	sweep := NewSweep(cfg, tmpl)

	if FlagDryRun {
		fmt.Print(FormatPlan(cfg.OutputDir, sweep.Plan(combos), cfg.Layout, cfg.Submit.Enabled))
		return nil
	}

	results, runErr := sweep.Run(ctx, combos)
	if FlagJson {
		out, err := FormatResultsJSON(sweep.RunID, results, runErr)
		if err != nil {
			log.Errorf("Failed to format results: %v", err)
		} else {
			fmt.Println(out)
		}
	} else if len(results) > 0 {
		PrintResults(os.Stdout, results, cfg.Layout)
	}
	if runErr != nil {
		return ToCraneError(runErr)
	}
	return nil
}

// ToCraneError maps the sweep error kinds to command exit codes.
func ToCraneError(err error) error {
	var (
		parseErr *ParseError
		ioErr    *IOError
		subErr   *SubprocessError
	)
	switch {
	case errors.As(err, &parseErr):
		return util.WrapCraneErr(util.ErrorCmdArg, "Invalid argument", err)
	case errors.As(err, &ioErr):
		return util.WrapCraneErr(util.ErrorIO, "I/O failure", err)
	case errors.As(err, &subErr):
		return util.WrapCraneErr(util.ErrorSubprocess, "Submission failed", err)
	case errors.Is(err, context.Canceled):
		return util.WrapCraneErr(util.ErrorExecuteFailed, "Interrupted", err)
	}
	return util.WrapCraneErr(util.ErrorExecuteFailed, "", err)
}

func ParseCmdArgs() {
	util.RunEWrapperForLeafCommand(RootCmd)
	util.RunAndHandleExit(RootCmd)
}

func init() {
	RootCmd.SetVersionTemplate(util.VersionTemplate())
	RootCmd.PersistentFlags().StringVarP(&FlagConfigFilePath, "config", "C",
		util.DefaultConfigPath, "Path to configuration file")
	RootCmd.Flags().StringVarP(&FlagTemplate, "template", "T", "template", "Path to the job script template")
	RootCmd.Flags().StringVarP(&FlagOutputDir, "output-dir", "o", ".", "Directory the generated scripts are written to")
	RootCmd.Flags().IntVarP(&FlagCoresPerNode, "cores-per-node", "c", 24, "Number of cores on one compute node")
	RootCmd.Flags().BoolVar(&FlagDetectCores, "detect-cores", false, "Use the physical core count of this host as cores per node")
	RootCmd.Flags().StringVar(&FlagLayout, "layout", string(LayoutNodes), "Placeholder and file name layout, supported values: nodes, ranks")
	RootCmd.Flags().StringVarP(&FlagCombosFile, "combos-file", "f", "", "JSON file with an array of combos")

	RootCmd.Flags().BoolVarP(&FlagSubmit, "submit", "s", false, "Submit every generated script to the queue")
	RootCmd.Flags().StringVar(&FlagQueueCmd, "queue-cmd", "qsub", "Queue submission command")
	RootCmd.Flags().StringArrayVar(&FlagQueueArg, "queue-arg", nil, "Extra argument passed to the queue command after the script path (repeatable)")
	RootCmd.Flags().DurationVar(&FlagDelay, "delay", time.Second, "Pause between successive submissions")
	RootCmd.Flags().DurationVar(&FlagTimeout, "timeout", 0, "Time limit for one queue command, 0 means no limit")

	RootCmd.PersistentFlags().StringVar(&FlagLogLevel, "log-level", util.DefaultLogLevel, "Log level: trace, debug, info, warn, error")
	RootCmd.PersistentFlags().StringVar(&FlagLogFile, "log-file", "", "Also write logs to this file")
	RootCmd.Flags().BoolVar(&FlagJson, "json", false, "Output in JSON format")
	RootCmd.Flags().BoolVar(&FlagDryRun, "dry-run", false, "Print the scripts that would be written without writing or submitting")
	RootCmd.Flags().BoolVar(&FlagPrintConfig, "print-config", false, "Print the effective configuration and exit")
}
