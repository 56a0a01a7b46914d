// Package cmd implements the gomkvmerge CLI commands.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ebmlmux/gomkvmerge/internal/engine"
	"github.com/ebmlmux/gomkvmerge/internal/muxcfg"
)

const version = "0.1.0"

// rootCmd has flag parsing disabled: the real argv grammar (@path
// expansion, per-file option accumulation) is bespoke and lives in package
// muxcfg, which runs before cobra ever inspects args (spec §1.3). cobra
// contributes the command tree and the -h/-V niceties a user expects from a
// Go CLI, the way jmylchreest-tvarr's root command does.
var rootCmd = &cobra.Command{
	Use:                "gomkvmerge [options] <file1> [<file2> ...]",
	Short:              "Merge audio, video, and subtitle tracks into a Matroska (.mkv) file",
	Version:            version,
	DisableFlagParsing: true,
	SilenceUsage:       true,
	SilenceErrors:      true,
	RunE:               runMux,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func runMux(cmd *cobra.Command, args []string) error {
	cfg, err := muxcfg.Assemble(args)
	if err != nil {
		return err
	}

	switch {
	case cfg.Help:
		return cmd.Usage()
	case cfg.Version:
		fmt.Fprintln(cmd.OutOrStdout(), version)
		return nil
	case cfg.ListTypes:
		printListTypes(cmd.OutOrStdout())
		return nil
	case cfg.ListLanguages:
		printListLanguages(cmd.OutOrStdout())
		return nil
	}

	log := newLogger(cfg.Verbosity)

	if cfg.Identify {
		return runIdentify(cmd, cfg)
	}

	result, err := engine.Run(cfg, log)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Muxed %d track(s) into %s\n", result.TracksMuxed, cfg.Output)
	for _, w := range result.Warnings {
		fmt.Fprintln(cmd.ErrOrStderr(), "warning:", w)
	}
	return nil
}

// newLogger maps -v/-q verbosity (spec §6) onto a slog level, text-handler
// logging to stderr the way jmylchreest-tvarr's initLogging does, minus the
// viper/config-file plumbing this CLI has no use for.
func newLogger(verbosity int) *slog.Logger {
	level := slog.LevelInfo
	switch {
	case verbosity >= 2:
		level = slog.LevelDebug
	case verbosity <= -1:
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
