package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/indexgen/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/indexgen/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/indexgen/pkg/logger"
)

const usageLine = "indexgen <n> <input-path> <output-path>"

// app carries flag values and the loaded configuration between the root
// command and its subcommands.
type app struct {
	configPath string
	logLevel   string
	progress   bool

	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:   usageLine,
		Short: "Build a word to line-number index of a text file with parallel workers",
		Long: `indexgen reads a text file, lowercases it, splits every line on whitespace
and writes one line per distinct word, in ascending byte order:

  word line1, line2, ..., lineK

Words are partitioned by first letter across n workers (1 to 5). Each worker
sorts the words it owns and the results are concatenated in worker order.`,
		Args:              validateRootArgs,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, _ := strconv.Atoi(args[0])
			return a.runIndex(cmd, n, args[1], args[2])
		},
	}

	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "path to a YAML config file")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override the log level (debug, info, warn, error)")
	cmd.Flags().BoolVar(&a.progress, "progress", false, "show input progress on stderr")

	cmd.AddCommand(newLookupCmd())
	cmd.AddCommand(newCheckCmd())
	return cmd
}

// setup loads the configuration and installs the logger. Logs go to the
// command's stderr so stdout only carries command output.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		if !errors.Is(err, apperrors.ErrInvalidInput) {
			err = fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
		}
		return err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if err := logger.SetupWriter(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	a.cfg = cfg
	return nil
}

func usageError(sentinel error, format string, args ...any) error {
	return apperrors.Newf(sentinel, apperrors.ExitUsage,
		"%s\nusage: %s", fmt.Sprintf(format, args...), usageLine)
}

func validateRootArgs(_ *cobra.Command, args []string) error {
	if len(args) != 3 {
		return usageError(apperrors.ErrInvalidInput, "expected 3 arguments, got %d", len(args))
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || config.ValidateWorkers(n) != nil {
		return usageError(apperrors.ErrInvalidWorkerCount,
			"%q is not an integer between %d and %d", args[0], config.MinWorkers, config.MaxWorkers)
	}
	return nil
}

// exactArgs is cobra.ExactArgs reported as a usage error.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return apperrors.Newf(apperrors.ErrInvalidInput, apperrors.ExitUsage,
				"%v\nusage: %s", err, cmd.UseLine())
		}
		return nil
	}
}
