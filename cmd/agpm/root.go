// Package main implements the agpm command-line driver: thin commands that
// load a Manifest/Lockfile and call into internal/resolver and
// internal/installer, mirroring the teacher's cmd/tomei/root.go command
// registration style.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agpm-dev/agpm/internal/agpmerrors"
)

// logLevelFlag implements pflag.Value for slog.Level, carried over from the
// teacher's own --log-level flag.
type logLevelFlag struct {
	level slog.Level
}

func (f *logLevelFlag) String() string { return strings.ToLower(f.level.String()) }
func (f *logLevelFlag) Type() string   { return "string" }
func (f *logLevelFlag) Set(s string) error {
	switch strings.ToLower(s) {
	case "debug":
		f.level = slog.LevelDebug
	case "info":
		f.level = slog.LevelInfo
	case "warn":
		f.level = slog.LevelWarn
	case "error":
		f.level = slog.LevelError
	default:
		return fmt.Errorf("unknown log level %q (valid: debug, info, warn, error)", s)
	}
	return nil
}

var (
	globalLogLevel = &logLevelFlag{level: slog.LevelWarn}
	noColor        bool
	jsonErrors     bool
	projectDir     string
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "agpm",
		Short:         "AGPM manages AI-assistant resources pinned to Git sources",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			slog.SetLogLoggerLevel(globalLogLevel.level)
		},
	}

	root.PersistentFlags().Var(globalLogLevel, "log-level", "log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored error output")
	root.PersistentFlags().BoolVar(&jsonErrors, "json-errors", false, "emit errors as JSON instead of formatted text")
	root.PersistentFlags().StringVarP(&projectDir, "dir", "C", ".", "project directory containing agpm.toml")

	root.AddCommand(
		newResolveCmd(),
		newInstallCmd(),
		newUpdateCmd(),
		newListCmd(),
		newTreeCmd(),
		newValidateCmd(),
		newVersionCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		printErr(err)
		os.Exit(1)
	}
}

// printErr renders err using the agpmerrors.Formatter (CLI text, or JSON
// when --json-errors is set), the outermost driver's job per spec.md §7:
// convert any error into a user-friendly form with a suggestion.
func printErr(err error) {
	f := agpmerrors.NewFormatter(os.Stderr, noColor)
	if jsonErrors {
		data, jerr := f.FormatJSON(err)
		if jerr == nil {
			fmt.Fprintln(os.Stderr, string(data))
			return
		}
	}
	fmt.Fprint(os.Stderr, f.Format(err))
}
