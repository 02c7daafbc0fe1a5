// Package commands implements the exportsync subcommands.
package commands

import (
	"fmt"
	"io"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/teranos/exportsync/am"
	"github.com/teranos/exportsync/errors"
	"github.com/teranos/exportsync/logger"
)

// configKeyAnnotation marks a flag as an override for a dotted config key.
const configKeyAnnotation = "exportsync/config-key"

// BindConfigFlag makes flag override the config key when it is set on the command line.
func BindConfigFlag(flags *pflag.FlagSet, flag, key string) {
	if err := flags.SetAnnotation(flag, configKeyAnnotation, []string{key}); err != nil {
		panic(fmt.Sprintf("commands: %v", err))
	}
}

// Prepare runs before every command: it binds annotated flags onto the
// config and initialises the global logger.
func Prepare(cmd *cobra.Command, args []string) error {
	v := am.GetViper()
	if err := bindConfigFlags(v, cmd.Flags()); err != nil {
		return err
	}
	if err := bindConfigFlags(v, cmd.InheritedFlags()); err != nil {
		return err
	}

	verbosity, _ := cmd.Flags().GetCount("verbose")
	if err := logger.Initialize(v.GetBool("log.json"), verbosity); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Logger.Debugw("Logger initialized", "command", cmd.CommandPath(), "level", logger.LevelName(verbosity))
	return nil
}

type flagBinder interface {
	BindPFlag(key string, flag *pflag.Flag) error
}

func bindConfigFlags(v flagBinder, flags *pflag.FlagSet) error {
	var err error
	flags.VisitAll(func(f *pflag.Flag) {
		keys := f.Annotations[configKeyAnnotation]
		if err != nil || len(keys) == 0 {
			return
		}
		err = v.BindPFlag(keys[0], f)
	})
	return errors.Wrap(err, "bind flags")
}

// ReportError prints err with its hints for the operator.
func ReportError(w io.Writer, err error) {
	fmt.Fprint(w, pterm.Error.Sprintln(err.Error()))
	for _, hint := range errors.GetAllHints(err) {
		fmt.Fprint(w, pterm.Info.Sprintln(hint))
	}
}
