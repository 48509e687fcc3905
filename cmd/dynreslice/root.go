package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"dynreslice/internal/logging"
	"dynreslice/pkg/config"
)

// app carries what the root command sets up for its subcommands
type app struct {
	configPath string
	logLevel   string
	prefs      *config.Preferences
	closeLog   func()
}

func newRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "dynreslice",
		Short: "Orthogonal reslices of image stacks along lines and curves",
		Long: `dynreslice extracts cross-sections through a stack of images along a
straight line, a polyline, a freehand curve or a rectangle.

Straight lines can be swept sideways to build a resliced stack. The follow
command replays a script of path edits and republishes the reslice after
every edit, the way an interactive viewer would.

Defaults are read from a YAML preferences file (--config, or the
DYNRESLICE_CONFIG environment variable, which may also be set in .env).`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()

			if !cmd.Flags().Changed("config") {
				if env := os.Getenv("DYNRESLICE_CONFIG"); env != "" {
					a.configPath = env
				}
			}

			prefs, err := config.LoadPreferences(a.configPath)
			if err != nil {
				return err
			}
			a.prefs = prefs

			level := prefs.LogLevel()
			if a.logLevel != "" {
				if err := level.UnmarshalText([]byte(a.logLevel)); err != nil {
					return fmt.Errorf("invalid log level %q: %w", a.logLevel, err)
				}
			}
			closeLog, err := logging.Init(logging.Options{
				Level:      level,
				Dir:        prefs.Logging.Dir,
				MaxSizeMB:  prefs.Logging.MaxSizeMB,
				MaxBackups: prefs.Logging.MaxBackups,
			})
			if err != nil {
				return fmt.Errorf("failed to set up logging: %w", err)
			}
			a.closeLog = closeLog
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.closeLog != nil {
				a.closeLog()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&a.configPath, "config", "dynreslice.yaml", "Preferences file")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Console log level (debug, info, warn, error)")

	cmd.AddCommand(newResliceCmd(a))
	cmd.AddCommand(newEstimateCmd(a))
	cmd.AddCommand(newFollowCmd(a))
	cmd.AddCommand(newConfigCmd(a))

	return cmd
}

// savePreferences persists the current preferences
func (a *app) savePreferences() error {
	if err := config.SavePreferences(a.prefs, a.configPath); err != nil {
		return err
	}
	logging.Logger().Debug("Preferences saved", "path", a.configPath)
	return nil
}
