package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"dynreslice/pkg/config"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the preferences file",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a preferences file with default values",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.CreateDefaultFile(a.configPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote default preferences to %s\n", a.configPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the preferences in effect",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := yaml.Marshal(a.prefs)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	})

	return cmd
}
