package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change settings",
	}
	configCmd.AddCommand(newConfigShowCommand(ctx))
	configCmd.AddCommand(newConfigSetCommand(ctx))
	return configCmd
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.ensure(); err != nil {
				return err
			}
			keys, values, err := ctx.settings.Keys()
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(keys))
			for _, k := range keys {
				rows = append(rows, []string{k, fmt.Sprint(values[k])})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable([]string{"Key", "Value"}, rows, nil))
			fmt.Fprintf(out, "Settings file: %s\n", ctx.store.Path())
			return nil
		},
	}
}

func newConfigSetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change one setting and save it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.ensure(); err != nil {
				return err
			}
			settings, err := ctx.store.Load()
			if err != nil {
				return fmt.Errorf("settings file is unreadable, fix or remove %s: %w", ctx.store.Path(), err)
			}
			if err := settings.Set(args[0], args[1]); err != nil {
				return err
			}
			settings = settings.Normalize(ctx.logger)
			if err := ctx.store.Save(settings); err != nil {
				return err
			}
			ctx.settings = settings
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", args[0], args[1])
			return nil
		},
	}
}
