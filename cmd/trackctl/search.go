package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newSearchCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "search PREFIX",
		Short: "Find containers whose number starts with PREFIX",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(v)
			if err != nil {
				return err
			}
			rows, err := c.Search(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("searching containers: %w", err)
			}
			printTable(cmd.OutOrStdout(), rows)
			return nil
		},
	}
}
