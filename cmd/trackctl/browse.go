package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/SpanFreight/tracking/internal/tui"
)

func newBrowseCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "browse",
		Short: "Browse and bulk-delete containers interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !isTerminal(os.Stdin) || !isTerminal(os.Stdout) {
				return errors.New("browse needs an interactive terminal")
			}
			c, err := newClient(v)
			if err != nil {
				return err
			}
			if c.CSRFToken() == "" {
				if _, err := c.FetchCSRFToken(cmd.Context()); err != nil {
					return err
				}
			}
			return tui.Run(cmd.Context(), c, c)
		},
	}
}
