package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/SpanFreight/tracking/internal/client"
)

func newListCmd(v *viper.Viper) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List containers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := newClient(v)
			if err != nil {
				return err
			}
			rows, err := c.List(cmd.Context())
			if err != nil {
				return fmt.Errorf("listing containers: %w", err)
			}

			switch output {
			case "json":
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(rows)
			case "table":
				printTable(cmd.OutOrStdout(), rows)
				return nil
			default:
				return fmt.Errorf("unknown output format %q (want table or json)", output)
			}
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "table", "output format: table or json")
	return cmd
}

func printTable(w io.Writer, rows []client.ContainerSummary) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "No containers found.")
		return
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "CONTAINER #", "TYPE", "STATUS", "LOCATION", "LAST UPDATED")
	for _, r := range rows {
		t.Row(strconv.FormatInt(r.ID, 10), r.Number, r.Type, orDash(r.CurrentStatus), orDash(r.Location), orDash(r.LastUpdated))
	}
	fmt.Fprintln(w, t.String())
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
