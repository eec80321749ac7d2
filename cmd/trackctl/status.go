package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/SpanFreight/tracking/internal/client"
	"github.com/SpanFreight/tracking/internal/selection"
)

func newSetStatusCmd(v *viper.Viper) *cobra.Command {
	var (
		update client.StatusUpdate
		date   string
	)

	cmd := &cobra.Command{
		Use:   "set-status ID [ID...]",
		Short: "Append the same status entry to several containers",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if date != "" {
				d, err := time.Parse(time.DateOnly, date)
				if err != nil {
					return fmt.Errorf("invalid --date %q (want YYYY-MM-DD)", date)
				}
				update.Date = &d
			}

			items, rejected := selection.ParseValues(args)
			for _, r := range rejected {
				fmt.Fprintf(cmd.ErrOrStderr(), "skipping %q: %s\n", r.Value, r.Reason)
			}
			if len(items) == 0 {
				return errors.New("no valid container ids given")
			}
			ids := make([]int64, len(items))
			for i, it := range items {
				ids[i] = it.ID
			}

			c, err := newClient(v)
			if err != nil {
				return err
			}
			if c.CSRFToken() == "" {
				if _, err := c.FetchCSRFToken(cmd.Context()); err != nil {
					return fmt.Errorf("fetching CSRF token: %w", err)
				}
			}

			res, err := c.BulkStatusUpdate(cmd.Context(), ids, update)
			if err != nil {
				return fmt.Errorf("updating status: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Message)
			for _, f := range res.Failed {
				fmt.Fprintf(cmd.OutOrStdout(), "  %d: %s\n", f.ID, f.Reason)
			}
			if res.SuccessCount == 0 {
				return errors.New("no container was updated")
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&update.Status, "status", "", "new status: loaded, discharged, emptied or in_yard")
	f.StringVar(&update.Location, "location", "", "where the status was recorded")
	f.StringVar(&date, "date", "", "operation date as YYYY-MM-DD (default today)")
	f.StringVar(&update.Notes, "notes", "", "free-form notes")
	_ = cmd.MarkFlagRequired("status")
	_ = cmd.MarkFlagRequired("location")
	return cmd
}
