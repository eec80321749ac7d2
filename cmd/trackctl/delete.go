package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/SpanFreight/tracking/internal/bulkdelete"
	"github.com/SpanFreight/tracking/internal/client"
	"github.com/SpanFreight/tracking/internal/selection"
)

func newDeleteCmd(v *viper.Viper) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete ID [ID...]",
		Short: "Delete containers by id in one bulk request",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sel, rejected := selection.FromValues(args)
			for _, r := range rejected {
				fmt.Fprintf(cmd.ErrOrStderr(), "skipping %q: %s\n", r.Value, r.Reason)
			}
			sel.SelectAll(true)

			c, err := newClient(v)
			if err != nil {
				return err
			}
			if c.CSRFToken() == "" && sel.Count() > 0 {
				if _, err := c.FetchCSRFToken(cmd.Context()); err != nil {
					return fmt.Errorf("fetching CSRF token: %w", err)
				}
			}

			ui := &promptUI{
				in:     bufio.NewReader(cmd.InOrStdin()),
				out:    cmd.OutOrStdout(),
				yes:    yes,
				client: c,
				cmd:    cmd,
			}
			outcome := bulkdelete.New(sel, c, ui).ConfirmAndDelete(cmd.Context())
			slog.Debug("delete finished", "outcome", outcome)

			switch outcome {
			case bulkdelete.OutcomeNothingSelected:
				return errors.New("no valid container ids given")
			case bulkdelete.OutcomeNothingDeleted:
				return errors.New("nothing was deleted")
			case bulkdelete.OutcomeFailed:
				return errors.New("delete request failed")
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

// promptUI drives the orchestrator from a line-oriented terminal.
type promptUI struct {
	in     *bufio.Reader
	out    io.Writer
	yes    bool
	client *client.Client
	cmd    *cobra.Command
}

func (u *promptUI) Alert(msg string) {
	fmt.Fprintln(u.out, msg)
}

func (u *promptUI) Confirm(msg string) bool {
	if u.yes {
		return true
	}
	fmt.Fprintf(u.out, "%s [y/N] ", msg)
	line, err := u.in.ReadString('\n')
	if err != nil && line == "" {
		fmt.Fprintln(u.out)
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

func (u *promptUI) SetTrigger(label string, enabled bool) {
	if !enabled {
		fmt.Fprintln(u.out, label)
	}
}

// Reload prints the list as it is after the delete.
func (u *promptUI) Reload() {
	rows, err := u.client.List(u.cmd.Context())
	if err != nil {
		slog.Warn("refreshing list after delete", "err", err)
		return
	}
	printTable(u.out, rows)
}
