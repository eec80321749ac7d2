package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/SpanFreight/tracking/internal/client"
)

// Config keys, also readable from TRACKCTL_<KEY> with dashes as underscores.
const (
	keyServer    = "server"
	keyCSRFToken = "csrf-token"
	keyTimeout   = "timeout"
	keyLogLevel  = "log-level"
)

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("TRACKCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:          "trackctl",
		Short:        "trackctl manages containers on a tracking admin panel",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			level, err := parseLevel(v.GetString(keyLogLevel))
			if err != nil {
				return err
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.String(keyServer, "http://127.0.0.1:8080", "admin panel base URL")
	pf.String(keyCSRFToken, "", "CSRF token (fetched from the list page when empty)")
	pf.Duration(keyTimeout, 30*time.Second, "per-request timeout")
	pf.String(keyLogLevel, "warn", "log level (debug, info, warn, error)")
	for _, name := range []string{keyServer, keyCSRFToken, keyTimeout, keyLogLevel} {
		_ = v.BindPFlag(name, pf.Lookup(name))
	}

	cmd.AddCommand(
		newListCmd(v),
		newDeleteCmd(v),
		newSetStatusCmd(v),
		newSearchCmd(v),
		newBrowseCmd(v),
	)
	return cmd
}

func newClient(v *viper.Viper) (*client.Client, error) {
	return client.New(v.GetString(keyServer),
		client.WithTimeout(v.GetDuration(keyTimeout)),
		client.WithCSRFToken(v.GetString(keyCSRFToken)),
	)
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}

func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}
