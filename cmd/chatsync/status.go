package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/ehrlich-b/chatsync/internal/logger"
	"github.com/ehrlich-b/chatsync/internal/sessionstore"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the saved session without connecting",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log := logger.Init(cfg.Logging.Level, cfg.Logging.File)
			keys := sessionstore.KeysFor(cfg.KeyPrefix, cfg.WebsiteID)
			b, err := sessionstore.OpenBackend(cfg.Storage, keys)
			if err != nil {
				return errors.Wrap(err, "open session storage")
			}
			store := sessionstore.New(b, keys, sessionstore.WithLogger(logger.Component(log, "sessionstore")))
			defer store.Close()

			token, userID := store.Credentials()
			_, verdict := store.PeekSession()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "website:      %s\n", cfg.WebsiteID)
			fmt.Fprintf(out, "storage:      %s %s\n", cfg.Storage.Backend, cfg.Storage.Path)
			fmt.Fprintf(out, "logged out:   %t\n", store.LoggedOut())
			fmt.Fprintf(out, "user id:      %s\n", orNone(userID))
			fmt.Fprintf(out, "token:        %s\n", maskToken(token))
			fmt.Fprintf(out, "restore:      %s\n", verdict)
			fmt.Fprintf(out, "support mode: %s (stored %q)\n", store.LoadSupportMode(), store.RawSupportMode())
			if store.Degraded() {
				fmt.Fprintln(out, "warning: storage backend failed, values above may be incomplete")
			}
			return nil
		},
	}
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

// maskToken keeps the first and last four characters.
func maskToken(t string) string {
	if t == "" {
		return "(none)"
	}
	if len(t) <= 8 {
		return "****"
	}
	return t[:4] + "..." + t[len(t)-4:]
}
