package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ehrlich-b/chatsync/internal/config"
)

var (
	configFlag     string
	apiURLFlag     string
	websiteIDFlag  string
	logLevelFlag   string
	retryAfterFlag time.Duration
)

func main() {
	root := &cobra.Command{
		Use:           "chatsync",
		Short:         "chatsync: terminal client for the support chat",
		Long:          "Connects to a chat backend over Socket.IO, restores the saved session and keeps it in sync.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configFlag, "config", "", "config file (default: ~/.chatsync/config.yaml)")
	root.PersistentFlags().StringVar(&apiURLFlag, "api-url", "", "backend base URL")
	root.PersistentFlags().StringVar(&websiteIDFlag, "website-id", "", "website id the session is scoped to")
	root.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "trace, debug, info, warn, error or off")
	root.PersistentFlags().DurationVar(&retryAfterFlag, "retry-after", 0, "reconnect this long after the connection is given up (0 disables)")

	root.AddCommand(
		chatCmd(),
		statusCmd(),
		logoutCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// loadConfig layers the persistent flags over file and environment.
func loadConfig() (*config.Config, error) {
	path := configFlag
	if path == "" {
		path = config.DefaultConfigFile()
	}
	return config.Load(path, func(c *config.Config) {
		if apiURLFlag != "" {
			c.APIURL = apiURLFlag
		}
		if websiteIDFlag != "" {
			c.WebsiteID = websiteIDFlag
		}
		if logLevelFlag != "" {
			c.Logging.Level = logLevelFlag
		}
	})
}
