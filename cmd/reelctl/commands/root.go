// Package commands holds the reelctl cobra commands.
package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kiranshivaraju/reelscraper/internal/client"
)

const pollInterval = 500 * time.Millisecond

// remote holds the flags shared by the commands that talk to a server.
type remote struct {
	serverURL string
	apiKey    string
}

func (r *remote) client() *client.Client {
	return client.New(r.serverURL, r.apiKey)
}

// NewRootCmd returns the reelctl command tree.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "reelctl",
		Short:         "reelctl extracts reel metadata from user and hashtag listings.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	r := &remote{}
	rootCmd.PersistentFlags().StringVar(&r.serverURL, "server", envOr("REELSCRAPER_URL", "http://localhost:8080"),
		"base URL of the reelscraper server")
	rootCmd.PersistentFlags().StringVar(&r.apiKey, "api-key", os.Getenv("REELSCRAPER_API_KEY"),
		"API key for the reelscraper server")

	rootCmd.AddCommand(
		newRunCmd(),
		newLoginCmd(),
		newSubmitCmd(r),
		newStatusCmd(r),
		newDownloadCmd(r),
		newCancelCmd(r),
	)
	return rootCmd
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
