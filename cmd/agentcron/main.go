package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"agentcron/internal/api"
	"agentcron/internal/client"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "agentcron",
	Short: "agentcron - scheduled agent prompts",
	Long: `agentcron runs saved prompts against a working directory on cron schedules.
Run "agentcron serve" for the daemon; the other commands talk to it over HTTP.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	apiAddr  string
	apiToken string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&apiAddr, "api", "http://"+api.DefaultAddr, "API server address")
	rootCmd.PersistentFlags().StringVar(&apiToken, "token", os.Getenv("AGENTCRON_TOKEN"), "API bearer token (default $AGENTCRON_TOKEN)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(tasksCmd)
	rootCmd.AddCommand(mcpCmd)
}

func newClient() *client.Client { return client.New(apiAddr, apiToken) }

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errStyle.Render("error:"), err)
		os.Exit(1)
	}
}
