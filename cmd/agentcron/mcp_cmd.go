package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"agentcron/internal/client"
	"agentcron/internal/mcptool"
	logx "agentcron/pkg/logx"
)

var (
	mcpCwd      string
	mcpLogLevel string
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the scheduler tool over MCP stdio",
	Long: `Serves the "scheduler" MCP tool on stdin/stdout. Every action is forwarded
to the daemon at --api, which owns the timers. Logs go to stderr.`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	mcpCmd.Flags().StringVar(&mcpCwd, "cwd", "", "default working directory for created tasks (default current dir)")
	mcpCmd.Flags().StringVar(&mcpLogLevel, "log-level", "warn", "stderr log level")
}

func runMCP(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logx.NewWriter(logx.Stderr(), mcpLogLevel).With(logx.Comp("mcp"))
	tool := mcptool.New(client.NewTasks(newClient()), mcpCwd, log)
	log.Info("mcp stdio server starting", logx.String("api", apiAddr))
	return tool.NewServer(version).Run(ctx, &mcp.StdioTransport{})
}
