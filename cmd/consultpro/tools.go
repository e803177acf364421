package consultpro

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/consultpro/agents/pkg/mcp"
)

var toolsCmd = &cobra.Command{
	Use:   "tools [tool-name]",
	Short: "List MCP tools, or call one, against a running gateway",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runTools,
}

var (
	toolsEndpoint string
	toolsArgs     string
)

func init() {
	toolsCmd.Flags().StringVar(&toolsEndpoint, "endpoint", "", "MCP streamable endpoint (default: local gateway /mcp/stream)")
	toolsCmd.Flags().StringVar(&toolsArgs, "args", "{}", "tool arguments as a JSON object")
}

func runTools(cmd *cobra.Command, args []string) error {
	endpoint := toolsEndpoint
	if endpoint == "" {
		endpoint = localURL("/mcp/stream")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	client, err := mcp.Dial(ctx, mcp.ClientConfig{Endpoint: endpoint})
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	if len(args) == 0 {
		tools, err := client.Tools(ctx)
		if err != nil {
			return err
		}
		for _, t := range tools {
			fmt.Printf("%-24s %s\n", t.Name, t.Description)
		}
		return nil
	}

	var callArgs map[string]any
	if err := json.Unmarshal([]byte(toolsArgs), &callArgs); err != nil {
		return fmt.Errorf("invalid --args: %w", err)
	}
	text, err := client.Call(ctx, args[0], callArgs)
	if err != nil {
		return err
	}
	fmt.Println(text)
	return nil
}
