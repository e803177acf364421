package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Client talks to a running service over the streamable HTTP endpoint.
type Client struct {
	session *mcpsdk.ClientSession
	logger  *slog.Logger
}

type ClientConfig struct {
	Endpoint   string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

func Dial(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}

	client := mcpsdk.NewClient(&mcpsdk.Implementation{
		Name:    "consultpro-cli",
		Version: ServerVersion,
	}, nil)

	transport := &mcpsdk.StreamableClientTransport{
		Endpoint:   cfg.Endpoint,
		HTTPClient: cfg.HTTPClient,
		MaxRetries: -1,
	}
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("mcp: connecting to %s: %w", cfg.Endpoint, err)
	}

	cfg.Logger.Debug("mcp client connected", slog.String("endpoint", cfg.Endpoint))
	return &Client{session: session, logger: cfg.Logger}, nil
}

func (c *Client) Tools(ctx context.Context) ([]*mcpsdk.Tool, error) {
	result, err := c.session.ListTools(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("mcp: listing tools: %w", err)
	}
	return result.Tools, nil
}

// Call invokes a tool and returns its text content.
func (c *Client) Call(ctx context.Context, name string, args map[string]any) (string, error) {
	if args == nil {
		args = map[string]any{}
	}
	result, err := c.session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		return "", fmt.Errorf("mcp tool %s: call failed: %w", name, err)
	}

	var parts []string
	for _, content := range result.Content {
		if tc, ok := content.(*mcpsdk.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}

	text := strings.Join(parts, "\n")
	if result.IsError {
		return "", fmt.Errorf("mcp tool %s: %s", name, text)
	}
	return text, nil
}

func (c *Client) Close() error {
	return c.session.Close()
}
