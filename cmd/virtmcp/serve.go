package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cochaviz/virtmcp/internal/config"
	"github.com/cochaviz/virtmcp/internal/mcpserver"
)

func newServeCommand(c *cli) *cobra.Command {
	var (
		transport string
		host      string
		port      int
		toolMode  string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the tools over MCP (stdio, streamable HTTP or SSE)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := c.cfg
			if cmd.Flags().Changed("transport") {
				cfg.Transport = strings.ToLower(transport)
			}
			if cmd.Flags().Changed("host") {
				cfg.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			if cmd.Flags().Changed("tool-mode") {
				cfg.ToolMode = strings.ToLower(toolMode)
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger := c.commandLogger("serve")
			b, err := openBackends(cfg, logger)
			if err != nil {
				return err
			}
			defer b.Close()

			server := mcpserver.New(b.tools, mcpserver.Options{
				AllTools: cfg.AllTools(),
				Recorder: b.store,
				Logger:   logger,
			})
			logger.Info("starting MCP server", "transport", cfg.Transport, "tool_mode", cfg.ToolMode, "tools", len(server.ToolNames()))
			return server.Run(cmd.Context(), mcpserver.ListenOptions{
				Transport: cfg.Transport,
				Addr:      cfg.Addr(),
				APIKey:    cfg.APIKey,
			})
		},
	}

	cmd.Flags().StringVar(&transport, "transport", config.TransportStdio, "MCP transport: stdio, http or sse")
	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Listen host for the HTTP transports")
	cmd.Flags().IntVar(&port, "port", 8000, "Listen port for the HTTP transports")
	cmd.Flags().StringVar(&toolMode, "tool-mode", config.ToolModeProduction, "production (portmanteau tools only) or all (adds one tool per action)")
	return cmd
}

func newCallCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "call <tool> [json-arguments]",
		Args:  cobra.RangeArgs(1, 2),
		Short: "Run one tool in-process and print the result document",
		Example: `  virtmcp call vm_management '{"action": "list"}'
  virtmcp call start_vm '{"vm_name": "analysis-vm"}'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := json.RawMessage(`{}`)
			if len(args) == 2 {
				if !json.Valid([]byte(args[1])) {
					return fmt.Errorf("arguments must be a JSON object")
				}
				raw = json.RawMessage(args[1])
			}

			logger := c.commandLogger("call")
			b, err := openBackends(c.cfg, logger)
			if err != nil {
				return err
			}
			defer b.Close()

			server := mcpserver.New(b.tools, mcpserver.Options{AllTools: true, Recorder: b.store, Logger: logger})
			res := server.Call(cmd.Context(), args[0], raw)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(res); err != nil {
				return err
			}
			if !res.Success {
				return fmt.Errorf("%s failed: %s", args[0], res.ErrorCode)
			}
			return nil
		},
	}
}
