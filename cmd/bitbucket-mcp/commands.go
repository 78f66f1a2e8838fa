package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"bitbucket-mcp/internal/server"
	"bitbucket-mcp/internal/tools"
)

var flagDebug bool

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "bitbucket-mcp",
		Short: "MCP server for Bitbucket Server pull requests",
		Long: `bitbucket-mcp exposes Bitbucket Server projects, repositories and pull
requests as MCP tools. Without a subcommand it serves JSON-RPC on stdio.

Configuration is read from the environment:
  BITBUCKET_URL              server URL (required)
  BITBUCKET_TOKEN            personal access token, or
  BITBUCKET_USERNAME/PASSWORD basic auth credentials
  BITBUCKET_DEFAULT_PROJECT  project key used when a call omits one`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runStdio,
	}
	root.PersistentFlags().BoolVarP(&flagDebug, "debug", "d", false, "Enable debug logging")

	root.AddCommand(
		newStdioCmd(),
		newHTTPCmd(),
		newToolsCmd(),
		newVersionCmd(),
	)
	return root
}

func newStdioCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stdio",
		Short: "Serve MCP over stdin/stdout (default)",
		Args:  cobra.NoArgs,
		RunE:  runStdio,
	}
}

func runStdio(cmd *cobra.Command, _ []string) error {
	d, logger, err := newDispatcher()
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()
	return server.NewStdio(d, cmd.InOrStdin(), cmd.OutOrStdout(), logger).Serve(ctx)
}

func newHTTPCmd() *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "http",
		Short: "Serve the tools over HTTP (/mcp/tools, /mcp/call)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var cfg server.Config
			if err := env.Parse(&cfg); err != nil {
				return fmt.Errorf("parse environment: %w", err)
			}
			if port != "" {
				cfg.Port = port
			}
			d, logger, err := newDispatcher()
			if err != nil {
				return err
			}
			if cfg.Token == "" {
				logger.Warn("MCP_TOKEN not set; endpoints will be open. Set MCP_TOKEN to secure.")
			}

			srv := server.New(cfg, d, logger)
			logger.Info("starting MCP HTTP server", "addr", srv.Addr(), "tls", srv.TLS())
			ctx, stop := signalContext()
			defer stop()
			if err := srv.ListenAndServe(ctx); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			logger.Info("MCP HTTP server stopped")
			return nil
		},
	}
	cmd.Flags().StringVarP(&port, "port", "p", "", "Listen port (overrides PORT)")
	return cmd
}

func newToolsCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Print the tool catalogue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return writeTools(cmd.OutOrStdout(), format)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "yaml", "Output format: yaml or json")
	return cmd
}

func writeTools(w io.Writer, format string) error {
	list := server.ToolsList{Tools: tools.ListTools()}
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(list); err != nil {
			return err
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(list)
	default:
		return fmt.Errorf("unknown format %q (want yaml or json)", format)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (MCP %s)\n", server.ServerName, server.ServerVersion, server.ProtocolVersion)
		},
	}
}
