package main

import (
	"github.com/metalagman/socratic/internal/mcpserver"
	"github.com/spf13/cobra"
)

func serveCmd(opts *rootOptions) *cobra.Command {
	var transport, addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the socratic tools over MCP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, closeFn, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer closeFn()

			srv := mcpserver.New(&mcpserver.Tools{Counselor: a.Counselor, Pipeline: a.Pipeline})
			return mcpserver.Serve(cmd.Context(), srv, transport, addr)
		},
	}
	cmd.Flags().StringVar(&transport, "transport", mcpserver.TransportStdio, "stdio or http")
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8765", "listen address for the http transport")
	return cmd
}
