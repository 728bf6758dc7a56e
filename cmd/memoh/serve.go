package main

import (
	"context"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	serverhttp "github.com/chiyuki0325/Memoh/internal/delivery/server/http"
	"github.com/chiyuki0325/Memoh/internal/shared/logging"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	var addr string
	var debug bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the agent over HTTP, SSE and WebSocket",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts, addr, debug)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	cmd.Flags().BoolVar(&debug, "debug", false, "gin debug mode")
	return cmd
}

func runServe(ctx context.Context, opts *rootOptions, addr string, debug bool) error {
	c, err := buildContainer(opts.configPath)
	if err != nil {
		return err
	}
	defer func() { _ = c.Cleanup() }()

	if addr == "" {
		addr = c.Config.Server.Addr
	}
	c.Obs.Metrics.StartServer(c.Config.Metrics.Addr, logging.NewComponentLogger("Metrics"))

	srv := serverhttp.NewServer(c.Agent, c.History, c.Obs, serverhttp.Config{
		Addr:           addr,
		AllowedOrigins: c.Config.Server.AllowedOrigins,
		Debug:          debug,
	}, logging.NewComponentLogger("HTTP"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		c.Logger.Info("shutting down")
		return srv.Shutdown(context.Background())
	})
	return g.Wait()
}
