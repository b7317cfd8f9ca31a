package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/go-dcunet/internal/enhance"
	"github.com/example/go-dcunet/internal/server"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the enhancement HTTP server",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			svc, err := enhance.NewService(cfg)
			if err != nil {
				return err
			}
			defer svc.Close()

			srv := server.New(cfg, svc).
				WithShutdownTimeout(time.Duration(cfg.Server.ShutdownTimeout) * time.Second)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return srv.Start(ctx)
		},
	}
}
