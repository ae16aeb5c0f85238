package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/matiasleandrokruk/moviegpt/internal/api"
	"github.com/matiasleandrokruk/moviegpt/internal/domain/audit"
	"github.com/matiasleandrokruk/moviegpt/internal/server"
	pkgauth "github.com/matiasleandrokruk/moviegpt/pkg/auth"
)

func newServeCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cmd, port)
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides HTTP_PORT)")
	return cmd
}

func serve(ctx context.Context, cmd *cobra.Command, port int) error {
	a, err := newApp(ctx, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.close()

	deps := api.Deps{Chat: a.chat, Metadata: a.omdb, Audit: a.audit, Log: a.log}
	if a.cfg.AuthEnabled() {
		if deps.Issuer, err = pkgauth.NewIssuer(a.cfg.JWTSecret, a.cfg.JWTExpiry); err != nil {
			return err
		}
		deps.ClientSecretHash = a.cfg.AuthClientSecretHash
		if deps.ClientSecretHash == "" {
			a.log.Warn().Msg("JWT_SECRET set without AUTH_CLIENT_SECRET_HASH; /auth/token will reject every client")
		}
	}

	srvCfg := server.DefaultConfig()
	srvCfg.Host, srvCfg.Port = a.cfg.HTTPHost, a.cfg.HTTPPort
	if port > 0 {
		srvCfg.Port = port
	}
	srv := server.NewServer(api.NewRouter(deps), srvCfg, a.log)

	g, gctx := errgroup.WithContext(ctx)
	events := a.bus.Subscribe(audit.TopicQueryExecuted)
	g.Go(func() error {
		a.audit.Consume(gctx, events)
		return nil
	})
	g.Go(func() error {
		return srv.Start(gctx)
	})
	return g.Wait()
}
