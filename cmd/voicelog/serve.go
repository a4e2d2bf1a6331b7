package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/migraineai/voicelog/internal/config"
	"github.com/migraineai/voicelog/internal/httpapi"
	"github.com/migraineai/voicelog/internal/mcp"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			withASR := a.cfg.APIKeyForProvider("openai").Value != ""
			if !withASR {
				a.logger.Warn("clip uploads disabled: no OPENAI_API_KEY")
			}
			svc, err := a.service(serviceOpts{live: true, store: true, asr: withASR})
			if err != nil {
				return err
			}
			if addr == "" {
				addr = a.cfg.HTTPAddr.Value
			}

			srv := &http.Server{
				Addr:              addr,
				Handler:           httpapi.NewRouter(svc, a.logger),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				a.logger.Info("http server listening", "addr", addr)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			}

			a.logger.Info("shutting down http server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default "+config.DefaultHTTPAddr+")")
	return cmd
}

func newMCPCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the MCP tools over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service(serviceOpts{live: true, store: true})
			if err != nil {
				return err
			}
			s := mcp.NewServer(mcp.ServerConfig{Service: svc, Version: Version})
			return mcpserver.ServeStdio(s)
		},
	}
}
