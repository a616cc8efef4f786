package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pdfchat/internal/logging"
	"pdfchat/internal/web"
)

func newServeCmd(g *globalFlags) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the browser chat UI",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, g, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}

func runServe(cmd *cobra.Command, g *globalFlags, addr string) error {
	cfg, err := loadConfig(g)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}
	log, err := logging.New(cfg.Log, logging.Options{Console: true, Stderr: cmd.ErrOrStderr()})
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()
	mgr := a.newManager(cfg, log)
	defer mgr.Close()

	srv := &http.Server{
		Addr: cfg.Server.Addr,
		Handler: web.NewServer(mgr, web.Options{
			CookieName:   cfg.Server.CookieName,
			MaxUploadMB:  cfg.Server.MaxUploadMB,
			AnswerSuffix: cfg.Chat.AnswerSuffix,
		}, log).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening",
			zap.String("addr", cfg.Server.Addr),
			zap.String("chat_provider", cfg.Chat.Provider),
			zap.String("chat_model", cfg.Chat.Model),
			zap.String("embedder", cfg.Embedder.Type),
			zap.String("vector_store", cfg.VectorStore.Type),
		)
		fmt.Fprintf(cmd.OutOrStdout(), "pdfchat listening on %s\n", cfg.Server.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
