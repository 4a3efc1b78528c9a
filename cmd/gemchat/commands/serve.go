package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pliu/gemchat/internal/ai"
	"github.com/pliu/gemchat/internal/auth"
	"github.com/pliu/gemchat/internal/config"
	"github.com/pliu/gemchat/internal/files"
	"github.com/pliu/gemchat/internal/search"
	"github.com/pliu/gemchat/internal/server"
	"github.com/pliu/gemchat/internal/util"
	"github.com/pliu/gemchat/internal/ws"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

// NewServeCmd creates the serve command
func NewServeCmd() *cobra.Command {
	var (
		addr          string
		secureCookies bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat server",
		Long: `Run the HTTP server: the REST API under /api/v1, the streaming chat
endpoint, the /ws websocket and the static front end.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(cmd)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Addr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger, secureCookies)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides ADDR)")
	cmd.Flags().BoolVar(&secureCookies, "secure-cookies", false, "mark session cookies Secure (use behind HTTPS)")

	return cmd
}

func serve(ctx context.Context, cfg *config.Config, logger *log.Logger, secureCookies bool) error {
	for _, w := range cfg.Warnings() {
		logger.Warn(w)
	}

	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	defaultUser, err := s.EnsureDefaultUser()
	if err != nil {
		return fmt.Errorf("default user: %w", err)
	}

	uploads, err := files.NewService(cfg.UploadFolder, logger)
	if err != nil {
		return err
	}

	responder := newResponder(cfg, logger)
	hub := ws.NewHub(logger)
	go hub.Run(ctx)

	handler := server.NewRouter(server.Deps{
		Logger:    logger,
		Store:     s,
		Responder: responder,
		Streamer:  ai.NewPseudoStreamer(responder),
		Search: search.New(search.Config{
			APIKey:   cfg.SerpAPIKey,
			BaseURL:  cfg.SerpAPIURL,
			CacheTTL: cfg.SearchCacheTTL,
		}, s, logger),
		Files:         uploads,
		Signer:        auth.NewSigner(cfg.SecretKey),
		Sealer:        auth.NewSealer(cfg.SecretKey),
		Hub:           hub,
		DefaultUserID: defaultUser.ID,
		StaticDir:     cfg.StaticDir,
		CORSOrigins:   cfg.CORSOrigins,
		MaxUploadSize: cfg.MaxContentLength,
		SocketRetry: util.Policy{
			Attempts:  cfg.SocketRetryAttempts,
			BaseDelay: cfg.SocketRetryDelay,
			MaxDelay:  ws.DefaultRetry.MaxDelay,
		},
		SecureCookies: secureCookies,
		Version:       versionInfo.Version,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", cfg.Addr, "provider", cfg.Provider, "database", cfg.DatabaseDriver)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// newResponder picks the upstream client named by AI_PROVIDER.
func newResponder(cfg *config.Config, logger *log.Logger) ai.Responder {
	if cfg.Provider == config.ProviderOpenAI {
		return ai.NewOpenAIClient(ai.OpenAIConfig{
			APIKey:         cfg.GeminiAPIKey,
			BaseURL:        cfg.OpenAIBaseURL,
			Models:         cfg.OpenAIModels,
			Timeout:        cfg.AITimeout,
			IncludeHistory: cfg.IncludeHistory,
		}, logger)
	}
	return ai.NewGeminiClient(ai.GeminiConfig{
		APIKey:         cfg.GeminiAPIKey,
		Endpoints:      cfg.GeminiEndpoints,
		Timeout:        cfg.AITimeout,
		IncludeHistory: cfg.IncludeHistory,
	}, logger)
}
