package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"billetera/internal/auth"
	"billetera/internal/backend"
	"billetera/internal/cli"
	"billetera/internal/core"
	apphttp "billetera/internal/http"
	"billetera/internal/log"
)

// localUser owns every request when no JWT secret is configured.
var localUser = core.User{ID: "local", FirstName: "Local"}

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	svc, err := backend.Build(startCtx, cfg, logger)
	cancelStart()
	if err != nil {
		cli.Fatal(logger, "Failed to initialize backend", err)
	}

	deps := apphttp.Deps{
		Ledger:     svc.Ledger,
		Categories: svc.Catalog,
		Ready:      svc.Ping,
		Logger:     logger.WithComponent(log.ComponentHTTP),
	}
	if cfg.JWTSecret != "" {
		tokens, err := auth.NewTokens(cfg.JWTSecret, cfg.JWTIssuer)
		if err != nil {
			svc.Close()
			cli.Fatal(logger, "Failed to initialize token validation", err)
		}
		deps.Users = auth.ContextProvider{}
		deps.Authenticate = auth.Middleware(tokens, logger)
		logger.Info("Bearer token authentication enabled", "issuer", cfg.JWTIssuer)
	} else {
		deps.Users = auth.Static{User: localUser}
		logger.Warn("JWT_SECRET not set, serving every request as the local user")
	}

	srv := apphttp.NewServer(":"+cfg.Port, deps)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		if err := svc.Close(); err != nil {
			logger.Error("Backend close error", log.FieldError, err)
		}
	})

	logger.Info("Starting billetera server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		log.FieldOperation, log.OpStartup)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		svc.Close()
		cli.Fatal(logger, "Server error", err)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
