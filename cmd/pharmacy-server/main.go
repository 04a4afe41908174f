package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rxhub/pharmacy/internal/config"
	"github.com/rxhub/pharmacy/internal/platform/auth"
	"github.com/rxhub/pharmacy/internal/platform/db"
	"github.com/rxhub/pharmacy/internal/platform/dispatch"
	"github.com/rxhub/pharmacy/internal/platform/email"
	"github.com/rxhub/pharmacy/internal/platform/middleware"
	"github.com/rxhub/pharmacy/migrations"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "pharmacy-server",
		Short: "Pharmacy platform API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(refillCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrationsFS(dir string) fs.FS {
	if dir == "" {
		return migrations.FS
	}
	return os.DirFS(dir)
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, migrationsFS(dir)).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, migrationsFS(dir)).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			writeMigrationStatus(cmd.OutOrStdout(), statuses)
			return nil
		},
	}
	statusCmd.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
	cmd.AddCommand(statusCmd)

	return cmd
}

func writeMigrationStatus(w io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format(time.RFC3339)
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage API tokens",
	}

	issueCmd := &cobra.Command{
		Use:   "issue",
		Short: "Sign a bearer token for a user and role",
		RunE: func(cmd *cobra.Command, args []string) error {
			subStr, _ := cmd.Flags().GetString("sub")
			roleStr, _ := cmd.Flags().GetString("role")
			ttl, _ := cmd.Flags().GetDuration("ttl")
			keyStr, _ := cmd.Flags().GetString("key")
			issuer, _ := cmd.Flags().GetString("issuer")
			audience, _ := cmd.Flags().GetString("audience")

			sub, err := uuid.Parse(subStr)
			if err != nil {
				return fmt.Errorf("--sub must be a uuid: %w", err)
			}
			key, err := resolveSigningKey(keyStr)
			if err != nil {
				return err
			}
			token, err := auth.IssueToken(key, issuer, audience, sub, auth.Role(roleStr), ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	issueCmd.Flags().String("sub", "", "User id placed in the sub claim")
	issueCmd.Flags().String("role", string(auth.RolePatient), "Role claim: patient, pharmacy or admin")
	issueCmd.Flags().Duration("ttl", 24*time.Hour, "Token lifetime")
	issueCmd.Flags().String("key", os.Getenv("AUTH_SIGNING_KEY"), "HS256 signing key (defaults to AUTH_SIGNING_KEY)")
	issueCmd.Flags().String("issuer", os.Getenv("AUTH_ISSUER"), "iss claim")
	issueCmd.Flags().String("audience", os.Getenv("AUTH_AUDIENCE"), "aud claim")
	_ = issueCmd.MarkFlagRequired("sub")
	cmd.AddCommand(issueCmd)

	return cmd
}

// resolveSigningKey returns the HS256 key. A "hex:" prefix marks a
// hex-encoded key; anything else is used as raw bytes.
func resolveSigningKey(value string) ([]byte, error) {
	if value == "" {
		return nil, nil
	}
	if rest, ok := strings.CutPrefix(value, "hex:"); ok {
		decoded, err := hex.DecodeString(rest)
		if err != nil {
			return nil, fmt.Errorf("invalid hex signing key: %w", err)
		}
		return decoded, nil
	}
	return []byte(value), nil
}

func refillCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refill",
		Short: "Refill request maintenance",
	}

	deleteCmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a refill request by id",
		RunE: func(cmd *cobra.Command, args []string) error {
			idStr, _ := cmd.Flags().GetString("id")
			id, err := uuid.Parse(idStr)
			if err != nil {
				return fmt.Errorf("--id must be a uuid: %w", err)
			}
			return withServices(cmd.Context(), func(ctx context.Context, s *services) error {
				if err := s.refill.Delete(ctx, id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted refill request %s\n", id)
				return nil
			})
		},
	}
	deleteCmd.Flags().String("id", "", "Refill request id")
	_ = deleteCmd.MarkFlagRequired("id")
	cmd.AddCommand(deleteCmd)

	countCmd := &cobra.Command{
		Use:   "count",
		Short: "Print the number of pending refill requests for a pharmacy",
		RunE: func(cmd *cobra.Command, args []string) error {
			idStr, _ := cmd.Flags().GetString("pharmacy")
			id, err := uuid.Parse(idStr)
			if err != nil {
				return fmt.Errorf("--pharmacy must be a uuid: %w", err)
			}
			return withServices(cmd.Context(), func(ctx context.Context, s *services) error {
				n, err := s.refill.CountPending(ctx, id)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), n)
				return nil
			})
		},
	}
	countCmd.Flags().String("pharmacy", "", "Pharmacy id")
	_ = countCmd.MarkFlagRequired("pharmacy")
	cmd.AddCommand(countCmd)

	return cmd
}

// withServices runs fn against a freshly wired service graph. Side effects
// run inline since there is no worker pool to drain.
func withServices(ctx context.Context, fn func(ctx context.Context, s *services) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Env)

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return err
	}
	defer pool.Close()

	mailer, err := newMailer(cfg, logger)
	if err != nil {
		return err
	}
	s := newServices(pool, cfg, logger, dispatch.NewSync(logger), mailer)
	return fn(ctx, s)
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg.Env)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	signingKey, err := resolveSigningKey(cfg.AuthSigningKey)
	if err != nil {
		return fmt.Errorf("invalid AUTH_SIGNING_KEY: %w", err)
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	mailer, err := newMailer(cfg, logger)
	if err != nil {
		return fmt.Errorf("configure email: %w", err)
	}

	dispatcher := dispatch.New(dispatch.Config{
		Workers:     cfg.DispatchWorkers,
		QueueSize:   cfg.DispatchQueueSize,
		TaskTimeout: cfg.DispatchTaskTimeout,
	}, logger)

	svcs := newServices(pool, cfg, logger, dispatcher, mailer)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Metrics())
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit("1M"))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader, auth.HeaderUserID, auth.HeaderRole},
	}))

	// Auth middleware
	verifier := auth.NewVerifier(ctx, auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		JWKSURL:    cfg.AuthJWKSURL,
		SigningKey: signingKey,
	})
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware(verifier))
	} else {
		e.Use(auth.JWTMiddleware(verifier))
	}

	// Health and metrics
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(pool, func() *db.PoolStats { return db.GetPoolStats(pool) }))
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Rate limiting is keyed by actor, so it sits behind auth.
	rateLimitCfg := middleware.DefaultRateLimitConfig()
	if cfg.RateLimitRPS > 0 {
		rateLimitCfg.RequestsPerSecond = cfg.RateLimitRPS
		rateLimitCfg.BurstSize = cfg.RateLimitBurst
	}
	apiV1 := e.Group("/api/v1", middleware.RateLimit(rateLimitCfg))
	svcs.registerRoutes(apiV1)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	if err := dispatcher.Stop(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("side effects not drained")
	}
	logger.Info().Msg("server stopped")
	return nil
}

// newMailer returns an SMTP sender when SMTP_HOST is set and a logging
// sender otherwise.
func newMailer(cfg *config.Config, logger zerolog.Logger) (email.Sender, error) {
	if !cfg.SMTPEnabled() {
		return email.NewLogSender(logger), nil
	}
	sender, err := email.NewSMTPSender(email.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	})
	if err != nil {
		return nil, err
	}
	return sender, nil
}
