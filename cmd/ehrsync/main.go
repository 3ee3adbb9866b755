package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/ehr/ehrsync/internal/config"
	"github.com/ehr/ehrsync/internal/domain/client"
	"github.com/ehr/ehrsync/internal/domain/ehrconfig"
	"github.com/ehr/ehrsync/internal/domain/patient"
	"github.com/ehr/ehrsync/internal/ehr"
	"github.com/ehr/ehrsync/internal/ehrsync"
	"github.com/ehr/ehrsync/internal/platform/auth"
	"github.com/ehr/ehrsync/internal/platform/db"
	"github.com/ehr/ehrsync/internal/platform/metrics"
	"github.com/ehr/ehrsync/internal/platform/middleware"
	"github.com/ehr/ehrsync/internal/platform/validation"
	"github.com/ehr/ehrsync/pkg/fhirmodels"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:          "ehrsync",
		Short:        "EHR patient sync service",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(clientCmd())
	rootCmd.AddCommand(syncCmd())

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

// connect loads the configuration and opens the database pool.
func connect(ctx context.Context) (*config.Config, *pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns, cfg.DBSchema)
	if err != nil {
		return nil, nil, err
	}
	return cfg, pool, nil
}

// services is the wired dependency graph shared by the server and the CLI.
type services struct {
	clients  *client.Service
	configs  *ehrconfig.Service
	patients *patient.Service
	sync     *ehrsync.Service
}

func newServices(cfg *config.Config, pool *pgxpool.Pool, logger zerolog.Logger, m *metrics.Metrics) *services {
	configSvc := ehrconfig.NewService(ehrconfig.NewConfigurationRepoPG(pool))
	patientRepo := patient.NewPatientRepoPG(pool)
	registry := ehr.NewDefaultRegistry(newVendorClient(cfg, logger, m))

	return &services{
		clients:  client.NewService(client.NewClientRepoPG(pool)),
		configs:  configSvc,
		patients: patient.NewService(patientRepo),
		sync:     ehrsync.NewService(configSvc, registry, patientRepo, logger, ehrsync.WithRecorder(m)),
	}
}

func newVendorClient(cfg *config.Config, logger zerolog.Logger, m *metrics.Metrics) *ehr.RESTClient {
	opts := []ehr.ClientOption{ehr.WithObserver(m)}
	if cfg.VendorRateLimit > 0 {
		burst := int(cfg.VendorRateLimit)
		if burst < 1 {
			burst = 1
		}
		opts = append(opts, ehr.WithRateLimit(rate.NewLimiter(rate.Limit(cfg.VendorRateLimit), burst)))
	}
	return ehr.NewRESTClient(cfg.VendorTimeout, logger, opts...)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the sync API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			schema, dir := migrationTarget(cmd, cfg)
			fmt.Printf("Running migrations on schema: %s\n", schema)

			count, err := db.NewMigrator(pool, dir).Up(ctx, schema)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("schema", "", "Target schema (defaults to DB_SCHEMA)")
	upCmd.Flags().String("dir", "", "Path to migrations directory (defaults to MIGRATIONS_DIR)")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			schema, dir := migrationTarget(cmd, cfg)
			statuses, err := db.NewMigrator(pool, dir).Status(ctx, schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("Migration status for schema: %s\n", schema)
			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("schema", "", "Target schema (defaults to DB_SCHEMA)")
	statusCmd.Flags().String("dir", "", "Path to migrations directory (defaults to MIGRATIONS_DIR)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func migrationTarget(cmd *cobra.Command, cfg *config.Config) (schema, dir string) {
	schema, _ = cmd.Flags().GetString("schema")
	dir, _ = cmd.Flags().GetString("dir")
	if schema == "" {
		schema = cfg.DBSchema
	}
	if dir == "" {
		dir = cfg.MigrationsDir
	}
	return schema, dir
}

func clientCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "client",
		Short: "Manage clients and their EHR configurations",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new client",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			if strings.TrimSpace(name) == "" {
				return fmt.Errorf("--name is required")
			}

			ctx := cmd.Context()
			cfg, pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := newServices(cfg, pool, newLogger(cfg.Env), metrics.New())
			c := &client.Client{Name: name}
			if err := svc.clients.CreateClient(ctx, c); err != nil {
				return err
			}
			fmt.Printf("Client created: %s (%s)\n", c.Name, c.ID)
			return nil
		},
	}
	createCmd.Flags().String("name", "", "Client display name")
	cmd.AddCommand(createCmd)

	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Create or update clients and configurations from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("file")
			seed, err := loadSeed(path)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			cfg, pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := newServices(cfg, pool, newLogger(cfg.Env), metrics.New())
			res, err := applySeed(ctx, svc.clients, svc.configs, seed)
			if err != nil {
				return err
			}
			fmt.Printf("Seeded %d client(s), %d configuration(s).\n", res.Clients, res.Configurations)
			return nil
		},
	}
	seedCmd.Flags().String("file", "tenants.yaml", "Path to the seed file")
	cmd.AddCommand(seedCmd)

	return cmd
}

func syncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Pull patients from a vendor into the local store",
	}
	cmd.PersistentFlags().String("tenant", "", "Client id (defaults to the first active client)")
	cmd.PersistentFlags().String("vendor", "", "EHR vendor: EPIC or CERNER")

	patientCmd := &cobra.Command{
		Use:   "patient",
		Short: "Sync one patient by vendor id",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, _ := cmd.Flags().GetString("id")
			return withSync(cmd, func(ctx context.Context, svc *ehrsync.Service, clientID uuid.UUID, system fhirmodels.EHRSystem) (any, error) {
				return svc.SyncOne(ctx, clientID, system, id)
			})
		},
	}
	patientCmd.Flags().String("id", "", "Vendor patient id")
	cmd.AddCommand(patientCmd)

	searchCmd := &cobra.Command{
		Use:   "search",
		Short: "Sync every patient matching vendor search parameters",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, _ := cmd.Flags().GetStringArray("param")
			params, err := parseParams(raw)
			if err != nil {
				return err
			}
			return withSync(cmd, func(ctx context.Context, svc *ehrsync.Service, clientID uuid.UUID, system fhirmodels.EHRSystem) (any, error) {
				report, err := svc.SyncSearch(ctx, clientID, system, params)
				if err != nil {
					return nil, err
				}
				return summarize(report), nil
			})
		},
	}
	searchCmd.Flags().StringArray("param", nil, "Search parameter as key=value (repeatable)")
	cmd.AddCommand(searchCmd)

	return cmd
}

type syncFunc func(ctx context.Context, svc *ehrsync.Service, clientID uuid.UUID, system fhirmodels.EHRSystem) (any, error)

func withSync(cmd *cobra.Command, fn syncFunc) error {
	tenant, _ := cmd.Flags().GetString("tenant")
	vendor, _ := cmd.Flags().GetString("vendor")
	system, err := fhirmodels.ParseEHRSystem(vendor)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, pool, err := connect(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	svc := newServices(cfg, pool, newLogger(cfg.Env), metrics.New())
	clientID, err := tenantOrDefault(ctx, tenant, svc.clients.DefaultClientID)
	if err != nil {
		return err
	}

	out, err := fn(ctx, svc.sync, clientID, system)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func tenantOrDefault(ctx context.Context, raw string, def db.DefaultTenantFunc) (uuid.UUID, error) {
	if raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return uuid.Nil, fmt.Errorf("invalid --tenant %q: %w", raw, err)
		}
		return id, nil
	}
	id, err := def(ctx)
	if errors.Is(err, db.ErrNoTenant) {
		return uuid.Nil, fmt.Errorf("--tenant is required: no active client exists")
	}
	return id, err
}

// parseParams turns repeated key=value flags into vendor query parameters.
// Repeating a key adds another value.
func parseParams(raw []string) (url.Values, error) {
	params := url.Values{}
	for _, kv := range raw {
		k, v, ok := strings.Cut(kv, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --param %q: want key=value", kv)
		}
		params.Add(k, v)
	}
	if len(params) == 0 {
		return nil, fmt.Errorf("at least one --param is required")
	}
	return params, nil
}

type searchSummary struct {
	Attempted int                `json:"attempted"`
	Saved     int                `json:"saved"`
	Patients  []*patient.Patient `json:"patients"`
	Failures  []string           `json:"failures"`
}

func summarize(r *ehrsync.SearchReport) searchSummary {
	s := searchSummary{Attempted: r.Attempted, Saved: r.Saved, Patients: r.Patients, Failures: []string{}}
	for _, f := range r.Failures() {
		s.Failures = append(s.Failures, f.Err.Error())
	}
	return s
}

func runServer() error {
	// Config
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Env)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns, cfg.DBSchema)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Str("schema", cfg.DBSchema).Msg("connected to database")

	m := metrics.New()
	svc := newServices(cfg, pool, logger, m)
	e := newServer(cfg, logger, svc, m)

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

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
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

// newServer builds the echo instance with global middleware, /metrics and the
// /api/v1 routes. Health routes are added by the caller.
func newServer(cfg *config.Config, logger zerolog.Logger, svc *services, m *metrics.Metrics) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validation.New()

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(m.Middleware())
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader, "X-Tenant-ID"},
	}))

	// Auth middleware
	jwtCfg := auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		SigningKey: []byte(cfg.AuthSigningKey),
	}
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware(jwtCfg))
	} else {
		e.Use(auth.JWTMiddleware(jwtCfg))
	}

	// Tenant middleware
	e.Use(db.TenantMiddleware(svc.clients.DefaultClientID, auth.AuthSkipper))

	e.GET("/metrics", echo.WrapHandler(m.Handler()))

	apiV1 := e.Group("/api/v1")
	client.NewHandler(svc.clients).RegisterRoutes(apiV1)
	ehrconfig.NewHandler(svc.configs).RegisterRoutes(apiV1)
	patient.NewHandler(svc.patients).RegisterRoutes(apiV1)
	ehrsync.NewHandler(svc.sync).RegisterRoutes(apiV1)

	return e
}
