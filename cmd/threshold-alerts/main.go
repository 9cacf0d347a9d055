package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/diwise/messaging-golang/pkg/messaging"
	"github.com/diwise/service-chassis/pkg/infrastructure/buildinfo"
	"github.com/diwise/service-chassis/pkg/infrastructure/env"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"github.com/diwise/threshold-alerts/internal/pkg/application"
	"github.com/diwise/threshold-alerts/internal/pkg/application/events"
	"github.com/diwise/threshold-alerts/internal/pkg/infrastructure/repositories/database"
	"github.com/diwise/threshold-alerts/internal/pkg/infrastructure/router"
	"github.com/diwise/threshold-alerts/internal/pkg/presentation/api"
	"github.com/diwise/threshold-alerts/internal/pkg/presentation/api/auth"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const serviceName string = "threshold-alerts"

func defaultFlags() flagMap {
	return flagMap{
		listenAddress:  "0.0.0.0",
		servicePort:    "8080",
		allowedOrigins: "*",
		logLevel:       "info",

		policiesFile:      "/opt/diwise/config/authz.rego",
		configurationFile: "/opt/diwise/config/config.yaml",
		jwtSecret:         "",

		dbHost:     "",
		dbUser:     "",
		dbPassword: "",
		dbPort:     "5432",
		dbName:     "diwise",
		dbSSLMode:  "disable",

		rabbitMQHost: "",

		devmode: "false",
	}
}

func main() {
	ctx, flags := parseExternalConfig(context.Background(), defaultFlags())

	serviceVersion := buildinfo.SourceVersion()

	zerolog.SetGlobalLevel(parseLogLevel(flags[logLevel]))

	ctx, logger := logging.NewLogger(ctx, serviceName, serviceVersion)
	logger.Info().Msg("starting up ...")

	cleanup, err := tracing.Init(ctx, logger, serviceName, serviceVersion)
	exitIf(err, logger, "failed to init tracing")
	defer cleanup()

	cfg, err := loadConfigurationFile(ctx, flags[configurationFile])
	exitIf(err, logger, "could not load configuration file")

	policies, err := os.Open(flags[policiesFile])
	exitIf(err, logger, "unable to open opa policy file")

	handler, app, err := initialize(ctx, flags, cfg, policies)
	exitIf(err, logger, "failed to initialize service")
	defer app.Stop()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = serve(ctx, flags, handler)
	exitIf(err, logger, "failed to start request router")
}

func initialize(ctx context.Context, flags flagMap, cfg *application.Config, policies io.ReadCloser) (http.Handler, application.App, error) {
	defer policies.Close()

	logger := logging.GetFromContext(ctx)

	secret := flags[jwtSecret]
	if secret == "" {
		if flags[devmode] != "true" {
			return nil, nil, errors.New("a JWT secret is required unless running in dev mode")
		}
		logger.Warn().Msg("no JWT secret configured, using an insecure development secret")
		secret = "threshold-alerts-development-secret"
	}

	store, err := database.New(newConnector(logger, flags))
	if err != nil {
		return nil, nil, fmt.Errorf("could not create or connect to database: %w", err)
	}

	web := events.NewWebEvents()

	publisher, err := newPublisher(ctx, flags, cfg, web)
	if err != nil {
		store.Close()
		return nil, nil, err
	}

	app, err := application.New(store, publisher, cfg)
	if err != nil {
		store.Close()
		return nil, nil, err
	}

	err = app.Start(ctx)
	if err != nil {
		app.Stop()
		return nil, nil, fmt.Errorf("failed to seed thresholds: %w", err)
	}

	authz, err := auth.NewAuthorizer(ctx, policies)
	if err != nil {
		app.Stop()
		return nil, nil, fmt.Errorf("failed to create api authorizer: %w", err)
	}

	origins := strings.Split(flags[allowedOrigins], ",")
	r := router.New(serviceName, origins...)

	return api.RegisterHandlers(ctx, r, auth.NewAuthenticator([]byte(secret)), authz, app, web.Handler()), app, nil
}

func newConnector(logger zerolog.Logger, flags flagMap) database.ConnectorFunc {
	if flags[devmode] == "true" || flags[dbHost] == "" {
		logger.Info().Msg("using an in-memory sqlite database")
		return database.NewSQLiteConnector(logger)
	}

	return database.NewPostgreSQLConnector(logger, database.ConnectorConfig{
		Host:     flags[dbHost],
		Port:     flags[dbPort],
		Username: flags[dbUser],
		DbName:   flags[dbName],
		Password: flags[dbPassword],
		SslMode:  flags[dbSSLMode],
	})
}

func newPublisher(ctx context.Context, flags flagMap, cfg *application.Config, web events.WebEvents) (events.Publisher, error) {
	sender, err := events.NewCloudEventSender(cfg.Events())
	if err != nil {
		return nil, fmt.Errorf("failed to create cloud event sender: %w", err)
	}

	if flags[rabbitMQHost] == "" {
		return events.Combine(web, sender), nil
	}

	logger := logging.GetFromContext(ctx)

	messenger, err := messaging.Initialize(messaging.LoadConfiguration(serviceName, logger))
	if err != nil {
		return nil, fmt.Errorf("failed to init messenger: %w", err)
	}

	broker := events.NewMessagingPublisher(messenger, func() { messenger.Close() })

	return events.Combine(broker, web, sender), nil
}

func serve(ctx context.Context, flags flagMap, handler http.Handler) error {
	logger := logging.GetFromContext(ctx)

	srv := &http.Server{
		Addr:              flags[listenAddress] + ":" + flags[servicePort],
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("failed to shut down http server")
		}
	}()

	logger.Info().Str("addr", srv.Addr).Msg("starting to listen for connections")

	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// loadConfigurationFile treats a missing file as an empty configuration.
func loadConfigurationFile(ctx context.Context, path string) (*application.Config, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger := logging.GetFromContext(ctx)
			logger.Warn().Str("path", path).Msg("no configuration file found, using defaults")
			return &application.Config{}, nil
		}
		return nil, err
	}
	defer f.Close()

	return application.LoadConfiguration(f)
}

func parseExternalConfig(ctx context.Context, flags flagMap) (context.Context, flagMap) {
	// Allow environment variables to override certain defaults
	envOrDef := func(key, def string) string {
		return env.GetVariableOrDefault(log.Logger, key, def)
	}

	flags[listenAddress] = envOrDef("LISTEN_ADDRESS", flags[listenAddress])
	flags[servicePort] = envOrDef("SERVICE_PORT", flags[servicePort])
	flags[allowedOrigins] = envOrDef("ALLOWED_ORIGINS", flags[allowedOrigins])
	flags[logLevel] = envOrDef("LOG_LEVEL", flags[logLevel])

	flags[policiesFile] = envOrDef("POLICIES_FILE", flags[policiesFile])
	flags[configurationFile] = envOrDef("CONFIG_FILE", flags[configurationFile])
	flags[jwtSecret] = envOrDef("JWT_SECRET", flags[jwtSecret])

	flags[dbHost] = envOrDef("POSTGRES_HOST", flags[dbHost])
	flags[dbPort] = envOrDef("POSTGRES_PORT", flags[dbPort])
	flags[dbName] = envOrDef("POSTGRES_DBNAME", flags[dbName])
	flags[dbUser] = envOrDef("POSTGRES_USER", flags[dbUser])
	flags[dbPassword] = envOrDef("POSTGRES_PASSWORD", flags[dbPassword])
	flags[dbSSLMode] = envOrDef("POSTGRES_SSLMODE", flags[dbSSLMode])

	flags[rabbitMQHost] = envOrDef("RABBITMQ_HOST", flags[rabbitMQHost])

	apply := func(f flagType) func(string) error {
		return func(value string) error {
			flags[f] = value
			return nil
		}
	}

	// Allow command line arguments to override defaults and environment variables
	flag.Func("policies", "an authorization policy file", apply(policiesFile))
	flag.Func("config", "threshold alerts configuration file", apply(configurationFile))
	flag.Func("devmode", "enable dev mode (in-memory database)", apply(devmode))
	flag.Parse()

	return ctx, flags
}

func parseLogLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

func exitIf(err error, logger zerolog.Logger, msg string) {
	if err != nil {
		logger.Error().Err(err).Msg(msg)
		time.Sleep(2 * time.Second)
		os.Exit(1)
	}
}
