package main

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/septivank/smartbag-service/internal/alert"
	"github.com/septivank/smartbag-service/internal/api"
	"github.com/septivank/smartbag-service/internal/auth"
	"github.com/septivank/smartbag-service/internal/config"
	"github.com/septivank/smartbag-service/internal/db"
	"github.com/septivank/smartbag-service/internal/device"
	"github.com/septivank/smartbag-service/internal/mq"
	"github.com/septivank/smartbag-service/internal/repository"
	"github.com/septivank/smartbag-service/internal/service"
	"github.com/septivank/smartbag-service/internal/validator"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ProvideStore picks the device store backend
func ProvideStore(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) (device.Store, error) {
	if cfg.Storage.Backend == config.StorageMemory {
		logger.Warn("using in-memory device store; data is lost on restart")
		return repository.NewMemoryStore(), nil
	}

	pool, err := db.NewPool(lc, logger, db.Options{
		URL:             cfg.Database.URL,
		MaxConns:        int32(cfg.Database.MaxConns),
		MinConns:        int32(cfg.Database.MinConns),
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
	})
	if err != nil {
		return nil, err
	}
	return repository.NewPostgresStore(pool), nil
}

// ProvideMQConnection connects to RabbitMQ. It returns nil when RabbitMQ is not configured.
func ProvideMQConnection(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) (*mq.Connection, error) {
	if !cfg.RabbitMQ.Enabled() {
		logger.Info("RABBITMQ_URL not set, events and queue ingest disabled")
		return nil, nil
	}
	return mq.NewConnection(lc, logger, cfg.RabbitMQ.URL)
}

// ProvidePublisher returns the event publisher, or a no-op one without RabbitMQ
func ProvidePublisher(lc fx.Lifecycle, conn *mq.Connection, cfg *config.Config, logger *zap.Logger) (service.EventPublisher, error) {
	if conn == nil {
		return mq.NopPublisher{}, nil
	}

	publisher, err := mq.NewPublisher(conn, cfg.RabbitMQ.EventsExchange, logger)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return publisher.Close()
		},
	})
	return publisher, nil
}

// ProvideValidator creates a new validator instance
func ProvideValidator(cfg *config.Config) *validator.Validator {
	return validator.NewValidator(cfg.Validation.TimestampToleranceMinutes)
}

// ProvideDetector creates the alert detector
func ProvideDetector(cfg *config.Config) *alert.Detector {
	return alert.NewDetector(cfg.Alert.LowBatteryPercent, cfg.Alert.UnresponsiveAfter)
}

// ProvideSecretHasher creates the bcrypt hasher for device secrets
func ProvideSecretHasher(cfg *config.Config) *auth.SecretHasher {
	return auth.NewSecretHasher(cfg.Auth.BcryptCost)
}

// ProvideDeviceTokens creates the device token issuer
func ProvideDeviceTokens(cfg *config.Config) *auth.DeviceTokens {
	return auth.NewDeviceTokens(cfg.Auth.DeviceTokenSecret, cfg.Auth.DeviceTokenTTL, nil)
}

// ProvideOwnerVerifier creates the owner JWT verifier
func ProvideOwnerVerifier(cfg *config.Config) *auth.OwnerVerifier {
	return auth.NewOwnerVerifier(cfg.Auth.OwnerJWTSecret, cfg.Auth.OwnerJWTAudience, nil)
}

// ProvideRegistry creates the device registry service
func ProvideRegistry(
	store device.Store,
	hasher *auth.SecretHasher,
	tokens *auth.DeviceTokens,
	v *validator.Validator,
	cfg *config.Config,
	publisher service.EventPublisher,
	logger *zap.Logger,
) *service.Registry {
	return service.NewRegistry(store, hasher, tokens, v, cfg.Device, publisher, logger, service.SystemClock)
}

// ProvideClaims creates the claim workflow service
func ProvideClaims(store device.Store, v *validator.Validator, publisher service.EventPublisher, logger *zap.Logger) *service.Claims {
	return service.NewClaims(store, v, publisher, logger, service.SystemClock)
}

// ProvideTelemetry creates the telemetry ingest service
func ProvideTelemetry(
	store device.Store,
	v *validator.Validator,
	detector *alert.Detector,
	cfg *config.Config,
	publisher service.EventPublisher,
	logger *zap.Logger,
) *service.Telemetry {
	return service.NewTelemetry(store, v, detector, cfg.Telemetry.HistoryLimit, publisher, logger, service.SystemClock)
}

// ProvideControl creates the zone control service
func ProvideControl(store device.Store, v *validator.Validator, publisher service.EventPublisher, logger *zap.Logger) *service.Control {
	return service.NewControl(store, v, publisher, logger, service.SystemClock)
}

// ProvideAlerts creates the alert query service
func ProvideAlerts(store device.Store, detector *alert.Detector) *service.Alerts {
	return service.NewAlerts(store, detector, service.SystemClock)
}

// ProvideProcessor creates the queue telemetry processor
func ProvideProcessor(telemetry *service.Telemetry, v *validator.Validator, logger *zap.Logger) *service.Processor {
	return service.NewProcessor(telemetry, v, logger, service.SystemClock)
}

type serverParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    *config.Config
	Logger    *zap.Logger
	Store     device.Store
	Registry  *service.Registry
	Claims    *service.Claims
	Telemetry *service.Telemetry
	Control   *service.Control
	Alerts    *service.Alerts
	Owners    *auth.OwnerVerifier
	Tokens    *auth.DeviceTokens
}

func startHTTPServer(p serverParams) *http.Server {
	cfg := p.Config.HTTP
	router := api.NewRouter(
		api.RouterConfig{
			AdminAPIKey:        p.Config.Auth.AdminAPIKey,
			RequestTimeout:     cfg.RequestTimeout,
			CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		},
		api.Services{
			Registry:  p.Registry,
			Claims:    p.Claims,
			Telemetry: p.Telemetry,
			Control:   p.Control,
			Alerts:    p.Alerts,
		},
		p.Store, p.Owners, p.Tokens, p.Logger,
	)

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			p.Logger.Info("http server listening",
				zap.String("addr", srv.Addr),
				zap.Bool("admin_routes", p.Config.Auth.AdminAPIKey != ""))
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					p.Logger.Error("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			p.Logger.Info("shutting down http server")
			return srv.Shutdown(ctx)
		},
	})

	return srv
}

// startTelemetryConsumer consumes device telemetry from RabbitMQ when it is configured
func startTelemetryConsumer(
	lc fx.Lifecycle,
	conn *mq.Connection,
	cfg *config.Config,
	logger *zap.Logger,
	processor *service.Processor,
) error {
	if conn == nil {
		return nil
	}

	// cancelled on shutdown
	ctx, cancel := context.WithCancel(context.Background())

	consumer, err := mq.NewConsumer(mq.ConsumerConfig{
		Connection:       conn,
		Queue:            cfg.RabbitMQ.TelemetryQueue,
		DLQQueue:         cfg.RabbitMQ.DLQQueue,
		Exchange:         cfg.RabbitMQ.TelemetryExchange,
		RoutingKey:       cfg.RabbitMQ.TelemetryRoutingKey,
		PrefetchCount:    cfg.RabbitMQ.PrefetchCount,
		HandleTimeout:    cfg.RabbitMQ.HandleTimeout,
		Logger:           logger,
		MessageProcessor: processor.ProcessMessage,
	})
	if err != nil {
		cancel()
		return err
	}

	lc.Append(fx.Hook{
		OnStart: func(startCtx context.Context) error {
			logger.Info("starting telemetry consumer",
				zap.String("queue", cfg.RabbitMQ.TelemetryQueue),
				zap.Int("prefetch", cfg.RabbitMQ.PrefetchCount))
			return consumer.Start(ctx)
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			if err := consumer.Close(); err != nil {
				logger.Error("failed to close consumer", zap.Error(err))
				return err
			}
			logger.Info("telemetry consumer stopped")
			return nil
		},
	})

	return nil
}
