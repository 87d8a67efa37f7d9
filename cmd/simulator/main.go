package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/joho/godotenv"
	"github.com/septivank/smartbag-service/internal/logging"
	"github.com/septivank/smartbag-service/internal/mq"
	"github.com/septivank/smartbag-service/internal/simulator"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "smartbag-simulator",
		Usage: "pretend to be a smart bag and report telemetry on a timer",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "api-url",
				Usage:   "base URL of the smartbag service",
				Value:   "http://localhost:4000",
				EnvVars: []string{"SIMULATOR_API_URL"},
			},
			&cli.StringFlag{
				Name:     "device-code",
				Usage:    "device code printed by the seeder",
				Required: true,
				EnvVars:  []string{"SIMULATOR_DEVICE_CODE"},
			},
			&cli.StringFlag{
				Name:     "device-secret",
				Usage:    "device secret printed by the seeder",
				Required: true,
				EnvVars:  []string{"SIMULATOR_DEVICE_SECRET"},
			},
			&cli.DurationFlag{
				Name:    "interval",
				Usage:   "time between telemetry rounds",
				Value:   5 * time.Second,
				EnvVars: []string{"SIMULATOR_INTERVAL"},
			},
			&cli.StringFlag{
				Name:    "rabbitmq-url",
				Usage:   "send telemetry through RabbitMQ instead of HTTP",
				EnvVars: []string{"SIMULATOR_RABBITMQ_URL"},
			},
			&cli.StringFlag{
				Name:    "telemetry-exchange",
				Value:   "smartbag.telemetry.exchange",
				EnvVars: []string{"RABBITMQ_TELEMETRY_EXCHANGE"},
			},
			&cli.Int64Flag{
				Name:  "seed",
				Usage: "random seed for sensor noise",
				Value: time.Now().UnixNano(),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				EnvVars: []string{"LOG_LEVEL"},
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	logger, err := logging.NewLogger("smartbag-simulator", c.String("log-level"))
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	client := simulator.NewClient(c.String("api-url"), 10*time.Second)
	session, err := authenticate(ctx, client, c.String("device-code"), c.String("device-secret"), logger)
	if err != nil {
		return err
	}
	logger = logging.WithDeviceID(logger, session.Device.ID)
	logger.Info("device authenticated",
		zap.String("device_code", session.Device.DeviceCode),
		zap.String("bag_type", string(session.Device.BagType)),
		zap.Time("token_expires_at", session.ExpiresAt))

	var transport simulator.Transport = client
	if url := c.String("rabbitmq-url"); url != "" {
		conn, err := mq.Dial(logger, url)
		if err != nil {
			return err
		}
		defer conn.Close()

		publisher, err := mq.NewPublisher(conn, c.String("telemetry-exchange"), logger)
		if err != nil {
			return err
		}
		defer publisher.Close()

		transport = simulator.NewQueueTransport(publisher, session.Device.ID, nil)
		logger.Info("sending telemetry through rabbitmq", zap.String("exchange", c.String("telemetry-exchange")))
	}

	bag := simulator.NewBag(&session.Device)
	runner := simulator.NewRunner(bag, client, transport, c.Duration("interval"), c.Int64("seed"), logger).
		WithReauth(func(ctx context.Context) error {
			_, err := authenticate(ctx, client, c.String("device-code"), c.String("device-secret"), logger)
			return err
		})
	return runner.Run(ctx)
}

// authenticate retries until the service is up. Bad credentials stop immediately.
func authenticate(ctx context.Context, client *simulator.Client, code, secret string, logger *zap.Logger) (*simulator.Session, error) {
	var session *simulator.Session
	op := func() error {
		s, err := client.Authenticate(ctx, code, secret)
		if err != nil {
			var apiErr *simulator.APIError
			if errors.As(err, &apiErr) && apiErr.Status < http.StatusInternalServerError {
				return backoff.Permanent(err)
			}
			return err
		}
		session = s
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 2 * time.Minute
	notify := func(err error, wait time.Duration) {
		logger.Warn("authentication failed, retrying", zap.Error(err), zap.Duration("wait", wait))
	}

	if err := backoff.RetryNotify(op, backoff.WithContext(policy, ctx), notify); err != nil {
		return nil, fmt.Errorf("device authentication failed: %w", err)
	}
	return session, nil
}
