package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"
	"github.com/septivank/smartbag-service/internal/auth"
	"github.com/septivank/smartbag-service/internal/config"
	"github.com/septivank/smartbag-service/internal/db"
	"github.com/septivank/smartbag-service/internal/device"
	"github.com/septivank/smartbag-service/internal/logging"
	"github.com/septivank/smartbag-service/internal/mq"
	"github.com/septivank/smartbag-service/internal/repository"
	"github.com/septivank/smartbag-service/internal/service"
	"github.com/septivank/smartbag-service/internal/validator"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "smartbag-seeder",
		Usage: "manufacture unclaimed bags and print their one-time credentials",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Required: true,
				EnvVars:  []string{"DATABASE_URL"},
			},
			&cli.IntFlag{
				Name:  "dual-zone",
				Usage: "number of dual-zone bags to create",
				Value: 3,
			},
			&cli.IntFlag{
				Name:  "heating-only",
				Usage: "number of heating-only bags to create",
				Value: 2,
			},
			&cli.StringFlag{
				Name:    "code-prefix",
				Value:   "INF",
				EnvVars: []string{"DEVICE_CODE_PREFIX"},
			},
			&cli.StringFlag{
				Name:    "hardware-version",
				Value:   "v1.0",
				EnvVars: []string{"DEVICE_DEFAULT_HARDWARE_VERSION"},
			},
			&cli.IntFlag{
				Name:    "bcrypt-cost",
				Value:   bcrypt.DefaultCost,
				EnvVars: []string{"BCRYPT_COST"},
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
	logger, err := logging.NewLogger("smartbag-seeder", "warn")
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(c.Context, time.Minute)
	defer cancel()

	pool, err := db.Connect(ctx, logger, db.Options{URL: c.String("database-url"), MaxConns: 2})
	if err != nil {
		return err
	}
	defer pool.Close()

	// seeding never authenticates, so no token issuer is needed
	registry := service.NewRegistry(
		repository.NewPostgresStore(pool),
		auth.NewSecretHasher(c.Int("bcrypt-cost")),
		nil,
		validator.NewValidator(0),
		config.DeviceConfig{
			CodePrefix:      c.String("code-prefix"),
			HardwareVersion: c.String("hardware-version"),
		},
		mq.NopPublisher{},
		logger,
		service.SystemClock,
	)

	plan := []struct {
		bag   device.BagType
		count int
	}{
		{device.BagTypeDualZone, c.Int("dual-zone")},
		{device.BagTypeHeatingOnly, c.Int("heating-only")},
	}

	var created []*service.CreatedDevice
	for _, p := range plan {
		for i := 0; i < p.count; i++ {
			d, err := registry.Create(ctx, service.CreateParams{BagType: string(p.bag)})
			if err != nil {
				logger.Error("failed to create device", zap.String("bag_type", string(p.bag)), zap.Error(err))
				return err
			}
			created = append(created, d)
		}
	}

	printCredentials(created)
	return nil
}

func printCredentials(created []*service.CreatedDevice) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetBorders(tablewriter.Border{Left: true, Right: true, Top: false, Bottom: false})
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Device Code", "Secret", "Bag Type", "Device ID"})
	for _, c := range created {
		table.Append([]string{c.Device.DeviceCode, c.Secret, string(c.Device.BagType), c.Device.ID.String()})
	}
	table.Render()

	fmt.Printf("\n%d devices created. Secrets are not stored in plain text; save them now.\n", len(created))
}
