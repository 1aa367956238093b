package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/nem-pay/conciliare/internal/botlink"
	"github.com/nem-pay/conciliare/internal/chain"
	"github.com/nem-pay/conciliare/internal/config"
	"github.com/nem-pay/conciliare/internal/forwarder"
	"github.com/nem-pay/conciliare/internal/http_api"
	"github.com/nem-pay/conciliare/internal/models"
	"github.com/nem-pay/conciliare/internal/notifier"
	"github.com/nem-pay/conciliare/internal/reconciler"
	"github.com/nem-pay/conciliare/internal/repository"
	"github.com/nem-pay/conciliare/pkg/logger"
)

func main() {
	app := &cli.App{
		Name:  "conciliare",
		Usage: "Conciliare reconciles on-chain payments against invoices",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "postgres-user", Aliases: []string{"u"}, Usage: "Postgres user"},
			&cli.StringFlag{Name: "postgres-password", Aliases: []string{"p"}, Usage: "Postgres password"},
			&cli.StringFlag{Name: "postgres-host", Aliases: []string{"t"}, Usage: "Postgres host"},
			&cli.IntFlag{Name: "postgres-port", Aliases: []string{"P"}, Usage: "Postgres port"},
			&cli.StringFlag{Name: "postgres-db", Aliases: []string{"d"}, Usage: "Postgres database name"},
			&cli.StringFlag{Name: "gateway-url", Aliases: []string{"g"}, Usage: "Blockchain gateway URL"},
			&cli.StringFlag{Name: "bot-url", Aliases: []string{"b"}, Usage: "Payment bot websocket URL"},
			&cli.StringFlag{Name: "invoice-prefix", Aliases: []string{"i"}, Usage: "Invoice number prefix"},
			&cli.StringFlag{Name: "mosaic", Aliases: []string{"m"}, Usage: "Mosaic namespace:name invoices are denominated in"},
			&cli.BoolFlag{Name: "development", Aliases: []string{"D"}, Usage: "Development mode"},
		},
		Action: func(c *cli.Context) error {
			return run(c)
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}

func run(c *cli.Context) error {
	// Load configuration from environment variables
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %v", err)
	}

	// Override with flags if set
	if c.IsSet("postgres-user") {
		cfg.PostgresUser = c.String("postgres-user")
	}
	if c.IsSet("postgres-password") {
		cfg.PostgresPassword = c.String("postgres-password")
	}
	if c.IsSet("postgres-host") {
		cfg.PostgresHost = c.String("postgres-host")
	}
	if c.IsSet("postgres-port") {
		cfg.PostgresPort = c.Int("postgres-port")
	}
	if c.IsSet("postgres-db") {
		cfg.PostgresDB = c.String("postgres-db")
	}
	if c.IsSet("gateway-url") {
		cfg.GatewayURL = c.String("gateway-url")
	}
	if c.IsSet("bot-url") {
		cfg.BotURL = c.String("bot-url")
	}
	if c.IsSet("invoice-prefix") {
		cfg.InvoicePrefix = c.String("invoice-prefix")
	}
	if c.IsSet("mosaic") {
		cfg.MosaicFQN = c.String("mosaic")
	}
	if c.IsSet("development") {
		cfg.Development = c.Bool("development")
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Development)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %v", err)
	}

	// Initialize database
	db, err := repository.NewPostgresDB(cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresDB, cfg.PostgresHost, cfg.PostgresPort, cfg.InvoicePrefix, log)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %v", err)
	}

	// Initialize chain gateway client
	gateway := chain.NewClient(cfg.GatewayURL, cfg.PageSize, log)

	// Initialize notification hub and operator notifier
	hub := notifier.NewHub(log)
	var telegram *notifier.TelegramNotifier
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		telegram, err = notifier.NewTelegramNotifier(log, cfg.TelegramBotToken, cfg.TelegramChatID)
		if err != nil {
			return fmt.Errorf("failed to initialize telegram notifier: %v", err)
		}
	}
	notificator := notifier.NewNotificator(log, hub, telegram)

	// Initialize the bot event forwarder and reconciliation engine
	fwd := forwarder.NewForwarder(db, notificator, log)
	engine := reconciler.NewReconciler(db, gateway, notificator, log, cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize the payment bot link
	var link *botlink.BotLink
	if cfg.BotURL != "" {
		link = botlink.NewBotLink(cfg.BotURL, fwd, log)
		go link.Run(ctx)
	}

	// Wire watch_invoice requests: register the channel and open a bot channel
	hub.SetWatchHandler(func(ctx context.Context, number, channelID string) error {
		invoice, err := db.GetInvoice(number)
		if err != nil {
			return err
		}
		if invoice == nil {
			return fmt.Errorf("invoice %s not found", number)
		}
		hub.RegisterInvoiceChannel(invoice.Number, channelID)
		if err := db.AddInvoiceChannel(invoice.Number, channelID); err != nil {
			log.Error("Failed to persist invoice channel ", "error ", err)
		}
		if link != nil {
			return link.OpenChannel(ctx, &models.OpenChannelRequest{
				Asset:       cfg.MosaicFQN,
				Message:     invoice.Number,
				Sender:      invoice.Payer,
				Recipient:   invoice.Recipient,
				Amount:      invoice.Amount,
				MaxDuration: int64(cfg.ChannelMaxDuration / time.Second),
			})
		}
		return nil
	})

	apiServer := http_api.NewHTTPServer(db, engine, fwd, hub, cfg.APIPort, log)

	go apiServer.Start()
	// Start the reconciliation loop
	go engine.Start(ctx)

	<-ctx.Done()
	return apiServer.Shutdown()
}
