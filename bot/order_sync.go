package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"gitlab.com/aoterocom/AOOrderSync/api"
	"gitlab.com/aoterocom/AOOrderSync/config"
	"gitlab.com/aoterocom/AOOrderSync/database"
	"gitlab.com/aoterocom/AOOrderSync/helpers"
	"gitlab.com/aoterocom/AOOrderSync/hub"
	"gitlab.com/aoterocom/AOOrderSync/interfaces"
	"gitlab.com/aoterocom/AOOrderSync/models"
	"gitlab.com/aoterocom/AOOrderSync/providers/binance"
	"gitlab.com/aoterocom/AOOrderSync/providers/paper"
	"gitlab.com/aoterocom/AOOrderSync/services"
)

// OrderSync holds every long-lived component of the service.
type OrderSync struct {
	cfg *config.Config
	db  *database.DBService

	registry     *services.ExchangeRegistry
	queue        *services.FilledOrderQueue
	processor    *services.QueueProcessor
	monitor      *services.PendingOrderMonitor
	orderService *services.OrderService
	reconciler   *services.HistoryReconciler
	snapshots    *services.MarketSnapshotService
	hub          *hub.NotificationHub
	scheduler    *services.SyncScheduler
}

// OpenDatabase connects to the configured store.
func OpenDatabase(cfg *config.Config) (*database.DBService, error) {
	dsn := cfg.Database.Path
	if cfg.Database.Driver == "mysql" {
		dsn = database.MySQLDSN(cfg.Database.Host, cfg.Database.Port, cfg.Database.Name,
			cfg.Database.User, cfg.Database.Password)
	}
	return database.NewDBService(cfg.Database.Driver, dsn)
}

// BuildExchanges creates the adapters named by the exchanges setting.
func BuildExchanges(cfg *config.Config) ([]interfaces.ExchangeService, error) {
	var exchanges []interfaces.ExchangeService
	for _, name := range cfg.Exchanges {
		switch name {
		case "binance":
			exchanges = append(exchanges, binance.NewBinanceService(cfg.BinanceAPIKey, cfg.BinanceAPISecret))
		case "paper":
			exchanges = append(exchanges, paper.NewPaperService())
		default:
			return nil, &models.ValidationError{Field: "exchanges", Reason: fmt.Sprintf("unknown exchange %q", name)}
		}
	}
	return exchanges, nil
}

// NewRegistry puts every exchange behind its own rate limiter.
func NewRegistry(cfg *config.Config, exchanges ...interfaces.ExchangeService) *services.ExchangeRegistry {
	var clients []*services.ExchangeClient
	for _, exchange := range exchanges {
		limiter := services.NewRateLimitedClient(exchange.Name(), services.RateLimiterConfig{
			MaxConcurrent:  cfg.Limiter.MaxConcurrent,
			MinInterval:    cfg.Limiter.MinInterval,
			Reservoir:      cfg.Limiter.Reservoir,
			RefillInterval: cfg.Limiter.RefillInterval,
			RetryPolicy:    services.ExponentialBackoff(cfg.Limiter.MaxRetries, cfg.Limiter.BaseDelay),
		})
		clients = append(clients, services.NewExchangeClient(exchange, limiter))
	}
	return services.NewExchangeRegistry(clients...)
}

func NewOrderSync(cfg *config.Config, db *database.DBService, registry *services.ExchangeRegistry) *OrderSync {
	ors := &OrderSync{cfg: cfg, db: db, registry: registry}

	ors.queue = services.NewFilledOrderQueue(db, registry.Default(), cfg.QueueRetention)
	ors.hub = hub.NewNotificationHub(ors.queue, cfg.WSMessageRate)
	ors.processor = services.NewQueueProcessor(db, db, registry, ors.hub, cfg.QueueBatchSize)
	ors.monitor = services.NewPendingOrderMonitor(db, db, registry, cfg.PendingBatchSize, cfg.QueueRetention)
	ors.orderService = services.NewOrderService(registry, db, ors.monitor)
	ors.reconciler = services.NewHistoryReconciler(registry, db, cfg.HistoryMaxWindow)
	ors.snapshots = services.NewMarketSnapshotService(registry, cfg.SnapshotSymbols, ors.hub)

	ors.scheduler = services.NewSyncScheduler(
		services.Trigger{Name: "snapshot", Interval: cfg.SnapshotInterval, Run: ors.snapshots.PublishOnce},
		services.Trigger{Name: "filled-orders", Interval: cfg.QueueInterval, Run: ors.processor.ProcessOnce},
		services.Trigger{Name: "pending-orders", Interval: cfg.PendingInterval, Run: ors.monitor.CheckOnce},
		services.Trigger{Name: "cleanup", Interval: cfg.CleanupInterval, Run: ors.cleanup},
	)
	return ors
}

func (ors *OrderSync) cleanup(ctx context.Context) error {
	return errors.Join(ors.queue.PurgeExpired(ctx), ors.monitor.PurgeExpired(ctx))
}

func (ors *OrderSync) Router() http.Handler {
	return api.NewRouter(api.Dependencies{
		History:   ors.reconciler,
		Orders:    ors.orderService,
		Store:     ors.db,
		Queue:     ors.queue,
		Configs:   ors.hub,
		WebSocket: ors.hub,
		Exchange:  ors.registry.Default(),
	})
}

// Serve runs the scheduler and the HTTP surface until SIGINT or SIGTERM.
func (ors *OrderSync) Serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := &http.Server{Addr: ors.cfg.HTTPAddress, Handler: ors.Router()}
	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	ors.scheduler.Start(ctx)
	helpers.Logger.Infoln(fmt.Sprintf("🖖🏻 Order sync listening on %s", ors.cfg.HTTPAddress))

	var runErr error
	select {
	case <-ctx.Done():
		helpers.Logger.Infoln("shutting down")
	case runErr = <-serverErr:
		helpers.Logger.Errorln("http server failed: " + runErr.Error())
	}

	ors.scheduler.Stop(ors.cfg.ShutdownDrain)
	ors.hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ors.cfg.ShutdownDrain)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		runErr = errors.Join(runErr, err)
	}
	return runErr
}

// HistoryRange resolves the sync-history flags. An explicit --from wins over
// --months; --to defaults to now.
func HistoryRange(from string, to string, months int, now time.Time) (time.Time, time.Time, error) {
	end := now
	if to != "" {
		parsed, err := time.Parse(time.RFC3339, to)
		if err != nil {
			return time.Time{}, time.Time{}, &models.ValidationError{Field: "to", Reason: "must be RFC3339", Err: err}
		}
		end = parsed
	}
	if from != "" {
		start, err := time.Parse(time.RFC3339, from)
		if err != nil {
			return time.Time{}, time.Time{}, &models.ValidationError{Field: "from", Reason: "must be RFC3339", Err: err}
		}
		return start, end, nil
	}
	if months < 1 {
		return time.Time{}, time.Time{}, &models.ValidationError{Field: "months", Reason: "must be at least 1"}
	}
	return end.AddDate(0, -months, 0), end, nil
}

// NormalizeSymbols rewrites stored orders whose symbol is not in canonical form.
// It returns how many orders were rewritten.
func NormalizeSymbols(ctx context.Context, db *database.DBService) (int, error) {
	orders, err := db.FindOrders(ctx, "", "")
	if err != nil {
		return 0, err
	}

	var errs []error
	rewritten := 0
	for _, order := range orders {
		symbol := helpers.NormalizeSymbol(order.Symbol)
		if symbol == order.Symbol {
			continue
		}
		replacement := order
		replacement.Symbol = symbol
		if err := db.ReplaceOrder(ctx, order, replacement); err != nil {
			errs = append(errs, fmt.Errorf("order %s/%d: %w", order.Exchange, order.OrderID, err))
			continue
		}
		rewritten++
	}
	return rewritten, errors.Join(errs...)
}

// Commands is the CLI surface: serve, sync-history and normalize-symbols.
func Commands() []*cli.Command {
	return []*cli.Command{
		{
			Name:   "serve",
			Usage:  "run the scheduler, the websocket hub and the HTTP API",
			Action: serve,
		},
		{
			Name:  "sync-history",
			Usage: "reconcile and store the order history of a symbol",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "exchange", Usage: "exchange name, defaults to the first configured"},
				&cli.StringFlag{Name: "symbol", Required: true},
				&cli.IntFlag{Name: "months", Value: 3, Usage: "months back from --to"},
				&cli.StringFlag{Name: "from", Usage: "RFC3339 start, overrides --months"},
				&cli.StringFlag{Name: "to", Usage: "RFC3339 end, defaults to now"},
			},
			Action: syncHistory,
		},
		{
			Name:   "normalize-symbols",
			Usage:  "rewrite stored orders to canonical symbols",
			Action: normalizeSymbols,
		},
	}
}

// setup loads configuration, the logger and the store. The returned function
// releases them.
func setup(c *cli.Context) (*config.Config, *database.DBService, func(), error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, nil, nil, err
	}
	logCloser, err := helpers.ConfigureLogger(helpers.LoggerConfig{
		LogFile:        cfg.LogFile,
		Level:          cfg.LogLevel,
		TelegramOutput: cfg.TelegramOutput,
		TelegramToken:  cfg.TelegramToken,
		TelegramChatID: cfg.TelegramChatID,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	db, err := OpenDatabase(cfg)
	if err != nil {
		_ = logCloser.Close()
		return nil, nil, nil, err
	}
	release := func() {
		if err := db.Close(); err != nil {
			helpers.Logger.Errorln("closing database: " + err.Error())
		}
		_ = logCloser.Close()
	}
	return cfg, db, release, nil
}

func newOrderSync(c *cli.Context) (*OrderSync, func(), error) {
	cfg, db, release, err := setup(c)
	if err != nil {
		return nil, nil, err
	}
	exchanges, err := BuildExchanges(cfg)
	if err != nil {
		release()
		return nil, nil, err
	}
	return NewOrderSync(cfg, db, NewRegistry(cfg, exchanges...)), release, nil
}

func serve(c *cli.Context) error {
	ors, release, err := newOrderSync(c)
	if err != nil {
		return err
	}
	defer release()
	return ors.Serve(c.Context)
}

func syncHistory(c *cli.Context) error {
	ors, release, err := newOrderSync(c)
	if err != nil {
		return err
	}
	defer release()

	start, end, err := HistoryRange(c.String("from"), c.String("to"), c.Int("months"), time.Now())
	if err != nil {
		return err
	}
	exchange := c.String("exchange")
	if exchange == "" {
		exchange = ors.registry.Default()
	}
	stored, err := ors.reconciler.Sync(c.Context, exchange, helpers.NormalizeSymbol(c.String("symbol")), start, end)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "stored %d orders\n", stored)
	return nil
}

func normalizeSymbols(c *cli.Context) error {
	_, db, release, err := setup(c)
	if err != nil {
		return err
	}
	defer release()

	rewritten, err := NormalizeSymbols(c.Context, db)
	fmt.Fprintf(c.App.Writer, "rewrote %d orders\n", rewritten)
	return err
}
