package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/elastic/go-elasticsearch/v9"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/bloombox/backend/internal/cart"
	"github.com/bloombox/backend/internal/catalog"
	"github.com/bloombox/backend/internal/checkout"
	"github.com/bloombox/backend/internal/events"
	"github.com/bloombox/backend/internal/httpserver"
	"github.com/bloombox/backend/internal/models"
	"github.com/bloombox/backend/internal/notify"
	"github.com/bloombox/backend/internal/orders"
	"github.com/bloombox/backend/internal/otp"
	"github.com/bloombox/backend/internal/payment"
	"github.com/bloombox/backend/internal/pricing"
	"github.com/bloombox/backend/internal/repo"
	"github.com/bloombox/backend/internal/scheduler"
	"github.com/bloombox/backend/internal/search"
	"github.com/bloombox/backend/internal/worker"
	"github.com/bloombox/backend/pkg/cache"
	"github.com/bloombox/backend/pkg/config"
	"github.com/bloombox/backend/pkg/db"
	"github.com/bloombox/backend/pkg/logging"
	"github.com/bloombox/backend/pkg/middleware/csrf"
	loggingmw "github.com/bloombox/backend/pkg/middleware/logging"
	"github.com/bloombox/backend/pkg/tokens"
)

func main() {
	cfg := config.Load()
	log := logging.New(cfg.LogLevel).With("service", cfg.ServiceName)

	config.MustNonEmptyBytes(cfg.JWTAccessSecret, "JWT_SECRET")
	config.MustOneOf(cfg.DBDriver, "DB_DRIVER", "postgres", "sqlite")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server_exit", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	gdb, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(gdb); err != nil {
			log.Error("db_close_error", "error", err)
		}
	}()
	if err := repo.Migrate(ctx, gdb); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	st := repo.New(gdb)

	kv := cache.NewMemoryCache(cfg.ServiceName)
	if cfg.RedisAddr != "" {
		kv = cache.NewRedisCache(cfg.RedisAddr, cfg.ServiceName)
		if err := cache.Ping(ctx, kv); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	defer cache.Close(kv)

	var publisher events.Publisher = events.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		kp, err := events.NewKafkaPublisher(cfg.KafkaBrokers)
		if err != nil {
			return fmt.Errorf("kafka: %w", err)
		}
		defer kp.Close()
		publisher = kp
	}

	var es *elasticsearch.Client
	if cfg.ESURL != "" {
		es, err = search.NewClient(ctx, cfg.ESURL, cfg.ESUser, cfg.ESPassword)
		if err != nil {
			log.Warn("elasticsearch_unavailable", "reason", "falling back to database search", "error", err)
			es = nil
		}
	}
	searchSvc := search.NewService(es, cfg.ESIndex, st, log)

	bg := worker.NewExecutor(log, cfg.Workers, cfg.WorkerBuffer, 30*time.Second)
	defer bg.Close()

	dispatcher, queues := buildNotifier(cfg, publisher, log)

	checkoutSvc := checkout.NewService(st, pricing.NewEngine(st, st), bg,
		checkout.Hook{Name: "notify_order_placed", Run: func(ctx context.Context, o models.Order) error {
			return notify.Failure(dispatcher.OrderPlaced(ctx, o))
		}},
		checkout.Hook{Name: "publish_order_created", Run: func(ctx context.Context, o models.Order) error {
			return events.PublishOrderCreated(ctx, publisher, o)
		}},
		checkout.Hook{Name: "reindex_sold_products", Run: func(ctx context.Context, o models.Order) error {
			return searchSvc.Reindex(ctx, lo.Map(o.Items, func(i models.OrderItem, _ int) uuid.UUID { return i.ProductID }))
		}},
	)

	ordersSvc := orders.NewService(st, bg,
		orders.Hook{Name: "notify_status_changed", Run: func(ctx context.Context, c orders.Change) error {
			return notify.Failure(dispatcher.StatusChanged(ctx, c))
		}},
		orders.Hook{Name: "publish_status_changed", Run: func(ctx context.Context, c orders.Change) error {
			return events.PublishStatusChanged(ctx, publisher, c)
		}},
	)

	sched := scheduler.New(st, ordersSvc, cfg.SchedulerInterval, log)
	if cfg.RedisAddr != "" {
		sched.Locker = scheduler.NewCacheLocker(kv)
	}

	otpSvc := otp.NewService(kv, st, dispatcher, cfg.JWTAccessSecret, cfg.DefaultCountryCode)
	otpSvc.TokenTTL = cfg.AccessTokenTTL

	paymentSvc := payment.NewService(st,
		payment.NewClient(cfg.PaymentBaseURL, cfg.PaymentKeyID, cfg.PaymentSecret),
		cfg.PaymentCurrency, cfg.PaymentKeyID, cfg.PaymentSecret)

	e := echo.New()
	e.HideBanner = true
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover(), middleware.RequestID(), loggingmw.RequestLogger(log))
	e.Use(csrf.Middleware(csrf.Config{SessionCookie: tokens.AccessCookie}))

	httpserver.Register(e, &httpserver.Deps{
		Catalog:   &httpserver.CatalogHTTP{Svc: catalog.NewService(st, searchSvc), Search: searchSvc},
		Cart:      &httpserver.CartHTTP{Svc: cart.NewService(st), Addresses: cart.NewAddresses(st)},
		Checkout:  &httpserver.CheckoutHTTP{Svc: checkoutSvc},
		Orders:    &httpserver.OrdersHTTP{Svc: ordersSvc},
		Payment:   &httpserver.PaymentHTTP{Svc: paymentSvc},
		Auth:      &httpserver.AuthHTTP{OTP: otpSvc},
		Admin:     &httpserver.AdminHTTP{Scheduler: sched, Queues: queues, Executor: bg},
		JWTSecret: cfg.JWTAccessSecret,
		Ready: func(ctx context.Context) error {
			sqlDB, err := gdb.DB()
			if err != nil {
				return err
			}
			if err := sqlDB.PingContext(ctx); err != nil {
				return fmt.Errorf("db: %w", err)
			}
			return cache.Ping(ctx, kv)
		},
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http_listen", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if cfg.SchedulerEnabled {
		g.Go(func() error {
			sched.Run(gctx)
			return nil
		})
	}
	for _, q := range queues {
		g.Go(func() error {
			q.Run(gctx)
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()

	flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	flushNotifications(flushCtx, bg, queues, log)
	return err
}

// flushNotifications waits for in-flight background hooks and then gives
// every queue one last delivery pass, since the consumers have stopped.
func flushNotifications(ctx context.Context, bg *worker.Executor, queues []*notify.Queue, log *slog.Logger) {
	bg.Close()
	for _, q := range queues {
		if n := q.Drain(ctx); n > 0 {
			log.Info("queue_flushed", "queue", q.Name, "attempted", n, "pending", q.Len())
		}
	}
}

func openDB(ctx context.Context, cfg config.Config) (*gorm.DB, error) {
	if cfg.DBDriver == "sqlite" {
		return db.OpenSQLite(ctx, cfg.DatabaseURL)
	}
	config.MustNonEmpty(cfg.DatabaseURL, "DATABASE_URL")
	return db.Open(ctx, cfg.DatabaseURL)
}

// buildNotifier wires whichever channels are configured. A message a queue
// gives up on is published as a notification_dropped event.
func buildNotifier(cfg config.Config, publisher events.Publisher, log *slog.Logger) (*notify.Dispatcher, []*notify.Queue) {
	var (
		queues   []*notify.Queue
		smsQueue *notify.Queue
		waRetry  *notify.Queue
		wa       notify.Sender
		mailer   notify.Mailer
	)

	onDrop := func(ctx context.Context, m notify.QueuedMessage) {
		if err := events.PublishNotificationDropped(ctx, publisher, m); err != nil {
			log.Warn("publish_dropped_failed", "message_id", m.ID, "error", err)
		}
	}

	twilio := cfg.TwilioAccountSID != "" && cfg.TwilioAuthToken != ""
	if twilio && cfg.TwilioFrom != "" {
		smsQueue = notify.NewQueue("sms", notify.ChannelSMS,
			notify.NewTwilioSMS(cfg.TwilioBaseURL, cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFrom), log)
		smsQueue.OnDrop = onDrop
		queues = append(queues, smsQueue)
	} else {
		log.Warn("sms_disabled", "reason", "twilio credentials not set")
	}
	if twilio && cfg.TwilioWhatsAppFrom != "" {
		client := notify.NewTwilioWhatsApp(cfg.TwilioBaseURL, cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioWhatsAppFrom)
		wa = client
		waRetry = notify.NewQueue("whatsapp_retry", notify.ChannelWhatsApp, client, log)
		waRetry.OnDrop = onDrop
		queues = append(queues, waRetry)
	}
	if cfg.SMTPHost != "" {
		mailer = notify.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.SMTPFrom)
	}

	return notify.NewDispatcher(log, smsQueue, wa, waRetry, mailer, cfg.AdminPhone, cfg.DefaultCountryCode), queues
}
