package app

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/xenking/roofgenius/internal/domain/analytics"
	"github.com/xenking/roofgenius/internal/domain/auth"
	"github.com/xenking/roofgenius/internal/domain/copilot"
	"github.com/xenking/roofgenius/internal/domain/download"
	"github.com/xenking/roofgenius/internal/domain/fulfillment"
	"github.com/xenking/roofgenius/internal/domain/notify"
	"github.com/xenking/roofgenius/internal/domain/roof"
	"github.com/xenking/roofgenius/internal/email"
	"github.com/xenking/roofgenius/internal/events"
	"github.com/xenking/roofgenius/internal/filestore"
	"github.com/xenking/roofgenius/internal/handler"
	"github.com/xenking/roofgenius/internal/mailinglist"
	"github.com/xenking/roofgenius/internal/storage/postgres"
	"github.com/xenking/roofgenius/internal/storage/redisstore"
	"github.com/xenking/roofgenius/internal/stripeapi"
	"github.com/xenking/roofgenius/pkg/health"
	"github.com/xenking/roofgenius/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	db := postgres.NewDB(pool)

	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck("postgres", db))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	// Repositories.
	orderRepo := postgres.NewOrderRepository(db)
	productRepo := postgres.NewProductRepository(db)
	downloadRepo := postgres.NewDownloadRepository(db)
	emailRepo := postgres.NewEmailRepository(db)
	apikeyRepo := postgres.NewAPIKeyRepository(db)

	// Analytics sink.
	var tracker analytics.Tracker = postgres.NewAnalyticsRepository(db)
	if len(cfg.Kafka.Brokers) > 0 {
		producer := events.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer func() {
			if err := producer.Close(); err != nil {
				lg.Warn("Kafka producer close failed", zap.Error(err))
			}
		}()
		tracker = producer
		lg.Info("Analytics publishing to Kafka", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	// Providers.
	if cfg.Stripe.WebhookSecret == "" {
		lg.Warn("Stripe webhook secret is not set, every webhook will be rejected")
	}
	stripeClient := stripeapi.NewClient(stripeapi.Config{
		SecretKey: cfg.Stripe.SecretKey,
		BaseURL:   cfg.Stripe.BaseURL,
		Timeout:   cfg.OutboundTimeout,
	})
	sender, err := email.NewResendSender(cfg.Email.ResendAPIKey, cfg.Email.BaseURL)
	if err != nil {
		return errors.Wrap(err, "create email sender")
	}
	files, err := filestore.New(filestore.Config{
		BaseURL: cfg.Downloads.StorageBaseURL,
		Timeout: cfg.OutboundTimeout,
	})
	if err != nil {
		return errors.Wrap(err, "create file store")
	}
	oaCfg := openai.DefaultConfig(cfg.OpenAI.APIKey)
	if cfg.OpenAI.BaseURL != "" {
		oaCfg.BaseURL = cfg.OpenAI.BaseURL
	}
	oaCfg.HTTPClient = &http.Client{Timeout: cfg.OpenAI.Timeout}
	oa := openai.NewClientWithConfig(oaCfg)

	// Copilot history.
	var history copilot.History = copilot.NoHistory{}
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = rdb.Close() }()
		history = redisstore.NewHistory(rdb, redisstore.HistoryConfig{
			MaxMessages: cfg.Redis.HistoryMax,
			TTL:         cfg.Redis.HistoryTTL,
		})
		healthSvc.AddReadinessCheck("redis", 2*time.Second, func(ctx context.Context) error {
			return redisstore.Ping(ctx, rdb)
		}, health.Optional())
	}

	// Domain services.
	fulfillSvc, err := fulfillment.NewService(fulfillment.Config{
		AsyncTimeout: cfg.OutboundTimeout,
		Meter:        m.MeterProvider().Meter("roofgenius/fulfillment"),
	}, fulfillment.Deps{
		Tx:       db,
		Orders:   orderRepo,
		Products: productRepo,
		Resolver: fulfillment.NewLineItemResolver(stripeClient, productRepo),
		Issuer: download.NewIssuer(download.IssuerConfig{
			SiteURL: cfg.SiteURL,
			TTL:     cfg.Downloads.TTL,
		}, downloadRepo),
		Notifier: notify.NewDispatcher(cfg.Email.From, emailRepo, emailRepo, sender),
		Tracker:  tracker,
	})
	if err != nil {
		return errors.Wrap(err, "create fulfillment service")
	}

	h := handler.New(handler.Config{SiteURL: cfg.SiteURL}, handler.Deps{
		Verifier:  stripeapi.NewVerifier(cfg.Stripe.WebhookSecret, cfg.Stripe.WebhookTolerance),
		Router:    fulfillment.NewRouter(fulfillSvc),
		Checkout:  stripeClient,
		Mailing:   mailinglist.NewClient(mailinglist.Config{APIKey: cfg.ConvertKit.APIKey, FormID: cfg.ConvertKit.FormID, BaseURL: cfg.ConvertKit.BaseURL, Timeout: cfg.OutboundTimeout}),
		Orders:    orderRepo,
		Products:  productRepo,
		Downloads: download.NewService(cfg.SiteURL, downloadRepo, productRepo),
		Files:     files,
		Keys:      auth.NewAuthenticator(apikeyRepo, []byte(cfg.APIKeyPepper)),
		Analyzer:  roof.NewAnalyzer(roof.AnalyzerConfig{Model: cfg.OpenAI.VisionModel}, oa),
		Assistant: copilot.NewService(copilot.Config{Model: cfg.OpenAI.ChatModel}, oa, history, orderRepo, tracker),
		Tracker:   tracker,
	})

	// Mux: health endpoints + API routes on one server.
	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("GET /readyz", healthSvc.ReadyEndpoint)
	h.Register(mux)

	instrument, err := httpmiddleware.Instrument(m.TracerProvider(), m.MeterProvider(), handler.Route(mux))
	if err != nil {
		return errors.Wrap(err, "create http instrumentation")
	}

	var maintenance atomic.Bool
	maintenance.Store(cfg.Maintenance)
	if cfg.Maintenance {
		lg.Warn("Maintenance mode enabled")
	}

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Recovery(),
			instrument,
			httpmiddleware.LogRequests("/livez", "/readyz"),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins: cfg.CORS.Origins,
				AllowHeaders: []string{"Content-Type", "Idempotency-Key", "X-API-Key"},
				MaxAge:       86400,
			}),
			httpmiddleware.Maintenance(maintenance.Load, "/livez", "/readyz"),
			httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
				Skip:   func(r *http.Request) bool { return r.URL.Path == "/api/webhook" },
			}),
		),
	}

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		// Confirmation emails and analytics still in flight.
		fulfillSvc.Wait()
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
