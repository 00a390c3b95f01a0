package main

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"checkout/internal/config"
	"checkout/internal/handler"
	"checkout/internal/infra/cache"
	"checkout/internal/infra/db"
	infraRepo "checkout/internal/infra/repository"
	"checkout/internal/infra/shippingapi"
	"checkout/internal/infra/stockapi"
	"checkout/internal/infra/upstream"
	"checkout/internal/logging"
	"checkout/internal/metrics"
	"checkout/internal/server"
	"checkout/internal/tracing"
	"checkout/internal/usecase"
	"checkout/internal/userlock"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type uuidGenerator struct{}

func (g *uuidGenerator) NewID() string {
	return uuid.NewString()
}

func main() {
	//.envは無くてもよい（本番は環境変数）
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		panic(err)
	}

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := logging.New(logging.Config{Level: cfg.LogLevel, Env: cfg.GoEnv})
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	//トレース
	tp, err := tracing.Init(ctx, cfg.Tracing.ServiceName, cfg.GoEnv, cfg.Tracing.Endpoint)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(shutdownCtx)
	}()

	//DB接続
	gormDB, pool, err := db.Connect(ctx, db.Config{
		URL:             cfg.Postgres.DSN(),
		MaxConns:        cfg.Postgres.MaxConns,
		MinConns:        cfg.Postgres.MinConns,
		MaxConnLifetime: cfg.Postgres.MaxConnLifetime,
	})
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	//在庫API・配送API（client credentialsでトークンを付ける）
	newUpstream := func(service, baseURL, scope string) *upstream.Client {
		ts := upstream.NewTokenSource(ctx, upstream.Credentials{
			TokenURL:     cfg.Upstream.TokenURL,
			ClientID:     cfg.Upstream.ClientID,
			ClientSecret: cfg.Upstream.ClientSecret,
			Scope:        scope,
			Timeout:      cfg.Upstream.Timeout,
		})
		return upstream.New(upstream.Config{
			Service:             service,
			BaseURL:             baseURL,
			Timeout:             cfg.Upstream.Timeout,
			BreakerFailures:     cfg.Upstream.BreakerFailures,
			BreakerOpenFor:      cfg.Upstream.BreakerOpenFor,
			ReadRetryMaxElapsed: cfg.Upstream.ReadRetryMaxTime,
		}, ts, logger, m)
	}
	stock := stockapi.New(newUpstream("stock", cfg.Upstream.StockURL, cfg.Upstream.StockScope))
	shipping := shippingapi.New(newUpstream("shipping", cfg.Upstream.ShippingURL, cfg.Upstream.ShippingScope))

	//配送手段のキャッシュ（REDIS_ADDRがあるときだけ）
	var methodsCache usecase.TransportMethodCache
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = rdb.Close() }()

		if err := rdb.Ping(ctx).Err(); err != nil {
			logging.Warn(ctx, logger, "redis unavailable, continuing without cache", zap.Error(err))
		}
		methodsCache = cache.NewTransportMethodCache(rdb, cfg.Redis.TransportMethodsTTL)
	}

	//Usecase生成
	tx := infraRepo.NewTxManagerGorm(gormDB)
	locks := userlock.New()
	compensator := usecase.NewCompensator(stock, shipping, logger, m, cfg.Upstream.Timeout)

	checkoutUC := usecase.NewCheckoutUsecase(tx, stock, shipping, compensator, locks, &uuidGenerator{}, logger, m)
	cartUC := usecase.NewCartUsecase(tx, stock, locks, logger)
	shippingUC := usecase.NewShippingUsecase(shipping, cartUC, methodsCache, logger)

	//Server起動
	e := server.New(server.Options{
		Config:   cfg,
		Logger:   logger,
		Metrics:  m,
		Gatherer: prometheus.DefaultGatherer,
		Ready:    pool.Ping,
		Handlers: []server.RouteRegistrar{
			handler.NewCartHandler(cartUC),
			handler.NewOrderHandler(checkoutUC),
			handler.NewShippingHandler(shippingUC),
		},
	})

	addr := cfg.Port
	if addr != "" && addr[0] != ':' {
		addr = ":" + addr
	}

	return server.Start(ctx, addr, e, cfg.Tracing.ServiceName, logger)
}
