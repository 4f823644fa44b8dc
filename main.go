package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/etag"
	"github.com/gofiber/utils"
	"github.com/redis/go-redis/v9"

	"feeledger_backend/internals/configs"
	database "feeledger_backend/internals/databases"
	"feeledger_backend/internals/features/finance/payments/gateway"
	"feeledger_backend/internals/features/finance/payments/scheduler"
	"feeledger_backend/internals/features/finance/store"
	studentsvc "feeledger_backend/internals/features/students/service"
	helper "feeledger_backend/internals/helpers"
	helperAuth "feeledger_backend/internals/helpers/auth"
	middlewares "feeledger_backend/internals/middlewares"
	"feeledger_backend/internals/middlewares/logger"
	routes "feeledger_backend/internals/route"
	routeDetails "feeledger_backend/internals/route/details"
	"feeledger_backend/internals/seeds"
)

func main() {
	configs.LoadEnv()
	cfg := configs.App

	app := fiber.New(fiber.Config{
		JSONEncoder:             sonic.Marshal,
		JSONDecoder:             sonic.Unmarshal,
		ErrorHandler:            helper.ErrorHandler,
		DisableStartupMessage:   true,
		ProxyHeader:             fiber.HeaderXForwardedFor,
		EnableTrustedProxyCheck: true,
		TrustedProxies:          []string{"0.0.0.0/0"},
	})

	app.Use(compress.New(compress.Config{Level: compress.LevelDefault}))
	app.Use(etag.New())

	// request id + per-request deadline, a bit above the fee transaction timeout
	reqTimeout := cfg.TxTimeout + 5*time.Second
	app.Use(func(c *fiber.Ctx) error {
		id := c.Get("X-Request-ID")
		if id == "" {
			id = utils.UUID()
		}
		c.Set("X-Request-ID", id)
		c.Locals("reqid", id)
		ctx, cancel := context.WithTimeout(c.Context(), reqTimeout)
		defer cancel()
		c.SetUserContext(ctx)
		return c.Next()
	})

	middlewares.SetupMiddlewares(app)
	app.Use(logger.LoggerMiddleware())

	// DB connect + pool + warm-up
	database.ConnectDB(cfg)
	database.TunePool()
	database.WarmUpQueries()

	if configs.GetEnv("AUTO_MIGRATE") == "true" {
		if err := seeds.Migrate(database.DB); err != nil {
			log.Fatalf("[ERROR] auto migration: %v", err)
		}
	}
	if configs.GetEnv("RUN_SEEDS") == "true" {
		seeds.RunAllSeeds(database.DB)
	}

	database.ConnectRedis(cfg)
	var cache redis.Cmdable
	if database.RDB != nil {
		cache = database.RDB
	}

	fin := routeDetails.NewFinance(routeDetails.FinanceDeps{
		Store:   store.NewGormStore(database.DB),
		Dir:     studentsvc.NewGormDirectory(database.DB),
		Gateway: gateway.NewSnap(cfg.MidtransServerKey, cfg.MidtransUseProd),
		Redis:   cache,
		Config:  cfg,
	})

	routes.SetupRoutes(app, cfg, fin, routes.Options{
		Ping:      database.Ping,
		Blacklist: helperAuth.BlacklistChecker(database.DB, cfg.JWTSecret),
	})

	// scheduler after DB is ready
	bg, stopBg := context.WithCancel(context.Background())
	sweeperDone := scheduler.StartStalePaymentSweeper(bg, fin.Reconciler, scheduler.StaleSweepConfig{
		TTL:      cfg.PendingPaymentTTL,
		Interval: cfg.SweepInterval,
	})

	app.Server().ReadTimeout = 15 * time.Second
	app.Server().WriteTimeout = 30 * time.Second
	app.Server().IdleTimeout = 90 * time.Second

	go func() {
		log.Printf("[INFO] listening on :%s", cfg.Port)
		if err := app.Listen("0.0.0.0:" + cfg.Port); err != nil {
			log.Fatalf("[ERROR] server: %v", err)
		}
	}()

	// graceful shutdown: HTTP first, then the sweeper, then the pools
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = app.ShutdownWithContext(ctx)

	stopBg()
	select {
	case <-sweeperDone:
	case <-ctx.Done():
		log.Println("[WARN] stale payment sweeper did not stop in time")
	}

	database.Close()
}
