package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"feeledger_backend/internals/configs"
)

var (
	DB  *gorm.DB
	RDB *redis.Client
)

func ConnectDB(cfg configs.AppConfig) {
	log.Println("[INFO] connecting to PostgreSQL...")

	// statement_timeout bounds every query, including the fee ledger transactions
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s&application_name=feeledger&options=-c statement_timeout=%d",
		cfg.DBUser,
		cfg.DBPassword,
		cfg.DBHost,
		cfg.DBPort,
		cfg.DBName,
		cfg.DBSSLMode,
		statementTimeoutMillis(cfg.TxTimeout),
	)

	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true, // PgBouncer transaction pooling
	}), &gorm.Config{
		Logger: configs.NewGormLogger(),
	})
	if err != nil {
		log.Fatalf("[FATAL] database connection failed: %v", err)
	}
	DB = db
	log.Println("[INFO] DB connected.")
}

func statementTimeoutMillis(d time.Duration) int64 {
	if d <= 0 {
		return 3000
	}
	return d.Milliseconds()
}

func TunePool() {
	sqlDB, err := DB.DB()
	if err != nil {
		log.Printf("[WARN] pool tune err: %v", err)
		return
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxIdleTime(60 * time.Second)
	sqlDB.SetConnMaxLifetime(10 * time.Minute)
}

func WarmUpQueries() {
	go func() {
		time.Sleep(500 * time.Millisecond)
		if err := Ping(); err != nil {
			log.Printf("[WARN] warm-up ping err: %v", err)
		}
	}()
}

func Ping() error {
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// ConnectRedis leaves RDB nil when REDIS_ADDR is empty or unreachable; callers
// must treat the cache as optional.
func ConnectRedis(cfg configs.AppConfig) {
	if cfg.RedisAddr == "" {
		log.Println("[WARN] REDIS_ADDR not set, report cache disabled")
		return
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		log.Printf("[ERROR] redis unreachable, report cache disabled: %v", err)
		_ = client.Close()
		return
	}

	RDB = client
	log.Println("[INFO] redis connected.")
}

func Close() {
	if DB != nil {
		if sqlDB, err := DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	if RDB != nil {
		_ = RDB.Close()
	}
}
