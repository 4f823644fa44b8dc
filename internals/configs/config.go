package configs

import (
	"context"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	gormLogger "gorm.io/gorm/logger"
	"gorm.io/gorm/utils"
)

// AppConfig is the resolved runtime configuration. Populated by LoadEnv.
type AppConfig struct {
	Port string

	DBUser     string
	DBPassword string
	DBHost     string
	DBPort     string
	DBName     string
	DBSSLMode  string

	JWTSecret string

	MidtransServerKey string
	MidtransUseProd   bool
	CheckoutSecret    string // HMAC key for checkout callback signatures
	Currency          string

	RedisAddr      string
	RedisPassword  string
	ReportCacheTTL time.Duration

	TxTimeout         time.Duration
	PendingPaymentTTL time.Duration
	SweepInterval     time.Duration
}

var (
	JWTSecret string
	App       AppConfig
)

// =======================
// ENV LOADER
// =======================
func LoadEnv() {
	if os.Getenv("RAILWAY_ENVIRONMENT") == "" {
		if err := godotenv.Load(); err != nil {
			log.Println("[WARN] .env not found, using system environment")
		} else {
			log.Println("[INFO] .env loaded")
		}
	} else {
		log.Println("[INFO] running on Railway, using system environment")
	}

	App = Load(viper.New())
	JWTSecret = App.JWTSecret

	if App.JWTSecret == "" {
		log.Println("[ERROR] JWT_SECRET is not set")
	}
	if App.CheckoutSecret == "" {
		log.Println("[ERROR] CHECKOUT_SECRET is not set, checkout signatures cannot be verified")
	}
	if App.MidtransServerKey == "" {
		log.Println("[WARN] MIDTRANS_SERVER_KEY is not set")
	}
}

// Load reads configuration from the environment through v, applying defaults.
func Load(v *viper.Viper) AppConfig {
	v.SetDefault("PORT", "3000")
	v.SetDefault("DB_SSLMODE", "require")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("MIDTRANS_USE_PROD", false)
	v.SetDefault("PAYMENT_CURRENCY", "IDR")
	v.SetDefault("REPORT_CACHE_TTL", "60s")
	v.SetDefault("FEE_TX_TIMEOUT", "5s")
	v.SetDefault("PAYMENT_PENDING_TTL", "24h")
	v.SetDefault("PAYMENT_SWEEP_INTERVAL", "15m")
	v.AutomaticEnv()

	return AppConfig{
		Port:              v.GetString("PORT"),
		DBUser:            v.GetString("DB_USER"),
		DBPassword:        v.GetString("DB_PASSWORD"),
		DBHost:            v.GetString("DB_HOST"),
		DBPort:            v.GetString("DB_PORT"),
		DBName:            v.GetString("DB_NAME"),
		DBSSLMode:         v.GetString("DB_SSLMODE"),
		JWTSecret:         v.GetString("JWT_SECRET"),
		MidtransServerKey: v.GetString("MIDTRANS_SERVER_KEY"),
		MidtransUseProd:   v.GetBool("MIDTRANS_USE_PROD"),
		CheckoutSecret:    v.GetString("CHECKOUT_SECRET"),
		Currency:          strings.ToUpper(v.GetString("PAYMENT_CURRENCY")),
		RedisAddr:         v.GetString("REDIS_ADDR"),
		RedisPassword:     v.GetString("REDIS_PASSWORD"),
		ReportCacheTTL:    v.GetDuration("REPORT_CACHE_TTL"),
		TxTimeout:         v.GetDuration("FEE_TX_TIMEOUT"),
		PendingPaymentTTL: v.GetDuration("PAYMENT_PENDING_TTL"),
		SweepInterval:     v.GetDuration("PAYMENT_SWEEP_INTERVAL"),
	}
}

func GetEnv(key string, defaultValue ...string) string {
	value, exists := os.LookupEnv(key)
	if !exists && len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return value
}

// =======================
// GORM LOGGER CUSTOM
// =======================
type GormLogger struct {
	SlowThreshold time.Duration
	LogLevel      gormLogger.LogLevel
}

func NewGormLogger() gormLogger.Interface {
	return &GormLogger{
		SlowThreshold: 200 * time.Millisecond,
		LogLevel:      gormLogger.Warn,
	}
}

func (l *GormLogger) LogMode(level gormLogger.LogLevel) gormLogger.Interface {
	cp := *l
	cp.LogLevel = level
	return &cp
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= gormLogger.Info {
		log.Printf("[INFO] "+msg, data...)
	}
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= gormLogger.Warn {
		log.Printf("[WARN] "+msg, data...)
	}
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= gormLogger.Error {
		log.Printf("[ERROR] "+msg, data...)
	}
}

func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.LogLevel <= gormLogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	sql, rows := fc()
	file := utils.FileWithLineNum()

	switch {
	case err != nil && l.LogLevel >= gormLogger.Error:
		log.Printf("[ERROR] %s | %v | %s | %d rows | %s", file, err, elapsed, rows, sql)
	case elapsed > l.SlowThreshold && l.LogLevel >= gormLogger.Warn:
		log.Printf("[SLOW SQL] %s | %s | %d rows | %s", file, elapsed, rows, sql)
	case l.LogLevel >= gormLogger.Info:
		log.Printf("[QUERY] %s | %s | %d rows | %s", file, elapsed, rows, sql)
	}
}
