package main

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/romanzh1/dsa-revision-tracker/internal/handler"
	"github.com/romanzh1/dsa-revision-tracker/internal/repository"
	"github.com/romanzh1/dsa-revision-tracker/internal/service"
	"github.com/romanzh1/dsa-revision-tracker/pkg/utils"
)

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "load .env file: %v\n", err)
	}

	defaultTimezone := os.Getenv("DEFAULT_TIMEZONE")
	if defaultTimezone == "" {
		defaultTimezone = "UTC"
	}

	location, err := utils.LoadLocation(defaultTimezone)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load timezone %q, using UTC: %v\n", defaultTimezone, err)
		defaultTimezone = "UTC"
		location = time.UTC
	}

	config := zap.NewDevelopmentConfig()
	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.In(location).Format("2006-01-02T15:04:05-07:00"))
	}

	logger, err := config.Build()
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer logger.Sync()

	zap.ReplaceGlobals(logger)
	zap.L().Info("logger initialized", zap.String("timezone", defaultTimezone))

	telegramToken := os.Getenv("TELEGRAM_BOT_TOKEN")
	postgresHost := os.Getenv("POSTGRES_HOST")
	postgresPort := os.Getenv("POSTGRES_PORT")
	postgresUser := os.Getenv("POSTGRES_USER")
	postgresPassword := os.Getenv("POSTGRES_PASSWORD")
	postgresDB := os.Getenv("POSTGRES_DB")
	// empty means the migrations embedded in the binary
	migrationsDir := os.Getenv("MIGRATIONS_DIR")

	if telegramToken == "" || postgresHost == "" {
		zap.S().Fatal("missing required environment variables")
	}

	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		postgresHost, postgresPort, postgresUser, postgresPassword, postgresDB)

	repo, err := repository.NewDB(dsn, 10, 20)
	if err != nil {
		zap.L().Error("connect to PostgreSQL", zap.Error(err), zap.String("host", postgresHost))
		os.Exit(1)
	}
	defer repo.Close()

	if err = repo.Up(migrationsDir); err != nil {
		zap.L().Error("run migrations", zap.Error(err))
		os.Exit(1)
	}

	svc := service.NewService(repo, defaultTimezone)

	bot, err := handler.NewTelegramHandler(telegramToken, svc, location)
	if err != nil {
		zap.L().Error("create telegram handler", zap.Error(err))
		os.Exit(1)
	}

	bot.Start()
}
