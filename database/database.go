package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"fleetserver/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	DefaultBrokerAddr = ":5555"
	DefaultHTTPAddr   = ":8080"
)

// LoadConfig loads the configuration from a JSON file, then applies
// environment overrides. A missing file is not an error.
func LoadConfig(filename string) (models.Config, error) {
	config := models.Config{
		BrokerAddr: DefaultBrokerAddr,
		HTTPAddr:   DefaultHTTPAddr,
		DBSSLMode:  "disable",
	}
	if filename != "" {
		configFile, err := os.Open(filename)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return config, err
		default:
			defer configFile.Close()
			jsonParser := json.NewDecoder(configFile)
			if err := jsonParser.Decode(&config); err != nil {
				return config, fmt.Errorf("%s: %w", filename, err)
			}
		}
	}
	if err := applyEnv(&config); err != nil {
		return config, err
	}
	return config, nil
}

func applyEnv(config *models.Config) error {
	strs := map[string]*string{
		"BROKER_ADDR":     &config.BrokerAddr,
		"HTTP_ADDR":       &config.HTTPAddr,
		"DB_HOST":         &config.DBHost,
		"DB_USER":         &config.DBUser,
		"DB_PASSWORD":     &config.DBPassword,
		"DB_NAME":         &config.DBName,
		"DB_SSLMODE":      &config.DBSSLMode,
		"REDIS_ADDR":      &config.RedisAddr,
		"REDIS_PASSWORD":  &config.RedisPassword,
		"JWT_SECRET":      &config.JWTSecret,
		"AUDIT_RETENTION": &config.AuditRetention,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	if v, ok := os.LookupEnv("REDIS_DB"); ok && v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("REDIS_DB: %w", err)
		}
		config.RedisDB = db
	}
	if v, ok := os.LookupEnv("CORS_ORIGINS"); ok {
		config.CORSOrigins = nil
		for _, origin := range strings.Split(v, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				config.CORSOrigins = append(config.CORSOrigins, origin)
			}
		}
	}
	return nil
}

func InitPostgreSQL(config models.Config, logger *zap.Logger) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s dbname=%s password=%s sslmode=%s",
		config.DBHost, config.DBUser, config.DBName, config.DBPassword, config.DBSSLMode)

	const maxRetries = 3
	const retryInterval = 5 * time.Second
	var err error
	for i := 0; i <= maxRetries; i++ {
		var gormDB *gorm.DB
		gormDB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
		if err == nil {
			return gormDB, nil
		}
		logger.Error("データベース接続のリトライ", zap.Int("retry", i), zap.Error(err))
		if i < maxRetries {
			time.Sleep(retryInterval)
		}
	}
	return nil, fmt.Errorf("データベース接続に失敗しました: %w", err)
}

// AutoMigrate creates or updates the audit tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&models.RoomRecord{})
}

func InitRedis(config models.Config, logger *zap.Logger) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     config.RedisAddr,
		Password: config.RedisPassword,
		DB:       config.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		logger.Error("Failed to connect to Redis", zap.Error(err))
		rdb.Close()
		return nil, err
	}

	logger.Info("Connected to Redis", zap.String("addr", config.RedisAddr))
	return rdb, nil
}
