package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"fleetserver/auth"     //オペレーター用トークンの発行
	"fleetserver/broker"   //部屋の管理とメッセージ中継
	"fleetserver/database" //設定、PostgreSQLとRedisの初期化
	"fleetserver/handlers" //HTTPとWebSocketの入口
	"fleetserver/utils"    //ロガーの初期化とCronジョブ
)

const shutdownTimeout = 10 * time.Second

func main() {
	// .env はあれば読み込む
	_ = godotenv.Load()

	cmd := &cli.Command{
		Name:  "fleetserver",
		Usage: "room broker for two-player fleet battles",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Value:   "config.json",
				Usage:   "path to the JSON config file",
				Sources: cli.EnvVars("FLEET_CONFIG"),
			},
			&cli.StringFlag{
				Name:  "addr",
				Usage: "TCP address for the line protocol (overrides BROKER_ADDR)",
			},
			&cli.StringFlag{
				Name:  "http-addr",
				Usage: "address for the HTTP/WebSocket gateway (overrides HTTP_ADDR)",
			},
			&cli.BoolFlag{
				Name:    "debug",
				Usage:   "development logging",
				Sources: cli.EnvVars("FLEET_DEBUG"),
			},
		},
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:  "token",
				Usage: "issue an operator token for the /admin API",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "config", Value: "config.json", Usage: "path to the JSON config file"},
					&cli.StringFlag{Name: "operator", Value: "admin", Usage: "operator name stored in the token"},
					&cli.StringFlag{Name: "ttl", Value: "24h", Usage: "token lifetime"},
				},
				Action: issueToken,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serve(ctx context.Context, cmd *cli.Command) error {
	logger, err := utils.InitLogger(cmd.Bool("debug")) // ロガーの初期化
	if err != nil {
		return err
	}
	defer logger.Sync() // ロガーのクリーンアップ

	config, err := database.LoadConfig(cmd.String("config"))
	if err != nil {
		return fmt.Errorf("設定ファイルの読み込みに失敗しました: %w", err)
	}
	if v := cmd.String("addr"); v != "" {
		config.BrokerAddr = v
	}
	if v := cmd.String("http-addr"); v != "" {
		config.HTTPAddr = v
	}
	if !cmd.Bool("debug") {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		opts   []broker.Option
		purger utils.Purger
	)
	routerConf := handlers.RouterConfig{
		JWTSecret:   []byte(config.JWTSecret),
		CORSOrigins: config.CORSOrigins,
	}

	// PostgreSQLは任意。DB_HOST が空なら監査ログなしで動かす
	if config.PostgresEnabled() {
		db, err := database.InitPostgreSQL(config, logger)
		if err != nil {
			return fmt.Errorf("PostgreSQLの初期化に失敗しました: %w", err)
		}
		if err := database.AutoMigrate(db); err != nil {
			return fmt.Errorf("マイグレーションに失敗しました: %w", err)
		}
		audit := database.NewRoomAudit(db)
		opts = append(opts, broker.WithRoomStore(audit))
		purger = audit
		routerConf.Audit = audit
	} else {
		logger.Info("DB_HOST is empty, room audit disabled")
	}

	if config.RedisEnabled() {
		rdb, err := database.InitRedis(config, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize Redis: %w", err)
		}
		defer rdb.Close()
		opts = append(opts, broker.WithPresence(database.NewPresence(rdb)))
	} else {
		logger.Info("REDIS_ADDR is empty, presence disabled")
	}

	b := broker.New(logger, opts...)

	// クーロンスケジューラのセットアップ
	c, err := utils.CronCleaner(b, purger, config.Retention(), logger)
	if err != nil {
		return err
	}
	defer c.Stop()

	if config.JWTSecret == "" {
		logger.Warn("JWT_SECRET is empty, /admin will reject every request")
	}
	srv := &http.Server{
		Addr:        config.HTTPAddr,
		Handler:     handlers.NewRouter(b, routerConf, logger),
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	httpErr := make(chan error, 1)
	go func() {
		logger.Info("HTTPサーバーを起動しました", zap.String("addr", config.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErr <- err
			stop()
		}
		close(httpErr)
	}()

	ln, err := net.Listen("tcp", config.BrokerAddr)
	if err != nil {
		stop()
		srv.Close()
		return fmt.Errorf("listen %s: %w", config.BrokerAddr, err)
	}
	serveErr := b.Serve(ctx, ln)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown", zap.Error(err))
	}
	logger.Info("ブローカーを停止しました")

	return errors.Join(serveErr, <-httpErr)
}

func issueToken(ctx context.Context, cmd *cli.Command) error {
	config, err := database.LoadConfig(cmd.String("config"))
	if err != nil {
		return err
	}
	ttl, err := time.ParseDuration(cmd.String("ttl"))
	if err != nil {
		return fmt.Errorf("ttl: %w", err)
	}
	token, err := auth.GenerateToken([]byte(config.JWTSecret), cmd.String("operator"), ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
