package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"fleetserver/database"
	"fleetserver/utils"
)

// room_records テーブルを作成・更新する
func main() {
	cmd := &cli.Command{
		Name:  "migrate",
		Usage: "create or update the room audit tables",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Value:   "config.json",
				Usage:   "path to the JSON config file",
				Sources: cli.EnvVars("FLEET_CONFIG"),
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			logger, err := utils.InitLogger(false)
			if err != nil {
				return err
			}
			defer logger.Sync()

			config, err := database.LoadConfig(cmd.String("config"))
			if err != nil {
				return fmt.Errorf("設定ファイルの読み込みに失敗しました: %w", err)
			}
			if !config.PostgresEnabled() {
				return fmt.Errorf("DB_HOST is not set")
			}
			db, err := database.InitPostgreSQL(config, logger)
			if err != nil {
				return err
			}
			if err := database.AutoMigrate(db); err != nil {
				return fmt.Errorf("マイグレーションに失敗しました: %w", err)
			}
			logger.Info("room_records table migrated successfully", zap.String("db", config.DBName))
			return nil
		},
	}

	_ = godotenv.Load()
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
