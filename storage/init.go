package storage

import (
	"DeadOrNot/config"
	"DeadOrNot/storage/database"
	"DeadOrNot/storage/mq"
	"DeadOrNot/storage/redis"
)

// Init 只初始化当前配置真正用到的存储
func Init() error {
	cfg := config.Cfg

	if cfg.LedgerDriver == "postgres" || cfg.LedgerDriver == "sqlite" {
		if err := database.Init(); err != nil {
			return err
		}
	}

	if cfg.NeedsRedis() {
		if err := redis.Init(); err != nil {
			return err
		}
	}

	if cfg.NotificationSink == "mq" {
		if err := mq.Init(); err != nil {
			return err
		}
	}

	return nil
}
