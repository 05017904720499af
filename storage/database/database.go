package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"DeadOrNot/config"
	dbotel "DeadOrNot/pkg/database"
	"DeadOrNot/pkg/logger"
)

var (
	db     *gorm.DB
	dbOnce sync.Once
	dbErr  error
)

// Init 按 LEDGER_DRIVER 打开 postgres 或 sqlite
func Init() error {
	dbOnce.Do(func() {
		cfg := config.Cfg

		var (
			dialector gorm.Dialector
			system    string
		)
		switch cfg.LedgerDriver {
		case "postgres":
			dialector = postgres.Open(cfg.GetDSN())
			system = "postgresql"
		case "sqlite":
			if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					dbErr = fmt.Errorf("failed to create sqlite directory: %w", err)
					return
				}
			}
			dialector = sqlite.Open(cfg.SQLitePath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
			system = "sqlite"
		default:
			dbErr = fmt.Errorf("ledger driver %q does not use a database", cfg.LedgerDriver)
			return
		}

		gormDB, err := Open(dialector, system)
		if err != nil {
			dbErr = err
			logger.Logger.Error("Failed to open database", zap.String("driver", cfg.LedgerDriver), zap.Error(err))
			return
		}

		sqlDB, err := gormDB.DB()
		if err != nil {
			dbErr = err
			return
		}
		configureConnectionPool(sqlDB, system)

		if err := sqlDB.Ping(); err != nil {
			dbErr = err
			logger.Logger.Error("Failed to ping database", zap.Error(err))
			return
		}

		if err := Migrate(gormDB); err != nil {
			dbErr = fmt.Errorf("failed to run database migration: %w", err)
			return
		}

		db = gormDB
		logger.Logger.Info("Database initialized successfully", zap.String("driver", cfg.LedgerDriver))
	})

	return dbErr
}

// Open 打开连接并挂载追踪插件
func Open(dialector gorm.Dialector, system string) (*gorm.DB, error) {
	gormDB, err := gorm.Open(dialector, &gorm.Config{
		Logger:                                   newLogger(),
		DisableForeignKeyConstraintWhenMigrating: true,
		SkipDefaultTransaction:                   true,
	})
	if err != nil {
		return nil, err
	}

	if err := gormDB.Use(dbotel.NewOTELPlugin(config.Cfg.ServiceName, system)); err != nil {
		return nil, fmt.Errorf("failed to register otel plugin: %w", err)
	}
	return gormDB, nil
}

func DB() *gorm.DB {
	return db
}

func Close(ctx context.Context) error {
	if db == nil {
		return nil
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		done <- sqlDB.Close()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

func configureConnectionPool(sqlDB *sql.DB, system string) {
	if system == "sqlite" {
		// 单文件数据库只允许一个写连接
		sqlDB.SetMaxOpenConns(1)
		return
	}

	cfg := config.Cfg
	sqlDB.SetMaxIdleConns(cfg.PostgreSQLMaxIdle)
	sqlDB.SetMaxOpenConns(cfg.PostgreSQLMaxOpen)
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)
	sqlDB.SetConnMaxLifetime(2 * time.Hour)
}

func newLogger() gormlogger.Interface {
	level := gormlogger.Warn
	if config.Cfg.IsDevelopment() {
		level = gormlogger.Info
	}

	return gormlogger.New(zapWriter{}, gormlogger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  level,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}

type zapWriter struct{}

func (zapWriter) Printf(format string, args ...interface{}) {
	logger.Logger.Sugar().Infof(format, args...)
}
