// persistence/gorm_postgresql.go
package persistence

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/wfunc/piratepanic/config"
	"github.com/wfunc/piratepanic/logger"
	"github.com/wfunc/piratepanic/models"
)

// GormPostgreSQL 使用GORM的PostgreSQL实现
type GormPostgreSQL struct {
	db *gorm.DB
}

// zapWriter routes GORM's slow query log into zap.
type zapWriter struct {
	log *zap.SugaredLogger
}

func (w zapWriter) Printf(format string, args ...interface{}) {
	w.log.Warnf(format, args...)
}

func NewGormPostgreSQL(cfg config.PostgresConfig) (*GormPostgreSQL, error) {
	gormLogger := gormlogger.New(
		zapWriter{log: logger.Named("gorm")},
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn(cfg)), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// 设置连接池
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&models.MatchResult{}); err != nil {
		return nil, err
	}
	return &GormPostgreSQL{db: db}, nil
}

func (p *GormPostgreSQL) SaveMatchResult(ctx context.Context, result *models.MatchResult) error {
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.MatchResult{}).Where("match_id = ?", result.MatchID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrDuplicateResult
		}
		return tx.Create(result).Error
	})
}

func (p *GormPostgreSQL) LoadMatchResult(ctx context.Context, matchID string) (*models.MatchResult, error) {
	var result models.MatchResult
	if err := p.db.WithContext(ctx).Where("match_id = ?", matchID).First(&result).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &result, nil
}

// Close 关闭数据库连接
func (p *GormPostgreSQL) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
