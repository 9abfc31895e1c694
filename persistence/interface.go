// persistence/interface.go
package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/wfunc/piratepanic/config"
	"github.com/wfunc/piratepanic/models"
)

// Database 数据库接口
type Database interface {
	// SaveMatchResult stores the outcome of a match once. A second result for
	// the same match fails with ErrDuplicateResult.
	SaveMatchResult(ctx context.Context, result *models.MatchResult) error
	LoadMatchResult(ctx context.Context, matchID string) (*models.MatchResult, error)
	Close() error
}

// 错误定义
var (
	ErrRecordNotFound  = errors.New("record not found")
	ErrDuplicateResult = errors.New("match result already recorded")
)

func dsn(cfg config.PostgresConfig) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName)
}

// Open connects the store selected by cfg.Driver.
func Open(cfg config.DatabaseConfig) (Database, error) {
	switch cfg.Driver {
	case "gorm":
		return NewGormPostgreSQL(cfg.Postgres)
	case "postgres":
		return NewPostgreSQL(cfg.Postgres)
	case "memory", "":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}
