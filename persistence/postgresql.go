// persistence/postgresql.go
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"github.com/wfunc/piratepanic/config"
	"github.com/wfunc/piratepanic/models"
)

// uniqueViolation is the PostgreSQL SQLSTATE for a unique index conflict.
const uniqueViolation = "23505"

// PostgreSQL 数据库实现
type PostgreSQL struct {
	db *sql.DB
}

func NewPostgreSQL(cfg config.PostgresConfig) (*PostgreSQL, error) {
	db, err := sql.Open("postgres", dsn(cfg))
	if err != nil {
		return nil, err
	}

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := initTables(ctx, db); err != nil {
		return nil, err
	}
	return &PostgreSQL{db: db}, nil
}

// initTables creates the same table the GORM store migrates to.
func initTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
        CREATE TABLE IF NOT EXISTS match_results (
            id BIGSERIAL PRIMARY KEY,
            created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
            updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
            deleted_at TIMESTAMPTZ,
            match_id TEXT NOT NULL,
            winner_id TEXT NOT NULL,
            loser_id TEXT NOT NULL,
            winner_towers_destroyed BIGINT DEFAULT 0,
            loser_towers_destroyed BIGINT DEFAULT 0,
            duration_seconds BIGINT DEFAULT 0,
            reported_by TEXT NOT NULL
        );
        CREATE UNIQUE INDEX IF NOT EXISTS idx_match_results_match_id ON match_results(match_id);
        CREATE INDEX IF NOT EXISTS idx_match_results_winner_id ON match_results(winner_id);
        CREATE INDEX IF NOT EXISTS idx_match_results_loser_id ON match_results(loser_id);
    `)
	return err
}

func (p *PostgreSQL) SaveMatchResult(ctx context.Context, result *models.MatchResult) error {
	query := `
        INSERT INTO match_results (match_id, winner_id, loser_id, winner_towers_destroyed,
            loser_towers_destroyed, duration_seconds, reported_by)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING id, created_at, updated_at
    `
	err := p.db.QueryRowContext(ctx, query,
		result.MatchID,
		result.WinnerID,
		result.LoserID,
		result.WinnerTowersDestroyed,
		result.LoserTowersDestroyed,
		result.DurationSeconds,
		result.ReportedBy,
	).Scan(&result.ID, &result.CreatedAt, &result.UpdatedAt)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return ErrDuplicateResult
	}
	return err
}

func (p *PostgreSQL) LoadMatchResult(ctx context.Context, matchID string) (*models.MatchResult, error) {
	query := `
        SELECT id, created_at, updated_at, match_id, winner_id, loser_id,
            winner_towers_destroyed, loser_towers_destroyed, duration_seconds, reported_by
        FROM match_results WHERE match_id = $1 AND deleted_at IS NULL
    `
	var r models.MatchResult
	err := p.db.QueryRowContext(ctx, query, matchID).Scan(
		&r.ID, &r.CreatedAt, &r.UpdatedAt, &r.MatchID, &r.WinnerID, &r.LoserID,
		&r.WinnerTowersDestroyed, &r.LoserTowersDestroyed, &r.DurationSeconds, &r.ReportedBy,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &r, nil
}

// Close 关闭数据库连接
func (p *PostgreSQL) Close() error {
	return p.db.Close()
}
