package repository

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/loviiin/scaptcha/pkg/slider"
)

// DB é o que o repositório usa da conexão; *pgx.Conn satisfaz.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// AttemptRepository guarda o histórico de tentativas no Postgres.
type AttemptRepository struct {
	db   DB
	conn *pgx.Conn
}

func NewAttemptRepository(ctx context.Context, databaseURL string) (*AttemptRepository, error) {
	conn, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("falha ao conectar no postgres: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("banco não responde: %w", err)
	}

	repo := &AttemptRepository{db: conn, conn: conn}
	if err := repo.runMigrations(ctx); err != nil {
		conn.Close(ctx)
		return nil, err
	}
	return repo, nil
}

// NewWithDB monta o repositório sobre uma conexão já aberta. Não roda migrations.
func NewWithDB(db DB) *AttemptRepository {
	return &AttemptRepository{db: db}
}

// Save insere uma tentativa e devolve o id gerado pelo banco.
func (r *AttemptRepository) Save(ctx context.Context, runID string, run, attempt int, res slider.AttemptResult) (string, error) {
	query := `
        INSERT INTO slider_attempts
        (run_id, run, attempt, success, gap_x, drag_distance, score, elapsed_ms, error_kind, error)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        RETURNING id
    `
	var gapX, drag *int
	var score *float64
	if res.Measured() {
		gapX, drag, score = &res.GapX, &res.DragDistance, &res.Score
	}
	var kind, msg *string
	if res.Err != nil {
		k, m := res.Err.Kind.String(), res.Err.Error()
		kind, msg = &k, &m
	}

	var id string
	err := r.db.QueryRow(ctx, query,
		runID,
		run,
		attempt,
		res.Success,
		gapX,
		drag,
		score,
		res.Elapsed.Milliseconds(),
		kind,
		msg,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("erro salvando tentativa %s/%d/%d: %w", runID, run, attempt, err)
	}
	return id, nil
}

func (r *AttemptRepository) Close(ctx context.Context) {
	if r.conn != nil {
		r.conn.Close(ctx)
	}
}

var migrations = []struct {
	name  string
	query string
}{
	{
		name: "001_slider_attempts",
		query: `CREATE TABLE IF NOT EXISTS slider_attempts (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			run_id VARCHAR(64) NOT NULL,
			run INT NOT NULL,
			attempt INT NOT NULL,
			success BOOLEAN NOT NULL,
			gap_x INT,
			drag_distance INT,
			score DOUBLE PRECISION,
			elapsed_ms BIGINT NOT NULL,
			error_kind VARCHAR(32),
			error TEXT,
			created_at TIMESTAMP DEFAULT NOW(),
			UNIQUE(run_id, run, attempt)
		);`,
	},
	{
		name:  "002_idx_error_kind",
		query: `CREATE INDEX IF NOT EXISTS idx_slider_attempts_error_kind ON slider_attempts(error_kind);`,
	},
	{
		name:  "003_idx_created_at",
		query: `CREATE INDEX IF NOT EXISTS idx_slider_attempts_created_at ON slider_attempts(created_at);`,
	},
}

// runMigrations é idempotente: todas as queries usam IF NOT EXISTS.
func (r *AttemptRepository) runMigrations(ctx context.Context) error {
	slog.Info("[DB] verificando schema do banco de dados...")
	for _, m := range migrations {
		if _, err := r.db.Exec(ctx, m.query); err != nil {
			return fmt.Errorf("migration %s falhou: %w", m.name, err)
		}
	}
	slog.Info("[DB] schema verificado", "migrations", len(migrations))
	return nil
}
