package freezestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/frostline/repofreeze/internal/model"
)

// NewPool opens and pings a pgx connection pool.
func NewPool(ctx context.Context, dsn string, logger *zap.Logger) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	logger.Info("Postgres connected")

	return pool, nil
}

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresStore creates a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{pool: pool, logger: logger}
}

// Pool exposes the underlying connection pool for health checks.
func (s *PostgresStore) Pool() *pgxpool.Pool {
	return s.pool
}

const freezeColumns = `id, repository, installation_id, started_at, expires_at, ended_at,
	reason, initiated_by, ended_by, branch, status, created_at`

// Create inserts a freeze record after checking for overlapping active
// freezes on the same (installation, repository). The check and the insert
// run in one serializable transaction so two concurrent creators cannot both
// pass the overlap check.
func (s *PostgresStore) Create(ctx context.Context, rec *model.FreezeRecord) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var overlapping int
	err = tx.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM freeze_records
		WHERE repository = $1
		  AND installation_id = $2
		  AND status = 'active'
		  AND started_at < COALESCE($4, 'infinity'::timestamptz)
		  AND $3 < COALESCE(expires_at, 'infinity'::timestamptz)
	`, rec.Repository, rec.InstallationID, rec.StartedAt, rec.ExpiresAt).Scan(&overlapping)
	if err != nil {
		return fmt.Errorf("check overlapping freezes: %w", err)
	}
	if overlapping > 0 {
		return ErrOverlap
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO freeze_records
		(id, repository, installation_id, started_at, expires_at, ended_at,
		 reason, initiated_by, ended_by, branch, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, rec.ID, rec.Repository, rec.InstallationID, rec.StartedAt, rec.ExpiresAt,
		rec.EndedAt, rec.Reason, rec.InitiatedBy, rec.EndedBy, rec.Branch,
		string(rec.Status), rec.CreatedAt); err != nil {
		return fmt.Errorf("insert freeze record: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	s.logger.Debug("Freeze record created",
		zap.String("id", rec.ID.String()),
		zap.String("repository", rec.Repository),
		zap.String("status", string(rec.Status)),
	)

	return nil
}

// Get returns a freeze record by id.
func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*model.FreezeRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+freezeColumns+` FROM freeze_records WHERE id = $1`, id)

	rec, err := scanFreeze(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select freeze record: %w", err)
	}

	return rec, nil
}

// List returns freeze records matching the filter, newest first.
func (s *PostgresStore) List(ctx context.Context, filter ListFilter) ([]*model.FreezeRecord, error) {
	query := `SELECT ` + freezeColumns + ` FROM freeze_records WHERE 1=1`
	args := []any{}

	if filter.InstallationID != 0 {
		args = append(args, filter.InstallationID)
		query += fmt.Sprintf(" AND installation_id = $%d", len(args))
	}
	if filter.Repository != "" {
		args = append(args, filter.Repository)
		query += fmt.Sprintf(" AND repository = $%d", len(args))
	}
	if filter.ActiveOnly {
		query += " AND status = 'active'"
	}

	query += " ORDER BY created_at DESC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select freeze records: %w", err)
	}
	defer rows.Close()

	return collectFreezes(rows)
}

// UpdateStatus transitions a record's status, recording ended_at/ended_by
// when the record is being ended.
func (s *PostgresStore) UpdateStatus(ctx context.Context, id uuid.UUID, status model.Status, endedBy *string) (*model.FreezeRecord, error) {
	var endedAt *time.Time
	if status == model.StatusEnded {
		now := time.Now().UTC()
		endedAt = &now
	} else {
		endedBy = nil
	}

	row := s.pool.QueryRow(ctx, `
		UPDATE freeze_records
		SET status = $1, ended_at = $2, ended_by = $3
		WHERE id = $4
		RETURNING `+freezeColumns, string(status), endedAt, endedBy, id)

	rec, err := scanFreeze(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update freeze status: %w", err)
	}

	return rec, nil
}

// Delete removes a freeze record by id.
func (s *PostgresStore) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM freeze_records WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete freeze record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetActive returns the active freeze for the pair, or ErrNotFound. The most
// recently created record wins if more than one is marked active.
func (s *PostgresStore) GetActive(ctx context.Context, installationID int64, repository string) (*model.FreezeRecord, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+freezeColumns+`
		FROM freeze_records
		WHERE installation_id = $1 AND repository = $2 AND status = 'active'
		ORDER BY created_at DESC
		LIMIT 1
	`, installationID, repository)

	rec, err := scanFreeze(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select active freeze: %w", err)
	}

	return rec, nil
}

// ListActive returns every active freeze whose window covers now.
func (s *PostgresStore) ListActive(ctx context.Context, now time.Time) ([]*model.FreezeRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+freezeColumns+`
		FROM freeze_records
		WHERE status = 'active'
		  AND started_at <= $1
		  AND (expires_at IS NULL OR expires_at > $1)
		ORDER BY started_at ASC
	`, now)
	if err != nil {
		return nil, fmt.Errorf("select active freezes: %w", err)
	}
	defer rows.Close()

	return collectFreezes(rows)
}

// ListScheduledDue returns scheduled freezes whose start time has arrived.
func (s *PostgresStore) ListScheduledDue(ctx context.Context, now time.Time) ([]*model.FreezeRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+freezeColumns+`
		FROM freeze_records
		WHERE status = 'scheduled' AND started_at <= $1
		ORDER BY started_at ASC
	`, now)
	if err != nil {
		return nil, fmt.Errorf("select due scheduled freezes: %w", err)
	}
	defer rows.Close()

	return collectFreezes(rows)
}

func scanFreeze(row pgx.Row) (*model.FreezeRecord, error) {
	var rec model.FreezeRecord
	var status string

	err := row.Scan(&rec.ID, &rec.Repository, &rec.InstallationID, &rec.StartedAt,
		&rec.ExpiresAt, &rec.EndedAt, &rec.Reason, &rec.InitiatedBy, &rec.EndedBy,
		&rec.Branch, &status, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}

	rec.Status, err = model.ParseStatus(status)
	if err != nil {
		return nil, err
	}

	return &rec, nil
}

func collectFreezes(rows pgx.Rows) ([]*model.FreezeRecord, error) {
	var records []*model.FreezeRecord
	for rows.Next() {
		rec, err := scanFreeze(rows)
		if err != nil {
			return nil, fmt.Errorf("scan freeze record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate freeze records: %w", err)
	}
	return records, nil
}
