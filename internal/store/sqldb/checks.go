package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/MrSnakeDoc/pagewatch/internal/domain"
)

const checkColumns = `id, target_id, checked_at, screenshot_path, html_path, diff_path, raw_verdict, change_detected, significance, summary, error, latency_ms`

func scanCheck(row rowScanner) (domain.CheckRecord, error) {
	var (
		c                    domain.CheckRecord
		checkedAt, latencyMS int64
		shot, html, diff     sql.NullString
	)
	err := row.Scan(&c.ID, &c.TargetID, &checkedAt, &shot, &html, &diff, &c.RawVerdict,
		&c.ChangeDetected, &c.Significance, &c.Summary, &c.Error, &latencyMS)
	if err != nil {
		return domain.CheckRecord{}, err
	}
	c.CheckedAt = fromUnix(checkedAt)
	c.ScreenshotPath = shot.String
	c.HTMLPath = html.String
	c.DiffPath = diff.String
	c.Latency = time.Duration(latencyMS) * time.Millisecond
	return c, nil
}

func (s *Store) CreateCheck(ctx context.Context, c *domain.CheckRecord) error {
	query := s.q(`
INSERT INTO checks (target_id, checked_at, screenshot_path, html_path, diff_path, raw_verdict, change_detected, significance, summary, error, latency_ms)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING id`)

	err := s.db.QueryRowContext(ctx, query,
		c.TargetID, toUnix(c.CheckedAt),
		nullString(c.ScreenshotPath), nullString(c.HTMLPath), nullString(c.DiffPath),
		c.RawVerdict, c.ChangeDetected, c.Significance, c.Summary, c.Error,
		c.Latency.Milliseconds(),
	).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("failed to insert check for target %d: %w", c.TargetID, err)
	}
	return nil
}

func (s *Store) LatestCheckWithScreenshot(ctx context.Context, targetID int64) (*domain.CheckRecord, error) {
	row := s.db.QueryRowContext(ctx, s.q(`
SELECT `+checkColumns+` FROM checks
WHERE target_id = ? AND screenshot_path IS NOT NULL
ORDER BY checked_at DESC, id DESC
LIMIT 1`), targetID)

	c, err := scanCheck(row)
	if err != nil {
		return nil, notFound(fmt.Sprintf("screenshot check for target %d", targetID), err)
	}
	return &c, nil
}

func (s *Store) ListChecks(ctx context.Context, targetID int64, limit int) ([]domain.CheckRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, s.q(`
SELECT `+checkColumns+` FROM checks
WHERE target_id = ?
ORDER BY checked_at DESC, id DESC
LIMIT ?`), targetID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list checks: %w", err)
	}
	defer rows.Close()

	var out []domain.CheckRecord
	for rows.Next() {
		c, err := scanCheck(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan check: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) DeleteChecksBefore(ctx context.Context, cutoff time.Time) ([]domain.CheckRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, s.q(`SELECT `+checkColumns+` FROM checks WHERE checked_at < ? ORDER BY id`), toUnix(cutoff))
	if err != nil {
		return nil, fmt.Errorf("failed to select old checks: %w", err)
	}
	var removed []domain.CheckRecord
	for rows.Next() {
		c, err := scanCheck(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan check: %w", err)
		}
		removed = append(removed, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM checks WHERE checked_at < ?`), toUnix(cutoff)); err != nil {
		return nil, fmt.Errorf("failed to delete old checks: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("could not commit transaction: %w", err)
	}
	return removed, nil
}
