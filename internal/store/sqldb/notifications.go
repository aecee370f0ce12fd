package sqldb

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/MrSnakeDoc/pagewatch/internal/domain"
	"github.com/MrSnakeDoc/pagewatch/internal/store"
)

const notificationColumns = `id, owner_id, type, target_id, check_id, content, screenshot_path, sent, included_in_summary, summary_id, created_at`

func scanNotification(row rowScanner) (domain.Notification, error) {
	var (
		n                          domain.Notification
		targetID, checkID, summary sql.NullInt64
		shot                       sql.NullString
		createdAt                  int64
	)
	err := row.Scan(&n.ID, &n.OwnerID, &n.Type, &targetID, &checkID, &n.Content, &shot,
		&n.Sent, &n.IncludedInSummary, &summary, &createdAt)
	if err != nil {
		return domain.Notification{}, err
	}
	n.TargetID = idPtr(targetID)
	n.CheckID = idPtr(checkID)
	n.SummaryID = idPtr(summary)
	n.ScreenshotPath = shot.String
	n.CreatedAt = fromUnix(createdAt)
	return n, nil
}

type execQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) insertNotification(ctx context.Context, db execQuerier, n *domain.Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now()
	}
	query := s.q(`
INSERT INTO notifications (owner_id, type, target_id, check_id, content, screenshot_path, sent, included_in_summary, summary_id, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING id`)

	return db.QueryRowContext(ctx, query,
		n.OwnerID, n.Type, nullID(n.TargetID), nullID(n.CheckID), n.Content,
		nullString(n.ScreenshotPath), n.Sent, n.IncludedInSummary, nullID(n.SummaryID),
		toUnix(n.CreatedAt),
	).Scan(&n.ID)
}

func (s *Store) CreateNotification(ctx context.Context, n *domain.Notification) error {
	if err := s.insertNotification(ctx, s.db, n); err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

func (s *Store) GetNotifications(ctx context.Context, ids []int64) ([]domain.Notification, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, s.q(`SELECT `+notificationColumns+` FROM notifications WHERE id IN (`+placeholders(len(ids))+`) ORDER BY id`), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load notifications: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Notification, 0, len(ids))
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *Store) LatestSummary(ctx context.Context, ownerID string) (*domain.Notification, error) {
	row := s.db.QueryRowContext(ctx, s.q(`
SELECT `+notificationColumns+` FROM notifications
WHERE owner_id = ? AND type = ?
ORDER BY created_at DESC, id DESC
LIMIT 1`), ownerID, domain.NotificationSummary)

	n, err := scanNotification(row)
	if err != nil {
		return nil, notFound("summary for "+ownerID, err)
	}
	return &n, nil
}

func (s *Store) CommitSummary(ctx context.Context, summary *domain.Notification, includedIDs []int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.insertNotification(ctx, tx, summary); err != nil {
		return fmt.Errorf("failed to insert summary: %w", err)
	}

	if len(includedIDs) > 0 {
		args := make([]any, 0, len(includedIDs)+2)
		args = append(args, true, summary.ID)
		for _, id := range includedIDs {
			args = append(args, id)
		}
		res, err := tx.ExecContext(ctx, s.q(`UPDATE notifications SET included_in_summary = ?, summary_id = ? WHERE id IN (`+placeholders(len(includedIDs))+`)`), args...)
		if err != nil {
			return fmt.Errorf("failed to mark summarized notifications: %w", err)
		}
		if n, _ := res.RowsAffected(); n != int64(len(includedIDs)) {
			return fmt.Errorf("marked %d of %d notifications: %w", n, len(includedIDs), store.ErrNotFound)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}
	return nil
}
