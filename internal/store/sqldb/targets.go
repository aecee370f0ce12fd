package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/MrSnakeDoc/pagewatch/internal/domain"
	"github.com/MrSnakeDoc/pagewatch/internal/store"
)

const targetColumns = `id, owner_id, url, policy, policy_value, last_checked, status, last_error, proxy, mode, keywords, focus_hint, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTarget(row rowScanner) (domain.Target, error) {
	var (
		t           domain.Target
		lastChecked sql.NullInt64
		keywords    string
		createdAt   int64
	)
	err := row.Scan(&t.ID, &t.OwnerID, &t.URL, &t.Policy, &t.PolicyValue, &lastChecked,
		&t.Status, &t.LastError, &t.Proxy, &t.Mode, &keywords, &t.FocusHint, &createdAt)
	if err != nil {
		return domain.Target{}, err
	}
	if lastChecked.Valid {
		lc := fromUnix(lastChecked.Int64)
		t.LastChecked = &lc
	}
	t.Keywords = domain.SplitKeywords(keywords)
	t.CreatedAt = fromUnix(createdAt)
	return t, nil
}

func (s *Store) ListTargets(ctx context.Context) ([]domain.Target, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+targetColumns+` FROM targets ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list targets: %w", err)
	}
	defer rows.Close()

	var out []domain.Target
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan target: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) GetTarget(ctx context.Context, id int64) (*domain.Target, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+targetColumns+` FROM targets WHERE id = ?`), id)
	t, err := scanTarget(row)
	if err != nil {
		return nil, notFound(fmt.Sprintf("target %d", id), err)
	}
	return &t, nil
}

// captchaEdited is true in an upsert when a captcha target gets new settings.
const captchaEdited = `targets.status = 'captcha' AND (
		targets.policy <> excluded.policy OR
		targets.policy_value <> excluded.policy_value OR
		targets.proxy <> excluded.proxy OR
		targets.mode <> excluded.mode OR
		targets.keywords <> excluded.keywords OR
		targets.focus_hint <> excluded.focus_hint)`

// UpsertTarget inserts a target or edits the one with the same owner and URL.
// Editing keeps the runtime state, except that a captcha target whose
// settings changed is released back to active.
func (s *Store) UpsertTarget(ctx context.Context, t *domain.Target) error {
	if t.Status == "" {
		t.Status = domain.StatusActive
	}
	if t.Mode == "" {
		t.Mode = domain.ModeGeneral
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now()
	}

	query := s.q(`
INSERT INTO targets (owner_id, url, policy, policy_value, status, proxy, mode, keywords, focus_hint, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (owner_id, url) DO UPDATE SET
	policy = excluded.policy,
	policy_value = excluded.policy_value,
	proxy = excluded.proxy,
	mode = excluded.mode,
	keywords = excluded.keywords,
	focus_hint = excluded.focus_hint,
	status = CASE WHEN ` + captchaEdited + ` THEN 'active' ELSE targets.status END,
	last_error = CASE WHEN ` + captchaEdited + ` THEN '' ELSE targets.last_error END
RETURNING ` + targetColumns)

	row := s.db.QueryRowContext(ctx, query,
		t.OwnerID, t.URL, t.Policy, t.PolicyValue, t.Status, t.Proxy, t.Mode,
		strings.Join(t.Keywords, ","), t.FocusHint, toUnix(t.CreatedAt))
	saved, err := scanTarget(row)
	if err != nil {
		return fmt.Errorf("failed to upsert target %s: %w", t.URL, err)
	}
	*t = saved
	return nil
}

func (s *Store) UpdateTargetState(ctx context.Context, id int64, state store.TargetState) error {
	query := `UPDATE targets SET status = ?, last_error = ? WHERE id = ?`
	args := []any{state.Status, state.LastError, id}
	if state.LastChecked != nil {
		query = `UPDATE targets SET status = ?, last_error = ?, last_checked = ? WHERE id = ?`
		args = []any{state.Status, state.LastError, toUnix(*state.LastChecked), id}
	}

	res, err := s.db.ExecContext(ctx, s.q(query), args...)
	if err != nil {
		return fmt.Errorf("failed to update target %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("target %d: %w", id, store.ErrNotFound)
	}
	return nil
}

const userColumns = `id, email, telegram_token, telegram_chat_id, teams_webhook, notification_preference, summary_times, notify_only_changes`

func scanUser(row rowScanner) (domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.Email, &u.TelegramToken, &u.TelegramChatID, &u.TeamsWebhook,
		&u.Preference, &u.SummaryTimes, &u.NotifyOnlyChanges)
	return u, err
}

func (s *Store) GetUser(ctx context.Context, id string) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+userColumns+` FROM users WHERE id = ?`), id)
	u, err := scanUser(row)
	if err != nil {
		return nil, notFound("user "+id, err)
	}
	return &u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var out []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) UpsertUser(ctx context.Context, u *domain.User) error {
	query := s.q(`
INSERT INTO users (` + userColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
	email = excluded.email,
	telegram_token = excluded.telegram_token,
	telegram_chat_id = excluded.telegram_chat_id,
	teams_webhook = excluded.teams_webhook,
	notification_preference = excluded.notification_preference,
	summary_times = excluded.summary_times,
	notify_only_changes = excluded.notify_only_changes`)

	_, err := s.db.ExecContext(ctx, query, u.ID, u.Email, u.TelegramToken, u.TelegramChatID,
		u.TeamsWebhook, u.Preference, u.SummaryTimes, u.NotifyOnlyChanges)
	if err != nil {
		return fmt.Errorf("failed to upsert user %s: %w", u.ID, err)
	}
	return nil
}
