package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mailtide/mailtide/internal/account"
	"github.com/mailtide/mailtide/internal/backend"
)

// encodeList marshals a string slice to its JSON column form.
func encodeList(values []string) string {
	if len(values) == 0 {
		return "[]"
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "[]"
	}
	return string(data)
}

// decodeList unmarshals a JSON column back to a string slice.
func decodeList(raw string) []string {
	if raw == "" || raw == "[]" {
		return nil
	}
	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil
	}
	return values
}

// ReplaceMessages replaces the cached message list for an account with the
// given snapshot, preserving its order.
func (s *Store) ReplaceMessages(email string, messages []backend.EmailSummary) error {
	key := account.Normalize(email)

	return s.withTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM messages WHERE account_email = ?`, key); err != nil {
			return fmt.Errorf("clear messages: %w", err)
		}

		stmt, err := tx.Prepare(`
			INSERT INTO messages (
				account_email, uid, subject, date, snippet, status, flags,
				analysis_summary, analysis_sentiment, analysis_categories,
				remote_error, position
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare insert: %w", err)
		}
		defer stmt.Close()

		for i, msg := range messages {
			var date sql.NullInt64
			if msg.Date != nil {
				date = sql.NullInt64{Int64: msg.Date.UnixMilli(), Valid: true}
			}
			_, err := stmt.Exec(
				key, msg.UID, msg.Subject, date, msg.Snippet, msg.Status,
				encodeList(msg.Flags), msg.AnalysisSummary, msg.AnalysisSentiment,
				encodeList(msg.AnalysisCategories), msg.RemoteError, i,
			)
			if err != nil {
				return fmt.Errorf("insert message %s: %w", msg.UID, err)
			}
		}
		return nil
	})
}

// Messages returns up to limit cached messages for an account in stored
// order. A non-positive limit returns all of them.
func (s *Store) Messages(email string, limit int) ([]backend.EmailSummary, error) {
	key := account.Normalize(email)

	query := `
		SELECT uid, subject, date, snippet, status, flags,
		       analysis_summary, analysis_sentiment, analysis_categories,
		       remote_error
		FROM messages
		WHERE account_email = ?
		ORDER BY position`
	args := []interface{}{key}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []backend.EmailSummary
	for rows.Next() {
		var msg backend.EmailSummary
		var date sql.NullInt64
		var flags, categories string
		err := rows.Scan(
			&msg.UID, &msg.Subject, &date, &msg.Snippet, &msg.Status, &flags,
			&msg.AnalysisSummary, &msg.AnalysisSentiment, &categories,
			&msg.RemoteError,
		)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if date.Valid {
			t := time.UnixMilli(date.Int64).UTC()
			msg.Date = &t
		}
		msg.Flags = decodeList(flags)
		msg.AnalysisCategories = decodeList(categories)
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// CachedCount returns how many messages are cached for an account.
func (s *Store) CachedCount(email string) (int, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM messages WHERE account_email = ?`,
		account.Normalize(email),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return count, nil
}

// ReplaceSenderGroups replaces the cached sender groups for an account with
// the given snapshot. Group membership references cached messages by UID.
func (s *Store) ReplaceSenderGroups(email string, groups []backend.SenderGroup) error {
	key := account.Normalize(email)

	return s.withTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM sender_groups WHERE account_email = ?`, key); err != nil {
			return fmt.Errorf("clear groups: %w", err)
		}
		if _, err := tx.Exec(`DELETE FROM group_messages WHERE account_email = ?`, key); err != nil {
			return fmt.Errorf("clear group members: %w", err)
		}

		groupStmt, err := tx.Prepare(`
			INSERT INTO sender_groups (
				account_email, sender_email, sender_display, status,
				message_count, position
			) VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare group insert: %w", err)
		}
		defer groupStmt.Close()

		memberStmt, err := tx.Prepare(`
			INSERT INTO group_messages (account_email, sender_email, uid, position)
			VALUES (?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare member insert: %w", err)
		}
		defer memberStmt.Close()

		for i, g := range groups {
			_, err := groupStmt.Exec(key, g.SenderEmail, g.SenderDisplay, string(g.Status), g.MessageCount, i)
			if err != nil {
				return fmt.Errorf("insert group %s: %w", g.SenderEmail, err)
			}
			for j, msg := range g.Messages {
				if _, err := memberStmt.Exec(key, g.SenderEmail, msg.UID, j); err != nil {
					return fmt.Errorf("insert group member %s: %w", msg.UID, err)
				}
			}
		}
		return nil
	})
}

// SenderGroups returns the cached sender groups for an account in stored
// order, with their member messages resolved from the message cache.
func (s *Store) SenderGroups(email string) ([]backend.SenderGroup, error) {
	key := account.Normalize(email)

	messages, err := s.Messages(email, 0)
	if err != nil {
		return nil, err
	}
	byUID := make(map[string]backend.EmailSummary, len(messages))
	for _, msg := range messages {
		byUID[msg.UID] = msg
	}

	rows, err := s.db.Query(`
		SELECT sender_email, sender_display, status, message_count
		FROM sender_groups
		WHERE account_email = ?
		ORDER BY position`, key)
	if err != nil {
		return nil, fmt.Errorf("query groups: %w", err)
	}
	defer rows.Close()

	var groups []backend.SenderGroup
	for rows.Next() {
		var g backend.SenderGroup
		var status string
		if err := rows.Scan(&g.SenderEmail, &g.SenderDisplay, &status, &g.MessageCount); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		g.Status = backend.GroupStatus(status)
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range groups {
		memberRows, err := s.db.Query(`
			SELECT uid FROM group_messages
			WHERE account_email = ? AND sender_email = ?
			ORDER BY position`, key, groups[i].SenderEmail)
		if err != nil {
			return nil, fmt.Errorf("query group members: %w", err)
		}
		for memberRows.Next() {
			var uid string
			if err := memberRows.Scan(&uid); err != nil {
				memberRows.Close()
				return nil, fmt.Errorf("scan group member: %w", err)
			}
			if msg, ok := byUID[uid]; ok {
				groups[i].Messages = append(groups[i].Messages, msg)
			}
		}
		if err := memberRows.Err(); err != nil {
			memberRows.Close()
			return nil, err
		}
		memberRows.Close()
	}
	return groups, nil
}

// SaveSyncReport stores the last completed sync report for an account,
// replacing any previous one.
func (s *Store) SaveSyncReport(email string, report backend.SyncReport, completedAt time.Time) error {
	_, err := s.db.Exec(`
		INSERT INTO sync_reports (account_email, fetched, stored, duration_ms, completed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(account_email) DO UPDATE SET
			fetched = excluded.fetched,
			stored = excluded.stored,
			duration_ms = excluded.duration_ms,
			completed_at = excluded.completed_at`,
		account.Normalize(email), report.Fetched, report.Stored, report.DurationMs,
		completedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save sync report: %w", err)
	}
	return nil
}

// LastSyncReport returns the stored sync report for an account, or ok=false
// when the account has never completed a sync.
func (s *Store) LastSyncReport(email string) (backend.SyncReport, time.Time, bool, error) {
	var report backend.SyncReport
	var completedMs int64
	err := s.db.QueryRow(`
		SELECT fetched, stored, duration_ms, completed_at
		FROM sync_reports WHERE account_email = ?`,
		account.Normalize(email),
	).Scan(&report.Fetched, &report.Stored, &report.DurationMs, &completedMs)
	if err == sql.ErrNoRows {
		return backend.SyncReport{}, time.Time{}, false, nil
	}
	if err != nil {
		return backend.SyncReport{}, time.Time{}, false, fmt.Errorf("query sync report: %w", err)
	}
	return report, time.UnixMilli(completedMs).UTC(), true, nil
}

// DeleteAccount drops all cached rows for an account. Called on disconnect.
func (s *Store) DeleteAccount(email string) error {
	key := account.Normalize(email)
	return s.withTx(func(tx *sql.Tx) error {
		for _, table := range []string{"messages", "sender_groups", "group_messages", "sync_reports"} {
			if _, err := tx.Exec(`DELETE FROM `+table+` WHERE account_email = ?`, key); err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}
		return nil
	})
}
