package store

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"tejas.dev/portfolio-api/internal/domain"
	"tejas.dev/portfolio-api/internal/logger"
)

// HashIP returns the salted SHA-256 of ip, or "" when ip is empty.
func HashIP(ip, salt string) string {
	if ip == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(ip + salt))
	return hex.EncodeToString(sum[:])
}

// UpsertSession records a session the first time it is seen and refreshes
// its metadata afterwards. Empty fields never overwrite stored values.
func (s *SQLiteStore) UpsertSession(sess *Session, ip string) error {
	if sess.ID == "" {
		return fmt.Errorf("%w: session id is required", domain.ErrInvalidInput)
	}
	now := time.Now().UTC()
	ipHash := HashIP(ip, s.salt)

	stmt, err := s.db.Prepare(`
        INSERT INTO sessions (session_id, visitor_id, ip_hash, user_agent, locale, timezone, referrer, page_url, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT (session_id) DO UPDATE SET
            updated_at = excluded.updated_at,
            visitor_id = COALESCE(NULLIF(excluded.visitor_id, ''), sessions.visitor_id),
            ip_hash = COALESCE(NULLIF(excluded.ip_hash, ''), sessions.ip_hash),
            user_agent = COALESCE(NULLIF(excluded.user_agent, ''), sessions.user_agent),
            locale = COALESCE(NULLIF(excluded.locale, ''), sessions.locale),
            timezone = COALESCE(NULLIF(excluded.timezone, ''), sessions.timezone),
            referrer = COALESCE(NULLIF(excluded.referrer, ''), sessions.referrer),
            page_url = COALESCE(NULLIF(excluded.page_url, ''), sessions.page_url)
    `)
	if err != nil {
		return fmt.Errorf("failed to prepare session upsert: %w", err)
	}
	defer stmt.Close()

	_, err = stmt.Exec(sess.ID, sess.VisitorID, ipHash, sess.UserAgent, sess.Locale, sess.Timezone, sess.Referrer, sess.PageURL, now, now)
	if err != nil {
		return fmt.Errorf("failed to execute session upsert: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetSession(sessionID string) (*Session, error) {
	var sess Session
	var visitor, ipHash, ua, locale, tz, ref, page sql.NullString
	err := s.db.QueryRow(`
        SELECT s.session_id, s.visitor_id, s.ip_hash, s.user_agent, s.locale, s.timezone, s.referrer, s.page_url,
               s.created_at, s.updated_at, (SELECT COUNT(*) FROM messages m WHERE m.session_id = s.session_id)
        FROM sessions s WHERE s.session_id = ?`, sessionID).
		Scan(&sess.ID, &visitor, &ipHash, &ua, &locale, &tz, &ref, &page, &sess.CreatedAt, &sess.UpdatedAt, &sess.Messages)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	sess.VisitorID, sess.IPHash, sess.UserAgent = visitor.String, ipHash.String, ua.String
	sess.Locale, sess.Timezone, sess.Referrer, sess.PageURL = locale.String, tz.String, ref.String, page.String
	return &sess, nil
}

// ListSessions returns sessions updated at or after since, most recent first.
func (s *SQLiteStore) ListSessions(since time.Time, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(`
        SELECT s.session_id, s.visitor_id, s.locale, s.timezone, s.referrer, s.page_url, s.created_at, s.updated_at,
               (SELECT COUNT(*) FROM messages m WHERE m.session_id = s.session_id)
        FROM sessions s
        WHERE s.updated_at >= ?
        ORDER BY s.updated_at DESC
        LIMIT ?`, since.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		var sess Session
		var visitor, locale, tz, ref, page sql.NullString
		if err := rows.Scan(&sess.ID, &visitor, &locale, &tz, &ref, &page, &sess.CreatedAt, &sess.UpdatedAt, &sess.Messages); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		sess.VisitorID, sess.Locale, sess.Timezone = visitor.String, locale.String, tz.String
		sess.Referrer, sess.PageURL = ref.String, page.String
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// InsertMessage appends a message to the log, assigning its id and timestamp
// when they are unset.
func (s *SQLiteStore) InsertMessage(msg *Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	var sourcesJSON sql.NullString
	if msg.RetrievedSources != nil {
		b, err := json.Marshal(msg.RetrievedSources)
		if err != nil {
			return fmt.Errorf("failed to marshal retrieved sources: %w", err)
		}
		sourcesJSON = sql.NullString{String: string(b), Valid: true}
	}

	stmt, err := s.db.Prepare(`
        INSERT INTO messages (id, session_id, role, content, timestamp, model_name, server_duration_ms, missing_info, retrieved_sources, context_chars)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare message insert: %w", err)
	}
	defer stmt.Close()

	_, err = stmt.Exec(msg.ID, msg.SessionID, msg.Role, msg.Content, msg.Timestamp, msg.ModelName, msg.DurationMS, msg.MissingInfo, sourcesJSON, msg.ContextChars)
	if err != nil {
		return fmt.Errorf("failed to execute message insert: %w", err)
	}
	return nil
}

// GetMessages returns the logged messages of a session in insertion order.
func (s *SQLiteStore) GetMessages(sessionID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.Query(`
        SELECT id, session_id, role, content, timestamp, model_name, server_duration_ms, missing_info, retrieved_sources, context_chars
        FROM messages
        WHERE session_id = ?
        ORDER BY timestamp ASC, rowid ASC
        LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	messages := []Message{}
	for rows.Next() {
		var msg Message
		var model, sources sql.NullString
		var duration, contextChars sql.NullInt64
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Role, &msg.Content, &msg.Timestamp, &model, &duration, &msg.MissingInfo, &sources, &contextChars); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		msg.ModelName = model.String
		msg.DurationMS = duration.Int64
		msg.ContextChars = int(contextChars.Int64)
		if sources.Valid && sources.String != "" {
			if err := json.Unmarshal([]byte(sources.String), &msg.RetrievedSources); err != nil {
				logger.Warn("Failed to unmarshal retrieved sources", "message_id", msg.ID, "error", err)
			}
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}
