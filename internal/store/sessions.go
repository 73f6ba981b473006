package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/ehrlich-b/vtrace/internal/trace"
)

var (
	ErrNotFound = errors.New("session not found")
	ErrExists   = errors.New("session already exists")

	// ErrOutOfOrder is returned when an appended event's sequence number is
	// not the session's current event count.
	ErrOutOfOrder = errors.New("event out of order")
)

// SessionInfo is a session header plus its event count.
type SessionInfo struct {
	ID        string
	Model     string
	CreatedAt string
	Events    int
}

// CreateSession stores the header of s and any events it already holds.
func (s *Store) CreateSession(sess *trace.Session) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin create session: %w", err)
	}
	defer tx.Rollback()

	var n int
	if err := tx.QueryRow("SELECT COUNT(*) FROM sessions WHERE id = ?", sess.ID).Scan(&n); err != nil {
		return fmt.Errorf("check session: %w", err)
	}
	if n > 0 {
		return fmt.Errorf("%w: %s", ErrExists, sess.ID)
	}
	_, err = tx.Exec(`INSERT INTO sessions (id, model, codebase_hash, initial_context, created_at, schema_version, patch_format)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Model, sess.CodebaseHash, sess.InitialContext, sess.CreatedAt, sess.SchemaVersion, sess.PatchFormat)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	for i, e := range sess.Events() {
		if err := insertEvent(tx, sess.ID, i, e); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// AppendEvent adds e at position seq. seq must equal the number of events
// already stored for the session; a gap or a repeat is ErrOutOfOrder.
func (s *Store) AppendEvent(sessionID string, seq int, e trace.Event) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	count, err := eventCount(tx, sessionID)
	if err != nil {
		return err
	}
	if seq != count {
		return fmt.Errorf("%w: session %s has %d events, got seq %d", ErrOutOfOrder, sessionID, count, seq)
	}
	if err := insertEvent(tx, sessionID, seq, e); err != nil {
		return err
	}
	return tx.Commit()
}

// EventCount returns the number of events stored for a session.
func (s *Store) EventCount(sessionID string) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin count: %w", err)
	}
	defer tx.Rollback()
	return eventCount(tx, sessionID)
}

func eventCount(tx *sql.Tx, sessionID string) (int, error) {
	var exists int
	if err := tx.QueryRow("SELECT COUNT(*) FROM sessions WHERE id = ?", sessionID).Scan(&exists); err != nil {
		return 0, fmt.Errorf("check session: %w", err)
	}
	if exists == 0 {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	var count int
	if err := tx.QueryRow("SELECT COUNT(*) FROM events WHERE session_id = ?", sessionID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return count, nil
}

func insertEvent(tx *sql.Tx, sessionID string, seq int, e trace.Event) error {
	in, err := trace.EncodeInputJSON(e.Input)
	if err != nil {
		return fmt.Errorf("encode event %d input: %w", seq, err)
	}
	md, err := e.Metadata.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encode event %d metadata: %w", seq, err)
	}
	_, err = tx.Exec(`INSERT INTO events (session_id, seq, type, timestamp, input, output, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sessionID, seq, string(e.Kind()), e.Timestamp, string(in), e.Output, string(md))
	if err != nil {
		return fmt.Errorf("append event %d: %w", seq, err)
	}
	return nil
}

// LoadSession rebuilds a session and its events in sequence order.
func (s *Store) LoadSession(id string) (*trace.Session, error) {
	sess := &trace.Session{}
	err := s.db.QueryRow(`SELECT id, model, codebase_hash, initial_context, created_at, schema_version, patch_format
		FROM sessions WHERE id = ?`, id).Scan(
		&sess.ID, &sess.Model, &sess.CodebaseHash, &sess.InitialContext, &sess.CreatedAt, &sess.SchemaVersion, &sess.PatchFormat)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	rows, err := s.db.Query(`SELECT seq, type, timestamp, input, output, metadata
		FROM events WHERE session_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var seq int
		var typ, ts, in, out, mdJSON string
		if err := rows.Scan(&seq, &typ, &ts, &in, &out, &mdJSON); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		kind, ok := trace.ParseKind(typ)
		if !ok {
			return nil, &trace.UnknownKindError{Index: seq, Kind: typ}
		}
		input, err := trace.DecodeInputJSON(kind, []byte(in))
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", seq, err)
		}
		var md trace.Metadata
		if err := md.UnmarshalJSON([]byte(mdJSON)); err != nil {
			return nil, fmt.Errorf("event %d: %w", seq, err)
		}
		sess.Append(trace.Event{Timestamp: ts, Input: input, Output: out, Metadata: md})
	}
	return sess, rows.Err()
}

func (s *Store) ListSessions() ([]*SessionInfo, error) {
	rows, err := s.db.Query(`SELECT s.id, s.model, s.created_at, COUNT(e.seq)
		FROM sessions s LEFT JOIN events e ON e.session_id = s.id
		GROUP BY s.id ORDER BY s.created_at, s.id`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()
	var out []*SessionInfo
	for rows.Next() {
		info := &SessionInfo{}
		if err := rows.Scan(&info.ID, &info.Model, &info.CreatedAt, &info.Events); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

// DeleteSession removes a session and all of its events.
func (s *Store) DeleteSession(id string) error {
	res, err := s.db.Exec("DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Sink records sessions into a Store as they are written.
type Sink struct {
	Store *Store
}

func (k Sink) Begin(sess *trace.Session) error {
	return k.Store.CreateSession(sess)
}

// Append stores every event of sess the store does not hold yet, e being
// the last. An event whose append failed is written by the next call.
func (k Sink) Append(sess *trace.Session, e trace.Event) error {
	n, err := k.Store.EventCount(sess.ID)
	if err != nil {
		return err
	}
	if n > sess.Len() {
		return fmt.Errorf("%w: session %s has %d events stored, %d recorded", ErrOutOfOrder, sess.ID, n, sess.Len())
	}
	for i := n; i < sess.Len(); i++ {
		if err := k.Store.AppendEvent(sess.ID, i, sess.Event(i)); err != nil {
			return err
		}
	}
	return nil
}
