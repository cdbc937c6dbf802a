package store

import (
	"database/sql"
	"time"
)

// SessionRecord is the persisted state of one session identity. At most one
// row exists per session name; the row is the handoff mechanism between
// successive session owners across process restarts.
type SessionRecord struct {
	SessionName     string
	Archive         []byte
	QRCode          string
	Status          string
	ConnectedUserID string
	ConnectedAt     int64 // unix millis, 0 = never connected
	LastActivityAt  int64 // unix millis
}

// SaveParams carries the mutable fields of an upsert. A nil Archive leaves
// any previously stored archive in place, so QR/status-only saves during the
// login handshake never clobber a known-good credential snapshot.
type SaveParams struct {
	SessionName     string
	Archive         []byte
	QRCode          string
	Status          string
	ConnectedUserID string
}

// SaveSession upserts the record for p.SessionName. connected_at is set only
// when status transitions into "connected", not refreshed on every save.
func (db *DB) SaveSession(p SaveParams) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO session_records (session_name, archive, qr_code, status, connected_user_id, connected_at, last_activity_at)
		VALUES (?, ?, ?, ?, ?, CASE WHEN ? = 'connected' THEN ? ELSE NULL END, ?)
		ON CONFLICT(session_name) DO UPDATE SET
			archive = COALESCE(excluded.archive, session_records.archive),
			qr_code = excluded.qr_code,
			status = excluded.status,
			connected_user_id = excluded.connected_user_id,
			connected_at = CASE
				WHEN excluded.status = 'connected' AND session_records.status != 'connected' THEN ?
				ELSE session_records.connected_at
			END,
			last_activity_at = excluded.last_activity_at`,
		p.SessionName, p.Archive, p.QRCode, p.Status, p.ConnectedUserID,
		p.Status, now, now, now)
	return err
}

// LoadSession returns the record for sessionName, or nil when absent.
func (db *DB) LoadSession(sessionName string) (*SessionRecord, error) {
	var (
		rec             SessionRecord
		archive         []byte
		qrCode          sql.NullString
		connectedUserID sql.NullString
		connectedAt     sql.NullInt64
	)
	err := db.QueryRow(`
		SELECT session_name, archive, qr_code, status, connected_user_id, connected_at, last_activity_at
		FROM session_records WHERE session_name = ?`, sessionName).
		Scan(&rec.SessionName, &archive, &qrCode, &rec.Status, &connectedUserID, &connectedAt, &rec.LastActivityAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec.Archive = archive
	rec.QRCode = qrCode.String
	rec.ConnectedUserID = connectedUserID.String
	rec.ConnectedAt = connectedAt.Int64
	return &rec, nil
}

// ClearSession removes the record entirely. Only an explicit logout calls
// this; a plain disconnect keeps the archive so the session stays resumable.
func (db *DB) ClearSession(sessionName string) error {
	_, err := db.Exec(`DELETE FROM session_records WHERE session_name = ?`, sessionName)
	return err
}

// Touch refreshes last_activity_at without changing anything else.
func (db *DB) Touch(sessionName string) error {
	_, err := db.Exec(`UPDATE session_records SET last_activity_at = ? WHERE session_name = ?`,
		time.Now().UnixMilli(), sessionName)
	return err
}
