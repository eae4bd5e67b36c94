package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"presenza/internal/attendance"
	"presenza/internal/settlement"
	"presenza/pkg/domain"
	"presenza/pkg/platform/sentinel"
	txcontext "presenza/pkg/platform/tx"
)

// PostgresStore implements the record store, log store, and transaction
// runner against Postgres.
//
// Schema:
//
//	attendance_records (
//	    conference_id uuid, participant_id uuid,
//	    status text, current_zone_id text,
//	    last_check_in_at timestamptz, total_minutes int,
//	    completed bool, last_check_out_at timestamptz,
//	    updated_at timestamptz,
//	    PRIMARY KEY (conference_id, participant_id)
//	)
//	attendance_log (
//	    id uuid PRIMARY KEY, conference_id uuid, participant_id uuid,
//	    entry_type text, zone_id text, ts timestamptz, method text,
//	    raw_minutes int, deduction_minutes int, recognized_minutes int,
//	    actor text
//	)
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) q(ctx context.Context) querier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// RunInTx wraps fn in a database transaction. Reads inside the
// transaction take a row lock (FOR UPDATE), so concurrent operations on
// the same participant serialize at the database. Serialization and
// lock failures map to sentinel.ErrConflict for the caller's retry.
func (s *PostgresStore) RunInTx(ctx context.Context, _ domain.ParticipantID, fn func(ctx context.Context) error) error {
	dbtx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	err = fn(txcontext.WithTx(ctx, dbtx))
	if err != nil {
		_ = dbtx.Rollback()
		return translateConflict(err)
	}

	if err := dbtx.Commit(); err != nil {
		return translateConflict(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

func translateConflict(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01", "55P03": // serialization, deadlock, lock not available
			return fmt.Errorf("%w: %v", sentinel.ErrConflict, err)
		}
	}
	return err
}

const recordColumns = `
	conference_id, participant_id, status, current_zone_id,
	last_check_in_at, total_minutes, completed, last_check_out_at
`

func (s *PostgresStore) Find(ctx context.Context, conferenceID domain.ConferenceID, participantID domain.ParticipantID) (attendance.Record, error) {
	query := `SELECT ` + recordColumns + `
		FROM attendance_records
		WHERE conference_id = $1 AND participant_id = $2`
	if _, inTx := txcontext.From(ctx); inTx {
		query += ` FOR UPDATE`
	}

	row := s.q(ctx).QueryRowContext(ctx, query, conferenceID.String(), participantID.String())
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return attendance.Record{}, sentinel.ErrNotFound
	}
	if err != nil {
		return attendance.Record{}, fmt.Errorf("query attendance record: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) Save(ctx context.Context, record attendance.Record) error {
	query := `
		INSERT INTO attendance_records (` + recordColumns + `, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		ON CONFLICT (conference_id, participant_id) DO UPDATE SET
			status = EXCLUDED.status,
			current_zone_id = EXCLUDED.current_zone_id,
			last_check_in_at = EXCLUDED.last_check_in_at,
			total_minutes = EXCLUDED.total_minutes,
			completed = EXCLUDED.completed,
			last_check_out_at = EXCLUDED.last_check_out_at,
			updated_at = now()
	`
	var zone sql.NullString
	if !record.CurrentZoneID.IsNil() {
		zone = sql.NullString{String: record.CurrentZoneID.String(), Valid: true}
	}
	_, err := s.q(ctx).ExecContext(ctx, query,
		record.ConferenceID.String(),
		record.ParticipantID.String(),
		string(record.Status),
		zone,
		record.LastCheckInAt,
		record.TotalMinutes,
		record.Completed,
		record.LastCheckOutAt,
	)
	if err != nil {
		return translateConflict(fmt.Errorf("upsert attendance record: %w", err))
	}
	return nil
}

func (s *PostgresStore) ListByConference(ctx context.Context, conferenceID domain.ConferenceID) ([]attendance.Record, error) {
	query := `SELECT ` + recordColumns + `
		FROM attendance_records
		WHERE conference_id = $1
		ORDER BY participant_id`
	rows, err := s.q(ctx).QueryContext(ctx, query, conferenceID.String())
	if err != nil {
		return nil, fmt.Errorf("list attendance records: %w", err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

func (s *PostgresStore) ListInside(ctx context.Context) ([]attendance.Record, error) {
	query := `SELECT ` + recordColumns + `
		FROM attendance_records
		WHERE status = $1`
	rows, err := s.q(ctx).QueryContext(ctx, query, string(attendance.StatusInside))
	if err != nil {
		return nil, fmt.Errorf("list inside records: %w", err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

func (s *PostgresStore) Append(ctx context.Context, entry attendance.LogEntry) error {
	query := `
		INSERT INTO attendance_log (
			id, conference_id, participant_id, entry_type, zone_id,
			ts, method, raw_minutes, deduction_minutes, recognized_minutes, actor
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	var raw, deduction, recognized sql.NullInt64
	if entry.Settlement != nil {
		raw = sql.NullInt64{Int64: int64(entry.Settlement.RawMinutes), Valid: true}
		deduction = sql.NullInt64{Int64: int64(entry.Settlement.DeductionMinutes), Valid: true}
		recognized = sql.NullInt64{Int64: int64(entry.Settlement.RecognizedMinutes), Valid: true}
	}
	var zone sql.NullString
	if !entry.ZoneID.IsNil() {
		zone = sql.NullString{String: entry.ZoneID.String(), Valid: true}
	}
	_, err := s.q(ctx).ExecContext(ctx, query,
		entry.ID,
		entry.ConferenceID.String(),
		entry.ParticipantID.String(),
		string(entry.Type),
		zone,
		entry.Timestamp,
		string(entry.Method),
		raw, deduction, recognized,
		entry.Actor,
	)
	if err != nil {
		return translateConflict(fmt.Errorf("append attendance log entry: %w", err))
	}
	return nil
}

func (s *PostgresStore) ListByParticipant(ctx context.Context, conferenceID domain.ConferenceID, participantID domain.ParticipantID) ([]attendance.LogEntry, error) {
	query := `
		SELECT id, conference_id, participant_id, entry_type, zone_id,
		       ts, method, raw_minutes, deduction_minutes, recognized_minutes, actor
		FROM attendance_log
		WHERE conference_id = $1 AND participant_id = $2
		ORDER BY ts DESC
	`
	rows, err := s.q(ctx).QueryContext(ctx, query, conferenceID.String(), participantID.String())
	if err != nil {
		return nil, fmt.Errorf("list attendance log: %w", err)
	}
	defer rows.Close()

	var out []attendance.LogEntry
	for rows.Next() {
		entry, err := scanLogEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (attendance.Record, error) {
	var (
		rec          attendance.Record
		confRaw      string
		partRaw      string
		status       string
		zone         sql.NullString
		lastCheckIn  sql.NullTime
		lastCheckOut sql.NullTime
	)
	err := row.Scan(&confRaw, &partRaw, &status, &zone,
		&lastCheckIn, &rec.TotalMinutes, &rec.Completed, &lastCheckOut)
	if err != nil {
		return attendance.Record{}, err
	}

	rec.ConferenceID, err = domain.ParseConferenceID(confRaw)
	if err != nil {
		return attendance.Record{}, fmt.Errorf("stored conference id: %w", err)
	}
	rec.ParticipantID, err = domain.ParseParticipantID(partRaw)
	if err != nil {
		return attendance.Record{}, fmt.Errorf("stored participant id: %w", err)
	}
	rec.Status = attendance.Status(status)
	if zone.Valid {
		rec.CurrentZoneID = domain.ZoneID(zone.String)
	}
	if lastCheckIn.Valid {
		t := lastCheckIn.Time
		rec.LastCheckInAt = &t
	}
	if lastCheckOut.Valid {
		t := lastCheckOut.Time
		rec.LastCheckOutAt = &t
	}

	if !rec.Consistent() {
		return attendance.Record{}, fmt.Errorf("%w: stored record violates presence invariant", sentinel.ErrInvalidState)
	}
	return rec, nil
}

func collectRecords(rows *sql.Rows) ([]attendance.Record, error) {
	var out []attendance.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanLogEntry(rows *sql.Rows) (attendance.LogEntry, error) {
	var (
		entry               attendance.LogEntry
		confRaw, partRaw    string
		entryType, method   string
		zone                sql.NullString
		raw, deduct, recogn sql.NullInt64
		actor               sql.NullString
	)
	err := rows.Scan(&entry.ID, &confRaw, &partRaw, &entryType, &zone,
		&entry.Timestamp, &method, &raw, &deduct, &recogn, &actor)
	if err != nil {
		return attendance.LogEntry{}, fmt.Errorf("scan log entry: %w", err)
	}

	entry.ConferenceID, err = domain.ParseConferenceID(confRaw)
	if err != nil {
		return attendance.LogEntry{}, fmt.Errorf("stored conference id: %w", err)
	}
	entry.ParticipantID, err = domain.ParseParticipantID(partRaw)
	if err != nil {
		return attendance.LogEntry{}, fmt.Errorf("stored participant id: %w", err)
	}
	entry.Type = attendance.EntryType(entryType)
	entry.Method = attendance.Method(method)
	if zone.Valid {
		entry.ZoneID = domain.ZoneID(zone.String)
	}
	if raw.Valid {
		entry.Settlement = &settlement.Result{
			RawMinutes:        int(raw.Int64),
			DeductionMinutes:  int(deduct.Int64),
			RecognizedMinutes: int(recogn.Int64),
		}
	}
	if actor.Valid {
		entry.Actor = actor.String
	}
	return entry, nil
}
