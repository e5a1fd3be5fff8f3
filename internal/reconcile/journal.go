package reconcile

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/tildaslashalef/reposync/internal/loggy"
	"github.com/tildaslashalef/reposync/internal/ulid"
)

// JournalEntry is the audit record of one entity outcome
type JournalEntry struct {
	ID            string
	PassID        string
	LocalID       string
	ParentLocalID string
	Kind          Kind
	Name          string
	Action        Action
	Success       bool
	RemoteID      string
	MatchTier     Tier
	Ambiguous     bool
	ErrorKind     ErrorKind
	ErrorDetail   string
	Message       string
	CreatedAt     time.Time
}

// EntryFromResult builds the journal entry for r
func EntryFromResult(passID, parentLocalID string, r *Result, at time.Time) *JournalEntry {
	return &JournalEntry{
		ID:            ulid.LogID(),
		PassID:        passID,
		LocalID:       r.LocalID,
		ParentLocalID: parentLocalID,
		Kind:          r.Kind,
		Name:          r.Name,
		Action:        r.Action,
		Success:       r.Success,
		RemoteID:      r.RemoteID,
		MatchTier:     r.MatchTier,
		Ambiguous:     r.Ambiguous,
		ErrorKind:     r.ErrorKind,
		ErrorDetail:   r.ErrorDetail,
		Message:       r.Message,
		CreatedAt:     at.UTC(),
	}
}

// Journal records entity outcomes for auditing
type Journal interface {
	Record(ctx context.Context, entry *JournalEntry) error
}

var journalColumns = []string{
	"id", "pass_id", "local_id", "parent_local_id", "kind", "name", "action", "success",
	"remote_id", "match_tier", "ambiguous", "error_kind", "error_detail", "message", "created_at",
}

// SQLJournal implements Journal on the reconcile_logs table
type SQLJournal struct {
	db      *sql.DB
	logger  *loggy.Logger
	builder sq.StatementBuilderType
}

// NewSQLJournal creates a new SQL journal
func NewSQLJournal(db *sql.DB, logger *loggy.Logger) *SQLJournal {
	return &SQLJournal{
		db:      db,
		logger:  logger,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Question),
	}
}

// Record inserts entry
func (j *SQLJournal) Record(ctx context.Context, entry *JournalEntry) error {
	if entry.ID == "" {
		entry.ID = ulid.LogID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	query, args, err := j.builder.Insert("reconcile_logs").
		Columns(journalColumns...).
		Values(
			entry.ID, entry.PassID, entry.LocalID, entry.ParentLocalID, string(entry.Kind), entry.Name,
			string(entry.Action), entry.Success, entry.RemoteID, int(entry.MatchTier), entry.Ambiguous,
			string(entry.ErrorKind), entry.ErrorDetail, entry.Message, entry.CreatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("building create reconcile log query: %w", err)
	}

	if _, err := j.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("executing create reconcile log query: %w", err)
	}
	return nil
}

// RecentLogs returns the newest entries first
func (j *SQLJournal) RecentLogs(ctx context.Context, limit int) ([]*JournalEntry, error) {
	return j.query(ctx, "", limit)
}

// LogsFor returns the newest entries of one local entity
func (j *SQLJournal) LogsFor(ctx context.Context, localID string, limit int) ([]*JournalEntry, error) {
	return j.query(ctx, localID, limit)
}

func (j *SQLJournal) query(ctx context.Context, localID string, limit int) ([]*JournalEntry, error) {
	q := j.builder.Select(journalColumns...).
		From("reconcile_logs").
		OrderBy("created_at DESC", "id DESC")

	if localID != "" {
		q = q.Where(sq.Eq{"local_id": localID})
	}
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building get reconcile logs query: %w", err)
	}

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing get reconcile logs query: %w", err)
	}
	defer rows.Close()

	var entries []*JournalEntry
	for rows.Next() {
		var e JournalEntry
		if err := rows.Scan(
			&e.ID,
			&e.PassID,
			&e.LocalID,
			&e.ParentLocalID,
			&e.Kind,
			&e.Name,
			&e.Action,
			&e.Success,
			&e.RemoteID,
			&e.MatchTier,
			&e.Ambiguous,
			&e.ErrorKind,
			&e.ErrorDetail,
			&e.Message,
			&e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning reconcile log row: %w", err)
		}
		entries = append(entries, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating reconcile log rows: %w", err)
	}
	return entries, nil
}
