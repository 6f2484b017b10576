package sync

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	// Pure-Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"
)

// SQL statements for label map operations.
const (
	sqlGetLabel = `SELECT note_id FROM labels WHERE label = ?`

	// Set runs these two inside one transaction: if the remote store just
	// told us this note id belongs to a new label, any old row holding the
	// same id is stale by definition and must be evicted first or the
	// unique index rejects the upsert.
	sqlEvictNoteID = `DELETE FROM labels WHERE note_id = ? AND label <> ?`

	sqlUpsertLabel = `INSERT INTO labels (label, note_id, synced_at)
		VALUES (?, ?, ?)
		ON CONFLICT(label) DO UPDATE SET
		 note_id = excluded.note_id,
		 synced_at = excluded.synced_at`

	sqlRemoveLabel = `DELETE FROM labels WHERE label = ?`

	sqlListLabels = `SELECT label, note_id FROM labels ORDER BY label`

	sqlCountLabels = `SELECT COUNT(*) FROM labels`

	sqlLastSynced = `SELECT COALESCE(MAX(synced_at), 0) FROM labels`
)

// LabelStore is the durable label → note-id map, backed by SQLite. The
// orchestrator is its sole writer; rows change only after the
// corresponding remote mutation is acknowledged.
type LabelStore struct {
	db      *sql.DB
	logger  *slog.Logger
	nowFunc func() time.Time // injectable for deterministic tests
}

// OpenLabelStore opens the SQLite database at dbPath, runs migrations, and
// returns a ready-to-use store. The database uses WAL mode with
// synchronous=FULL for crash-safe durability.
func OpenLabelStore(dbPath string, logger *slog.Logger) (*LabelStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	// DSN parameters ensure pragmas apply to every connection from the pool.
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)"+
			"&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)",
		dbPath,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sync: opening label database %s: %w", dbPath, err)
	}

	// Sole-writer pattern: only one connection writes at a time.
	db.SetMaxOpenConns(1)

	if err := runMigrations(context.Background(), db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("label store opened", slog.String("db_path", dbPath))

	return &LabelStore{
		db:      db,
		logger:  logger,
		nowFunc: time.Now,
	}, nil
}

// Get returns the note id mapped to label. Absence is normal for a card
// that has never been synced, not an error.
func (s *LabelStore) Get(ctx context.Context, label string) (int64, bool, error) {
	var noteID int64

	err := s.db.QueryRowContext(ctx, sqlGetLabel, label).Scan(&noteID)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}

	if err != nil {
		return 0, false, fmt.Errorf("sync: getting label %q: %w", label, err)
	}

	return noteID, true, nil
}

// Set maps label to noteID, evicting any stale row that holds the same
// note id under a different label. Both statements run in one transaction
// so the "one label per note id" invariant never breaks mid-write.
func (s *LabelStore) Set(ctx context.Context, label string, noteID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sync: beginning label transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, sqlEvictNoteID, noteID, label); err != nil {
		return fmt.Errorf("sync: evicting stale row for note %d: %w", noteID, err)
	}

	syncedAt := s.nowFunc().UnixNano()
	if _, err := tx.ExecContext(ctx, sqlUpsertLabel, label, noteID, syncedAt); err != nil {
		return fmt.Errorf("sync: upserting label %q: %w", label, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sync: committing label %q: %w", label, err)
	}

	return nil
}

// Remove deletes the row for label. Removing an absent label is a no-op.
func (s *LabelStore) Remove(ctx context.Context, label string) error {
	if _, err := s.db.ExecContext(ctx, sqlRemoveLabel, label); err != nil {
		return fmt.Errorf("sync: removing label %q: %w", label, err)
	}

	return nil
}

// Entries returns all label map rows ordered by label.
func (s *LabelStore) Entries(ctx context.Context) ([]LabelEntry, error) {
	rows, err := s.db.QueryContext(ctx, sqlListLabels)
	if err != nil {
		return nil, fmt.Errorf("sync: listing labels: %w", err)
	}
	defer rows.Close()

	var entries []LabelEntry

	for rows.Next() {
		var e LabelEntry
		if err := rows.Scan(&e.Label, &e.NoteID); err != nil {
			return nil, fmt.Errorf("sync: scanning label row: %w", err)
		}

		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sync: iterating label rows: %w", err)
	}

	return entries, nil
}

// Len returns the number of mapped labels.
func (s *LabelStore) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, sqlCountLabels).Scan(&n); err != nil {
		return 0, fmt.Errorf("sync: counting labels: %w", err)
	}

	return n, nil
}

// LastSynced returns the most recent synced_at timestamp (UnixNano), or 0
// when the map is empty.
func (s *LabelStore) LastSynced(ctx context.Context) (int64, error) {
	var ts int64
	if err := s.db.QueryRowContext(ctx, sqlLastSynced).Scan(&ts); err != nil {
		return 0, fmt.Errorf("sync: reading last sync time: %w", err)
	}

	return ts, nil
}

// Close closes the underlying database connection.
func (s *LabelStore) Close() error {
	return s.db.Close()
}
