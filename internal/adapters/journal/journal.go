// Package journal persists benchmark records in an append-only SQLite log.
// The in-memory history store is rebuilt from it at startup.
package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/okian/benchtrack/internal/domain/model"
	"github.com/okian/benchtrack/internal/domain/parser"
	"github.com/okian/benchtrack/pkg/logger"
	"github.com/okian/benchtrack/pkg/metrics"
)

//go:embed schema.sql
var schemaSQL string

const (
	metaWatermark = "watermark"
	metaArchived  = "archived_seq"
)

// recordNamespace scopes record ids. A record id is derived from
// (suite, name, commit) so the same measurement is never journaled twice.
var recordNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("benchtrack.record")) //nolint:gochecknoglobals // fixed namespace

// RecordID returns the journal id of a record.
func RecordID(suite, name, commitID string) string {
	return uuid.NewSHA1(recordNamespace, []byte(suite+"\x00"+name+"\x00"+commitID)).String()
}

// Option applies a configuration option to the Journal.
type Option func(*Journal)

// WithLogger sets the journal logger.
func WithLogger(l logger.Logger) Option {
	return func(j *Journal) {
		if l != nil {
			j.log = l
		}
	}
}

// Journal is a durable record log backed by SQLite in WAL mode.
type Journal struct {
	db   *sql.DB
	lock *flock.Flock
	path string
	log  logger.Logger
}

// Open creates or opens the journal at path and applies the schema. The
// journal has a single writer: Open takes an exclusive lock on path.lock and
// fails with ErrLocked while another process holds it.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode
//   - 5-second busy timeout for lock contention
func Open(path string, opts ...Option) (j *Journal, err error) {
	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock journal: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrLocked, path)
	}
	defer func() {
		if err != nil {
			_ = lock.Unlock()
		}
	}()

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect journal: %w", err)
	}

	// SQLite has a single writer; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("journal pragma %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal schema: %w", err)
	}

	j = &Journal{db: db, lock: lock, path: path, log: logger.Nop()}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

// Close closes the database and releases the writer lock.
func (j *Journal) Close() error {
	if j.db == nil {
		return nil
	}
	err := j.db.Close()
	j.db = nil
	return errors.Join(err, j.lock.Unlock())
}

// Path returns the database file path.
func (j *Journal) Path() string { return j.path }

// Append writes records in one transaction. inserted[i] is false when the
// record was already journaled (live or retired).
func (j *Journal) Append(ctx context.Context, records ...model.BenchmarkRecord) (inserted []bool, err error) {
	if len(records) == 0 {
		return nil, nil
	}
	start := time.Now()
	defer func() {
		metrics.RecordJournalWriteLatency(float64(time.Since(start).Microseconds()) / 1000)
		if err != nil {
			metrics.RecordErrorByComponent("journal", "append")
		}
	}()

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("journal append: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	inserted = make([]bool, len(records))
	var mark int64 = math.MinInt64
	for i, r := range records {
		if r.Commit == nil || r.Commit.ID == "" {
			return nil, fmt.Errorf("journal append: %s: missing commit id", r.Key())
		}
		if err := writeCommit(ctx, tx, r.Commit); err != nil {
			return nil, err
		}
		id := RecordID(r.Suite, r.Name, r.Commit.ID)
		res, err := tx.ExecContext(ctx, `
			INSERT INTO records (id, suite, name, tool, commit_id, observed_at, value, unit, extra)
			SELECT ?, ?, ?, ?, ?, ?, ?, ?, ?
			WHERE NOT EXISTS (SELECT 1 FROM retired WHERE id = ?)
			ON CONFLICT(id) DO NOTHING
		`, id, r.Suite, r.Name, r.Tool, r.Commit.ID, r.ObservedAt.UnixNano(), r.Value, r.Unit, parser.FormatExtra(r), id)
		if err != nil {
			return nil, fmt.Errorf("journal append %s: %w", r.Key(), err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("journal append %s: %w", r.Key(), err)
		}
		inserted[i] = n == 1
		if inserted[i] && r.ObservedAt.UnixNano() > mark {
			mark = r.ObservedAt.UnixNano()
		}
	}
	if mark != math.MinInt64 {
		if err := raiseMeta(ctx, tx, metaWatermark, mark); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("journal commit: %w", err)
	}
	return inserted, nil
}

func writeCommit(ctx context.Context, tx *sql.Tx, c *model.CommitRef) error {
	ts := ""
	if !c.Timestamp.IsZero() {
		ts = c.Timestamp.Format(time.RFC3339Nano)
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO commits (id, message, timestamp,
			author_email, author_name, author_username,
			committer_email, committer_name, committer_username,
			is_distinct, tree_id, url)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, c.ID, c.Message, ts,
		c.Author.Email, c.Author.Name, c.Author.Username,
		c.Committer.Email, c.Committer.Name, c.Committer.Username,
		c.Distinct, c.TreeID, c.URL)
	if err != nil {
		return fmt.Errorf("journal commit %s: %w", c.ID, err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func raiseMeta(ctx context.Context, db execer, key string, value int64) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = max(value, excluded.value)
	`, key, value)
	if err != nil {
		return fmt.Errorf("journal meta %s: %w", key, err)
	}
	return nil
}

func (j *Journal) meta(ctx context.Context, key string) (int64, bool, error) {
	var v int64
	err := j.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("journal meta %s: %w", key, err)
	}
	return v, true, nil
}

// Advance raises the stored watermark without adding records.
func (j *Journal) Advance(ctx context.Context, t time.Time) error {
	if t.IsZero() {
		return nil
	}
	return raiseMeta(ctx, j.db, metaWatermark, t.UnixNano())
}

// Watermark returns the stored watermark, or the zero time when none was written.
func (j *Journal) Watermark(ctx context.Context) (time.Time, error) {
	v, ok, err := j.meta(ctx, metaWatermark)
	if err != nil || !ok {
		return time.Time{}, err
	}
	return time.Unix(0, v), nil
}

// Empty reports whether the journal has never recorded anything.
func (j *Journal) Empty(ctx context.Context) (bool, error) {
	var n int
	err := j.db.QueryRowContext(ctx, `
		SELECT (SELECT count(*) FROM records) + (SELECT count(*) FROM retired)
	`).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("journal count: %w", err)
	}
	return n == 0, nil
}

// Archive marks every record journaled so far as rotated out. Archived
// records keep deduplicating but are no longer part of the live history.
func (j *Journal) Archive(ctx context.Context) (int64, error) {
	var maxSeq sql.NullInt64
	if err := j.db.QueryRowContext(ctx, `SELECT max(seq) FROM records`).Scan(&maxSeq); err != nil {
		return 0, fmt.Errorf("journal archive: %w", err)
	}
	if !maxSeq.Valid {
		return 0, nil
	}
	if err := raiseMeta(ctx, j.db, metaArchived, maxSeq.Int64); err != nil {
		return 0, err
	}
	j.log.Info(ctx, "journal archived", logger.Int64("archivedSeq", maxSeq.Int64))
	return maxSeq.Int64, nil
}

// Compact moves archived records to the retired index, drops commits no
// live record references, and vacuums the file. It returns the number of
// records retired.
func (j *Journal) Compact(ctx context.Context) (n int, err error) {
	archived, ok, err := j.meta(ctx, metaArchived)
	if err != nil || !ok {
		return 0, err
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("journal compact: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO retired (id, suite, name, commit_id)
		SELECT id, suite, name, commit_id FROM records WHERE seq <= ? ORDER BY seq
		ON CONFLICT(id) DO NOTHING
	`, archived)
	if err != nil {
		return 0, fmt.Errorf("journal compact: %w", err)
	}
	moved, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("journal compact: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM records WHERE seq <= ?`, archived); err != nil {
		return 0, fmt.Errorf("journal compact: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM commits WHERE id NOT IN (SELECT commit_id FROM records)`); err != nil {
		return 0, fmt.Errorf("journal compact: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("journal compact: %w", err)
	}

	if _, err := j.db.ExecContext(ctx, `VACUUM`); err != nil {
		j.log.Warn(ctx, "journal vacuum failed", logger.Error(err))
	}
	j.log.Info(ctx, "journal compacted", logger.Int64("retired", moved))
	return int(moved), nil
}

// Entry is one replayed journal row. Archived entries were rotated out of
// the live history; retired ones carry only their series key and commit id.
type Entry struct {
	Record   model.BenchmarkRecord
	Archived bool
}

// Replay calls fn for every journaled record in append order: retired ids
// first, then live records. fn must not call back into the journal.
func (j *Journal) Replay(ctx context.Context, fn func(Entry) error) (n int, err error) {
	defer func() {
		if err == nil {
			metrics.RecordJournalReplay(n)
		}
	}()

	archived, _, err := j.meta(ctx, metaArchived)
	if err != nil {
		return 0, err
	}
	commits, err := j.loadCommits(ctx)
	if err != nil {
		return 0, err
	}

	rows, err := j.db.QueryContext(ctx, `SELECT suite, name, commit_id FROM retired ORDER BY seq`)
	if err != nil {
		return 0, fmt.Errorf("journal replay: %w", err)
	}
	for rows.Next() {
		var suite, name, commitID string
		if err := rows.Scan(&suite, &name, &commitID); err != nil {
			_ = rows.Close()
			return n, fmt.Errorf("%w: retired row: %w", ErrCorruptJournal, err)
		}
		rec := model.BenchmarkRecord{Suite: suite, Name: name, Commit: &model.CommitRef{ID: commitID}}
		if err := fn(Entry{Record: rec, Archived: true}); err != nil {
			_ = rows.Close()
			return n, err
		}
		n++
	}
	if err := closeRows(rows); err != nil {
		return n, err
	}

	rows, err = j.db.QueryContext(ctx, `
		SELECT seq, suite, name, tool, commit_id, observed_at, value, unit, extra
		FROM records ORDER BY seq
	`)
	if err != nil {
		return n, fmt.Errorf("journal replay: %w", err)
	}
	for rows.Next() {
		var (
			seq, observed                            int64
			suite, name, tool, commitID, unit, extra string
			value                                    float64
		)
		if err := rows.Scan(&seq, &suite, &name, &tool, &commitID, &observed, &value, &unit, &extra); err != nil {
			_ = rows.Close()
			return n, fmt.Errorf("%w: record row: %w", ErrCorruptJournal, err)
		}
		commit, ok := commits[commitID]
		if !ok {
			_ = rows.Close()
			return n, fmt.Errorf("%w: record %d references unknown commit %s", ErrCorruptJournal, seq, commitID)
		}
		rec, err := parser.Parse(suite, tool, commit, time.Unix(0, observed), model.RawMeasurement{
			Name: name, Value: value, Unit: unit, Extra: extra,
		})
		if err != nil {
			_ = rows.Close()
			return n, fmt.Errorf("%w: record %d: %w", ErrCorruptJournal, seq, err)
		}
		if err := fn(Entry{Record: rec, Archived: seq <= archived}); err != nil {
			_ = rows.Close()
			return n, err
		}
		n++
	}
	if err := closeRows(rows); err != nil {
		return n, err
	}

	j.log.Info(ctx, "journal replayed", logger.Int("entries", n), logger.Int64("archivedSeq", archived))
	return n, nil
}

func closeRows(rows *sql.Rows) error {
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return fmt.Errorf("journal replay: %w", err)
	}
	return rows.Close()
}

// loadCommits reads every commit so records of one commit share a CommitRef.
func (j *Journal) loadCommits(ctx context.Context) (map[string]*model.CommitRef, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, message, timestamp,
			author_email, author_name, author_username,
			committer_email, committer_name, committer_username,
			is_distinct, tree_id, url
		FROM commits
	`)
	if err != nil {
		return nil, fmt.Errorf("journal commits: %w", err)
	}
	defer rows.Close()

	out := make(map[string]*model.CommitRef)
	for rows.Next() {
		var (
			c  model.CommitRef
			ts string
		)
		if err := rows.Scan(&c.ID, &c.Message, &ts,
			&c.Author.Email, &c.Author.Name, &c.Author.Username,
			&c.Committer.Email, &c.Committer.Name, &c.Committer.Username,
			&c.Distinct, &c.TreeID, &c.URL); err != nil {
			return nil, fmt.Errorf("%w: commit row: %w", ErrCorruptJournal, err)
		}
		if ts != "" {
			parsed, err := time.Parse(time.RFC3339Nano, ts)
			if err != nil {
				return nil, fmt.Errorf("%w: commit %s timestamp: %w", ErrCorruptJournal, c.ID, err)
			}
			c.Timestamp = parsed
		}
		out[c.ID] = &c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal commits: %w", err)
	}
	return out, nil
}
