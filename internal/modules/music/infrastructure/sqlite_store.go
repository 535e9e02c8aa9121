package infrastructure

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/tneulab/groovebot/internal/modules/music/application/ports"
	"github.com/tneulab/groovebot/internal/modules/music/domain"
)

// SQLiteStore persists the metadata cache in a SQLite database.
// Merges run inside a single transaction so concurrent resolutions of
// the same track never lose a play count increment.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and applies
// the schema. Pass ":memory:" for an ephemeral store.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path)
	maxConns := 5
	if strings.Contains(path, ":memory:") {
		// Every connection to :memory: is its own database; keep one.
		dsn = "file::memory:?_busy_timeout=5000"
		maxConns = 1
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(maxConns)

	store := &SQLiteStore{db: db}
	if err := store.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pragmas := []string{
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, p := range pragmas {
		if _, err := s.db.ExecContext(initCtx, p); err != nil {
			return fmt.Errorf("failed to apply pragma %q: %w", p, err)
		}
	}

	tables := []string{
		`CREATE TABLE IF NOT EXISTS tracks (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			artist TEXT NOT NULL,
			duration_ms INTEGER NOT NULL,
			source_url TEXT NOT NULL,
			thumbnail_url TEXT NOT NULL DEFAULT '',
			catalog_id TEXT NOT NULL DEFAULT '',
			play_count INTEGER NOT NULL DEFAULT 1,
			first_seen DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			last_played DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS track_queries (
			track_id TEXT NOT NULL REFERENCES tracks(id) ON DELETE CASCADE,
			query TEXT NOT NULL,
			PRIMARY KEY (track_id, query)
		)`,
		`CREATE TABLE IF NOT EXISTS search_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			query TEXT NOT NULL,
			result_count INTEGER NOT NULL,
			cache_hit INTEGER NOT NULL,
			searched_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	tx, err := s.db.BeginTx(initCtx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, q := range tables {
		if _, err := tx.ExecContext(initCtx, q); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return tx.Commit()
}

// Merge upserts the track under its identity hash: insert fresh with
// play count 1, or increment the existing row and refresh its
// last-played timestamp. The source query joins the track's synonym
// set either way. Everything happens in one transaction.
func (s *SQLiteStore) Merge(ctx context.Context, track *domain.Track, sourceQuery string) (domain.CacheRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.CacheRecord{}, fmt.Errorf("failed to begin merge: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO tracks (id, title, artist, duration_ms, source_url, thumbnail_url, catalog_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			play_count = play_count + 1,
			last_played = CURRENT_TIMESTAMP,
			thumbnail_url = CASE WHEN excluded.thumbnail_url != '' THEN excluded.thumbnail_url ELSE thumbnail_url END,
			catalog_id = CASE WHEN excluded.catalog_id != '' THEN excluded.catalog_id ELSE catalog_id END
	`, string(track.ID), track.Title, track.Artist, track.Duration.Milliseconds(),
		track.SourceURL, track.ThumbnailURL, track.CatalogID)
	if err != nil {
		return domain.CacheRecord{}, fmt.Errorf("failed to upsert track: %w", err)
	}

	normalized := strings.ToLower(strings.TrimSpace(sourceQuery))
	if normalized != "" {
		_, err = tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO track_queries (track_id, query) VALUES (?, ?)`,
			string(track.ID), normalized)
		if err != nil {
			return domain.CacheRecord{}, fmt.Errorf("failed to record query synonym: %w", err)
		}
	}

	record, err := s.readRecord(ctx, tx, string(track.ID))
	if err != nil {
		return domain.CacheRecord{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.CacheRecord{}, fmt.Errorf("failed to commit merge: %w", err)
	}
	return record, nil
}

// Lookup matches the text against titles, artists and query synonyms,
// most played first. Ties break on recency.
func (s *SQLiteStore) Lookup(ctx context.Context, query string, limit int) ([]domain.CacheRecord, error) {
	pattern := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"

	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT t.id, t.title, t.artist, t.duration_ms, t.source_url,
			t.thumbnail_url, t.catalog_id, t.play_count, t.first_seen, t.last_played
		FROM tracks t
		LEFT JOIN track_queries q ON q.track_id = t.id
		WHERE lower(t.title) LIKE ? OR lower(t.artist) LIKE ? OR q.query LIKE ?
		ORDER BY t.play_count DESC, t.last_played DESC
		LIMIT ?
	`, pattern, pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query cache: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}

	for i := range records {
		queries, err := s.trackQueries(ctx, string(records[i].ID))
		if err != nil {
			return nil, err
		}
		records[i].Queries = queries
	}
	return records, nil
}

// Stats returns cache totals and the topN most played records.
func (s *SQLiteStore) Stats(ctx context.Context, topN int) (domain.CacheStats, error) {
	var stats domain.CacheStats
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(play_count), 0) FROM tracks`,
	).Scan(&stats.TotalTracks, &stats.TotalPlays)
	if err != nil {
		return domain.CacheStats{}, fmt.Errorf("failed to read cache totals: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, artist, duration_ms, source_url,
			thumbnail_url, catalog_id, play_count, first_seen, last_played
		FROM tracks
		ORDER BY play_count DESC, last_played DESC
		LIMIT ?
	`, topN)
	if err != nil {
		return domain.CacheStats{}, fmt.Errorf("failed to read top tracks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	stats.MostPlayed, err = scanRecords(rows)
	if err != nil {
		return domain.CacheStats{}, err
	}
	return stats, nil
}

// Purge removes every cached track and its synonyms. The search log is
// append-only and survives.
func (s *SQLiteStore) Purge(ctx context.Context) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin purge: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM track_queries`); err != nil {
		return 0, fmt.Errorf("failed to purge query synonyms: %w", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM tracks`)
	if err != nil {
		return 0, fmt.Errorf("failed to purge tracks: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit purge: %w", err)
	}
	return removed, nil
}

// LogSearch appends one entry to the search log.
func (s *SQLiteStore) LogSearch(ctx context.Context, query string, resultCount int, cacheHit bool) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO search_log (query, result_count, cache_hit) VALUES (?, ?, ?)`,
		query, resultCount, cacheHit)
	if err != nil {
		return fmt.Errorf("failed to log search: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) readRecord(ctx context.Context, tx *sql.Tx, id string) (domain.CacheRecord, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT id, title, artist, duration_ms, source_url,
			thumbnail_url, catalog_id, play_count, first_seen, last_played
		FROM tracks WHERE id = ?
	`, id)

	record, err := scanRecord(row.Scan)
	if err != nil {
		return domain.CacheRecord{}, fmt.Errorf("failed to read merged record: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT query FROM track_queries WHERE track_id = ? ORDER BY query`, id)
	if err != nil {
		return domain.CacheRecord{}, fmt.Errorf("failed to read query synonyms: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var q string
		if err := rows.Scan(&q); err != nil {
			return domain.CacheRecord{}, err
		}
		record.Queries = append(record.Queries, q)
	}
	return record, rows.Err()
}

func (s *SQLiteStore) trackQueries(ctx context.Context, id string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT query FROM track_queries WHERE track_id = ? ORDER BY query`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to read query synonyms: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var queries []string
	for rows.Next() {
		var q string
		if err := rows.Scan(&q); err != nil {
			return nil, err
		}
		queries = append(queries, q)
	}
	return queries, rows.Err()
}

func scanRecords(rows *sql.Rows) ([]domain.CacheRecord, error) {
	var records []domain.CacheRecord
	for rows.Next() {
		record, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cache record: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func scanRecord(scan func(...any) error) (domain.CacheRecord, error) {
	var (
		record     domain.CacheRecord
		id         string
		durationMs int64
	)
	err := scan(&id, &record.Title, &record.Artist, &durationMs, &record.SourceURL,
		&record.ThumbnailURL, &record.CatalogID, &record.PlayCount,
		&record.FirstSeen, &record.LastPlayed)
	if err != nil {
		return domain.CacheRecord{}, err
	}
	record.ID = domain.TrackID(id)
	record.Duration = time.Duration(durationMs) * time.Millisecond
	return record, nil
}

var _ ports.CacheStore = (*SQLiteStore)(nil)
