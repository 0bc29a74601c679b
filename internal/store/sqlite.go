package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/thunur/roadtopo/pkg/geom"
	"github.com/thunur/roadtopo/pkg/zone"
)

// SQLiteSource is a Source of the same contract as PGSource, backed by
// a local SQLite file — the repository-pattern/migrate idiom
// cwilson613-specularium uses for its own local storage, here serving
// as the test double and offline-replay fixture spec.md §6 calls for.
// Line envelopes are stored as plain float columns since SQLite has no
// native spatial index; bounding-box filtering happens in SQL, exactly
// mirroring the PostGIS `&&` operator's semantics without PostGIS.
type SQLiteSource struct {
	db *sql.DB
	h  *geom.Handle
}

// NewSQLiteSource opens (or creates) the SQLite database at path and
// ensures its schema exists.
func NewSQLiteSource(path string, h *geom.Handle) (*SQLiteSource, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: opening sqlite: %w", err)
	}
	s := &SQLiteSource{db: db, h: h}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteSource) Close() error { return s.db.Close() }

func (s *SQLiteSource) migrate() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS lines (
		id INTEGER PRIMARY KEY,
		min_x REAL NOT NULL,
		min_y REAL NOT NULL,
		max_x REAL NOT NULL,
		max_y REAL NOT NULL,
		wkb BLOB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_lines_bbox ON lines(min_x, min_y, max_x, max_y);
	`
	_, err := s.db.Exec(schema)
	return err
}

// InsertLine is a test/fixture-loading helper; production data is
// already populated by an external process (spec.md §6).
func (s *SQLiteSource) InsertLine(id int, env zone.Envelope, wkb []byte) error {
	_, err := s.db.Exec(
		`INSERT INTO lines (id, min_x, min_y, max_x, max_y, wkb) VALUES (?,?,?,?,?,?)`,
		id, env.MinX, env.MinY, env.MaxX, env.MaxY, wkb,
	)
	return err
}

const bboxOverlap = `min_x <= ? AND max_x >= ? AND min_y <= ? AND max_y >= ?`

func (s *SQLiteSource) CountLines(ctx context.Context, env zone.Envelope) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM lines WHERE `+bboxOverlap,
		env.MaxX, env.MinX, env.MaxY, env.MinY).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: counting lines: %w", err)
	}
	return n, nil
}

func (s *SQLiteSource) WorldExtent(ctx context.Context) (zone.Envelope, error) {
	var env zone.Envelope
	err := s.db.QueryRowContext(ctx,
		`SELECT min(min_x), min(min_y), max(max_x), max(max_y) FROM lines`,
	).Scan(&env.MinX, &env.MinY, &env.MaxX, &env.MaxY)
	if err != nil {
		return zone.Envelope{}, fmt.Errorf("store: computing world extent: %w", err)
	}
	return env, nil
}

func (s *SQLiteSource) GetLines(ctx context.Context, env zone.Envelope) ([]Line, error) {
	return s.queryLines(ctx, `SELECT id, wkb FROM lines WHERE `+bboxOverlap,
		env.MaxX, env.MinX, env.MaxY, env.MinY)
}

func (s *SQLiteSource) GetCommonLines(ctx context.Context, a, b zone.Envelope) ([]Line, error) {
	query := `SELECT id, wkb FROM lines WHERE ` + bboxOverlap + `
		AND ` + bboxOverlap
	return s.queryLines(ctx, query,
		a.MaxX, a.MinX, a.MaxY, a.MinY,
		b.MaxX, b.MinX, b.MaxY, b.MinY,
	)
}

func (s *SQLiteSource) queryLines(ctx context.Context, query string, args ...any) ([]Line, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: querying lines: %w", err)
	}
	defer rows.Close()

	var lines []Line
	for rows.Next() {
		var id int
		var wkb []byte
		if err := rows.Scan(&id, &wkb); err != nil {
			return nil, fmt.Errorf("store: scanning row: %w", err)
		}
		g, err := s.h.FromWKB(wkb)
		if err != nil {
			return nil, fmt.Errorf("store: decoding line %d: %w", id, err)
		}
		lines = append(lines, Line{ID: id, Geom: g})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterating rows: %w", err)
	}
	return lines, nil
}
