package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/thunur/roadtopo/pkg/geom"
	"github.com/thunur/roadtopo/pkg/zone"
)

// PGSource is a Source backed by a pooled Postgres/PostGIS connection,
// generalizing the ST_Intersects/ST_GeomFromGeoJSON envelope-query
// idiom (grounded on the pack's gabe-kai-EarthRing zone storage) to the
// pgx/v5 pooled driver and plain WKB transfer instead of GeoJSON, since
// the rest of this repo already speaks WKB via go-geos.
type PGSource struct {
	pool  *pgxpool.Pool
	h     *geom.Handle
	table string // source table name, defaults to "lines"
}

// NewPGSource connects a pool against dsn. table is the source table
// holding (id bigint, geom geometry(LineString)); pass "" for the
// default name "lines".
func NewPGSource(ctx context.Context, dsn string, h *geom.Handle, table string) (*PGSource, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: connecting to postgres: %w", err)
	}
	if table == "" {
		table = "lines"
	}
	return &PGSource{pool: pool, h: h, table: table}, nil
}

func (s *PGSource) Close() {
	s.pool.Close()
}

func (s *PGSource) CountLines(ctx context.Context, env zone.Envelope) (int, error) {
	query := fmt.Sprintf(`SELECT count(*) FROM %s WHERE geom && ST_MakeEnvelope($1,$2,$3,$4)`, s.table)
	var n int
	if err := s.pool.QueryRow(ctx, query, env.MinX, env.MinY, env.MaxX, env.MaxY).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: counting lines: %w", err)
	}
	return n, nil
}

func (s *PGSource) WorldExtent(ctx context.Context) (zone.Envelope, error) {
	query := fmt.Sprintf(`SELECT ST_XMin(e), ST_YMin(e), ST_XMax(e), ST_YMax(e) FROM (SELECT ST_Extent(geom) AS e FROM %s) t`, s.table)
	var env zone.Envelope
	if err := s.pool.QueryRow(ctx, query).Scan(&env.MinX, &env.MinY, &env.MaxX, &env.MaxY); err != nil {
		return zone.Envelope{}, fmt.Errorf("store: computing world extent: %w", err)
	}
	return env, nil
}

func (s *PGSource) GetLines(ctx context.Context, env zone.Envelope) ([]Line, error) {
	return s.queryLines(ctx, fmt.Sprintf(
		`SELECT id, ST_AsBinary(geom) FROM %s WHERE geom && ST_MakeEnvelope($1,$2,$3,$4)`, s.table),
		env.MinX, env.MinY, env.MaxX, env.MaxY)
}

func (s *PGSource) GetCommonLines(ctx context.Context, a, b zone.Envelope) ([]Line, error) {
	return s.queryLines(ctx, fmt.Sprintf(
		`SELECT id, ST_AsBinary(geom) FROM %s
		 WHERE geom && ST_MakeEnvelope($1,$2,$3,$4)
		   AND geom && ST_MakeEnvelope($5,$6,$7,$8)`, s.table),
		a.MinX, a.MinY, a.MaxX, a.MaxY,
		b.MinX, b.MinY, b.MaxX, b.MaxY)
}

// queryLines runs query and streams rows into a buffered channel
// decoded by a dedicated goroutine, the same producer/consumer split
// the teacher's PBF importer uses for its node/way decode loop, here
// separating row scanning from WKB decoding so a slow GEOS decode
// never stalls the pgx connection's read loop.
func (s *PGSource) queryLines(ctx context.Context, query string, args ...any) ([]Line, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: querying lines: %w", err)
	}
	defer rows.Close()

	type raw struct {
		id  int
		wkb []byte
	}
	rawChan := make(chan raw, 256)

	var scanErr error
	go func() {
		defer close(rawChan)
		for rows.Next() {
			var r raw
			if err := rows.Scan(&r.id, &r.wkb); err != nil {
				scanErr = err
				return
			}
			rawChan <- r
		}
	}()

	var lines []Line
	var decodeErr error
	for r := range rawChan {
		if decodeErr != nil {
			continue // drain so the scanning goroutine never blocks on a full channel
		}
		g, err := s.h.FromWKB(r.wkb)
		if err != nil {
			decodeErr = fmt.Errorf("store: decoding line %d: %w", r.id, err)
			continue
		}
		lines = append(lines, Line{ID: r.id, Geom: g})
	}
	if scanErr != nil {
		return nil, fmt.Errorf("store: scanning rows: %w", scanErr)
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterating rows: %w", err)
	}
	return lines, nil
}
