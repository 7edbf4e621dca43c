package pipeline

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Pool is the subset of pgxpool.Pool the store needs; pgxmock satisfies it
// in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists uploaded features with derived centroid, bounding box and
// area columns for spatial querying.
type Store struct {
	pool Pool
	log  *zap.Logger
}

// NewStore wraps a connection pool.
func NewStore(pool Pool, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{pool: pool, log: log}
}

const createFeaturesTable = `
CREATE TABLE IF NOT EXISTS features (
	id TEXT PRIMARY KEY,
	geometry JSONB NOT NULL,
	properties JSONB NOT NULL DEFAULT '{}'::jsonb,
	centroid_lon DOUBLE PRECISION NOT NULL,
	centroid_lat DOUBLE PRECISION NOT NULL,
	min_lon DOUBLE PRECISION NOT NULL,
	min_lat DOUBLE PRECISION NOT NULL,
	max_lon DOUBLE PRECISION NOT NULL,
	max_lat DOUBLE PRECISION NOT NULL,
	area DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const insertFeatureSQL = `
INSERT INTO features
	(id, geometry, properties, centroid_lon, centroid_lat, min_lon, min_lat, max_lon, max_lat, area)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

const listFeaturesSQL = `
SELECT geometry, properties FROM features ORDER BY created_at DESC LIMIT $1`

// EnsureSchema creates the features table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, createFeaturesTable); err != nil {
		return eris.Wrap(err, "create features table")
	}
	return nil
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	var one int
	if err := s.pool.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return eris.Wrap(err, "database ping")
	}
	return nil
}

// InsertStats reports the outcome of a feature batch insert. Features
// without geometry and features whose geometry or insert fails are counted
// separately.
type InsertStats struct {
	Inserted          int
	SkippedNoGeometry int
	SkippedInvalid    int
}

// InsertFeatures stores every usable feature of the collection. A feature
// that cannot be serialized or inserted is skipped, never fatal to the
// batch.
func (s *Store) InsertFeatures(ctx context.Context, fc *geojson.FeatureCollection) (InsertStats, error) {
	var stats InsertStats
	for _, f := range fc.Features {
		if f.Geometry == nil {
			stats.SkippedNoGeometry++
			continue
		}

		geomJSON, err := geojson.NewGeometry(f.Geometry).MarshalJSON()
		if err != nil {
			stats.SkippedInvalid++
			continue
		}
		propsJSON, err := json.Marshal(f.Properties)
		if err != nil {
			stats.SkippedInvalid++
			continue
		}

		id := ""
		if f.ID != nil {
			id = stringify(f.ID)
		}
		if id == "" {
			id = uuid.NewString()
		}

		centroid := representativePoint(f.Geometry)
		bound := f.Geometry.Bound()

		if _, err := s.pool.Exec(ctx, insertFeatureSQL,
			id, geomJSON, propsJSON,
			centroid[0], centroid[1],
			bound.Min[0], bound.Min[1], bound.Max[0], bound.Max[1],
			geometryArea(f.Geometry),
		); err != nil {
			s.log.Warn("feature insert skipped", zap.String("id", id), zap.Error(err))
			stats.SkippedInvalid++
			continue
		}
		stats.Inserted++
	}
	return stats, nil
}

// ListFeatures returns the most recently stored features as a collection.
func (s *Store) ListFeatures(ctx context.Context, limit int) (*geojson.FeatureCollection, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx, listFeaturesSQL, limit)
	if err != nil {
		return nil, eris.Wrap(err, "list features")
	}
	defer rows.Close()

	fc := geojson.NewFeatureCollection()
	for rows.Next() {
		var geomJSON, propsJSON []byte
		if err := rows.Scan(&geomJSON, &propsJSON); err != nil {
			return nil, eris.Wrap(err, "scan feature row")
		}

		geom, err := geojson.UnmarshalGeometry(geomJSON)
		if err != nil {
			s.log.Warn("stored feature has unreadable geometry", zap.Error(err))
			continue
		}
		f := geojson.NewFeature(geom.Geometry())
		if len(propsJSON) > 0 {
			var props geojson.Properties
			if err := json.Unmarshal(propsJSON, &props); err == nil {
				f.Properties = props
			}
		}
		fc.Append(f)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "iterate feature rows")
	}
	return fc, nil
}
