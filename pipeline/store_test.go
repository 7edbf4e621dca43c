package pipeline

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreEnsureSchema(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS features").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	store := NewStore(mock, nil)
	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStorePing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT 1").
		WillReturnRows(pgxmock.NewRows([]string{"?column?"}).AddRow(1))

	store := NewStore(mock, nil)
	require.NoError(t, store.Ping(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

// anyInsertArgs matches the ten insertFeatureSQL placeholders; pgxmock only
// pairs an expectation with a call when the argument counts agree.
func anyInsertArgs() []interface{} {
	args := make([]interface{}, 10)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func TestStoreInsertFeatures(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO features").
		WithArgs(anyInsertArgs()...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO features").
		WithArgs(anyInsertArgs()...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	fc := geojson.NewFeatureCollection()
	fc.Append(featureWithProps(unitSquare(0, 0, 1, 1), map[string]interface{}{"name": "a"}))
	fc.Append(featureWithProps(orb.Point{1, 2}, nil))
	fc.Append(geojson.NewFeature(nil)) // no geometry, skipped before any query

	store := NewStore(mock, nil)
	stats, err := store.InsertFeatures(context.Background(), fc)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Inserted)
	assert.Equal(t, 1, stats.SkippedNoGeometry)
	assert.Equal(t, 0, stats.SkippedInvalid)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreInsertFeaturesSkipsFailedRow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO features").
		WithArgs(anyInsertArgs()...).
		WillReturnError(eris.New("constraint violation"))
	mock.ExpectExec("INSERT INTO features").
		WithArgs(anyInsertArgs()...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	fc := geojson.NewFeatureCollection()
	fc.Append(featureWithProps(unitSquare(0, 0, 1, 1), nil))
	fc.Append(featureWithProps(unitSquare(2, 2, 3, 3), nil))

	store := NewStore(mock, nil)
	stats, err := store.InsertFeatures(context.Background(), fc)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Inserted)
	assert.Equal(t, 0, stats.SkippedNoGeometry)
	assert.Equal(t, 1, stats.SkippedInvalid)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreListFeatures(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	rows := pgxmock.NewRows([]string{"geometry", "properties"}).
		AddRow(
			[]byte(`{"type":"Point","coordinates":[13.7,51.0]}`),
			[]byte(`{"name":"Markt"}`),
		)
	mock.ExpectQuery("SELECT geometry, properties FROM features").
		WithArgs(50).
		WillReturnRows(rows)

	store := NewStore(mock, nil)
	fc, err := store.ListFeatures(context.Background(), 50)
	require.NoError(t, err)

	require.Len(t, fc.Features, 1)
	assert.Equal(t, orb.Point{13.7, 51.0}, fc.Features[0].Geometry)
	assert.Equal(t, "Markt", fc.Features[0].Properties["name"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreListFeaturesClampsLimit(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT geometry, properties FROM features").
		WithArgs(100).
		WillReturnRows(pgxmock.NewRows([]string{"geometry", "properties"}))

	store := NewStore(mock, nil)
	_, err = store.ListFeatures(context.Background(), -5)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
