package pipeline

import (
	"context"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAdmin struct {
	areas  []AdminArea
	err    error
	called bool
}

func (s *stubAdmin) AdminAreas(_ context.Context, _ orb.Bound) ([]AdminArea, error) {
	s.called = true
	return s.areas, s.err
}

type stubGeocoder struct {
	addr   *Address
	err    error
	called bool
}

func (s *stubGeocoder) Reverse(_ context.Context, _, _ float64) (*Address, error) {
	s.called = true
	return s.addr, s.err
}

func TestPlaceDistrictLayerWinsOverAdminLookup(t *testing.T) {
	region := orb.Geometry(unitSquare(0, 0, 1, 1))
	admin := &stubAdmin{areas: []AdminArea{{
		Name:     "Somewhere Else",
		Level:    9,
		Geometry: unitSquare(0, 0, 1, 1),
	}}}
	resolver := &PlaceResolver{Admin: admin}

	districts := []District{
		{Name: "Neustadt", ID: "d1", Geometry: unitSquare(0.5, 0.5, 2, 2)},
	}

	place := resolver.Resolve(context.Background(), region, districts, nil, false)
	require.NotNil(t, place)
	assert.Equal(t, "Neustadt", place.Name)
	assert.Equal(t, "district", place.Type)
	assert.Equal(t, sourceDistrictsLayer, place.Source)
	assert.Equal(t, "d1", place.ID)
	assert.False(t, admin.called)
}

func TestPlaceDistrictLayerSkipsNonIntersecting(t *testing.T) {
	region := orb.Geometry(unitSquare(0, 0, 1, 1))
	resolver := &PlaceResolver{}

	districts := []District{
		{Name: "Far Away", Geometry: unitSquare(10, 10, 11, 11)},
		{Name: "Mitte", Geometry: unitSquare(0, 0, 2, 2)},
	}

	place := resolver.Resolve(context.Background(), region, districts, nil, false)
	require.NotNil(t, place)
	assert.Equal(t, "Mitte", place.Name)
}

func TestPlaceAdminLookupPrefersHigherLevel(t *testing.T) {
	region := orb.Geometry(unitSquare(0, 0, 1, 1))
	admin := &stubAdmin{areas: []AdminArea{
		{Name: "Dresden", Level: 6, Geometry: unitSquare(-10, -10, 10, 10)},
		{Name: "Altstadt", Level: 9, Geometry: unitSquare(0, 0, 2, 2)},
		{Name: "Elsewhere", Level: 10, Geometry: unitSquare(50, 50, 51, 51)},
	}}
	resolver := &PlaceResolver{Admin: admin}

	place := resolver.Resolve(context.Background(), region, nil, nil, false)
	require.NotNil(t, place)
	assert.Equal(t, "Altstadt", place.Name)
	assert.Equal(t, sourceOverpass, place.Source)
}

func TestPlaceAdminLookupTieBreaksOnArea(t *testing.T) {
	region := orb.Geometry(unitSquare(0, 0, 1, 1))
	admin := &stubAdmin{areas: []AdminArea{
		{Name: "Big", Level: 8, Geometry: unitSquare(-10, -10, 10, 10)},
		{Name: "Small", Level: 8, Geometry: unitSquare(0, 0, 2, 2)},
	}}
	resolver := &PlaceResolver{Admin: admin}

	place := resolver.Resolve(context.Background(), region, nil, nil, false)
	require.NotNil(t, place)
	assert.Equal(t, "Small", place.Name)
}

func TestPlaceAdminErrorDegradesToGeocoder(t *testing.T) {
	region := orb.Geometry(unitSquare(0, 0, 1, 1))
	admin := &stubAdmin{err: eris.New("overpass down")}
	geocoder := &stubGeocoder{addr: &Address{
		Fields: map[string]string{"suburb": "Löbtau", "city": "Dresden"},
	}}
	resolver := &PlaceResolver{Admin: admin, Geocoder: geocoder}

	place := resolver.Resolve(context.Background(), region, nil, nil, false)
	require.NotNil(t, place)
	assert.Equal(t, "Löbtau", place.Name)
	assert.Equal(t, "suburb", place.Type)
	assert.Equal(t, sourceNominatim, place.Source)
	assert.True(t, admin.called)
}

func TestPlaceGeocoderDisplayNameFallback(t *testing.T) {
	region := orb.Geometry(unitSquare(0, 0, 1, 1))
	geocoder := &stubGeocoder{addr: &Address{
		Fields:      map[string]string{"road": "Hauptstraße"},
		DisplayName: "Hauptstraße, Dresden, Deutschland",
	}}
	resolver := &PlaceResolver{Geocoder: geocoder}

	place := resolver.Resolve(context.Background(), region, nil, nil, false)
	require.NotNil(t, place)
	assert.Equal(t, "display_name", place.Type)
	assert.Equal(t, "Hauptstraße, Dresden, Deutschland", place.Name)
}

func TestPlaceDerivedMajorityVote(t *testing.T) {
	region := orb.Geometry(unitSquare(0, 0, 1, 1))
	resolver := &PlaceResolver{}

	features := []*geojson.Feature{
		featureWithProps(orb.Point{0, 0}, map[string]interface{}{"suburb": "Plauen"}),
		featureWithProps(orb.Point{0, 0}, map[string]interface{}{"suburb": "Plauen"}),
		featureWithProps(orb.Point{0, 0}, map[string]interface{}{"suburb": "Striesen"}),
	}

	place := resolver.Resolve(context.Background(), region, nil, features, false)
	require.NotNil(t, place)
	assert.Equal(t, "Plauen", place.Name)
	assert.Equal(t, "suburb", place.Type)
	assert.Equal(t, sourceDerived, place.Source)
}

func TestPlaceDerivedChecksTagsSubMap(t *testing.T) {
	region := orb.Geometry(unitSquare(0, 0, 1, 1))
	resolver := &PlaceResolver{}

	features := []*geojson.Feature{
		featureWithProps(orb.Point{0, 0}, map[string]interface{}{
			"tags": map[string]interface{}{"district": "Neustadt"},
		}),
	}

	place := resolver.Resolve(context.Background(), region, nil, features, false)
	require.NotNil(t, place)
	assert.Equal(t, "Neustadt", place.Name)
	assert.Equal(t, "district", place.Type)
}

func TestPlaceOverrideCityWithDerivedDistrict(t *testing.T) {
	region := orb.Geometry(unitSquare(0, 0, 1, 1))
	geocoder := &stubGeocoder{addr: &Address{
		Fields: map[string]string{"city": "Dresden"},
	}}
	resolver := &PlaceResolver{Geocoder: geocoder}

	features := []*geojson.Feature{
		featureWithProps(orb.Point{0, 0}, map[string]interface{}{"district": "Pieschen"}),
		featureWithProps(orb.Point{0, 0}, map[string]interface{}{"district": "Pieschen"}),
	}

	place := resolver.Resolve(context.Background(), region, nil, features, true)
	require.NotNil(t, place)
	assert.Equal(t, "Pieschen", place.Name)
	assert.Equal(t, "district", place.Type)
	assert.Equal(t, sourceDerived, place.Source)
}

func TestPlaceGenericKeptWithoutPreferDistrict(t *testing.T) {
	place := &PlaceInfo{Name: "Somewhere, Germany", Type: "display_name", Source: sourceNominatim}
	features := []*geojson.Feature{
		featureWithProps(orb.Point{0, 0}, map[string]interface{}{"district": "Pieschen"}),
	}

	resolver := &PlaceResolver{}
	kept := resolver.applyOverride(place, features, false)
	assert.Equal(t, place, kept)

	replaced := resolver.applyOverride(place, features, true)
	assert.Equal(t, "Pieschen", replaced.Name)
}

func TestPlaceDistrictResultNotOverridden(t *testing.T) {
	place := &PlaceInfo{Name: "Altstadt", Type: "district", Source: sourceOverpass}
	features := []*geojson.Feature{
		featureWithProps(orb.Point{0, 0}, map[string]interface{}{"district": "Pieschen"}),
	}

	resolver := &PlaceResolver{}
	assert.Equal(t, place, resolver.applyOverride(place, features, true))
}

func TestPlaceNoResultIsNil(t *testing.T) {
	region := orb.Geometry(unitSquare(0, 0, 1, 1))
	resolver := &PlaceResolver{}
	assert.Nil(t, resolver.Resolve(context.Background(), region, nil, nil, false))
}

func TestPlaceLookupsSkippedForHugeRegions(t *testing.T) {
	region := orb.Geometry(unitSquare(0, 0, 50, 50))
	admin := &stubAdmin{areas: []AdminArea{{
		Name:     "Altstadt",
		Level:    9,
		Geometry: unitSquare(0, 0, 50, 50),
	}}}
	resolver := &PlaceResolver{Admin: admin}

	place := resolver.Resolve(context.Background(), region, nil, nil, false)
	assert.Nil(t, place)
	assert.False(t, admin.called)
}

func TestAttachPlace(t *testing.T) {
	place := &PlaceInfo{Name: "Altstadt", Type: "district", Source: sourceOverpass, ID: "relation/5"}

	plain := featureWithProps(orb.Point{0, 0}, nil)
	ownDistrict := featureWithProps(orb.Point{0, 0}, map[string]interface{}{"suburb": "Löbtau"})
	alreadyPlaced := featureWithProps(orb.Point{0, 0}, map[string]interface{}{propPlaceName: "Blasewitz"})

	out := attachPlace([]*geojson.Feature{plain, ownDistrict, alreadyPlaced}, place)
	require.Len(t, out, 3)

	assert.Equal(t, "Altstadt", out[0].Properties[propPlaceName])
	assert.Equal(t, "district", out[0].Properties[propPlaceType])
	assert.Equal(t, "relation/5", out[0].Properties[propPlaceID])

	// Local district-like evidence outranks the regional place.
	assert.Equal(t, "Löbtau", out[1].Properties[propPlaceName])
	assert.Equal(t, "suburb", out[1].Properties[propPlaceType])

	// Existing place attributes are never overwritten.
	assert.Same(t, alreadyPlaced, out[2])
	assert.Equal(t, "Blasewitz", out[2].Properties[propPlaceName])
}
