package pipeline

import (
	"context"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessEndToEndHull(t *testing.T) {
	req := &Request{
		Features: []*geojson.Feature{
			featureWithProps(unitSquare(0, 0, 1, 1), map[string]interface{}{"landuse": "residential"}),
			featureWithProps(unitSquare(2, 0, 3, 1), map[string]interface{}{"landuse": "residential"}),
			featureWithProps(unitSquare(0, 2, 1, 3), map[string]interface{}{"landuse": "residential"}),
			featureWithProps(unitSquare(5, 5, 6, 6), map[string]interface{}{"landuse": "industrial"}),
		},
	}

	p := &Processor{}
	result := p.Process(context.Background(), req)

	assert.Equal(t, CategoryResidential, result.Dominant)
	require.Len(t, result.Features, 5)

	// The synthesized region feature is always last.
	region := result.Features[4]
	assert.Equal(t, regionTypeHull, region.Properties[propRegionType])
	assert.Equal(t, "residential", region.Properties[propDominantType])
	assert.Equal(t, "Wohngebiet", region.Properties[propDominantLabel])
	assert.Equal(t, 3, region.Properties[propFeatureCount])
	assert.NotEmpty(t, region.ID)

	// The hull spans the residential squares only.
	bound := region.Geometry.Bound()
	assert.Equal(t, orb.Point{0, 0}, bound.Min)
	assert.Equal(t, orb.Point{3, 3}, bound.Max)
	assert.Equal(t, region.Geometry, result.Region)
}

func TestProcessEndToEndBoundary(t *testing.T) {
	boundary := orb.Geometry(unitSquare(0, 0, 10, 10))
	req := &Request{
		Features: []*geojson.Feature{
			featureWithProps(unitSquare(1, 1, 2, 2), map[string]interface{}{"landuse": "residential"}),
		},
		Boundary: boundary,
	}

	p := &Processor{}
	result := p.Process(context.Background(), req)

	assert.Equal(t, CategoryResidential, result.Dominant)
	assert.Equal(t, boundary, result.Region)

	region := result.Features[len(result.Features)-1]
	assert.Equal(t, boundary, region.Geometry)
	assert.Equal(t, regionTypeBoundary, region.Properties[propRegionType])
}

func TestProcessEmptyInput(t *testing.T) {
	p := &Processor{}
	result := p.Process(context.Background(), &Request{})

	assert.Empty(t, result.Features)
	assert.Equal(t, Category(""), result.Dominant)
	assert.Nil(t, result.Region)
	assert.Nil(t, result.Place)
}

func TestProcessBoundaryExcludesEverything(t *testing.T) {
	req := &Request{
		Features: []*geojson.Feature{
			featureWithProps(unitSquare(5, 5, 6, 6), map[string]interface{}{"landuse": "residential"}),
		},
		Boundary: unitSquare(0, 0, 1, 1),
	}

	p := &Processor{}
	result := p.Process(context.Background(), req)

	// No winner, no region feature; the input passes through unchanged.
	assert.Equal(t, Category(""), result.Dominant)
	assert.Nil(t, result.Region)
	assert.Len(t, result.Features, 1)
}

func TestProcessAttachesPlaceWhenRequested(t *testing.T) {
	req := &Request{
		Features: []*geojson.Feature{
			featureWithProps(unitSquare(0, 0, 1, 1), map[string]interface{}{"landuse": "residential"}),
		},
		Districts: []District{
			{Name: "Altstadt", ID: "d1", Geometry: unitSquare(0, 0, 2, 2)},
		},
		EnsurePlaceFields: true,
	}

	p := &Processor{}
	result := p.Process(context.Background(), req)

	require.NotNil(t, result.Place)
	assert.Equal(t, "Altstadt", result.Place.Name)

	for _, f := range result.Features {
		assert.Equal(t, "Altstadt", f.Properties[propPlaceName])
	}
}

func TestProcessPlaceTopLevelOnlyByDefault(t *testing.T) {
	req := &Request{
		Features: []*geojson.Feature{
			featureWithProps(unitSquare(0, 0, 1, 1), map[string]interface{}{"landuse": "residential"}),
		},
		Districts: []District{
			{Name: "Altstadt", Geometry: unitSquare(0, 0, 2, 2)},
		},
	}

	p := &Processor{}
	result := p.Process(context.Background(), req)

	require.NotNil(t, result.Place)
	// Without ensure_place_fields only the region feature carries the place.
	assert.NotContains(t, result.Features[0].Properties, propPlaceName)
	region := result.Features[len(result.Features)-1]
	assert.Equal(t, "Altstadt", region.Properties[propPlaceName])
}

func TestProcessIdempotentCategorization(t *testing.T) {
	req := &Request{
		Features: []*geojson.Feature{
			featureWithProps(unitSquare(0, 0, 1, 1), map[string]interface{}{"landuse": "residential"}),
			featureWithProps(unitSquare(2, 0, 3, 1), map[string]interface{}{"landuse": "residential"}),
		},
	}

	p := &Processor{}
	first := p.Process(context.Background(), req)
	require.Len(t, first.Features, 3)

	// Re-run on the prior output minus the synthesized region feature.
	second := p.Process(context.Background(), &Request{
		Features: first.Features[:len(first.Features)-1],
	})

	assert.Equal(t, first.Dominant, second.Dominant)
	assert.Equal(t, first.Region.Bound(), second.Region.Bound())
}
