// Package pipeline implements the GeoJSON classification engine: feature
// type classification, boundary clipping, dominant-type selection, region
// resolution and layered place lookup.
package pipeline

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Category is the semantic classification of a feature.
type Category string

const (
	CategoryResidential Category = "residential"
	CategoryCommercial  Category = "commercial"
	CategoryIndustrial  Category = "industrial"
	CategoryEducation   Category = "education"
	CategoryHealthcare  Category = "healthcare"
	CategoryReligious   Category = "religious"
	CategoryLeisure     Category = "leisure"
	CategoryTourism     Category = "tourism"
	CategoryAmenity     Category = "amenity"
	CategoryBuilding    Category = "building"
	CategoryPoint       Category = "point"
	CategoryUnknown     Category = "unknown"
)

// categoryLabels maps categories to human-readable display labels.
// Categories without an entry fall back to the raw category name.
var categoryLabels = map[Category]string{
	CategoryResidential: "Wohngebiet",
	CategoryCommercial:  "Gewerbegebiet",
	CategoryIndustrial:  "Industriegebiet",
	CategoryEducation:   "Bildungseinrichtung",
	CategoryHealthcare:  "Gesundheitswesen",
	CategoryReligious:   "Religiöse Einrichtung",
	CategoryLeisure:     "Freizeitfläche",
	CategoryTourism:     "Tourismus",
	CategoryAmenity:     "Öffentliche Einrichtung",
	CategoryBuilding:    "Bebautes Gebiet",
}

// Label returns the display label for the category, falling back to the
// raw category name when no localized label exists.
func (c Category) Label() string {
	if label, ok := categoryLabels[c]; ok {
		return label
	}
	return string(c)
}

// PlaceInfo is a resolved locality label with its provenance.
type PlaceInfo struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Source string `json:"source"`
	ID     string `json:"id,omitempty"`
}

// District is one named polygonal region of a caller-supplied district layer.
type District struct {
	Name     string
	ID       string
	Geometry orb.Geometry
}

// Request carries one classification run's inputs.
type Request struct {
	// Features to classify, in caller order.
	Features []*geojson.Feature

	// Boundary optionally clips which features count toward dominance and
	// replaces the convex hull as the output region geometry.
	Boundary orb.Geometry

	// MinAreaFraction excludes clipped features that retain less than this
	// fraction of their original area. Clamped to [0,1].
	MinAreaFraction float64

	// Districts is the optional first place-resolution tier.
	Districts []District

	// PreferDistrict favors a feature-derived district name over a
	// city-level lookup result.
	PreferDistrict bool

	// EnsurePlaceFields attaches the resolved place to every output
	// feature that has no place attributes of its own.
	EnsurePlaceFields bool
}

// Result is one classification run's output.
type Result struct {
	// Features holds the (possibly filtered and annotated) input features
	// with the synthesized region feature appended last when a region was
	// resolved.
	Features []*geojson.Feature

	// Dominant is the winning category, empty when no feature survived.
	Dominant Category

	// Region is the resolved region geometry (convex hull or boundary),
	// nil when the winning group was empty.
	Region orb.Geometry

	// Place is the resolved locality, nil when no tier produced one.
	Place *PlaceInfo
}

// Property keys written by the region resolver onto dominant-group members
// and the synthesized region feature.
const (
	propDominantMember = "dominant_type_member"
	propDominantType   = "dominant_type"
	propDominantLabel  = "dominant_type_label"
	propRegionType     = "region_type"
	propFeatureCount   = "feature_count"

	propPlaceName = "place_name"
	propPlaceType = "place_type"
	propPlaceID   = "place_id"
)

// Values for the region_type property on the synthesized region feature.
const (
	regionTypeHull     = "convex_hull"
	regionTypeBoundary = "boundary"
)
