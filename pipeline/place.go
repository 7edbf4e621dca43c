package pipeline

import (
	"context"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"
)

// AdminArea is one candidate administrative area returned by the
// administrative-boundary lookup service.
type AdminArea struct {
	Name     string
	ID       string
	Level    int
	Geometry orb.Geometry
}

// AdminLookup resolves candidate administrative areas for a bounding box.
// Implementations are expected to be network clients; errors are degraded by
// the resolver, never propagated.
type AdminLookup interface {
	AdminAreas(ctx context.Context, bound orb.Bound) ([]AdminArea, error)
}

// Address is a structured reverse-geocoding result.
type Address struct {
	Fields      map[string]string
	DisplayName string
}

// ReverseGeocoder resolves a structured address for a coordinate.
type ReverseGeocoder interface {
	Reverse(ctx context.Context, lat, lon float64) (*Address, error)
}

// addressFieldPriority is the fixed order in which reverse-geocoded address
// components are considered, most specific first.
var addressFieldPriority = []string{
	"neighbourhood", "suburb", "city_district", "borough",
	"village", "town", "city", "county", "state",
}

// placeKeyPriority is the fixed order in which feature attributes are
// scanned for place hints.
var placeKeyPriority = []string{
	"district", "bezirk", "city_district", "suburb", "neighbourhood",
	"place_name", "place", "name", "label", "display_name",
	"addr:suburb", "addr:city",
}

// districtLikeTypes are the place types treated as more specific than a
// city-level result.
var districtLikeTypes = map[string]bool{
	"district":      true,
	"city_district": true,
	"suburb":        true,
	"neighbourhood": true,
	"borough":       true,
	"bezirk":        true,
}

// Place sources, recorded as PlaceInfo provenance.
const (
	sourceDistrictsLayer = "districts_layer"
	sourceOverpass       = "overpass"
	sourceNominatim      = "nominatim"
	sourceDerived        = "derived_from_features"
)

// Default guards for external enrichment.
const (
	defaultLookupTimeout     = 10 * time.Second
	defaultMaxLookupFeatures = 5000
	defaultMaxLookupArea     = 1.0
)

// PlaceResolver determines a locality label for a region through an ordered
// fallback chain: district layer, administrative-boundary lookup,
// reverse geocoding, and a majority vote over feature attributes. Every tier
// degrades to the next on failure; no place at all is a valid outcome.
type PlaceResolver struct {
	Admin    AdminLookup
	Geocoder ReverseGeocoder

	// LookupTimeout bounds each external call.
	LookupTimeout time.Duration

	// MaxLookupFeatures and MaxLookupArea skip external lookups for
	// oversized requests; the attribute-derived tiers still run.
	MaxLookupFeatures int
	MaxLookupArea     float64

	Log *zap.Logger
}

func (r *PlaceResolver) logger() *zap.Logger {
	if r.Log != nil {
		return r.Log
	}
	return zap.NewNop()
}

func (r *PlaceResolver) lookupTimeout() time.Duration {
	if r.LookupTimeout > 0 {
		return r.LookupTimeout
	}
	return defaultLookupTimeout
}

// lookupsAllowed reports whether external enrichment may run for this
// region and feature count.
func (r *PlaceResolver) lookupsAllowed(region orb.Geometry, featureCount int) bool {
	maxFeatures := r.MaxLookupFeatures
	if maxFeatures <= 0 {
		maxFeatures = defaultMaxLookupFeatures
	}
	maxArea := r.MaxLookupArea
	if maxArea <= 0 {
		maxArea = defaultMaxLookupArea
	}
	if featureCount > maxFeatures {
		return false
	}
	bound := region.Bound()
	area := (bound.Max[0] - bound.Min[0]) * (bound.Max[1] - bound.Min[1])
	return area <= maxArea
}

// Resolve runs the fallback chain for the region. The districts layer is the
// caller's; features feed the derived tier and the override rule.
func (r *PlaceResolver) Resolve(ctx context.Context, region orb.Geometry, districts []District, features []*geojson.Feature, preferDistrict bool) *PlaceInfo {
	if region == nil {
		return nil
	}

	place := r.fromDistrictLayer(region, districts)
	if place == nil && r.lookupsAllowed(region, len(features)) {
		place = r.fromAdminLookup(ctx, region)
		if place == nil {
			place = r.fromReverseGeocode(ctx, region)
		}
	}
	if place == nil {
		place = deriveFromFeatures(features)
	}
	if place == nil {
		return nil
	}

	return r.applyOverride(place, features, preferDistrict)
}

// fromDistrictLayer returns the first district whose polygon intersects the
// region.
func (r *PlaceResolver) fromDistrictLayer(region orb.Geometry, districts []District) *PlaceInfo {
	for _, d := range districts {
		if geometriesIntersect(d.Geometry, region) {
			return &PlaceInfo{Name: d.Name, Type: "district", Source: sourceDistrictsLayer, ID: d.ID}
		}
	}
	return nil
}

// fromAdminLookup queries the administrative-boundary service with the
// region's bounding box and picks the most specific intersecting candidate:
// highest administrative level first, smaller area on ties.
func (r *PlaceResolver) fromAdminLookup(ctx context.Context, region orb.Geometry) *PlaceInfo {
	if r.Admin == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.lookupTimeout())
	defer cancel()

	areas, err := r.Admin.AdminAreas(ctx, region.Bound())
	if err != nil {
		r.logger().Warn("admin lookup degraded", zap.Error(err))
		return nil
	}

	var best *AdminArea
	var bestArea float64
	for i := range areas {
		a := &areas[i]
		if a.Name == "" || a.Geometry == nil || !geometriesIntersect(a.Geometry, region) {
			continue
		}
		size := geometryArea(a.Geometry)
		if best == nil || a.Level > best.Level || (a.Level == best.Level && size < bestArea) {
			best = a
			bestArea = size
		}
	}
	if best == nil {
		return nil
	}
	return &PlaceInfo{Name: best.Name, Type: "district", Source: sourceOverpass, ID: best.ID}
}

// fromReverseGeocode resolves the region's representative point and walks
// the address fields most specific first, falling back to the provider's
// display name.
func (r *PlaceResolver) fromReverseGeocode(ctx context.Context, region orb.Geometry) *PlaceInfo {
	if r.Geocoder == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.lookupTimeout())
	defer cancel()

	pt := representativePoint(region)
	addr, err := r.Geocoder.Reverse(ctx, pt[1], pt[0])
	if err != nil || addr == nil {
		if err != nil {
			r.logger().Warn("reverse geocode degraded", zap.Error(err))
		}
		return nil
	}

	for _, field := range addressFieldPriority {
		if v := addr.Fields[field]; v != "" {
			return &PlaceInfo{Name: v, Type: field, Source: sourceNominatim}
		}
	}
	if addr.DisplayName != "" {
		return &PlaceInfo{Name: addr.DisplayName, Type: "display_name", Source: sourceNominatim}
	}
	return nil
}

// applyOverride swaps a city-level or generic result for a district-like
// name derived from the features. City-level results always yield to a
// derived district; generic results yield only when the caller prefers
// districts.
func (r *PlaceResolver) applyOverride(place *PlaceInfo, features []*geojson.Feature, preferDistrict bool) *PlaceInfo {
	generic := place.Type == "" || place.Type == "display_name"
	cityLevel := place.Type == "city" || place.Type == "town"
	if !generic && !cityLevel {
		return place
	}
	if !cityLevel && !preferDistrict {
		return place
	}

	derived := deriveFromFeatures(features)
	if derived == nil || !districtLikeTypes[derived.Type] {
		return place
	}
	return derived
}

// deriveFromFeatures tallies place hints across the feature attributes and
// returns the most frequent value. Each feature contributes its highest-
// priority hint once; ties break toward the hint seen first.
func deriveFromFeatures(features []*geojson.Feature) *PlaceInfo {
	counts := make(map[string]int)
	types := make(map[string]string)
	var order []string

	for _, f := range features {
		name, placeType, ok := derivePlaceFromFeature(f)
		if !ok {
			continue
		}
		if _, seen := counts[name]; !seen {
			order = append(order, name)
			types[name] = placeType
		}
		counts[name]++
	}

	var winner string
	bestCount := 0
	for _, name := range order {
		if counts[name] > bestCount {
			winner = name
			bestCount = counts[name]
		}
	}
	if winner == "" {
		return nil
	}
	return &PlaceInfo{Name: winner, Type: types[winner], Source: sourceDerived}
}

// derivePlaceFromFeature extracts a single feature's place hint: the value
// of its highest-priority place key, typed by the key itself or, for
// generic name keys, by the feature's own "place" tag.
func derivePlaceFromFeature(f *geojson.Feature) (name, placeType string, ok bool) {
	for _, key := range placeKeyPriority {
		v, found := featureString(f, key)
		if !found {
			continue
		}
		return v, placeTypeForKey(f, key), true
	}
	return "", "", false
}

// placeTypeForKey infers the place type contributed by a key. Generic keys
// defer to the feature's "place" tag when it names a district-like type.
func placeTypeForKey(f *geojson.Feature, key string) string {
	switch key {
	case "name", "label", "display_name", "place_name":
		if v, found := featureString(f, "place"); found && districtLikeTypes[v] {
			return v
		}
		return key
	case "place":
		if v, found := featureString(f, "place"); found && districtLikeTypes[v] {
			return v
		}
		return "place"
	case "addr:suburb":
		return "suburb"
	case "addr:city":
		return "city"
	case "bezirk":
		return "district"
	default:
		return key
	}
}

// attachPlace writes the resolved place onto every feature lacking its own
// place attributes. A feature whose own attributes yield a district-like
// hint keeps that value instead.
func attachPlace(features []*geojson.Feature, place *PlaceInfo) []*geojson.Feature {
	out := make([]*geojson.Feature, 0, len(features))
	for _, f := range features {
		if f.Properties != nil {
			if _, has := f.Properties[propPlaceName]; has {
				out = append(out, f)
				continue
			}
		}

		name, placeType := place.Name, place.Type
		id := place.ID
		if ownName, ownType, ok := derivePlaceFromFeature(f); ok && districtLikeTypes[ownType] {
			name, placeType, id = ownName, ownType, ""
		}

		props := copyProperties(f.Properties)
		props[propPlaceName] = name
		props[propPlaceType] = placeType
		if id != "" {
			props[propPlaceID] = id
		}

		annotated := geojson.NewFeature(f.Geometry)
		annotated.ID = f.ID
		annotated.Properties = props
		out = append(out, annotated)
	}
	return out
}
