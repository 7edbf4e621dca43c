package pipeline

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// classifiedFeature pairs an input feature with its classification and the
// geometry the clipper kept for it.
type classifiedFeature struct {
	feature  *geojson.Feature
	category Category
	clipped  orb.Geometry
	kept     bool
}

// resolveRegion derives the region geometry for the winning category and the
// annotated output feature set. With a boundary the boundary itself becomes
// the region and the output is filtered to features inside it; without one
// the region is the convex hull of the winning group and every input feature
// passes through. An empty winning group leaves the input untouched.
func resolveRegion(features []classifiedFeature, winner Category, boundary orb.Geometry) (orb.Geometry, []*geojson.Feature) {
	var winning []classifiedFeature
	for _, cf := range features {
		if cf.kept && cf.category == winner {
			winning = append(winning, cf)
		}
	}

	if winner == "" || len(winning) == 0 {
		out := make([]*geojson.Feature, 0, len(features))
		for _, cf := range features {
			out = append(out, cf.feature)
		}
		return nil, out
	}

	if boundary != nil {
		// Callers supplying an explicit clip want the output bounded by
		// their drawn shape, not by a potentially larger hull.
		var out []*geojson.Feature
		for _, cf := range features {
			if !geometryWithin(cf.feature.Geometry, boundary) {
				continue
			}
			if cf.category == winner {
				out = append(out, annotateDominant(cf.feature, winner))
			} else if isAdminContext(cf.feature) {
				out = append(out, cf.feature)
			}
		}
		return boundary, out
	}

	region := hullOfGroup(winning)
	out := make([]*geojson.Feature, 0, len(features))
	for _, cf := range features {
		if cf.kept && cf.category == winner {
			out = append(out, annotateDominant(cf.feature, winner))
		} else {
			out = append(out, cf.feature)
		}
	}
	return region, out
}

// hullOfGroup unions the group's polygonal geometries and wraps the result,
// together with any non-polygonal members, in a convex hull.
func hullOfGroup(group []classifiedFeature) orb.Geometry {
	geoms := make([]orb.Geometry, 0, len(group))
	for _, cf := range group {
		geoms = append(geoms, cf.clipped)
	}

	var pts []orb.Point
	merged, err := unionGeometries(geoms)
	if err == nil && merged != nil {
		pts = collectPoints(merged)
	}
	for _, g := range geoms {
		if _, polygonal := toPolygolGeom(g); !polygonal || err != nil {
			pts = append(pts, collectPoints(g)...)
		}
	}

	return convexHull(pts)
}

// annotateDominant returns a copy of the feature marked as a member of the
// dominant category. The input feature is never mutated.
func annotateDominant(f *geojson.Feature, winner Category) *geojson.Feature {
	props := copyProperties(f.Properties)
	props[propDominantMember] = true
	props[propDominantType] = string(winner)
	props[propDominantLabel] = winner.Label()

	out := geojson.NewFeature(f.Geometry)
	out.ID = f.ID
	out.Properties = props
	return out
}

// isAdminContext reports whether a feature carries administrative-boundary
// markers and should survive boundary filtering regardless of its category.
func isAdminContext(f *geojson.Feature) bool {
	if v, ok := featureString(f, "boundary"); ok && v == "administrative" {
		return true
	}
	if _, ok := featureString(f, "admin_level"); ok {
		return true
	}
	if v, ok := featureString(f, "place"); ok {
		switch v {
		case "district", "city_district", "suburb", "neighbourhood", "borough":
			return true
		}
	}
	return false
}
