package pipeline

import (
	"math"
	"sort"

	"github.com/engelsjk/polygol"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/rotisserie/eris"
)

// toPolygolGeom converts a polygonal orb geometry into polygol's
// multi-polygon coordinate form. The second return is false for
// non-polygonal geometries.
func toPolygolGeom(g orb.Geometry) ([][][][]float64, bool) {
	switch t := g.(type) {
	case orb.Polygon:
		return [][][][]float64{polygonCoords(t)}, true
	case orb.MultiPolygon:
		out := make([][][][]float64, 0, len(t))
		for _, p := range t {
			out = append(out, polygonCoords(p))
		}
		return out, true
	case orb.Ring:
		return [][][][]float64{polygonCoords(orb.Polygon{t})}, true
	case orb.Bound:
		return [][][][]float64{polygonCoords(t.ToPolygon())}, true
	default:
		return nil, false
	}
}

func polygonCoords(p orb.Polygon) [][][]float64 {
	rings := make([][][]float64, 0, len(p))
	for _, ring := range p {
		coords := make([][]float64, 0, len(ring))
		for _, pt := range ring {
			coords = append(coords, []float64{pt[0], pt[1]})
		}
		rings = append(rings, coords)
	}
	return rings
}

// fromPolygolGeom converts polygol output back into an orb geometry,
// collapsing single-polygon results. Empty results yield nil.
func fromPolygolGeom(g [][][][]float64) orb.Geometry {
	polys := make(orb.MultiPolygon, 0, len(g))
	for _, rawPoly := range g {
		poly := make(orb.Polygon, 0, len(rawPoly))
		for _, rawRing := range rawPoly {
			ring := make(orb.Ring, 0, len(rawRing))
			for _, c := range rawRing {
				if len(c) < 2 {
					continue
				}
				ring = append(ring, orb.Point{c[0], c[1]})
			}
			if len(ring) >= 4 {
				poly = append(poly, ring)
			}
		}
		if len(poly) > 0 {
			polys = append(polys, poly)
		}
	}
	switch len(polys) {
	case 0:
		return nil
	case 1:
		return polys[0]
	default:
		return polys
	}
}

// intersectGeometry clips a geometry against a polygonal boundary. Polygons
// are intersected exactly; points and lines are kept or dropped by vertex
// containment. A nil result means the geometries do not overlap.
func intersectGeometry(g, boundary orb.Geometry) (orb.Geometry, error) {
	clip, ok := toPolygolGeom(boundary)
	if !ok {
		return nil, eris.New("boundary is not polygonal")
	}

	if subject, ok := toPolygolGeom(g); ok {
		result, err := polygol.Intersection(subject, clip)
		if err != nil {
			return nil, eris.Wrap(err, "polygon intersection")
		}
		return fromPolygolGeom(result), nil
	}

	switch t := g.(type) {
	case orb.Point:
		if geometryContainsPoint(boundary, t) {
			return t, nil
		}
		return nil, nil
	case orb.MultiPoint:
		var kept orb.MultiPoint
		for _, pt := range t {
			if geometryContainsPoint(boundary, pt) {
				kept = append(kept, pt)
			}
		}
		if len(kept) == 0 {
			return nil, nil
		}
		if len(kept) == 1 {
			return kept[0], nil
		}
		return kept, nil
	case orb.LineString:
		if anyVertexInside(boundary, t) {
			return t, nil
		}
		return nil, nil
	case orb.MultiLineString:
		var kept orb.MultiLineString
		for _, ls := range t {
			if anyVertexInside(boundary, ls) {
				kept = append(kept, ls)
			}
		}
		if len(kept) == 0 {
			return nil, nil
		}
		if len(kept) == 1 {
			return kept[0], nil
		}
		return kept, nil
	default:
		return nil, eris.Errorf("unsupported geometry type %q", g.GeoJSONType())
	}
}

// unionGeometries folds the polygonal geometries of the group into a single
// union; non-polygonal members do not contribute. A nil result means the
// group held no polygonal geometry.
func unionGeometries(geoms []orb.Geometry) (orb.Geometry, error) {
	var acc [][][][]float64
	for _, g := range geoms {
		pg, ok := toPolygolGeom(g)
		if !ok {
			continue
		}
		if acc == nil {
			acc = pg
			continue
		}
		merged, err := polygol.Union(acc, pg)
		if err != nil {
			return nil, eris.Wrap(err, "polygon union")
		}
		acc = merged
	}
	if acc == nil {
		return nil, nil
	}
	return fromPolygolGeom(acc), nil
}

// geometriesIntersect reports whether two geometries overlap. Polygon pairs
// use an exact intersection; mixed pairs fall back to mutual vertex
// containment.
func geometriesIntersect(a, b orb.Geometry) bool {
	if a == nil || b == nil {
		return false
	}
	ga, aPoly := toPolygolGeom(a)
	gb, bPoly := toPolygolGeom(b)
	if aPoly && bPoly {
		result, err := polygol.Intersection(ga, gb)
		if err == nil {
			return len(result) > 0
		}
	}
	for _, pt := range collectPoints(a) {
		if geometryContainsPoint(b, pt) {
			return true
		}
	}
	for _, pt := range collectPoints(b) {
		if geometryContainsPoint(a, pt) {
			return true
		}
	}
	return false
}

// geometryArea returns the absolute planar area of a geometry, zero for
// points and lines.
func geometryArea(g orb.Geometry) float64 {
	switch t := g.(type) {
	case orb.Polygon, orb.MultiPolygon, orb.Ring, orb.Bound:
		return math.Abs(planar.Area(t))
	default:
		return 0
	}
}

// geometryContainsPoint reports whether a polygonal geometry contains the
// point.
func geometryContainsPoint(g orb.Geometry, pt orb.Point) bool {
	switch t := g.(type) {
	case orb.Polygon:
		return planar.PolygonContains(t, pt)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(t, pt)
	case orb.Ring:
		return planar.RingContains(t, pt)
	case orb.Bound:
		return t.Contains(pt)
	default:
		return false
	}
}

// geometryWithin reports whether every vertex of g lies inside the boundary.
// Vertex containment approximates full containment for the shapes handled
// here.
func geometryWithin(g, boundary orb.Geometry) bool {
	pts := collectPoints(g)
	if len(pts) == 0 {
		return false
	}
	for _, pt := range pts {
		if !geometryContainsPoint(boundary, pt) {
			return false
		}
	}
	return true
}

func anyVertexInside(boundary orb.Geometry, ls orb.LineString) bool {
	for _, pt := range ls {
		if geometryContainsPoint(boundary, pt) {
			return true
		}
	}
	return false
}

// collectPoints flattens a geometry into its vertices.
func collectPoints(g orb.Geometry) []orb.Point {
	switch t := g.(type) {
	case orb.Point:
		return []orb.Point{t}
	case orb.MultiPoint:
		return []orb.Point(t)
	case orb.LineString:
		return []orb.Point(t)
	case orb.MultiLineString:
		var pts []orb.Point
		for _, ls := range t {
			pts = append(pts, ls...)
		}
		return pts
	case orb.Ring:
		return []orb.Point(t)
	case orb.Polygon:
		var pts []orb.Point
		for _, ring := range t {
			pts = append(pts, ring...)
		}
		return pts
	case orb.MultiPolygon:
		var pts []orb.Point
		for _, poly := range t {
			for _, ring := range poly {
				pts = append(pts, ring...)
			}
		}
		return pts
	case orb.Bound:
		return collectPoints(t.ToPolygon())
	default:
		return nil
	}
}

// convexHull computes the convex hull of a point set using the monotone
// chain algorithm. Fewer than three distinct points, or a collinear set,
// degrade to a Point or LineString so the result stays valid GeoJSON
// (polygon rings need at least four positions).
func convexHull(points []orb.Point) orb.Geometry {
	if len(points) == 0 {
		return nil
	}

	sorted := make([]orb.Point, len(points))
	copy(sorted, points)
	sortPoints(sorted)
	sorted = dedupePoints(sorted)

	if len(sorted) == 1 {
		return sorted[0]
	}
	if len(sorted) == 2 {
		return orb.LineString{sorted[0], sorted[1]}
	}

	var lower, upper []orb.Point
	for _, p := range sorted {
		for len(lower) >= 2 && cross(lower[len(lower)-2], lower[len(lower)-1], p) <= 0 {
			lower = lower[:len(lower)-1]
		}
		lower = append(lower, p)
	}
	for i := len(sorted) - 1; i >= 0; i-- {
		p := sorted[i]
		for len(upper) >= 2 && cross(upper[len(upper)-2], upper[len(upper)-1], p) <= 0 {
			upper = upper[:len(upper)-1]
		}
		upper = append(upper, p)
	}

	hull := make(orb.Ring, 0, len(lower)+len(upper)-1)
	hull = append(hull, lower[:len(lower)-1]...)
	hull = append(hull, upper[:len(upper)-1]...)
	if len(hull) == 2 {
		// all input points collinear
		return orb.LineString{hull[0], hull[1]}
	}
	hull = append(hull, hull[0])
	return orb.Polygon{hull}
}

func cross(o, a, b orb.Point) float64 {
	return (a[0]-o[0])*(b[1]-o[1]) - (a[1]-o[1])*(b[0]-o[0])
}

func sortPoints(pts []orb.Point) {
	sort.Slice(pts, func(i, j int) bool {
		if pts[i][0] != pts[j][0] {
			return pts[i][0] < pts[j][0]
		}
		return pts[i][1] < pts[j][1]
	})
}

func dedupePoints(sorted []orb.Point) []orb.Point {
	out := sorted[:1]
	for _, p := range sorted[1:] {
		if p != out[len(out)-1] {
			out = append(out, p)
		}
	}
	return out
}

// representativePoint returns a point suitable for reverse geocoding: the
// area centroid when it falls inside the geometry, otherwise a vertex.
func representativePoint(g orb.Geometry) orb.Point {
	switch t := g.(type) {
	case orb.Point:
		return t
	case orb.Polygon, orb.MultiPolygon, orb.Ring, orb.Bound:
		centroid, _ := planar.CentroidArea(t)
		if geometryContainsPoint(g, centroid) {
			return centroid
		}
	}
	pts := collectPoints(g)
	if len(pts) == 0 {
		return orb.Point{}
	}
	return pts[0]
}
