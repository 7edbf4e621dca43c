package pipeline

import (
	"github.com/paulmach/orb"
)

// areaEpsilon absorbs floating-point noise when comparing a clipped area
// against the original.
const areaEpsilon = 1e-9

// ClipResult reports how a feature fared against the clip boundary.
type ClipResult struct {
	// Geometry feeds the union/hull computation: the clipped geometry when
	// a boundary applied, the original otherwise.
	Geometry orb.Geometry

	// Retained is the fraction of the original area surviving the clip,
	// 1.0 when no boundary applies or the feature has no area.
	Retained float64

	// Kept is false when the feature is excluded from tallying.
	Kept bool
}

// ClipFeature intersects a feature geometry with an optional boundary and
// applies the minimum-retained-area filter. Without a boundary the feature
// passes through unconditionally. A geometric failure excludes only this
// feature.
func ClipFeature(g orb.Geometry, boundary orb.Geometry, minFraction float64) ClipResult {
	if boundary == nil {
		return ClipResult{Geometry: g, Retained: 1, Kept: true}
	}
	if minFraction < 0 {
		minFraction = 0
	} else if minFraction > 1 {
		minFraction = 1
	}

	clipped, err := intersectGeometry(g, boundary)
	if err != nil || clipped == nil {
		return ClipResult{}
	}

	retained := 1.0
	if origArea := geometryArea(g); origArea > 0 {
		retained = geometryArea(clipped) / origArea
	}
	if minFraction > 0 && retained < minFraction {
		return ClipResult{}
	}

	// A boundary that fully contains the feature must not perturb its
	// geometry through the intersection round-trip.
	if retained >= 1-areaEpsilon {
		return ClipResult{Geometry: g, Retained: 1, Kept: true}
	}
	return ClipResult{Geometry: clipped, Retained: retained, Kept: true}
}
