package pipeline

import (
	"context"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"
)

// Processor runs the full classification pipeline: classify, clip, select
// the dominant category, resolve the region and its place, and assemble the
// annotated output collection.
type Processor struct {
	Resolver *PlaceResolver
	Log      *zap.Logger
}

func (p *Processor) logger() *zap.Logger {
	if p.Log != nil {
		return p.Log
	}
	return zap.NewNop()
}

// Process executes one classification run. It never fails: defective
// features degrade individually and an empty result is a valid outcome.
func (p *Processor) Process(ctx context.Context, req *Request) *Result {
	classified := make([]classifiedFeature, 0, len(req.Features))
	tally := NewTally()

	for _, f := range req.Features {
		cf := classifiedFeature{feature: f, category: Classify(f)}
		clip := ClipFeature(f.Geometry, req.Boundary, req.MinAreaFraction)
		cf.clipped = clip.Geometry
		cf.kept = clip.Kept
		if cf.kept {
			tally.Add(cf.category)
		}
		classified = append(classified, cf)
	}

	winner, _ := tally.Dominant()
	region, features := resolveRegion(classified, winner, req.Boundary)

	var place *PlaceInfo
	if region != nil {
		resolver := p.Resolver
		if resolver == nil {
			resolver = &PlaceResolver{Log: p.Log}
		}
		place = resolver.Resolve(ctx, region, req.Districts, features, req.PreferDistrict)
	}

	if place != nil && req.EnsurePlaceFields {
		features = attachPlace(features, place)
	}

	if region != nil {
		features = append(features, regionFeature(region, winner, tally.Count(winner), place, req.Boundary != nil))
	}

	p.logger().Debug("pipeline run complete",
		zap.Int("features_in", len(req.Features)),
		zap.Int("features_out", len(features)),
		zap.String("dominant", string(winner)),
		zap.Bool("place_resolved", place != nil),
	)

	return &Result{
		Features: features,
		Dominant: winner,
		Region:   region,
		Place:    place,
	}
}

// regionFeature synthesizes the output feature carrying the resolved region
// geometry and its metadata. It is always appended last.
func regionFeature(region orb.Geometry, winner Category, memberCount int, place *PlaceInfo, fromBoundary bool) *geojson.Feature {
	f := geojson.NewFeature(region)
	f.ID = uuid.NewString()

	regionType := regionTypeHull
	if fromBoundary {
		regionType = regionTypeBoundary
	}
	f.Properties[propRegionType] = regionType
	f.Properties[propDominantType] = string(winner)
	f.Properties[propDominantLabel] = winner.Label()
	f.Properties[propFeatureCount] = memberCount

	if place != nil {
		f.Properties[propPlaceName] = place.Name
		f.Properties[propPlaceType] = place.Type
		if place.ID != "" {
			f.Properties[propPlaceID] = place.ID
		}
	}
	return f
}
