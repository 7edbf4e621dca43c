package pipeline

import (
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Classify maps a feature's attribute tags to exactly one category. The
// rules run in a fixed order and the first match wins; features matching no
// rule become point or unknown depending on their geometry.
func Classify(f *geojson.Feature) Category {
	if amenity, ok := featureString(f, "amenity"); ok {
		switch amenity {
		case "school", "university":
			return CategoryEducation
		case "hospital", "clinic", "doctors":
			return CategoryHealthcare
		case "place_of_worship":
			return CategoryReligious
		default:
			return CategoryAmenity
		}
	}

	if building, ok := featureString(f, "building"); ok {
		b := strings.ToLower(building)
		switch {
		case strings.Contains(b, "resid"), b == "house", b == "apartments":
			return CategoryResidential
		case strings.Contains(b, "commer"), strings.Contains(b, "retail"), strings.Contains(b, "shop"):
			return CategoryCommercial
		case strings.Contains(b, "indust"):
			return CategoryIndustrial
		case strings.Contains(b, "church"), strings.Contains(b, "cathedral"):
			return CategoryReligious
		default:
			return CategoryBuilding
		}
	}

	if _, ok := featureString(f, "shop"); ok {
		return CategoryCommercial
	}
	if _, ok := featureString(f, "office"); ok {
		return CategoryCommercial
	}

	if _, ok := featureString(f, "leisure"); ok {
		return CategoryLeisure
	}
	if _, ok := featureString(f, "tourism"); ok {
		return CategoryTourism
	}

	if landuse, ok := featureString(f, "landuse"); ok {
		switch landuse {
		case "residential":
			return CategoryResidential
		case "industrial":
			return CategoryIndustrial
		case "commercial":
			return CategoryCommercial
		case "forest", "park":
			return CategoryLeisure
		}
	}

	if _, isPoint := f.Geometry.(orb.Point); isPoint {
		return CategoryPoint
	}
	return CategoryUnknown
}
