package pipeline

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

// Script is a named transform applied to a whole feature collection,
// selectable by ID through the HTTP API.
type Script struct {
	ID          string
	Name        string
	Description string
	Run         func(fc *geojson.FeatureCollection) *geojson.FeatureCollection
}

// scriptRegistry lists the available transforms in display order.
var scriptRegistry = []Script{
	{
		ID:          "convex_hull",
		Name:        "Konvexe Hülle",
		Description: "Hängt die konvexe Hülle aller Features als eigenes Feature an.",
		Run:         scriptConvexHull,
	},
	{
		ID:          "add_centroids",
		Name:        "Zentroide hinzufügen",
		Description: "Erzeugt für jedes Flächen-Feature einen Mittelpunkt-Marker.",
		Run:         scriptAddCentroids,
	},
	{
		ID:          "add_property",
		Name:        "Eigenschaft hinzufügen",
		Description: "Fügt allen Features die Eigenschaft 'ai_note' hinzu.",
		Run:         scriptAddProperty,
	},
	{
		ID:          "make_black",
		Name:        "Schwarz einfärben",
		Description: "Setzt feste Füll-, Rand- und Markerfarben auf allen Features.",
		Run:         scriptMakeBlack,
	},
	{
		ID:          "add_marker",
		Name:        "Marker setzen",
		Description: "Versieht jedes Feature mit einem statischen Kartenmarker.",
		Run:         scriptAddMarker,
	},
}

// Scripts returns the registered transforms.
func Scripts() []Script {
	out := make([]Script, len(scriptRegistry))
	copy(out, scriptRegistry)
	return out
}

// ScriptByID looks up a transform by its identifier.
func ScriptByID(id string) (Script, bool) {
	for _, s := range scriptRegistry {
		if s.ID == id {
			return s, true
		}
	}
	return Script{}, false
}

// scriptConvexHull appends the convex hull of all feature vertices as one
// additional polygon feature. Collections without usable vertices pass
// through unchanged.
func scriptConvexHull(fc *geojson.FeatureCollection) *geojson.FeatureCollection {
	var pts []orb.Point
	for _, f := range fc.Features {
		if f.Geometry != nil {
			pts = append(pts, collectPoints(f.Geometry)...)
		}
	}
	out := cloneCollection(fc)
	if hull := convexHull(pts); hull != nil {
		hf := geojson.NewFeature(hull)
		hf.Properties["name"] = "Konvexe Hülle"
		hf.Properties["generated_by"] = "convex_hull"
		out.Append(hf)
	}
	return out
}

// scriptAddCentroids appends a centroid point feature for every areal
// feature, carrying over the source feature's id and name when present. The
// centroid is the true area centroid, which may fall outside a concave
// polygon.
func scriptAddCentroids(fc *geojson.FeatureCollection) *geojson.FeatureCollection {
	out := cloneCollection(fc)
	for _, f := range fc.Features {
		if f.Geometry == nil || geometryArea(f.Geometry) == 0 {
			continue
		}
		centroid, _ := planar.CentroidArea(f.Geometry)
		cf := geojson.NewFeature(centroid)
		cf.Properties["generated_by"] = "add_centroids"
		if f.ID != nil {
			if id := stringify(f.ID); id != "" {
				cf.Properties["source_id"] = id
			}
		}
		if name, ok := featureString(f, "name"); ok {
			cf.Properties["name"] = name
		}
		out.Append(cf)
	}
	return out
}

// scriptAddProperty tags every feature as augmented.
func scriptAddProperty(fc *geojson.FeatureCollection) *geojson.FeatureCollection {
	return annotateAll(fc, geojson.Properties{
		"ai_note": "augmented",
	})
}

func scriptMakeBlack(fc *geojson.FeatureCollection) *geojson.FeatureCollection {
	return annotateAll(fc, geojson.Properties{
		"stroke":       "#000000",
		"fill":         "#000000",
		"marker-color": "#000000",
		"processed_by": "geodataviz",
	})
}

func scriptAddMarker(fc *geojson.FeatureCollection) *geojson.FeatureCollection {
	return annotateAll(fc, geojson.Properties{
		"marker-symbol": "star",
		"marker-color":  "#7e7e7e",
	})
}

func annotateAll(fc *geojson.FeatureCollection, extra geojson.Properties) *geojson.FeatureCollection {
	out := geojson.NewFeatureCollection()
	for _, f := range fc.Features {
		nf := geojson.NewFeature(f.Geometry)
		nf.ID = f.ID
		nf.Properties = copyProperties(f.Properties)
		for k, v := range extra {
			nf.Properties[k] = v
		}
		out.Append(nf)
	}
	return out
}

func cloneCollection(fc *geojson.FeatureCollection) *geojson.FeatureCollection {
	out := geojson.NewFeatureCollection()
	out.Features = append(out.Features, fc.Features...)
	return out
}
