package pipeline

import (
	"encoding/json"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"
)

// ErrInvalidRoot is returned when the request body is neither a
// FeatureCollection nor a single Feature.
var ErrInvalidRoot = eris.New("root object must be a FeatureCollection or Feature")

// requestEnvelope is the raw wire shape of a processing request: a GeoJSON
// FeatureCollection (or single Feature) with optional sibling fields.
type requestEnvelope struct {
	Type       string             `json:"type"`
	Features   []json.RawMessage  `json:"features"`
	Geometry   json.RawMessage    `json:"geometry"`
	Properties geojson.Properties `json:"properties"`
	ID         interface{}        `json:"id"`

	Boundary          json.RawMessage `json:"boundary"`
	MinAreaFraction   float64         `json:"min_area_fraction"`
	Districts         json.RawMessage `json:"districts"`
	PreferDistrict    bool            `json:"prefer_district"`
	EnsurePlaceFields bool            `json:"ensure_place_fields"`
}

// DecodeRequest parses a processing request from JSON. The root must be a
// FeatureCollection or a single Feature; anything else fails with
// ErrInvalidRoot. Individual features that do not parse or carry no geometry
// are skipped, and the number of skipped features is reported alongside the
// request.
func DecodeRequest(data []byte) (*Request, int, error) {
	var env requestEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, 0, eris.Wrap(err, "decode request body")
	}

	req := &Request{
		MinAreaFraction:   env.MinAreaFraction,
		PreferDistrict:    env.PreferDistrict,
		EnsurePlaceFields: env.EnsurePlaceFields,
	}

	skipped := 0
	switch env.Type {
	case "FeatureCollection":
		for _, raw := range env.Features {
			f, err := geojson.UnmarshalFeature(raw)
			if err != nil || f.Geometry == nil {
				skipped++
				continue
			}
			req.Features = append(req.Features, f)
		}
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil || f.Geometry == nil {
			return nil, 0, eris.Wrap(ErrInvalidRoot, "single feature has no usable geometry")
		}
		req.Features = append(req.Features, f)
	default:
		return nil, 0, ErrInvalidRoot
	}

	if len(env.Boundary) > 0 {
		g, err := decodeBoundary(env.Boundary)
		if err != nil {
			return nil, 0, eris.Wrap(err, "decode boundary")
		}
		req.Boundary = g
	}

	if len(env.Districts) > 0 {
		districts, err := decodeDistricts(env.Districts)
		if err != nil {
			return nil, 0, eris.Wrap(err, "decode districts")
		}
		req.Districts = districts
	}

	return req, skipped, nil
}

// decodeBoundary accepts a boundary given either as a Feature or as a bare
// geometry object.
func decodeBoundary(raw json.RawMessage) (orb.Geometry, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, err
	}
	if probe.Type == "Feature" {
		f, err := geojson.UnmarshalFeature(raw)
		if err != nil {
			return nil, err
		}
		if f.Geometry == nil {
			return nil, eris.New("boundary feature has no geometry")
		}
		return f.Geometry, nil
	}
	g, err := geojson.UnmarshalGeometry(raw)
	if err != nil {
		return nil, err
	}
	return g.Geometry(), nil
}

// decodeDistricts parses a district layer given as a FeatureCollection.
// Features without geometry or without any name-like property are dropped.
func decodeDistricts(raw json.RawMessage) ([]District, error) {
	fc, err := geojson.UnmarshalFeatureCollection(raw)
	if err != nil {
		return nil, err
	}
	var districts []District
	for _, f := range fc.Features {
		if f.Geometry == nil {
			continue
		}
		name, ok := featureString(f, "name")
		if !ok {
			if name, ok = featureString(f, "label"); !ok {
				continue
			}
		}
		id, _ := featureString(f, "id")
		if id == "" && f.ID != nil {
			id = stringify(f.ID)
		}
		districts = append(districts, District{Name: name, ID: id, Geometry: f.Geometry})
	}
	return districts, nil
}

// featureString looks up a property on the feature, checking the top-level
// property map first and then a one-level "tags" sub-map. Only scalar values
// are considered; empty strings count as absent.
func featureString(f *geojson.Feature, key string) (string, bool) {
	if f.Properties != nil {
		if v, ok := f.Properties[key]; ok {
			if s := stringify(v); s != "" {
				return s, true
			}
		}
		if tags, ok := f.Properties["tags"].(map[string]interface{}); ok {
			if v, ok := tags[key]; ok {
				if s := stringify(v); s != "" {
					return s, true
				}
			}
		}
	}
	return "", false
}

// stringify renders a scalar property value as a string. Non-scalar values
// yield the empty string.
func stringify(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	case json.Number:
		return t.String()
	default:
		return ""
	}
}

// copyProperties returns a shallow copy of the property map so annotation
// never mutates caller-visible state.
func copyProperties(p geojson.Properties) geojson.Properties {
	out := make(geojson.Properties, len(p)+4)
	for k, v := range p {
		out[k] = v
	}
	return out
}
