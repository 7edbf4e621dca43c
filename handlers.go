package main

import (
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sepj/geodataviz/pipeline"
)

// processResponse is the wire shape of a classification result: a
// FeatureCollection with an optional top-level place object.
type processResponse struct {
	Type     string              `json:"type"`
	Features []*geojson.Feature  `json:"features"`
	Place    *pipeline.PlaceInfo `json:"place,omitempty"`
}

func encodeResult(res *pipeline.Result) ([]byte, error) {
	features := res.Features
	if features == nil {
		features = []*geojson.Feature{}
	}
	return json.Marshal(processResponse{
		Type:     "FeatureCollection",
		Features: features,
		Place:    res.Place,
	})
}

// Router builds the HTTP API.
func (a *App) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", a.handleHealth)
	r.Get("/db-test", a.handleDBTest)
	r.Post("/process", a.handleProcess)
	r.Get("/scripts", a.handleListScripts)
	r.Post("/scripts/{id}", a.handleRunScript)
	r.Post("/upload-geojson", a.handleUpload)
	r.Get("/features", a.handleListFeatures)

	return r
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"database":  a.Store != nil,
	})
}

func (a *App) handleDBTest(w http.ResponseWriter, r *http.Request) {
	if a.Store == nil {
		a.writeError(w, http.StatusServiceUnavailable, "no database configured")
		return
	}
	if err := a.Store.Ping(r.Context()); err != nil {
		a.Log.Error("database ping failed", zap.Error(err))
		a.writeError(w, http.StatusServiceUnavailable, "database unreachable")
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]string{"database": "ok"})
}

func (a *App) handleProcess(w http.ResponseWriter, r *http.Request) {
	body, err := a.readBody(w, r)
	if err != nil {
		return
	}

	req, skipped, err := pipeline.DecodeRequest(body)
	if err != nil {
		if eris.Is(err, pipeline.ErrInvalidRoot) {
			a.writeError(w, http.StatusBadRequest, "root object must be a FeatureCollection or Feature")
			return
		}
		a.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if skipped > 0 {
		a.Log.Warn("features skipped during parse", zap.Int("skipped", skipped))
	}

	result := a.Processor.Process(r.Context(), req)

	if a.Publisher != nil {
		if err := a.Publisher.PublishResult(result); err != nil {
			a.Log.Warn("result publish failed", zap.Error(err))
		}
	}

	payload, err := encodeResult(result)
	if err != nil {
		a.Log.Error("result encoding failed", zap.Error(err))
		a.writeError(w, http.StatusInternalServerError, "encoding result")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

func (a *App) handleListScripts(w http.ResponseWriter, r *http.Request) {
	type scriptInfo struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	scripts := pipeline.Scripts()
	out := make([]scriptInfo, 0, len(scripts))
	for _, s := range scripts {
		out = append(out, scriptInfo{ID: s.ID, Name: s.Name, Description: s.Description})
	}
	a.writeJSON(w, http.StatusOK, map[string]interface{}{"scripts": out})
}

func (a *App) handleRunScript(w http.ResponseWriter, r *http.Request) {
	script, ok := pipeline.ScriptByID(chi.URLParam(r, "id"))
	if !ok {
		a.writeError(w, http.StatusNotFound, "unknown script")
		return
	}

	body, err := a.readBody(w, r)
	if err != nil {
		return
	}
	fc, err := geojson.UnmarshalFeatureCollection(body)
	if err != nil {
		a.writeError(w, http.StatusBadRequest, "body must be a FeatureCollection")
		return
	}

	payload, err := script.Run(fc).MarshalJSON()
	if err != nil {
		a.Log.Error("script result encoding failed", zap.String("script", script.ID), zap.Error(err))
		a.writeError(w, http.StatusInternalServerError, "encoding result")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

func (a *App) handleUpload(w http.ResponseWriter, r *http.Request) {
	if a.Store == nil {
		a.writeError(w, http.StatusServiceUnavailable, "no database configured")
		return
	}

	maxBytes := int64(a.Config.HTTP.MaxUploadMB) << 20
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+4096)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		a.writeError(w, http.StatusBadRequest, "request must be a multipart file upload")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		a.writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	if !isGeoJSONUpload(header) {
		a.writeError(w, http.StatusBadRequest, "uploaded file is not GeoJSON")
		return
	}

	body, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		a.writeError(w, http.StatusBadRequest, "reading uploaded file")
		return
	}
	if int64(len(body)) > maxBytes {
		a.writeError(w, http.StatusRequestEntityTooLarge, "uploaded file exceeds upload limit")
		return
	}

	fc, err := decodeUploadCollection(body)
	if err != nil {
		a.writeError(w, http.StatusBadRequest, "uploaded file must be a Feature or FeatureCollection")
		return
	}

	stats, err := a.Store.InsertFeatures(r.Context(), fc)
	if err != nil {
		a.Log.Error("feature upload failed", zap.Error(err))
		a.writeError(w, http.StatusInternalServerError, "storing features")
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]int{
		"inserted":             stats.Inserted,
		"skipped_no_geom":      stats.SkippedNoGeometry,
		"skipped_invalid_geom": stats.SkippedInvalid,
		"total_features":       len(fc.Features),
	})
}

// isGeoJSONUpload accepts .geojson filenames or any JSON content type.
func isGeoJSONUpload(header *multipart.FileHeader) bool {
	if strings.HasSuffix(strings.ToLower(header.Filename), ".geojson") {
		return true
	}
	return strings.HasSuffix(header.Header.Get("Content-Type"), "json")
}

// decodeUploadCollection accepts a FeatureCollection or a single Feature,
// wrapping the latter.
func decodeUploadCollection(body []byte) (*geojson.FeatureCollection, error) {
	fc, err := geojson.UnmarshalFeatureCollection(body)
	if err == nil {
		return fc, nil
	}
	f, ferr := geojson.UnmarshalFeature(body)
	if ferr != nil {
		return nil, err
	}
	fc = geojson.NewFeatureCollection()
	fc.Append(f)
	return fc, nil
}

func (a *App) handleListFeatures(w http.ResponseWriter, r *http.Request) {
	if a.Store == nil {
		a.writeError(w, http.StatusServiceUnavailable, "no database configured")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}

	fc, err := a.Store.ListFeatures(r.Context(), limit)
	if err != nil {
		a.Log.Error("feature listing failed", zap.Error(err))
		a.writeError(w, http.StatusInternalServerError, "listing features")
		return
	}

	payload, err := fc.MarshalJSON()
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, "encoding features")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

// readBody reads the request body up to the configured upload cap. On
// failure it writes the error response itself.
func (a *App) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	maxBytes := int64(a.Config.HTTP.MaxUploadMB) << 20
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBytes+1))
	if err != nil {
		a.writeError(w, http.StatusBadRequest, "reading request body")
		return nil, err
	}
	if int64(len(body)) > maxBytes {
		a.writeError(w, http.StatusRequestEntityTooLarge, "request body exceeds upload limit")
		return nil, eris.New("body too large")
	}
	return body, nil
}

func (a *App) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.Log.Error("response encoding failed", zap.Error(err))
	}
}

func (a *App) writeError(w http.ResponseWriter, status int, msg string) {
	a.writeJSON(w, status, map[string]string{"error": msg})
}
