package http

import (
	"encoding/json"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"time"

	"go.uber.org/zap"

	"seedcar/ml"
	"seedcar/predictor"
)

const (
	serviceName  = "seedcar"
	historyLimit = 500
)

type handlers struct {
	deps    Deps
	routes  []Route
	started time.Time
}

func newHandlers(deps Deps) *handlers {
	h := &handlers{deps: deps, started: time.Now()}
	h.routes = h.routeTable()
	return h
}

func (h *handlers) handleIndex(w http.ResponseWriter, r *http.Request) {
	type endpoint struct {
		Method      string `json:"method"`
		Path        string `json:"path"`
		Description string `json:"description"`
	}
	endpoints := make([]endpoint, len(h.routes))
	for i, rt := range h.routes {
		endpoints[i] = endpoint{rt.Method, rt.Path, rt.Description}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service":   serviceName,
		"models":    []ml.Kind{ml.KindWheat, ml.KindCar},
		"endpoints": endpoints,
	})
}

// handleCheck 健康检查。没有模型时仍能用兜底结果服务，所以始终返回200
func (h *handlers) handleCheck(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	models := make(map[ml.Kind]interface{})
	for _, svc := range h.services() {
		st := svc.Status()
		if !st.ModelLoaded {
			status = "degraded"
		}
		models[st.Kind] = map[string]interface{}{
			"model_loaded": st.ModelLoaded,
			"model":        st.Model,
			"version":      st.Version,
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": status,
		"models": models,
		"uptime": time.Since(h.started).Round(time.Second).String(),
	})
}

func (h *handlers) handleDebug(w http.ResponseWriter, r *http.Request) {
	cfg := h.deps.Config
	wd, _ := os.Getwd()
	exe, _ := os.Executable()

	statuses := make([]predictor.Status, 0)
	for _, svc := range h.services() {
		statuses = append(statuses, svc.Status())
	}

	payload := map[string]interface{}{
		"config": map[string]interface{}{
			"port":            cfg.Http.Port,
			"timeout":         cfg.Http.Timeout.String(),
			"max_body_bytes":  cfg.Http.MaxBodyBytes,
			"log_level":       cfg.Log.Level,
			"database":        cfg.Database.Path,
			"cache_size":      cfg.Models.CacheSize,
			"reload_interval": cfg.Models.ReloadInterval.String(),
			"watch":           cfg.Models.Watch,
		},
		"models":            statuses,
		"car_categories":    ml.CarCommonValues,
		"wheat_varieties":   ml.WheatVarieties,
		"working_directory": wd,
		"executable":        exe,
		"runtime": map[string]interface{}{
			"go_version": runtime.Version(),
			"goos":       runtime.GOOS,
			"goarch":     runtime.GOARCH,
			"goroutines": runtime.NumGoroutine(),
			"num_cpu":    runtime.NumCPU(),
		},
		"uptime": time.Since(h.started).Round(time.Second).String(),
	}
	if h.deps.Hub != nil {
		payload["websocket_clients"] = h.deps.Hub.ClientCount()
	}
	if h.deps.Store != nil {
		counts, err := h.deps.Store.CountPredictions()
		if err != nil {
			payload["predictions_error"] = err.Error()
		} else {
			payload["predictions"] = counts
		}
	}
	writeJSON(w, http.StatusOK, payload)
}

func (h *handlers) handleReload(w http.ResponseWriter, r *http.Request) {
	if h.deps.Registry == nil {
		writeError(w, http.StatusServiceUnavailable, "no models configured")
		return
	}
	reloaded := h.deps.Registry.ReloadAll()
	h.deps.Logger.Info("models reloaded on request",
		zap.String("request_id", predictor.RequestID(r.Context())),
		zap.Any("loaded", reloaded))

	statuses := make([]predictor.Status, 0)
	for _, svc := range h.services() {
		statuses = append(statuses, svc.Status())
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"reloaded": reloaded,
		"models":   statuses,
	})
}

func (h *handlers) handleHistory(w http.ResponseWriter, r *http.Request) {
	if h.deps.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "prediction history is disabled")
		return
	}

	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil || l <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(l, historyLimit)
	}

	kind := r.URL.Query().Get("model")
	if kind != "" && kind != string(ml.KindWheat) && kind != string(ml.KindCar) {
		writeError(w, http.StatusBadRequest, "unknown model: "+kind)
		return
	}

	records, err := h.deps.Store.RecentPredictions(kind, limit)
	if err != nil {
		h.deps.Logger.Error("query prediction history", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read prediction history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(records),
		"data":  records,
	})
}

func (h *handlers) handleWheatPage(w http.ResponseWriter, r *http.Request) {
	fields := make([]formField, 0, len(ml.WheatFeatureNames))
	for _, name := range ml.WheatFeatureNames[:len(ml.WheatFeatureNames)-1] {
		fields = append(fields, formField{Name: name, Type: "number", Required: true})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"model":     ml.KindWheat,
		"submit":    "POST /wheat/process",
		"fields":    fields,
		"derived":   []string{"Length_Width_Ratio"},
		"varieties": ml.WheatVarieties,
	})
}

func (h *handlers) handleCarPage(w http.ResponseWriter, r *http.Request) {
	required := map[string]bool{
		"Brand_Model": true, "Location": true, "Year": true, "Kilometers_Driven": true,
	}
	defaults := ml.CarFieldDefaults()

	fields := make([]formField, 0, len(ml.CarCategoricalNames)+len(ml.CarNumericNames))
	for _, name := range ml.CarCategoricalNames {
		fields = append(fields, formField{
			Name:     name,
			Type:     "text",
			Required: required[name],
			Default:  defaults[name],
			Options:  ml.CarCommonValues[name],
		})
	}
	for _, name := range ml.CarNumericNames {
		fields = append(fields, formField{
			Name:     name,
			Type:     "number",
			Required: required[name],
			Default:  defaults[name],
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"model":  ml.KindCar,
		"submit": "POST /car/predict",
		"fields": fields,
		"unit":   "INR lakhs",
	})
}

func (h *handlers) handleEvents(w http.ResponseWriter, r *http.Request) {
	if h.deps.Hub == nil {
		writeError(w, http.StatusServiceUnavailable, "event stream is disabled")
		return
	}
	h.deps.Hub.ServeHTTP(w, r)
}

func (h *handlers) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if h.deps.Metrics == nil {
		writeError(w, http.StatusServiceUnavailable, "metrics are disabled")
		return
	}
	h.deps.Metrics.Handler().ServeHTTP(w, r)
}

func (h *handlers) services() []*predictor.Service {
	if h.deps.Registry == nil {
		return nil
	}
	return h.deps.Registry.Services()
}

type formField struct {
	Name     string      `json:"name"`
	Type     string      `json:"type"`
	Required bool        `json:"required"`
	Default  interface{} `json:"default,omitempty"`
	Options  []string    `json:"options,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
